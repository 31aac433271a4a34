package pgrepos

import (
	"context"

	sq "github.com/Masterminds/squirrel"
	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/edapp/edapp/core"
	"github.com/edapp/edapp/core/tenant"
	"github.com/edapp/edapp/storage/database"
)

const (
	tenantsTable    = "tenants"
	branchesTable   = "branches"
	tenantsSlugKey  = "tenants_slug_key"
	branchesCodeKey = "branches_tenant_code_key"
	tenantReturning = "RETURNING id, slug, name, status, logo_url, primary_color, contact_email, created_at, updated_at"
	branchReturning = "RETURNING id, tenant_id, name, code, address, phone, is_main, created_at, updated_at"
)

var (
	tenantColumns = []string{
		"id", "slug", "name", "status", "logo_url", "primary_color", "contact_email", "created_at", "updated_at",
	}
	branchColumns = []string{
		"id", "tenant_id", "name", "code", "address", "phone", "is_main", "created_at", "updated_at",
	}
)

type tenantRepository struct {
	repository
}

var _ tenant.Repository = (*tenantRepository)(nil) // interface compliance check

func NewTenantRepository(exec core.DBExecutor) *tenantRepository {
	return &tenantRepository{repository{exec: exec}}
}

func (repo tenantRepository) CheckSlugUniqueness(ctx context.Context, slug string) error {
	q, args, err := psql.Select("1").Prefix("SELECT EXISTS (").From(tenantsTable).Where(sq.Eq{"slug": slug}).Suffix(")").ToSql()
	if err != nil {
		return errors.Wrap(err, "building query")
	}
	var exists bool
	if err = repo.exec.GetContext(ctx, &exists, q, args...); err != nil {
		return errors.Wrap(err, "checking slug uniqueness")
	}
	if exists {
		return tenant.ErrSlugExists
	}
	return nil
}

func (repo tenantRepository) CreateTenant(ctx context.Context, t tenant.Tenant, exec ...core.DBExecutor) (tenant.Tenant, error) {
	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	q, args, err := psql.Insert(tenantsTable).
		Columns(tenantColumns...).
		Values(t.ID, t.Slug, t.Name, t.Status, t.LogoURL, t.PrimaryColor, t.ContactEmail, t.CreatedAt.UTC(), t.UpdatedAt.UTC()).
		Suffix(tenantReturning).
		ToSql()
	if err != nil {
		return tenant.Tenant{}, errors.Wrap(err, "building query")
	}
	var created tenant.Tenant
	if err = repo.getExec(exec).GetContext(ctx, &created, q, args...); err != nil {
		if database.IsUniqueViolation(err, tenantsSlugKey) {
			return tenant.Tenant{}, tenant.ErrSlugExists
		}
		return tenant.Tenant{}, errors.Wrap(err, "inserting tenant")
	}
	return created, nil
}

func (repo tenantRepository) QueryTenants(ctx context.Context, filter *tenant.QueryFilter, ordering []core.DBOrdering) ([]tenant.Tenant, error) {
	b := psql.Select(tenantColumns...).From(tenantsTable)
	if filter != nil {
		if filter.Search != "" {
			val := "%" + filter.Search + "%"
			b = b.Where(sq.Or{sq.ILike{"name": val}, sq.ILike{"slug": val}})
		}
		if filter.Status != "" {
			b = b.Where(sq.Eq{"status": filter.Status})
		}
	}

	q, args, err := orderBy(b, ordering, "name ASC").ToSql()
	if err != nil {
		return nil, errors.Wrap(err, "building query")
	}
	tenants := make([]tenant.Tenant, 0)
	if err = repo.exec.SelectContext(ctx, &tenants, q, args...); err != nil {
		return nil, errors.Wrap(err, "querying tenants")
	}
	return tenants, nil
}

func (repo tenantRepository) GetTenant(ctx context.Context, filter tenant.GetFilter) (tenant.Tenant, error) {
	b := psql.Select(tenantColumns...).From(tenantsTable).Limit(1)
	switch {
	case filter.ID != "":
		if _, err := uuid.Parse(filter.ID); err != nil {
			return tenant.Tenant{}, tenant.ErrNotFound
		}
		b = b.Where(sq.Eq{"id": filter.ID})
	case filter.Slug != "":
		b = b.Where(sq.Eq{"slug": filter.Slug})
	default:
		return tenant.Tenant{}, tenant.ErrNotFound
	}

	q, args, err := b.ToSql()
	if err != nil {
		return tenant.Tenant{}, errors.Wrap(err, "building query")
	}
	var t tenant.Tenant
	if err = repo.exec.GetContext(ctx, &t, q, args...); err != nil {
		return tenant.Tenant{}, trapNoRowsErr(err, tenant.ErrNotFound, "getting tenant")
	}
	return t, nil
}

func (repo tenantRepository) UpdateTenant(ctx context.Context, t tenant.Tenant, exec ...core.DBExecutor) (tenant.Tenant, error) {
	q, args, err := psql.Update(tenantsTable).
		SetMap(map[string]interface{}{
			"name":          t.Name,
			"status":        t.Status,
			"logo_url":      t.LogoURL,
			"primary_color": t.PrimaryColor,
			"contact_email": t.ContactEmail,
			"updated_at":    t.UpdatedAt.UTC(),
		}).
		Where(sq.Eq{"id": t.ID}).
		Suffix(tenantReturning).
		ToSql()
	if err != nil {
		return tenant.Tenant{}, errors.Wrap(err, "building query")
	}
	var updated tenant.Tenant
	if err = repo.getExec(exec).GetContext(ctx, &updated, q, args...); err != nil {
		return tenant.Tenant{}, trapNoRowsErr(err, tenant.ErrNotFound, "updating tenant")
	}
	return updated, nil
}

func (repo tenantRepository) QueryTenantsByUserEmail(ctx context.Context, email string) ([]tenant.Tenant, error) {
	cols := make([]string, 0, len(tenantColumns))
	for _, c := range tenantColumns {
		cols = append(cols, "t."+c)
	}
	q, args, err := psql.Select(cols...).
		Distinct().
		From(tenantsTable + " t").
		Join(usersTable + " u ON u.tenant_id = t.id").
		Where(sq.Eq{"u.email": email, "u.is_active": true}).
		OrderBy("t.name ASC").
		ToSql()
	if err != nil {
		return nil, errors.Wrap(err, "building query")
	}
	tenants := make([]tenant.Tenant, 0)
	if err = repo.exec.SelectContext(ctx, &tenants, q, args...); err != nil {
		return nil, errors.Wrap(err, "querying tenants by user email")
	}
	return tenants, nil
}

// Branches

func (repo tenantRepository) CreateBranch(ctx context.Context, b tenant.Branch, exec ...core.DBExecutor) (tenant.Branch, error) {
	if b.ID == "" {
		b.ID = uuid.NewString()
	}
	q, args, err := psql.Insert(branchesTable).
		Columns(branchColumns...).
		Values(b.ID, b.TenantID, b.Name, b.Code, b.Address, b.Phone, b.IsMain, b.CreatedAt.UTC(), b.UpdatedAt.UTC()).
		Suffix(branchReturning).
		ToSql()
	if err != nil {
		return tenant.Branch{}, errors.Wrap(err, "building query")
	}
	var created tenant.Branch
	if err = repo.getExec(exec).GetContext(ctx, &created, q, args...); err != nil {
		if database.IsUniqueViolation(err, branchesCodeKey) {
			return tenant.Branch{}, tenant.ErrBranchCodeExists
		}
		return tenant.Branch{}, errors.Wrap(err, "inserting branch")
	}
	return created, nil
}

func (repo tenantRepository) QueryBranches(ctx context.Context, tenantID string) ([]tenant.Branch, error) {
	q, args, err := psql.Select(branchColumns...).
		From(branchesTable).
		Where(sq.Eq{"tenant_id": tenantID}).
		OrderBy("is_main DESC", "name ASC").
		ToSql()
	if err != nil {
		return nil, errors.Wrap(err, "building query")
	}
	branches := make([]tenant.Branch, 0)
	if err = repo.exec.SelectContext(ctx, &branches, q, args...); err != nil {
		return nil, errors.Wrap(err, "querying branches")
	}
	return branches, nil
}

func (repo tenantRepository) GetBranch(ctx context.Context, tenantID, id string) (tenant.Branch, error) {
	if _, err := uuid.Parse(id); err != nil {
		return tenant.Branch{}, tenant.ErrBranchNotFound
	}
	q, args, err := psql.Select(branchColumns...).
		From(branchesTable).
		Where(sq.Eq{"tenant_id": tenantID, "id": id}).
		ToSql()
	if err != nil {
		return tenant.Branch{}, errors.Wrap(err, "building query")
	}
	var b tenant.Branch
	if err = repo.exec.GetContext(ctx, &b, q, args...); err != nil {
		return tenant.Branch{}, trapNoRowsErr(err, tenant.ErrBranchNotFound, "getting branch")
	}
	return b, nil
}

func (repo tenantRepository) UpdateBranch(ctx context.Context, b tenant.Branch, exec ...core.DBExecutor) (tenant.Branch, error) {
	q, args, err := psql.Update(branchesTable).
		SetMap(map[string]interface{}{
			"name":       b.Name,
			"address":    b.Address,
			"phone":      b.Phone,
			"is_main":    b.IsMain,
			"updated_at": b.UpdatedAt.UTC(),
		}).
		Where(sq.Eq{"tenant_id": b.TenantID, "id": b.ID}).
		Suffix(branchReturning).
		ToSql()
	if err != nil {
		return tenant.Branch{}, errors.Wrap(err, "building query")
	}
	var updated tenant.Branch
	if err = repo.getExec(exec).GetContext(ctx, &updated, q, args...); err != nil {
		return tenant.Branch{}, trapNoRowsErr(err, tenant.ErrBranchNotFound, "updating branch")
	}
	return updated, nil
}

func (repo tenantRepository) DeleteBranch(ctx context.Context, tenantID, id string) error {
	q, args, err := psql.Delete(branchesTable).Where(sq.Eq{"tenant_id": tenantID, "id": id}).ToSql()
	if err != nil {
		return errors.Wrap(err, "building query")
	}
	res, err := repo.exec.ExecContext(ctx, q, args...)
	if err != nil {
		return errors.Wrap(err, "deleting branch")
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return tenant.ErrBranchNotFound
	}
	return nil
}
