package pgrepos

import (
	"context"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/edapp/edapp/core"
	"github.com/edapp/edapp/core/policy"
	"github.com/edapp/edapp/storage/database"
)

const (
	policiesTable     = "policies"
	policyReturning   = "RETURNING id, tenant_id, kind, title, body, version, is_published, published_at, created_at, updated_at"
	policyVersionsKey = "policies_tenant_kind_version_key"
)

var policyColumns = []string{
	"id", "tenant_id", "kind", "title", "body", "version", "is_published", "published_at", "created_at", "updated_at",
}

type policyRow struct {
	ID          string    `db:"id"`
	TenantID    string    `db:"tenant_id"`
	Kind        string    `db:"kind"`
	Title       string    `db:"title"`
	Body        string    `db:"body"`
	Version     int       `db:"version"`
	IsPublished bool      `db:"is_published"`
	PublishedAt null.Time `db:"published_at"`
	CreatedAt   time.Time `db:"created_at"`
	UpdatedAt   time.Time `db:"updated_at"`
}

func (row policyRow) toPolicy() policy.Policy {
	p := policy.Policy{
		ID:          row.ID,
		TenantID:    row.TenantID,
		Kind:        row.Kind,
		Title:       row.Title,
		Body:        row.Body,
		Version:     row.Version,
		IsPublished: row.IsPublished,
		CreatedAt:   row.CreatedAt.UTC(),
		UpdatedAt:   row.UpdatedAt.UTC(),
	}
	if row.PublishedAt.Valid {
		t := row.PublishedAt.Time.UTC()
		p.PublishedAt = &t
	}
	return p
}

type policyRepository struct {
	repository
}

var _ policy.Repository = (*policyRepository)(nil) // interface compliance check

func NewPolicyRepository(exec core.DBExecutor) *policyRepository {
	return &policyRepository{repository{exec: exec}}
}

func (repo policyRepository) CreatePolicy(ctx context.Context, p policy.Policy) (policy.Policy, error) {
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	q, args, err := psql.Insert(policiesTable).
		Columns(policyColumns...).
		Values(
			p.ID, p.TenantID, p.Kind, p.Title, p.Body, p.Version, p.IsPublished,
			null.TimeFromPtr(p.PublishedAt), p.CreatedAt.UTC(), p.UpdatedAt.UTC(),
		).
		Suffix(policyReturning).
		ToSql()
	if err != nil {
		return policy.Policy{}, errors.Wrap(err, "building query")
	}
	var row policyRow
	if err = repo.exec.GetContext(ctx, &row, q, args...); err != nil {
		if database.IsUniqueViolation(err, policyVersionsKey) {
			return policy.Policy{}, core.NewValidationError(policy.ErrVersionConflict)
		}
		return policy.Policy{}, errors.Wrap(err, "inserting policy")
	}
	return row.toPolicy(), nil
}

func (repo policyRepository) QueryPolicies(ctx context.Context, filter policy.QueryFilter) ([]policy.Policy, error) {
	b := psql.Select(policyColumns...).
		From(policiesTable).
		Where(sq.Eq{"tenant_id": filter.TenantID}).
		OrderBy("kind ASC", "version DESC")
	if filter.Kind != "" {
		b = b.Where(sq.Eq{"kind": filter.Kind})
	}
	if filter.PublishedOnly {
		b = b.Where(sq.Eq{"is_published": true})
	}

	q, args, err := b.ToSql()
	if err != nil {
		return nil, errors.Wrap(err, "building query")
	}
	var rows []policyRow
	if err = repo.exec.SelectContext(ctx, &rows, q, args...); err != nil {
		return nil, errors.Wrap(err, "querying policies")
	}
	policies := make([]policy.Policy, 0, len(rows))
	for _, row := range rows {
		policies = append(policies, row.toPolicy())
	}
	return policies, nil
}

func (repo policyRepository) GetPolicy(ctx context.Context, tenantID, id string) (policy.Policy, error) {
	if _, err := uuid.Parse(id); err != nil {
		return policy.Policy{}, policy.ErrNotFound
	}
	q, args, err := psql.Select(policyColumns...).
		From(policiesTable).
		Where(sq.Eq{"tenant_id": tenantID, "id": id}).
		ToSql()
	if err != nil {
		return policy.Policy{}, errors.Wrap(err, "building query")
	}
	var row policyRow
	if err = repo.exec.GetContext(ctx, &row, q, args...); err != nil {
		return policy.Policy{}, trapNoRowsErr(err, policy.ErrNotFound, "getting policy")
	}
	return row.toPolicy(), nil
}

func (repo policyRepository) UpdatePolicy(ctx context.Context, p policy.Policy) (policy.Policy, error) {
	q, args, err := psql.Update(policiesTable).
		SetMap(map[string]interface{}{
			"title":        p.Title,
			"body":         p.Body,
			"is_published": p.IsPublished,
			"published_at": null.TimeFromPtr(p.PublishedAt),
			"updated_at":   p.UpdatedAt.UTC(),
		}).
		Where(sq.Eq{"tenant_id": p.TenantID, "id": p.ID}).
		Suffix(policyReturning).
		ToSql()
	if err != nil {
		return policy.Policy{}, errors.Wrap(err, "building query")
	}
	var row policyRow
	if err = repo.exec.GetContext(ctx, &row, q, args...); err != nil {
		return policy.Policy{}, trapNoRowsErr(err, policy.ErrNotFound, "updating policy")
	}
	return row.toPolicy(), nil
}

func (repo policyRepository) DeletePolicy(ctx context.Context, tenantID, id string) error {
	q, args, err := psql.Delete(policiesTable).Where(sq.Eq{"tenant_id": tenantID, "id": id}).ToSql()
	if err != nil {
		return errors.Wrap(err, "building query")
	}
	res, err := repo.exec.ExecContext(ctx, q, args...)
	if err != nil {
		return errors.Wrap(err, "deleting policy")
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return policy.ErrNotFound
	}
	return nil
}

func (repo policyRepository) LatestVersion(ctx context.Context, tenantID, kind string) (int, error) {
	q, args, err := psql.Select("COALESCE(MAX(version), 0)").
		From(policiesTable).
		Where(sq.Eq{"tenant_id": tenantID, "kind": kind}).
		ToSql()
	if err != nil {
		return 0, errors.Wrap(err, "building query")
	}
	var v int
	if err = repo.exec.GetContext(ctx, &v, q, args...); err != nil {
		return 0, errors.Wrap(err, "getting latest policy version")
	}
	return v, nil
}
