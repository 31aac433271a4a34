package tenant

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/edapp/edapp/core"
	"github.com/edapp/edapp/core/user"
)

var (
	// errors
	ErrNotFound         = errors.New("tenant not found")
	ErrSlugExists       = errors.New("a tenant with this slug already exists")
	ErrBranchNotFound   = errors.New("branch not found")
	ErrBranchCodeExists = errors.New("a branch with this code already exists")
	ErrMainBranch       = errors.New("the main branch cannot be deleted")
)

type (
	Repository interface {
		CheckSlugUniqueness(ctx context.Context, slug string) error
		CreateTenant(ctx context.Context, t Tenant, exec ...core.DBExecutor) (Tenant, error)
		// QueryTenants applies AND operation on available QueryFilter fields.
		// QueryFilter.Search does a case-insensitive match on one of Tenant.Name or Tenant.Slug.
		QueryTenants(ctx context.Context, filter *QueryFilter, ordering []core.DBOrdering) ([]Tenant, error)
		GetTenant(ctx context.Context, filter GetFilter) (Tenant, error)
		UpdateTenant(ctx context.Context, t Tenant, exec ...core.DBExecutor) (Tenant, error)
		// QueryTenantsByUserEmail returns the tenants where an active user has `email`.
		QueryTenantsByUserEmail(ctx context.Context, email string) ([]Tenant, error)

		CreateBranch(ctx context.Context, b Branch, exec ...core.DBExecutor) (Branch, error)
		QueryBranches(ctx context.Context, tenantID string) ([]Branch, error)
		GetBranch(ctx context.Context, tenantID, id string) (Branch, error)
		UpdateBranch(ctx context.Context, b Branch, exec ...core.DBExecutor) (Branch, error)
		DeleteBranch(ctx context.Context, tenantID, id string) error
	}

	// Cache holds tenants by slug. Implementations swallow (and log) their own failures.
	Cache interface {
		Get(ctx context.Context, slug string) (Tenant, bool)
		Set(ctx context.Context, t Tenant)
		Delete(ctx context.Context, slug string)
	}

	GetFilter struct {
		ID   string
		Slug string
	}

	Service struct {
		db      core.DB
		repo    Repository
		usrRepo user.Repository
		cache   Cache
	}
)

type nopCache struct{}

func (nopCache) Get(context.Context, string) (Tenant, bool) { return Tenant{}, false }
func (nopCache) Set(context.Context, Tenant)                {}
func (nopCache) Delete(context.Context, string)             {}

// NewService returns a tenant Service. db may be nil with in-memory repositories.
func NewService(db core.DB, repo Repository, usrRepo user.Repository, cache Cache) *Service {
	if cache == nil {
		cache = nopCache{}
	}
	return &Service{db: db, repo: repo, usrRepo: usrRepo, cache: cache}
}

func (svc *Service) CheckSlugUniqueness(ctx context.Context, slug string) error {
	if err := svc.repo.CheckSlugUniqueness(ctx, slug); err != nil {
		if err == ErrSlugExists {
			return core.NewFieldValidationError("slug", err)
		}
		return err
	}
	return nil
}

// Create creates a Tenant with its main Branch and, optionally, its owner, in one transaction.
func (svc *Service) Create(ctx context.Context, nt NewTenant) (Tenant, error) {
	now := time.Now().UTC()
	t := Tenant{
		ID:           uuid.NewString(),
		Slug:         nt.Slug,
		Name:         nt.Name,
		Status:       StatusActive,
		LogoURL:      nt.LogoURL,
		PrimaryColor: nt.PrimaryColor,
		ContactEmail: nt.ContactEmail,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	err := core.RunInTx(ctx, svc.db, func(exec core.DBExecutor) error {
		var err error
		if t, err = svc.repo.CreateTenant(ctx, t, execs(exec)...); err != nil {
			return errors.Wrap(err, "creating tenant")
		}

		mainBranch := Branch{
			ID:        uuid.NewString(),
			TenantID:  t.ID,
			Name:      "Main Campus",
			Code:      MainBranchCode,
			IsMain:    true,
			CreatedAt: now,
			UpdatedAt: now,
		}
		if mainBranch, err = svc.repo.CreateBranch(ctx, mainBranch, execs(exec)...); err != nil {
			return errors.Wrap(err, "creating main branch")
		}

		if nt.Owner != nil {
			owner := *nt.Owner
			owner.Roles = []string{user.RoleAdminOwner}
			owner.BranchID = mainBranch.ID
			usr, err := user.NewTenantUser(t.ID, owner)
			if err != nil {
				return err
			}
			if _, err = svc.usrRepo.CreateUser(ctx, usr, execs(exec)...); err != nil {
				return errors.Wrap(err, "creating owner")
			}
		}
		return nil
	})
	if err != nil {
		return Tenant{}, err
	}
	return t, nil
}

func (svc *Service) Query(ctx context.Context, filter *QueryFilter, ordering []core.DBOrdering) ([]Tenant, error) {
	return svc.repo.QueryTenants(ctx, filter, ordering)
}

func (svc *Service) GetByID(ctx context.Context, id string) (Tenant, error) {
	if _, err := uuid.Parse(id); err != nil {
		return Tenant{}, ErrNotFound
	}
	return svc.repo.GetTenant(ctx, GetFilter{ID: id})
}

// GetBySlug looks the Tenant up through the cache. Deleted tenants are returned too.
func (svc *Service) GetBySlug(ctx context.Context, slug string) (Tenant, error) {
	slug = core.CleanString(slug, true /* lower */)
	if !ValidSlug(slug) {
		return Tenant{}, ErrNotFound
	}
	if t, ok := svc.cache.Get(ctx, slug); ok {
		return t, nil
	}

	t, err := svc.repo.GetTenant(ctx, GetFilter{Slug: slug})
	if err != nil {
		return Tenant{}, err
	}
	svc.cache.Set(ctx, t)
	return t, nil
}

func (svc *Service) Update(ctx context.Context, t Tenant, ut UpdateTenant) (Tenant, error) {
	if ut.Name != "" {
		t.Name = ut.Name
	}
	if ut.LogoURL != nil {
		t.LogoURL = core.CleanString(*ut.LogoURL)
	}
	if ut.PrimaryColor != nil {
		t.PrimaryColor = core.CleanString(*ut.PrimaryColor, true /* lower */)
	}
	if ut.ContactEmail != nil {
		t.ContactEmail = core.CleanString(*ut.ContactEmail, true /* lower */)
	}
	return svc.save(ctx, t)
}

func (svc *Service) SetStatus(ctx context.Context, t Tenant, status string) (Tenant, error) {
	t.Status = status
	return svc.save(ctx, t)
}

// Delete soft deletes `t`: its slug stays reserved.
func (svc *Service) Delete(ctx context.Context, t Tenant) (Tenant, error) {
	return svc.SetStatus(ctx, t, StatusDeleted)
}

func (svc *Service) save(ctx context.Context, t Tenant) (Tenant, error) {
	t.UpdatedAt = time.Now().UTC()
	t, err := svc.repo.UpdateTenant(ctx, t)
	if err != nil {
		return Tenant{}, err
	}
	svc.cache.Delete(ctx, t.Slug)
	return t, nil
}

// Discover returns the active tenants where an active account uses `email`.
func (svc *Service) Discover(ctx context.Context, email string) ([]Tenant, error) {
	tenants, err := svc.repo.QueryTenantsByUserEmail(ctx, core.CleanString(email, true /* lower */))
	if err != nil {
		return nil, err
	}
	active := make([]Tenant, 0, len(tenants))
	for _, t := range tenants {
		if t.IsActive() {
			active = append(active, t)
		}
	}
	return active, nil
}

// Branches

func (svc *Service) CreateBranch(ctx context.Context, tenantID string, nb NewBranch) (Branch, error) {
	now := time.Now().UTC()
	b := Branch{
		ID:        uuid.NewString(),
		TenantID:  tenantID,
		Name:      nb.Name,
		Code:      nb.Code,
		Address:   nb.Address,
		Phone:     nb.Phone,
		CreatedAt: now,
		UpdatedAt: now,
	}
	b, err := svc.repo.CreateBranch(ctx, b)
	if err == ErrBranchCodeExists {
		return Branch{}, core.NewFieldValidationError("code", err)
	}
	return b, err
}

func (svc *Service) QueryBranches(ctx context.Context, tenantID string) ([]Branch, error) {
	return svc.repo.QueryBranches(ctx, tenantID)
}

func (svc *Service) GetBranch(ctx context.Context, tenantID, id string) (Branch, error) {
	if _, err := uuid.Parse(id); err != nil {
		return Branch{}, ErrBranchNotFound
	}
	return svc.repo.GetBranch(ctx, tenantID, id)
}

// UpdateBranch updates `b`; promoting it to main demotes the current main branch.
func (svc *Service) UpdateBranch(ctx context.Context, b Branch, ub UpdateBranch) (Branch, error) {
	if ub.Name != "" {
		b.Name = ub.Name
	}
	if ub.Address != nil {
		b.Address = core.CleanString(*ub.Address)
	}
	if ub.Phone != nil {
		b.Phone = core.CleanString(*ub.Phone)
	}
	now := time.Now().UTC()
	b.UpdatedAt = now

	if !ub.IsMain || b.IsMain {
		return svc.repo.UpdateBranch(ctx, b)
	}

	branches, err := svc.repo.QueryBranches(ctx, b.TenantID)
	if err != nil {
		return Branch{}, errors.Wrap(err, "querying branches")
	}
	err = core.RunInTx(ctx, svc.db, func(exec core.DBExecutor) error {
		for _, other := range branches {
			if other.IsMain && other.ID != b.ID {
				other.IsMain = false
				other.UpdatedAt = now
				if _, err := svc.repo.UpdateBranch(ctx, other, execs(exec)...); err != nil {
					return errors.Wrap(err, "demoting main branch")
				}
			}
		}
		b.IsMain = true
		var err error
		b, err = svc.repo.UpdateBranch(ctx, b, execs(exec)...)
		return errors.Wrap(err, "promoting branch")
	})
	if err != nil {
		return Branch{}, err
	}
	return b, nil
}

func (svc *Service) DeleteBranch(ctx context.Context, b Branch) error {
	if b.IsMain {
		return core.NewValidationError(ErrMainBranch)
	}
	return svc.repo.DeleteBranch(ctx, b.TenantID, b.ID)
}

// execs turns an optional transaction executor into repository args.
func execs(exec core.DBExecutor) []core.DBExecutor {
	if exec == nil {
		return nil
	}
	return []core.DBExecutor{exec}
}
