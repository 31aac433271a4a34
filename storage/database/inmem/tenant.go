package inmemdb

import (
	"context"
	"sort"
	"strings"

	"github.com/google/uuid"

	"github.com/edapp/edapp/core"
	"github.com/edapp/edapp/core/tenant"
)

type tenantRepository struct {
	db *DB
}

var _ tenant.Repository = (*tenantRepository)(nil) // interface compliance check

func NewTenantRepository(db *DB) *tenantRepository {
	return &tenantRepository{db: db}
}

func (repo *tenantRepository) slugExists(slug string) bool {
	for _, t := range repo.db.tenants {
		if t.Slug == slug {
			return true
		}
	}
	return false
}

func (repo *tenantRepository) CheckSlugUniqueness(_ context.Context, slug string) error {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()
	if repo.slugExists(slug) {
		return tenant.ErrSlugExists
	}
	return nil
}

func (repo *tenantRepository) CreateTenant(_ context.Context, t tenant.Tenant, _ ...core.DBExecutor) (tenant.Tenant, error) {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	if repo.slugExists(t.Slug) {
		return tenant.Tenant{}, tenant.ErrSlugExists
	}
	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	repo.db.tenants[t.ID] = t
	return t, nil
}

func (repo *tenantRepository) QueryTenants(_ context.Context, filter *tenant.QueryFilter, ordering []core.DBOrdering) ([]tenant.Tenant, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	tenants := make([]tenant.Tenant, 0)
	for _, t := range repo.db.tenants {
		if filter != nil {
			if filter.Status != "" && t.Status != filter.Status {
				continue
			}
			if s := strings.ToLower(filter.Search); s != "" &&
				!strings.Contains(strings.ToLower(t.Name), s) && !strings.Contains(t.Slug, s) {
				continue
			}
		}
		tenants = append(tenants, t)
	}
	sortTenants(tenants, ordering)
	return tenants, nil
}

func sortTenants(tenants []tenant.Tenant, ordering []core.DBOrdering) {
	if len(ordering) == 0 {
		ordering = []core.DBOrdering{{Field: "name", Ascending: true}}
	}
	sort.SliceStable(tenants, func(i, j int) bool {
		for _, ord := range ordering {
			var cmp int
			switch ord.Field {
			case "name":
				cmp = strings.Compare(tenants[i].Name, tenants[j].Name)
			case "slug":
				cmp = strings.Compare(tenants[i].Slug, tenants[j].Slug)
			case "status":
				cmp = strings.Compare(tenants[i].Status, tenants[j].Status)
			case "created_at":
				cmp = tenants[i].CreatedAt.Compare(tenants[j].CreatedAt)
			}
			if cmp != 0 {
				return (cmp < 0) == ord.Ascending
			}
		}
		return false
	})
}

func (repo *tenantRepository) GetTenant(_ context.Context, filter tenant.GetFilter) (tenant.Tenant, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	if filter.ID != "" {
		if t, ok := repo.db.tenants[filter.ID]; ok {
			return t, nil
		}
		return tenant.Tenant{}, tenant.ErrNotFound
	}
	if filter.Slug != "" {
		for _, t := range repo.db.tenants {
			if t.Slug == filter.Slug {
				return t, nil
			}
		}
	}
	return tenant.Tenant{}, tenant.ErrNotFound
}

func (repo *tenantRepository) UpdateTenant(_ context.Context, t tenant.Tenant, _ ...core.DBExecutor) (tenant.Tenant, error) {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	orig, ok := repo.db.tenants[t.ID]
	if !ok {
		return tenant.Tenant{}, tenant.ErrNotFound
	}
	t.Slug = orig.Slug
	t.CreatedAt = orig.CreatedAt
	repo.db.tenants[t.ID] = t
	return t, nil
}

func (repo *tenantRepository) QueryTenantsByUserEmail(_ context.Context, email string) ([]tenant.Tenant, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	tenants := make([]tenant.Tenant, 0)
	seen := make(map[string]bool)
	for _, usr := range repo.db.users {
		if usr.Email != email || !usr.IsActive || usr.TenantID == "" || seen[usr.TenantID] {
			continue
		}
		if t, ok := repo.db.tenants[usr.TenantID]; ok {
			seen[t.ID] = true
			tenants = append(tenants, t)
		}
	}
	sortTenants(tenants, nil)
	return tenants, nil
}

// Branches

func (repo *tenantRepository) CreateBranch(_ context.Context, b tenant.Branch, _ ...core.DBExecutor) (tenant.Branch, error) {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	for _, other := range repo.db.branches {
		if other.TenantID == b.TenantID && other.Code == b.Code {
			return tenant.Branch{}, tenant.ErrBranchCodeExists
		}
	}
	if b.ID == "" {
		b.ID = uuid.NewString()
	}
	repo.db.branches[b.ID] = b
	return b, nil
}

func (repo *tenantRepository) QueryBranches(_ context.Context, tenantID string) ([]tenant.Branch, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	branches := make([]tenant.Branch, 0)
	for _, b := range repo.db.branches {
		if b.TenantID == tenantID {
			branches = append(branches, b)
		}
	}
	sort.Slice(branches, func(i, j int) bool {
		if branches[i].IsMain != branches[j].IsMain {
			return branches[i].IsMain
		}
		return branches[i].Name < branches[j].Name
	})
	return branches, nil
}

func (repo *tenantRepository) GetBranch(_ context.Context, tenantID, id string) (tenant.Branch, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	if b, ok := repo.db.branches[id]; ok && b.TenantID == tenantID {
		return b, nil
	}
	return tenant.Branch{}, tenant.ErrBranchNotFound
}

func (repo *tenantRepository) UpdateBranch(_ context.Context, b tenant.Branch, _ ...core.DBExecutor) (tenant.Branch, error) {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	orig, ok := repo.db.branches[b.ID]
	if !ok || orig.TenantID != b.TenantID {
		return tenant.Branch{}, tenant.ErrBranchNotFound
	}
	b.Code = orig.Code
	b.CreatedAt = orig.CreatedAt
	repo.db.branches[b.ID] = b
	return b, nil
}

func (repo *tenantRepository) DeleteBranch(_ context.Context, tenantID, id string) error {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	b, ok := repo.db.branches[id]
	if !ok || b.TenantID != tenantID {
		return tenant.ErrBranchNotFound
	}
	delete(repo.db.branches, id)
	for uid, usr := range repo.db.users {
		if usr.BranchID == id {
			usr.BranchID = ""
			repo.db.users[uid] = usr
		}
	}
	return nil
}
