package inmemdb

import (
	"context"
	"sort"

	"github.com/google/uuid"

	"github.com/edapp/edapp/core"
	"github.com/edapp/edapp/core/policy"
)

type policyRepository struct {
	db *DB
}

var _ policy.Repository = (*policyRepository)(nil) // interface compliance check

func NewPolicyRepository(db *DB) *policyRepository {
	return &policyRepository{db: db}
}

func (repo *policyRepository) CreatePolicy(_ context.Context, p policy.Policy) (policy.Policy, error) {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	for _, other := range repo.db.policies {
		if other.TenantID == p.TenantID && other.Kind == p.Kind && other.Version == p.Version {
			return policy.Policy{}, core.NewValidationError(policy.ErrVersionConflict)
		}
	}
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	repo.db.policies[p.ID] = p
	return p, nil
}

func (repo *policyRepository) QueryPolicies(_ context.Context, filter policy.QueryFilter) ([]policy.Policy, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	policies := make([]policy.Policy, 0)
	for _, p := range repo.db.policies {
		if p.TenantID != filter.TenantID ||
			(filter.Kind != "" && p.Kind != filter.Kind) ||
			(filter.PublishedOnly && !p.IsPublished) {
			continue
		}
		policies = append(policies, p)
	}
	sort.Slice(policies, func(i, j int) bool {
		if policies[i].Kind != policies[j].Kind {
			return policies[i].Kind < policies[j].Kind
		}
		return policies[i].Version > policies[j].Version
	})
	return policies, nil
}

func (repo *policyRepository) GetPolicy(_ context.Context, tenantID, id string) (policy.Policy, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	if p, ok := repo.db.policies[id]; ok && p.TenantID == tenantID {
		return p, nil
	}
	return policy.Policy{}, policy.ErrNotFound
}

func (repo *policyRepository) UpdatePolicy(_ context.Context, p policy.Policy) (policy.Policy, error) {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	orig, ok := repo.db.policies[p.ID]
	if !ok || orig.TenantID != p.TenantID {
		return policy.Policy{}, policy.ErrNotFound
	}
	p.Kind = orig.Kind
	p.Version = orig.Version
	p.CreatedAt = orig.CreatedAt
	repo.db.policies[p.ID] = p
	return p, nil
}

func (repo *policyRepository) DeletePolicy(_ context.Context, tenantID, id string) error {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	if p, ok := repo.db.policies[id]; !ok || p.TenantID != tenantID {
		return policy.ErrNotFound
	}
	delete(repo.db.policies, id)
	return nil
}

func (repo *policyRepository) LatestVersion(_ context.Context, tenantID, kind string) (int, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	var latest int
	for _, p := range repo.db.policies {
		if p.TenantID == tenantID && p.Kind == kind && p.Version > latest {
			latest = p.Version
		}
	}
	return latest, nil
}
