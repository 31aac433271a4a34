package inmemdb

import (
	"context"

	"github.com/edapp/edapp/core/access"
)

type accessRepository struct {
	db *DB
}

var _ access.Repository = (*accessRepository)(nil) // interface compliance check

func NewAccessRepository(db *DB) *accessRepository {
	return &accessRepository{db: db}
}

func (repo *accessRepository) QueryRoleCapabilities(_ context.Context, tenantID string) (map[string][]string, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	caps := make(map[string][]string, len(repo.db.roleCapabilities[tenantID]))
	for role, roleCaps := range repo.db.roleCapabilities[tenantID] {
		caps[role] = append([]string{}, roleCaps...)
	}
	return caps, nil
}

func (repo *accessRepository) SetRoleCapabilities(_ context.Context, tenantID, role string, caps []string) error {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	if len(caps) == 0 {
		delete(repo.db.roleCapabilities[tenantID], role)
		return nil
	}
	if repo.db.roleCapabilities[tenantID] == nil {
		repo.db.roleCapabilities[tenantID] = make(map[string][]string)
	}
	repo.db.roleCapabilities[tenantID][role] = append([]string{}, caps...)
	return nil
}
