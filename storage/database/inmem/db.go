// Package inmemdb implements the repositories in memory (DEV & tests).
package inmemdb

import (
	"sync"

	"github.com/edapp/edapp/core/policy"
	"github.com/edapp/edapp/core/tenant"
	"github.com/edapp/edapp/core/user"
)

// DB holds every table. A single lock keeps cross-table reads consistent.
type DB struct {
	mu sync.RWMutex

	users            map[string]user.User           // {id: User}
	tenants          map[string]tenant.Tenant       // {id: Tenant}
	branches         map[string]tenant.Branch       // {id: Branch}
	policies         map[string]policy.Policy       // {id: Policy}
	roleCapabilities map[string]map[string][]string // {tenantID: {role: caps}}
}

func NewDB() *DB {
	return &DB{
		users:            make(map[string]user.User),
		tenants:          make(map[string]tenant.Tenant),
		branches:         make(map[string]tenant.Branch),
		policies:         make(map[string]policy.Policy),
		roleCapabilities: make(map[string]map[string][]string),
	}
}

// Reset empties every table.
func (db *DB) Reset() {
	db.mu.Lock()
	defer db.mu.Unlock()
	db.users = make(map[string]user.User)
	db.tenants = make(map[string]tenant.Tenant)
	db.branches = make(map[string]tenant.Branch)
	db.policies = make(map[string]policy.Policy)
	db.roleCapabilities = make(map[string]map[string][]string)
}
