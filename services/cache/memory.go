// Package cachesvc implements the tenant cache and the handoff code store,
// on Redis or in process memory.
package cachesvc

import (
	"context"
	"sync"
	"time"

	"github.com/edapp/edapp/core/handoff"
	"github.com/edapp/edapp/core/tenant"
)

var nowFunc = time.Now // mockable

type entry struct {
	value     interface{}
	expiresAt time.Time
}

func (e entry) expired() bool {
	return !nowFunc().Before(e.expiresAt)
}

type memStore struct {
	mutex   sync.Mutex
	entries map[string]entry
}

func newMemStore() *memStore {
	return &memStore{entries: make(map[string]entry)}
}

func (s *memStore) get(key string, remove bool) (interface{}, bool) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	e, ok := s.entries[key]
	if !ok {
		return nil, false
	}
	if remove || e.expired() {
		delete(s.entries, key)
	}
	if e.expired() {
		return nil, false
	}
	return e.value, true
}

func (s *memStore) set(key string, val interface{}, ttl time.Duration, onlyNew bool) bool {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	if e, ok := s.entries[key]; ok && onlyNew && !e.expired() {
		return false
	}
	s.entries[key] = entry{value: val, expiresAt: nowFunc().Add(ttl)}
	return true
}

func (s *memStore) delete(key string) {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	delete(s.entries, key)
}

// MemoryTenantCache is a process local tenant.Cache.
type MemoryTenantCache struct {
	store *memStore
	ttl   time.Duration
}

var _ tenant.Cache = (*MemoryTenantCache)(nil)

func NewMemoryTenantCache(ttl time.Duration) *MemoryTenantCache {
	return &MemoryTenantCache{store: newMemStore(), ttl: ttl}
}

func (c *MemoryTenantCache) Get(_ context.Context, slug string) (tenant.Tenant, bool) {
	if val, ok := c.store.get(slug, false); ok {
		return val.(tenant.Tenant), true
	}
	return tenant.Tenant{}, false
}

func (c *MemoryTenantCache) Set(_ context.Context, t tenant.Tenant) {
	c.store.set(t.Slug, t, c.ttl, false)
}

func (c *MemoryTenantCache) Delete(_ context.Context, slug string) {
	c.store.delete(slug)
}

// MemoryHandoffStore is a process local handoff.Store.
type MemoryHandoffStore struct {
	store *memStore
}

var _ handoff.Store = (*MemoryHandoffStore)(nil)

func NewMemoryHandoffStore() *MemoryHandoffStore {
	return &MemoryHandoffStore{store: newMemStore()}
}

func (s *MemoryHandoffStore) Put(_ context.Context, code string, g handoff.Grant, ttl time.Duration) error {
	if !s.store.set(code, g, ttl, true) {
		return errCodeCollision
	}
	return nil
}

func (s *MemoryHandoffStore) Peek(_ context.Context, code string) (handoff.Grant, error) {
	if val, ok := s.store.get(code, false); ok {
		return val.(handoff.Grant), nil
	}
	return handoff.Grant{}, handoff.ErrInvalidCode
}

func (s *MemoryHandoffStore) Take(_ context.Context, code string) (handoff.Grant, error) {
	if val, ok := s.store.get(code, true); ok {
		return val.(handoff.Grant), nil
	}
	return handoff.Grant{}, handoff.ErrInvalidCode
}
