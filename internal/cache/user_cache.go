// Package cache holds the deduplicated set of known user-status records.
package cache

import (
	"sync"

	"account-mapper/internal/models"
)

// UserStatusCache is keyed by account id with at most one record per id. A
// map gives O(1) existence checks; the id slice preserves insertion order for
// All, matching the append-only behavior callers rely on.
type UserStatusCache struct {
	mu      sync.RWMutex
	byID    map[string]models.UserStatus
	ordered []string
}

func NewUserStatusCache() *UserStatusCache {
	return &UserStatusCache{
		byID: make(map[string]models.UserStatus),
	}
}

// UpsertIfAbsent inserts a record only when its account id is not already
// present. Returns true when the record was inserted.
func (c *UserStatusCache) UpsertIfAbsent(status models.UserStatus) bool {
	if status.AccountID == "" {
		return false
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, exists := c.byID[status.AccountID]; exists {
		return false
	}
	c.byID[status.AccountID] = status
	c.ordered = append(c.ordered, status.AccountID)
	return true
}

// Upsert inserts or overwrites the record for an account id. An overwrite
// keeps the id's original position in the insertion order.
func (c *UserStatusCache) Upsert(status models.UserStatus) {
	if status.AccountID == "" {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, exists := c.byID[status.AccountID]; !exists {
		c.ordered = append(c.ordered, status.AccountID)
	}
	c.byID[status.AccountID] = status
}

// Contains reports whether an account id is cached
func (c *UserStatusCache) Contains(accountID string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	_, ok := c.byID[accountID]
	return ok
}

// Get returns the cached record for an account id
func (c *UserStatusCache) Get(accountID string) (models.UserStatus, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	status, ok := c.byID[accountID]
	return status, ok
}

// All returns a snapshot copy of every record in insertion order. The caller
// may retain the slice.
func (c *UserStatusCache) All() []models.UserStatus {
	c.mu.RLock()
	defer c.mu.RUnlock()
	snapshot := make([]models.UserStatus, 0, len(c.ordered))
	for _, id := range c.ordered {
		snapshot = append(snapshot, c.byID[id])
	}
	return snapshot
}

// Len returns the number of cached records
func (c *UserStatusCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.byID)
}

// Remove drops an account id from the cache. Only the prune-on-delete path
// uses this; nothing else ever evicts.
func (c *UserStatusCache) Remove(accountID string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.byID[accountID]; !ok {
		return false
	}
	delete(c.byID, accountID)
	for i, id := range c.ordered {
		if id == accountID {
			c.ordered = append(c.ordered[:i], c.ordered[i+1:]...)
			break
		}
	}
	return true
}
