// Package registry tracks in-flight backend operations keyed by their
// transport handle.
package registry

import (
	"sync"

	"github.com/google/uuid"

	"account-mapper/internal/models"
)

// PendingRegistry is the collection of outstanding asynchronous calls. One
// registry serves all operation kinds; entries carry their own Kind tag.
// Correlation is strictly by handle identity: two concurrent operations may be
// indistinguishable by content alone.
type PendingRegistry struct {
	mu      sync.Mutex
	pending map[uuid.UUID]*models.PendingOperation
}

func NewPendingRegistry() *PendingRegistry {
	return &PendingRegistry{
		pending: make(map[uuid.UUID]*models.PendingOperation),
	}
}

// Register stores an operation under its handle. The handle must already be
// stamped on the operation.
func (r *PendingRegistry) Register(op *models.PendingOperation) {
	if op == nil || op.Handle == uuid.Nil {
		return
	}
	r.mu.Lock()
	r.pending[op.Handle] = op
	r.mu.Unlock()
}

// Complete atomically removes and returns the operation for a handle. A stray
// or duplicate completion finds nothing and returns false.
func (r *PendingRegistry) Complete(handle uuid.UUID) (*models.PendingOperation, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	op, ok := r.pending[handle]
	if !ok {
		return nil, false
	}
	delete(r.pending, handle)
	return op, true
}

// Len returns the number of outstanding operations
func (r *PendingRegistry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.pending)
}

// Handles returns the handles of all outstanding operations
func (r *PendingRegistry) Handles() []uuid.UUID {
	r.mu.Lock()
	defer r.mu.Unlock()
	handles := make([]uuid.UUID, 0, len(r.pending))
	for handle := range r.pending {
		handles = append(handles, handle)
	}
	return handles
}
