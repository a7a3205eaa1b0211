package location

import (
	"context"
	"sync"

	"github.com/example/courier-dispatch/internal/models"
)

// Store persists the latest known position per rider. Latest-wins, no
// history: reports carry no sequence number, so concurrent writes for one
// rider land in whatever order the backing store settles on.
type Store interface {
	Upsert(ctx context.Context, loc models.RiderLocation) error
	// Latest returns the stored position and whether one exists.
	Latest(ctx context.Context, riderID string) (models.RiderLocation, bool, error)
}

// MemoryStore is the fallback Store when REDIS_ADDR is unset, and the one
// the tests use.
type MemoryStore struct {
	mu   sync.RWMutex
	locs map[string]models.RiderLocation
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{locs: make(map[string]models.RiderLocation)}
}

func (m *MemoryStore) Upsert(ctx context.Context, loc models.RiderLocation) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.locs[loc.RiderID] = loc
	return nil
}

func (m *MemoryStore) Latest(ctx context.Context, riderID string) (models.RiderLocation, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	loc, ok := m.locs[riderID]
	return loc, ok, nil
}
