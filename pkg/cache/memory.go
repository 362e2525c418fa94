package cache

import (
	"context"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"fleetdispatch/pkg/clock"
	"fleetdispatch/pkg/models"
)

// MemoryPositions is a single-process Position Cache with the same expiry
// semantics as Positions.
type MemoryPositions struct {
	clock clock.Clock

	mu      sync.RWMutex
	entries map[string]memoryEntry

	counters sync.Map // vehicleID -> *atomic.Int64
}

type memoryEntry struct {
	sample    models.PositionSample
	expiresAt time.Time
}

func NewMemoryPositions(c clock.Clock) *MemoryPositions {
	return &MemoryPositions{clock: c, entries: make(map[string]memoryEntry)}
}

func (m *MemoryPositions) Get(_ context.Context, vehicleID string) (models.PositionSample, bool, error) {
	m.mu.RLock()
	e, ok := m.entries[vehicleID]
	m.mu.RUnlock()
	if !ok || !m.clock.Now().Before(e.expiresAt) {
		return models.PositionSample{}, false, nil
	}
	return e.sample, true, nil
}

func (m *MemoryPositions) Set(_ context.Context, s models.PositionSample, ttl time.Duration) error {
	m.mu.Lock()
	m.entries[s.VehicleID] = memoryEntry{sample: s, expiresAt: m.clock.Now().Add(ttl)}
	m.mu.Unlock()
	return nil
}

func (m *MemoryPositions) List(_ context.Context) ([]models.PositionSample, error) {
	now := m.clock.Now()

	m.mu.Lock()
	out := make([]models.PositionSample, 0, len(m.entries))
	for id, e := range m.entries {
		if !now.Before(e.expiresAt) {
			delete(m.entries, id)
			continue
		}
		out = append(out, e.sample)
	}
	m.mu.Unlock()

	sort.Slice(out, func(i, j int) bool { return out[i].VehicleID < out[j].VehicleID })
	return out, nil
}

func (m *MemoryPositions) Incr(_ context.Context, vehicleID string) (int64, error) {
	v, _ := m.counters.LoadOrStore(vehicleID, new(atomic.Int64))
	return v.(*atomic.Int64).Add(1), nil
}
