// Package memory provides in-memory store implementations for development
// and testing.
package memory

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/daechan-jo/auto-store-services-onch/internal/onch"
)

// ErrNotFound is returned when no record matches a product code.
var ErrNotFound = errors.New("product not found")

// ProductStore keeps catalog rows in process memory.
type ProductStore struct {
	mu       sync.RWMutex
	products map[string]onch.ProductRecord
	batches  [][]onch.ProductRecord
	lastRuns map[string]time.Time
}

// NewProductStore constructs a ProductStore.
func NewProductStore() *ProductStore {
	return &ProductStore{
		products: make(map[string]onch.ProductRecord),
		lastRuns: make(map[string]time.Time),
	}
}

// SaveRecords upserts a batch keyed by product code.
func (s *ProductStore) SaveRecords(_ context.Context, batch []onch.ProductRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	copied := make([]onch.ProductRecord, len(batch))
	copy(copied, batch)
	s.batches = append(s.batches, copied)
	for _, rec := range batch {
		s.products[rec.ProductCode] = rec
	}
	return nil
}

// ClearAll wipes the catalog.
func (s *ProductStore) ClearAll(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.products = make(map[string]onch.ProductRecord)
	s.batches = nil
	return nil
}

// GetByCode fetches one record.
func (s *ProductStore) GetByCode(_ context.Context, code string) (onch.ProductRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.products[code]
	if !ok {
		return onch.ProductRecord{}, ErrNotFound
	}
	return rec, nil
}

// LastRun returns the stored last-run timestamp, zero when unset.
func (s *ProductStore) LastRun(_ context.Context, task string) (time.Time, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastRuns[task], nil
}

// SetLastRun stores the last-run timestamp for a task.
func (s *ProductStore) SetLastRun(_ context.Context, task string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastRuns[task] = at
	return nil
}

// Batches returns every SaveRecords call in order (for tests).
func (s *ProductStore) Batches() [][]onch.ProductRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([][]onch.ProductRecord, len(s.batches))
	copy(out, s.batches)
	return out
}

// Len returns the number of distinct stored products.
func (s *ProductStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.products)
}
