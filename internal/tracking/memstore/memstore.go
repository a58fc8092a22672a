// Package memstore provides an in-memory implementation of tracking.Store.
package memstore

import (
	"context"
	"sort"
	"sync"

	"github.com/linnemanlabs/wbtrack/internal/tracking"
)

// Store holds owner records in memory. Suitable for dev/testing.
type Store struct {
	mu      sync.RWMutex
	records map[tracking.OwnerID]*tracking.Record
	saves   int
}

// New initializes a new in-memory Store.
func New() *Store {
	return &Store{
		records: make(map[tracking.OwnerID]*tracking.Record),
	}
}

// Load retrieves an owner's record. Returns a copy.
func (s *Store) Load(_ context.Context, owner tracking.OwnerID) (*tracking.Record, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.records[owner]
	if !ok {
		return nil, false, nil
	}
	return r.Clone(), true, nil
}

// Save stores a copy of the owner's record, replacing any previous one.
func (s *Store) Save(_ context.Context, owner tracking.OwnerID, rec *tracking.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records[owner] = rec.Clone()
	s.saves++
	return nil
}

// Owners lists every stored owner in sorted order.
func (s *Store) Owners(_ context.Context) ([]tracking.OwnerID, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]tracking.OwnerID, 0, len(s.records))
	for id := range s.records {
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out, nil
}

// Saves returns how many times Save was called.
func (s *Store) Saves() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.saves
}
