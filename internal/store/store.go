// Package store holds the canonical in-memory reservation set for the
// active tenant.
package store

import (
	"sync"

	"github.com/applegrimm/reservesync/internal/fingerprint"
	"github.com/applegrimm/reservesync/internal/models"
)

// Patch is the optimistic mutation shape. Nil fields are untouched.
type Patch struct {
	Completed *bool
	Memo      *string
	Staff     *string
}

type Store struct {
	mu    sync.RWMutex
	items []models.Reservation
	fp    string
}

func New() *Store {
	return &Store{fp: fingerprint.Sum(nil)}
}

// ReplaceAll atomically swaps the full set, used after a
// confirmed-changed fetch. The input is copied.
func (s *Store) ReplaceAll(list []models.Reservation) {
	cp := make([]models.Reservation, len(list))
	copy(cp, list)

	s.mu.Lock()
	s.items = cp
	s.fp = fingerprint.Sum(cp)
	s.mu.Unlock()
}

// Snapshot returns a copy of the current set.
func (s *Store) Snapshot() []models.Reservation {
	s.mu.RLock()
	defer s.mu.RUnlock()
	cp := make([]models.Reservation, len(s.items))
	copy(cp, s.items)
	return cp
}

func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.items)
}

// Fingerprint of the currently held set, compared against fresh fetches.
func (s *Store) Fingerprint() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.fp
}

func (s *Store) FindByRowID(rowID int) (models.Reservation, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, r := range s.items {
		if r.RowID == rowID {
			return r, true
		}
	}
	return models.Reservation{}, false
}

// ApplyOptimistic mutates the matching reservation in place and reports
// whether a row matched. An unknown rowID is a no-op, not an error: the
// row may belong to a filtered-out or stale view.
func (s *Store) ApplyOptimistic(rowID int, p Patch) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.items {
		if s.items[i].RowID != rowID {
			continue
		}
		if p.Completed != nil {
			s.items[i].IsCompleted = *p.Completed
		}
		if p.Memo != nil {
			s.items[i].Memo = *p.Memo
		}
		if p.Staff != nil {
			s.items[i].HandoverStaff = *p.Staff
		}
		s.fp = fingerprint.Sum(s.items)
		return true
	}
	return false
}

// RowsOfOrder returns the rowIDs sharing the order of the given row, in
// current set order. Used for group-wide completion toggles.
func (s *Store) RowsOfOrder(orderID string) []int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var rows []int
	for _, r := range s.items {
		if r.OrderID == orderID {
			rows = append(rows, r.RowID)
		}
	}
	return rows
}
