// Package readings holds enriched sensor readings in memory, in arrival order.
package readings

import (
	"sync"
	"time"

	"smartair-guardian/internal/features"
	"smartair-guardian/internal/ml"
)

// Reading is one sensor sample as received.
type Reading struct {
	ID       string `json:"id"`
	SensorID string `json:"sensor_id"`
	features.Vector
	Timestamp time.Time `json:"timestamp"`
}

// Enriched is a reading with the model outputs attached.
type Enriched struct {
	Reading
	ml.Prediction
}

// Store is an append-only log of enriched readings. A positive capacity bounds the log;
// once full, each Add drops the oldest reading.
type Store struct {
	mu       sync.RWMutex
	items    []Enriched
	capacity int
}

// New creates a store. capacity <= 0 means unbounded.
func New(capacity int) *Store {
	if capacity < 0 {
		capacity = 0
	}
	return &Store{capacity: capacity}
}

// Add appends r and returns the number of readings held afterwards.
func (s *Store) Add(r Enriched) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.items = append(s.items, r)
	if s.capacity > 0 && len(s.items) > s.capacity {
		s.items = s.items[len(s.items)-s.capacity:]
	}
	return len(s.items)
}

// Latest returns up to limit most recent readings, oldest first.
func (s *Store) Latest(limit int) []Enriched {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if limit <= 0 {
		return []Enriched{}
	}
	start := len(s.items) - limit
	if start < 0 {
		start = 0
	}
	return append([]Enriched{}, s.items[start:]...)
}

// Count returns the number of readings held.
func (s *Store) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.items)
}
