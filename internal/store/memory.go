// Package store tracks granted entitlements in memory. Records survive for
// the lifetime of the process: a released entitlement stays queryable so a
// later renew can be reported as a conflict instead of "not found".
package store

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/darmiel/entitled/internal/core"
)

var (
	// ErrNotFound means the identifier was never issued by Acquire.
	ErrNotFound = errors.New("entitlement not found")

	// ErrAlreadyReleased means the record is in its terminal state.
	ErrAlreadyReleased = errors.New("entitlement already released")
)

// EntitlementStore is a concurrency-safe registry of entitlement records.
// All methods are safe for concurrent use; each mutation appears atomic to
// concurrent readers.
type EntitlementStore struct {
	mu      sync.RWMutex
	records map[string]*core.EntitlementRecord
}

func NewEntitlementStore() *EntitlementStore {
	return &EntitlementStore{
		records: make(map[string]*core.EntitlementRecord),
	}
}

// Acquire creates a new Active record with a freshly generated identifier
// and expiry acquiredAt+duration. Identifiers are drawn from a random
// 128-bit space and never reused, so Acquire cannot conflict.
func (s *EntitlementStore) Acquire(
	properties core.TokenProperties,
	acquiredAt time.Time,
	duration time.Duration,
) (string, time.Time, error) {
	if duration <= 0 {
		return "", time.Time{}, fmt.Errorf("lease duration must be positive, got %s", duration)
	}

	id := uuid.NewString()
	expiry := acquiredAt.Add(duration)

	s.mu.Lock()
	defer s.mu.Unlock()

	s.records[id] = &core.EntitlementRecord{
		ID:         id,
		Properties: properties,
		AcquiredAt: acquiredAt,
		ExpiresAt:  expiry,
		State:      core.StateActive,
	}
	return id, expiry, nil
}

// Contains reports whether the identifier was ever issued, regardless of
// lifecycle state.
func (s *EntitlementStore) Contains(id string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()

	_, ok := s.records[id]
	return ok
}

// IsReleased reports whether the record is in its terminal state. False for
// unknown identifiers; call Contains first to tell "unknown" from "active".
func (s *EntitlementStore) IsReleased(id string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()

	record, ok := s.records[id]
	return ok && record.State == core.StateReleased
}

// Renew replaces the record's expiry with now+duration. Fails with
// ErrNotFound for unknown identifiers and ErrAlreadyReleased for released
// records; neither failure mutates anything.
func (s *EntitlementStore) Renew(id string, now time.Time, duration time.Duration) (time.Time, error) {
	if duration <= 0 {
		return time.Time{}, fmt.Errorf("lease duration must be positive, got %s", duration)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	record, ok := s.records[id]
	if !ok {
		return time.Time{}, fmt.Errorf("renewing %s: %w", id, ErrNotFound)
	}
	if record.State == core.StateReleased {
		return time.Time{}, fmt.Errorf("renewing %s: %w", id, ErrAlreadyReleased)
	}

	record.ExpiresAt = now.Add(duration)
	record.RenewedAt = append(record.RenewedAt, now)
	return record.ExpiresAt, nil
}

// Release transitions the record to its terminal state. Fails with
// ErrNotFound for unknown identifiers. Releasing an already-released record
// succeeds without effect.
func (s *EntitlementStore) Release(id string, now time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	record, ok := s.records[id]
	if !ok {
		return fmt.Errorf("releasing %s: %w", id, ErrNotFound)
	}
	if record.State == core.StateReleased {
		return nil
	}

	record.State = core.StateReleased
	record.ReleasedAt = &now
	return nil
}

// Get returns a snapshot copy of the record, if it exists.
func (s *EntitlementStore) Get(id string) (core.EntitlementRecord, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	record, ok := s.records[id]
	if !ok {
		return core.EntitlementRecord{}, false
	}
	return snapshot(record), true
}

// List returns snapshot copies of every record, Active and Released.
func (s *EntitlementStore) List() []core.EntitlementRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]core.EntitlementRecord, 0, len(s.records))
	for _, record := range s.records {
		out = append(out, snapshot(record))
	}
	return out
}

func snapshot(record *core.EntitlementRecord) core.EntitlementRecord {
	copied := *record
	if record.RenewedAt != nil {
		copied.RenewedAt = append([]time.Time(nil), record.RenewedAt...)
	}
	if record.ReleasedAt != nil {
		released := *record.ReleasedAt
		copied.ReleasedAt = &released
	}
	return copied
}
