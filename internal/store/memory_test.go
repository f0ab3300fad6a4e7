package store

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/darmiel/entitled/internal/core"
)

var testProperties = core.TokenProperties{
	ApplicationID: "contosoHR",
	NotAfter:      time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
}

func TestEntitlementStore_Acquire(t *testing.T) {
	s := NewEntitlementStore()
	now := time.Now().UTC()

	id, expiry, err := s.Acquire(testProperties, now, time.Hour)
	if err != nil {
		t.Fatalf("Acquire() error = %v", err)
	}
	if id == "" {
		t.Fatal("Acquire() returned an empty identifier")
	}
	if want := now.Add(time.Hour); !expiry.Equal(want) {
		t.Errorf("expiry = %s, want %s", expiry, want)
	}

	if !s.Contains(id) {
		t.Error("Contains() = false for a freshly acquired id")
	}
	if s.IsReleased(id) {
		t.Error("IsReleased() = true for a freshly acquired id")
	}

	record, ok := s.Get(id)
	if !ok {
		t.Fatal("Get() did not find the record")
	}
	if record.State != core.StateActive {
		t.Errorf("state = %s, want %s", record.State, core.StateActive)
	}
	if !record.AcquiredAt.Equal(now) {
		t.Errorf("acquired at = %s, want %s", record.AcquiredAt, now)
	}
}

func TestEntitlementStore_AcquireRejectsNonPositiveDuration(t *testing.T) {
	s := NewEntitlementStore()
	if _, _, err := s.Acquire(testProperties, time.Now(), 0); err == nil {
		t.Error("Acquire() with zero duration should fail")
	}
	if _, _, err := s.Acquire(testProperties, time.Now(), -time.Minute); err == nil {
		t.Error("Acquire() with negative duration should fail")
	}
}

func TestEntitlementStore_Renew(t *testing.T) {
	s := NewEntitlementStore()
	now := time.Now().UTC()

	id, firstExpiry, err := s.Acquire(testProperties, now, time.Hour)
	if err != nil {
		t.Fatalf("Acquire() error = %v", err)
	}

	// renewal replaces the expiry based on the renewal instant, it does
	// not extend the previous one
	renewedAt := now.Add(30 * time.Minute)
	expiry, err := s.Renew(id, renewedAt, 2*time.Hour)
	if err != nil {
		t.Fatalf("Renew() error = %v", err)
	}
	if want := renewedAt.Add(2 * time.Hour); !expiry.Equal(want) {
		t.Errorf("expiry = %s, want %s", expiry, want)
	}
	if !expiry.After(firstExpiry) {
		t.Errorf("renewed expiry %s should be after initial expiry %s", expiry, firstExpiry)
	}

	record, _ := s.Get(id)
	if len(record.RenewedAt) != 1 || !record.RenewedAt[0].Equal(renewedAt) {
		t.Errorf("renewal times = %v, want exactly [%s]", record.RenewedAt, renewedAt)
	}
}

func TestEntitlementStore_RenewUnknown(t *testing.T) {
	s := NewEntitlementStore()

	_, err := s.Renew("never-issued", time.Now(), time.Hour)
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("Renew() on unknown id: got %v, want ErrNotFound", err)
	}
}

func TestEntitlementStore_RenewAfterRelease(t *testing.T) {
	s := NewEntitlementStore()
	now := time.Now().UTC()

	id, _, err := s.Acquire(testProperties, now, time.Hour)
	if err != nil {
		t.Fatalf("Acquire() error = %v", err)
	}
	if err := s.Release(id, now); err != nil {
		t.Fatalf("Release() error = %v", err)
	}

	before, _ := s.Get(id)
	_, err = s.Renew(id, now.Add(time.Minute), time.Hour)
	if !errors.Is(err, ErrAlreadyReleased) {
		t.Errorf("Renew() after release: got %v, want ErrAlreadyReleased", err)
	}

	// the failed renew must not have mutated the record
	after, _ := s.Get(id)
	if !after.ExpiresAt.Equal(before.ExpiresAt) || len(after.RenewedAt) != len(before.RenewedAt) {
		t.Error("failed Renew() mutated the record")
	}
}

func TestEntitlementStore_Release(t *testing.T) {
	s := NewEntitlementStore()
	now := time.Now().UTC()

	id, _, err := s.Acquire(testProperties, now, time.Hour)
	if err != nil {
		t.Fatalf("Acquire() error = %v", err)
	}

	if err := s.Release(id, now); err != nil {
		t.Fatalf("Release() error = %v", err)
	}
	if !s.IsReleased(id) {
		t.Error("IsReleased() = false after Release()")
	}
	if !s.Contains(id) {
		t.Error("Contains() = false after Release(); released records must stay known")
	}

	// double release is an idempotent success
	if err := s.Release(id, now.Add(time.Minute)); err != nil {
		t.Errorf("second Release() error = %v, want nil", err)
	}

	record, _ := s.Get(id)
	if record.ReleasedAt == nil || !record.ReleasedAt.Equal(now) {
		t.Error("second Release() must not move the release instant")
	}
}

func TestEntitlementStore_ReleaseUnknown(t *testing.T) {
	s := NewEntitlementStore()

	err := s.Release("never-issued", time.Now())
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("Release() on unknown id: got %v, want ErrNotFound", err)
	}
}

func TestEntitlementStore_SnapshotsAreCopies(t *testing.T) {
	s := NewEntitlementStore()
	now := time.Now().UTC()

	id, _, _ := s.Acquire(testProperties, now, time.Hour)
	_, _ = s.Renew(id, now.Add(time.Minute), time.Hour)

	record, _ := s.Get(id)
	record.RenewedAt[0] = record.RenewedAt[0].Add(time.Hour)
	record.State = core.StateReleased

	fresh, _ := s.Get(id)
	if fresh.State != core.StateActive {
		t.Error("mutating a snapshot affected the stored record")
	}
	if !fresh.RenewedAt[0].Equal(now.Add(time.Minute)) {
		t.Error("mutating a snapshot's renewal times affected the stored record")
	}
}

func TestEntitlementStore_ConcurrentAcquire(t *testing.T) {
	const n = 100

	s := NewEntitlementStore()
	now := time.Now().UTC()

	ids := make(chan string, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			id, _, err := s.Acquire(testProperties, now, time.Hour)
			if err != nil {
				t.Errorf("Acquire() error = %v", err)
				return
			}
			ids <- id
		}()
	}
	wg.Wait()
	close(ids)

	seen := make(map[string]struct{})
	for id := range ids {
		if _, dup := seen[id]; dup {
			t.Fatalf("duplicate identifier %s", id)
		}
		seen[id] = struct{}{}
		if !s.Contains(id) {
			t.Errorf("record for %s was lost", id)
		}
	}
	if len(seen) != n {
		t.Errorf("got %d records, want %d", len(seen), n)
	}
}

func TestEntitlementStore_ConcurrentReleaseRace(t *testing.T) {
	const racers = 32

	s := NewEntitlementStore()
	now := time.Now().UTC()
	id, _, _ := s.Acquire(testProperties, now, time.Hour)

	var wg sync.WaitGroup
	for i := 0; i < racers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			if i%2 == 0 {
				_ = s.Release(id, now)
			} else {
				_, _ = s.Renew(id, now, time.Hour)
			}
		}(i)
	}
	wg.Wait()

	// whatever the interleaving, the record must end in a consistent
	// terminal state with its release instant set
	if !s.IsReleased(id) {
		t.Fatal("record should be released after the race")
	}
	record, _ := s.Get(id)
	if record.State != core.StateReleased || record.ReleasedAt == nil {
		t.Error("released record is missing its release instant")
	}
	if _, err := s.Renew(id, now, time.Hour); !errors.Is(err, ErrAlreadyReleased) {
		t.Errorf("Renew() after the race: got %v, want ErrAlreadyReleased", err)
	}
}
