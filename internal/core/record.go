package core

import "time"

// LifecycleState is the state of an entitlement record.
type LifecycleState string

const (
	// StateActive means the entitlement may be renewed or released.
	StateActive LifecycleState = "active"

	// StateReleased is terminal. No transition leaves it.
	StateReleased LifecycleState = "released"
)

// EntitlementRecord tracks one granted entitlement from acquisition through
// renewal to release. Records are owned exclusively by the store; everything
// handed out is a copy.
type EntitlementRecord struct {
	// ID is the opaque identifier returned by Acquire. Never reused.
	ID string `json:"id"`

	// Properties are the verified token properties the entitlement was
	// granted under.
	Properties TokenProperties `json:"properties"`

	// AcquiredAt is the acquisition instant.
	AcquiredAt time.Time `json:"acquired_at"`

	// ExpiresAt is the current lease expiry. Replaced (not extended) on
	// every renewal.
	ExpiresAt time.Time `json:"expires_at"`

	// RenewedAt records each successful renewal instant.
	RenewedAt []time.Time `json:"renewed_at,omitempty"`

	// ReleasedAt is set when the entitlement is released.
	ReleasedAt *time.Time `json:"released_at,omitempty"`

	// State is the current lifecycle state.
	State LifecycleState `json:"state"`
}
