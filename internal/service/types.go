package service

import (
	"net/netip"
	"time"

	"github.com/darmiel/entitled/internal/core"
)

type ApproveRequest struct {
	// Token is the raw software entitlement token
	Token string

	// ApplicationID is the application for which an entitlement is sought
	ApplicationID string

	// RemoteAddr is the observed source address of the caller
	RemoteAddr netip.Addr
}

type AcquireRequest struct {
	Token         string
	ApplicationID string

	// Duration is the requested lease duration in ISO-8601 format,
	// e.g. "PT1H"
	Duration string

	RemoteAddr netip.Addr
}

type ApproveResult struct {
	// EntitlementID is unique to this approval, not the token identifier
	EntitlementID string

	Properties core.TokenProperties
}

type AcquireResult struct {
	EntitlementID string
	Properties    core.TokenProperties
	InitialExpiry time.Time
}

type RenewResult struct {
	Expiry time.Time
}
