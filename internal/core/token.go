package core

import (
	"fmt"
	"net/netip"
	"strings"
	"time"
)

// Claim names used inside entitlement tokens.
const (
	ClaimApplication      = "app"
	ClaimIPAddress        = "ip"
	ClaimVirtualMachineID = "vmid"
	ClaimTokenID          = "id"
)

// Default issuer/audience for self-issued tokens. In production deployments
// the audience identifies the account the token was issued for.
const (
	DefaultIssuer   = "https://entitled.test/software-entitlement"
	DefaultAudience = "https://entitled.test/software-entitlement"
)

// EntitlementToken describes the terms under which an entitlement may be
// granted. It is immutable once minted; the encoded form is the only thing
// that leaves the process.
type EntitlementToken struct {
	// ID is a unique identifier for the token itself, used for correlating
	// activity. It is distinct from any entitlement identifier issued later.
	ID string

	// Issuer identifies who minted the token.
	Issuer string

	// Audience identifies for whom the token was minted.
	Audience string

	// NotBefore and NotAfter bound the validity window (UTC).
	NotBefore time.Time
	NotAfter  time.Time

	// IssuedAt is the moment the token was minted.
	IssuedAt time.Time

	// Applications is the set of application identifiers entitled to run.
	// Must be non-empty.
	Applications []string

	// IPAddresses is the set of source addresses the token is valid for.
	// An empty set means the token is valid from any address.
	IPAddresses []netip.Addr

	// VirtualMachineID optionally names the virtual machine the token was
	// issued for. Advisory only; carried through verification unchecked.
	VirtualMachineID string
}

// Validate checks that the token is complete enough to be encoded.
func (t EntitlementToken) Validate() error {
	if t.Issuer == "" {
		return fmt.Errorf("token has no issuer")
	}
	if t.Audience == "" {
		return fmt.Errorf("token has no audience")
	}
	if t.NotBefore.IsZero() || t.NotAfter.IsZero() {
		return fmt.Errorf("token validity window is not set")
	}
	if !t.NotBefore.Before(t.NotAfter) {
		return fmt.Errorf("token not-before (%s) must precede not-after (%s)",
			t.NotBefore.Format(time.RFC3339), t.NotAfter.Format(time.RFC3339))
	}
	if len(t.Applications) == 0 {
		return fmt.Errorf("token grants no applications")
	}
	for _, app := range t.Applications {
		if strings.TrimSpace(app) == "" {
			return fmt.Errorf("token contains an empty application identifier")
		}
	}
	return nil
}

// GrantsApplication reports whether the token entitles the given application.
// Comparison is case-insensitive.
func (t EntitlementToken) GrantsApplication(applicationID string) bool {
	for _, app := range t.Applications {
		if strings.EqualFold(app, applicationID) {
			return true
		}
	}
	return false
}

// GrantsAddress reports whether the token is valid when presented from the
// given address. An empty address set places no restriction.
func (t EntitlementToken) GrantsAddress(addr netip.Addr) bool {
	if len(t.IPAddresses) == 0 {
		return true
	}
	for _, ip := range t.IPAddresses {
		if ip == addr {
			return true
		}
	}
	return false
}

// TokenVerificationRequest carries the attributes a caller claims when
// presenting a token. Constructed per request, never persisted.
type TokenVerificationRequest struct {
	// ApplicationID is the application the entitlement is requested for.
	ApplicationID string

	// IPAddress is the observed source address of the caller.
	IPAddress netip.Addr
}

// TokenProperties is the validated projection of a token after successful
// verification. This is the only token-derived data that reaches the
// entitlement store; signatures, keys and the raw token never cross over.
type TokenProperties struct {
	// ApplicationID is the single application the request was verified for.
	ApplicationID string `json:"application_id"`

	// VirtualMachineID is carried over from the token if present.
	VirtualMachineID string `json:"virtual_machine_id,omitempty"`

	// NotAfter is the token's own expiry.
	NotAfter time.Time `json:"not_after"`
}
