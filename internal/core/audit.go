package core

import "time"

// Audit actions recorded by the entitlement service.
const (
	AuditActionApprove = "entitlement.approve"
	AuditActionAcquire = "entitlement.acquire"
	AuditActionRenew   = "entitlement.renew"
	AuditActionRelease = "entitlement.release"
)

type AuditEntry struct {
	// ID is the unique request ID (X-Correlation-ID)
	ID string `json:"id"`

	// Time is the timestamp of the event
	Time time.Time `json:"time"`

	// Action describing what happened (e.g. "entitlement.acquire")
	Action string `json:"action"`

	// ApplicationID the request was made for, if known
	ApplicationID string `json:"application_id,omitempty"`

	// EntitlementID affected by the request, if any
	EntitlementID string `json:"entitlement_id,omitempty"`

	// RemoteAddr is the observed source address of the caller
	RemoteAddr string `json:"remote_addr,omitempty"`

	// Decision details
	Granted bool   `json:"granted"`
	Error   string `json:"error,omitempty"`
}

type Auditor interface {
	Log(entry AuditEntry) error

	// GetRecent returns up to limit of the most recent entries.
	GetRecent(limit int) ([]AuditEntry, error)

	Close() error
}
