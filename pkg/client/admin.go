package client

import (
	"context"

	"github.com/darmiel/entitled/internal/api"
	"github.com/darmiel/entitled/internal/core"
)

// ListEntitlements retrieves every entitlement record the server knows
// about, released ones included. Requires an admin session token.
func (c *Client) ListEntitlements(ctx context.Context) ([]core.EntitlementRecord, string, error) {
	var resp []core.EntitlementRecord
	correlation, err := c.get(ctx, c.url().
		setPath(api.ListEntitlementsRoute).
		build(), &resp)
	return resp, correlation, err
}

// ListAudits retrieves the latest audit entries from the server, limited to
// the specified number. Requires an admin session token.
func (c *Client) ListAudits(ctx context.Context, limit uint) ([]core.AuditEntry, string, error) {
	ub := c.url().setPath(api.ListAuditsRoute)
	if limit > 0 {
		ub = ub.addQueryParam("limit", limit)
	}
	var resp []core.AuditEntry
	correlation, err := c.get(ctx, ub.build(), &resp)
	return resp, correlation, err
}
