package client

import (
	"context"

	"github.com/darmiel/entitled/internal/api"
)

type VerifyPayload struct {
	Token         string `json:"token"`
	ApplicationID string `json:"applicationId"`
	Duration      string `json:"duration,omitempty"`
}

type renewPayload struct {
	Duration string `json:"duration"`
}

// ApproveResponse covers both approval shapes; Expiry stays empty on the
// oldest api versions and VirtualMachineID on the newer ones.
type ApproveResponse struct {
	EntitlementID    string `json:"id"`
	VirtualMachineID string `json:"vmid,omitempty"`
	Expiry           string `json:"expiry,omitempty"`
}

type AcquireResponse struct {
	EntitlementID     string `json:"entitlementId"`
	InitialExpiryTime string `json:"initialExpiryTime"`
}

type RenewResponse struct {
	ExpiryTime string `json:"expiryTime"`
}

// Approve verifies a token against one of the stateless api versions.
func (c *Client) Approve(
	ctx context.Context,
	apiVersion string,
	payload VerifyPayload,
) (*ApproveResponse, string, error) {
	var resp ApproveResponse
	correlation, err := c.post(ctx, c.url().
		setPath(api.EntitlementsRoute).
		addQueryParam(api.ApiVersionParameter, apiVersion).
		build(), payload, &resp)
	if err != nil {
		return nil, correlation, err
	}
	return &resp, correlation, nil
}

// Acquire opens an entitlement lease using the latest api version.
func (c *Client) Acquire(
	ctx context.Context,
	payload VerifyPayload,
) (*AcquireResponse, string, error) {
	var resp AcquireResponse
	correlation, err := c.post(ctx, c.url().
		setPath(api.EntitlementsRoute).
		addQueryParam(api.ApiVersionParameter, api.ApiVersionLatest).
		build(), payload, &resp)
	if err != nil {
		return nil, correlation, err
	}
	return &resp, correlation, nil
}

// Renew extends an existing lease by the given ISO-8601 duration.
func (c *Client) Renew(
	ctx context.Context,
	entitlementID, duration string,
) (*RenewResponse, string, error) {
	var resp RenewResponse
	correlation, err := c.post(ctx, c.url().
		setPath(api.RenewEntitlementRoute).
		setPathParam("id", entitlementID).
		addQueryParam(api.ApiVersionParameter, api.ApiVersionLatest).
		build(), renewPayload{Duration: duration}, &resp)
	if err != nil {
		return nil, correlation, err
	}
	return &resp, correlation, nil
}

// Release ends an entitlement lease. Releasing twice is not an error.
func (c *Client) Release(ctx context.Context, entitlementID string) (string, error) {
	return c.delete(ctx, c.url().
		setPath(api.ReleaseEntitlementRoute).
		setPathParam("id", entitlementID).
		addQueryParam(api.ApiVersionParameter, api.ApiVersionLatest).
		build())
}
