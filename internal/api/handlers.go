package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/netip"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/darmiel/entitled/internal/api/presenter"
	"github.com/darmiel/entitled/internal/buildinfo"
	"github.com/darmiel/entitled/internal/service"
)

type verificationRequestBody struct {
	// Token is the raw software entitlement token
	Token string `json:"token"`

	// ApplicationID identifies the application for which an entitlement
	// is sought
	ApplicationID string `json:"applicationId"`

	// Duration is the requested lease duration (ISO-8601), only used by
	// the acquire flow
	Duration string `json:"duration"`
}

type renewRequestBody struct {
	Duration string `json:"duration"`
}

type approveV1SuccessResponse struct {
	EntitlementID    string `json:"id"`
	VirtualMachineID string `json:"vmid,omitempty"`
}

type approveV2SuccessResponse struct {
	EntitlementID string `json:"id"`
	Expiry        string `json:"expiry"`
}

type acquireSuccessResponse struct {
	EntitlementID     string `json:"entitlementId"`
	InitialExpiryTime string `json:"initialExpiryTime"`
}

type renewSuccessResponse struct {
	ExpiryTime string `json:"expiryTime"`
}

// handleHealth responds with a simple OK status to indicate the server is healthy.
func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

// handleVersion responds with service information including version and commit hash.
func (s *Server) handleVersion(w http.ResponseWriter, r *http.Request) {
	presenter.JSON(w, r, buildinfo.GetBuildInfo(), http.StatusOK)
}

// handleEntitlements dispatches POST /softwareEntitlements on the api-version
// query parameter: older versions get a stateless approval, the latest
// version opens a tracked lease.
func (s *Server) handleEntitlements(w http.ResponseWriter, r *http.Request) {
	defer s.requestHandled()

	logger := log.Ctx(r.Context())

	apiVersion, ok := s.checkApiVersion(w, r)
	if !ok {
		return
	}
	logger.Debug().Str("api_version", apiVersion).Msg("selected api-version")

	var body verificationRequestBody
	if !decodePayload(w, r, &body) {
		return
	}

	switch apiVersionKinds[apiVersion] {
	case kindApproveV1:
		s.approveV1(w, r, body)
	case kindApproveV2:
		s.approveV2(w, r, body)
	case kindAcquire:
		s.acquire(w, r, body)
	}
}

func (s *Server) approveV1(w http.ResponseWriter, r *http.Request, body verificationRequestBody) {
	result, err := s.entitlements.Approve(r.Context(), service.ApproveRequest{
		Token:         body.Token,
		ApplicationID: body.ApplicationID,
		RemoteAddr:    remoteAddr(r),
	})
	if err != nil {
		presenter.Fail(w, r, err)
		return
	}

	presenter.JSON(w, r, approveV1SuccessResponse{
		EntitlementID:    result.EntitlementID,
		VirtualMachineID: result.Properties.VirtualMachineID,
	}, http.StatusOK)
}

func (s *Server) approveV2(w http.ResponseWriter, r *http.Request, body verificationRequestBody) {
	result, err := s.entitlements.Approve(r.Context(), service.ApproveRequest{
		Token:         body.Token,
		ApplicationID: body.ApplicationID,
		RemoteAddr:    remoteAddr(r),
	})
	if err != nil {
		presenter.Fail(w, r, err)
		return
	}

	presenter.JSON(w, r, approveV2SuccessResponse{
		EntitlementID: result.EntitlementID,
		Expiry:        formatInstant(result.Properties.NotAfter),
	}, http.StatusOK)
}

func (s *Server) acquire(w http.ResponseWriter, r *http.Request, body verificationRequestBody) {
	result, err := s.entitlements.Acquire(r.Context(), service.AcquireRequest{
		Token:         body.Token,
		ApplicationID: body.ApplicationID,
		Duration:      body.Duration,
		RemoteAddr:    remoteAddr(r),
	})
	if err != nil {
		presenter.Fail(w, r, err)
		return
	}

	presenter.JSON(w, r, acquireSuccessResponse{
		EntitlementID:     result.EntitlementID,
		InitialExpiryTime: formatInstant(result.InitialExpiry),
	}, http.StatusCreated)
}

func (s *Server) handleRenew(w http.ResponseWriter, r *http.Request) {
	defer s.requestHandled()

	if _, ok := s.checkApiVersion(w, r); !ok {
		return
	}

	var body renewRequestBody
	if !decodePayload(w, r, &body) {
		return
	}

	result, err := s.entitlements.Renew(r.Context(), r.PathValue("id"), body.Duration)
	if err != nil {
		presenter.Fail(w, r, err)
		return
	}

	presenter.JSON(w, r, renewSuccessResponse{
		ExpiryTime: formatInstant(result.Expiry),
	}, http.StatusOK)
}

func (s *Server) handleRelease(w http.ResponseWriter, r *http.Request) {
	defer s.requestHandled()

	if _, ok := s.checkApiVersion(w, r); !ok {
		return
	}

	if err := s.entitlements.Release(r.Context(), r.PathValue("id")); err != nil {
		presenter.Fail(w, r, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// checkApiVersion enforces the api-version query parameter. Requests without
// a known version are denied outright.
func (s *Server) checkApiVersion(w http.ResponseWriter, r *http.Request) (string, bool) {
	logger := log.Ctx(r.Context())

	apiVersion := r.URL.Query().Get(ApiVersionParameter)
	if apiVersion == "" {
		logger.Debug().Msg("no api-version specified")
		presenter.Failure(w, r, service.CodeEntitlementDenied,
			"Missing api-version query parameter; denying entitlement request.",
			http.StatusBadRequest)
		return "", false
	}
	if !IsValidApiVersion(apiVersion) {
		logger.Debug().Str("api_version", apiVersion).Msg("invalid api-version specified")
		presenter.Failure(w, r, service.CodeEntitlementDenied,
			fmt.Sprintf("Selected api-version of %s is not supported; denying entitlement request.", apiVersion),
			http.StatusBadRequest)
		return "", false
	}
	return apiVersion, true
}

func decodePayload(w http.ResponseWriter, r *http.Request, into any) bool {
	if err := json.NewDecoder(r.Body).Decode(into); err != nil {
		presenter.Failure(w, r, service.CodeEntitlementDenied,
			fmt.Sprintf("Unable to parse request body: %v", err),
			http.StatusBadRequest)
		return false
	}
	return true
}

// remoteAddr extracts the caller's address, tolerating a missing port as seen
// in tests and behind some proxies.
func remoteAddr(r *http.Request) netip.Addr {
	if addrPort, err := netip.ParseAddrPort(r.RemoteAddr); err == nil {
		return addrPort.Addr()
	}
	if addr, err := netip.ParseAddr(r.RemoteAddr); err == nil {
		return addr
	}
	return netip.Addr{}
}

func formatInstant(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}
