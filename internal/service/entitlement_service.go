// Package service coordinates token verification, the entitlement store and
// the audit trail behind the HTTP handlers.
package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/sosodev/duration"

	"github.com/darmiel/entitled/internal/core"
	"github.com/darmiel/entitled/internal/errorset"
	"github.com/darmiel/entitled/internal/store"
	"github.com/darmiel/entitled/internal/verify"
)

// EntitlementService is the main service handling the entitlement lifecycle.
type EntitlementService struct {
	verifier *verify.Verifier
	store    *store.EntitlementStore
	auditor  core.Auditor
	clock    core.Clock
}

type Option func(*EntitlementService)

// WithClock overrides the time source, primarily for tests.
func WithClock(clock core.Clock) Option {
	return func(s *EntitlementService) {
		s.clock = clock
	}
}

func NewEntitlementService(
	verifier *verify.Verifier,
	entitlementStore *store.EntitlementStore,
	auditor core.Auditor,
	opts ...Option,
) *EntitlementService {
	s := &EntitlementService{
		verifier: verifier,
		store:    entitlementStore,
		auditor:  auditor,
		clock:    core.UTCClock,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Approve verifies the token without creating a lease. The returned
// entitlement identifier is unique to this approval so repeated approvals of
// the same token stay distinguishable.
func (s *EntitlementService) Approve(ctx context.Context, req ApproveRequest) (*ApproveResult, error) {
	logger := log.Ctx(ctx)

	auditEntry := s.newAuditEntry(ctx, core.AuditActionApprove, req.ApplicationID, req.RemoteAddr.String())
	defer s.writeAudit(ctx, &auditEntry)

	if errs := checkVerificationFields(req.Token, req.ApplicationID); !errs.IsEmpty() {
		auditEntry.Error = errs.Error()
		return nil, badRequest(errs)
	}

	properties, err := s.verifier.Verify(core.TokenVerificationRequest{
		ApplicationID: req.ApplicationID,
		IPAddress:     req.RemoteAddr,
	}, req.Token)
	if err != nil {
		auditEntry.Error = err.Error()
		logger.Info().Err(err).Str("application_id", req.ApplicationID).Msg("entitlement denied")
		return nil, denied(req.ApplicationID, err)
	}

	result := &ApproveResult{
		EntitlementID: "entitlement-" + uuid.NewString(),
		Properties:    properties,
	}
	auditEntry.EntitlementID = result.EntitlementID
	auditEntry.Granted = true
	return result, nil
}

// Acquire verifies the token and opens a lease for the requested duration.
func (s *EntitlementService) Acquire(ctx context.Context, req AcquireRequest) (*AcquireResult, error) {
	logger := log.Ctx(ctx)

	auditEntry := s.newAuditEntry(ctx, core.AuditActionAcquire, req.ApplicationID, req.RemoteAddr.String())
	defer s.writeAudit(ctx, &auditEntry)

	errs := checkVerificationFields(req.Token, req.ApplicationID)
	leaseDuration, durationErrs := parseDuration(req.Duration)
	errs = errorset.Combine(errs, durationErrs)
	if !errs.IsEmpty() {
		auditEntry.Error = errs.Error()
		return nil, badRequest(errs)
	}

	properties, err := s.verifier.Verify(core.TokenVerificationRequest{
		ApplicationID: req.ApplicationID,
		IPAddress:     req.RemoteAddr,
	}, req.Token)
	if err != nil {
		auditEntry.Error = err.Error()
		logger.Info().Err(err).Str("application_id", req.ApplicationID).Msg("entitlement denied")
		return nil, denied(req.ApplicationID, err)
	}

	id, expiry, err := s.store.Acquire(properties, s.clock(), leaseDuration)
	if err != nil {
		auditEntry.Error = err.Error()
		return nil, internalError(fmt.Errorf("storing entitlement: %w", err))
	}

	logger.Info().
		Str("entitlement_id", id).
		Str("application_id", req.ApplicationID).
		Time("expiry", expiry).
		Msg("entitlement acquired")

	auditEntry.EntitlementID = id
	auditEntry.Granted = true
	return &AcquireResult{
		EntitlementID: id,
		Properties:    properties,
		InitialExpiry: expiry,
	}, nil
}

// Renew extends the lease identified by entitlementID by the requested
// duration, measured from now.
func (s *EntitlementService) Renew(ctx context.Context, entitlementID, rawDuration string) (*RenewResult, error) {
	logger := log.Ctx(ctx)

	auditEntry := s.newAuditEntry(ctx, core.AuditActionRenew, "", "")
	auditEntry.EntitlementID = entitlementID
	defer s.writeAudit(ctx, &auditEntry)

	leaseDuration, errs := parseDuration(rawDuration)
	if !errs.IsEmpty() {
		auditEntry.Error = errs.Error()
		return nil, badRequest(errs)
	}

	expiry, err := s.store.Renew(entitlementID, s.clock(), leaseDuration)
	if err != nil {
		auditEntry.Error = err.Error()
		switch {
		case errors.Is(err, store.ErrNotFound):
			return nil, notFound(entitlementID)
		case errors.Is(err, store.ErrAlreadyReleased):
			return nil, alreadyReleased(entitlementID)
		default:
			return nil, internalError(err)
		}
	}

	logger.Info().
		Str("entitlement_id", entitlementID).
		Time("expiry", expiry).
		Msg("entitlement renewed")

	auditEntry.Granted = true
	return &RenewResult{Expiry: expiry}, nil
}

// Release ends the lease. Releasing an already released entitlement succeeds
// so clients can retry safely.
func (s *EntitlementService) Release(ctx context.Context, entitlementID string) error {
	logger := log.Ctx(ctx)

	auditEntry := s.newAuditEntry(ctx, core.AuditActionRelease, "", "")
	auditEntry.EntitlementID = entitlementID
	defer s.writeAudit(ctx, &auditEntry)

	if err := s.store.Release(entitlementID, s.clock()); err != nil {
		auditEntry.Error = err.Error()
		if errors.Is(err, store.ErrNotFound) {
			return notFound(entitlementID)
		}
		return internalError(err)
	}

	logger.Info().Str("entitlement_id", entitlementID).Msg("entitlement released")

	auditEntry.Granted = true
	return nil
}

// List returns a snapshot of every known entitlement record.
func (s *EntitlementService) List(ctx context.Context) []core.EntitlementRecord {
	return s.store.List()
}

func (s *EntitlementService) newAuditEntry(ctx context.Context, action, applicationID, remoteAddr string) core.AuditEntry {
	reqID, _ := ctx.Value("correlation_id").(string)
	return core.AuditEntry{
		ID:            reqID,
		Time:          s.clock(),
		Action:        action,
		ApplicationID: applicationID,
		RemoteAddr:    remoteAddr,
	}
}

func (s *EntitlementService) writeAudit(ctx context.Context, entry *core.AuditEntry) {
	if err := s.auditor.Log(*entry); err != nil {
		log.Ctx(ctx).Error().Err(err).Msg("failed to write audit log entry")
	}
}

func checkVerificationFields(token, applicationID string) errorset.ErrorSet {
	var errs errorset.ErrorSet
	if token == "" {
		errs = errs.With(errorset.New("Missing token from software entitlement request."))
	}
	if applicationID == "" {
		errs = errs.With(errorset.New("Missing applicationId value from software entitlement request."))
	}
	return errs
}

func parseDuration(raw string) (time.Duration, errorset.ErrorSet) {
	if raw == "" {
		return 0, errorset.New("Value for duration was not specified.")
	}
	parsed, err := duration.Parse(raw)
	if err != nil {
		return 0, errorset.Newf("Unable to parse duration %s: %v", raw, err)
	}
	leaseDuration := parsed.ToTimeDuration()
	if leaseDuration <= 0 {
		return 0, errorset.Newf("Duration %s must be positive.", raw)
	}
	return leaseDuration, nil
}
