// Package verify applies the admission rules for entitlement requests: a
// decoded token must cover the current instant, the claimed application and
// the observed source address. Every applicable check runs and all failures
// are reported together; only an undecodable token stops early, because none
// of its claims can be trusted.
package verify

import (
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/darmiel/entitled/internal/core"
	"github.com/darmiel/entitled/internal/errorset"
)

// Verifier is a pure function over its inputs and the injected clock. It has
// no side effects and is safe for concurrent use.
type Verifier struct {
	codec  core.TokenCodec
	clock  core.Clock
	logger zerolog.Logger
}

type Option func(*Verifier)

// WithClock overrides the time source, primarily for tests.
func WithClock(clock core.Clock) Option {
	return func(v *Verifier) {
		v.clock = clock
	}
}

func WithLogger(logger zerolog.Logger) Option {
	return func(v *Verifier) {
		v.logger = logger
	}
}

// New creates a Verifier. A nil codec is a wiring bug.
func New(codec core.TokenCodec, opts ...Option) (*Verifier, error) {
	if codec == nil {
		return nil, fmt.Errorf("token codec is required")
	}
	v := &Verifier{
		codec:  codec,
		clock:  core.UTCClock,
		logger: zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(v)
	}
	return v, nil
}

// Verify decodes and authenticates the raw token, then checks its claims
// against the request. On success it returns the validated projection of the
// token. Codec failures come back as *codec.CodecError; business denials as
// an errorset.ErrorSet listing every rule that failed.
func (v *Verifier) Verify(request core.TokenVerificationRequest, rawToken string) (core.TokenProperties, error) {
	token, err := v.codec.Decode(rawToken)
	if err != nil {
		v.logger.Debug().Err(err).Msg("token rejected by codec")
		return core.TokenProperties{}, err
	}

	now := v.clock()
	errs := errorset.Combine(
		checkWindow(token, now),
		checkApplication(token, request.ApplicationID),
		checkAddress(token, request),
	)
	if !errs.IsEmpty() {
		v.logger.Debug().
			Str("application_id", request.ApplicationID).
			Strs("failures", errs).
			Msg("token denied")
		return core.TokenProperties{}, errs
	}

	return core.TokenProperties{
		ApplicationID: request.ApplicationID,
		// The virtual machine id is advisory metadata: carried through to
		// the properties but never required of the caller.
		VirtualMachineID: token.VirtualMachineID,
		NotAfter:         token.NotAfter,
	}, nil
}

func checkWindow(token *core.EntitlementToken, now time.Time) errorset.ErrorSet {
	if now.Before(token.NotBefore) {
		return errorset.Newf("token will not be valid until %s", token.NotBefore.Format(time.RFC3339))
	}
	if !now.Before(token.NotAfter) {
		return errorset.Newf("token expired at %s", token.NotAfter.Format(time.RFC3339))
	}
	return nil
}

func checkApplication(token *core.EntitlementToken, applicationID string) errorset.ErrorSet {
	if !token.GrantsApplication(applicationID) {
		return errorset.Newf("token does not grant entitlement for application %s", applicationID)
	}
	return nil
}

func checkAddress(token *core.EntitlementToken, request core.TokenVerificationRequest) errorset.ErrorSet {
	if !token.GrantsAddress(request.IPAddress) {
		return errorset.Newf("token does not grant entitlement for address %s", request.IPAddress)
	}
	return nil
}
