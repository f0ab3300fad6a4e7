package service

import "fmt"

// Machine readable failure codes returned to callers.
const (
	CodeEntitlementDenied = "EntitlementDenied"
	CodeNotFound          = "NotFound"
	CodeAlreadyReleased   = "AlreadyReleased"
	CodeInternalError     = "InternalServerError"
)

// Failure is a request outcome with an HTTP status and a machine readable
// code. Message is what the caller sees; Cause carries the underlying reasons
// for server side logging and is never sent over the wire.
type Failure struct {
	StatusCode int
	Code       string
	Message    string
	Cause      error
}

func (f *Failure) Error() string {
	return f.Message
}

func (f *Failure) Unwrap() error {
	return f.Cause
}

// badRequest reports structural problems with the request itself. These are
// safe to echo back in full.
func badRequest(cause error) *Failure {
	return &Failure{
		StatusCode: 400,
		Code:       CodeEntitlementDenied,
		Message:    cause.Error(),
		Cause:      cause,
	}
}

// denied hides the concrete reasons from the caller: a rejected token should
// not learn which check it failed.
func denied(applicationID string, cause error) *Failure {
	return &Failure{
		StatusCode: 403,
		Code:       CodeEntitlementDenied,
		Message:    fmt.Sprintf("Entitlement for %s was denied.", applicationID),
		Cause:      cause,
	}
}

func notFound(entitlementID string) *Failure {
	return &Failure{
		StatusCode: 404,
		Code:       CodeNotFound,
		Message:    fmt.Sprintf("Entitlement %s was not found.", entitlementID),
	}
}

func alreadyReleased(entitlementID string) *Failure {
	return &Failure{
		StatusCode: 409,
		Code:       CodeAlreadyReleased,
		Message:    fmt.Sprintf("Entitlement %s is already released", entitlementID),
	}
}

func internalError(cause error) *Failure {
	return &Failure{
		StatusCode: 500,
		Code:       CodeInternalError,
		Message:    cause.Error(),
		Cause:      cause,
	}
}
