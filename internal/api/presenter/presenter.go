// Package presenter writes the wire responses. Entitlement routes use the
// code/message failure body; everything else uses the plain error envelope.
package presenter

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/rs/zerolog/log"

	"github.com/darmiel/entitled/internal/service"
)

type ErrorResponse struct {
	Error         string `json:"error"`
	CorrelationID string `json:"correlation_id"`
}

// ErrorMessage is the human readable half of a failure response.
type ErrorMessage struct {
	Language string `json:"lang"`
	Value    string `json:"value"`
}

// FailureResponse is the body of every failed entitlement request: a machine
// readable code plus a message for humans.
type FailureResponse struct {
	Code    string       `json:"code"`
	Message ErrorMessage `json:"message"`
}

func JSON(w http.ResponseWriter, r *http.Request, data any, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		log.Ctx(r.Context()).Error().Err(err).Msg("failed to write json response")
	}
}

func Error(w http.ResponseWriter, r *http.Request, msg string, status int) {
	correlationID, _ := r.Context().Value("correlation_id").(string)
	resp := ErrorResponse{
		Error:         msg,
		CorrelationID: correlationID,
	}
	JSON(w, r, resp, status)
}

// Failure writes a code/message failure body with the given status.
func Failure(w http.ResponseWriter, r *http.Request, code, message string, status int) {
	resp := FailureResponse{
		Code: code,
		Message: ErrorMessage{
			Language: "en-us",
			Value:    message,
		},
	}
	JSON(w, r, resp, status)
}

// Fail renders a service error. The hidden cause is logged here so denial
// reasons reach the operator but never the caller.
func Fail(w http.ResponseWriter, r *http.Request, err error) {
	logger := log.Ctx(r.Context())

	var failure *service.Failure
	if !errors.As(err, &failure) {
		logger.Error().Err(err).Msg("unclassified service error")
		Failure(w, r, service.CodeInternalError, "internal server error", http.StatusInternalServerError)
		return
	}

	event := logger.Info()
	if failure.StatusCode >= 500 {
		event = logger.Error()
	}
	event.
		Int("status", failure.StatusCode).
		Str("code", failure.Code).
		AnErr("cause", failure.Cause).
		Msg(failure.Message)

	Failure(w, r, failure.Code, failure.Message, failure.StatusCode)
}
