package api

import (
	"net/http"
	"strconv"

	"github.com/rs/zerolog/log"

	"github.com/darmiel/entitled/internal/api/presenter"
)

const defaultAuditLimit = 50

// handleAdminEntitlements returns every known entitlement record, released
// ones included.
func (s *Server) handleAdminEntitlements(w http.ResponseWriter, r *http.Request) {
	records := s.entitlements.List(r.Context())
	presenter.JSON(w, r, records, http.StatusOK)
}

// handleAdminAudits returns the most recent audit log entries.
func (s *Server) handleAdminAudits(w http.ResponseWriter, r *http.Request) {
	logger := log.Ctx(r.Context())

	limit := defaultAuditLimit
	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		v, err := strconv.Atoi(limitStr)
		if err != nil || v <= 0 {
			logger.Warn().Err(err).Str("limit", limitStr).Msg("invalid limit parameter")
			presenter.Error(w, r, "invalid limit parameter", http.StatusBadRequest)
			return
		}
		limit = v
	}

	entries, err := s.auditor.GetRecent(limit)
	if err != nil {
		logger.Error().Err(err).Msg("failed to retrieve audit logs")
		presenter.Error(w, r, "failed to retrieve audit logs", http.StatusInternalServerError)
		return
	}

	presenter.JSON(w, r, entries, http.StatusOK)
}
