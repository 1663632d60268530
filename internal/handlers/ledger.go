package handlers

import (
	"net/http"
	"strings"

	"riskgate/internal/signals"

	"github.com/go-chi/chi/v5"
)

type FailureRequest struct {
	ClientID string `json:"clientId"`
	Reason   string `json:"reason"`
}

type FailureResponse struct {
	Recorded    bool `json:"recorded"`
	Blacklisted bool `json:"blacklisted"`
}

// RecordFailure lets the verification widget host report a failed attempt.
func (h *Handlers) RecordFailure(w http.ResponseWriter, r *http.Request) {
	var req FailureRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	req.ClientID = strings.TrimSpace(req.ClientID)
	if req.ClientID == "" {
		writeError(w, http.StatusBadRequest, "clientId is required")
		return
	}
	if req.Reason == "" {
		req.Reason = "reported_failure"
	}

	l := h.Engine.Ledger()
	l.RecordFailure(r.Context(), req.ClientID, req.Reason)
	writeJSON(w, http.StatusOK, FailureResponse{
		Recorded:    true,
		Blacklisted: l.IsBlacklisted(r.Context(), req.ClientID),
	})
}

func (h *Handlers) Blacklisted(w http.ResponseWriter, r *http.Request) {
	clientID := chi.URLParam(r, "clientId")
	writeJSON(w, http.StatusOK, map[string]bool{
		"blacklisted": h.Engine.Ledger().IsBlacklisted(r.Context(), clientID),
	})
}

func (h *Handlers) GetPreferences(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, signals.LoadPreferences(r.Context(), h.Prefs))
}

// PutPreferences replaces the collector flags. Absent flags mean enabled.
func (h *Handlers) PutPreferences(w http.ResponseWriter, r *http.Request) {
	var prefs signals.Preferences
	if err := decodeBody(w, r, &prefs); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := signals.SavePreferences(r.Context(), h.Prefs, prefs); err != nil {
		h.Logger.WithError(err).Error("Failed to save fingerprint preferences")
		writeError(w, http.StatusServiceUnavailable, "preferences not saved")
		return
	}
	writeJSON(w, http.StatusOK, prefs)
}
