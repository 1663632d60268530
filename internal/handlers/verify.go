package handlers

import (
	"net/http"
	"time"

	"riskgate/internal/middleware"
	"riskgate/internal/token"
)

type VerifyRequest struct {
	Token string `json:"token"`
	// IP overrides the caller address when a redirect service verifies on a
	// client's behalf.
	IP string `json:"ip,omitempty"`
}

type VerifyResponse struct {
	Valid     bool   `json:"valid"`
	ClientID  string `json:"clientId,omitempty"`
	ExpiresAt string `json:"expiresAt,omitempty"`
}

// VerifyToken checks a token from the body, falling back to the cookie.
func (h *Handlers) VerifyToken(w http.ResponseWriter, r *http.Request) {
	var req VerifyRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Token == "" {
		if c, err := r.Cookie(token.CookieName); err == nil {
			req.Token = c.Value
		}
	}
	ip := req.IP
	if ip == "" {
		ip = middleware.ClientIP(r)
	}

	claims, err := h.Issuer.Verify(req.Token, ip)
	if err != nil {
		h.Logger.WithError(err).WithField("ip", ip).Debug("Token rejected")
		writeJSON(w, http.StatusOK, VerifyResponse{Valid: false})
		return
	}
	resp := VerifyResponse{Valid: true, ClientID: claims.ClientID}
	if claims.ExpiresAt != nil {
		resp.ExpiresAt = claims.ExpiresAt.Time.UTC().Format(time.RFC3339)
	}
	writeJSON(w, http.StatusOK, resp)
}
