package handlers

import (
	"net/http"

	"riskgate/internal/decision"
	"riskgate/internal/middleware"
	"riskgate/internal/signals"
	"riskgate/internal/token"

	chimw "github.com/go-chi/chi/v5/middleware"
)

type EvaluateRequest struct {
	Signals   map[string]interface{} `json:"signals"`
	Challenge *bool                  `json:"challenge,omitempty"`
	// Country may be supplied by an upstream geolocation layer.
	Country string `json:"country,omitempty"`
}

type EvaluateResponse struct {
	decision.Verdict
	Token string `json:"token,omitempty"`
}

func (h *Handlers) Evaluate(w http.ResponseWriter, r *http.Request) {
	var req EvaluateRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	report, err := signals.DecodeReport(req.Signals)
	if err != nil {
		h.Logger.WithError(err).WithField("request_id", chimw.GetReqID(r.Context())).Debug("Unreadable sensor report")
		writeError(w, http.StatusBadRequest, "invalid signals")
		return
	}

	ctx := r.Context()
	ip := middleware.ClientIP(r)
	prefs := signals.LoadPreferences(ctx, h.Prefs)
	gathered := h.Gatherer.Gather(ctx, prefs.Apply(signals.ReportCollectors(report))...)

	ua := r.Header.Get("User-Agent")
	if report.UserAgent != "" {
		ua = report.UserAgent
	}
	verdict := h.Engine.EvaluateClient(ctx, decision.Context{
		IP:        ip,
		UserAgent: ua,
		Country:   req.Country,
		Signals:   gathered,
		Report:    report,
		Challenge: req.Challenge,
	})

	resp := EvaluateResponse{Verdict: verdict}
	if verdict.Admit && verdict.ClientID != "" && h.Issuer != nil {
		signed, err := h.Issuer.Issue(verdict.ClientID, verdict.Digest, ip)
		if err != nil {
			h.Logger.WithError(err).WithField("client_id", verdict.ClientID).Error("Failed to issue token")
		} else {
			resp.Token = signed
			http.SetCookie(w, &http.Cookie{
				Name:     token.CookieName,
				Value:    signed,
				Path:     "/",
				HttpOnly: true,
				Secure:   true,
				SameSite: http.SameSiteStrictMode,
				MaxAge:   int(h.Issuer.TTL().Seconds()),
			})
		}
	}

	status := http.StatusOK
	if !verdict.Admit && !verdict.Escalate {
		status = http.StatusForbidden
	}
	writeJSON(w, status, resp)
}
