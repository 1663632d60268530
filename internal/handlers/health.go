package handlers

import (
	"net/http"
	"time"
)

type HealthResponse struct {
	Status string `json:"status"`
	Uptime string `json:"uptime"`
	// Storage is "memory" once the ledger has lost its backing store.
	Storage string `json:"storage"`
}

func (h *Handlers) Health(w http.ResponseWriter, r *http.Request) {
	storage := "primary"
	if h.Engine.Ledger().Degraded() {
		storage = "memory"
	}
	writeJSON(w, http.StatusOK, HealthResponse{
		Status:  "ok",
		Uptime:  time.Since(h.started).Round(time.Second).String(),
		Storage: storage,
	})
}
