package handlers

import (
	"encoding/json"
	"net/http"
	"time"

	"riskgate/internal/decision"
	"riskgate/internal/signals"
	"riskgate/internal/store"
	"riskgate/internal/token"

	"github.com/sirupsen/logrus"
)

// maxBodyBytes bounds sensor reports; a full report is a few KB.
const maxBodyBytes = 1 << 20

type Handlers struct {
	Engine   *decision.Engine
	Issuer   *token.Issuer
	Gatherer *signals.Gatherer
	// Prefs holds the fingerprint_preferences flags.
	Prefs   store.KeyValueStore
	Logger  *logrus.Logger
	started time.Time
}

func New(engine *decision.Engine, issuer *token.Issuer, gatherer *signals.Gatherer, prefs store.KeyValueStore, logger *logrus.Logger) *Handlers {
	if prefs == nil {
		prefs = store.NewMemoryStore()
	}
	return &Handlers{
		Engine:   engine,
		Issuer:   issuer,
		Gatherer: gatherer,
		Prefs:    prefs,
		Logger:   logger,
		started:  time.Now(),
	}
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	return json.NewDecoder(r.Body).Decode(v)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
