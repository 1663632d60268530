package ledger

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// ErrMalformed marks stored ledger values that do not decode. The ledger treats
// them as empty and overwrites them on the next write.
var ErrMalformed = errors.New("malformed ledger data")

const (
	BlacklistKey = "blacklist"
	FailuresKey  = "failed_attempts"
)

// Attempt is one recorded failure.
type Attempt struct {
	Reason    string    `json:"reason"`
	Timestamp time.Time `json:"timestamp"`
}

// FailureRecord accumulates failed attempts for one client until promotion.
type FailureRecord struct {
	ClientID     string    `json:"clientId"`
	Count        int       `json:"count"`
	Attempts     []Attempt `json:"attempts"`
	FirstAttempt time.Time `json:"firstAttemptTime"`
}

// BlacklistEntry is a promoted client and the window it stays denied.
type BlacklistEntry struct {
	ClientID  string    `json:"clientId"`
	Reason    string    `json:"reason"`
	Attempts  []Attempt `json:"attempts,omitempty"`
	AddedAt   time.Time `json:"addedAt"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// Active reports whether the entry still applies at t. The expiry instant itself
// is still blacklisted.
func (e BlacklistEntry) Active(t time.Time) bool {
	return !t.After(e.ExpiresAt)
}

type (
	blacklist map[string]BlacklistEntry
	failures  map[string]FailureRecord
)

func decode[M ~map[string]V, V any](raw string) (M, error) {
	out := make(M)
	if raw == "" {
		return out, nil
	}
	if err := json.Unmarshal([]byte(raw), &out); err != nil {
		return make(M), fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if out == nil {
		out = make(M)
	}
	return out, nil
}

func encode[M ~map[string]V, V any](m M) (string, error) {
	data, err := json.Marshal(m)
	if err != nil {
		return "", err
	}
	return string(data), nil
}
