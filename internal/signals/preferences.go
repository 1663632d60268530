package signals

import (
	"context"
	"encoding/json"
	"fmt"

	"riskgate/internal/store"
)

const PreferencesKey = "fingerprint_preferences"

// Preferences is a flat flag object; a collector whose flag is false is skipped.
// Absent flags mean enabled.
type Preferences map[string]bool

func (p Preferences) Enabled(name string) bool {
	enabled, ok := p[name]
	return !ok || enabled
}

// LoadPreferences never fails: unreadable or malformed preferences enable everything.
func LoadPreferences(ctx context.Context, kv store.KeyValueStore) Preferences {
	raw, ok, err := kv.Get(ctx, PreferencesKey)
	if err != nil || !ok {
		return Preferences{}
	}
	var prefs Preferences
	if err := json.Unmarshal([]byte(raw), &prefs); err != nil || prefs == nil {
		return Preferences{}
	}
	return prefs
}

func SavePreferences(ctx context.Context, kv store.KeyValueStore, prefs Preferences) error {
	data, err := json.Marshal(prefs)
	if err != nil {
		return fmt.Errorf("failed to encode preferences: %w", err)
	}
	return kv.Set(ctx, PreferencesKey, string(data))
}

// Apply swaps disabled collectors for constant ones reporting Disabled.
func (p Preferences) Apply(collectors []Collector) []Collector {
	out := make([]Collector, 0, len(collectors))
	for _, c := range collectors {
		if p.Enabled(c.Name()) {
			out = append(out, c)
			continue
		}
		out = append(out, Static(c.Name(), func() (any, error) { return Disabled, nil }))
	}
	return out
}
