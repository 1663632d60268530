package fingerprint

import (
	"fmt"
	"strings"

	"riskgate/internal/signals"

	"github.com/cespare/xxhash/v2"
)

// ClientID derives the ledger key from a reduced signal subset. It is short and
// stable, not unique; colliding clients share penalties. Returns "" when none of
// the identifying signals are available.
func ClientID(s signals.Signals) string {
	fields := []string{
		usable(s[signals.UserAgent]),
		usable(s[signals.Language]),
		usable(screenGeometry(s[signals.Screen])),
		usable(s[signals.Platform]),
	}
	if canvas := usable(s[signals.Canvas]); canvas != "" {
		fields = append(fields, canvas)
	}

	empty := true
	for _, f := range fields {
		if f != "" {
			empty = false
			break
		}
	}
	if empty {
		return ""
	}
	return fmt.Sprintf("%016x", xxhash.Sum64String(strings.Join(fields, "|")))
}

func usable(v any) string {
	t := text(v)
	if t == signals.Unsupported || t == signals.Disabled {
		return ""
	}
	return t
}
