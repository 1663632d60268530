package decision

import "strings"

// matchTokens returns the distinct tokens found in ua, case-insensitively.
func matchTokens(ua string, tokens []string) []string {
	if ua == "" {
		return nil
	}
	lower := strings.ToLower(ua)
	seen := make(map[string]struct{}, len(tokens))
	var out []string
	for _, t := range tokens {
		t = strings.ToLower(strings.TrimSpace(t))
		if t == "" {
			continue
		}
		if _, dup := seen[t]; dup {
			continue
		}
		seen[t] = struct{}{}
		if strings.Contains(lower, t) {
			out = append(out, t)
		}
	}
	return out
}
