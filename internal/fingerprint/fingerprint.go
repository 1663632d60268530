package fingerprint

import (
	"bytes"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"hash"
	"sort"
	"strings"

	"riskgate/internal/signals"
)

type Mode string

const (
	// Strong fingerprints carry a SHA-256 digest over every component.
	Strong Mode = "strong"
	// Fallback fingerprints reversibly encode a few always-available signals.
	Fallback Mode = "fallback"
)

var ErrDigestUnavailable = errors.New("digest primitive unavailable")

type Fingerprint struct {
	Components signals.Signals `json:"components"`
	Digest     string          `json:"digest"`
	Mode       Mode            `json:"mode"`
}

// Builder turns gathered signals into a Fingerprint. NewHash may be replaced to
// simulate a host without the hashing primitive; nil means unavailable.
type Builder struct {
	NewHash func() hash.Hash
}

func NewBuilder() *Builder {
	return &Builder{NewHash: sha256.New}
}

// Build is deterministic: components are serialized in ascending key order as
// "key=<json value>" lines, and nested maps are encoded with sorted keys.
func (b *Builder) Build(s signals.Signals) Fingerprint {
	digest, err := b.digest(s)
	if err != nil {
		return Fingerprint{Components: s, Digest: fallbackDigest(s), Mode: Fallback}
	}
	return Fingerprint{Components: s, Digest: digest, Mode: Strong}
}

func (b *Builder) digest(s signals.Signals) (string, error) {
	if b == nil || b.NewHash == nil {
		return "", ErrDigestUnavailable
	}
	h := b.NewHash()
	if h == nil {
		return "", ErrDigestUnavailable
	}
	canonical, err := Canonical(s)
	if err != nil {
		return "", err
	}
	if _, err := h.Write(canonical); err != nil {
		return "", fmt.Errorf("%w: %v", ErrDigestUnavailable, err)
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// Canonical returns the byte serialization the digest is computed over.
func Canonical(s signals.Signals) ([]byte, error) {
	keys := make([]string, 0, len(s))
	for k := range s {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var buf bytes.Buffer
	for i, k := range keys {
		v, err := json.Marshal(s[k])
		if err != nil {
			return nil, fmt.Errorf("failed to encode component %s: %w", k, err)
		}
		if i > 0 {
			buf.WriteByte('\n')
		}
		buf.WriteString(k)
		buf.WriteByte('=')
		buf.Write(v)
	}
	return buf.Bytes(), nil
}

func fallbackDigest(s signals.Signals) string {
	parts := []string{
		text(s[signals.UserAgent]),
		text(s[signals.Language]),
		screenGeometry(s[signals.Screen]),
		text(s[signals.TimezoneOffset]),
	}
	storage, _ := s[signals.Storage].(map[string]any)
	for _, key := range []string{"localStorage", "sessionStorage", "indexedDB"} {
		parts = append(parts, text(storage[key]))
	}
	return base64.RawURLEncoding.EncodeToString([]byte(strings.Join(parts, "|")))
}

func text(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	default:
		return fmt.Sprint(t)
	}
}

func screenGeometry(v any) string {
	screen, ok := v.(map[string]any)
	if !ok {
		return text(v)
	}
	return fmt.Sprintf("%vx%v", screen["width"], screen["height"])
}
