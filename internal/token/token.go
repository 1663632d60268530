package token

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// ErrInvalid wraps every verification failure.
var ErrInvalid = errors.New("invalid token")

// CookieName is the cookie that carries the token to the browser.
const CookieName = "riskgate_token"

// Claims binds an admitted client to its address for the token lifetime.
type Claims struct {
	ClientID string `json:"cid"`
	Digest   string `json:"fp,omitempty"`
	IP       string `json:"ip"`
	jwt.RegisteredClaims
}

// Issuer signs and verifies tokens with a shared HMAC secret.
type Issuer struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

// NewIssuer returns an issuer. ttl defaults to 24h and now to time.Now.
func NewIssuer(secret string, ttl time.Duration, now func() time.Time) *Issuer {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	if now == nil {
		now = time.Now
	}
	return &Issuer{secret: []byte(secret), ttl: ttl, now: now}
}

// TTL is the lifetime given to issued tokens.
func (i *Issuer) TTL() time.Duration {
	return i.ttl
}

// Issue signs an HS256 token for an admitted client.
func (i *Issuer) Issue(clientID, digest, ip string) (string, error) {
	now := i.now()
	claims := Claims{
		ClientID: clientID,
		Digest:   digest,
		IP:       ip,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(i.ttl)),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(i.secret)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}

// Verify parses raw and checks signature, expiry and, when ip is non-empty,
// that the token was issued to that address.
func (i *Issuer) Verify(raw, ip string) (*Claims, error) {
	claims := &Claims{}
	parsed, err := jwt.ParseWithClaims(raw, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return i.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithTimeFunc(i.now))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	if !parsed.Valid {
		return nil, ErrInvalid
	}
	if ip != "" && claims.IP != ip {
		return nil, fmt.Errorf("%w: issued to %s, presented from %s", ErrInvalid, claims.IP, ip)
	}
	return claims, nil
}
