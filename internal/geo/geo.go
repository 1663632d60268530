package geo

import (
	"errors"
	"fmt"
	"net/netip"
	"strings"

	"github.com/oschwald/geoip2-golang/v2"
)

// ErrNoDatabase is returned by lookups on a locator without an open database.
var ErrNoDatabase = errors.New("geoip database not loaded")

// Locator resolves a client address to an ISO 3166-1 alpha-2 country code.
type Locator interface {
	Country(ip string) (string, error)
}

// GeoIPLocator reads MaxMind GeoLite2/GeoIP2 Country or City databases.
type GeoIPLocator struct {
	db *geoip2.Reader
}

// Open loads the MaxMind database at path.
func Open(path string) (*GeoIPLocator, error) {
	db, err := geoip2.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open geoip database %s: %w", path, err)
	}
	return &GeoIPLocator{db: db}, nil
}

// Country returns the ISO code for ip, empty when the database has no record.
func (g *GeoIPLocator) Country(ip string) (string, error) {
	if g == nil || g.db == nil {
		return "", ErrNoDatabase
	}
	addr, err := netip.ParseAddr(strings.TrimSpace(ip))
	if err != nil {
		return "", fmt.Errorf("parse ip %q: %w", ip, err)
	}
	record, err := g.db.Country(addr.Unmap())
	if err != nil {
		return "", fmt.Errorf("lookup %s: %w", ip, err)
	}
	return record.Country.ISOCode, nil
}

// Close releases the database. It is safe on a nil locator.
func (g *GeoIPLocator) Close() error {
	if g == nil || g.db == nil {
		return nil
	}
	return g.db.Close()
}

// Static maps addresses to countries in memory. Used when no database is
// configured and in tests.
type Static map[string]string

// Country returns the mapped code, or empty for unknown addresses.
func (s Static) Country(ip string) (string, error) {
	code, ok := s[ip]
	if !ok {
		return "", nil
	}
	return code, nil
}

// Banned reports whether country is in the banned list, case-insensitively.
func Banned(country string, banned []string) bool {
	if country == "" {
		return false
	}
	for _, b := range banned {
		if strings.EqualFold(strings.TrimSpace(b), country) {
			return true
		}
	}
	return false
}
