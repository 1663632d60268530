package ledger

import (
	"fmt"
	"net/netip"
	"strings"
)

// IPBlocklist holds static deny entries, exact addresses and CIDR ranges. Static
// entries never expire.
type IPBlocklist struct {
	addrs    map[netip.Addr]struct{}
	prefixes []netip.Prefix
}

// NewIPBlocklist parses entries. Invalid entries are skipped and reported
// together in the returned error; the list is usable either way.
func NewIPBlocklist(entries []string) (*IPBlocklist, error) {
	b := &IPBlocklist{addrs: make(map[netip.Addr]struct{})}
	var bad []string
	for _, raw := range entries {
		entry := strings.TrimSpace(raw)
		if entry == "" {
			continue
		}
		if strings.Contains(entry, "/") {
			prefix, err := netip.ParsePrefix(entry)
			if err != nil {
				bad = append(bad, entry)
				continue
			}
			b.prefixes = append(b.prefixes, unmapPrefix(prefix).Masked())
			continue
		}
		addr, err := netip.ParseAddr(entry)
		if err != nil {
			bad = append(bad, entry)
			continue
		}
		b.addrs[addr.Unmap()] = struct{}{}
	}
	if len(bad) > 0 {
		return b, fmt.Errorf("invalid blocklist entries: %s", strings.Join(bad, ", "))
	}
	return b, nil
}

// Contains reports whether ip is listed or falls inside a listed range.
func (b *IPBlocklist) Contains(ip string) bool {
	if b == nil {
		return false
	}
	addr, err := netip.ParseAddr(strings.TrimSpace(ip))
	if err != nil {
		return false
	}
	addr = addr.Unmap()
	if _, ok := b.addrs[addr]; ok {
		return true
	}
	for _, p := range b.prefixes {
		if p.Contains(addr) {
			return true
		}
	}
	return false
}

// Len is the number of valid entries.
func (b *IPBlocklist) Len() int {
	if b == nil {
		return 0
	}
	return len(b.addrs) + len(b.prefixes)
}

// unmapPrefix rewrites an IPv4-mapped range such as ::ffff:10.0.0.0/104 as the
// IPv4 range it covers, since lookups are done on unmapped addresses.
func unmapPrefix(p netip.Prefix) netip.Prefix {
	if !p.Addr().Is4In6() || p.Bits() < 96 {
		return p
	}
	return netip.PrefixFrom(p.Addr().Unmap(), p.Bits()-96)
}
