package store

import (
	"fmt"
	"strings"

	"golang.org/x/net/publicsuffix"
)

// Authorizer decides which hosts documents may come from.
//
// An entry is either an exact host ("experiences.example.com") or a
// wildcard ("*.example.com"), which matches any subdomain and the
// domain itself.
type Authorizer struct {
	exact    map[string]bool
	suffixes []string
}

// NewAuthorizer checks the given domains.  A wildcard that covers a
// whole public suffix ("*.com", "*.co.uk") gives WildcardTooBroad.
func NewAuthorizer(domains []string) (*Authorizer, error) {
	a := &Authorizer{
		exact: make(map[string]bool, len(domains)),
	}
	for _, d := range domains {
		d = strings.ToLower(strings.TrimSpace(d))
		if d == "" {
			continue
		}
		if !strings.HasPrefix(d, "*.") {
			a.exact[d] = true
			continue
		}
		base := d[2:]
		if _, err := publicsuffix.EffectiveTLDPlusOne(base); err != nil {
			return nil, fmt.Errorf("%s: %w", d, WildcardTooBroad)
		}
		a.exact[base] = true
		a.suffixes = append(a.suffixes, "."+base)
	}
	return a, nil
}

// Authorized reports whether the host (without a port) is allowed.
// A nil Authorizer allows nothing.
func (a *Authorizer) Authorized(host string) bool {
	if a == nil {
		return false
	}
	host = strings.ToLower(host)
	if a.exact[host] {
		return true
	}
	for _, s := range a.suffixes {
		if strings.HasSuffix(host, s) {
			return true
		}
	}
	return false
}
