// Package credentials defines the credential bundle harvested from a
// browser login against the Amazon Parent Dashboard: the full set of
// session cookies plus the CSRF token derived from one distinguished
// cookie. Bundles are created by the auth session manager, persisted by
// the store, and consumed read-only by the resolver and the dashboard
// client.
package credentials

import "strings"

// DefaultCSRFCookieName is the cookie the dashboard sets once its shell
// loads. Its value must be echoed back in the CSRF header on
// state-changing requests. Observed behavior, not a documented contract,
// so it stays overridable through configuration.
const DefaultCSRFCookieName = "ft-panda-csrf-token"

// Cookie is a single browser cookie record.
type Cookie struct {
	Name   string  `json:"name"`
	Value  string  `json:"value"`
	Domain string  `json:"domain"`
	Path   string  `json:"path,omitempty"`
	// Expires is epoch seconds. Zero or negative means a session cookie.
	Expires float64 `json:"expires,omitempty"`
	Secure  bool    `json:"secure,omitempty"`
}

// Bundle is an ordered collection of cookies representing one
// authenticated identity. A bundle is never mutated in place; a new
// login supersedes it wholesale.
type Bundle struct {
	Cookies []Cookie `json:"cookies"`
}

// Empty reports whether the bundle carries no cookies at all.
func (b Bundle) Empty() bool {
	return len(b.Cookies) == 0
}

// Len returns the number of cookies in the bundle.
func (b Bundle) Len() int {
	return len(b.Cookies)
}

// CSRFToken returns the value of the named CSRF cookie and whether it
// was present. An empty cookieName selects DefaultCSRFCookieName.
func (b Bundle) CSRFToken(cookieName string) (string, bool) {
	if cookieName == "" {
		cookieName = DefaultCSRFCookieName
	}
	for _, c := range b.Cookies {
		if c.Name == cookieName {
			return c.Value, true
		}
	}
	return "", false
}

// Usable reports whether the bundle is non-empty and carries the
// distinguished CSRF cookie. Only usable bundles can drive
// state-changing dashboard requests.
func (b Bundle) Usable(cookieName string) bool {
	if b.Empty() {
		return false
	}
	_, ok := b.CSRFToken(cookieName)
	return ok
}

// FilterDomain returns a new bundle containing only cookies whose
// domain contains the given fragment (e.g. "amazon.com" matches both
// "amazon.com" and ".amazon.com").
func (b Bundle) FilterDomain(fragment string) Bundle {
	if fragment == "" {
		return Bundle{Cookies: append([]Cookie(nil), b.Cookies...)}
	}
	var filtered []Cookie
	for _, c := range b.Cookies {
		if strings.Contains(c.Domain, fragment) {
			filtered = append(filtered, c)
		}
	}
	return Bundle{Cookies: filtered}
}
