package handler

import (
	"net/http"
	"net/url"
	"strings"
)

// Allowlist gates gateway requests by Origin, with Referer as fallback for
// callers that do not send Origin. Entries are full origins
// ("https://example.com") or subdomain wildcards ("*.example.com"),
// compared case-insensitively.
//
// An empty list denies everything outside dev mode: misconfiguration fails
// closed.
type Allowlist struct {
	entries []string
	dev     bool
}

// NewAllowlist parses a comma-separated origin list.
func NewAllowlist(raw string, dev bool) *Allowlist {
	var entries []string
	for _, entry := range strings.Split(raw, ",") {
		entry = strings.ToLower(strings.TrimSpace(entry))
		if entry != "" {
			entries = append(entries, entry)
		}
	}
	return &Allowlist{entries: entries, dev: dev}
}

// Allows reports whether the request's origin is allow-listed.
func (a *Allowlist) Allows(r *http.Request) bool {
	if len(a.entries) == 0 {
		return a.dev
	}

	if origin := r.Header.Get("Origin"); origin != "" {
		if a.matches(strings.ToLower(origin)) {
			return true
		}
	}

	if referer := r.Header.Get("Referer"); referer != "" {
		if u, err := url.Parse(referer); err == nil && u.Scheme != "" && u.Host != "" {
			if a.matches(strings.ToLower(u.Scheme + "://" + u.Host)) {
				return true
			}
		}
	}

	return false
}

// AllowsOrigin reports whether a bare origin value is allow-listed. Used by
// the CORS layer, which sees only the Origin header.
func (a *Allowlist) AllowsOrigin(origin string) bool {
	if a.dev {
		return true
	}
	return a.matches(strings.ToLower(origin))
}

func (a *Allowlist) matches(origin string) bool {
	for _, entry := range a.entries {
		if entry == origin {
			return true
		}
		if domain, ok := strings.CutPrefix(entry, "*."); ok {
			if strings.HasSuffix(origin, "."+domain) ||
				origin == domain ||
				origin == "https://"+domain ||
				origin == "http://"+domain {
				return true
			}
		}
	}
	return false
}
