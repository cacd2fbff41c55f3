package domain

import (
	"net/netip"
	"net/url"
	"strings"

	"golang.org/x/net/idna"
)

// maxLabelLen is the DNS limit for one label.
const maxLabelLen = 63

// ParseHostname normalizes s into a Hostname: lowercase, no trailing dot,
// no port, at least one dot, every label made of letters, digits and inner
// hyphens. Internationalized names are converted to their punycode form.
// IP literals are rejected since they can never be the operand of a domain
// rule.
func ParseHostname(s string) (string, bool) {
	h := strings.ToLower(strings.TrimSpace(s))
	if host, port, ok := strings.Cut(h, ":"); ok && isPort(port) {
		h = host
	}
	h = strings.TrimSuffix(h, ".")
	if h == "" || !strings.Contains(h, ".") {
		return "", false
	}
	if strings.HasPrefix(h, ".") || strings.Contains(h, "..") {
		return "", false
	}
	if _, err := netip.ParseAddr(h); err == nil {
		return "", false
	}
	ascii, err := idna.Lookup.ToASCII(h)
	if err != nil {
		return "", false
	}
	for _, label := range strings.Split(ascii, ".") {
		if !isLDHLabel(label) {
			return "", false
		}
	}
	return ascii, true
}

// ValidKeyword reports whether k can be the operand of a keyword rule: a
// single hostname label of at least two characters.
func ValidKeyword(k string) bool {
	return len(k) >= 2 && isLDHLabel(k)
}

// isLDHLabel reports whether label is a non-empty run of lowercase letters,
// digits and hyphens that neither starts nor ends with a hyphen.
func isLDHLabel(label string) bool {
	if label == "" || len(label) > maxLabelLen {
		return false
	}
	if label[0] == '-' || label[len(label)-1] == '-' {
		return false
	}
	for i := 0; i < len(label); i++ {
		c := label[i]
		if (c < 'a' || c > 'z') && (c < '0' || c > '9') && c != '-' {
			return false
		}
	}
	return true
}

// HostFromURL extracts the hostname of an absolute URL, port stripped.
func HostFromURL(raw string) (string, bool) {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil || u.Host == "" {
		return "", false
	}
	return ParseHostname(u.Hostname())
}

func isPort(s string) bool {
	if s == "" {
		return false
	}
	for _, c := range s {
		if c < '0' || c > '9' {
			return false
		}
	}
	return true
}
