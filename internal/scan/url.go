package scan

import (
	"fmt"
	"net"
	"net/url"
	"strings"
)

// ValidationError marks a URL rejected before any network activity. Jobs
// failing this check terminate in StateErrorValidation.
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string {
	return "url validation: " + e.Reason
}

// private or otherwise unfetchable TLDs, rejected without DNS resolution.
var blockedSuffixes = []string{".local", ".internal", ".test", ".example", ".invalid", ".localhost"}

// ValidateTargetURL rejects URLs that must never be fetched: non-http(s)
// schemes, embedded credentials, loopback, private, link-local, multicast and
// cloud metadata addresses, and private/test TLDs. It performs no DNS lookup;
// IP literals are checked directly.
func ValidateTargetURL(raw string) error {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return &ValidationError{Reason: "empty URL"}
	}
	u, err := url.Parse(raw)
	if err != nil {
		return &ValidationError{Reason: fmt.Sprintf("invalid URL: %v", err)}
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return &ValidationError{Reason: fmt.Sprintf("scheme %q not allowed, only http/https", u.Scheme)}
	}
	if u.User != nil {
		return &ValidationError{Reason: "embedded credentials not allowed"}
	}
	host := strings.ToLower(u.Hostname())
	if host == "" {
		return &ValidationError{Reason: "missing hostname"}
	}
	if host == "localhost" || strings.HasSuffix(host, ".localhost") || host == "0.0.0.0" {
		return &ValidationError{Reason: "loopback addresses not allowed"}
	}
	if ip := net.ParseIP(host); ip != nil {
		if isBlockedIP(ip) {
			return &ValidationError{Reason: fmt.Sprintf("address %s is private or internal", host)}
		}
		return nil
	}
	for _, suffix := range blockedSuffixes {
		if strings.HasSuffix(host, suffix) {
			return &ValidationError{Reason: fmt.Sprintf("domain %s is private or reserved", host)}
		}
	}
	return nil
}

func isBlockedIP(ip net.IP) bool {
	// 169.254.169.254 falls under link-local; listed checks cover the cloud
	// metadata service as well.
	return ip.IsLoopback() ||
		ip.IsPrivate() ||
		ip.IsLinkLocalUnicast() ||
		ip.IsLinkLocalMulticast() ||
		ip.IsMulticast() ||
		ip.IsUnspecified()
}

// NormalizeURL standardizes a target URL: lowercases scheme and host, strips
// default ports and fragments, and sorts query parameters.
func NormalizeURL(raw string) (string, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("parse url: %w", err)
	}
	u.Scheme = strings.ToLower(u.Scheme)
	u.Host = strings.ToLower(u.Host)
	if u.Scheme == "http" {
		u.Host = strings.TrimSuffix(u.Host, ":80")
	}
	if u.Scheme == "https" {
		u.Host = strings.TrimSuffix(u.Host, ":443")
	}
	u.Fragment = ""
	u.RawQuery = u.Query().Encode()
	return u.String(), nil
}
