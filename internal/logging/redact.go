package logging

import (
	"net/url"
	"regexp"
	"strings"
)

const redactedIP = "<redacted-ip>"

var ipPatterns = []*regexp.Regexp{
	regexp.MustCompile(`\d{1,3}\.\d{1,3}\.\d{1,3}\.\d{1,3}`),
	// Full, compressed and bracketed IPv6.
	regexp.MustCompile(`\[?([0-9a-fA-F]{0,4}:){2,7}[0-9a-fA-F]{0,4}\]?`),
}

func redactIPs(s string) string {
	for _, p := range ipPatterns {
		s = p.ReplaceAllString(s, redactedIP)
	}
	return s
}

// SanitizeHost redacts the IP addresses of an API server address or of a
// free-text error message, keeping hostnames, schemes and ports:
//
//	https://192.168.1.100:6443          -> https://<redacted-ip>:6443
//	https://[2001:db8::1]:6443          -> https://<redacted-ip>:6443
//	https://api.example.com:6443        -> unchanged
//	""                                  -> <empty>
func SanitizeHost(host string) string {
	if host == "" {
		return "<empty>"
	}
	// Bare addresses and error text that merely quotes a URL.
	if !strings.Contains(host, "://") || strings.ContainsAny(host, " \t") {
		return redactIPs(host)
	}

	u, err := url.Parse(host)
	if err != nil {
		return redactIPs(host)
	}
	if redacted := redactIPs(u.Host); redacted != u.Host {
		u.Host = redacted
		return u.String()
	}
	return host
}
