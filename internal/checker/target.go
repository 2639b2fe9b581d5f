package checker

import (
	"net"
	"net/url"
	"strings"
)

// TargetInfo contains parsed target information
type TargetInfo struct {
	Original string // Original target string
	Scheme   string // http or https, defaulted to https
	Host     string // Hostname (without protocol, path, port)
	Port     string // Port if specified
	Path     string // Path if specified
	FullURL  string // Full normalized URL (for HTTP requests)
}

// ParseTarget parses a target string into structured components.
// This handles various input formats:
//   - example.com
//   - http://example.com
//   - https://example.com:443/path
//   - example.com:8080
//
// Targets without a scheme are treated as https.
func ParseTarget(target string) *TargetInfo {
	target = strings.TrimSpace(target)
	info := &TargetInfo{Original: target}

	parsed, err := url.Parse(target)
	if err != nil || parsed.Scheme == "" || parsed.Host == "" || strings.Contains(parsed.Scheme, ".") {
		parsed, err = url.Parse("https://" + target)
	}

	if err == nil && parsed != nil {
		info.Scheme = strings.ToLower(parsed.Scheme)
		info.Host = strings.ToLower(strings.TrimSuffix(parsed.Hostname(), "."))
		info.Port = parsed.Port()
		info.Path = parsed.Path
		info.FullURL = parsed.String()
	}

	// Fallback for inputs url.Parse rejects outright
	if info.Host == "" {
		host := strings.TrimPrefix(strings.TrimPrefix(target, "http://"), "https://")
		host = strings.Split(host, "/")[0]
		if h, p, splitErr := net.SplitHostPort(host); splitErr == nil {
			info.Host, info.Port = h, p
		} else {
			info.Host = host
		}
		if info.Scheme == "" {
			info.Scheme = "https"
		}
		info.FullURL = info.Scheme + "://" + host
	}

	return info
}

// NormalizeHTTPTarget returns a full URL with scheme.
func NormalizeHTTPTarget(target string) string {
	return ParseTarget(target).FullURL
}

// ExtractHost returns the bare hostname, as needed for DNS lookups.
func ExtractHost(target string) string {
	return ParseTarget(target).Host
}

// HostPort returns host and port for a direct TCP connection, using
// defaultPort when the target names none.
func HostPort(target, defaultPort string) (string, string) {
	info := ParseTarget(target)
	if info.Port == "" {
		return info.Host, defaultPort
	}
	return info.Host, info.Port
}
