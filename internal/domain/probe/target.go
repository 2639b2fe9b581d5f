package probe

import "strings"

// NormalizeTarget canonicalizes a target identifier so that trivially
// different spellings of the same target share a cache key. Only the scheme
// and host are case-folded; path, query and fragment are kept verbatim
// because servers may treat them case-sensitively.
func NormalizeTarget(target string) string {
	t := strings.TrimSpace(target)

	scheme := ""
	if i := strings.Index(t, "://"); i >= 0 {
		scheme, t = strings.ToLower(t[:i])+"://", t[i+3:]
	}

	host, rest := t, ""
	if i := strings.IndexAny(t, "/?#"); i >= 0 {
		host, rest = t[:i], t[i:]
	}
	host = strings.TrimSuffix(strings.ToLower(host), ".")
	if !strings.ContainsAny(rest, "?#") {
		rest = strings.TrimRight(rest, "/")
	}
	return scheme + host + rest
}
