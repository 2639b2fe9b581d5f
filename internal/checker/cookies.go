package checker

import (
	"net/http"

	"github.com/khanhnv2901/anomradar/internal/domain/probe"
)

// CookieFinding describes one Set-Cookie header missing protective flags.
type CookieFinding struct {
	Name            string `json:"name"`
	MissingSecure   bool   `json:"missing_secure"`
	MissingHTTPOnly bool   `json:"missing_httponly"`
	MissingSameSite bool   `json:"missing_samesite"`
}

// AnalyzeCookies inspects Set-Cookie headers for missing Secure, HttpOnly
// and SameSite attributes. Secure is only required over https.
func AnalyzeCookies(resp *http.Response, https bool) []CookieFinding {
	if resp == nil || len(resp.Header["Set-Cookie"]) == 0 {
		return nil
	}

	var findings []CookieFinding
	for _, cookie := range resp.Cookies() {
		finding := CookieFinding{
			Name:            cookie.Name,
			MissingSecure:   https && !cookie.Secure,
			MissingHTTPOnly: !cookie.HttpOnly,
			MissingSameSite: cookie.SameSite == 0 || cookie.SameSite == http.SameSiteDefaultMode,
		}
		if finding.MissingSecure || finding.MissingHTTPOnly || finding.MissingSameSite {
			findings = append(findings, finding)
		}
	}
	return findings
}

func cookieFindings(cookies []CookieFinding) []probe.Finding {
	out := make([]probe.Finding, 0, len(cookies))
	for _, c := range cookies {
		var missing []string
		if c.MissingSecure {
			missing = append(missing, "Secure")
		}
		if c.MissingHTTPOnly {
			missing = append(missing, "HttpOnly")
		}
		if c.MissingSameSite {
			missing = append(missing, "SameSite")
		}
		out = append(out, probe.NewFinding(probe.SeverityLow,
			"Cookie "+c.Name+" missing protective attributes",
			map[string]any{"cookie": c.Name, "missing": missing}))
	}
	return out
}
