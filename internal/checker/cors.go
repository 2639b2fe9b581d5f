package checker

import (
	"net/http"
	"strings"

	"github.com/khanhnv2901/anomradar/internal/domain/probe"
)

// AnalyzeCORS flags risky CORS response headers. A response without
// Access-Control-Allow-Origin yields nothing.
func AnalyzeCORS(headers http.Header) []probe.Finding {
	origin := headers.Get("Access-Control-Allow-Origin")
	if origin == "" {
		return nil
	}
	credentials := strings.EqualFold(headers.Get("Access-Control-Allow-Credentials"), "true")

	var findings []probe.Finding
	switch {
	case origin == "*" && credentials:
		findings = append(findings, probe.NewFinding(probe.SeverityMedium,
			"CORS allows credentials with wildcard origin",
			map[string]any{"allow_origin": origin, "allow_credentials": true}))
	case origin == "*":
		findings = append(findings, probe.NewFinding(probe.SeverityLow,
			"CORS allows any origin (*)",
			map[string]any{"allow_origin": origin}))
	case origin == "null":
		findings = append(findings, probe.NewFinding(probe.SeverityMedium,
			"CORS trusts the null origin",
			map[string]any{"allow_origin": origin}))
	case !varyIncludesOrigin(headers.Values("Vary")):
		findings = append(findings, probe.NewFinding(probe.SeverityInfo,
			"Vary: Origin header missing (responses may be cached incorrectly)",
			map[string]any{"allow_origin": origin}))
	}

	if strings.Contains(headers.Get("Access-Control-Allow-Headers"), "*") {
		findings = append(findings, probe.NewFinding(probe.SeverityLow,
			"Access-Control-Allow-Headers allows any header (*)", nil))
	}
	return findings
}

func varyIncludesOrigin(values []string) bool {
	for _, value := range values {
		for _, token := range strings.Split(value, ",") {
			if strings.EqualFold(strings.TrimSpace(token), "origin") {
				return true
			}
		}
	}
	return false
}
