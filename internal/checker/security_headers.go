package checker

import (
	"net/http"
	"strings"

	"github.com/khanhnv2901/anomradar/internal/domain/probe"
)

// SecurityHeaderSpec describes one header the HTTP probe expects.
type SecurityHeaderSpec struct {
	Name        string
	Severity    probe.Severity // severity when the header is missing
	Description string
	HTTPSOnly   bool                        // only meaningful over TLS
	CheckFunc   func(value string) []string // issues with a present value
}

// securityHeaderSpecs is evaluated in order so findings come out stable.
var securityHeaderSpecs = []SecurityHeaderSpec{
	{
		Name:        "Strict-Transport-Security",
		Severity:    probe.SeverityMedium,
		Description: "HSTS header enforces HTTPS",
		HTTPSOnly:   true,
		CheckFunc:   checkHSTS,
	},
	{
		Name:        "Content-Security-Policy",
		Severity:    probe.SeverityMedium,
		Description: "Mitigates XSS attacks",
		CheckFunc:   checkCSP,
	},
	{
		Name:        "X-Frame-Options",
		Severity:    probe.SeverityLow,
		Description: "Protects against clickjacking",
		CheckFunc:   checkXFrameOptions,
	},
	{
		Name:        "X-Content-Type-Options",
		Severity:    probe.SeverityLow,
		Description: "Prevents MIME sniffing",
		CheckFunc:   checkXContentTypeOptions,
	},
	{
		Name:        "X-XSS-Protection",
		Severity:    probe.SeverityLow,
		Description: "Legacy XSS protection",
	},
	{
		Name:        "Referrer-Policy",
		Severity:    probe.SeverityLow,
		Description: "Controls referrer information",
		CheckFunc:   checkReferrerPolicy,
	},
}

// informationDisclosureHeaders lists headers that should be removed/obfuscated
var informationDisclosureHeaders = []string{
	"Server",
	"X-Powered-By",
	"X-AspNet-Version",
	"X-AspNetMvc-Version",
}

var deprecatedHeaders = map[string]string{
	"Expect-CT":       "Expect-CT is deprecated. Remove this header.",
	"Public-Key-Pins": "Public-Key-Pins (HPKP) is deprecated and dangerous. Remove this header.",
}

// HeaderStatus is the per-header entry stored in the probe detail.
type HeaderStatus struct {
	Present     bool     `json:"present"`
	Value       string   `json:"value,omitempty"`
	Severity    string   `json:"severity"`
	Description string   `json:"description"`
	Issues      []string `json:"issues,omitempty"`
}

// AnalyzeSecurityHeaders checks response headers and returns findings in
// table order plus a per-header status map for the detail payload.
func AnalyzeSecurityHeaders(headers http.Header, https bool) ([]probe.Finding, map[string]HeaderStatus) {
	findings := make([]probe.Finding, 0)
	statuses := make(map[string]HeaderStatus, len(securityHeaderSpecs))

	for _, spec := range securityHeaderSpecs {
		if spec.HTTPSOnly && !https {
			continue
		}
		value := headers.Get(spec.Name)
		status := HeaderStatus{
			Present:     value != "",
			Value:       value,
			Severity:    spec.Severity.String(),
			Description: spec.Description,
		}

		if value == "" {
			findings = append(findings, probe.NewFinding(spec.Severity,
				"Missing security header: "+spec.Name,
				map[string]any{"header": spec.Name, "recommendation": spec.Description}))
		} else if spec.CheckFunc != nil {
			if issues := spec.CheckFunc(value); len(issues) > 0 {
				status.Issues = issues
				findings = append(findings, probe.NewFinding(probe.SeverityLow,
					"Weak security header: "+spec.Name,
					map[string]any{"header": spec.Name, "value": value, "issues": issues}))
			}
		}
		statuses[spec.Name] = status
	}

	for _, name := range informationDisclosureHeaders {
		if value := headers.Get(name); value != "" {
			findings = append(findings, probe.NewFinding(probe.SeverityInfo,
				name+" header exposes server information",
				map[string]any{"header": name, "value": value}))
		}
	}

	for _, name := range []string{"Expect-CT", "Public-Key-Pins"} {
		if headers.Get(name) != "" {
			findings = append(findings, probe.NewFinding(probe.SeverityLow, deprecatedHeaders[name],
				map[string]any{"header": name}))
		}
	}

	return findings, statuses
}

// checkHSTS validates the Strict-Transport-Security header
func checkHSTS(value string) []string {
	var issues []string
	value = strings.ToLower(value)

	if !strings.Contains(value, "max-age=") {
		issues = append(issues, "Missing 'max-age' directive")
	} else if maxAgeZero(value) {
		issues = append(issues, "max-age is set to 0 (HSTS disabled)")
	}
	if !strings.Contains(value, "includesubdomains") {
		issues = append(issues, "Missing 'includeSubDomains' directive")
	}
	return issues
}

func maxAgeZero(value string) bool {
	for _, part := range strings.Split(value, ";") {
		part = strings.TrimSpace(part)
		if strings.HasPrefix(part, "max-age=") {
			return strings.Trim(strings.TrimPrefix(part, "max-age="), `"`) == "0"
		}
	}
	return false
}

// checkCSP validates the Content-Security-Policy header
func checkCSP(value string) []string {
	var issues []string
	value = strings.ToLower(value)
	directives := parseCSPDirectives(value)

	if strings.Contains(value, "'unsafe-inline'") {
		issues = append(issues, "Contains 'unsafe-inline' which weakens CSP protection")
	}
	if strings.Contains(value, "'unsafe-eval'") {
		issues = append(issues, "Contains 'unsafe-eval' which allows eval() and similar functions")
	}
	if _, ok := directives["default-src"]; !ok {
		issues = append(issues, "Missing 'default-src' directive (recommended fallback)")
	}
	for _, token := range directives["script-src"] {
		switch {
		case token == "*":
			issues = append(issues, "Script sources allow any origin (*)")
		case token == "data:":
			issues = append(issues, "Script sources allow data: URIs which can enable CSP bypasses")
		case strings.HasPrefix(token, "http:"):
			issues = append(issues, "Script sources allow insecure http scheme")
		}
	}
	return issues
}

func parseCSPDirectives(value string) map[string][]string {
	result := make(map[string][]string)
	for _, part := range strings.Split(value, ";") {
		fields := strings.Fields(part)
		if len(fields) == 0 {
			continue
		}
		result[fields[0]] = fields[1:]
	}
	return result
}

// checkXFrameOptions validates the X-Frame-Options header
func checkXFrameOptions(value string) []string {
	value = strings.ToUpper(strings.TrimSpace(value))
	switch {
	case value == "DENY" || value == "SAMEORIGIN":
		return nil
	case strings.HasPrefix(value, "ALLOW-FROM"):
		return []string{"ALLOW-FROM is deprecated and not supported by modern browsers"}
	default:
		return []string{"Invalid X-Frame-Options value"}
	}
}

// checkXContentTypeOptions validates the X-Content-Type-Options header
func checkXContentTypeOptions(value string) []string {
	if strings.EqualFold(strings.TrimSpace(value), "nosniff") {
		return nil
	}
	return []string{"Invalid value, should be 'nosniff'"}
}

// checkReferrerPolicy validates the Referrer-Policy header
func checkReferrerPolicy(value string) []string {
	value = strings.ToLower(value)
	for _, token := range strings.Split(value, ",") {
		switch strings.TrimSpace(token) {
		case "unsafe-url", "origin-when-cross-origin", "no-referrer-when-downgrade":
			return []string{"Policy may leak sensitive information in referrer"}
		}
	}
	return nil
}
