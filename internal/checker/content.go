package checker

import (
	"net/http"
	"net/url"
	"regexp"
	"strings"

	"github.com/khanhnv2901/anomradar/internal/domain/probe"
)

// CachePolicy summarizes the caching headers of a response.
type CachePolicy struct {
	CacheControl string   `json:"cache_control,omitempty"`
	Expires      string   `json:"expires,omitempty"`
	Pragma       string   `json:"pragma,omitempty"`
	Issues       []string `json:"issues,omitempty"`
}

// AnalyzeCachePolicy extracts cache headers for the probe detail.
func AnalyzeCachePolicy(h http.Header) CachePolicy {
	policy := CachePolicy{
		CacheControl: h.Get("Cache-Control"),
		Expires:      h.Get("Expires"),
		Pragma:       h.Get("Pragma"),
	}

	cc := strings.ToLower(policy.CacheControl)
	switch {
	case policy.CacheControl == "" && policy.Expires == "":
		policy.Issues = append(policy.Issues, "No caching headers (Cache-Control/Expires) present")
	case policy.CacheControl == "":
		policy.Issues = append(policy.Issues, "Cache-Control header missing")
	}
	if policy.CacheControl != "" && !strings.Contains(cc, "max-age") &&
		!strings.Contains(cc, "no-cache") && !strings.Contains(cc, "no-store") {
		policy.Issues = append(policy.Issues, "Cache-Control lacks explicit max-age/no-cache directives")
	}
	if strings.EqualFold(policy.Pragma, "no-cache") {
		policy.Issues = append(policy.Issues, "Pragma: no-cache detected (legacy caching directive)")
	}
	return policy
}

var scriptSrcPattern = regexp.MustCompile(`(?i)<script[^>]+src=["']([^"']+)["']`)

// AnalyzeThirdPartyScripts returns the distinct script URLs served from a
// host other than base, in page order.
func AnalyzeThirdPartyScripts(body string, base *url.URL) []string {
	if body == "" || base == nil {
		return nil
	}
	baseHost := strings.ToLower(base.Hostname())
	seen := make(map[string]struct{})
	var scripts []string

	for _, match := range scriptSrcPattern.FindAllStringSubmatch(body, -1) {
		src := strings.TrimSpace(match[1])
		if src == "" || strings.HasPrefix(strings.ToLower(src), "data:") {
			continue
		}
		u, err := base.Parse(src)
		if err != nil || u.Hostname() == "" || strings.ToLower(u.Hostname()) == baseHost {
			continue
		}
		resolved := u.String()
		if _, ok := seen[resolved]; ok {
			continue
		}
		seen[resolved] = struct{}{}
		scripts = append(scripts, resolved)
	}
	return scripts
}

// MixedContent counts plain-http resources referenced by an https page.
type MixedContent struct {
	URLs    []string `json:"urls"`
	Scripts int      `json:"scripts,omitempty"`
	Styles  int      `json:"styles,omitempty"`
	Images  int      `json:"images,omitempty"`
	Media   int      `json:"media,omitempty"`
	Iframes int      `json:"iframes,omitempty"`
}

type mixedContentRule struct {
	pattern *regexp.Regexp
	count   func(*MixedContent)
}

var mixedContentRules = []mixedContentRule{
	{regexp.MustCompile(`(?i)<script[^>]+src=['"]?(http://[^'"\s>]+)`), func(m *MixedContent) { m.Scripts++ }},
	{regexp.MustCompile(`(?i)<iframe[^>]+src=['"]?(http://[^'"\s>]+)`), func(m *MixedContent) { m.Iframes++ }},
	{regexp.MustCompile(`(?i)<link[^>]+href=['"]?(http://[^'"\s>]+)['"]?[^>]*rel=['"]?stylesheet`), func(m *MixedContent) { m.Styles++ }},
	{regexp.MustCompile(`(?i)<link[^>]+rel=['"]?stylesheet['"]?[^>]*href=['"]?(http://[^'"\s>]+)`), func(m *MixedContent) { m.Styles++ }},
	{regexp.MustCompile(`(?i)@import\s+url\(['"]?(http://[^'"\s)]+)`), func(m *MixedContent) { m.Styles++ }},
	{regexp.MustCompile(`(?i)<img[^>]+src=['"]?(http://[^'"\s>]+)`), func(m *MixedContent) { m.Images++ }},
	{regexp.MustCompile(`(?i)<(?:video|audio|source)[^>]+src=['"]?(http://[^'"\s>]+)`), func(m *MixedContent) { m.Media++ }},
}

// AnalyzeMixedContent returns nil unless an https page loads http resources.
func AnalyzeMixedContent(body string, https bool) *MixedContent {
	if !https || body == "" {
		return nil
	}
	mc := &MixedContent{}
	seen := make(map[string]struct{})
	for _, rule := range mixedContentRules {
		for _, match := range rule.pattern.FindAllStringSubmatch(body, -1) {
			if _, ok := seen[match[1]]; ok {
				continue
			}
			seen[match[1]] = struct{}{}
			mc.URLs = append(mc.URLs, match[1])
			rule.count(mc)
		}
	}
	if len(mc.URLs) == 0 {
		return nil
	}
	return mc
}

// Severity ranks active content above passive content.
func (m *MixedContent) Severity() probe.Severity {
	switch {
	case m.Scripts > 0 || m.Iframes > 0:
		return probe.SeverityCritical
	case m.Styles > 0:
		return probe.SeverityHigh
	default:
		return probe.SeverityMedium
	}
}

func (m *MixedContent) kinds() string {
	var kinds []string
	for _, k := range []struct {
		n    int
		name string
	}{{m.Scripts, "scripts"}, {m.Styles, "stylesheets"}, {m.Iframes, "iframes"}, {m.Images, "images"}, {m.Media, "media"}} {
		if k.n > 0 {
			kinds = append(kinds, k.name)
		}
	}
	return strings.Join(kinds, ", ")
}

// contentFindings reviews the response body of an HTML page.
func contentFindings(body string, final *url.URL, https bool, detail map[string]any) []probe.Finding {
	var findings []probe.Finding
	if mc := AnalyzeMixedContent(body, https); mc != nil {
		detail["mixed_content"] = mc
		findings = append(findings, probe.NewFinding(mc.Severity(),
			"Mixed content detected: "+mc.kinds(),
			map[string]any{"urls": mc.URLs}))
	}
	if scripts := AnalyzeThirdPartyScripts(body, final); len(scripts) > 0 {
		detail["third_party_scripts"] = scripts
		findings = append(findings, probe.NewFinding(probe.SeverityInfo,
			"Page loads third-party scripts",
			map[string]any{"scripts": scripts}))
	}
	return findings
}
