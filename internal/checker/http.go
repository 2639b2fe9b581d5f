package checker

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/khanhnv2901/anomradar/internal/domain/probe"
	"github.com/khanhnv2901/anomradar/internal/shared/constants"
)

// HTTPConfig configures the HTTP probe.
type HTTPConfig struct {
	Timeout         time.Duration
	UserAgent       string
	FollowRedirects bool
	MaxRedirects    int
	// Transport overrides the default round tripper, mainly for tests.
	Transport http.RoundTripper
}

// HTTPProbe fetches the target and reviews the response headers, cookies
// and CORS policy.
type HTTPProbe struct {
	cfg    HTTPConfig
	client *http.Client
	logger *zap.Logger
}

// NewHTTPProbe builds the probe; zero config fields fall back to defaults.
func NewHTTPProbe(cfg HTTPConfig, logger *zap.Logger) *HTTPProbe {
	if cfg.UserAgent == "" {
		cfg.UserAgent = constants.DefaultUserAgent
	}
	if cfg.MaxRedirects <= 0 {
		cfg.MaxRedirects = constants.DefaultMaxRedirects
	}
	transport := cfg.Transport
	if transport == nil {
		transport = http.DefaultTransport.(*http.Transport).Clone()
	}

	client := &http.Client{
		Timeout:   cfg.Timeout,
		Transport: transport,
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			if !cfg.FollowRedirects || len(via) > cfg.MaxRedirects {
				return http.ErrUseLastResponse
			}
			return nil
		},
	}
	return &HTTPProbe{cfg: cfg, client: client, logger: orNop(logger).Named(ProbeHTTP)}
}

func (h *HTTPProbe) Name() string {
	return ProbeHTTP
}

// Execute performs a single GET against the target.
func (h *HTTPProbe) Execute(ctx context.Context, target string) probe.Result {
	info := ParseTarget(target)
	u := info.FullURL

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return probe.Failed(probe.NewError(probe.CategoryProtocol, u, fmt.Errorf("create request: %w", err)))
	}
	req.Header.Set("User-Agent", h.cfg.UserAgent)

	start := time.Now()
	resp, err := h.client.Do(req)
	if err != nil {
		h.logger.Debug("request failed", zap.String("url", u), zap.Error(err))
		return probe.Failed(probe.Wrap(u, err))
	}
	defer resp.Body.Close()

	body, readErr := io.ReadAll(io.LimitReader(resp.Body, constants.HTTPBodyLimitBytes))
	elapsed := time.Since(start)

	https := resp.Request.URL.Scheme == "https"
	finalURL := resp.Request.URL.String()

	detail := map[string]any{
		"url":              u,
		"final_url":        finalURL,
		"status_code":      resp.StatusCode,
		"headers":          flattenHeaders(resp.Header),
		"response_time_ms": elapsed.Milliseconds(),
		"content_length":   len(body),
	}
	if resp.TLS != nil {
		detail["tls"] = DescribeConnection(resp.TLS)
	}

	var findings []probe.Finding
	if finalURL != u {
		findings = append(findings, probe.NewFinding(probe.SeverityInfo,
			"Redirected to "+finalURL, map[string]any{"from": u, "to": finalURL}))
	}
	switch {
	case resp.StatusCode >= 400:
		findings = append(findings, probe.NewFinding(probe.SeverityMedium,
			fmt.Sprintf("HTTP error status: %d", resp.StatusCode),
			map[string]any{"status_code": resp.StatusCode}))
	case resp.StatusCode >= 300:
		findings = append(findings, probe.NewFinding(probe.SeverityLow,
			fmt.Sprintf("Redirect not followed: %d", resp.StatusCode),
			map[string]any{"status_code": resp.StatusCode, "location": resp.Header.Get("Location")}))
	}

	headerFindings, headerStatus := AnalyzeSecurityHeaders(resp.Header, https)
	findings = append(findings, headerFindings...)
	detail["security_headers"] = headerStatus

	if cookies := AnalyzeCookies(resp, https); len(cookies) > 0 {
		findings = append(findings, cookieFindings(cookies)...)
		detail["cookies"] = cookies
	}
	findings = append(findings, AnalyzeCORS(resp.Header)...)
	findings = append(findings, contentFindings(string(body), resp.Request.URL, https, detail)...)
	detail["cache_policy"] = AnalyzeCachePolicy(resp.Header)

	summary := fmt.Sprintf("HTTP %d in %dms, %d finding(s)", resp.StatusCode, elapsed.Milliseconds(), len(findings))
	if readErr != nil && !errors.Is(readErr, io.EOF) {
		h.logger.Debug("body read failed", zap.String("url", u), zap.Error(readErr))
		return probe.Partial(summary, detail, probe.Wrap(u, readErr), findings...)
	}
	return probe.Success(summary, detail, findings...)
}

func flattenHeaders(h http.Header) map[string]string {
	out := make(map[string]string, len(h))
	for name := range h {
		out[name] = h.Get(name)
	}
	return out
}
