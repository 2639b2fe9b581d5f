package checker

import (
	"net/http"
	"testing"

	"github.com/khanhnv2901/anomradar/internal/domain/probe"
)

func TestAnalyzeCookies(t *testing.T) {
	resp := &http.Response{
		Header: http.Header{},
	}
	resp.Header.Add("Set-Cookie", "session=abc123; Path=/")
	resp.Header.Add("Set-Cookie", "prefs=dark; Path=/; Secure; SameSite=Lax")
	resp.Header.Add("Set-Cookie", "ok=1; Path=/; Secure; HttpOnly; SameSite=Strict")

	findings := AnalyzeCookies(resp, true)
	if len(findings) != 2 {
		t.Fatalf("expected 2 findings, got %d", len(findings))
	}

	if !findings[0].MissingSecure || !findings[0].MissingHTTPOnly || !findings[0].MissingSameSite {
		t.Errorf("expected session cookie to miss every flag: %+v", findings[0])
	}

	if findings[1].MissingSecure {
		t.Errorf("expected prefs cookie to include Secure flag")
	}

	if !findings[1].MissingHTTPOnly {
		t.Errorf("expected prefs cookie to miss HttpOnly flag")
	}
}

func TestAnalyzeCookies_SecureNotRequiredOverHTTP(t *testing.T) {
	resp := &http.Response{Header: http.Header{}}
	resp.Header.Add("Set-Cookie", "id=1; HttpOnly; SameSite=Lax")

	if findings := AnalyzeCookies(resp, false); len(findings) != 0 {
		t.Fatalf("expected no findings over plain http, got %+v", findings)
	}
}

func TestAnalyzeCookies_NoSetCookie(t *testing.T) {
	resp := &http.Response{
		Header: http.Header{},
	}

	if findings := AnalyzeCookies(resp, true); len(findings) != 0 {
		t.Fatalf("expected no findings, got %d", len(findings))
	}
}

func TestCookieFindings(t *testing.T) {
	out := cookieFindings([]CookieFinding{{Name: "sid", MissingSecure: true, MissingSameSite: true}})
	if len(out) != 1 {
		t.Fatalf("expected 1 finding, got %d", len(out))
	}
	if out[0].Severity != probe.SeverityLow {
		t.Errorf("expected low severity, got %s", out[0].Severity)
	}
	missing, _ := out[0].Detail["missing"].([]string)
	if len(missing) != 2 || missing[0] != "Secure" || missing[1] != "SameSite" {
		t.Errorf("unexpected missing list: %v", missing)
	}
}
