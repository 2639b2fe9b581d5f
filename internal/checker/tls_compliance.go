package checker

import (
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/khanhnv2901/anomradar/internal/domain/probe"
	"github.com/khanhnv2901/anomradar/internal/shared/constants"
)

// versionSSL30 represents the legacy SSL 3.0 protocol version (0x0300).
// Defined locally so we can detect/report SSL 3.0 without referencing the
// deprecated tls.VersionSSL30 symbol.
const versionSSL30 uint16 = 0x0300

// Weak cipher suites that should not be used (PCI DSS 4.1)
var weakCipherSuites = map[uint16]string{
	tls.TLS_RSA_WITH_RC4_128_SHA:                "TLS_RSA_WITH_RC4_128_SHA",
	tls.TLS_RSA_WITH_3DES_EDE_CBC_SHA:           "TLS_RSA_WITH_3DES_EDE_CBC_SHA",
	tls.TLS_RSA_WITH_AES_128_CBC_SHA:            "TLS_RSA_WITH_AES_128_CBC_SHA",
	tls.TLS_RSA_WITH_AES_256_CBC_SHA:            "TLS_RSA_WITH_AES_256_CBC_SHA",
	tls.TLS_ECDHE_ECDSA_WITH_RC4_128_SHA:        "TLS_ECDHE_ECDSA_WITH_RC4_128_SHA",
	tls.TLS_ECDHE_RSA_WITH_RC4_128_SHA:          "TLS_ECDHE_RSA_WITH_RC4_128_SHA",
	tls.TLS_ECDHE_RSA_WITH_3DES_EDE_CBC_SHA:     "TLS_ECDHE_RSA_WITH_3DES_EDE_CBC_SHA",
	tls.TLS_ECDHE_ECDSA_WITH_AES_128_CBC_SHA256: "TLS_ECDHE_ECDSA_WITH_AES_128_CBC_SHA256",
}

// ConnectionInfo summarizes a negotiated TLS session.
type ConnectionInfo struct {
	Version     string `json:"version"`
	CipherSuite string `json:"cipher_suite"`
	Protocol    string `json:"alpn,omitempty"`
}

// DescribeConnection extracts version and cipher names from state.
func DescribeConnection(state *tls.ConnectionState) ConnectionInfo {
	return ConnectionInfo{
		Version:     tlsVersionString(state.Version),
		CipherSuite: cipherSuiteString(state.CipherSuite),
		Protocol:    state.NegotiatedProtocol,
	}
}

// AnalyzeTLSCompliance flags legacy protocol versions, weak ciphers and
// missing forward secrecy on a negotiated session.
func AnalyzeTLSCompliance(state *tls.ConnectionState) []probe.Finding {
	if state == nil {
		return nil
	}
	info := DescribeConnection(state)
	var findings []probe.Finding

	if state.Version < tls.VersionTLS12 {
		findings = append(findings, probe.NewFinding(probe.SeverityHigh,
			fmt.Sprintf("Insecure TLS version: %s", info.Version),
			map[string]any{"version": info.Version, "recommendation": "Disable everything below TLS 1.2"}))
	}

	if name, weak := weakCipherSuites[state.CipherSuite]; weak {
		findings = append(findings, probe.NewFinding(probe.SeverityMedium,
			fmt.Sprintf("Weak cipher suite negotiated: %s", name),
			map[string]any{"cipher_suite": name}))
	} else if state.Version < tls.VersionTLS13 && !strings.Contains(info.CipherSuite, "DHE") {
		findings = append(findings, probe.NewFinding(probe.SeverityLow,
			"Cipher suite does not provide forward secrecy",
			map[string]any{"cipher_suite": info.CipherSuite}))
	}

	return findings
}

// CertificateInfo is the detail payload describing a leaf certificate.
type CertificateInfo struct {
	Subject       string   `json:"subject"`
	Issuer        string   `json:"issuer"`
	NotBefore     string   `json:"not_before"`
	NotAfter      string   `json:"not_after"`
	DaysRemaining int      `json:"days_remaining"`
	DNSNames      []string `json:"subject_alt_names"`
	SerialNumber  string   `json:"serial_number"`
	SignatureAlg  string   `json:"signature_algorithm"`
	SelfSigned    bool     `json:"self_signed"`
}

func analyzeCertificate(cert *x509.Certificate, now time.Time) CertificateInfo {
	return CertificateInfo{
		Subject:       cert.Subject.String(),
		Issuer:        cert.Issuer.String(),
		NotBefore:     cert.NotBefore.UTC().Format(time.RFC3339),
		NotAfter:      cert.NotAfter.UTC().Format(time.RFC3339),
		DaysRemaining: daysUntil(cert.NotAfter, now),
		DNSNames:      cert.DNSNames,
		SerialNumber:  cert.SerialNumber.String(),
		SignatureAlg:  cert.SignatureAlgorithm.String(),
		SelfSigned:    cert.Subject.String() == cert.Issuer.String(),
	}
}

func (c CertificateInfo) detail() map[string]any {
	return map[string]any{
		"subject":             c.Subject,
		"issuer":              c.Issuer,
		"not_before":          c.NotBefore,
		"not_after":           c.NotAfter,
		"days_remaining":      c.DaysRemaining,
		"subject_alt_names":   c.DNSNames,
		"serial_number":       c.SerialNumber,
		"signature_algorithm": c.SignatureAlg,
		"self_signed":         c.SelfSigned,
	}
}

func daysUntil(t, now time.Time) int {
	return int(math.Floor(t.Sub(now).Hours() / 24))
}

// expiryFinding grades the remaining validity of a certificate.
func expiryFinding(info CertificateInfo, notAfter, now time.Time) probe.Finding {
	remaining := notAfter.Sub(now)
	days := info.DaysRemaining
	switch {
	case remaining < 0:
		return probe.NewFinding(probe.SeverityCritical, "SSL certificate has expired",
			map[string]any{"expired_days_ago": -days})
	case remaining < constants.CertExpiryHighWindow:
		return probe.NewFinding(probe.SeverityHigh,
			fmt.Sprintf("SSL certificate expires soon (%d days)", days),
			map[string]any{"days_until_expiry": days})
	case remaining < constants.CertExpiryMediumWindow:
		return probe.NewFinding(probe.SeverityMedium,
			fmt.Sprintf("SSL certificate expires in %d days", days),
			map[string]any{"days_until_expiry": days})
	default:
		return probe.NewFinding(probe.SeverityInfo,
			fmt.Sprintf("SSL certificate is valid (%d days remaining)", days),
			map[string]any{"days_until_expiry": days})
	}
}

// tlsVersionString converts TLS version constant to string
func tlsVersionString(version uint16) string {
	switch version {
	case versionSSL30:
		return "SSL 3.0"
	case tls.VersionTLS10:
		return "TLS 1.0"
	case tls.VersionTLS11:
		return "TLS 1.1"
	case tls.VersionTLS12:
		return "TLS 1.2"
	case tls.VersionTLS13:
		return "TLS 1.3"
	default:
		return fmt.Sprintf("Unknown (0x%04x)", version)
	}
}

// cipherSuiteString converts cipher suite constant to string
func cipherSuiteString(suite uint16) string {
	if name, ok := weakCipherSuites[suite]; ok {
		return name
	}
	if name := tls.CipherSuiteName(suite); name != "" {
		return name
	}
	return fmt.Sprintf("Unknown (0x%04x)", suite)
}
