package checker

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"net"
	"time"

	"go.uber.org/zap"

	"github.com/khanhnv2901/anomradar/internal/domain/probe"
)

// TLSConfig configures the certificate probe.
type TLSConfig struct {
	Timeout          time.Duration
	VerifyExpiration bool
	CheckWeakCiphers bool
	// RootCAs replaces the system pool when set.
	RootCAs *x509.CertPool
	Now     func() time.Time
}

// TLSProbe inspects the certificate and the negotiated session of a TLS
// endpoint.
type TLSProbe struct {
	cfg    TLSConfig
	logger *zap.Logger
}

var errNoCertificate = errors.New("server presented no certificate")

// NewTLSProbe builds the probe.
func NewTLSProbe(cfg TLSConfig, logger *zap.Logger) *TLSProbe {
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &TLSProbe{cfg: cfg, logger: orNop(logger).Named(ProbeSSL)}
}

func (t *TLSProbe) Name() string {
	return ProbeSSL
}

// Execute handshakes without verification, then verifies the chain on its
// own so that a bad certificate still yields a full report.
func (t *TLSProbe) Execute(ctx context.Context, target string) probe.Result {
	host, port := HostPort(target, "443")
	if host == "" {
		return probe.Failed(probe.NewError(probe.CategoryNotFound, target, errors.New("no host in target")))
	}
	addr := net.JoinHostPort(host, port)

	dialer := &tls.Dialer{
		NetDialer: &net.Dialer{Timeout: t.cfg.Timeout},
		Config: &tls.Config{
			ServerName:         host,
			InsecureSkipVerify: true, // #nosec G402 -- verified manually below
			MinVersion:         tls.VersionTLS10,
		},
	}
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		t.logger.Debug("handshake failed", zap.String("addr", addr), zap.Error(err))
		return probe.Failed(probe.Wrap(addr, err))
	}
	defer conn.Close()

	state := conn.(*tls.Conn).ConnectionState()
	session := DescribeConnection(&state)
	detail := map[string]any{
		"host":         host,
		"port":         port,
		"version":      session.Version,
		"cipher_suite": session.CipherSuite,
	}

	if len(state.PeerCertificates) == 0 {
		return probe.Partial("handshake completed without a certificate", detail,
			probe.NewError(probe.CategoryProtocol, addr, errNoCertificate))
	}

	now := t.cfg.Now()
	leaf := state.PeerCertificates[0]
	cert := analyzeCertificate(leaf, now)
	for k, v := range cert.detail() {
		detail[k] = v
	}

	var findings []probe.Finding
	verifyErr := t.verify(state.PeerCertificates, host, now)
	var rootsErr x509.SystemRootsError
	switch {
	case verifyErr == nil:
		detail["chain_verified"] = true
	case errors.As(verifyErr, &rootsErr):
		return probe.Partial("certificate retrieved but the chain could not be verified", detail,
			probe.NewError(probe.CategoryProtocol, addr, verifyErr))
	default:
		detail["chain_verified"] = false
		findings = append(findings, verificationFinding(cert, verifyErr))
	}

	if t.cfg.VerifyExpiration {
		findings = append(findings, expiryFinding(cert, leaf.NotAfter, now))
	}
	if t.cfg.CheckWeakCiphers {
		findings = append(findings, AnalyzeTLSCompliance(&state)...)
	}

	summary := fmt.Sprintf("%s, %s, certificate expires in %d days", session.Version, session.CipherSuite, cert.DaysRemaining)
	return probe.Success(summary, detail, findings...)
}

func (t *TLSProbe) verify(chain []*x509.Certificate, host string, now time.Time) error {
	intermediates := x509.NewCertPool()
	for _, c := range chain[1:] {
		intermediates.AddCert(c)
	}
	_, err := chain[0].Verify(x509.VerifyOptions{
		DNSName:       host,
		Roots:         t.cfg.RootCAs,
		Intermediates: intermediates,
		CurrentTime:   now,
	})
	return err
}

func verificationFinding(cert CertificateInfo, err error) probe.Finding {
	var hostErr x509.HostnameError
	var authErr x509.UnknownAuthorityError
	switch {
	case errors.As(err, &hostErr):
		return probe.NewFinding(probe.SeverityHigh, "Certificate does not match hostname",
			map[string]any{"host": hostErr.Host, "subject_alt_names": cert.DNSNames})
	case cert.SelfSigned && errors.As(err, &authErr):
		return probe.NewFinding(probe.SeverityHigh, "Self-signed certificate",
			map[string]any{"issuer": cert.Issuer, "error": err.Error()})
	default:
		return probe.NewFinding(probe.SeverityHigh, "Certificate verification failed",
			map[string]any{"error": err.Error()})
	}
}
