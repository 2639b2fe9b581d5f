package checker

import (
	"context"
	"crypto/x509"
	"net"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/khanhnv2901/anomradar/internal/domain/probe"
)

func newTLSServer(t *testing.T) (*httptest.Server, *x509.CertPool) {
	t.Helper()
	srv := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	t.Cleanup(srv.Close)
	pool := x509.NewCertPool()
	pool.AddCert(srv.Certificate())
	return srv, pool
}

func newTLSProbe(t *testing.T, cfg TLSConfig) *TLSProbe {
	t.Helper()
	if cfg.Timeout == 0 {
		cfg.Timeout = 5 * time.Second
	}
	return NewTLSProbe(cfg, zaptest.NewLogger(t))
}

func TestTLSProbe_Name(t *testing.T) {
	assert.Equal(t, "ssl", newTLSProbe(t, TLSConfig{}).Name())
}

func TestTLSProbe_TrustedCertificate(t *testing.T) {
	srv, pool := newTLSServer(t)
	p := newTLSProbe(t, TLSConfig{VerifyExpiration: true, CheckWeakCiphers: true, RootCAs: pool})

	res := p.Execute(context.Background(), srv.Listener.Addr().String())

	require.Equal(t, probe.StatusSuccess, res.Status, res.Summary)
	assert.Equal(t, true, res.Detail["chain_verified"])
	assert.Equal(t, "127.0.0.1", res.Detail["host"])
	assert.Contains(t, res.Detail, "not_after")
	assert.Contains(t, res.Detail, "serial_number")
	assert.Equal(t, "TLS 1.3", res.Detail["version"])

	require.Len(t, res.Findings, 1)
	assert.Equal(t, probe.SeverityInfo, res.Findings[0].Severity)
}

func TestTLSProbe_SelfSignedCertificate(t *testing.T) {
	srv, _ := newTLSServer(t)
	p := newTLSProbe(t, TLSConfig{RootCAs: x509.NewCertPool()})

	res := p.Execute(context.Background(), "https://"+srv.Listener.Addr().String())

	require.Equal(t, probe.StatusSuccess, res.Status)
	assert.Equal(t, false, res.Detail["chain_verified"])
	assert.Contains(t, messages(res.Findings), "Self-signed certificate")
	highest, _ := res.HighestSeverity()
	assert.Equal(t, probe.SeverityHigh, highest)
}

func TestTLSProbe_HostnameMismatch(t *testing.T) {
	srv, pool := newTLSServer(t)
	_, port, err := net.SplitHostPort(srv.Listener.Addr().String())
	require.NoError(t, err)

	res := newTLSProbe(t, TLSConfig{RootCAs: pool}).Execute(context.Background(), "localhost:"+port)

	require.Equal(t, probe.StatusSuccess, res.Status)
	assert.Contains(t, messages(res.Findings), "Certificate does not match hostname")
}

func TestTLSProbe_ExpiredCertificate(t *testing.T) {
	srv, pool := newTLSServer(t)
	later := func() time.Time { return srv.Certificate().NotAfter.Add(48 * time.Hour) }
	p := newTLSProbe(t, TLSConfig{VerifyExpiration: true, RootCAs: pool, Now: later})

	res := p.Execute(context.Background(), srv.Listener.Addr().String())

	require.Equal(t, probe.StatusSuccess, res.Status)
	msgs := messages(res.Findings)
	assert.Contains(t, msgs, "SSL certificate has expired")
	assert.Contains(t, msgs, "Certificate verification failed")
	highest, _ := res.HighestSeverity()
	assert.Equal(t, probe.SeverityCritical, highest)
}

func TestTLSProbe_ConnectionRefused(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := ln.Addr().String()
	require.NoError(t, ln.Close())

	res := newTLSProbe(t, TLSConfig{}).Execute(context.Background(), addr)

	require.Equal(t, probe.StatusFailed, res.Status)
	assert.Equal(t, probe.CategoryConnection, res.Error.Category)
}

func TestTLSProbe_PlainHTTPEndpoint(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	defer srv.Close()

	res := newTLSProbe(t, TLSConfig{}).Execute(context.Background(), srv.Listener.Addr().String())

	require.Equal(t, probe.StatusFailed, res.Status)
	assert.Equal(t, probe.CategoryProtocol, res.Error.Category)
}
