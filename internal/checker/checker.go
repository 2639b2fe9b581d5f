package checker

import (
	"time"

	"go.uber.org/zap"

	"github.com/khanhnv2901/anomradar/internal/domain/probe"
)

// Names of the built-in probes.
const (
	ProbeHTTP = "http"
	ProbeDNS  = "dns"
	ProbeSSL  = "ssl"
)

// Names lists the built-in probes in catalog order.
func Names() []string {
	return []string{ProbeHTTP, ProbeDNS, ProbeSSL}
}

// Config groups the settings of every built-in probe.
type Config struct {
	HTTP HTTPConfig
	DNS  DNSConfig
	TLS  TLSConfig
}

// DefaultConfig mirrors the defaults shipped in the sample config file.
func DefaultConfig() Config {
	return Config{
		HTTP: HTTPConfig{
			Timeout:         15 * time.Second,
			FollowRedirects: true,
		},
		DNS: DNSConfig{
			Nameservers: []string{"8.8.8.8", "1.1.1.1"},
			Timeout:     10 * time.Second,
		},
		TLS: TLSConfig{
			Timeout:          20 * time.Second,
			VerifyExpiration: true,
			CheckWeakCiphers: true,
		},
	}
}

// Builtin returns the HTTP, DNS and TLS probes configured from cfg.
func Builtin(cfg Config, logger *zap.Logger) []probe.Probe {
	return []probe.Probe{
		NewHTTPProbe(cfg.HTTP, logger),
		NewDNSProbe(cfg.DNS, logger),
		NewTLSProbe(cfg.TLS, logger),
	}
}

func orNop(logger *zap.Logger) *zap.Logger {
	if logger == nil {
		return zap.NewNop()
	}
	return logger
}
