package cmd

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/khanhnv2901/anomradar/internal/application"
	"github.com/khanhnv2901/anomradar/internal/application/scan"
	"github.com/khanhnv2901/anomradar/internal/checker"
	consts "github.com/khanhnv2901/anomradar/internal/shared/constants"
	sharedErrors "github.com/khanhnv2901/anomradar/internal/shared/errors"
)

const (
	envPrefix                 = "ANOMRADAR"
	defaultScannerTimeoutSecs = 30
	defaultHTTPTimeoutSeconds = 15
	defaultDNSTimeoutSeconds  = 10
	defaultSSLTimeoutSeconds  = 20
	defaultCacheTTLSeconds    = 3600
	defaultAPIAddr            = "127.0.0.1:8787"
)

// Config is the resolved configuration shared across commands.
type Config struct {
	Scanner   ScannerConfig `mapstructure:"scanner"`
	Cache     CacheConfig   `mapstructure:"cache"`
	HTTP      HTTPConfig    `mapstructure:"http"`
	DNS       DNSConfig     `mapstructure:"dns"`
	SSL       SSLConfig     `mapstructure:"ssl"`
	Reports   ReportsConfig `mapstructure:"reports"`
	Logging   LoggingConfig `mapstructure:"logging"`
	API       APIConfig     `mapstructure:"api"`
	Telemetry bool          `mapstructure:"telemetry"`
}

type ScannerConfig struct {
	Timeout     int     `mapstructure:"timeout" validate:"gte=1,lte=600"`
	Concurrency int     `mapstructure:"concurrency" validate:"gte=1,lte=64"`
	RateLimit   float64 `mapstructure:"rate_limit" validate:"gte=0"`
}

type CacheConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Dir     string `mapstructure:"dir" validate:"required"`
	TTL     int    `mapstructure:"ttl" validate:"gte=1"`
	Backend string `mapstructure:"backend" validate:"oneof=file bolt"`
}

type HTTPConfig struct {
	Timeout         int    `mapstructure:"timeout" validate:"gte=1,lte=600"`
	UserAgent       string `mapstructure:"user_agent" validate:"required"`
	FollowRedirects bool   `mapstructure:"follow_redirects"`
	MaxRedirects    int    `mapstructure:"max_redirects" validate:"gte=0,lte=50"`
}

type DNSConfig struct {
	Nameservers []string `mapstructure:"nameservers" validate:"min=1,dive,required"`
	Timeout     int      `mapstructure:"timeout" validate:"gte=1,lte=600"`
}

type SSLConfig struct {
	Timeout          int  `mapstructure:"timeout" validate:"gte=1,lte=600"`
	VerifyExpiration bool `mapstructure:"verify_expiration"`
	CheckWeakCiphers bool `mapstructure:"check_weak_ciphers"`
}

type ReportsConfig struct {
	Dir           string `mapstructure:"dir" validate:"required"`
	DefaultFormat string `mapstructure:"default_format" validate:"oneof=json html pdf"`
}

type LoggingConfig struct {
	File  string `mapstructure:"file"`
	Level string `mapstructure:"level" validate:"oneof=DEBUG INFO WARN WARNING ERROR debug info warn warning error"`
}

type APIConfig struct {
	Addr        string   `mapstructure:"addr" validate:"required,hostname_port"`
	AuthToken   string   `mapstructure:"auth_token"`
	RateLimit   int      `mapstructure:"rate_limit" validate:"gte=0"`
	RateBurst   int      `mapstructure:"rate_burst" validate:"gte=0"`
	CORSOrigins []string `mapstructure:"cors_origins"`
}

// setConfigDefaults registers every key so env overrides and Unmarshal see them.
func setConfigDefaults(v *viper.Viper, dataDir string) {
	v.SetDefault("scanner.timeout", defaultScannerTimeoutSecs)
	v.SetDefault("scanner.concurrency", consts.DefaultConcurrency)
	v.SetDefault("scanner.rate_limit", 0)

	v.SetDefault("cache.enabled", true)
	v.SetDefault("cache.dir", filepath.Join(dataDir, "cache"))
	v.SetDefault("cache.ttl", defaultCacheTTLSeconds)
	v.SetDefault("cache.backend", application.BackendFile)

	v.SetDefault("http.timeout", defaultHTTPTimeoutSeconds)
	v.SetDefault("http.user_agent", consts.DefaultUserAgent)
	v.SetDefault("http.follow_redirects", true)
	v.SetDefault("http.max_redirects", consts.DefaultMaxRedirects)

	v.SetDefault("dns.nameservers", []string{"8.8.8.8", "1.1.1.1"})
	v.SetDefault("dns.timeout", defaultDNSTimeoutSeconds)

	v.SetDefault("ssl.timeout", defaultSSLTimeoutSeconds)
	v.SetDefault("ssl.verify_expiration", true)
	v.SetDefault("ssl.check_weak_ciphers", true)

	v.SetDefault("reports.dir", filepath.Join(dataDir, "reports"))
	v.SetDefault("reports.default_format", "json")

	v.SetDefault("logging.file", filepath.Join(dataDir, "logs", "anomradar.log"))
	v.SetDefault("logging.level", "INFO")

	v.SetDefault("api.addr", defaultAPIAddr)
	v.SetDefault("api.auth_token", "")
	v.SetDefault("api.rate_limit", 10)
	v.SetDefault("api.rate_burst", 20)
	v.SetDefault("api.cors_origins", []string{})

	v.SetDefault("telemetry", false)

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
}

// loadConfig reads the config file (when present), applies env overrides and
// validates the result. Without cfgFile it looks for config.yaml in dataDir.
func loadConfig(v *viper.Viper, cfgFile, dataDir string) (*Config, error) {
	setConfigDefaults(v, dataDir)

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config %s: %w", cfgFile, err)
		}
	} else {
		v.AddConfigPath(dataDir)
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return nil, fmt.Errorf("failed to read config: %w", err)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	cfg.Cache.Dir = expandHome(cfg.Cache.Dir)
	cfg.Reports.Dir = expandHome(cfg.Reports.Dir)
	cfg.Logging.File = expandHome(cfg.Logging.File)
	cfg.Cache.Backend = strings.ToLower(strings.TrimSpace(cfg.Cache.Backend))
	cfg.Reports.DefaultFormat = strings.ToLower(strings.TrimSpace(cfg.Reports.DefaultFormat))

	if err := validateConfig(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func validateConfig(cfg *Config) error {
	if err := validator.New().Struct(cfg); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			fe := verrs[0]
			return fmt.Errorf("%w: config %s failed %q (value %v)", sharedErrors.ErrValidation, configKey(fe.Namespace()), fe.Tag(), fe.Value())
		}
		return fmt.Errorf("%w: %v", sharedErrors.ErrValidation, err)
	}
	return nil
}

// configKey turns "Config.HTTP.UserAgent" into "http.useragent" for messages.
func configKey(namespace string) string {
	namespace = strings.TrimPrefix(namespace, "Config.")
	return strings.ToLower(namespace)
}

// CheckerConfig maps the probe sections onto checker.Config.
func (c *Config) CheckerConfig() checker.Config {
	return checker.Config{
		HTTP: checker.HTTPConfig{
			Timeout:         seconds(c.HTTP.Timeout),
			UserAgent:       c.HTTP.UserAgent,
			FollowRedirects: c.HTTP.FollowRedirects,
			MaxRedirects:    c.HTTP.MaxRedirects,
		},
		DNS: checker.DNSConfig{
			Nameservers: append([]string(nil), c.DNS.Nameservers...),
			Timeout:     seconds(c.DNS.Timeout),
		},
		TLS: checker.TLSConfig{
			Timeout:          seconds(c.SSL.Timeout),
			VerifyExpiration: c.SSL.VerifyExpiration,
			CheckWeakCiphers: c.SSL.CheckWeakCiphers,
		},
	}
}

// ScanConfig maps the scanner and cache sections onto scan.Config. Each
// probe's own timeout becomes its override, bounded by the scanner timeout.
func (c *Config) ScanConfig() scan.Config {
	timeout := seconds(c.Scanner.Timeout)
	overrides := map[string]time.Duration{
		checker.ProbeHTTP: minDuration(seconds(c.HTTP.Timeout), timeout),
		checker.ProbeDNS:  minDuration(seconds(c.DNS.Timeout), timeout),
		checker.ProbeSSL:  minDuration(seconds(c.SSL.Timeout), timeout),
	}
	return scan.Config{
		TTL:           seconds(c.Cache.TTL),
		Timeout:       timeout,
		ProbeTimeouts: overrides,
		Concurrency:   c.Scanner.Concurrency,
		RateLimit:     c.Scanner.RateLimit,
	}
}

func seconds(n int) time.Duration {
	return time.Duration(n) * time.Second
}

func minDuration(a, b time.Duration) time.Duration {
	if a < b {
		return a
	}
	return b
}

func applyIntDefault(flags *pflag.FlagSet, name string, value int, setter func(int)) {
	if flags == nil || setter == nil {
		return
	}
	flag := flags.Lookup(name)
	if flag != nil && flag.Changed {
		return
	}
	setter(value)
}

func applyBoolDefault(flags *pflag.FlagSet, name string, value bool, setter func(bool)) {
	if flags == nil || setter == nil {
		return
	}
	flag := flags.Lookup(name)
	if flag != nil && flag.Changed {
		return
	}
	setter(value)
}

func setStringFlagIfUnset(flags *pflag.FlagSet, name, value string) {
	if flags == nil {
		return
	}
	flag := flags.Lookup(name)
	if flag == nil || flag.Changed {
		return
	}
	_ = flag.Value.Set(value)
}
