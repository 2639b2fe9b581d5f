package constants

import (
	"io/fs"
	"time"
)

const (
	// DefaultDirPerm is the default permission used when creating directories.
	DefaultDirPerm fs.FileMode = 0o755
	// DefaultFilePerm is the default permission used when creating files.
	DefaultFilePerm fs.FileMode = 0o644
)

const (
	// DefaultCacheTTL is how long a successful probe result stays cached.
	DefaultCacheTTL = time.Hour
	// DefaultProbeTimeout bounds a single probe execution.
	DefaultProbeTimeout = 30 * time.Second
	// DefaultConcurrency caps how many probes of one scan run at once.
	DefaultConcurrency = 3
)

const (
	// HTTPBodyLimitBytes caps how much of a response body the HTTP probe reads.
	HTTPBodyLimitBytes = 1 << 20
	// DefaultUserAgent identifies the scanner in HTTP requests.
	DefaultUserAgent = "AnomRadar/2.0 (Security Scanner)"
	// DefaultMaxRedirects limits redirect chains followed by the HTTP probe.
	DefaultMaxRedirects = 10
)

const (
	// CertExpiryHighWindow marks certificates expiring soon as high severity.
	CertExpiryHighWindow = 30 * 24 * time.Hour
	// CertExpiryMediumWindow marks certificates expiring within it as medium severity.
	CertExpiryMediumWindow = 90 * 24 * time.Hour
)
