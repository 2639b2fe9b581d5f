package probe

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"io"
	"net"
	"strings"
	"syscall"
)

// Category classifies why a probe did not fully succeed.
type Category string

const (
	CategoryTimeout    Category = "timeout"
	CategoryConnection Category = "connection"
	CategoryProtocol   Category = "protocol"
	CategoryNotFound   Category = "not-found"
	CategoryUnknown    Category = "unknown"
)

// Error is a probe-level fault. It never crosses the runner boundary; it is
// converted into a Result instead.
type Error struct {
	Category Category
	Message  string
	Target   string
	Cause    error
}

func (e *Error) Error() string {
	msg := e.Message
	if msg == "" && e.Cause != nil {
		msg = e.Cause.Error()
	} else if e.Cause != nil {
		msg = msg + ": " + e.Cause.Error()
	}
	if msg == "" {
		msg = string(e.Category)
	}
	if e.Target != "" {
		return fmt.Sprintf("%s (target: %s)", msg, e.Target)
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// Is matches on category so errors.Is(err, ErrTimeout) works for any target.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Message == "" && t.Target == "" && t.Cause == nil && t.Category == e.Category
}

// Category sentinels for errors.Is checks.
var (
	ErrTimeout    = &Error{Category: CategoryTimeout}
	ErrConnection = &Error{Category: CategoryConnection}
	ErrProtocol   = &Error{Category: CategoryProtocol}
	ErrNotFound   = &Error{Category: CategoryNotFound}
)

// NewError wraps cause with an explicit category.
func NewError(category Category, target string, cause error) *Error {
	return &Error{Category: category, Target: target, Cause: cause}
}

// Wrap classifies cause and wraps it. A nil cause yields nil.
func Wrap(target string, cause error) error {
	if cause == nil {
		return nil
	}
	var pe *Error
	if errors.As(cause, &pe) {
		return cause
	}
	return &Error{Category: Classify(cause), Target: target, Cause: cause}
}

// ConfigurationError reports a scan request that cannot be serviced at all.
// It is the only error Orchestrator.Run returns.
type ConfigurationError struct {
	Field   string
	Message string
	Unknown []string
}

func (e *ConfigurationError) Error() string {
	if len(e.Unknown) > 0 {
		return fmt.Sprintf("configuration error: unknown probe(s): %s", strings.Join(e.Unknown, ", "))
	}
	if e.Field != "" {
		return fmt.Sprintf("configuration error: %s: %s", e.Field, e.Message)
	}
	return "configuration error: " + e.Message
}

// IsConfigurationError reports whether err is or wraps a ConfigurationError.
func IsConfigurationError(err error) bool {
	var ce *ConfigurationError
	return errors.As(err, &ce)
}

// Classify maps an arbitrary error onto a category.
func Classify(err error) Category {
	if err == nil {
		return CategoryUnknown
	}

	var pe *Error
	if errors.As(err, &pe) && pe.Category != "" {
		return pe.Category
	}

	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, syscall.ETIMEDOUT) {
		return CategoryTimeout
	}

	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		switch {
		case dnsErr.IsNotFound:
			return CategoryNotFound
		case dnsErr.IsTimeout:
			return CategoryTimeout
		default:
			return CategoryConnection
		}
	}

	if isProtocolError(err) {
		return CategoryProtocol
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return CategoryTimeout
	}

	if errors.Is(err, syscall.ECONNREFUSED) ||
		errors.Is(err, syscall.ECONNRESET) ||
		errors.Is(err, syscall.EHOSTUNREACH) ||
		errors.Is(err, syscall.ENETUNREACH) {
		return CategoryConnection
	}

	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return CategoryConnection
	}

	return CategoryUnknown
}

func isProtocolError(err error) bool {
	var (
		recordErr   tls.RecordHeaderError
		alertErr    tls.AlertError
		verifyErr   *tls.CertificateVerificationError
		unknownAuth x509.UnknownAuthorityError
		invalidCert x509.CertificateInvalidError
		hostnameErr x509.HostnameError
	)
	switch {
	case errors.As(err, &recordErr),
		errors.As(err, &alertErr),
		errors.As(err, &verifyErr),
		errors.As(err, &unknownAuth),
		errors.As(err, &invalidCert),
		errors.As(err, &hostnameErr):
		return true
	case errors.Is(err, io.ErrUnexpectedEOF), errors.Is(err, io.EOF):
		return true
	}
	// crypto/tls reports peer alerts as an OpError with this op.
	var opErr *net.OpError
	return errors.As(err, &opErr) && opErr.Op == "remote error"
}
