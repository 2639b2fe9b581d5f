package probe

import (
	"context"
	"crypto/x509"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"syscall"
	"testing"

	"github.com/stretchr/testify/assert"
)

type timeoutErr struct{}

func (timeoutErr) Error() string   { return "i/o timeout" }
func (timeoutErr) Timeout() bool   { return true }
func (timeoutErr) Temporary() bool { return true }

func TestClassify(t *testing.T) {
	refused := &net.OpError{Op: "dial", Net: "tcp", Err: os.NewSyscallError("connect", syscall.ECONNREFUSED)}

	tests := []struct {
		name string
		err  error
		want Category
	}{
		{"nil", nil, CategoryUnknown},
		{"deadline", context.DeadlineExceeded, CategoryTimeout},
		{"wrapped deadline", fmt.Errorf("get: %w", context.DeadlineExceeded), CategoryTimeout},
		{"net timeout", &net.OpError{Op: "read", Err: timeoutErr{}}, CategoryTimeout},
		{"dns not found", &net.DNSError{Err: "no such host", Name: "nope.invalid", IsNotFound: true}, CategoryNotFound},
		{"dns timeout", &net.DNSError{Err: "timeout", Name: "slow.example", IsTimeout: true}, CategoryTimeout},
		{"refused", refused, CategoryConnection},
		{"reset", syscall.ECONNRESET, CategoryConnection},
		{"unknown authority", x509.UnknownAuthorityError{}, CategoryProtocol},
		{"tls alert", &net.OpError{Op: "remote error", Err: errors.New("tls: handshake failure")}, CategoryProtocol},
		{"unexpected eof", fmt.Errorf("read body: %w", io.ErrUnexpectedEOF), CategoryProtocol},
		{"explicit", NewError(CategoryNotFound, "x", errors.New("gone")), CategoryNotFound},
		{"plain", errors.New("something odd"), CategoryUnknown},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Classify(tt.err))
		})
	}
}

func TestErrorIsMatchesCategory(t *testing.T) {
	err := fmt.Errorf("dns: %w", NewError(CategoryTimeout, "example.com", context.DeadlineExceeded))

	assert.ErrorIs(t, err, ErrTimeout)
	assert.NotErrorIs(t, err, ErrConnection)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestWrapKeepsExistingCategory(t *testing.T) {
	inner := NewError(CategoryProtocol, "example.com", errors.New("bad handshake"))
	assert.Same(t, inner, Wrap("example.com", inner))
	assert.Nil(t, Wrap("example.com", nil))

	wrapped := Wrap("example.com", context.DeadlineExceeded)
	assert.ErrorIs(t, wrapped, ErrTimeout)
}

func TestErrorMessage(t *testing.T) {
	err := &Error{Category: CategoryConnection, Message: "dial failed", Target: "example.com", Cause: syscall.ECONNREFUSED}
	assert.Contains(t, err.Error(), "dial failed")
	assert.Contains(t, err.Error(), "example.com")
	assert.Equal(t, "timeout", (&Error{Category: CategoryTimeout}).Error())
}

func TestConfigurationError(t *testing.T) {
	err := fmt.Errorf("scan: %w", &ConfigurationError{Unknown: []string{"ftp"}})
	assert.True(t, IsConfigurationError(err))
	assert.Contains(t, err.Error(), "ftp")
	assert.False(t, IsConfigurationError(errors.New("other")))

	field := &ConfigurationError{Field: "target", Message: "must not be empty"}
	assert.Equal(t, "configuration error: target: must not be empty", field.Error())
}
