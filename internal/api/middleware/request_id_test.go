package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func serveWithID(t *testing.T, clientID string) (ctxID, headerID string) {
	t.Helper()
	handler := RequestID(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctxID = GetRequestID(r.Context())
	}))

	req := httptest.NewRequest(http.MethodGet, "/api/v1/health", nil)
	if clientID != "" {
		req.Header.Set(HeaderRequestID, clientID)
	}
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return ctxID, rec.Header().Get(HeaderRequestID)
}

func TestRequestID(t *testing.T) {
	tests := []struct {
		name     string
		clientID string
		keep     bool
	}{
		{name: "generated when absent"},
		{name: "client id reused", clientID: "client-request-123", keep: true},
		{name: "dotted id reused", clientID: "scan_42.retry", keep: true},
		{name: "space rejected", clientID: "has space"},
		{name: "newline rejected", clientID: "line\nbreak"},
		{name: "too long rejected", clientID: strings.Repeat("a", maxClientIDLength+1)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctxID, headerID := serveWithID(t, tt.clientID)
			assert.Equal(t, ctxID, headerID)
			if tt.keep {
				assert.Equal(t, tt.clientID, ctxID)
				return
			}
			_, err := uuid.Parse(ctxID)
			assert.NoError(t, err, "expected a generated UUID, got %q", ctxID)
		})
	}
}

func TestRequestIDUnique(t *testing.T) {
	seen := make(map[string]struct{})
	for i := 0; i < 100; i++ {
		id, _ := serveWithID(t, "")
		seen[id] = struct{}{}
	}
	assert.Len(t, seen, 100)
}

func TestGetRequestIDMissing(t *testing.T) {
	assert.Empty(t, GetRequestID(context.Background()))
}

func TestLogger(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	base := zap.New(core)

	Logger(WithRequestID(context.Background(), "req-1"), base).Info("scoped")
	Logger(context.Background(), base).Info("plain")
	Logger(context.Background(), nil).Info("dropped")

	entries := logs.AllUntimed()
	require.Len(t, entries, 2)
	assert.Equal(t, "req-1", entries[0].ContextMap()["request_id"])
	assert.NotContains(t, entries[1].ContextMap(), "request_id")
}
