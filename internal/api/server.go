package api

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/khanhnv2901/anomradar/internal/api/middleware"
	"github.com/khanhnv2901/anomradar/internal/domain/cache"
	"github.com/khanhnv2901/anomradar/internal/domain/probe"
	sharedErrors "github.com/khanhnv2901/anomradar/internal/shared/errors"
)

const (
	maxBodyBytes     = 1 << 20
	defaultListLimit = 25
	scanPathPrefix   = "/api/v1/scans/"
)

var errNoScanService = errors.New("scan service not available")

type HealthService interface {
	Check(ctx context.Context) error
}

type ScanService interface {
	Probes() []string
	StartScan(ctx context.Context, req ScanRequest) (*Job, error)
	GetScan(ctx context.Context, id string) (*Job, error)
	ListScans(ctx context.Context, limit int) ([]Job, error)
	Subscribe() (chan Job, func())
}

// RequestObserver receives one call per served request.
type RequestObserver interface {
	ObserveHTTPRequest(method, route string, code int, elapsed time.Duration)
}

type Config struct {
	Scans       ScanService
	Cache       cache.Store
	Health      HealthService
	Metrics     http.Handler
	Observer    RequestObserver
	AuthToken   string
	Logger      *zap.Logger
	CORSOrigins []string // Allowed CORS origins (empty = allow all)
	RateLimit   int      // Requests per second per IP (0 = disabled)
	RateBurst   int      // Burst size for rate limiter
}

type Server struct {
	cfg     Config
	mux     *http.ServeMux
	handler http.Handler
	limiter *middleware.ClientLimiter
}

func NewServer(cfg Config) *Server {
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	srv := &Server{
		cfg: cfg,
		mux: http.NewServeMux(),
	}
	srv.routes()

	// RequestID -> Logging -> RateLimit -> CORS -> routes (auth per route)
	var h http.Handler = middleware.CORS(middleware.CORSPolicy{
		Origins: cfg.CORSOrigins,
		Methods: []string{http.MethodGet, http.MethodPost, http.MethodDelete, http.MethodOptions},
		Headers: []string{"Content-Type", "X-Auth-Token", middleware.HeaderRequestID},
		MaxAge:  "3600",
	})(srv.mux)
	if cfg.RateLimit > 0 {
		srv.limiter = middleware.NewClientLimiter(cfg.RateLimit, cfg.RateBurst)
		h = middleware.RateLimit(srv.limiter, srv.rejectRateLimited)(h)
	}
	srv.handler = middleware.RequestID(srv.withLogging(h))
	return srv
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.handler.ServeHTTP(w, r)
}

// Close releases background resources.
func (s *Server) Close() {
	if s.limiter != nil {
		s.limiter.Close()
	}
}

func (s *Server) routes() {
	s.mux.Handle("/api/v1/health", s.methods(endpoint{http.MethodGet: s.health}))
	s.mux.Handle("/api/v1/probes", s.needScans(s.methods(endpoint{http.MethodGet: s.listProbes})))
	s.mux.Handle("/api/v1/scans", s.needScans(s.withAuth(s.methods(endpoint{
		http.MethodGet:  s.listScans,
		http.MethodPost: s.startScan,
	}))))
	s.mux.Handle("/api/v1/scans/stream", s.needScans(s.methods(endpoint{http.MethodGet: s.streamScans})))
	s.mux.Handle(scanPathPrefix, s.needScans(s.methods(endpoint{http.MethodGet: s.getScan})))
	s.mux.Handle("/api/v1/cache", s.withAuth(s.methods(endpoint{http.MethodDelete: s.clearCache})))
	if s.cfg.Metrics != nil {
		s.mux.Handle("/metrics", s.cfg.Metrics)
	}
}

// endpoint maps HTTP methods to the handlers of one route.
type endpoint map[string]http.HandlerFunc

// methods dispatches on r.Method and answers 405 with an Allow header for
// anything the endpoint does not serve.
func (s *Server) methods(e endpoint) http.Handler {
	names := make([]string, 0, len(e))
	for m := range e {
		names = append(names, m)
	}
	sort.Strings(names)
	allow := strings.Join(names, ", ")

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h, ok := e[r.Method]
		if !ok {
			w.Header().Set("Allow", allow)
			s.methodNotAllowed(w, r)
			return
		}
		h(w, r)
	})
}

func (s *Server) needScans(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.cfg.Scans == nil {
			s.writeError(w, r, http.StatusNotFound, errNoScanService)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	if s.cfg.Health != nil {
		if err := s.cfg.Health.Check(r.Context()); err != nil {
			s.writeError(w, r, http.StatusServiceUnavailable, err)
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) listProbes(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string][]string{"probes": s.cfg.Scans.Probes()})
}

func (s *Server) listScans(w http.ResponseWriter, r *http.Request) {
	jobs, err := s.cfg.Scans.ListScans(r.Context(), listLimit(r))
	if err != nil {
		s.writeError(w, r, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, jobs)
}

// listLimit reads ?limit=, falling back to defaultListLimit on bad input.
func listLimit(r *http.Request) int {
	n, err := strconv.Atoi(r.URL.Query().Get("limit"))
	if err != nil || n <= 0 {
		return defaultListLimit
	}
	return n
}

func (s *Server) startScan(w http.ResponseWriter, r *http.Request) {
	var req ScanRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(&req); err != nil {
		s.writeError(w, r, http.StatusBadRequest, fmt.Errorf("invalid request body: %w", err))
		return
	}

	job, err := s.cfg.Scans.StartScan(r.Context(), req)
	switch {
	case err == nil:
		w.Header().Set("Location", scanPathPrefix+job.ID)
		writeJSON(w, http.StatusAccepted, job)
	case probe.IsConfigurationError(err), errors.Is(err, sharedErrors.ErrValidation):
		s.writeError(w, r, http.StatusBadRequest, err)
	default:
		s.writeError(w, r, http.StatusInternalServerError, err)
	}
}

func (s *Server) getScan(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimPrefix(r.URL.Path, scanPathPrefix)
	if id == "" || strings.Contains(id, "/") {
		s.writeError(w, r, http.StatusNotFound, errors.New("scan ID required"))
		return
	}
	job, err := s.cfg.Scans.GetScan(r.Context(), id)
	if err != nil || job == nil {
		s.writeError(w, r, http.StatusNotFound, sharedErrors.ErrScanNotFound)
		return
	}
	writeJSON(w, http.StatusOK, job)
}

// streamScans pushes every job update as a server-sent "scan" event until the
// client disconnects or the job manager shuts down.
func (s *Server) streamScans(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		s.writeError(w, r, http.StatusInternalServerError, errors.New("streaming unsupported"))
		return
	}
	h := w.Header()
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	updates, unsubscribe := s.cfg.Scans.Subscribe()
	defer unsubscribe()
	log := s.requestLogger(r)

	for {
		select {
		case <-r.Context().Done():
			return
		case job, open := <-updates:
			if !open {
				return
			}
			payload, err := json.Marshal(job)
			if err != nil {
				log.Error("failed to marshal job", zap.String("job_id", job.ID), zap.Error(err))
				continue
			}
			if err := writeEvent(w, "scan", payload); err != nil {
				log.Debug("scan stream closed", zap.Error(err))
				return
			}
			flusher.Flush()
		}
	}
}

// writeEvent writes one SSE frame. payload must not contain newlines.
func writeEvent(w http.ResponseWriter, event string, payload []byte) error {
	_, err := fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event, payload)
	return err
}

func (s *Server) clearCache(w http.ResponseWriter, r *http.Request) {
	if s.cfg.Cache == nil {
		s.writeError(w, r, http.StatusNotFound, sharedErrors.ErrCacheUnavailable)
		return
	}
	removed := s.cfg.Cache.Clear(r.Context())
	s.requestLogger(r).Info("cache cleared", zap.Int("removed", removed))
	writeJSON(w, http.StatusOK, map[string]int{"removed": removed})
}

func (s *Server) rejectRateLimited(w http.ResponseWriter, r *http.Request) {
	s.requestLogger(r).Warn("rate_limit_exceeded", zap.String("client_ip", middleware.ClientIP(r)))
	s.writeError(w, r, http.StatusTooManyRequests, errors.New("rate limit exceeded"))
}

// withLogging records one access log line and one observer call per request,
// labelled with the mux pattern rather than the raw path.
func (s *Server) withLogging(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		elapsed := time.Since(start)

		route := "unmatched"
		if _, pattern := s.mux.Handler(r); pattern != "" {
			route = pattern
		}
		if s.cfg.Observer != nil {
			s.cfg.Observer.ObserveHTTPRequest(r.Method, route, rec.status, elapsed)
		}
		middleware.Logger(r.Context(), s.cfg.Logger).Info("http_request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.String("route", route),
			zap.String("remote_addr", r.RemoteAddr),
			zap.Int("status", rec.status),
			zap.Duration("duration", elapsed),
			zap.Int64("bytes", rec.written),
		)
	})
}

// withAuth guards mutating methods with the shared X-Auth-Token secret.
func (s *Server) withAuth(next http.Handler) http.Handler {
	if s.cfg.AuthToken == "" {
		return next
	}
	secret := []byte(s.cfg.AuthToken)
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		readOnly := r.Method == http.MethodGet || r.Method == http.MethodHead
		if !readOnly && subtle.ConstantTimeCompare([]byte(r.Header.Get("X-Auth-Token")), secret) != 1 {
			s.writeError(w, r, http.StatusUnauthorized, errors.New("unauthorized"))
			return
		}
		next.ServeHTTP(w, r)
	})
}

// statusRecorder remembers the status code and body size for access logs.
type statusRecorder struct {
	http.ResponseWriter
	status  int
	written int64
}

func (rec *statusRecorder) WriteHeader(code int) {
	rec.status = code
	rec.ResponseWriter.WriteHeader(code)
}

func (rec *statusRecorder) Write(b []byte) (int, error) {
	n, err := rec.ResponseWriter.Write(b)
	rec.written += int64(n)
	return n, err
}

func (rec *statusRecorder) Flush() {
	if f, ok := rec.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

// writeError hides 5xx details from clients and logs them instead.
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, status int, err error) {
	msg := err.Error()
	if status >= http.StatusInternalServerError {
		s.requestLogger(r).Error("internal_server_error", zap.Error(err), zap.Int("status", status))
		msg = strings.ToLower(http.StatusText(status))
	}
	writeJSON(w, status, map[string]string{"error": msg})
}

func (s *Server) requestLogger(r *http.Request) *zap.Logger {
	return middleware.Logger(r.Context(), s.cfg.Logger).With(
		zap.String("method", r.Method),
		zap.String("path", r.URL.Path),
	)
}

func (s *Server) methodNotAllowed(w http.ResponseWriter, r *http.Request) {
	s.writeError(w, r, http.StatusMethodNotAllowed, errors.New("method not allowed"))
}
