package api

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap/zaptest"
)

func TestWriteJSON(t *testing.T) {
	rr := httptest.NewRecorder()
	writeJSON(rr, http.StatusCreated, map[string]string{"status": "ok"})

	if rr.Code != http.StatusCreated {
		t.Fatalf("expected status 201, got %d", rr.Code)
	}
	if got := rr.Header().Get("Content-Type"); got != "application/json" {
		t.Fatalf("expected application/json content-type, got %s", got)
	}
	if !strings.Contains(rr.Body.String(), `"status":"ok"`) {
		t.Fatalf("unexpected body: %s", rr.Body.String())
	}
}

func TestWriteErrorInternal(t *testing.T) {
	logger := zaptest.NewLogger(t)
	s := &Server{cfg: Config{Logger: logger}}

	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/v1/scans", nil)
	s.writeError(rr, req, http.StatusInternalServerError, errors.New("boom"))

	if rr.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", rr.Code)
	}
	if !strings.Contains(rr.Body.String(), "internal server error") {
		t.Fatalf("expected sanitized message, got %s", rr.Body.String())
	}
}

func TestWriteErrorClient(t *testing.T) {
	s := &Server{}
	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/v1/scans", nil)
	s.writeError(rr, req, http.StatusBadRequest, errors.New("bad input"))
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rr.Code)
	}
	if !strings.Contains(rr.Body.String(), "bad input") {
		t.Fatalf("expected original error message, got %s", rr.Body.String())
	}
}

func TestMethodNotAllowedListsAllowedMethods(t *testing.T) {
	f := newServerFixture(t, nil)

	rr := f.do(http.MethodPut, "/api/v1/scans", "", nil)
	if rr.Code != http.StatusMethodNotAllowed {
		t.Fatalf("expected status 405, got %d", rr.Code)
	}
	if got := rr.Header().Get("Allow"); got != "GET, POST" {
		t.Fatalf("unexpected Allow header %q", got)
	}
}

func TestListLimit(t *testing.T) {
	tests := map[string]int{
		"":         defaultListLimit,
		"?limit=5": 5,
		"?limit=0": defaultListLimit,
		"?limit=x": defaultListLimit,
	}
	for query, want := range tests {
		r := httptest.NewRequest(http.MethodGet, "/api/v1/scans"+query, nil)
		if got := listLimit(r); got != want {
			t.Errorf("listLimit(%q) = %d, want %d", query, got, want)
		}
	}
}

func TestWriteEvent(t *testing.T) {
	rr := httptest.NewRecorder()
	if err := writeEvent(rr, "scan", []byte(`{"id":"1"}`)); err != nil {
		t.Fatalf("writeEvent: %v", err)
	}
	if got := rr.Body.String(); got != "event: scan\ndata: {\"id\":\"1\"}\n\n" {
		t.Fatalf("unexpected frame %q", got)
	}

	if err := writeEvent(&failingWriter{}, "scan", []byte("{}")); err == nil {
		t.Fatal("expected writeEvent to fail")
	}
}

type failingWriter struct{}

func (f *failingWriter) Header() http.Header { return http.Header{} }
func (f *failingWriter) Write([]byte) (int, error) {
	return 0, errors.New("write failed")
}
func (f *failingWriter) WriteHeader(statusCode int) {}

type countingStore struct {
	cleared int
}

func (c *countingStore) Get(context.Context, string) ([]byte, bool)              { return nil, false }
func (c *countingStore) Set(context.Context, string, []byte, time.Duration) bool { return true }
func (c *countingStore) Delete(context.Context, string) bool                     { return false }
func (c *countingStore) PurgeExpired(context.Context) int                        { return 0 }
func (c *countingStore) Clear(context.Context) int {
	c.cleared++
	return 3
}

type observedRequest struct {
	method, route string
	code          int
}

type recordingObserver struct {
	mu   sync.Mutex
	seen []observedRequest
}

func (o *recordingObserver) ObserveHTTPRequest(method, route string, code int, _ time.Duration) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.seen = append(o.seen, observedRequest{method: method, route: route, code: code})
}

type failingHealth struct{}

func (failingHealth) Check(context.Context) error { return errors.New("store closed") }

type serverFixture struct {
	server   *Server
	scans    *ScanJobs
	scanner  *fakeScanner
	store    *countingStore
	observer *recordingObserver
}

func newServerFixture(t *testing.T, mutate func(*Config)) *serverFixture {
	t.Helper()
	scanner := newFakeScanner()
	scans := newTestScanJobs(t, scanner)
	store := &countingStore{}
	observer := &recordingObserver{}
	cfg := Config{
		Scans:    scans,
		Cache:    store,
		Observer: observer,
		Metrics: http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte("anomradar_scans_total 0\n"))
		}),
		Logger: zaptest.NewLogger(t),
	}
	if mutate != nil {
		mutate(&cfg)
	}
	srv := NewServer(cfg)
	t.Cleanup(srv.Close)
	return &serverFixture{server: srv, scans: scans, scanner: scanner, store: store, observer: observer}
}

func (f *serverFixture) do(method, path, body string, headers map[string]string) *httptest.ResponseRecorder {
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rr := httptest.NewRecorder()
	f.server.ServeHTTP(rr, req)
	return rr
}

func TestServerHealth(t *testing.T) {
	f := newServerFixture(t, nil)
	rr := f.do(http.MethodGet, "/api/v1/health", "", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	if rr.Header().Get("X-Request-ID") == "" {
		t.Error("expected request ID header")
	}

	unhealthy := newServerFixture(t, func(c *Config) { c.Health = failingHealth{} })
	rr = unhealthy.do(http.MethodGet, "/api/v1/health", "", nil)
	if rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", rr.Code)
	}
}

func TestServerProbes(t *testing.T) {
	f := newServerFixture(t, nil)
	rr := f.do(http.MethodGet, "/api/v1/probes", "", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	var body map[string][]string
	if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if strings.Join(body["probes"], ",") != "dns,http,ssl" {
		t.Fatalf("unexpected probes: %v", body["probes"])
	}
}

func TestServerStartScanAndFetch(t *testing.T) {
	f := newServerFixture(t, nil)

	rr := f.do(http.MethodPost, "/api/v1/scans", `{"target":"example.com","probes":["dns","ssl"]}`, nil)
	if rr.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d: %s", rr.Code, rr.Body.String())
	}
	var job Job
	if err := json.Unmarshal(rr.Body.Bytes(), &job); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if job.ID == "" || job.Target != "example.com" {
		t.Fatalf("unexpected job: %+v", job)
	}
	if got := rr.Header().Get("Location"); got != "/api/v1/scans/"+job.ID {
		t.Errorf("unexpected Location header %q", got)
	}

	f.scans.Wait()

	rr = f.do(http.MethodGet, "/api/v1/scans/"+job.ID, "", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	var fetched Job
	if err := json.Unmarshal(rr.Body.Bytes(), &fetched); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if fetched.Status != JobDone {
		t.Fatalf("expected done, got %s", fetched.Status)
	}
	if fetched.Report == nil || len(fetched.Report.Results) != 2 {
		t.Fatalf("expected report with 2 results, got %+v", fetched.Report)
	}

	rr = f.do(http.MethodGet, "/api/v1/scans", "", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	var listed []Job
	if err := json.Unmarshal(rr.Body.Bytes(), &listed); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(listed) != 1 || listed[0].Report != nil {
		t.Fatalf("expected one summary without report, got %+v", listed)
	}
}

func TestServerStartScanRejectsBadInput(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"malformed json", `{"target":`},
		{"missing target", `{"probes":["dns"]}`},
		{"unknown probe", `{"target":"example.com","probes":["whois"]}`},
		{"empty probe list", `{"target":"example.com","probes":[]}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newServerFixture(t, nil)
			rr := f.do(http.MethodPost, "/api/v1/scans", tt.body, nil)
			if rr.Code != http.StatusBadRequest {
				t.Fatalf("expected 400, got %d: %s", rr.Code, rr.Body.String())
			}
			if len(f.scanner.runs()) != 0 {
				t.Fatal("no scan should start for a rejected request")
			}
		})
	}
}

func TestServerUnknownScan(t *testing.T) {
	f := newServerFixture(t, nil)
	rr := f.do(http.MethodGet, "/api/v1/scans/does-not-exist", "", nil)
	if rr.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rr.Code)
	}
}

func TestServerClearCache(t *testing.T) {
	f := newServerFixture(t, nil)

	rr := f.do(http.MethodDelete, "/api/v1/cache", "", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	if !strings.Contains(rr.Body.String(), `"removed":3`) {
		t.Fatalf("unexpected body: %s", rr.Body.String())
	}
	if f.store.cleared != 1 {
		t.Fatalf("expected one clear, got %d", f.store.cleared)
	}

	rr = f.do(http.MethodGet, "/api/v1/cache", "", nil)
	if rr.Code != http.StatusMethodNotAllowed {
		t.Fatalf("expected 405, got %d", rr.Code)
	}
}

func TestServerAuthGuardsMutations(t *testing.T) {
	f := newServerFixture(t, func(c *Config) { c.AuthToken = "s3cret" })

	if rr := f.do(http.MethodDelete, "/api/v1/cache", "", nil); rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without token, got %d", rr.Code)
	}
	if rr := f.do(http.MethodPost, "/api/v1/scans", `{"target":"example.com"}`, map[string]string{"X-Auth-Token": "wrong"}); rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 with wrong token, got %d", rr.Code)
	}
	if rr := f.do(http.MethodDelete, "/api/v1/cache", "", map[string]string{"X-Auth-Token": "s3cret"}); rr.Code != http.StatusOK {
		t.Fatalf("expected 200 with token, got %d", rr.Code)
	}
	if rr := f.do(http.MethodGet, "/api/v1/scans", "", nil); rr.Code != http.StatusOK {
		t.Fatalf("reads should not need a token, got %d", rr.Code)
	}
}

func TestServerCORS(t *testing.T) {
	f := newServerFixture(t, func(c *Config) { c.CORSOrigins = []string{"https://dash.example"} })

	rr := f.do(http.MethodOptions, "/api/v1/scans", "", map[string]string{"Origin": "https://dash.example"})
	if rr.Code != http.StatusNoContent {
		t.Fatalf("expected 204 for preflight, got %d", rr.Code)
	}
	if got := rr.Header().Get("Access-Control-Allow-Origin"); got != "https://dash.example" {
		t.Fatalf("unexpected allow-origin %q", got)
	}

	rr = f.do(http.MethodGet, "/api/v1/health", "", map[string]string{"Origin": "https://evil.example"})
	if got := rr.Header().Get("Access-Control-Allow-Origin"); got != "" {
		t.Fatalf("unexpected allow-origin for unlisted origin: %q", got)
	}
}

func TestServerRateLimit(t *testing.T) {
	f := newServerFixture(t, func(c *Config) {
		c.RateLimit = 1
		c.RateBurst = 1
	})

	headers := map[string]string{"X-Forwarded-For": "203.0.113.7"}
	if rr := f.do(http.MethodGet, "/api/v1/health", "", headers); rr.Code != http.StatusOK {
		t.Fatalf("expected first request to pass, got %d", rr.Code)
	}
	rr := f.do(http.MethodGet, "/api/v1/health", "", headers)
	if rr.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429, got %d", rr.Code)
	}
	if rr.Header().Get("Retry-After") == "" {
		t.Error("expected Retry-After header")
	}

	other := map[string]string{"X-Forwarded-For": "198.51.100.2"}
	if rr := f.do(http.MethodGet, "/api/v1/health", "", other); rr.Code != http.StatusOK {
		t.Fatalf("limits should be per client, got %d", rr.Code)
	}
}

func TestServerMetricsAndObserver(t *testing.T) {
	f := newServerFixture(t, nil)

	rr := f.do(http.MethodGet, "/metrics", "", nil)
	if rr.Code != http.StatusOK || !strings.Contains(rr.Body.String(), "anomradar_scans_total") {
		t.Fatalf("unexpected metrics response: %d %s", rr.Code, rr.Body.String())
	}

	f.do(http.MethodGet, "/api/v1/scans/abc", "", nil)

	f.observer.mu.Lock()
	defer f.observer.mu.Unlock()
	if len(f.observer.seen) != 2 {
		t.Fatalf("expected 2 observed requests, got %d", len(f.observer.seen))
	}
	if got := f.observer.seen[1]; got.route != "/api/v1/scans/" || got.code != http.StatusNotFound {
		t.Fatalf("expected the mux pattern as route, got %+v", got)
	}
}

func TestServerScanStream(t *testing.T) {
	f := newServerFixture(t, nil)
	ts := httptest.NewServer(f.server)
	defer ts.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, ts.URL+"/api/v1/scans/stream", nil)
	if err != nil {
		t.Fatal(err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("stream request: %v", err)
	}
	defer resp.Body.Close()
	if ct := resp.Header.Get("Content-Type"); ct != "text/event-stream" {
		t.Fatalf("unexpected content type %q", ct)
	}

	// The handler subscribes after flushing headers; give it a moment.
	time.Sleep(50 * time.Millisecond)
	if _, err := f.scans.StartScan(context.Background(), ScanRequest{Target: "example.com", Probes: []string{"dns"}}); err != nil {
		t.Fatal(err)
	}

	reader := bufio.NewReader(resp.Body)
	for {
		line, err := reader.ReadString('\n')
		if err != nil {
			t.Fatalf("reading stream: %v", err)
		}
		if strings.HasPrefix(line, "data: ") {
			var job Job
			if err := json.Unmarshal([]byte(strings.TrimPrefix(line, "data: ")), &job); err != nil {
				t.Fatalf("decode event: %v", err)
			}
			if job.Target != "example.com" {
				t.Fatalf("unexpected job in stream: %+v", job)
			}
			break
		}
	}
	cancel()
	f.scans.Wait()
}
