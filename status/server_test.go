package status

import (
	"bufio"
	"context"
	"crypto/tls"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"

	"github.com/kbukum/framepipe/component"
	"github.com/kbukum/framepipe/errors"
	"github.com/kbukum/framepipe/frame"
	"github.com/kbukum/framepipe/ledger"
	"github.com/kbukum/framepipe/logger"
	"github.com/kbukum/framepipe/pipeline"
	"github.com/kbukum/framepipe/security"
	"github.com/kbukum/framepipe/security/tlstest"
	"github.com/kbukum/framepipe/sse"
)

func newTestServer() *Server {
	return New(Config{Host: "127.0.0.1", Port: 0}, "framepipe", logger.Nop())
}

func get(t *testing.T, s *Server, path string) (int, map[string]any) {
	t.Helper()
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	var body map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("%s: body is not JSON: %v (%q)", path, err, rec.Body.String())
	}
	return rec.Code, body
}

func errorCode(body map[string]any) string {
	e, _ := body["error"].(map[string]any)
	code, _ := e["code"].(string)
	return code
}

type fakeReporter struct{ p pipeline.Progress }

func (f fakeReporter) Progress() pipeline.Progress { return f.p }

func TestHealth(t *testing.T) {
	tests := []struct {
		name       string
		components []component.Health
		wantCode   int
		wantStatus string
	}{
		{"no components", nil, http.StatusOK, "healthy"},
		{"degraded", []component.Health{{Name: "ledger", Status: component.StatusDegraded}}, http.StatusOK, "degraded"},
		{"unhealthy", []component.Health{
			{Name: "ledger", Status: component.StatusHealthy},
			{Name: "telemetry", Status: component.StatusUnhealthy},
		}, http.StatusServiceUnavailable, "unhealthy"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newTestServer()
			s.SetHealthChecker(func(context.Context) []component.Health { return tt.components })
			code, body := get(t, s, "/health")
			if code != tt.wantCode || body["status"] != tt.wantStatus {
				t.Errorf("got %d %v, want %d %s", code, body["status"], tt.wantCode, tt.wantStatus)
			}
			if body["service"] != "framepipe" {
				t.Errorf("service = %v", body["service"])
			}
		})
	}
}

func TestInfo(t *testing.T) {
	code, body := get(t, newTestServer(), "/info")
	if code != http.StatusOK {
		t.Fatalf("code = %d", code)
	}
	data, _ := body["data"].(map[string]any)
	build, _ := data["build"].(map[string]any)
	if build["version"] == nil || data["service"] != "framepipe" {
		t.Errorf("unexpected body %v", body)
	}
}

func TestStats(t *testing.T) {
	s := newTestServer()
	code, body := get(t, s, "/stats")
	if code != http.StatusServiceUnavailable || errorCode(body) != string(errors.ErrCodeUnavailable) {
		t.Errorf("before attach: %d %v", code, body)
	}

	s.SetReporter(fakeReporter{pipeline.Progress{RunID: "r1", State: "Running", Expected: 10, Consumed: 4}})
	code, body = get(t, s, "/stats")
	if code != http.StatusOK {
		t.Fatalf("code = %d", code)
	}
	data, _ := body["data"].(map[string]any)
	if data["run_id"] != "r1" || data["state"] != "Running" || data["consumed"] != float64(4) {
		t.Errorf("unexpected progress %v", data)
	}
}

func TestStatsFromLivePipeline(t *testing.T) {
	s := newTestServer()
	p := pipeline.New[frame.Frame, frame.Frame](frame.NewSynthetic(2, 2, 3, 3), frame.Grayscale, frame.Discard,
		pipeline.WithLogger(logger.Nop()))
	s.SetReporter(p)
	if _, err := p.Run(context.Background()); err != nil {
		t.Fatal(err)
	}
	_, body := get(t, s, "/stats")
	data, _ := body["data"].(map[string]any)
	report, _ := data["report"].(map[string]any)
	if data["state"] != pipeline.StateDone.String() || report["outcome"] != "completed" {
		t.Errorf("unexpected stats %v", data)
	}
}

func TestRuns(t *testing.T) {
	ctx := context.Background()
	s := newTestServer()

	if code, body := get(t, s, "/runs"); code != http.StatusServiceUnavailable || errorCode(body) != string(errors.ErrCodeUnavailable) {
		t.Errorf("without ledger: %d %v", code, body)
	}

	l, err := ledger.Open(ctx, ":memory:", logger.Nop())
	if err != nil {
		t.Fatal(err)
	}
	defer l.Close()
	runID := uuid.NewString()
	l.StartRun(ctx, runID, "synthetic", 2)
	l.Record(ctx, runID, frame.Generate(1, 2, 2, 1))
	l.Record(ctx, runID, frame.Generate(2, 2, 2, 1))
	s.SetRunStore(l)

	tests := []struct {
		name     string
		path     string
		wantCode int
		wantErr  errors.ErrorCode
	}{
		{"list", "/runs", http.StatusOK, ""},
		{"list limit", "/runs?limit=1", http.StatusOK, ""},
		{"bad limit", "/runs?limit=zero", http.StatusBadRequest, errors.ErrCodeInvalidInput},
		{"one", "/runs/" + runID, http.StatusOK, ""},
		{"frames", "/runs/" + runID + "/frames", http.StatusOK, ""},
		{"unknown", "/runs/" + uuid.NewString(), http.StatusNotFound, errors.ErrCodeNotFound},
		{"unknown frames", "/runs/" + uuid.NewString() + "/frames", http.StatusNotFound, errors.ErrCodeNotFound},
		{"malformed id", "/runs/abc", http.StatusBadRequest, errors.ErrCodeInvalidFormat},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			code, body := get(t, s, tt.path)
			if code != tt.wantCode {
				t.Errorf("code = %d, want %d (%v)", code, tt.wantCode, body)
			}
			if tt.wantErr != "" && errorCode(body) != string(tt.wantErr) {
				t.Errorf("error code = %s, want %s", errorCode(body), tt.wantErr)
			}
		})
	}

	_, body := get(t, s, "/runs/"+runID+"/frames")
	frames, _ := body["data"].([]any)
	if len(frames) != 2 {
		t.Errorf("expected 2 frames, got %v", body["data"])
	}
}

func TestRequestID(t *testing.T) {
	s := newTestServer()
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/info", nil)
	req.Header.Set(headerRequestID, "abc")
	s.Handler().ServeHTTP(rec, req)
	if rec.Header().Get(headerRequestID) != "abc" {
		t.Errorf("request id not echoed: %q", rec.Header().Get(headerRequestID))
	}
}

func TestStartStop(t *testing.T) {
	ctx := context.Background()
	s := newTestServer()
	if h := s.Health(ctx); h.Status != component.StatusUnhealthy {
		t.Errorf("expected unhealthy before start, got %s", h.Status)
	}
	if err := s.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if h := s.Health(ctx); h.Status != component.StatusHealthy {
		t.Errorf("expected healthy after start, got %+v", h)
	}

	resp, err := http.Get("http://" + s.Addr() + "/health")
	if err != nil {
		t.Fatalf("GET /health: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("status = %d", resp.StatusCode)
	}

	if err := s.Stop(ctx); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	if _, err := http.Get("http://" + s.Addr() + "/health"); err == nil {
		t.Error("expected connection failure after stop")
	}
}

func TestEventsRejects(t *testing.T) {
	withHub := newTestServer()
	withHub.SetEventHub(sse.NewHub(logger.Nop()))

	tests := []struct {
		name   string
		server *Server
		path   string
		status int
		code   string
	}{
		{"no hub", newTestServer(), "/events", http.StatusServiceUnavailable, string(errors.ErrCodeUnavailable)},
		{"bad run id", withHub, "/events?run=not-a-uuid", http.StatusBadRequest, string(errors.ErrCodeInvalidFormat)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status, body := get(t, tt.server, tt.path)
			if status != tt.status || errorCode(body) != tt.code {
				t.Errorf("got %d %q, want %d %q", status, errorCode(body), tt.status, tt.code)
			}
		})
	}
}

func TestEventsStream(t *testing.T) {
	ctx := context.Background()
	events := sse.NewComponent(logger.Nop())
	if err := events.Start(ctx); err != nil {
		t.Fatalf("start hub: %v", err)
	}
	s := newTestServer()
	s.SetEventHub(events.Hub())
	if err := s.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}

	runID := uuid.NewString()
	resp, err := http.Get("http://" + s.Addr() + "/events?run=" + runID)
	if err != nil {
		t.Fatalf("GET /events: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}

	lines := bufio.NewScanner(resp.Body)
	var got []string
	for lines.Scan() && len(got) < 4 {
		line := lines.Text()
		if line == "" {
			continue
		}
		got = append(got, line)
		if len(got) == 2 {
			err := events.Hub().Publish(runID, sse.EventTypeState, sse.StateEvent{RunID: runID, From: "idle", To: "running"})
			if err != nil {
				t.Fatalf("Publish: %v", err)
			}
		}
	}
	if len(got) != 4 || got[0] != "event: connected" || got[2] != "event: state" || !strings.Contains(got[3], `"to":"running"`) {
		t.Errorf("unexpected stream %q", got)
	}

	if err := events.Stop(ctx); err != nil {
		t.Fatalf("stop hub: %v", err)
	}
	if err := s.Stop(ctx); err != nil {
		t.Fatalf("Stop: %v", err)
	}
}

func TestStartTLS(t *testing.T) {
	ctx := context.Background()
	certs := tlstest.Generate(t)
	s := New(Config{Host: "127.0.0.1", TLS: security.TLSConfig{CertFile: certs.Server.CertFile, KeyFile: certs.Server.KeyFile}}, "framepipe", logger.Nop())
	if err := s.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer s.Stop(ctx)

	client := &http.Client{Transport: &http.Transport{TLSClientConfig: &tls.Config{RootCAs: certs.CA.Pool}}}
	resp, err := client.Get("https://" + s.Addr() + "/info")
	if err != nil {
		t.Fatalf("GET over TLS: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("status = %d", resp.StatusCode)
	}

	if resp, err := http.Get("http://" + s.Addr() + "/info"); err == nil {
		resp.Body.Close()
		if resp.StatusCode == http.StatusOK {
			t.Error("expected plain HTTP to be refused by a TLS listener")
		}
	}
}

func TestStartMutualTLS(t *testing.T) {
	ctx := context.Background()
	certs := tlstest.Generate(t)
	s := New(Config{Host: "127.0.0.1", TLS: security.TLSConfig{
		CertFile: certs.Server.CertFile, KeyFile: certs.Server.KeyFile, ClientCAFile: certs.CA.File,
	}}, "framepipe", logger.Nop())
	if err := s.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer s.Stop(ctx)

	get := func(clientCerts ...tls.Certificate) (int, error) {
		client := &http.Client{Transport: &http.Transport{TLSClientConfig: &tls.Config{
			RootCAs: certs.CA.Pool, Certificates: clientCerts,
		}}}
		resp, err := client.Get("https://" + s.Addr() + "/info")
		if err != nil {
			return 0, err
		}
		resp.Body.Close()
		return resp.StatusCode, nil
	}

	if code, err := get(certs.Client.KeyPair); err != nil || code != http.StatusOK {
		t.Errorf("with client certificate: status=%d err=%v", code, err)
	}
	if code, err := get(); err == nil && code == http.StatusOK {
		t.Error("expected a request without a client certificate to be refused")
	}
}

func TestStartRejectsBadTLS(t *testing.T) {
	s := New(Config{Host: "127.0.0.1", TLS: security.TLSConfig{CertFile: "/nonexistent/cert.pem", KeyFile: "/nonexistent/key.pem"}}, "framepipe", logger.Nop())
	if err := s.Start(context.Background()); err == nil {
		t.Fatal("expected Start to fail with an unreadable certificate")
	}
}

func TestConfig(t *testing.T) {
	var c Config
	c.ApplyDefaults()
	if c.Addr() != "127.0.0.1:8090" {
		t.Errorf("Addr = %s", c.Addr())
	}
	if err := c.Validate(); err != nil {
		t.Errorf("defaults should validate: %v", err)
	}
	c.Port = 70000
	if err := c.Validate(); errors.CodeOf(err) != errors.ErrCodeInvalidInput {
		t.Errorf("expected INVALID_INPUT, got %v", err)
	}
	c.Port = 8090
	c.TLS = security.TLSConfig{KeyFile: "key.pem"}
	if err := c.Validate(); err == nil {
		t.Error("expected a key without a certificate to fail validation")
	}
}
