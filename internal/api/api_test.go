package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/google/go-cmp/cmp"

	"pagewatch/internal/logbuf"
	"pagewatch/internal/model"
	"pagewatch/internal/notify"
	"pagewatch/internal/registry"
	"pagewatch/internal/storage"
)

// --- mocks ---

type mockScheduler struct {
	mu       sync.Mutex
	running  bool
	checked  []int64
	checkErr error
}

func (m *mockScheduler) Start(context.Context) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.running {
		return false
	}
	m.running = true
	return true
}

func (m *mockScheduler) Stop() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.running {
		return false
	}
	m.running = false
	return true
}

func (m *mockScheduler) Running() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.running
}

func (m *mockScheduler) CheckNow(_ context.Context, id int64) (model.Event, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.checked = append(m.checked, id)
	if m.checkErr != nil {
		return 0, m.checkErr
	}
	return model.EventChanged, nil
}

type mockTester struct {
	err error
}

func (m *mockTester) Test(_ context.Context, st model.Settings) error {
	if !st.HasCredentials() {
		return notify.ErrNoCredentials
	}
	return m.err
}

// --- helpers ---

type env struct {
	srv    *Server
	h      http.Handler
	reg    *registry.Registry
	sched  *mockScheduler
	tester *mockTester
	ring   *logbuf.Ring
}

func newEnv(t *testing.T) *env {
	t.Helper()
	ring := logbuf.NewRing(100, slog.LevelDebug)
	log := slog.New(ring)
	store, err := storage.NewJSONFile(t.TempDir(), log)
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	e := &env{
		reg:    registry.New(store),
		sched:  &mockScheduler{},
		tester: &mockTester{},
		ring:   ring,
	}
	e.srv = New(context.Background(), e.reg, e.sched, e.tester, ring, log)
	e.srv.SetMetricsHandler(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("pagewatch_checks_total 0\n"))
	}))
	e.h = e.srv.Handler()
	return e
}

func (e *env) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var r io.Reader
	if body != nil {
		switch b := body.(type) {
		case string:
			r = strings.NewReader(b)
		default:
			raw, err := json.Marshal(b)
			if err != nil {
				t.Fatalf("marshal body: %v", err)
			}
			r = bytes.NewReader(raw)
		}
	}
	req := httptest.NewRequest(method, path, r)
	w := httptest.NewRecorder()
	e.h.ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(w.Body.Bytes(), &v); err != nil {
		t.Fatalf("decode %q: %v", w.Body.String(), err)
	}
	return v
}

func urls(vs []targetView) []string {
	out := make([]string, 0, len(vs))
	for _, v := range vs {
		out = append(out, v.URL)
	}
	return out
}

// --- tests ---

func TestTargetLifecycle(t *testing.T) {
	e := newEnv(t)

	w := e.do(t, http.MethodPost, "/api/targets", registry.NewTarget{
		URL: "https://shop.example.com", Interval: 60, Mode: "product", NotifyOnCheck: true,
	})
	if w.Code != http.StatusCreated {
		t.Fatalf("add status = %d: %s", w.Code, w.Body)
	}
	w = e.do(t, http.MethodPost, "/api/targets", registry.NewTarget{URL: "https://news.example.com", Interval: 600})
	if w.Code != http.StatusCreated {
		t.Fatalf("add status = %d: %s", w.Code, w.Body)
	}

	list := decode[[]targetView](t, e.do(t, http.MethodGet, "/api/targets", nil))
	want := []targetView{
		{ID: 1, URL: "https://shop.example.com", Mode: model.ModeProduct, Interval: 60, Enabled: true, NotifyOnCheck: true},
		{ID: 2, URL: "https://news.example.com", Mode: model.ModeDefault, Interval: 600, Enabled: true},
	}
	if diff := cmp.Diff(want, list); diff != "" {
		t.Errorf("list mismatch (-want +got):\n%s", diff)
	}

	w = e.do(t, http.MethodPost, "/api/targets/1/disable", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("disable status = %d", w.Code)
	}
	if got := decode[[]targetView](t, w); got[0].Enabled {
		t.Error("target 1 still enabled")
	}
	w = e.do(t, http.MethodPost, "/api/targets/1/enable", nil)
	if got := decode[[]targetView](t, w); !got[0].Enabled {
		t.Error("target 1 still disabled")
	}

	w = e.do(t, http.MethodDelete, "/api/targets/1", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("delete status = %d", w.Code)
	}
	if diff := cmp.Diff([]string{"https://news.example.com"}, urls(decode[[]targetView](t, w))); diff != "" {
		t.Errorf("after delete (-want +got):\n%s", diff)
	}
}

func TestTargetErrors(t *testing.T) {
	e := newEnv(t)
	e.do(t, http.MethodPost, "/api/targets", registry.NewTarget{URL: "https://a.example.com", Interval: 60})

	tests := []struct {
		name   string
		method string
		path   string
		body   any
		status int
	}{
		{"malformed body", http.MethodPost, "/api/targets", "{", http.StatusBadRequest},
		{"bad scheme", http.MethodPost, "/api/targets", registry.NewTarget{URL: "ftp://x", Interval: 60}, http.StatusBadRequest},
		{"duplicate url", http.MethodPost, "/api/targets", registry.NewTarget{URL: "https://a.example.com", Interval: 60}, http.StatusBadRequest},
		{"interval too short", http.MethodPost, "/api/targets", registry.NewTarget{URL: "https://b.example.com", Interval: 5}, http.StatusBadRequest},
		{"delete unknown", http.MethodDelete, "/api/targets/99", nil, http.StatusNotFound},
		{"enable unknown", http.MethodPost, "/api/targets/99/enable", nil, http.StatusNotFound},
		{"bad id", http.MethodDelete, "/api/targets/abc", nil, http.StatusBadRequest},
		{"wrong method", http.MethodPut, "/api/targets", nil, http.StatusMethodNotAllowed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := e.do(t, tt.method, tt.path, tt.body)
			if w.Code != tt.status {
				t.Fatalf("status = %d, want %d: %s", w.Code, tt.status, w.Body)
			}
			if tt.status == http.StatusMethodNotAllowed {
				return
			}
			if msg := decode[map[string]string](t, w)["error"]; msg == "" {
				t.Errorf("missing error message in %s", w.Body)
			}
		})
	}

	targets, _ := e.reg.List(context.Background())
	if len(targets) != 1 {
		t.Errorf("rejected requests changed the registry: %d targets", len(targets))
	}
}

func TestCheck(t *testing.T) {
	e := newEnv(t)

	w := e.do(t, http.MethodPost, "/api/targets/3/check", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	if diff := cmp.Diff(map[string]string{"event": "changed"}, decode[map[string]string](t, w)); diff != "" {
		t.Errorf("body mismatch (-want +got):\n%s", diff)
	}

	e.sched.checkErr = registry.ErrNotFound
	if w := e.do(t, http.MethodPost, "/api/targets/3/check", nil); w.Code != http.StatusNotFound {
		t.Errorf("missing target status = %d", w.Code)
	}
	e.sched.checkErr = errors.New("navigation timeout")
	if w := e.do(t, http.MethodPost, "/api/targets/3/check", nil); w.Code != http.StatusBadGateway {
		t.Errorf("fetch failure status = %d", w.Code)
	}
}

func TestSettings(t *testing.T) {
	e := newEnv(t)

	got := decode[settingsView](t, e.do(t, http.MethodGet, "/api/settings", nil))
	if diff := cmp.Diff(settingsView{}, got); diff != "" {
		t.Errorf("empty settings mismatch (-want +got):\n%s", diff)
	}

	if w := e.do(t, http.MethodPost, "/api/settings/test", nil); w.Code != http.StatusBadRequest {
		t.Errorf("test without credentials status = %d", w.Code)
	}

	if w := e.do(t, http.MethodPut, "/api/settings", model.Settings{ChannelToken: "tok"}); w.Code != http.StatusBadRequest {
		t.Errorf("missing user id status = %d", w.Code)
	}

	w := e.do(t, http.MethodPut, "/api/settings", model.Settings{ChannelToken: " secret-token ", UserID: "U123"})
	if w.Code != http.StatusOK {
		t.Fatalf("save status = %d: %s", w.Code, w.Body)
	}
	want := settingsView{ChannelToken: "********oken", UserID: "U123", Configured: true}
	if diff := cmp.Diff(want, decode[settingsView](t, w)); diff != "" {
		t.Errorf("saved settings mismatch (-want +got):\n%s", diff)
	}

	stored, _ := e.reg.Settings(context.Background())
	if stored.ChannelToken != "secret-token" {
		t.Errorf("stored token = %q", stored.ChannelToken)
	}

	if w := e.do(t, http.MethodPost, "/api/settings/test", nil); w.Code != http.StatusOK {
		t.Errorf("test status = %d", w.Code)
	}
	e.tester.err = errors.New("401 unauthorized")
	if w := e.do(t, http.MethodPost, "/api/settings/test", nil); w.Code != http.StatusBadGateway {
		t.Errorf("rejected credentials status = %d", w.Code)
	}
}

func TestScheduler(t *testing.T) {
	e := newEnv(t)

	steps := []struct {
		method string
		path   string
		want   schedulerStatus
	}{
		{http.MethodGet, "/api/scheduler", schedulerStatus{Running: false}},
		{http.MethodPost, "/api/scheduler/start", schedulerStatus{Running: true, Changed: true}},
		{http.MethodPost, "/api/scheduler/start", schedulerStatus{Running: true, Changed: false}},
		{http.MethodPost, "/api/scheduler/stop", schedulerStatus{Running: false, Changed: true}},
		{http.MethodPost, "/api/scheduler/stop", schedulerStatus{Running: false, Changed: false}},
	}
	for _, st := range steps {
		w := e.do(t, st.method, st.path, nil)
		if diff := cmp.Diff(st.want, decode[schedulerStatus](t, w)); diff != "" {
			t.Errorf("%s %s mismatch (-want +got):\n%s", st.method, st.path, diff)
		}
	}
}

func TestLogs(t *testing.T) {
	e := newEnv(t)
	for i := 0; i < 3; i++ {
		e.do(t, http.MethodPost, "/api/targets", registry.NewTarget{URL: "https://example.com/" + string(rune('a'+i)), Interval: 60})
	}

	w := e.do(t, http.MethodGet, "/api/logs?n=2", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	lines := decode[map[string][]string](t, w)["lines"]
	if len(lines) != 2 {
		t.Fatalf("got %d lines, want 2: %q", len(lines), lines)
	}
	if !strings.Contains(lines[0], "INFO target added url=https://example.com/c") {
		t.Errorf("unexpected first line %q", lines[0])
	}
	if !strings.Contains(lines[1], "DEBUG http request method=POST path=/api/targets status=201") {
		t.Errorf("unexpected second line %q", lines[1])
	}

	if w := e.do(t, http.MethodGet, "/api/logs?n=zero", nil); w.Code != http.StatusBadRequest {
		t.Errorf("bad n status = %d", w.Code)
	}
}

func TestHealthAndMetrics(t *testing.T) {
	e := newEnv(t)

	if w := e.do(t, http.MethodGet, "/healthz", nil); w.Code != http.StatusOK || w.Body.String() != "ok" {
		t.Errorf("healthz = %d %q", w.Code, w.Body)
	}
	if w := e.do(t, http.MethodGet, "/metrics", nil); !strings.Contains(w.Body.String(), "pagewatch_checks_total") {
		t.Errorf("metrics body = %q", w.Body)
	}
}
