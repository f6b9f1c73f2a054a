package httpserver

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"ephemeral-paste/internal/clock"
	"ephemeral-paste/internal/id"
	"ephemeral-paste/internal/metrics"
	"ephemeral-paste/internal/paste"
	"ephemeral-paste/internal/storage"
	"ephemeral-paste/internal/storage/storagetest"
)

var baseTime = time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

type testEnv struct {
	srv     *Server
	store   *storagetest.MemoryStore
	clock   *clock.Fixed
	metrics *metrics.Metrics
}

type envOption func(*Config)

func withTestMode(c *Config) { c.TestMode = true }

func newTestEnv(t *testing.T, opts ...envOption) *testEnv {
	t.Helper()
	store := storagetest.NewMemoryStore()
	return newTestEnvWithStore(t, store, store, opts...)
}

func newTestEnvWithStore(t *testing.T, store storage.Store, mem *storagetest.MemoryStore, opts ...envOption) *testEnv {
	t.Helper()
	clk := clock.NewFixed(baseTime)
	m := metrics.New()
	cfg := Config{
		Service:  paste.NewService(paste.NewRepository(store, id.New(0), clk)),
		Clock:    clk,
		MaxBytes: 1024,
		Logger:   slog.New(slog.NewTextHandler(io.Discard, nil)),
		Metrics:  m,
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	srv, err := New(cfg)
	if err != nil {
		t.Fatalf("new server: %v", err)
	}
	return &testEnv{srv: srv, store: mem, clock: clk, metrics: m}
}

func (e *testEnv) do(t *testing.T, method, path, body string, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	e.srv.Handler().ServeHTTP(rec, req)
	return rec
}

func (e *testEnv) create(t *testing.T, body string) string {
	t.Helper()
	rec := e.do(t, http.MethodPost, "/api/pastes", body, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("create status %d: %s", rec.Code, rec.Body.String())
	}
	var out createResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode create response: %v", err)
	}
	if out.ID == "" {
		t.Fatalf("create response missing id")
	}
	return out.ID
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	out := map[string]any{}
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode body %q: %v", rec.Body.String(), err)
	}
	return out
}

func nowHeader(t time.Time) map[string]string {
	return map[string]string{TestNowHeader: strconv.FormatInt(t.UnixMilli(), 10)}
}

// failingStore answers reads with err while writes go to the memory store.
type failingStore struct {
	*storagetest.MemoryStore
	err error
}

func (f failingStore) Get(ctx context.Context, id string) (*storage.Paste, error) {
	return nil, f.err
}
