package gateway

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/flemzord/lorekeeper/internal/engine"
	"github.com/flemzord/lorekeeper/internal/session/sessiontest"
)

// newTestGateway wires a gateway over an in-memory store without listening.
func newTestGateway(t *testing.T, cfg Config) (*Gateway, *sessiontest.MemStore) {
	t.Helper()

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	reg := prometheus.NewRegistry()
	store := sessiontest.NewMemStore()
	cfg.defaults()

	g := &Gateway{
		config:    cfg,
		logger:    logger,
		registry:  reg,
		metrics:   NewMetrics(reg),
		lanes:     newLaneLock(),
		newID:     func() string { return "generated-id" },
		startedAt: time.Now(),
		store:     store,
		engine:    engine.New(engine.Options{Logger: logger, Metrics: engine.NewMetrics(reg)}),
	}
	return g, store
}

func doRequest(t *testing.T, h http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var rd io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		rd = bytes.NewReader(data)
	}
	req := httptest.NewRequest(method, path, rd)
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return rr
}

func decode[T any](t *testing.T, rr *httptest.ResponseRecorder) T {
	t.Helper()

	var v T
	if err := json.NewDecoder(rr.Body).Decode(&v); err != nil {
		t.Fatalf("decode %T: %v (body %q)", v, err, rr.Body.String())
	}
	return v
}
