package httpapi

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/eca/internal/compiler"
	"github.com/roach88/eca/internal/engine"
	"github.com/roach88/eca/internal/index"
	"github.com/roach88/eca/internal/ir"
	"github.com/roach88/eca/internal/plugin/builtin"
	"github.com/roach88/eca/internal/store"
	"github.com/roach88/eca/internal/testutil"
)

const greetModel = `
id: greet-on-login
events:
  - id: login
    plugin: host_event
    config: {event: "user:login"}
actions:
  - id: say
    plugin: set_message
    config: {message: "Welcome back, [user.name]!"}
successors:
  - {source: login, target: say}
`

type fixture struct {
	handler  http.Handler
	store    *store.Memory
	messages *testutil.MessageSink
}

func setup(t *testing.T) *fixture {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	cat := builtin.NewCatalog()

	mem := store.NewMemory()
	for _, m := range testutil.ParseModels(t, greetModel) {
		_, err := mem.PutModel(context.Background(), m)
		require.NoError(t, err)
	}

	reg := prometheus.NewRegistry()
	metrics, err := engine.NewMetrics(reg)
	require.NoError(t, err)

	idx := index.New(mem, cat, index.WithLogger(logger), index.WithObserver(metrics.ObserveRebuild))
	mem.OnChange(func(store.Change) { idx.Invalidate() })

	sink := &testutil.MessageSink{}
	eng := engine.New(idx, cat,
		engine.WithLogger(logger),
		engine.WithMetrics(metrics),
		engine.WithMessageSink(sink),
		engine.WithIDGenerator(engine.NewSequenceGenerator("inv")))

	srv := NewServer(eng,
		WithModelStore(mem),
		WithGatherer(reg),
		WithLogger(logger))
	return &fixture{handler: srv.Handler(), store: mem, messages: sink}
}

func (f *fixture) do(t *testing.T, method, path, body string, header ...string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	for i := 0; i+1 < len(header); i += 2 {
		req.Header.Set(header[i], header[i+1])
	}
	rr := httptest.NewRecorder()
	f.handler.ServeHTTP(rr, req)
	return rr
}

func decode[T any](t *testing.T, rr *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &v), rr.Body.String())
	return v
}

func TestHealth(t *testing.T) {
	f := setup(t)
	rr := f.do(t, http.MethodGet, "/healthz", "")
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "ok", decode[map[string]string](t, rr)["status"])
}

func TestDispatchEvent(t *testing.T) {
	f := setup(t)

	rr := f.do(t, http.MethodPost, "/v1/events/user:login", `{"user": {"name": "Ada"}}`)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())

	resp := decode[DispatchResponse](t, rr)
	assert.Equal(t, "user:login", resp.Event)
	require.Len(t, resp.Reports, 1)
	assert.Equal(t, "greet-on-login", resp.Reports[0].ModelID)
	assert.Equal(t, ir.StateCompleted, resp.Reports[0].State)
	assert.Equal(t, 2, resp.Reports[0].NodesVisited)
	assert.Equal(t, []string{"greet-on-login: Welcome back, Ada!"}, f.messages.Messages())
}

func TestDispatchEvent_NoSubscribers(t *testing.T) {
	f := setup(t)

	rr := f.do(t, http.MethodPost, "/v1/events/user:logout", "")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Empty(t, decode[DispatchResponse](t, rr).Reports)
}

func TestDispatchEvent_BadPayload(t *testing.T) {
	f := setup(t)

	rr := f.do(t, http.MethodPost, "/v1/events/user:login", `[1, 2]`)
	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Equal(t, "invalid_payload", decode[ErrorBody](t, rr).Error.Code)
}

func TestIndexAndRebuild(t *testing.T) {
	f := setup(t)

	rr := f.do(t, http.MethodGet, "/v1/index", "")
	require.Equal(t, http.StatusOK, rr.Code)
	idx := decode[IndexResponse](t, rr)
	assert.Equal(t, []string{"greet-on-login"}, idx.Models)
	assert.Equal(t, []ir.IndexEntry{{
		Pattern: "user:login", ModelID: "greet-on-login", NodeID: "login",
	}}, idx.Entries)
	assert.NotEmpty(t, idx.Digest)

	rr = f.do(t, http.MethodPost, "/v1/index/rebuild", "")
	require.Equal(t, http.StatusOK, rr.Code)
	rebuilt := decode[IndexResponse](t, rr)
	assert.Greater(t, rebuilt.Generation, idx.Generation)
	assert.Equal(t, idx.Digest, rebuilt.Digest)
}

func TestModels_Lifecycle(t *testing.T) {
	f := setup(t)

	rr := f.do(t, http.MethodPost, "/v1/models", `
id: farewell
events:
  - {id: out, plugin: host_event, config: {event: "user:logout"}}
actions:
  - {id: bye, plugin: set_message, config: {message: Bye}}
successors:
  - {source: out, target: bye}
`, "Content-Type", "application/yaml")
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())

	rr = f.do(t, http.MethodGet, "/v1/models", "")
	require.Equal(t, http.StatusOK, rr.Code)
	records := decode[[]store.ModelRecord](t, rr)
	require.Len(t, records, 2)
	assert.Equal(t, "farewell", records[0].ID)

	// The store change invalidates the index; the next dispatch sees it.
	rr = f.do(t, http.MethodPost, "/v1/events/user:logout", "")
	require.Equal(t, http.StatusOK, rr.Code)
	require.Len(t, decode[DispatchResponse](t, rr).Reports, 1)

	rr = f.do(t, http.MethodGet, "/v1/models/farewell", "")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "farewell", decode[compiler.RawModel](t, rr).ID)

	rr = f.do(t, http.MethodPut, "/v1/models/farewell/status", `{"status": "disabled"}`)
	require.Equal(t, http.StatusNoContent, rr.Code)
	rr = f.do(t, http.MethodPost, "/v1/events/user:logout", "")
	assert.Empty(t, decode[DispatchResponse](t, rr).Reports)

	rr = f.do(t, http.MethodDelete, "/v1/models/farewell", "")
	require.Equal(t, http.StatusNoContent, rr.Code)
	rr = f.do(t, http.MethodGet, "/v1/models/farewell", "")
	assert.Equal(t, http.StatusNotFound, rr.Code)
}

func TestModels_Errors(t *testing.T) {
	f := setup(t)

	tests := []struct {
		name   string
		method string
		path   string
		body   string
		status int
		code   string
	}{
		{"unparseable model", http.MethodPost, "/v1/models", `{`, http.StatusBadRequest, "invalid_model"},
		{"model without id", http.MethodPost, "/v1/models", `{"label": "x", "events": [{"id": "e", "plugin": "host_event"}]}`, http.StatusBadRequest, "invalid_model"},
		{"bad status", http.MethodPut, "/v1/models/greet-on-login/status", `{"status": "paused"}`, http.StatusBadRequest, "invalid_status"},
		{"unknown model status", http.MethodPut, "/v1/models/ghost/status", `{"status": "enabled"}`, http.StatusNotFound, "not_found"},
		{"unknown model delete", http.MethodDelete, "/v1/models/ghost", "", http.StatusNotFound, "not_found"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := f.do(t, tt.method, tt.path, tt.body)
			assert.Equal(t, tt.status, rr.Code, rr.Body.String())
			assert.Equal(t, tt.code, decode[ErrorBody](t, rr).Error.Code)
		})
	}
}

func TestMetrics(t *testing.T) {
	f := setup(t)
	f.do(t, http.MethodPost, "/v1/events/user:login", `{"user": {"name": "Ada"}}`)

	rr := f.do(t, http.MethodGet, "/metrics", "")
	require.Equal(t, http.StatusOK, rr.Code)
	body := rr.Body.String()
	assert.Contains(t, body, "eca_dispatches_total 1")
	assert.Contains(t, body, `eca_invocations_total{model="greet-on-login",state="completed"} 1`)
}

func TestNoModelStore(t *testing.T) {
	cat := builtin.NewCatalog()
	idx := index.New(testutil.NewSource(), cat)
	srv := NewServer(engine.New(idx, cat))

	req := httptest.NewRequest(http.MethodGet, "/v1/models", nil)
	rr := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rr, req)
	assert.Equal(t, http.StatusNotFound, rr.Code)
}
