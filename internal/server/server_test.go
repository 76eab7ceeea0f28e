package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lewisedginton/chatwatch/internal/session"
	pkgconfig "github.com/lewisedginton/chatwatch/pkg/config"
	"github.com/lewisedginton/chatwatch/pkg/logger"
	"github.com/lewisedginton/chatwatch/pkg/metrics"
)

type fakeEngine struct {
	mu          sync.Mutex
	active      bool
	lines       []string
	disconnects int
	sessions    []session.Info
}

func (f *fakeEngine) HandleLine(_ context.Context, line string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lines = append(f.lines, line)
}

func (f *fakeEngine) EndSession(context.Context) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.disconnects++
}

func (f *fakeEngine) SetIdentity(string, string) {}
func (f *fakeEngine) Active() bool               { return f.active }
func (f *fakeEngine) Identity() (string, string) { return "Me", "play.example.net:25565" }
func (f *fakeEngine) Sessions() []session.Info   { return f.sessions }
func (f *fakeEngine) DebugBacklog() int          { return 4 }

func newTestServer(t *testing.T, engine *fakeEngine, m *metrics.Metrics) http.Handler {
	t.Helper()
	s, err := New(Config{
		HTTP:    pkgconfig.HTTPServerConfig{Port: 8080},
		BaseDir: t.TempDir(),
		Logger:  logger.NewNopLogger(),
		Metrics: m,
	}, engine)
	require.NoError(t, err)
	return s.Router()
}

func TestNewRequiresEngine(t *testing.T) {
	_, err := New(Config{}, nil)
	assert.Error(t, err)
}

func TestHealthEndpoints(t *testing.T) {
	engine := &fakeEngine{active: true}
	h := newTestServer(t, engine, nil)

	for _, path := range []string{"/health/live", "/health/ready"} {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
		assert.Equal(t, http.StatusOK, rec.Code, path)
	}

	engine.active = false
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health/live", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Contains(t, rec.Body.String(), "engine is not active")
}

func TestSessionsEndpoint(t *testing.T) {
	engine := &fakeEngine{active: true, sessions: []session.Info{
		{Correspondent: "playera", Open: true, MessageCount: 3, File: "playera.txt"},
		{Correspondent: "steve", Open: false, MessageCount: 1, File: "steve.txt"},
	}}
	h := newTestServer(t, engine, nil)

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/sessions", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var resp SessionsResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.True(t, resp.Active)
	assert.Equal(t, "Me", resp.Player)
	assert.Equal(t, "play.example.net:25565", resp.Server)
	assert.Equal(t, 1, resp.OpenCount)
	assert.Equal(t, 4, resp.DebugBacklog)
	require.Len(t, resp.Sessions, 2)
	assert.Equal(t, "playera", resp.Sessions[0].Correspondent)
}

func TestSessionsEndpointEmpty(t *testing.T) {
	h := newTestServer(t, &fakeEngine{active: true}, nil)

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/sessions", nil))
	assert.Contains(t, rec.Body.String(), `"sessions":[]`)
}

func TestLinesEndpoint(t *testing.T) {
	tests := []struct {
		name        string
		contentType string
		body        string
		code        int
		want        []string
	}{
		{"json single", "application/json", `{"line":"PlayerA whispers to you: hi"}`, http.StatusAccepted, []string{"PlayerA whispers to you: hi"}},
		{"json batch", "application/json; charset=utf-8", `{"line":"a","lines":["b","","c"]}`, http.StatusAccepted, []string{"a", "b", "c"}},
		{"plain text", "text/plain", "<Steve> 100 64 200\r\n\n<Alex> hi\n", http.StatusAccepted, []string{"<Steve> 100 64 200", "<Alex> hi"}},
		{"bad json", "application/json", `{"line":`, http.StatusBadRequest, nil},
		{"empty", "text/plain", "\n\n", http.StatusBadRequest, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			engine := &fakeEngine{active: true}
			h := newTestServer(t, engine, nil)

			req := httptest.NewRequest(http.MethodPost, "/v1/lines", strings.NewReader(tt.body))
			req.Header.Set("Content-Type", tt.contentType)
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)

			assert.Equal(t, tt.code, rec.Code)
			assert.Equal(t, tt.want, engine.lines)
			if tt.code == http.StatusAccepted {
				var resp AcceptedResponse
				require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
				assert.Equal(t, len(tt.want), resp.Accepted)
			}
		})
	}
}

func TestLinesEndpointInactive(t *testing.T) {
	engine := &fakeEngine{active: false}
	h := newTestServer(t, engine, nil)

	req := httptest.NewRequest(http.MethodPost, "/v1/lines", strings.NewReader("hello"))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Empty(t, engine.lines)
}

func TestDisconnectEndpoint(t *testing.T) {
	engine := &fakeEngine{active: true}
	h := newTestServer(t, engine, nil)

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/v1/disconnect", nil))

	assert.Equal(t, http.StatusAccepted, rec.Code)
	assert.Equal(t, 1, engine.disconnects)
}

func TestMetricsEndpoint(t *testing.T) {
	m := metrics.NewMetrics(true, true, logger.NewNopLogger())
	h := newTestServer(t, &fakeEngine{active: true}, m)

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/sessions", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "chatwatch_total_http_requests")
}

func TestCorrelationIDEchoed(t *testing.T) {
	h := newTestServer(t, &fakeEngine{active: true}, nil)

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/sessions", nil))
	assert.NotEmpty(t, rec.Header().Get(logger.CorrelationIDHeader))
}
