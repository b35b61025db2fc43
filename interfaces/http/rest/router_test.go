package rest

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"graphscape/application/connection"
	"graphscape/application/reconciler"
	"graphscape/domain/core/aggregates"
	"graphscape/domain/core/entities"
	"graphscape/domain/core/valueobjects"
	"graphscape/domain/events"
	"graphscape/domain/services"
	pkgerrors "graphscape/pkg/errors"
)

type fakeSession struct {
	state      connection.State
	connErr    error
	fatal      error
	streaming  bool
	graph      *aggregates.Graph
	result     *reconciler.Result
	lastTarget valueobjects.StructureTarget
}

func (f *fakeSession) ID() string                      { return "s-1" }
func (f *fakeSession) State() connection.State         { return f.state }
func (f *fakeSession) ConnectionError() error          { return f.connErr }
func (f *fakeSession) Err() error                      { return f.fatal }
func (f *fakeSession) Streaming() bool                 { return f.streaming }
func (f *fakeSession) Snapshot() *aggregates.Snapshot  { return f.graph.Snapshot() }
func (f *fakeSession) LastResult() *reconciler.Result  { return f.result }

func (f *fakeSession) Assess(target valueobjects.StructureTarget) services.Assessment {
	f.lastTarget = target
	return services.NewGraphAssessmentService().Assess(f.graph.Snapshot(), target)
}

type httpCounter map[string]int

func (c httpCounter) ObserveHTTP(method, route string, status int, _ time.Duration) {
	c[method+" "+route+" "+http.StatusText(status)]++
}

func newSession(t *testing.T) *fakeSession {
	t.Helper()
	g := aggregates.NewGraph("g-1", nil, nil)
	a, err := entities.NewGraphNode("A", "Alpha", valueobjects.NodeKindConcept, nil)
	require.NoError(t, err)
	require.NoError(t, g.UpsertNode(a))
	return &fakeSession{state: connection.StateConnected, graph: g}
}

func serve(t *testing.T, h http.Handler, path string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestRouter_Healthz(t *testing.T) {
	session := newSession(t)
	h := NewRouter(session, nil, Options{}).Setup()

	rec := serve(t, h, "/healthz")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"healthy","sessionId":"s-1","connection":"connected"}`, rec.Body.String())

	session.fatal = pkgerrors.NewSceneConsistencyError("missing handle")
	rec = serve(t, h, "/healthz")
	assert.Contains(t, rec.Body.String(), `"degraded"`)
}

func TestRouter_Connection(t *testing.T) {
	session := newSession(t)
	session.state = connection.StateError
	session.connErr = pkgerrors.NewTransportFailureError("health probe", errors.New("refused"))
	session.streaming = true
	h := NewRouter(session, nil, Options{}).Setup()

	rec := serve(t, h, "/api/v1/connection")
	require.Equal(t, http.StatusOK, rec.Code)

	var body ConnectionResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "error", body.State)
	assert.Contains(t, body.Error, "health probe")
	assert.Empty(t, body.Fatal)
	assert.True(t, body.Streaming)
}

func TestRouter_Graph(t *testing.T) {
	session := newSession(t)
	session.result = &reconciler.Result{Reason: events.CompletionFinal, NodesAdded: 1, Confidence: 0.9}
	h := NewRouter(session, nil, Options{}).Setup()

	rec := serve(t, h, "/api/v1/graph")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	var body struct {
		Graph struct {
			ID    string `json:"id"`
			Nodes []struct {
				ID    string `json:"id"`
				Label string `json:"label"`
			} `json:"nodes"`
			Edges []json.RawMessage `json:"edges"`
		} `json:"graph"`
		LastResult struct {
			Reason     string  `json:"reason"`
			Confidence float64 `json:"confidence"`
		} `json:"lastResult"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "g-1", body.Graph.ID)
	require.Len(t, body.Graph.Nodes, 1)
	assert.Equal(t, "Alpha", body.Graph.Nodes[0].Label)
	assert.NotNil(t, body.Graph.Edges)
	assert.Equal(t, "final", body.LastResult.Reason)
	assert.Equal(t, 0.9, body.LastResult.Confidence)
}

func TestRouter_Assessment(t *testing.T) {
	tests := []struct {
		name       string
		query      string
		wantStatus int
		wantTarget valueobjects.StructureTarget
	}{
		{"explicit target", "?target=scenario", http.StatusOK, valueobjects.StructureTargetScenario},
		{"case insensitive", "?target=Entity", http.StatusOK, valueobjects.StructureTargetEntity},
		{"no target uses last", "", http.StatusOK, valueobjects.StructureTargetUnspecified},
		{"unknown target", "?target=poem", http.StatusBadRequest, valueobjects.StructureTargetUnspecified},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			session := newSession(t)
			h := NewRouter(session, nil, Options{}).Setup()

			rec := serve(t, h, "/api/v1/graph/assessment"+tt.query)
			assert.Equal(t, tt.wantStatus, rec.Code)
			if tt.wantStatus != http.StatusOK {
				assert.Contains(t, rec.Body.String(), "VALIDATION")
				return
			}
			assert.Equal(t, tt.wantTarget, session.lastTarget)

			var a services.Assessment
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &a))
			assert.GreaterOrEqual(t, a.Confidence, 0.0)
			assert.LessOrEqual(t, a.Confidence, 1.0)
		})
	}
}

func TestRouter_OptionalRoutes(t *testing.T) {
	session := newSession(t)

	bare := NewRouter(session, nil, Options{}).Setup()
	assert.Equal(t, http.StatusNotFound, serve(t, bare, "/metrics").Code)
	assert.Equal(t, http.StatusNotFound, serve(t, bare, "/ws").Code)

	counter := httpCounter{}
	full := NewRouter(session, nil, Options{
		Metrics: counter,
		MetricsHandler: http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			_, _ = w.Write([]byte("# metrics"))
		}),
		WebSocket: func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusTeapot)
		},
	}).Setup()

	assert.Equal(t, "# metrics", serve(t, full, "/metrics").Body.String())
	assert.Equal(t, http.StatusTeapot, serve(t, full, "/ws").Code)
	serve(t, full, "/api/v1/graph")

	assert.Equal(t, 1, counter["GET /metrics OK"])
	assert.Equal(t, 1, counter["GET /ws I'm a teapot"])
	assert.Len(t, counter, 3)
}

func TestRouter_CORS(t *testing.T) {
	h := NewRouter(newSession(t), nil, Options{EnableCORS: true}).Setup()

	req := httptest.NewRequest(http.MethodOptions, "/api/v1/graph", nil)
	req.Header.Set("Origin", "http://localhost:5173")
	req.Header.Set("Access-Control-Request-Method", http.MethodGet)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	assert.Equal(t, "http://localhost:5173", rec.Header().Get("Access-Control-Allow-Origin"))
}
