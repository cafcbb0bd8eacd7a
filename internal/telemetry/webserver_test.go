package telemetry

import (
	"encoding/json"
	"errors"
	"io"
	"math/rand"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rjboer/GoSonar/internal/logging"
	"github.com/rjboer/GoSonar/internal/sim"
)

type fakeCommander struct {
	mu   sync.Mutex
	cmds []sim.Command
	err  error
}

func (f *fakeCommander) Submit(cmd sim.Command) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.cmds = append(f.cmds, cmd)
	return nil
}

func (f *fakeCommander) received() []sim.Command {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]sim.Command(nil), f.cmds...)
}

type testServer struct {
	*httptest.Server
	hub      *Hub
	commands *fakeCommander
	metrics  *Metrics
	sim      *sim.Simulation
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	logger := logging.New(logging.Error, logging.Text, io.Discard)
	hub, err := NewHub(Config{}, logger)
	require.NoError(t, err)

	reg := prometheus.NewRegistry()
	metrics := NewMetrics(reg)
	hub.SetMetrics(metrics)

	s, err := sim.New(sim.DefaultScenario(), rand.New(rand.NewSource(1)), logger)
	require.NoError(t, err)

	cmds := &fakeCommander{}
	ws := NewWebServer(ServerOptions{Addr: "127.0.0.1:0", Gatherer: reg}, hub, cmds, logger)
	srv := httptest.NewServer(ws.Handler())
	t.Cleanup(srv.Close)
	return &testServer{Server: srv, hub: hub, commands: cmds, metrics: metrics, sim: s}
}

// publish advances the simulation by n ticks, reporting each snapshot.
func (ts *testServer) publish(n int) {
	for i := 0; i < n; i++ {
		ts.sim.Tick(0.5)
		ts.hub.ReportSnapshot(ts.sim.Snapshot())
	}
}

func (ts *testServer) post(t *testing.T, path, body string) *http.Response {
	t.Helper()
	resp, err := http.Post(ts.URL+path, "application/json", strings.NewReader(body))
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func (ts *testServer) get(t *testing.T, path string) *http.Response {
	t.Helper()
	resp, err := http.Get(ts.URL + path)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func decodeBody[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	var v T
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&v))
	return v
}

func TestSnapshotUnavailableBeforeFirstTick(t *testing.T) {
	ts := newTestServer(t)
	resp := ts.get(t, "/api/snapshot")
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
	body := decodeBody[map[string]string](t, resp)
	assert.Equal(t, "Service Unavailable", body["error"])

	ts.publish(1)
	resp = ts.get(t, "/api/snapshot")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	snap := decodeBody[sim.Snapshot](t, resp)
	assert.Len(t, snap.Targets, 2)
	assert.Equal(t, int64(500), snap.ElapsedMs)
}

func TestTargetEndpoints(t *testing.T) {
	ts := newTestServer(t)
	ts.publish(1)

	resp := ts.get(t, "/api/targets")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	targets := decodeBody[[]sim.Target](t, resp)
	assert.Len(t, targets, 2)

	resp = ts.get(t, "/api/targets/target-1")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	target := decodeBody[sim.Target](t, resp)
	assert.Equal(t, "target-1", target.ID)

	assert.Equal(t, http.StatusNotFound, ts.get(t, "/api/targets/ghost").StatusCode)
}

func TestBearingEndpoints(t *testing.T) {
	ts := newTestServer(t)
	ts.sim.AppendBearing("target-1", sim.BearingReading{TimestampMs: 0, Bearing: 90, Confidence: 0.3})
	ts.publish(6)

	resp := ts.get(t, "/api/bearings?bucket=1s")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	body := decodeBody[struct {
		BucketMs int64               `json:"bucketMs"`
		Buckets  []sim.BearingBucket `json:"buckets"`
	}](t, resp)
	assert.Equal(t, int64(1000), body.BucketMs)
	assert.NotEmpty(t, body.Buckets)

	assert.Equal(t, http.StatusBadRequest, ts.get(t, "/api/bearings?bucket=soon").StatusCode)

	resp = ts.get(t, "/api/bearings/target-1")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	readings := decodeBody[[]sim.BearingReading](t, resp)
	assert.NotEmpty(t, readings)

	assert.Equal(t, http.StatusNotFound, ts.get(t, "/api/bearings/ghost").StatusCode)
}

func TestCommandEndpointsQueueCommands(t *testing.T) {
	ts := newTestServer(t)

	resp := ts.post(t, "/api/targets/target-1/classify", `{"classification":"analyzing"}`)
	assert.Equal(t, http.StatusAccepted, resp.StatusCode)
	resp = ts.post(t, "/api/select", `{"targetId":"target-2"}`)
	assert.Equal(t, http.StatusAccepted, resp.StatusCode)
	resp = ts.post(t, "/api/listener/rotate", `{"steps":2}`)
	assert.Equal(t, http.StatusAccepted, resp.StatusCode)
	resp = ts.post(t, "/api/commands", `{"type":"set_display","display":"demon"}`)
	assert.Equal(t, http.StatusAccepted, resp.StatusCode)

	req, err := http.NewRequest(http.MethodDelete, ts.URL+"/api/targets/target-2", nil)
	require.NoError(t, err)
	del, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	del.Body.Close()
	assert.Equal(t, http.StatusAccepted, del.StatusCode)

	got := ts.commands.received()
	require.Len(t, got, 5)
	assert.Equal(t, sim.CmdClassify, got[0].Kind)
	assert.Equal(t, "target-1", got[0].TargetID)
	assert.Equal(t, "target-2", got[1].TargetID)
	assert.Equal(t, 2, got[2].Steps)
	assert.Equal(t, sim.CmdSetDisplay, got[3].Kind)
	assert.Equal(t, sim.CmdRemoveTarget, got[4].Kind)
}

func TestAddTargetAssignsID(t *testing.T) {
	ts := newTestServer(t)
	resp := ts.post(t, "/api/targets", `{"vesselType":"SUBMARINE","position":{"x":100,"y":-120,"z":0}}`)
	require.Equal(t, http.StatusAccepted, resp.StatusCode)
	body := decodeBody[map[string]string](t, resp)
	assert.NotEmpty(t, body["targetId"])

	got := ts.commands.received()
	require.Len(t, got, 1)
	assert.Equal(t, body["targetId"], got[0].TargetID)
	assert.Equal(t, sim.VesselSubmarine, got[0].VesselType)
}

func TestInvalidCommandsRejected(t *testing.T) {
	ts := newTestServer(t)
	assert.Equal(t, http.StatusBadRequest, ts.post(t, "/api/gain", `{"value":2}`).StatusCode)
	assert.Equal(t, http.StatusBadRequest, ts.post(t, "/api/compression", `{"value":3}`).StatusCode)
	assert.Equal(t, http.StatusBadRequest, ts.post(t, "/api/targets/target-1/classify", `{"classification":"DETECTED"}`).StatusCode)
	assert.Equal(t, http.StatusBadRequest, ts.post(t, "/api/commands", `{"type":"warp"}`).StatusCode)
	assert.Equal(t, http.StatusBadRequest, ts.post(t, "/api/select", `{`).StatusCode)
	assert.Empty(t, ts.commands.received())
}

func TestQueueFailureReturnsUnavailable(t *testing.T) {
	ts := newTestServer(t)
	ts.commands.err = errors.New("command queue full")
	resp := ts.post(t, "/api/gain", `{"value":0.5}`)
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
}

func TestLofarAndDemonEndpoints(t *testing.T) {
	ts := newTestServer(t)
	ts.hub.ReportAnalysis(analysisAt(200))
	ts.hub.ReportAnalysis(analysisAt(400))

	resp := ts.get(t, "/api/lofar")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	lofar := decodeBody[struct {
		Bins        int       `json:"bins"`
		Frequencies []float64 `json:"frequencies"`
		Lines       []struct {
			TimestampMs int64     `json:"timestamp"`
			Levels      []float64 `json:"data"`
		} `json:"lines"`
	}](t, resp)
	assert.Equal(t, 256, lofar.Bins)
	require.Len(t, lofar.Frequencies, lofar.Bins)
	assert.Equal(t, 0.0, lofar.Frequencies[0])
	assert.InDelta(t, 1000.0/256, lofar.Frequencies[1], 1e-9)
	assert.InDelta(t, 255*1000.0/256, lofar.Frequencies[255], 1e-9)
	require.Len(t, lofar.Lines, 2)
	assert.Equal(t, int64(400), lofar.Lines[1].TimestampMs)

	resp = ts.get(t, "/api/demon")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	a := decodeBody[Analysis](t, resp)
	assert.Equal(t, int64(400), a.TimestampMs)
}

func TestConfigRoutes(t *testing.T) {
	ts := newTestServer(t)
	resp := ts.post(t, "/api/config", `{"bearingBucketMs":2000}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp = ts.get(t, "/api/config")
	cfg := decodeBody[Config](t, resp)
	assert.Equal(t, int64(2000), cfg.BearingBucketMs)
}

func TestHealthAndMetrics(t *testing.T) {
	ts := newTestServer(t)
	resp := ts.get(t, "/health")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	health := decodeBody[map[string]any](t, resp)
	assert.Equal(t, "ok", health["status"])
	assert.Equal(t, false, health["ready"])

	ts.metrics.ObserveCommand(sim.CmdSelect, nil)
	resp = ts.get(t, "/metrics")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(raw), `sonarsim_commands_total{result="ok",type="select"} 1`)
}

func TestCORSPreflight(t *testing.T) {
	ts := newTestServer(t)
	req, err := http.NewRequest(http.MethodOptions, ts.URL+"/api/gain", nil)
	require.NoError(t, err)
	req.Header.Set("Origin", "http://console.local")
	req.Header.Set("Access-Control-Request-Method", "POST")
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, "*", resp.Header.Get("Access-Control-Allow-Origin"))
}

func TestWebSocketStreamsAndAcceptsCommands(t *testing.T) {
	ts := newTestServer(t)
	ts.publish(1)

	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))

	var ev Event
	require.NoError(t, conn.ReadJSON(&ev))
	assert.Equal(t, EventSnapshot, ev.Type)
	require.NotNil(t, ev.Snapshot)

	assert.Eventually(t, func() bool {
		return testutil.ToFloat64(ts.metrics.Subscribers) == 1
	}, time.Second, 10*time.Millisecond)

	require.NoError(t, conn.WriteJSON(sim.Command{Kind: sim.CmdSetGain, Value: 4}))
	require.NoError(t, conn.ReadJSON(&ev))
	assert.Equal(t, EventError, ev.Type)
	assert.Contains(t, ev.Message, "gain")

	require.NoError(t, conn.WriteJSON(sim.Command{Kind: sim.CmdSelect, TargetID: "target-1"}))
	assert.Eventually(t, func() bool {
		return len(ts.commands.received()) == 1
	}, time.Second, 10*time.Millisecond)

	ts.hub.ReportAnalysis(analysisAt(600))
	require.NoError(t, conn.ReadJSON(&ev))
	assert.Equal(t, EventAnalysis, ev.Type)

	conn.Close()
	assert.Eventually(t, func() bool {
		return testutil.ToFloat64(ts.metrics.Subscribers) == 0
	}, time.Second, 10*time.Millisecond)
}

func TestParseBucket(t *testing.T) {
	cases := map[string]int64{"5s": 5000, "250ms": 250, "1500": 1500}
	for in, want := range cases {
		got, err := parseBucket(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}
	for _, in := range []string{"", "-1", "0s", "abc"} {
		_, err := parseBucket(in)
		assert.Error(t, err, in)
	}
}

