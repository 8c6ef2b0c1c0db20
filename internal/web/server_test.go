package web

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pifan/internal/fancontrol"
)

type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

type staticFan fancontrol.Snapshot

func (f staticFan) Snapshot() fancontrol.Snapshot { return fancontrol.Snapshot(f) }

func newTestServer(t *testing.T, logs *LogBuffer, metrics http.Handler, access io.Writer) *httptest.Server {
	t.Helper()
	st := NewStatus(staticFan{Running: true, Backend: "log", Speed: 50, DutyPercent: 25, Active: true})
	st.SetStatic(map[string]any{"target": 53})
	ts := httptest.NewServer(Handler(st, logs, metrics, access))
	t.Cleanup(ts.Close)
	return ts
}

func TestAPIStatus(t *testing.T) {
	ts := newTestServer(t, nil, nil, nil)

	resp, err := http.Get(ts.URL + "/api/status")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "application/json", resp.Header.Get("Content-Type"))

	var snap StatusSnapshot
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&snap))
	assert.Equal(t, "pifan", snap.Service)
	assert.Equal(t, 50, snap.Fan.Speed)
	assert.Equal(t, float64(53), snap.Config["target"])
}

func TestAPIFan(t *testing.T) {
	ts := newTestServer(t, nil, nil, nil)

	resp, err := http.Get(ts.URL + "/api/fan")
	require.NoError(t, err)
	defer resp.Body.Close()

	var snap fancontrol.Snapshot
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&snap))
	assert.True(t, snap.Active)
	assert.Equal(t, "log", snap.Backend)
	assert.Equal(t, 25.0, snap.DutyPercent)
}

func TestAPIFan_MethodNotAllowed(t *testing.T) {
	ts := newTestServer(t, nil, nil, nil)

	resp, err := http.Post(ts.URL+"/api/fan", "application/json", strings.NewReader("{}"))
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)
}

func TestOptionalRoutesAbsent(t *testing.T) {
	ts := newTestServer(t, nil, nil, nil)
	for _, p := range []string{"/api/logs", "/metrics"} {
		resp, err := http.Get(ts.URL + p)
		require.NoError(t, err)
		resp.Body.Close()
		assert.Equal(t, http.StatusNotFound, resp.StatusCode, p)
	}
}

func TestMetricsRouteAndAccessLog(t *testing.T) {
	var access syncBuffer
	metrics := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("pifan_speed 50\n"))
	})
	ts := newTestServer(t, nil, metrics, &access)

	resp, err := http.Get(ts.URL + "/metrics")
	require.NoError(t, err)
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	assert.Equal(t, "pifan_speed 50\n", string(body))
	assert.Contains(t, access.String(), "GET /metrics")
}

func TestAPILogs(t *testing.T) {
	logs := NewLogBuffer(3)
	_, _ = logs.Write([]byte("one\ntwo\nthree\nfour\n"))
	ts := newTestServer(t, logs, nil, nil)

	resp, err := http.Get(ts.URL + "/api/logs?tail=2")
	require.NoError(t, err)
	defer resp.Body.Close()
	var lr LogsResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&lr))
	assert.Equal(t, []string{"three", "four"}, lr.Lines)
	assert.Equal(t, uint64(1), lr.Dropped)

	resp2, err := http.Get(ts.URL + "/api/logs?format=text")
	require.NoError(t, err)
	body, _ := io.ReadAll(resp2.Body)
	resp2.Body.Close()
	assert.Equal(t, "[dropped=1]\ntwo\nthree\nfour\n", string(body))

	resp3, err := http.Get(ts.URL + "/api/logs?tail=0")
	require.NoError(t, err)
	resp3.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp3.StatusCode)
}

func TestLogBuffer_HoldsPartialLine(t *testing.T) {
	b := NewLogBuffer(10)
	_, _ = b.Write([]byte("level=info msg=\"fan "))
	lines, _ := b.Snapshot(10)
	assert.Empty(t, lines)

	_, _ = b.Write([]byte("on\"\r\n\n"))
	lines, _ = b.Snapshot(10)
	assert.Equal(t, []string{`level=info msg="fan on"`}, lines)
}

func TestServer_ListenServeShutdown(t *testing.T) {
	srv, err := Listen("127.0.0.1:0", Handler(NewStatus(nil), nil, nil, nil))
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() { done <- srv.Serve() }()

	resp, err := http.Get("http://" + srv.Addr() + "/api/status")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	srv.Shutdown()
	require.NoError(t, <-done)
}
