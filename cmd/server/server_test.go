package server

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/feed-collector/pkg/config"
	"github.com/feed-collector/pkg/metrics"
	"github.com/feed-collector/pkg/scheduler"
)

type staticStatus []scheduler.Status

func (s staticStatus) Status() []scheduler.Status { return s }

func newTestServer(t *testing.T, status StatusProvider) *httptest.Server {
	reg, mf := metrics.NewRegistry(false)
	metrics.NewPipeline(mf).SkippedRun("APISnapshotCollector")

	cfg := config.NewDefaultConfig().Server
	s := NewHTTPServer(cfg, zaptest.NewLogger(t), reg, status)
	ts := httptest.NewServer(s.Handler())
	t.Cleanup(ts.Close)
	return ts
}

func get(t *testing.T, url string) (int, string) {
	t.Helper()
	resp, err := http.Get(url)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp.StatusCode, string(body)
}

func TestEndpoints(t *testing.T) {
	ts := newTestServer(t, staticStatus{{
		Collector: "APISnapshotCollector",
		Table:     "api_snapshot_collector",
		Schedule:  "daily at 02:00",
		Scheduled: true,
		NextRun:   time.Date(2024, 12, 9, 2, 0, 0, 0, time.UTC).Format(time.RFC3339),
	}})

	code, body := get(t, ts.URL+"/health")
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "OK", body)

	code, body = get(t, ts.URL+"/metrics")
	assert.Equal(t, http.StatusOK, code)
	assert.Contains(t, body, `scheduler_skipped_runs_total{collector="APISnapshotCollector"} 1`)

	code, body = get(t, ts.URL+"/collectors")
	assert.Equal(t, http.StatusOK, code)
	var list []scheduler.Status
	require.NoError(t, json.Unmarshal([]byte(body), &list))
	require.Len(t, list, 1)
	assert.Equal(t, "api_snapshot_collector", list[0].Table)
	assert.True(t, list[0].Scheduled)

	code, body = get(t, ts.URL+"/")
	assert.Equal(t, http.StatusOK, code)
	assert.Contains(t, body, "/collectors")

	code, _ = get(t, ts.URL+"/nope")
	assert.Equal(t, http.StatusNotFound, code)
}

func TestCollectorsWithoutProvider(t *testing.T) {
	ts := newTestServer(t, nil)
	code, body := get(t, ts.URL+"/collectors")
	assert.Equal(t, http.StatusOK, code)
	assert.JSONEq(t, "[]", body)
}
