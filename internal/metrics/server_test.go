package metrics

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"github.com/sdpower/ccmonitor-go/internal/snapshot"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRouter(t *testing.T) (*snapshot.Cell, *Collector, http.Handler) {
	t.Helper()
	reg := prometheus.NewRegistry()
	c := NewWithRegistry(reg)
	cell := snapshot.NewCell()
	r := NewRouter(ServerOptions{
		Cell:     cell,
		Gatherer: reg,
		Location: time.UTC,
		Logger:   zerolog.Nop(),
	})
	return cell, c, r
}

func get(t *testing.T, h http.Handler, path string) *http.Response {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	return rec.Result()
}

func TestHealthz(t *testing.T) {
	_, _, r := newTestRouter(t)

	resp := get(t, r, "/healthz")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestSnapshotNoContentBeforeFirstPublish(t *testing.T) {
	_, _, r := newTestRouter(t)

	resp := get(t, r, "/snapshot")
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
}

func TestSnapshotServesDocument(t *testing.T) {
	cell, _, r := newTestRouter(t)
	cell.Store(proSnapshot())

	resp := get(t, r, "/snapshot")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "application/json", resp.Header.Get("Content-Type"))

	var doc map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&doc))
	messages := doc["messages"].(map[string]any)
	assert.Equal(t, 140.0, messages["used"])
	assert.Equal(t, 56.0, messages["percent"])
	reset := doc["reset"].(map[string]any)
	assert.Equal(t, "2026-01-10T17:00:00+00:00", reset["timestamp"])
	assert.Equal(t, "2026-01-10T14:00:00.000000+00:00", doc["lastUpdate"])
}

func TestMetricsEndpoint(t *testing.T) {
	_, c, r := newTestRouter(t)
	require.NoError(t, c.Consume(proSnapshot()))

	resp := get(t, r, "/metrics")
	require.Equal(t, http.StatusOK, resp.StatusCode)

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	text := string(body)
	assert.True(t, strings.Contains(text, `ccmonitor_usage_used{metric="messages",plan="pro"} 140`), text)
	assert.Contains(t, text, "ccmonitor_burn_rate_tokens_per_minute 161.27")
}
