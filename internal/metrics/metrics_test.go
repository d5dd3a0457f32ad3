package metrics

import (
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNilMetricsRecordsNothing(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.RecordOp("widget", "create", "ok")
		m.IndexEdges("contains", 1, 1)
		m.OneSidedPair("observation")
		m.RemoteCall("observation", "ok", 0.1)
	})
}

func TestCounters(t *testing.T) {
	m := New("planning")

	m.RecordOp("widget", "create", "ok")
	m.RecordOp("widget", "create", "ok")
	m.IndexEdges("contains", 2, 0)
	m.OneSidedPair("observation")

	assert.Equal(t, 2.0, testutil.ToFloat64(m.recordOps.WithLabelValues("widget", "create", "ok")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.indexEdges.WithLabelValues("contains", "added")))
	assert.Equal(t, 0.0, testutil.ToFloat64(m.indexEdges.WithLabelValues("contains", "removed")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.oneSidedPairs.WithLabelValues("observation")))
}

func TestHandlerExposesNamespace(t *testing.T) {
	m := New("planning")
	m.RemoteCall("observation", "ok", 0.01)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

	require.Equal(t, 200, rec.Code)
	body := rec.Body.String()
	assert.True(t, strings.Contains(body, `dhtrecords_rpc_calls_total{outcome="ok",partition="planning",target="observation"} 1`), body)
}
