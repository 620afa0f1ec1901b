package metrics

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/anstrom/portsniffer/internal/scanning"
)

var _ scanning.MetricsRecorder = (*PrometheusMetrics)(nil)

func TestPrometheusMetrics_InitializationAndUpdate(t *testing.T) {
	pm := NewPrometheusMetrics()
	require.NotNil(t, pm)
	require.NotNil(t, pm.GetRegistry())

	assert.True(t, pm.GetLastUpdate().IsZero())
	pm.UpdateSystemMetrics()
	assert.False(t, pm.GetLastUpdate().IsZero())
	assert.Greater(t, testutil.ToFloat64(pm.goroutines), 0.0)

	before := pm.GetUptime()
	time.Sleep(10 * time.Millisecond)
	assert.Greater(t, pm.GetUptime(), before)
}

func TestPrometheusMetrics_HTTPHandlerServes(t *testing.T) {
	pm := NewPrometheusMetrics()
	pm.UpdateSystemMetrics()

	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	promhttp.HandlerFor(pm.GetRegistry(), promhttp.HandlerOpts{}).ServeHTTP(rr, req)

	require.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), "portsniffer_system_uptime_seconds")
	assert.Contains(t, rr.Body.String(), "go_goroutines")
}

func TestPrometheusMetrics_ScanMetrics(t *testing.T) {
	pm := NewPrometheusMetrics()

	pm.IncrementScansTotal(scanning.StatusCompleted)
	pm.IncrementScansTotal(scanning.StatusCompleted)
	pm.IncrementScansTotal(scanning.StatusCancelled)

	assert.Equal(t, 2, testutil.CollectAndCount(pm.scansTotal))
	assert.Equal(t, 2.0, testutil.ToFloat64(pm.scansTotal.WithLabelValues("completed")))
	assert.Equal(t, 1.0, testutil.ToFloat64(pm.scansTotal.WithLabelValues("cancelled")))

	pm.RecordScanDuration(5 * time.Second)
	pm.RecordScanDuration(300 * time.Millisecond)
	assert.Equal(t, 1, testutil.CollectAndCount(pm.scanDuration))

	pm.IncrementPortsScanned("open")
	pm.IncrementPortsScanned("closed")
	pm.IncrementPortsScanned("closed")
	assert.Equal(t, 2.0, testutil.ToFloat64(pm.portsScanned.WithLabelValues("closed")))

	pm.IncrementScanErrors("INVALID_PORT_SPEC")
	assert.Equal(t, 1.0, testutil.ToFloat64(pm.scanErrors.WithLabelValues("INVALID_PORT_SPEC")))
}

func TestPrometheusMetrics_ActiveWorkers(t *testing.T) {
	pm := NewPrometheusMetrics()

	pm.AddActiveWorkers(1)
	pm.AddActiveWorkers(1)
	pm.AddActiveWorkers(1)
	assert.Equal(t, 3.0, testutil.ToFloat64(pm.activeWorkers))

	pm.AddActiveWorkers(-1)
	assert.Equal(t, 2.0, testutil.ToFloat64(pm.activeWorkers))
}

func TestPrometheusMetrics_LookupMetrics(t *testing.T) {
	pm := NewPrometheusMetrics()

	pm.RecordLookup("system", 2*time.Millisecond, true)
	pm.RecordLookup("dns", 10*time.Millisecond, false)

	assert.Equal(t, 1.0, testutil.ToFloat64(pm.lookupsTotal.WithLabelValues("system", "success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(pm.lookupsTotal.WithLabelValues("dns", "error")))
	assert.Equal(t, 2, testutil.CollectAndCount(pm.lookupDuration))
}

func TestPrometheusMetrics_ExpositionFormat(t *testing.T) {
	pm := NewPrometheusMetrics()
	pm.IncrementScansTotal("completed")

	expected := `
# HELP portsniffer_scan_total Total number of scans by final status
# TYPE portsniffer_scan_total counter
portsniffer_scan_total{status="completed"} 1
`
	require.NoError(t, testutil.CollectAndCompare(pm.scansTotal, strings.NewReader(expected)))
}

func TestPrometheusMetrics_StartPeriodicUpdates(t *testing.T) {
	pm := NewPrometheusMetrics()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		pm.StartPeriodicUpdates(ctx, 10*time.Millisecond)
		close(done)
	}()

	require.Eventually(t, func() bool {
		return !pm.GetLastUpdate().IsZero()
	}, time.Second, 5*time.Millisecond)

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("periodic updates did not stop")
	}
}
