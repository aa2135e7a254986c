package metrics

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNilCollectorIsNoop(t *testing.T) {
	var c *Collector
	assert.NotPanics(t, func() {
		c.ObserveSave(OutcomeSaved, time.Second)
		c.ThumbnailFailed()
		c.CleanupDone(3, errors.New("x"))
		c.ObserveHTTP("GET", "/", 200, time.Millisecond)
	})
}

func TestCollectorCounts(t *testing.T) {
	c := NewCollector("canvas_test")
	c.ObserveSave(OutcomeSaved, 10*time.Millisecond)
	c.ObserveSave(OutcomeSkipped, 0)
	c.ObserveSave(OutcomeSkipped, 0)
	c.CleanupDone(2, nil)
	c.CleanupDone(0, errors.New("boom"))

	assert.Equal(t, 1.0, testutil.ToFloat64(c.SaveAttempts.WithLabelValues(OutcomeSaved)))
	assert.Equal(t, 2.0, testutil.ToFloat64(c.SaveAttempts.WithLabelValues(OutcomeSkipped)))
	assert.Equal(t, 2.0, testutil.ToFloat64(c.CleanupDeleted))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.CleanupFailures))
}

func TestHandlerExposesMetrics(t *testing.T) {
	c := NewCollector("canvas_test")
	c.ObserveHTTP("GET", "/api/v1/canvases", 200, time.Millisecond)

	rec := httptest.NewRecorder()
	c.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `canvas_test_http_requests_total{method="GET",route="/api/v1/canvases",status="200"} 1`)
}
