package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetrics_Counters(t *testing.T) {
	m := New()

	m.TaskCreated("text_to_image")
	m.TaskCreated("text_to_image")
	m.TaskFinished("text_to_image", "success", 3*time.Second)
	m.TaskReaped(ReapRequeued)
	m.TaskReaped(ReapFailed)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.tasksCreated.WithLabelValues("text_to_image")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.tasksFinished.WithLabelValues("text_to_image", "success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.tasksReaped.WithLabelValues("requeued")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.tasksReaped.WithLabelValues("failed")))
}

func TestMetrics_InFlight(t *testing.T) {
	m := New()
	m.IncInFlight()
	m.IncInFlight()
	m.DecInFlight()
	assert.Equal(t, 1.0, testutil.ToFloat64(m.tasksInFlight))
}

func TestMetrics_NilIsNoop(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.TaskCreated("x")
		m.TaskFinished("x", "failed", time.Second)
		m.TaskReaped(ReapFailed)
		m.IncInFlight()
		m.DecInFlight()
	})
}

func TestMetrics_Handler(t *testing.T) {
	m := New()
	m.TaskCreated("generate_script")

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `genforge_tasks_created_total{tool_type="generate_script"} 1`)
}
