package observability

import (
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPipelineMetrics_Record(t *testing.T) {
	m, err := NewPipelineMetrics(prometheus.NewRegistry())
	require.NoError(t, err)

	m.RecordTask("enrich", "succeeded", 20*time.Millisecond)
	m.RecordTask("enrich", "succeeded", 30*time.Millisecond)
	m.RecordFallback("sentiment")

	assert.Equal(t, 2.0, testutil.ToFloat64(m.TasksProcessedTotal.WithLabelValues("enrich", "succeeded")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.NLUFallbacksTotal.WithLabelValues("sentiment")))
}

func TestPipelineMetrics_NilReceiver(t *testing.T) {
	var m *PipelineMetrics
	assert.NotPanics(t, func() {
		m.RecordTask("notify", "failed", time.Second)
		m.RecordPublish("notify", "sent")
		m.RecordFallback("spam")
		m.RecordNotification("email", "sent")
		m.RecordSubmission("accepted")
		m.RecordReward()
	})
}

func TestHandler_ExposesPipelineMetrics(t *testing.T) {
	Default().RecordPublish("summarize", "sent")

	rec := httptest.NewRecorder()
	Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	assert.Equal(t, 200, rec.Code)
	assert.True(t, strings.Contains(rec.Body.String(), "feedback_outbox_publish_total"))
}
