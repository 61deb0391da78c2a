package notification

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/mmdatafocus/feedback_backend/observability"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type gatewayRequest struct {
	To   string
	Body string
}

func newGateway(t *testing.T) (*httptest.Server, func() []gatewayRequest) {
	var mu sync.Mutex
	var got []gatewayRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		mu.Lock()
		got = append(got, gatewayRequest{To: r.URL.Query().Get("to"), Body: string(body)})
		mu.Unlock()
		w.WriteHeader(http.StatusOK)
	}))
	t.Cleanup(srv.Close)
	return srv, func() []gatewayRequest {
		mu.Lock()
		defer mu.Unlock()
		return append([]gatewayRequest(nil), got...)
	}
}

func newTestRouter(t *testing.T) *Router {
	metrics, err := observability.NewPipelineMetrics(prometheus.NewRegistry())
	require.NoError(t, err)
	return &Router{Timeout: 2 * time.Second, Metrics: metrics}
}

func TestRouter_SendSMSThroughGateway(t *testing.T) {
	srv, requests := newGateway(t)
	r := newTestRouter(t)
	r.SMSURL = "generic://" + strings.TrimPrefix(srv.URL, "http://") + "/sms?disabletls=yes&to={to}"

	err := r.SendSMS(context.Background(), "+923001234567", "CRITICAL ALERT: Low rating (1/5) review submitted")
	require.NoError(t, err)

	got := requests()
	require.Len(t, got, 1)
	assert.Equal(t, "+923001234567", got[0].To)
	assert.Contains(t, got[0].Body, "Low rating (1/5)")
	assert.Equal(t, 1.0, testutil.ToFloat64(r.Metrics.NotificationsTotal.WithLabelValues(ChannelSMS, "sent")))
}

func TestRouter_UnconfiguredChannelIsNoop(t *testing.T) {
	r := newTestRouter(t)

	require.NoError(t, r.SendEmail(context.Background(), "manager@example.com", "subject", "body"))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.Metrics.NotificationsTotal.WithLabelValues(ChannelEmail, "skipped")))
}

func TestRouter_Errors(t *testing.T) {
	r := newTestRouter(t)
	r.EmailURL = "nosuchservice://example"

	err := r.SendEmail(context.Background(), "  ", "s", "b")
	assert.ErrorIs(t, err, ErrNoRecipient)

	err = r.SendEmail(context.Background(), "manager@example.com", "s", "b")
	require.Error(t, err)
	assert.Equal(t, 2.0, testutil.ToFloat64(r.Metrics.NotificationsTotal.WithLabelValues(ChannelEmail, "failed")))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err = r.SendEmail(ctx, "manager@example.com", "s", "b")
	assert.ErrorIs(t, err, context.Canceled)
}

func TestExpandRecipient(t *testing.T) {
	assert.Equal(t,
		"smtp://u:p@mail:587/?from=a@b.c&toaddresses=manager%40example.com",
		expandRecipient("smtp://u:p@mail:587/?from=a@b.c&toaddresses={to}", "manager@example.com"))
	assert.Equal(t, "logger://", expandRecipient("logger://", "x"))
}

func TestAlertMessage(t *testing.T) {
	m := AlertMessage{
		StationName:   "Model Town",
		Priority:      "critical",
		Reason:        "Low rating (1/5) review submitted",
		ReviewRating:  1,
		ReviewContent: "Pump was broken",
		CustomerName:  "Ali",
	}
	assert.Equal(t, "[CRITICAL] Alert: Low rating (1/5) review submitted - Model Town", m.EmailSubject())
	assert.Contains(t, m.EmailBody(), "Rating: 1/5")
	assert.Contains(t, m.EmailBody(), "Review: Pump was broken")
	assert.Equal(t, "CRITICAL ALERT: Low rating (1/5) review submitted (Model Town)", m.SMSText())

	m.Reason = strings.Repeat("x", 300)
	assert.Len(t, m.SMSText(), 160)
}
