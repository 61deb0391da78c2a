// Package observability holds the Prometheus metrics for the review pipeline.
package observability

import (
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// PipelineMetrics covers the outbox, the task consumers, NLU fallbacks and notification delivery.
// All Record* methods are safe on a nil receiver.
type PipelineMetrics struct {
	TasksProcessedTotal    *prometheus.CounterVec   // by channel, result (succeeded, failed, dead, skipped, poison)
	TaskProcessingDuration *prometheus.HistogramVec // by channel
	OutboxPublishedTotal   *prometheus.CounterVec   // by channel, result (sent, failed, dead)
	NLUFallbacksTotal      *prometheus.CounterVec   // by operation
	NotificationsTotal     *prometheus.CounterVec   // by channel (email, sms), result
	ReviewsSubmittedTotal  *prometheus.CounterVec   // by result (accepted, cooldown, invalid)
	RewardsIssuedTotal     prometheus.Counter

	registry *prometheus.Registry
}

func NewPipelineMetrics(registry *prometheus.Registry) (*PipelineMetrics, error) {
	m := &PipelineMetrics{registry: registry}
	m.initMetrics()
	if err := registry.Register(m); err != nil {
		return nil, fmt.Errorf("failed to register pipeline metrics: %w", err)
	}
	return m, nil
}

func (m *PipelineMetrics) initMetrics() {
	m.TasksProcessedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "feedback_tasks_processed_total",
			Help: "Total number of pipeline task deliveries handled by channel and result",
		},
		[]string{"channel", "result"},
	)
	m.TaskProcessingDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "feedback_task_processing_duration_seconds",
			Help:    "Time spent handling one pipeline task by channel",
			Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1.0, 2.0, 5.0, 10.0, 30.0},
		},
		[]string{"channel"},
	)
	m.OutboxPublishedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "feedback_outbox_publish_total",
			Help: "Outbox publish attempts by channel and result",
		},
		[]string{"channel", "result"},
	)
	m.NLUFallbacksTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "feedback_nlu_fallbacks_total",
			Help: "NLU operations answered by the local analyzer after the remote one failed",
		},
		[]string{"operation"},
	)
	m.NotificationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "feedback_notifications_total",
			Help: "Alert notification deliveries by channel and result",
		},
		[]string{"channel", "result"},
	)
	m.ReviewsSubmittedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "feedback_reviews_submitted_total",
			Help: "Review submissions by result",
		},
		[]string{"result"},
	)
	m.RewardsIssuedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "feedback_rewards_issued_total",
			Help: "Reward claims issued",
		},
	)
}

func (m *PipelineMetrics) Describe(ch chan<- *prometheus.Desc) {
	m.TasksProcessedTotal.Describe(ch)
	m.TaskProcessingDuration.Describe(ch)
	m.OutboxPublishedTotal.Describe(ch)
	m.NLUFallbacksTotal.Describe(ch)
	m.NotificationsTotal.Describe(ch)
	m.ReviewsSubmittedTotal.Describe(ch)
	m.RewardsIssuedTotal.Describe(ch)
}

func (m *PipelineMetrics) Collect(ch chan<- prometheus.Metric) {
	m.TasksProcessedTotal.Collect(ch)
	m.TaskProcessingDuration.Collect(ch)
	m.OutboxPublishedTotal.Collect(ch)
	m.NLUFallbacksTotal.Collect(ch)
	m.NotificationsTotal.Collect(ch)
	m.ReviewsSubmittedTotal.Collect(ch)
	m.RewardsIssuedTotal.Collect(ch)
}

func (m *PipelineMetrics) RecordTask(channel, result string, duration time.Duration) {
	if m == nil {
		return
	}
	m.TasksProcessedTotal.WithLabelValues(channel, result).Inc()
	m.TaskProcessingDuration.WithLabelValues(channel).Observe(duration.Seconds())
}

func (m *PipelineMetrics) RecordPublish(channel, result string) {
	if m == nil {
		return
	}
	m.OutboxPublishedTotal.WithLabelValues(channel, result).Inc()
}

func (m *PipelineMetrics) RecordFallback(operation string) {
	if m == nil {
		return
	}
	m.NLUFallbacksTotal.WithLabelValues(operation).Inc()
}

func (m *PipelineMetrics) RecordNotification(channel, result string) {
	if m == nil {
		return
	}
	m.NotificationsTotal.WithLabelValues(channel, result).Inc()
}

func (m *PipelineMetrics) RecordSubmission(result string) {
	if m == nil {
		return
	}
	m.ReviewsSubmittedTotal.WithLabelValues(result).Inc()
}

func (m *PipelineMetrics) RecordReward() {
	if m == nil {
		return
	}
	m.RewardsIssuedTotal.Inc()
}

var (
	defaultRegistry *prometheus.Registry
	defaultMetrics  *PipelineMetrics
	defaultOnce     sync.Once
)

// Default returns the process-wide metrics, registered on their own registry
// together with the Go and process collectors.
func Default() *PipelineMetrics {
	defaultOnce.Do(func() {
		defaultRegistry = prometheus.NewRegistry()
		defaultRegistry.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
		m, err := NewPipelineMetrics(defaultRegistry)
		if err != nil {
			panic(err)
		}
		defaultMetrics = m
	})
	return defaultMetrics
}

// Handler serves the default registry.
func Handler() http.Handler {
	Default()
	return promhttp.HandlerFor(defaultRegistry, promhttp.HandlerOpts{})
}
