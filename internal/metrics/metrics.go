package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the Prometheus instruments for a clinscribe process.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	CapturesStarted prometheus.Counter
	CaptureDuration prometheus.Histogram
	Utterances      *prometheus.CounterVec
	ServiceCalls    *prometheus.CounterVec
	ServiceRetries  *prometheus.CounterVec
	ServiceDuration *prometheus.HistogramVec
	Verifications   *prometheus.CounterVec
	ChannelErrors   prometheus.Counter
}

// New registers all instruments on reg.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		CapturesStarted: factory.NewCounter(prometheus.CounterOpts{
			Name: "clinscribe_captures_started_total",
			Help: "Total number of voice captures started",
		}),
		CaptureDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "clinscribe_capture_duration_seconds",
			Help:    "Duration of voice captures from start to finalize",
			Buckets: prometheus.ExponentialBuckets(0.5, 2, 9),
		}),
		// Labels: mode (unilingual/bilingual), outcome (routed/empty/dropped)
		Utterances: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "clinscribe_utterances_total",
			Help: "Finalized utterances by consultation mode and outcome",
		}, []string{"mode", "outcome"}),
		ServiceCalls: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "clinscribe_service_calls_total",
			Help: "External service calls by operation and status",
		}, []string{"op", "status"}),
		ServiceRetries: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "clinscribe_service_retries_total",
			Help: "Retries scheduled after quota errors by operation",
		}, []string{"op"}),
		ServiceDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "clinscribe_service_duration_seconds",
			Help:    "External service call duration including retries",
			Buckets: prometheus.ExponentialBuckets(0.1, 2, 10),
		}, []string{"op"}),
		Verifications: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "clinscribe_prescription_verifications_total",
			Help: "Prescription audits by resulting status",
		}, []string{"status"}),
		ChannelErrors: factory.NewCounter(prometheus.CounterOpts{
			Name: "clinscribe_channel_errors_total",
			Help: "Non-fatal error events raised by transcription channels",
		}),
	}
}

func (m *Metrics) RecordCaptureStarted() {
	if m == nil {
		return
	}
	m.CapturesStarted.Inc()
}

func (m *Metrics) RecordCaptureFinished(d time.Duration) {
	if m == nil {
		return
	}
	m.CaptureDuration.Observe(d.Seconds())
}

func (m *Metrics) RecordUtterance(mode, outcome string) {
	if m == nil {
		return
	}
	m.Utterances.WithLabelValues(mode, outcome).Inc()
}

// RecordServiceCall records the final outcome of one service operation.
func (m *Metrics) RecordServiceCall(op string, err error, d time.Duration) {
	if m == nil {
		return
	}
	status := "success"
	if err != nil {
		status = "error"
	}
	m.ServiceCalls.WithLabelValues(op, status).Inc()
	m.ServiceDuration.WithLabelValues(op).Observe(d.Seconds())
}

func (m *Metrics) RecordServiceRetry(op string) {
	if m == nil {
		return
	}
	m.ServiceRetries.WithLabelValues(op).Inc()
}

func (m *Metrics) RecordVerification(status string) {
	if m == nil {
		return
	}
	m.Verifications.WithLabelValues(status).Inc()
}

func (m *Metrics) RecordChannelError() {
	if m == nil {
		return
	}
	m.ChannelErrors.Inc()
}
