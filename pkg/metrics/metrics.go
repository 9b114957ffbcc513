package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Collector struct {
	RequestsTotal   *prometheus.CounterVec
	RequestDuration *prometheus.HistogramVec
	InFlightGauge   prometheus.Gauge

	AppointmentsTotal       *prometheus.CounterVec
	SymptomSubmissions      prometheus.Counter
	AnalysesTotal           *prometheus.CounterVec
	ConversationTurns       *prometheus.CounterVec
	TriageCallDuration      prometheus.Histogram
	TriageCallFailures      prometheus.Counter
	ConversationRejected    prometheus.Counter
	PredictionWriteFailures prometheus.Counter

	AuditEntriesTotal  prometheus.Counter
	AuditBufferDropped prometheus.Counter
}

func NewCollector(serviceName string) *Collector {
	return &Collector{
		RequestsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: serviceName,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests by method, path, and status code.",
		}, []string{"method", "path", "status"}),

		RequestDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: serviceName,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request latency distribution.",
			Buckets:   []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0},
		}, []string{"method", "path", "status"}),

		InFlightGauge: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: serviceName,
			Subsystem: "http",
			Name:      "in_flight_requests",
			Help:      "Current number of in-flight HTTP requests.",
		}),

		AppointmentsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: serviceName,
			Subsystem: "intake",
			Name:      "appointments_total",
			Help:      "Appointment lifecycle events by resulting status.",
		}, []string{"status"}),

		SymptomSubmissions: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: serviceName,
			Subsystem: "intake",
			Name:      "symptom_submissions_total",
			Help:      "Total symptom record submissions (including replacements).",
		}),

		AnalysesTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: serviceName,
			Subsystem: "intake",
			Name:      "analyses_total",
			Help:      "Image analyses by outcome (ok, unsupported, service_error).",
		}, []string{"outcome"}),

		ConversationTurns: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: serviceName,
			Subsystem: "triage",
			Name:      "conversation_turns_total",
			Help:      "Persisted conversation turns by role.",
		}, []string{"role"}),

		TriageCallDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: serviceName,
			Subsystem: "triage",
			Name:      "llm_call_duration_seconds",
			Help:      "Latency of outbound language-model calls.",
			Buckets:   []float64{0.25, 0.5, 1.0, 2.5, 5.0, 10.0, 30.0, 60.0},
		}),

		TriageCallFailures: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: serviceName,
			Subsystem: "triage",
			Name:      "llm_call_failures_total",
			Help:      "Failed or timed-out language-model calls.",
		}),

		ConversationRejected: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: serviceName,
			Subsystem: "triage",
			Name:      "conversation_busy_rejections_total",
			Help:      "Messages rejected because the conversation was awaiting a reply.",
		}),

		PredictionWriteFailures: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: serviceName,
			Subsystem: "triage",
			Name:      "prediction_write_failures_total",
			Help:      "Failed best-effort writes of the running AI prediction. Alert if growing.",
		}),

		AuditEntriesTotal: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: serviceName,
			Subsystem: "audit",
			Name:      "entries_total",
			Help:      "Total audit log entries written.",
		}),

		AuditBufferDropped: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: serviceName,
			Subsystem: "audit",
			Name:      "buffer_dropped_total",
			Help:      "Audit entries dropped due to full buffer. Alert if non-zero.",
		}),
	}
}

func MetricsHandler() http.Handler {
	return promhttp.Handler()
}
