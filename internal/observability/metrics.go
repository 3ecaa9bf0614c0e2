package observability

import (
	"net/http"
	"sync"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	registerOnce sync.Once

	framesSent = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "stompclient",
			Subsystem: "frames",
			Name:      "sent_total",
			Help:      "Frames written to the transport.",
		},
		[]string{"kind"},
	)
	framesReceived = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "stompclient",
			Subsystem: "frames",
			Name:      "received_total",
			Help:      "Frames decoded by the inbound dispatcher.",
		},
		[]string{"kind"},
	)
	receiptsOutstanding = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "stompclient",
			Subsystem: "receipts",
			Name:      "outstanding",
			Help:      "Requests awaiting a receipt.",
		},
	)
	receiptsUnmatched = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "stompclient",
			Subsystem: "receipts",
			Name:      "unmatched_total",
			Help:      "Receipts discarded because no request was waiting.",
		},
	)
	eventsStored = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "stompclient",
			Subsystem: "events",
			Name:      "stored_total",
			Help:      "Events appended to the local event store.",
		},
		[]string{"source"},
	)
	stateTransitions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "stompclient",
			Subsystem: "session",
			Name:      "transitions_total",
			Help:      "Session state transitions by target state.",
		},
		[]string{"state"},
	)
	transportFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "stompclient",
			Subsystem: "transport",
			Name:      "failures_total",
			Help:      "Transport failures by reason.",
		},
		[]string{"reason"},
	)
)

const (
	SourceLocal  = "local"
	SourceRemote = "remote"
)

func RegisterMetrics() {
	registerOnce.Do(func() {
		prometheus.MustRegister(
			framesSent,
			framesReceived,
			receiptsOutstanding,
			receiptsUnmatched,
			eventsStored,
			stateTransitions,
			transportFailures,
		)
	})
}

func RecordFrameSent(kind string) {
	RegisterMetrics()
	framesSent.WithLabelValues(kind).Inc()
}

func RecordFrameReceived(kind string) {
	RegisterMetrics()
	framesReceived.WithLabelValues(kind).Inc()
}

func SetReceiptsOutstanding(n int) {
	RegisterMetrics()
	receiptsOutstanding.Set(float64(n))
}

func RecordReceiptUnmatched() {
	RegisterMetrics()
	receiptsUnmatched.Inc()
}

func RecordEventStored(source string) {
	RegisterMetrics()
	eventsStored.WithLabelValues(source).Inc()
}

func RecordStateTransition(state string) {
	RegisterMetrics()
	stateTransitions.WithLabelValues(state).Inc()
}

func RecordTransportFailure(reason string) {
	RegisterMetrics()
	transportFailures.WithLabelValues(reason).Inc()
}

// Handler serves the default registry at /metrics.
func Handler() http.Handler {
	RegisterMetrics()
	r := chi.NewRouter()
	r.Get("/metrics", promhttp.Handler().ServeHTTP)
	return r
}
