package metrics

import "github.com/prometheus/client_golang/prometheus"

// Translation Prometheus metrics.
var (
	TranslationRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "lingorelay",
			Name:      "translation_requests_total",
			Help:      "Total number of translation provider calls",
		},
		[]string{"provider", "target", "status"},
	)

	TranslationRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "lingorelay",
			Name:      "translation_request_duration_seconds",
			Help:      "Translation provider call duration in seconds",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		},
		[]string{"provider", "target"},
	)

	TranslationCharactersTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "lingorelay",
			Name:      "translation_characters_total",
			Help:      "Characters billed against the metered provider quota",
		},
		[]string{"provider"},
	)

	TranslationErrorsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "lingorelay",
			Name:      "translation_errors_total",
			Help:      "Total translation provider errors",
		},
		[]string{"provider", "target", "error_type"},
	)

	QuotaCharactersRemaining = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "lingorelay",
			Name:      "quota_characters_remaining",
			Help:      "Remaining monthly character budget",
		},
		[]string{"provider"},
	)

	RelayEventsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "lingorelay",
			Name:      "relay_events_total",
			Help:      "Relay events processed by kind and outcome",
		},
		[]string{"event", "outcome"},
	)
)

var translationMetricsRegistered bool

// RegisterTranslationMetrics registers Prometheus translation metrics. Must be called once from main.
func RegisterTranslationMetrics() {
	if translationMetricsRegistered {
		return
	}
	prometheus.MustRegister(TranslationRequestsTotal)
	prometheus.MustRegister(TranslationRequestDuration)
	prometheus.MustRegister(TranslationCharactersTotal)
	prometheus.MustRegister(TranslationErrorsTotal)
	prometheus.MustRegister(QuotaCharactersRemaining)
	prometheus.MustRegister(RelayEventsTotal)
	translationMetricsRegistered = true
}
