package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/shopspring/decimal"

	"github.com/lexflow/case-analysis/internal/core/domain"
)

type WorkerMetrics struct {
	registry *prometheus.Registry

	analyzedTotal    *prometheus.CounterVec
	analyzeDuration  *prometheus.HistogramVec
	analyzeInFlight  prometheus.Gauge
	spendTotal       *prometheus.CounterVec
	budgetRejections *prometheus.CounterVec
	stuckDocuments   prometheus.Gauge
}

func NewWorkerMetrics(service string) *WorkerMetrics {
	registry := prometheus.NewRegistry()

	analyzedTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "case_analysis",
			Subsystem: "worker",
			Name:      "documents_analyzed_total",
			Help:      "Total finished analysis runs by terminal status.",
		},
		[]string{"service", "status"},
	)
	analyzeDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "case_analysis",
			Subsystem: "worker",
			Name:      "analyze_duration_seconds",
			Help:      "Analysis run duration in seconds by terminal status.",
			Buckets:   []float64{0.5, 1, 2, 5, 10, 20, 40, 60, 120, 300},
		},
		[]string{"service", "status"},
	)
	analyzeInFlight := prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "case_analysis",
			Subsystem: "worker",
			Name:      "analyses_in_flight",
			Help:      "Number of in-flight analysis runs.",
			ConstLabels: prometheus.Labels{
				"service": service,
			},
		},
	)
	spendTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "case_analysis",
			Subsystem: "budget",
			Name:      "ai_spend_usd_total",
			Help:      "Committed model spend in USD.",
		},
		[]string{"service", "model"},
	)
	budgetRejections := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "case_analysis",
			Subsystem: "budget",
			Name:      "rejections_total",
			Help:      "Total analysis requests rejected by the daily budget ceiling.",
		},
		[]string{"service"},
	)
	stuckDocuments := prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "case_analysis",
			Subsystem: "worker",
			Name:      "stuck_processing_documents",
			Help:      "Documents sitting in processing past the watchdog cutoff.",
			ConstLabels: prometheus.Labels{
				"service": service,
			},
		},
	)

	registry.MustRegister(analyzedTotal, analyzeDuration, analyzeInFlight, spendTotal, budgetRejections, stuckDocuments)

	return &WorkerMetrics{
		registry:         registry,
		analyzedTotal:    analyzedTotal,
		analyzeDuration:  analyzeDuration,
		analyzeInFlight:  analyzeInFlight,
		spendTotal:       spendTotal,
		budgetRejections: budgetRejections,
		stuckDocuments:   stuckDocuments,
	}
}

func (m *WorkerMetrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *WorkerMetrics) StartAnalysis() {
	m.analyzeInFlight.Inc()
}

// FinishAnalysis records a run's outcome. Budget rejections count separately
// because the run never started.
func (m *WorkerMetrics) FinishAnalysis(service string, duration time.Duration, err error) {
	m.analyzeInFlight.Dec()

	status := "analysis_complete"
	switch {
	case domain.IsKind(err, domain.ErrBudgetExceeded):
		m.budgetRejections.WithLabelValues(service).Inc()
		status = "budget_rejected"
	case err != nil:
		status = string(domain.TerminalStatusForError(err))
	}

	m.analyzedTotal.WithLabelValues(service, status).Inc()
	m.analyzeDuration.WithLabelValues(service, status).Observe(duration.Seconds())
}

func (m *WorkerMetrics) RecordSpend(service, model string, amount decimal.Decimal) {
	if !amount.IsPositive() {
		return
	}
	if model == "" {
		model = "unknown"
	}
	m.spendTotal.WithLabelValues(service, model).Add(amount.InexactFloat64())
}

func (m *WorkerMetrics) SetStuckDocuments(count int) {
	m.stuckDocuments.Set(float64(count))
}
