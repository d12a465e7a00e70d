package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for the lending core.
type Metrics struct {
	// --- Valuation ---
	ValuationRequests    *prometheus.CounterVec
	Degradations         *prometheus.CounterVec
	PriceUpdatesAccepted *prometheus.CounterVec
	PriceUpdatesRejected *prometheus.CounterVec

	// --- Risk ---
	RiskAssessments    *prometheus.CounterVec
	HealthFactorCached prometheus.Gauge

	// --- Ledger ---
	LedgerMutations *prometheus.CounterVec
	LedgerRejects   *prometheus.CounterVec

	// --- Liquidation ---
	LiquidationsExecuted  *prometheus.CounterVec
	LiquidationsRejected  *prometheus.CounterVec
	LiquidationBonus      *prometheus.CounterVec
	BatchEntriesProcessed *prometheus.CounterVec
	ReentrancyRejections  prometheus.Counter
	BestEffortFailures    *prometheus.CounterVec
	LiquidationDuration   prometheus.Histogram

	// --- Position cache ---
	CachePushes       *prometheus.CounterVec
	CacheStaleRejects prometheus.Counter
	CacheUnderflows   prometheus.Counter

	// --- Projection ---
	ProjectionUpdates *prometheus.CounterVec
	ProjectionErrors  prometheus.Counter
	ProjectionDrops   prometheus.Counter
	ProjectionLastVer prometheus.Gauge

	// --- Ingestion & publishing ---
	RequestsIngested   *prometheus.CounterVec
	RequestsDuplicated prometheus.Counter
	EventsPublished    *prometheus.CounterVec
	PublishDrops       prometheus.Counter

	// --- Query API ---
	QueryRequests *prometheus.CounterVec
	QueryDuration *prometheus.HistogramVec
}

// NewMetrics creates and registers all Prometheus metrics.
func NewMetrics() *Metrics {
	latencyBuckets := []float64{
		0.00001, 0.00005, 0.0001, 0.00025, 0.0005,
		0.001, 0.0025, 0.005, 0.01, 0.025, 0.05,
	}

	return &Metrics{
		// Valuation
		ValuationRequests: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "lend_valuation_requests_total",
			Help: "Valuation reads served, by asset and result (fresh/fallback/error)",
		}, []string{"asset", "result"}),

		Degradations: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "lend_price_degradations_total",
			Help: "Graceful degradations recorded",
		}, []string{"asset", "reason"}),

		PriceUpdatesAccepted: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "lend_price_updates_accepted_total",
			Help: "Candidate prices admitted",
		}, []string{"asset"}),

		PriceUpdatesRejected: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "lend_price_updates_rejected_total",
			Help: "Candidate prices rejected (ceiling, deviation, peg, decimals)",
		}, []string{"asset", "reason"}),

		// Risk
		RiskAssessments: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "lend_risk_assessments_total",
			Help: "Risk assessments computed, by level",
		}, []string{"level"}),

		HealthFactorCached: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "lend_health_factor_cache_entries",
			Help: "Entries currently held in the health-factor cache",
		}),

		// Ledger
		LedgerMutations: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "lend_ledger_mutations_total",
			Help: "Accepted ledger mutations",
		}, []string{"op"}),

		LedgerRejects: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "lend_ledger_rejects_total",
			Help: "Rejected ledger mutations",
		}, []string{"op", "reason"}),

		// Liquidation
		LiquidationsExecuted: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "lend_liquidations_executed_total",
			Help: "Liquidations fully committed",
		}, []string{"collateral_asset", "debt_asset"}),

		LiquidationsRejected: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "lend_liquidations_rejected_total",
			Help: "Liquidations rejected before commit",
		}, []string{"reason"}),

		LiquidationBonus: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "lend_liquidation_bonus_total",
			Help: "Cumulative liquidation bonus paid",
		}, []string{"debt_asset"}),

		BatchEntriesProcessed: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "lend_batch_entries_total",
			Help: "Batch liquidation entries, by outcome",
		}, []string{"outcome"}),

		ReentrancyRejections: promauto.NewCounter(prometheus.CounterOpts{
			Name: "lend_reentrancy_rejections_total",
			Help: "Nested liquidation entries rejected by the guard",
		}),

		BestEffortFailures: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "lend_best_effort_failures_total",
			Help: "Best-effort step failures that did not abort the call",
		}, []string{"step"}),

		LiquidationDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "lend_liquidation_duration_seconds",
			Help:    "Wall time of a single liquidation call",
			Buckets: latencyBuckets,
		}),

		// Position cache
		CachePushes: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "lend_cache_pushes_total",
			Help: "Position cache pushes, by mode and result",
		}, []string{"mode", "result"}),

		CacheStaleRejects: promauto.NewCounter(prometheus.CounterOpts{
			Name: "lend_cache_stale_rejects_total",
			Help: "Pushes rejected as stale",
		}),

		CacheUnderflows: promauto.NewCounter(prometheus.CounterOpts{
			Name: "lend_cache_underflows_total",
			Help: "Delta pushes rejected for exceeding the cached balance",
		}),

		// Projection
		ProjectionUpdates: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "lend_projection_updates_total",
			Help: "Read-model rows written",
		}, []string{"table"}),

		ProjectionErrors: promauto.NewCounter(prometheus.CounterOpts{
			Name: "lend_projection_errors_total",
			Help: "Projection write failures",
		}),

		ProjectionDrops: promauto.NewCounter(prometheus.CounterOpts{
			Name: "lend_projection_drops_total",
			Help: "Updates dropped due to full projection channel",
		}),

		ProjectionLastVer: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "lend_projection_last_version",
			Help: "Highest position version projected",
		}),

		// Ingestion & publishing
		RequestsIngested: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "lend_requests_ingested_total",
			Help: "Liquidation requests consumed, by result",
		}, []string{"result"}),

		RequestsDuplicated: promauto.NewCounter(prometheus.CounterOpts{
			Name: "lend_requests_duplicated_total",
			Help: "Requests skipped by dedup",
		}),

		EventsPublished: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "lend_events_published_total",
			Help: "Telemetry envelopes published, by kind",
		}, []string{"kind"}),

		PublishDrops: promauto.NewCounter(prometheus.CounterOpts{
			Name: "lend_publish_drops_total",
			Help: "Envelopes dropped due to full publish channel",
		}),

		// Query API
		QueryRequests: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "lend_query_requests_total",
			Help: "Query requests",
		}, []string{"endpoint", "status"}),

		QueryDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "lend_query_duration_seconds",
			Help:    "Query latency",
			Buckets: []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5},
		}, []string{"endpoint"}),
	}
}
