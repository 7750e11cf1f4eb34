package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for StakeVault.
type Metrics struct {
	// --- Operation processing ---
	OpsApplied  *prometheus.CounterVec
	OpsRejected *prometheus.CounterVec
	OpDuration  *prometheus.HistogramVec

	// --- Event log ---
	EventsRecorded *prometheus.CounterVec
	EventsDropped  *prometheus.CounterVec
	EventSequence  prometheus.Gauge

	// --- Vault ---
	VaultShares     prometheus.Gauge
	VaultUnderlying prometheus.Gauge
	VaultPulls      prometheus.Counter
	VaultPullErrors prometheus.Counter

	// --- Rewards ---
	RewardsIssuedTotal prometheus.Counter
	RewardsPoolBalance prometheus.Gauge

	// --- Access keys ---
	KeysLive          prometheus.Gauge
	KeysMinted        prometheus.Counter
	KeysBurned        prometheus.Counter
	KeysLiquidated    prometheus.Counter
	SweepAmountTotal  prometheus.Counter
	FeeRatePerSecond  prometheus.Gauge

	// --- Channel & backpressure ---
	ChannelSize        *prometheus.GaugeVec
	ChannelCapacity    *prometheus.GaugeVec
	ChannelUtilization *prometheus.GaugeVec

	// --- Persistence ---
	PersistEventsWritten prometheus.Counter
	PersistBatchSize     prometheus.Histogram
	PersistBatchDur      prometheus.Histogram
	PersistErrors        *prometheus.CounterVec
	PersistRetry         prometheus.Counter
	PersistLastSequence  prometheus.Gauge

	// --- Query API ---
	QueryRequests *prometheus.CounterVec
	QueryDuration *prometheus.HistogramVec
}

// NewMetrics creates and registers all Prometheus metrics.
func NewMetrics() *Metrics {
	latencyBuckets := []float64{
		0.000001, 0.000005, 0.00001, 0.000025, 0.00005,
		0.0001, 0.00025, 0.0005, 0.001, 0.002, 0.005, 0.01,
	}

	return &Metrics{
		OpsApplied: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "sv_ops_applied_total",
			Help: "Operations successfully applied",
		}, []string{"op_type"}),

		OpsRejected: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "sv_ops_rejected_total",
			Help: "Operations rejected (validation, auth, balance)",
		}, []string{"op_type", "reason"}),

		OpDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "sv_op_apply_duration_seconds",
			Help:    "Time to apply a single operation",
			Buckets: latencyBuckets,
		}, []string{"op_type"}),

		EventsRecorded: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "sv_events_recorded_total",
			Help: "Events recorded to the log",
		}, []string{"event_type"}),

		EventsDropped: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "sv_events_dropped_total",
			Help: "Events dropped due to full publish channel",
		}, []string{"event_type"}),

		EventSequence: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "sv_event_sequence",
			Help: "Last assigned event sequence number",
		}),

		VaultShares: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "sv_vault_total_shares",
			Help: "Total shares outstanding",
		}),

		VaultUnderlying: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "sv_vault_underlying_balance",
			Help: "Asset units held by the vault account",
		}),

		VaultPulls: promauto.NewCounter(prometheus.CounterOpts{
			Name: "sv_vault_rewards_pulls_total",
			Help: "Reward pulls triggered by vault entry/exit",
		}),

		VaultPullErrors: promauto.NewCounter(prometheus.CounterOpts{
			Name: "sv_vault_rewards_pull_errors_total",
			Help: "Reward pulls that failed (swallowed)",
		}),

		RewardsIssuedTotal: promauto.NewCounter(prometheus.CounterOpts{
			Name: "sv_rewards_issued_total",
			Help: "Asset units released by the emission scheduler",
		}),

		RewardsPoolBalance: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "sv_rewards_pool_balance",
			Help: "Asset units remaining in the rewards pool",
		}),

		KeysLive: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "sv_keys_live",
			Help: "Live access keys (minted minus burned minus liquidated)",
		}),

		KeysMinted: promauto.NewCounter(prometheus.CounterOpts{
			Name: "sv_keys_minted_total",
			Help: "Access keys minted",
		}),

		KeysBurned: promauto.NewCounter(prometheus.CounterOpts{
			Name: "sv_keys_burned_total",
			Help: "Access keys burned by their owners",
		}),

		KeysLiquidated: promauto.NewCounter(prometheus.CounterOpts{
			Name: "sv_keys_liquidated_total",
			Help: "Access keys liquidated",
		}),

		SweepAmountTotal: promauto.NewCounter(prometheus.CounterOpts{
			Name: "sv_sweep_amount_total",
			Help: "Asset units distributed by sweeps",
		}),

		FeeRatePerSecond: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "sv_fee_rate_per_second",
			Help: "Current global fee rate",
		}),

		ChannelSize: promauto.NewGaugeVec(prometheus.GaugeOpts{
			Name: "sv_channel_size",
			Help: "Current items in channel",
		}, []string{"name"}),

		ChannelCapacity: promauto.NewGaugeVec(prometheus.GaugeOpts{
			Name: "sv_channel_capacity",
			Help: "Channel capacity (constant)",
		}, []string{"name"}),

		ChannelUtilization: promauto.NewGaugeVec(prometheus.GaugeOpts{
			Name: "sv_channel_utilization",
			Help: "Channel size / capacity (0.0-1.0)",
		}, []string{"name"}),

		PersistEventsWritten: promauto.NewCounter(prometheus.CounterOpts{
			Name: "sv_persist_events_written_total",
			Help: "Events written to Postgres",
		}),

		PersistBatchSize: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "sv_persist_batch_size",
			Help:    "Events per batch",
			Buckets: []float64{1, 5, 10, 25, 50, 100, 250, 500},
		}),

		PersistBatchDur: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "sv_persist_batch_duration_seconds",
			Help:    "Postgres batch write duration",
			Buckets: []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25},
		}),

		PersistErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "sv_persist_errors_total",
			Help: "Persistence errors",
		}, []string{"error_type"}),

		PersistRetry: promauto.NewCounter(prometheus.CounterOpts{
			Name: "sv_persist_retry_total",
			Help: "Persistence retries",
		}),

		PersistLastSequence: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "sv_persist_last_sequence",
			Help: "Last persisted event sequence",
		}),

		QueryRequests: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "sv_query_requests_total",
			Help: "Query requests",
		}, []string{"endpoint", "status"}),

		QueryDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "sv_query_duration_seconds",
			Help:    "Query latency",
			Buckets: []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5},
		}, []string{"endpoint"}),
	}
}

// SetChannelMetrics updates channel utilization metrics.
func (m *Metrics) SetChannelMetrics(name string, size, capacity int) {
	m.ChannelSize.WithLabelValues(name).Set(float64(size))
	m.ChannelCapacity.WithLabelValues(name).Set(float64(capacity))
	if capacity > 0 {
		m.ChannelUtilization.WithLabelValues(name).Set(float64(size) / float64(capacity))
	}
}
