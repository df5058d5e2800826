package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	LookupsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ratewatch_lookups_total",
			Help: "Total number of price lookups per provider",
		},
		[]string{"provider"},
	)

	LookupErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ratewatch_lookup_errors_total",
			Help: "Total number of failed price lookups per provider and error kind",
		},
		[]string{"provider", "kind"},
	)

	LookupDurationSeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "ratewatch_lookup_duration_seconds",
			Help:    "Price lookup duration in seconds per provider",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"provider"},
	)

	ScanSessionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ratewatch_scan_sessions_total",
			Help: "Total number of scan sessions by type and terminal status",
		},
		[]string{"type", "status"},
	)

	ScanDurationSeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "ratewatch_scan_duration_seconds",
			Help:    "Scan session duration in seconds by type",
			Buckets: []float64{1, 5, 10, 30, 60, 120, 300},
		},
		[]string{"type"},
	)

	KeyPoolActiveKeys = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "ratewatch_keypool_active_keys",
			Help: "Number of non-exhausted credentials per provider pool",
		},
		[]string{"provider"},
	)

	KeyPoolExhaustedKeys = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "ratewatch_keypool_exhausted_keys",
			Help: "Number of exhausted credentials per provider pool",
		},
		[]string{"provider"},
	)

	KeyPoolUsageTotal = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "ratewatch_keypool_usage_total",
			Help: "Summed monthly usage across a provider pool",
		},
		[]string{"provider"},
	)

	KeyRotationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ratewatch_key_rotations_total",
			Help: "Total credential rotations per provider pool",
		},
		[]string{"provider"},
	)
)

// UpdateKeyPoolMetrics refreshes the pool gauges for one provider.
func UpdateKeyPoolMetrics(provider string, active, exhausted, usage int) {
	KeyPoolActiveKeys.WithLabelValues(provider).Set(float64(active))
	KeyPoolExhaustedKeys.WithLabelValues(provider).Set(float64(exhausted))
	KeyPoolUsageTotal.WithLabelValues(provider).Set(float64(usage))
}

var (
	ScheduledJobLastRun = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "ratewatch_job_last_run_timestamp",
			Help: "Unix timestamp of the last completed run for a job",
		},
		[]string{"job"},
	)

	ScheduledJobLastDurationSeconds = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "ratewatch_job_last_duration_seconds",
			Help: "Duration of the last completed run for a job",
		},
		[]string{"job"},
	)

	ScheduledJobFailuresTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ratewatch_job_failures_total",
			Help: "Total number of failed executions per job",
		},
		[]string{"job"},
	)
)

func UpdateJobMetrics(job string, startedAt time.Time, err error) {
	dur := time.Since(startedAt).Seconds()
	ScheduledJobLastDurationSeconds.WithLabelValues(job).Set(dur)
	ScheduledJobLastRun.WithLabelValues(job).Set(float64(time.Now().Unix()))
	if err != nil {
		ScheduledJobFailuresTotal.WithLabelValues(job).Inc()
	}
}

var (
	DBPoolTotalConns = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "ratewatch_db_pool_total_conns",
			Help: "Total number of connections in the DB pool per driver",
		},
		[]string{"driver"},
	)

	DBPoolIdleConns = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "ratewatch_db_pool_idle_conns",
			Help: "Idle connections in the DB pool per driver",
		},
		[]string{"driver"},
	)

	DBPoolAcquiredConns = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "ratewatch_db_pool_acquired_conns",
			Help: "Currently acquired (in-use) connections per driver",
		},
		[]string{"driver"},
	)
)

func UpdateDBPoolMetrics(driver string, total, idle, acquired float64) {
	DBPoolTotalConns.WithLabelValues(driver).Set(total)
	DBPoolIdleConns.WithLabelValues(driver).Set(idle)
	DBPoolAcquiredConns.WithLabelValues(driver).Set(acquired)
}
