package metrics

import (
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
)

// PoolStatter exposes connection pool statistics
type PoolStatter interface {
	Stats() *pgxpool.Stat
}

var (
	poolAcquiredDesc = prometheus.NewDesc("metering_db_pool_acquired_conns",
		"Connections currently checked out of the pool", nil, nil)
	poolIdleDesc = prometheus.NewDesc("metering_db_pool_idle_conns",
		"Idle connections in the pool", nil, nil)
	poolTotalDesc = prometheus.NewDesc("metering_db_pool_total_conns",
		"Total connections in the pool", nil, nil)
	poolMaxDesc = prometheus.NewDesc("metering_db_pool_max_conns",
		"Configured maximum pool size", nil, nil)
	poolEmptyAcquireDesc = prometheus.NewDesc("metering_db_pool_empty_acquire_total",
		"Acquires that waited because the pool was empty", nil, nil)
)

// PoolCollector reads pool statistics at scrape time
type PoolCollector struct {
	pool PoolStatter
}

// NewPoolCollector creates a collector over pool. The caller registers it.
func NewPoolCollector(pool PoolStatter) *PoolCollector {
	return &PoolCollector{pool: pool}
}

// Describe implements prometheus.Collector
func (c *PoolCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- poolAcquiredDesc
	ch <- poolIdleDesc
	ch <- poolTotalDesc
	ch <- poolMaxDesc
	ch <- poolEmptyAcquireDesc
}

// Collect implements prometheus.Collector
func (c *PoolCollector) Collect(ch chan<- prometheus.Metric) {
	stat := c.pool.Stats()
	ch <- prometheus.MustNewConstMetric(poolAcquiredDesc, prometheus.GaugeValue, float64(stat.AcquiredConns()))
	ch <- prometheus.MustNewConstMetric(poolIdleDesc, prometheus.GaugeValue, float64(stat.IdleConns()))
	ch <- prometheus.MustNewConstMetric(poolTotalDesc, prometheus.GaugeValue, float64(stat.TotalConns()))
	ch <- prometheus.MustNewConstMetric(poolMaxDesc, prometheus.GaugeValue, float64(stat.MaxConns()))
	ch <- prometheus.MustNewConstMetric(poolEmptyAcquireDesc, prometheus.CounterValue, float64(stat.EmptyAcquireCount()))
}
