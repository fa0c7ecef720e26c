package metrics

import (
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
)

// LessonStats provides the collector access to live pipeline state.
type LessonStats interface {
	StatusCounts() map[string]int
	QueuePending() int
	SSESubscriberCount() int
	SyncSessionCount() int
}

// Collector implements prometheus.Collector to read live gauges at scrape time.
type Collector struct {
	pool  *pgxpool.Pool
	stats LessonStats

	lessons         *prometheus.Desc
	queuePending    *prometheus.Desc
	sseSubscribers  *prometheus.Desc
	syncSessions    *prometheus.Desc
	dbTotalConns    *prometheus.Desc
	dbAcquiredConns *prometheus.Desc
}

// NewCollector creates a collector that reads live state at scrape time.
// pool may be nil when no archive database is configured.
func NewCollector(pool *pgxpool.Pool, stats LessonStats) *Collector {
	return &Collector{
		pool:  pool,
		stats: stats,
		lessons: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "", "lessons"),
			"Lessons held in memory by status.",
			[]string{"status"}, nil,
		),
		queuePending: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "", "lesson_queue_pending"),
			"Lessons waiting for a worker.",
			nil, nil,
		),
		sseSubscribers: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "", "sse_subscribers_active"),
			"Current number of SSE subscribers.",
			nil, nil,
		),
		syncSessions: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "", "sync_sessions_active"),
			"Open karaoke sync websockets.",
			nil, nil,
		),
		dbTotalConns: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "db_pool", "total_conns"),
			"Total database pool connections.",
			nil, nil,
		),
		dbAcquiredConns: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "db_pool", "acquired_conns"),
			"Database pool connections currently in use.",
			nil, nil,
		),
	}
}

func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.lessons
	ch <- c.queuePending
	ch <- c.sseSubscribers
	ch <- c.syncSessions
	ch <- c.dbTotalConns
	ch <- c.dbAcquiredConns
}

func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	if c.stats != nil {
		for status, n := range c.stats.StatusCounts() {
			ch <- prometheus.MustNewConstMetric(c.lessons, prometheus.GaugeValue, float64(n), status)
		}
		ch <- prometheus.MustNewConstMetric(c.queuePending, prometheus.GaugeValue, float64(c.stats.QueuePending()))
		ch <- prometheus.MustNewConstMetric(c.sseSubscribers, prometheus.GaugeValue, float64(c.stats.SSESubscriberCount()))
		ch <- prometheus.MustNewConstMetric(c.syncSessions, prometheus.GaugeValue, float64(c.stats.SyncSessionCount()))
	} else {
		ch <- prometheus.MustNewConstMetric(c.queuePending, prometheus.GaugeValue, 0)
		ch <- prometheus.MustNewConstMetric(c.sseSubscribers, prometheus.GaugeValue, 0)
		ch <- prometheus.MustNewConstMetric(c.syncSessions, prometheus.GaugeValue, 0)
	}

	if c.pool != nil {
		stat := c.pool.Stat()
		ch <- prometheus.MustNewConstMetric(c.dbTotalConns, prometheus.GaugeValue, float64(stat.TotalConns()))
		ch <- prometheus.MustNewConstMetric(c.dbAcquiredConns, prometheus.GaugeValue, float64(stat.AcquiredConns()))
	} else {
		ch <- prometheus.MustNewConstMetric(c.dbTotalConns, prometheus.GaugeValue, 0)
		ch <- prometheus.MustNewConstMetric(c.dbAcquiredConns, prometheus.GaugeValue, 0)
	}
}
