package observability

import (
	"context"
	"errors"
	"net"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
)

// ObserveDB times fn under a logical op name such as "tasks.update".
// A nil Prom just runs fn.
func (p *Prom) ObserveDB(op string, fn func() error) error {
	if p == nil {
		return fn()
	}

	start := time.Now()
	err := fn()

	status := "ok"
	if err != nil && !isExpected(err) {
		status = "error"
		p.DbErrorsTotal.WithLabelValues(op, classifyDBErr(err)).Inc()
	}

	p.DbQueryDuration.WithLabelValues(op, status).Observe(time.Since(start).Seconds())
	return err
}

// Missing rows and malformed path ids become 404s; neither is a DB fault.
func isExpected(err error) bool {
	if errors.Is(err, pgx.ErrNoRows) {
		return true
	}

	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "22P02"
}

func classifyDBErr(err error) string {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "23505":
			return "unique_violation"
		case "23503":
			return "foreign_key_violation"
		case "57014":
			return "query_canceled"
		}

		class := pgErr.Code
		if len(class) > 2 {
			class = class[:2]
		}
		switch class {
		case "23":
			return "integrity"
		case "40":
			return "tx_rollback"
		case "08":
			return "connection"
		case "53":
			return "resources"
		}
		return "pg_" + pgErr.Code
	}

	var netErr net.Error
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	case errors.Is(err, context.Canceled):
		return "canceled"
	case pgconn.Timeout(err):
		return "timeout"
	case errors.As(err, &netErr):
		return "connection"
	default:
		return "unknown"
	}
}

// poolCollector exports pgxpool.Stat as gauges at scrape time.
type poolCollector struct {
	pool     *pgxpool.Pool
	total    *prometheus.Desc
	idle     *prometheus.Desc
	acquired *prometheus.Desc
	waits    *prometheus.Desc
}

// RegisterPoolStats adds connection pool gauges to reg.
func RegisterPoolStats(reg prometheus.Registerer, pool *pgxpool.Pool) error {
	desc := func(name, help string) *prometheus.Desc {
		return prometheus.NewDesc(prometheus.BuildFQName(namespace, "db_pool", name), help, nil, nil)
	}

	return reg.Register(&poolCollector{
		pool:     pool,
		total:    desc("connections", "Open connections in the pool."),
		idle:     desc("idle_connections", "Idle connections in the pool."),
		acquired: desc("acquired_connections", "Connections currently checked out."),
		waits:    desc("empty_acquire_total", "Acquires that had to wait for a connection."),
	})
}

func (c *poolCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.total
	ch <- c.idle
	ch <- c.acquired
	ch <- c.waits
}

func (c *poolCollector) Collect(ch chan<- prometheus.Metric) {
	s := c.pool.Stat()
	ch <- prometheus.MustNewConstMetric(c.total, prometheus.GaugeValue, float64(s.TotalConns()))
	ch <- prometheus.MustNewConstMetric(c.idle, prometheus.GaugeValue, float64(s.IdleConns()))
	ch <- prometheus.MustNewConstMetric(c.acquired, prometheus.GaugeValue, float64(s.AcquiredConns()))
	ch <- prometheus.MustNewConstMetric(c.waits, prometheus.CounterValue, float64(s.EmptyAcquireCount()))
}
