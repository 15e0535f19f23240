package store

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/jackc/pgx/v5/stdlib"
	"github.com/mattn/go-sqlite3"
	"github.com/ngrok/sqlmw"
	"github.com/prometheus/client_golang/prometheus"
)

const (
	sqliteMetricsDriver   = "sqlite3-metrics"
	postgresMetricsDriver = "pgx-metrics"
)

var (
	verbRegex = regexp.MustCompile(`^\s*(\w+)`)

	dbOpLatency = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "orchestrator",
		Name:      "db_op_duration_milliseconds",
		Help:      "Time spent on a database operation",
		Buckets:   []float64{1, 5, 20, 100, 500, 1000},
	}, []string{"op", "verb"})

	dbOpTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "orchestrator",
		Name:      "db_op_total",
		Help:      "Number of database operations",
	}, []string{"op", "outcome"})

	registerOnce sync.Once
)

func init() {
	prometheus.MustRegister(dbOpLatency, dbOpTotal)
}

// registerMetricsDrivers makes the sqlite and postgres drivers available
// under names that report every statement and transaction to prometheus.
func registerMetricsDrivers() {
	registerOnce.Do(func() {
		sql.Register(sqliteMetricsDriver, sqlmw.Driver(&sqlite3.SQLiteDriver{}, &metricInterceptor{}))
		sql.Register(postgresMetricsDriver, sqlmw.Driver(stdlib.GetDefaultDriver(), &metricInterceptor{}))
	})
}

type metricInterceptor struct {
	sqlmw.NullInterceptor
}

func (mi *metricInterceptor) ConnBeginTx(ctx context.Context, conn driver.ConnBeginTx, opts driver.TxOptions) (context.Context, driver.Tx, error) {
	done := observe("begin", "begin", time.Now())
	tx, err := conn.BeginTx(ctx, opts)
	done(err)
	return ctx, tx, err
}

func (mi *metricInterceptor) ConnExecContext(ctx context.Context, conn driver.ExecerContext, query string, args []driver.NamedValue) (driver.Result, error) {
	done := observe("exec", verb(query), time.Now())
	res, err := conn.ExecContext(ctx, query, args)
	done(err)
	return res, err
}

func (mi *metricInterceptor) ConnQueryContext(ctx context.Context, conn driver.QueryerContext, query string, args []driver.NamedValue) (context.Context, driver.Rows, error) {
	done := observe("query", verb(query), time.Now())
	rows, err := conn.QueryContext(ctx, query, args)
	done(err)
	return ctx, rows, err
}

func (mi *metricInterceptor) StmtExecContext(ctx context.Context, stmt driver.StmtExecContext, query string, args []driver.NamedValue) (driver.Result, error) {
	done := observe("exec", verb(query), time.Now())
	res, err := stmt.ExecContext(ctx, args)
	done(err)
	return res, err
}

func (mi *metricInterceptor) StmtQueryContext(ctx context.Context, stmt driver.StmtQueryContext, query string, args []driver.NamedValue) (context.Context, driver.Rows, error) {
	done := observe("query", verb(query), time.Now())
	rows, err := stmt.QueryContext(ctx, args)
	done(err)
	return ctx, rows, err
}

func (mi *metricInterceptor) TxCommit(ctx context.Context, tx driver.Tx) error {
	done := observe("commit", "commit", time.Now())
	err := tx.Commit()
	done(err)
	return err
}

func (mi *metricInterceptor) TxRollback(ctx context.Context, tx driver.Tx) error {
	done := observe("rollback", "rollback", time.Now())
	err := tx.Rollback()
	done(err)
	return err
}

// observe starts timing an operation; the returned func records it.
func observe(op, verb string, start time.Time) func(err error) {
	return func(err error) {
		outcome := "ok"
		if err != nil {
			outcome = "error"
		}
		dbOpTotal.WithLabelValues(op, outcome).Inc()
		dbOpLatency.WithLabelValues(op, verb).Observe(float64(time.Since(start).Microseconds()) / 1000)
	}
}

func verb(query string) string {
	if m := verbRegex.FindStringSubmatch(query); len(m) > 1 {
		return strings.ToLower(m[1])
	}
	return "unknown"
}
