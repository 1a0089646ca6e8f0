// Package telemetry collects HTTP and deduplication metrics and serves them
// in the Prometheus text exposition format.
package telemetry

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/ehr/dedup/internal/dedup"
)

var (
	durationBuckets = []float64{0.010, 0.025, 0.050, 0.100, 0.250, 0.500, 1.0, 2.5, 5.0, 10.0}

	// Whole runs over a large extract take far longer than a request.
	runDurationBuckets = []float64{0.1, 0.5, 1, 5, 15, 30, 60, 120, 300, 600}
)

// Metrics is safe for concurrent use. The zero value is not usable; call
// NewMetrics.
type Metrics struct {
	requestDuration *vec[histogram]
	activeRequests  atomic.Int64

	runs            *vec[atomic.Int64]
	runDuration     *histogram
	passComparisons *vec[atomic.Int64]
	passMatches     *vec[atomic.Int64]

	lastRecords  atomic.Int64
	lastPairs    atomic.Int64
	lastClusters atomic.Int64
	lastMerged   atomic.Int64
}

func NewMetrics() *Metrics {
	return &Metrics{
		requestDuration: newVec(func() *histogram { return newHistogram(durationBuckets) }),
		runs:            newCounterVec(),
		runDuration:     newHistogram(runDurationBuckets),
		passComparisons: newCounterVec(),
		passMatches:     newCounterVec(),
	}
}

// Middleware records request latency by method, route pattern and status.
func (m *Metrics) Middleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			m.activeRequests.Add(1)
			defer m.activeRequests.Add(-1)

			start := time.Now()
			err := next(c)

			status := c.Response().Status
			if err != nil {
				status = http.StatusInternalServerError
				var he *echo.HTTPError
				if errors.As(err, &he) {
					status = he.Code
				}
			}
			route := c.Path()
			if route == "" {
				route = "unmatched"
			}

			m.requestDuration.with(c.Request().Method, route, strconv.Itoa(status)).
				Observe(time.Since(start).Seconds())
			return err
		}
	}
}

// ObserveRun records one engine run. Failed runs only count towards
// dedup_runs_total.
func (m *Metrics) ObserveRun(source string, stats dedup.Stats, err error) {
	outcome := "success"
	if err != nil {
		outcome = "error"
	}
	m.runs.with(source, outcome).Add(1)
	if err != nil {
		return
	}

	m.runDuration.Observe(stats.Duration.Seconds())
	for _, p := range stats.Passes {
		m.passComparisons.with(p.Pass).Add(int64(p.Comparisons))
		m.passMatches.with(p.Pass).Add(int64(p.Matches))
	}
	m.lastRecords.Store(int64(stats.Records))
	m.lastPairs.Store(int64(stats.Pairs))
	m.lastClusters.Store(int64(stats.Clusters))
	m.lastMerged.Store(int64(stats.Merged))
}

// Handler serves every metric at /metrics.
func (m *Metrics) Handler() echo.HandlerFunc {
	return func(c echo.Context) error {
		var b strings.Builder

		header(&b, "http_server_request_duration_seconds", "Duration of HTTP requests in seconds.", "histogram")
		m.requestDuration.each(func(labels []string, h *histogram) {
			writeHistogram(&b, "http_server_request_duration_seconds",
				fmt.Sprintf("method=%q,route=%q,status_code=%q", labels[0], labels[1], labels[2]),
				durationBuckets, h.snapshot())
		})

		header(&b, "http_server_active_requests", "Number of in-flight HTTP requests.", "gauge")
		fmt.Fprintf(&b, "http_server_active_requests %d\n", m.activeRequests.Load())

		header(&b, "dedup_runs_total", "Deduplication runs by source and outcome.", "counter")
		m.runs.each(func(labels []string, n *atomic.Int64) {
			fmt.Fprintf(&b, "dedup_runs_total{source=%q,outcome=%q} %d\n", labels[0], labels[1], n.Load())
		})

		header(&b, "dedup_run_duration_seconds", "Duration of successful deduplication runs.", "histogram")
		writeHistogram(&b, "dedup_run_duration_seconds", "", runDurationBuckets, m.runDuration.snapshot())

		header(&b, "dedup_pass_comparisons_total", "Record pairs compared, by pass.", "counter")
		m.passComparisons.each(func(labels []string, n *atomic.Int64) {
			fmt.Fprintf(&b, "dedup_pass_comparisons_total{pass=%q} %d\n", labels[0], n.Load())
		})

		header(&b, "dedup_pass_matches_total", "Matched pairs, by pass.", "counter")
		m.passMatches.each(func(labels []string, n *atomic.Int64) {
			fmt.Fprintf(&b, "dedup_pass_matches_total{pass=%q} %d\n", labels[0], n.Load())
		})

		for _, g := range []struct {
			name, help string
			v          *atomic.Int64
		}{
			{"dedup_last_run_records", "Records read by the last successful run.", &m.lastRecords},
			{"dedup_last_run_pairs", "Matched pairs found by the last successful run.", &m.lastPairs},
			{"dedup_last_run_clusters", "Canonical records produced by the last successful run.", &m.lastClusters},
			{"dedup_last_run_merged", "Records folded into another by the last successful run.", &m.lastMerged},
		} {
			header(&b, g.name, g.help, "gauge")
			fmt.Fprintf(&b, "%s %d\n", g.name, g.v.Load())
		}

		c.Response().Header().Set(echo.HeaderContentType, "text/plain; version=0.0.4; charset=utf-8")
		return c.String(http.StatusOK, b.String())
	}
}

func header(b *strings.Builder, name, help, typ string) {
	fmt.Fprintf(b, "# HELP %s %s\n", name, help)
	fmt.Fprintf(b, "# TYPE %s %s\n", name, typ)
}

func writeHistogram(b *strings.Builder, name, labels string, boundaries []float64, s histogramSnapshot) {
	prefix, suffix := "", ""
	if labels != "" {
		prefix = labels + ","
		suffix = "{" + labels + "}"
	}
	for i, le := range boundaries {
		fmt.Fprintf(b, "%s_bucket{%sle=\"%g\"} %d\n", name, prefix, le, s.cumulative[i])
	}
	fmt.Fprintf(b, "%s_bucket{%sle=\"+Inf\"} %d\n", name, prefix, s.count)
	fmt.Fprintf(b, "%s_sum%s %g\n", name, suffix, s.sum)
	fmt.Fprintf(b, "%s_count%s %d\n", name, suffix, s.count)
}
