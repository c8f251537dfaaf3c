// Package metrics exports pass results in the Prometheus text format, for the
// node_exporter textfile collector.
package metrics

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/MrSnakeDoc/s1lag/internal/lag"
	"github.com/MrSnakeDoc/s1lag/internal/sampler"
)

type Exporter struct {
	reg *prometheus.Registry

	lagHours  *prometheus.GaugeVec
	published *prometheus.GaugeVec
	up        *prometheus.GaugeVec
	repoUp    *prometheus.GaugeVec
	failures  *prometheus.CounterVec
	entries   prometheus.Gauge
	lastPass  prometheus.Gauge
}

func New() *Exporter {
	e := &Exporter{
		reg: prometheus.NewRegistry(),
		lagHours: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "s1lag_mirror_lag_hours",
			Help: "Latest lag of a mirror's published catalog relative to the sample time (negative = behind).",
		}, []string{"fqrn", "mirror"}),
		published: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "s1lag_mirror_timestamp_seconds",
			Help: "Publish timestamp read from the mirror's .cvmfspublished in the last pass.",
		}, []string{"fqrn", "mirror"}),
		up: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "s1lag_mirror_up",
			Help: "1 if the mirror answered with a valid marker in the last pass.",
		}, []string{"fqrn", "mirror"}),
		repoUp: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "s1lag_repository_sampled",
			Help: "1 if at least one mirror answered for the repository in the last pass.",
		}, []string{"fqrn"}),
		failures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "s1lag_mirror_failures_total",
			Help: "Mirror queries that failed, per repository.",
		}, []string{"fqrn"}),
		entries: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "s1lag_record_entries",
			Help: "Number of sample entries in the stored record.",
		}),
		lastPass: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "s1lag_last_pass_timestamp_seconds",
			Help: "Unix time of the last completed pass.",
		}),
	}
	e.reg.MustRegister(e.lagHours, e.published, e.up, e.repoUp, e.failures, e.entries, e.lastPass)
	return e
}

func boolGauge(b bool) float64 {
	if b {
		return 1
	}
	return 0
}

// ObserveSample records per-mirror reachability and published timestamps.
func (e *Exporter) ObserveSample(s sampler.Sample) {
	for _, rr := range s.Repos {
		ok := 0
		for _, m := range rr.Mirrors {
			e.up.WithLabelValues(rr.FQRN, m.Mirror).Set(boolGauge(m.OK()))
			if m.OK() {
				ok++
				e.published.WithLabelValues(rr.FQRN, m.Mirror).Set(float64(m.Timestamp))
			}
		}
		e.repoUp.WithLabelValues(rr.FQRN).Set(boolGauge(ok > 0))
		e.failures.WithLabelValues(rr.FQRN).Add(float64(rr.Failures()))
	}
}

// ObserveSeries records the latest lag of every mirror of fqrn.
func (e *Exporter) ObserveSeries(fqrn string, s lag.Series) {
	for mirror, pt := range s.Latest() {
		e.lagHours.WithLabelValues(fqrn, mirror).Set(pt.LagHours)
	}
}

func (e *Exporter) ObservePass(at time.Time, entries int) {
	e.lastPass.Set(float64(at.Unix()))
	e.entries.Set(float64(entries))
}

// WriteTextfile writes all metrics to path atomically.
func (e *Exporter) WriteTextfile(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create %s: %w", filepath.Dir(path), err)
	}
	return prometheus.WriteToTextfile(path, e.reg)
}
