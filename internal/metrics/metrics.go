// Package metrics records per-stage task outcomes for the batch pipeline.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the Prometheus collectors shared by all stages.
type Metrics struct {
	reg *prometheus.Registry

	TasksTotal   *prometheus.CounterVec
	TaskSeconds  *prometheus.HistogramVec
	ItemsWritten *prometheus.GaugeVec
}

func New() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Metrics{
		reg: reg,
		TasksTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "dialogqa_tasks_total",
				Help: "Pipeline tasks by stage and outcome",
			},
			[]string{"stage", "status"},
		),
		TaskSeconds: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "dialogqa_task_seconds",
				Help:    "Latency of a single pipeline task",
				Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 120, 300},
			},
			[]string{"stage"},
		),
		ItemsWritten: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "dialogqa_items_written",
				Help: "Items persisted by the last run of a stage",
			},
			[]string{"stage"},
		),
	}
}

// Registry exposes the private registry, mainly for tests.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.reg
}

// Stage returns a recorder bound to one stage label.
func (m *Metrics) Stage(name string) *Stage {
	if m == nil {
		return nil
	}
	return &Stage{m: m, name: name}
}

// WriteTextfile dumps the registry in the node-exporter textfile format.
func (m *Metrics) WriteTextfile(path string) error {
	return prometheus.WriteToTextfile(path, m.reg)
}

// Stage is safe to use as a nil pointer; every method is then a no-op.
type Stage struct {
	m    *Metrics
	name string
}

func (s *Stage) ObserveTask(d time.Duration, err error) {
	if s == nil {
		return
	}
	status := "ok"
	if err != nil {
		status = "error"
	}
	s.m.TasksTotal.WithLabelValues(s.name, status).Inc()
	s.m.TaskSeconds.WithLabelValues(s.name).Observe(d.Seconds())
}

func (s *Stage) ObserveSkipped() {
	if s == nil {
		return
	}
	s.m.TasksTotal.WithLabelValues(s.name, "skipped").Inc()
}

func (s *Stage) SetWritten(n int) {
	if s == nil {
		return
	}
	s.m.ItemsWritten.WithLabelValues(s.name).Set(float64(n))
}
