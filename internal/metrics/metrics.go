// Package metrics exposes MioEngine's Prometheus collectors.
//
// Every recording method is safe to call on a nil *Metrics, so components
// can be built without metrics in tests.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "mio"

// Metrics owns a private registry and the collectors registered in it.
type Metrics struct {
	registry *prometheus.Registry

	shardLatency *prometheus.GaugeVec
	shardWarned  *prometheus.GaugeVec
	commands     *prometheus.CounterVec
	rotations    *prometheus.CounterVec
	archiveSaves *prometheus.CounterVec
}

// New builds the collectors and registers them, together with the Go
// runtime and process collectors, in a fresh registry.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		shardLatency: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "shard",
			Name:      "latency_seconds",
			Help:      "Last heartbeat round-trip per shard.",
		}, []string{"shard"}),
		shardWarned: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "shard",
			Name:      "latency_warned",
			Help:      "1 while the shard is flagged for high latency.",
		}, []string{"shard"}),
		commands: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "commands",
			Name:      "total",
			Help:      "Dispatched commands by name and outcome.",
		}, []string{"command", "outcome"}),
		rotations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "presence",
			Name:      "rotations_total",
			Help:      "Status rotation ticks by selected activity kind.",
		}, []string{"kind"}),
		archiveSaves: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "archive",
			Name:      "saves_total",
			Help:      "Archive save attempts by result.",
		}, []string{"result"}),
	}

	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.shardLatency,
		m.shardWarned,
		m.commands,
		m.rotations,
		m.archiveSaves,
	)
	return m
}

// Registry returns the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// ObserveLatency records one monitor sample for a shard.
func (m *Metrics) ObserveLatency(shardID int, latency time.Duration, warned bool) {
	if m == nil {
		return
	}
	id := strconv.Itoa(shardID)
	m.shardLatency.WithLabelValues(id).Set(latency.Seconds())
	flag := 0.0
	if warned {
		flag = 1
	}
	m.shardWarned.WithLabelValues(id).Set(flag)
}

// ForgetShard drops the series of a shard that left the registry.
func (m *Metrics) ForgetShard(shardID int) {
	if m == nil {
		return
	}
	id := strconv.Itoa(shardID)
	m.shardLatency.DeleteLabelValues(id)
	m.shardWarned.DeleteLabelValues(id)
}

// CommandOutcome counts one dispatched command.
func (m *Metrics) CommandOutcome(command, outcome string) {
	if m == nil {
		return
	}
	m.commands.WithLabelValues(command, outcome).Inc()
}

// StatusRotated counts one rotation tick.
func (m *Metrics) StatusRotated(kind string) {
	if m == nil {
		return
	}
	m.rotations.WithLabelValues(kind).Inc()
}

// ArchiveSaved counts one archive save attempt.
func (m *Metrics) ArchiveSaved(err error) {
	if m == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.archiveSaves.WithLabelValues(result).Inc()
}
