// Package metrics records hydration counters behind an injectable client.
package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// Metric names a counter and fixes its attribute keys.
type Metric struct {
	Name   string
	Help   string
	Labels []string
}

// Attribute keys.
const (
	AttrConnectorImage = "connector_image"
	AttrConnectorType  = "connector_type"
	AttrConnectionID   = "connection_id"
)

var (
	SecretsHydrationFailure = Metric{
		Name:   "secrets_hydration_failure_total",
		Help:   "Connector configurations whose secrets could not be hydrated",
		Labels: []string{AttrConnectorImage, AttrConnectorType, AttrConnectionID},
	}
	BackfillStreams = Metric{
		Name:   "backfill_streams_total",
		Help:   "Streams whose state was cleared for a backfill",
		Labels: []string{AttrConnectionID},
	}
	StateResetPersisted = Metric{
		Name:   "state_reset_persist_total",
		Help:   "Cleared states persisted ahead of a backfill",
		Labels: []string{AttrConnectionID},
	}
	AttemptMetadataReportFailure = Metric{
		Name: "attempt_metadata_report_failure_total",
		Help: "Stream attempt metadata reports that failed",
	}
)

// All lists every metric the worker records.
var All = []Metric{SecretsHydrationFailure, BackfillStreams, StateResetPersisted, AttemptMetadataReportFailure}

// Attr is a metric attribute.
type Attr struct {
	Key   string
	Value string
}

// Client records counters.
type Client interface {
	Count(m Metric, delta int, attrs ...Attr)
}

// Noop discards everything.
type Noop struct{}

func (Noop) Count(Metric, int, ...Attr) {}

// Prometheus exposes counters on a registry.
type Prometheus struct {
	mu       sync.Mutex
	reg      prometheus.Registerer
	counters map[string]*prometheus.CounterVec
}

const namespace = "replication_worker"

// NewPrometheus registers every metric in All on reg.
func NewPrometheus(reg prometheus.Registerer) (*Prometheus, error) {
	p := &Prometheus{reg: reg, counters: make(map[string]*prometheus.CounterVec)}
	for _, m := range All {
		if _, err := p.counter(m); err != nil {
			return nil, err
		}
	}
	return p, nil
}

func (p *Prometheus) counter(m Metric) (*prometheus.CounterVec, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if c, ok := p.counters[m.Name]; ok {
		return c, nil
	}
	c := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      m.Name,
		Help:      m.Help,
	}, m.Labels)
	if err := p.reg.Register(c); err != nil {
		return nil, err
	}
	p.counters[m.Name] = c
	return c, nil
}

// Count adds delta to m. Attributes not declared by m are ignored and missing
// ones are recorded as empty.
func (p *Prometheus) Count(m Metric, delta int, attrs ...Attr) {
	c, err := p.counter(m)
	if err != nil || delta <= 0 {
		return
	}
	labels := make(prometheus.Labels, len(m.Labels))
	for _, l := range m.Labels {
		labels[l] = ""
	}
	for _, a := range attrs {
		if _, ok := labels[a.Key]; ok {
			labels[a.Key] = a.Value
		}
	}
	c.With(labels).Add(float64(delta))
}

// Vec returns the underlying vector, for tests and exporters.
func (p *Prometheus) Vec(m Metric) *prometheus.CounterVec {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.counters[m.Name]
}
