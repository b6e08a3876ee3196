package observability

import (
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// SimCollector bundles Prometheus metrics for a diagram and its tick
// scheduler. It satisfies core.MetricsRecorder.
type SimCollector struct {
	gatherer prometheus.Gatherer

	Nodes  prometheus.Gauge
	Wires  prometheus.Gauge
	Texts  prometheus.Gauge
	Groups prometheus.Gauge

	ResolveDuration prometheus.Histogram

	Ticks          prometheus.Counter
	Flips          prometheus.Counter
	PendingToggles prometheus.Gauge
	CurrentTick    prometheus.Gauge

	FileOps         *prometheus.CounterVec
	FileOpDurations *prometheus.HistogramVec
}

// NewSimCollector registers simulator metrics against the provided
// registerer, defaulting to the global Prometheus registry when nil.
func NewSimCollector(reg prometheus.Registerer) (*SimCollector, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	gatherer := prometheus.DefaultGatherer
	if g, ok := reg.(prometheus.Gatherer); ok {
		gatherer = g
	}

	gauge := func(name, help string) (prometheus.Gauge, error) {
		return registerGauge(reg, prometheus.NewGauge(prometheus.GaugeOpts{Name: name, Help: help}), name)
	}
	counter := func(name, help string) (prometheus.Counter, error) {
		return registerCounter(reg, prometheus.NewCounter(prometheus.CounterOpts{Name: name, Help: help}), name)
	}

	c := &SimCollector{gatherer: gatherer}
	var err error
	if c.Nodes, err = gauge("diagram_nodes", "Current number of nodes in the diagram."); err != nil {
		return nil, err
	}
	if c.Wires, err = gauge("diagram_wires", "Current number of wires in the diagram."); err != nil {
		return nil, err
	}
	if c.Texts, err = gauge("diagram_texts", "Current number of text annotations in the diagram."); err != nil {
		return nil, err
	}
	if c.Groups, err = gauge("diagram_groups", "Number of groups of instantaneously connected nodes."); err != nil {
		return nil, err
	}
	if c.PendingToggles, err = gauge("sim_pending_toggles", "Number of scheduled group flips."); err != nil {
		return nil, err
	}
	if c.CurrentTick, err = gauge("sim_current_tick", "Index of the last committed tick."); err != nil {
		return nil, err
	}
	if c.Ticks, err = counter("sim_ticks_total", "Total number of committed ticks."); err != nil {
		return nil, err
	}
	if c.Flips, err = counter("sim_flips_total", "Total number of group flips."); err != nil {
		return nil, err
	}

	c.ResolveDuration, err = registerHistogram(reg, prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "diagram_resolve_duration_seconds",
		Help:    "Duration of connectivity rebuilds.",
		Buckets: []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 1},
	}), "diagram_resolve_duration_seconds")
	if err != nil {
		return nil, err
	}

	c.FileOps, err = registerCounterVec(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "diagram_file_operations_total",
		Help: "Diagram file loads and saves, labeled by operation and result.",
	}, []string{"op", "result"}), "diagram_file_operations_total")
	if err != nil {
		return nil, err
	}

	c.FileOpDurations, err = registerHistogramVec(reg, prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "diagram_file_operation_duration_seconds",
		Help:    "Diagram file load and save latency in seconds.",
		Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
	}, []string{"op"}), "diagram_file_operation_duration_seconds")
	if err != nil {
		return nil, err
	}

	return c, nil
}

// Gatherer returns the Prometheus gatherer associated with the collector.
func (c *SimCollector) Gatherer() prometheus.Gatherer {
	if c == nil {
		return nil
	}
	return c.gatherer
}

// Handler exposes a ready-to-use /metrics handler.
func (c *SimCollector) Handler() http.Handler {
	gatherer := c.Gatherer()
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

// SetDiagramCounts updates the diagram size gauges.
func (c *SimCollector) SetDiagramCounts(nodes, wires, texts, groups int) {
	if c == nil {
		return
	}
	c.Nodes.Set(float64(nodes))
	c.Wires.Set(float64(wires))
	c.Texts.Set(float64(texts))
	c.Groups.Set(float64(groups))
}

// ObserveResolve records one connectivity rebuild.
func (c *SimCollector) ObserveResolve(d time.Duration) {
	if c == nil || c.ResolveDuration == nil {
		return
	}
	c.ResolveDuration.Observe(d.Seconds())
}

// RecordTick records one committed tick.
func (c *SimCollector) RecordTick(tick, flips, pending int) {
	if c == nil {
		return
	}
	c.Ticks.Inc()
	c.Flips.Add(float64(flips))
	c.PendingToggles.Set(float64(pending))
	c.CurrentTick.Set(float64(tick))
}

// ObserveFileOp records a load or save and how long it took.
func (c *SimCollector) ObserveFileOp(op string, d time.Duration, err error) {
	if c == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	c.FileOps.WithLabelValues(op, result).Inc()
	c.FileOpDurations.WithLabelValues(op).Observe(d.Seconds())
}

func registerCounterVec(reg prometheus.Registerer, vec *prometheus.CounterVec, name string) (*prometheus.CounterVec, error) {
	if err := reg.Register(vec); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(*prometheus.CounterVec); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return vec, nil
}

func registerHistogramVec(reg prometheus.Registerer, vec *prometheus.HistogramVec, name string) (*prometheus.HistogramVec, error) {
	if err := reg.Register(vec); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(*prometheus.HistogramVec); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return vec, nil
}

func registerHistogram(reg prometheus.Registerer, hist prometheus.Histogram, name string) (prometheus.Histogram, error) {
	if err := reg.Register(hist); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(prometheus.Histogram); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return hist, nil
}

func registerCounter(reg prometheus.Registerer, counter prometheus.Counter, name string) (prometheus.Counter, error) {
	if err := reg.Register(counter); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(prometheus.Counter); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return counter, nil
}

func registerGauge(reg prometheus.Registerer, gauge prometheus.Gauge, name string) (prometheus.Gauge, error) {
	if err := reg.Register(gauge); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(prometheus.Gauge); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return gauge, nil
}
