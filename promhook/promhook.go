// Package promhook backs the observability metrics extension with
// Prometheus collectors.
package promhook

import (
	"strings"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/xraph/tally/observability"
)

var _ observability.MetricFactory = (*Factory)(nil)

// Factory creates Prometheus-registered metrics. Dotted metric names are
// translated to the Prometheus form, so tally.webhook.received becomes
// tally_webhook_received_total. Collectors are memoized per name because
// registering the same name twice panics.
type Factory struct {
	reg prometheus.Registerer

	mu         sync.Mutex
	counters   map[string]prometheus.Counter
	histograms map[string]prometheus.Histogram
}

// NewFactory creates a Factory registering metrics on reg. Pass
// prometheus.DefaultRegisterer to expose them on the process-wide registry.
func NewFactory(reg prometheus.Registerer) *Factory {
	return &Factory{
		reg:        reg,
		counters:   make(map[string]prometheus.Counter),
		histograms: make(map[string]prometheus.Histogram),
	}
}

// NewExtension builds the observability extension on a Prometheus factory
// in one call.
func NewExtension(reg prometheus.Registerer) *observability.MetricsExtension {
	return observability.NewMetricsExtension(NewFactory(reg))
}

// Counter implements observability.MetricFactory.
func (f *Factory) Counter(name string) observability.Counter {
	f.mu.Lock()
	defer f.mu.Unlock()

	if c, ok := f.counters[name]; ok {
		return c
	}
	c := promauto.With(f.reg).NewCounter(prometheus.CounterOpts{
		Name: promName(name) + "_total",
		Help: "Total count of " + name + " events.",
	})
	f.counters[name] = c
	return c
}

// Histogram implements observability.MetricFactory.
func (f *Factory) Histogram(name string) observability.Histogram {
	f.mu.Lock()
	defer f.mu.Unlock()

	if h, ok := f.histograms[name]; ok {
		return h
	}
	h := promauto.With(f.reg).NewHistogram(prometheus.HistogramOpts{
		Name: promName(name),
		Help: "Distribution of " + name + ".",
		// Wide exponential buckets. Observed values are byte sizes and
		// counts, not latencies, so the default buckets do not fit.
		Buckets: prometheus.ExponentialBuckets(1, 4, 12),
	})
	f.histograms[name] = h
	return h
}

// promName converts a dotted metric name to the Prometheus underscore form.
func promName(name string) string {
	return strings.NewReplacer(".", "_", "-", "_").Replace(name)
}
