package observability

import (
	"strings"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// PrometheusFactory is a MetricFactory backed by a Prometheus registerer.
// Dotted metric names become underscore separated: "subvault.batch.size"
// is exported as "subvault_batch_size".
type PrometheusFactory struct {
	reg     prometheus.Registerer
	buckets []float64

	mu         sync.Mutex
	counters   map[string]prometheus.Counter
	histograms map[string]prometheus.Histogram
}

// PrometheusOption configures a PrometheusFactory.
type PrometheusOption func(*PrometheusFactory)

// WithBuckets sets the histogram buckets. The default is
// prometheus.DefBuckets scaled for base-unit amounts.
func WithBuckets(buckets []float64) PrometheusOption {
	return func(f *PrometheusFactory) {
		f.buckets = buckets
	}
}

// NewPrometheusFactory registers metrics on reg as they are requested.
func NewPrometheusFactory(reg prometheus.Registerer, opts ...PrometheusOption) *PrometheusFactory {
	f := &PrometheusFactory{
		reg:        reg,
		buckets:    prometheus.ExponentialBuckets(1, 10, 12),
		counters:   make(map[string]prometheus.Counter),
		histograms: make(map[string]prometheus.Histogram),
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Counter implements MetricFactory. Repeated calls with one name return the
// same counter.
func (f *PrometheusFactory) Counter(name string) Counter {
	f.mu.Lock()
	defer f.mu.Unlock()

	if c, ok := f.counters[name]; ok {
		return c
	}
	c := prometheus.NewCounter(prometheus.CounterOpts{
		Name: metricName(name) + "_total",
		Help: "Count of " + name + ".",
	})
	f.reg.MustRegister(c)
	f.counters[name] = c
	return c
}

// Histogram implements MetricFactory.
func (f *PrometheusFactory) Histogram(name string) Histogram {
	f.mu.Lock()
	defer f.mu.Unlock()

	if h, ok := f.histograms[name]; ok {
		return h
	}
	h := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    metricName(name),
		Help:    "Distribution of " + name + ".",
		Buckets: f.buckets,
	})
	f.reg.MustRegister(h)
	f.histograms[name] = h
	return h
}

func metricName(name string) string {
	return strings.NewReplacer(".", "_", "-", "_").Replace(name)
}
