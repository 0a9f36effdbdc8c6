// Package prometheus exposes task metrics to a Prometheus registry.
package prometheus

import (
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/cschleiden/go-tasks/backend/metrics"
	prom "github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type collectors struct {
	factory promauto.Factory

	mu         sync.Mutex
	counters   map[string]*vec[*prom.CounterVec]
	gauges     map[string]*vec[*prom.GaugeVec]
	histograms map[string]*vec[*prom.HistogramVec]
}

// vec remembers the label names a metric was registered with. Prometheus requires them to stay fixed.
type vec[V any] struct {
	labels []string
	v      V
}

type client struct {
	c    *collectors
	tags metrics.Tags
}

var _ metrics.Client = (*client)(nil)

// NewClient returns a metrics client registering its collectors with reg
func NewClient(reg prom.Registerer) *client {
	return &client{
		c: &collectors{
			factory:    promauto.With(reg),
			counters:   make(map[string]*vec[*prom.CounterVec]),
			gauges:     make(map[string]*vec[*prom.GaugeVec]),
			histograms: make(map[string]*vec[*prom.HistogramVec]),
		},
		tags: metrics.Tags{},
	}
}

func (c *client) Counter(name string, tags metrics.Tags, value int64) {
	tags = c.merge(tags)

	c.c.mu.Lock()
	cv, ok := c.c.counters[name]
	if !ok {
		labels := labelNames(tags)
		cv = &vec[*prom.CounterVec]{
			labels: labels,
			v: c.c.factory.NewCounterVec(prom.CounterOpts{
				Name: metricName(name) + "_total",
				Help: name,
			}, labels),
		}
		c.c.counters[name] = cv
	}
	c.c.mu.Unlock()

	cv.v.WithLabelValues(labelValues(cv.labels, tags)...).Add(float64(value))
}

func (c *client) Gauge(name string, tags metrics.Tags, value int64) {
	tags = c.merge(tags)

	c.c.mu.Lock()
	gv, ok := c.c.gauges[name]
	if !ok {
		labels := labelNames(tags)
		gv = &vec[*prom.GaugeVec]{
			labels: labels,
			v: c.c.factory.NewGaugeVec(prom.GaugeOpts{
				Name: metricName(name),
				Help: name,
			}, labels),
		}
		c.c.gauges[name] = gv
	}
	c.c.mu.Unlock()

	gv.v.WithLabelValues(labelValues(gv.labels, tags)...).Set(float64(value))
}

func (c *client) Distribution(name string, tags metrics.Tags, value float64) {
	c.observe(metricName(name), name, tags, value)
}

// Timing records durations in seconds
func (c *client) Timing(name string, tags metrics.Tags, duration time.Duration) {
	c.observe(metricName(name)+"_seconds", name, tags, duration.Seconds())
}

func (c *client) observe(promName, name string, tags metrics.Tags, value float64) {
	tags = c.merge(tags)

	c.c.mu.Lock()
	hv, ok := c.c.histograms[promName]
	if !ok {
		labels := labelNames(tags)
		hv = &vec[*prom.HistogramVec]{
			labels: labels,
			v: c.c.factory.NewHistogramVec(prom.HistogramOpts{
				Name:    promName,
				Help:    name,
				Buckets: prom.DefBuckets,
			}, labels),
		}
		c.c.histograms[promName] = hv
	}
	c.c.mu.Unlock()

	hv.v.WithLabelValues(labelValues(hv.labels, tags)...).Observe(value)
}

func (c *client) WithTags(tags metrics.Tags) metrics.Client {
	return &client{
		c:    c.c,
		tags: c.merge(tags),
	}
}

func (c *client) merge(tags metrics.Tags) metrics.Tags {
	r := make(metrics.Tags, len(c.tags)+len(tags))
	for k, v := range c.tags {
		r[k] = v
	}

	for k, v := range tags {
		r[k] = v
	}

	return r
}

func metricName(name string) string {
	return strings.NewReplacer(".", "_", "-", "_").Replace(name)
}

func labelNames(tags metrics.Tags) []string {
	labels := make([]string, 0, len(tags))
	for k := range tags {
		labels = append(labels, k)
	}

	sort.Strings(labels)

	return labels
}

// labelValues returns values for the registered labels. Missing tags are empty and unknown tags are dropped.
func labelValues(labels []string, tags metrics.Tags) []string {
	values := make([]string, len(labels))
	for i, l := range labels {
		values[i] = tags[l]
	}

	return values
}
