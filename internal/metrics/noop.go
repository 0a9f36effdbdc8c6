package metrics

import (
	"time"

	"github.com/cschleiden/go-tasks/backend/metrics"
)

type noopMetricsClient struct {
}

func NewNoopMetricsClient() *noopMetricsClient {
	return &noopMetricsClient{}
}

var _ metrics.Client = (*noopMetricsClient)(nil)

func (*noopMetricsClient) Counter(name string, tags metrics.Tags, value int64) {
}

// Distribution implements metrics.Client
func (*noopMetricsClient) Distribution(name string, tags metrics.Tags, value float64) {
}

// Gauge implements metrics.Client
func (*noopMetricsClient) Gauge(name string, tags metrics.Tags, value int64) {
}

// Timing implements metrics.Client
func (*noopMetricsClient) Timing(name string, tags metrics.Tags, duration time.Duration) {
}

// WithTags implements metrics.Client
func (nmc *noopMetricsClient) WithTags(tags metrics.Tags) metrics.Client {
	return nmc
}
