package prometheus

import (
	"strings"
	"testing"
	"time"

	"github.com/cschleiden/go-tasks/backend/metrics"
	"github.com/cschleiden/go-tasks/internal/metrickeys"
	prom "github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

func Test_Counter(t *testing.T) {
	reg := prom.NewRegistry()
	c := NewClient(reg).WithTags(metrics.Tags{metrickeys.Backend: "memory"})

	c.Counter(metrickeys.TaskSubmitted, metrics.Tags{metrickeys.TaskType: "reindex"}, 1)
	c.Counter(metrickeys.TaskSubmitted, metrics.Tags{metrickeys.TaskType: "reindex"}, 2)
	c.Counter(metrickeys.TaskSubmitted, metrics.Tags{metrickeys.TaskType: "delivery"}, 1)

	expected := `
# HELP tasks_task_submitted_total tasks.task.submitted
# TYPE tasks_task_submitted_total counter
tasks_task_submitted_total{backend="memory",type="delivery"} 1
tasks_task_submitted_total{backend="memory",type="reindex"} 3
`
	require.NoError(t, testutil.GatherAndCompare(reg, strings.NewReader(expected), "tasks_task_submitted_total"))
}

func Test_Gauge(t *testing.T) {
	reg := prom.NewRegistry()
	c := NewClient(reg)

	c.Gauge(metrickeys.TasksRunning, metrics.Tags{}, 3)
	c.Gauge(metrickeys.TasksRunning, metrics.Tags{}, 2)

	require.Equal(t, 1, testutil.CollectAndCount(c.c.gauges[metrickeys.TasksRunning].v))
	require.Equal(t, float64(2), testutil.ToFloat64(c.c.gauges[metrickeys.TasksRunning].v.WithLabelValues()))
}

func Test_Timing(t *testing.T) {
	reg := prom.NewRegistry()
	c := NewClient(reg)

	c.Timing(metrickeys.TaskExecutionTime, metrics.Tags{metrickeys.TaskType: "reindex"}, 1500*time.Millisecond)

	require.Equal(t, 1, testutil.CollectAndCount(reg, "tasks_task_execution_time_seconds"))
}

func Test_LabelsStayFixed(t *testing.T) {
	reg := prom.NewRegistry()
	c := NewClient(reg)

	c.Counter(metrickeys.CommandsRejected, metrics.Tags{metrickeys.CommandName: "Start"}, 1)

	// Unknown tags are dropped rather than panicking on a mismatched label set
	c.Counter(metrickeys.CommandsRejected, metrics.Tags{metrickeys.CommandName: "Start", "extra": "x"}, 1)
	c.Counter(metrickeys.CommandsRejected, metrics.Tags{}, 1)

	expected := `
# HELP tasks_commands_rejected_total tasks.commands.rejected
# TYPE tasks_commands_rejected_total counter
tasks_commands_rejected_total{command=""} 1
tasks_commands_rejected_total{command="Start"} 2
`
	require.NoError(t, testutil.GatherAndCompare(reg, strings.NewReader(expected), "tasks_commands_rejected_total"))
}
