package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// counterValue 从注册器中读取指定标签的计数值
func counterValue(t *testing.T, reg *prometheus.Registry, name string, labels map[string]string) float64 {
	t.Helper()
	families, err := reg.Gather()
	require.NoError(t, err)
	for _, mf := range families {
		if mf.GetName() != name {
			continue
		}
	next:
		for _, m := range mf.GetMetric() {
			for _, lp := range m.GetLabel() {
				if labels[lp.GetName()] != lp.GetValue() {
					continue next
				}
			}
			return m.GetCounter().GetValue()
		}
	}
	return 0
}

func TestPipelineMetrics(t *testing.T) {
	reg, f := NewRegistry(false)
	p := NewPipeline(f)

	p.ObserveRun("APISnapshotCollector", "done", 1500*time.Millisecond)
	p.ObserveRun("APISnapshotCollector", "collect", time.Second)
	p.SkippedRun("APISnapshotCollector")
	p.Delivery("APISnapshotCollector", true)
	p.Delivery("APISnapshotCollector", false)
	p.Delivery("APISnapshotCollector", false)
	p.FetchError("APISnapshotCollector")

	c := "APISnapshotCollector"
	assert.Equal(t, 1.0, counterValue(t, reg, "pipeline_runs_total", map[string]string{"collector": c, "stage": "done"}))
	assert.Equal(t, 1.0, counterValue(t, reg, "scheduler_skipped_runs_total", map[string]string{"collector": c}))
	assert.Equal(t, 2.0, counterValue(t, reg, "notifier_deliveries_total", map[string]string{"collector": c, "result": "failure"}))
	assert.Equal(t, 1.0, counterValue(t, reg, "collector_fetch_errors_total", map[string]string{"collector": c}))
}

func TestNilPipelineIsNoop(t *testing.T) {
	var p *Pipeline
	assert.NotPanics(t, func() {
		p.ObserveRun("x", "done", time.Second)
		p.SkippedRun("x")
		p.Delivery("x", true)
		p.FetchError("x")
	})
}

func TestMustRegisterIgnoresDuplicates(t *testing.T) {
	_, f := NewRegistry(true)
	c := f.NewCollectorFetchErrorsTotal()
	assert.NotPanics(t, func() { f.reg.MustRegister(c) })
}
