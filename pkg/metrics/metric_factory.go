package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

// MetricFactory 指标工厂，用于统一创建指标（counter/gauge/histogram）。
type MetricFactory struct {
	reg Registers
}

func NewMetricFactory(reg Registers) *MetricFactory {
	return &MetricFactory{reg: reg}
}

// NewRegistry 创建独立的指标注册器（不注册 Go 运行时指标），enableProcess 时附带进程指标
func NewRegistry(enableProcess bool) (*prometheus.Registry, *MetricFactory) {
	promReg := prometheus.NewRegistry()
	if enableProcess {
		promReg.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	}
	return promReg, NewMetricFactory(NewPromRegistry(promReg))
}
