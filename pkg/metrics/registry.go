package metrics

import (
	"errors"

	"github.com/prometheus/client_golang/prometheus"
)

// Registers 隔离 Prometheus 默认实现，便于单测替换
type Registers interface {
	prometheus.Registerer
}

// promRegistry 内部包裹官方的 *prometheus.Registry
type promRegistry struct {
	registry *prometheus.Registry
}

func NewPromRegistry(registry *prometheus.Registry) Registers {
	return &promRegistry{registry: registry}
}

// MustRegister 重复注册同一指标时忽略，其余错误 panic
func (p *promRegistry) MustRegister(collectors ...prometheus.Collector) {
	for _, c := range collectors {
		if err := p.Register(c); err != nil {
			var are prometheus.AlreadyRegisteredError
			if errors.As(err, &are) {
				continue
			}
			panic(err)
		}
	}
}

func (p *promRegistry) Unregister(collector prometheus.Collector) bool {
	return p.registry.Unregister(collector)
}

func (p *promRegistry) Register(collector prometheus.Collector) error {
	return p.registry.Register(collector)
}
