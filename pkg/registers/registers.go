package registers

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/feed-collector/pkg/collector"
	"github.com/feed-collector/pkg/collectors"
)

// Module 注册表中的一项：名称即采集器类型名，也是配置段名
type Module struct {
	Name    string
	NewFunc func(ctx context.Context, d collectors.Deps) (collector.Collector, error)
}

// Modules 编译期注册表，新增采集器只需在这里添加一条
func Modules() []Module {
	return []Module{
		{Name: collectors.NJHousingName, NewFunc: collectors.NewNJExistingHousingTradeInfoCollector},
		{Name: collectors.APISnapshotName, NewFunc: collectors.NewAPISnapshotCollector},
		{Name: collectors.HostLoadName, NewFunc: collectors.NewHostLoadCollector},
	}
}

// RegisterCollectors 采集器注册统一入口
func RegisterCollectors(ctx context.Context, d collectors.Deps) []collector.Collector {
	return Build(ctx, Modules(), d)
}

// Build 按注册表顺序构造所有启用的采集器。
// 单个采集器构造失败（返回错误或 panic）只记录日志并跳过，不影响其余采集器。
func Build(ctx context.Context, modules []Module, d collectors.Deps) []collector.Collector {
	log := d.Logger
	if log == nil {
		log = zap.NewNop()
	}
	log = log.Named("registry")

	var registered []collector.Collector
	for _, m := range modules {
		if d.Config != nil && !d.Config.Collector(m.Name).Enabled() {
			log.Info("collector disabled", zap.String("collector", m.Name))
			continue
		}
		c, err := build(ctx, m, d)
		if err != nil {
			log.Error("failed to load collector", zap.String("collector", m.Name), zap.Error(err))
			continue
		}
		registered = append(registered, c)
		log.Info("loaded collector", zap.String("collector", m.Name), zap.String("table", c.TableName()))
	}

	names := make([]string, 0, len(registered))
	for _, c := range registered {
		names = append(names, c.Name())
	}
	log.Debug("all enabled collectors registered", zap.Strings("enabled_collectors", names))
	return registered
}

func build(ctx context.Context, m Module, d collectors.Deps) (c collector.Collector, err error) {
	defer func() {
		if r := recover(); r != nil {
			c, err = nil, fmt.Errorf("constructor panic: %v", r)
		}
	}()
	c, err = m.NewFunc(ctx, d)
	if err == nil && c == nil {
		err = fmt.Errorf("constructor returned nil collector")
	}
	return c, err
}
