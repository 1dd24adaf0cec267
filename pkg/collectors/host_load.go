package collectors

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/shirou/gopsutil/v3/load"
	"github.com/shirou/gopsutil/v3/mem"
	"go.uber.org/zap"

	"github.com/feed-collector/pkg/collector"
)

const HostLoadName = "HostLoadCollector"

// HostSample 一次主机负载采样
type HostSample struct {
	At         time.Time
	Load1      float64
	Load5      float64
	Load15     float64
	MemUsedPct float64
}

// Sampler 采样函数，测试中替换
type Sampler func(ctx context.Context) (HostSample, error)

// HostLoadCollector 记录本机负载均值与内存使用率，按小时去重
type HostLoadCollector struct {
	collector.Base
	sample Sampler
	now    func() time.Time
}

func NewHostLoadCollector(ctx context.Context, d Deps) (collector.Collector, error) {
	return newHostLoadCollector(ctx, d, nil)
}

func newHostLoadCollector(ctx context.Context, d Deps, s Sampler) (*HostLoadCollector, error) {
	cc := d.Config.Collector(HostLoadName)
	c := &HostLoadCollector{
		Base:   collector.NewBase(HostLoadName, cc, collector.WithLogger(d.logger(HostLoadName))),
		sample: s,
		now:    d.now(),
	}
	if c.sample == nil {
		c.sample = c.gopsutilSample
	}
	if err := collector.Init(ctx, c, d.Store); err != nil {
		return nil, err
	}
	return c, nil
}

func (c *HostLoadCollector) Schema() string {
	return fmt.Sprintf(`
CREATE TABLE IF NOT EXISTS %s (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	timestamp TEXT NOT NULL UNIQUE,
	date TEXT NOT NULL,
	load1 REAL,
	load5 REAL,
	load15 REAL,
	mem_used_percent REAL
);`, c.TableName())
}

func (c *HostLoadCollector) gopsutilSample(ctx context.Context) (HostSample, error) {
	avg, err := load.AvgWithContext(ctx)
	if err != nil {
		return HostSample{}, &collector.FetchError{Source: "load", Err: err}
	}
	vm, err := mem.VirtualMemoryWithContext(ctx)
	if err != nil {
		return HostSample{}, &collector.FetchError{Source: "memory", Err: err}
	}
	return HostSample{
		At:         c.now(),
		Load1:      avg.Load1,
		Load5:      avg.Load5,
		Load15:     avg.Load15,
		MemUsedPct: vm.UsedPercent,
	}, nil
}

func (c *HostLoadCollector) Collect(ctx context.Context) (collector.RawPayload, error) {
	s, err := c.sample(ctx)
	if err != nil {
		return nil, err
	}
	c.Logger.Debug("host sampled", zap.Float64("load1", s.Load1), zap.Float64("mem_used_percent", s.MemUsedPct))
	return s, nil
}

func (c *HostLoadCollector) Process(raw collector.RawPayload) (collector.Record, error) {
	s, ok := raw.(HostSample)
	if !ok || s.At.IsZero() {
		return nil, &collector.ValidationError{Collector: c.Name(), Missing: []string{"timestamp"}}
	}
	for _, v := range []float64{s.Load1, s.Load5, s.Load15, s.MemUsedPct} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return nil, nil
		}
	}
	// 按本地整点取整，同一小时内重复采样只保留最后一次
	hour := time.Date(s.At.Year(), s.At.Month(), s.At.Day(), s.At.Hour(), 0, 0, 0, s.At.Location())
	return collector.Record{
		"timestamp":        hour.Format(time.RFC3339),
		"date":             hour.Format("2006-01-02"),
		"load1":            round2(s.Load1),
		"load5":            round2(s.Load5),
		"load15":           round2(s.Load15),
		"mem_used_percent": round2(s.MemUsedPct),
	}, nil
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
