package collector

import (
	"context"

	"github.com/feed-collector/pkg/schedule"
)

// RawPayload Collect 返回的原始数据（文本、解析后的 HTML、JSON map），nil 表示无数据
type RawPayload any

// Record 结构化记录，值均为标量
type Record map[string]any

// Collector 采集器核心接口（所有采集器必须实现）
type Collector interface {
	Name() string                                    // 采集器名称（注册标识，等于类型名）
	TableName() string                               // 目标表名
	Schedule() (schedule.Spec, error)                // 调度声明，未知类型返回 *schedule.ConfigError
	Mapping() map[string]string                      // 字段映射 原始键 -> 存储键
	Schema() string                                  // 建表 DDL
	Collect(ctx context.Context) (RawPayload, error) // 外部抓取，失败返回 *FetchError
	Process(raw RawPayload) (Record, error)          // 解析校验，缺字段返回 nil 或 *ValidationError
}

// TableStore 采集器构造阶段只需要建表能力
type TableStore interface {
	EnsureTable(ctx context.Context, ddl string) error
}

// Init 执行采集器的建表语句，每次启动都会调用，要求 DDL 幂等
func Init(ctx context.Context, c Collector, store TableStore) error {
	return store.EnsureTable(ctx, c.Schema())
}
