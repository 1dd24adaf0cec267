package collector

import (
	"regexp"
	"strings"

	"go.uber.org/zap"

	"github.com/feed-collector/pkg/config"
	"github.com/feed-collector/pkg/schedule"
)

// Base 采集器公共部分，具体采集器嵌入使用
type Base struct {
	name     string
	table    string
	interval string
	at       string
	spec     schedule.Spec
	specErr  error
	mapping  map[string]string
	Logger   *zap.Logger
}

type BaseOption func(*Base)

// WithTableName 显式指定表名（配置中的 table_name 优先）
func WithTableName(table string) BaseOption {
	return func(b *Base) { b.table = table }
}

// WithMapping 默认字段映射，配置中的 field_mapping 会覆盖同名键
func WithMapping(m map[string]string) BaseOption {
	return func(b *Base) {
		for k, v := range m {
			b.mapping[k] = v
		}
	}
}

func WithLogger(l *zap.Logger) BaseOption {
	return func(b *Base) { b.Logger = l }
}

// NewBase 按采集器名称和对应配置段构建公共部分
func NewBase(name string, cc config.CollectorConfig, opts ...BaseOption) Base {
	b := Base{
		name:     name,
		interval: cc.Interval(),
		at:       cc.Time(),
		mapping:  map[string]string{},
		Logger:   zap.NewNop(),
	}
	for _, o := range opts {
		o(&b)
	}
	if cc.TableName != "" {
		b.table = cc.TableName
	}
	for k, v := range cc.FieldMapping {
		b.mapping[k] = v
	}
	b.spec, b.specErr = schedule.Parse(b.interval, b.at)
	return b
}

func (b *Base) Name() string { return b.name }

// TableName 未覆盖时由名称转成蛇形
func (b *Base) TableName() string {
	if b.table != "" {
		return b.table
	}
	return ToSnake(b.name)
}

func (b *Base) Schedule() (schedule.Spec, error) { return b.spec, b.specErr }

func (b *Base) Mapping() map[string]string { return b.mapping }

// MapKeys 按映射重写键名
func (b *Base) MapKeys(rec Record) Record { return MapKeys(rec, b.mapping) }

// MapKeys 未映射的键原样保留；mapping 为空时返回原记录
func MapKeys(rec Record, mapping map[string]string) Record {
	if len(mapping) == 0 {
		return rec
	}
	out := make(Record, len(rec))
	for k, v := range rec {
		if nk, ok := mapping[k]; ok && nk != "" {
			out[nk] = v
			continue
		}
		out[k] = v
	}
	return out
}

var (
	acronymRe = regexp.MustCompile(`([A-Z]+)([A-Z][a-z])`)
	lowerUpRe = regexp.MustCompile(`([a-z0-9])([A-Z])`)
)

// ToSnake 驼峰转蛇形，连续大写视为一个词：NJExistingHousing -> nj_existing_housing
func ToSnake(name string) string {
	s := acronymRe.ReplaceAllString(name, "${1}_${2}")
	s = lowerUpRe.ReplaceAllString(s, "${1}_${2}")
	return strings.ToLower(s)
}
