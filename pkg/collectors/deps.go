package collectors

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/feed-collector/pkg/collector"
	"github.com/feed-collector/pkg/config"
)

// Fetcher 外部数据源访问能力，由 fetch.Client 实现
type Fetcher interface {
	GetText(ctx context.Context, url string) (string, error)
	GetJSON(ctx context.Context, url string, dest any) error
}

// Deps 构造采集器需要的共享依赖
type Deps struct {
	Config  *config.Config
	Store   collector.TableStore
	Fetcher Fetcher
	Logger  *zap.Logger
	Now     func() time.Time
}

func (d Deps) logger(name string) *zap.Logger {
	if d.Logger == nil {
		return zap.NewNop()
	}
	return d.Logger.Named(name)
}

func (d Deps) now() func() time.Time {
	if d.Now == nil {
		return time.Now
	}
	return d.Now
}
