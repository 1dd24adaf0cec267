package registers

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/feed-collector/pkg/collector"
	"github.com/feed-collector/pkg/collectors"
	"github.com/feed-collector/pkg/config"
	"github.com/feed-collector/pkg/fetch"
	"github.com/feed-collector/pkg/storage"
)

type stub struct{ collector.Base }

func (s *stub) Schema() string                                         { return "" }
func (s *stub) Collect(context.Context) (collector.RawPayload, error)  { return nil, nil }
func (s *stub) Process(collector.RawPayload) (collector.Record, error) { return nil, nil }

func stubModule(name string) Module {
	return Module{Name: name, NewFunc: func(_ context.Context, d collectors.Deps) (collector.Collector, error) {
		return &stub{Base: collector.NewBase(name, d.Config.Collector(name))}, nil
	}}
}

func names(cs []collector.Collector) []string {
	out := make([]string, 0, len(cs))
	for _, c := range cs {
		out = append(out, c.Name())
	}
	return out
}

func TestBuildIsolatesFailures(t *testing.T) {
	modules := []Module{
		stubModule("FirstCollector"),
		{Name: "BrokenCollector", NewFunc: func(context.Context, collectors.Deps) (collector.Collector, error) {
			return nil, errors.New("boom")
		}},
		{Name: "PanickyCollector", NewFunc: func(context.Context, collectors.Deps) (collector.Collector, error) {
			panic("constructor exploded")
		}},
		{Name: "NilCollector", NewFunc: func(context.Context, collectors.Deps) (collector.Collector, error) {
			return nil, nil
		}},
		stubModule("LastCollector"),
	}
	d := collectors.Deps{Config: config.NewDefaultConfig(), Logger: zaptest.NewLogger(t)}

	got := Build(context.Background(), modules, d)
	assert.Equal(t, []string{"FirstCollector", "LastCollector"}, names(got))
}

func TestBuildSkipsDisabled(t *testing.T) {
	off := false
	cfg := config.NewDefaultConfig()
	cfg.Collectors["firstcollector"] = config.CollectorConfig{Enable: &off}
	d := collectors.Deps{Config: cfg, Logger: zaptest.NewLogger(t)}

	got := Build(context.Background(), []Module{stubModule("FirstCollector"), stubModule("LastCollector")}, d)
	assert.Equal(t, []string{"LastCollector"}, names(got))
}

func TestRegisterCollectorsDeterministic(t *testing.T) {
	ctx := context.Background()
	g, err := storage.New(ctx, filepath.Join(t.TempDir(), "data.db"))
	require.NoError(t, err)

	cfg := config.NewDefaultConfig()
	cfg.Collectors[collectors.NJHousingName] = config.CollectorConfig{URL: "http://nj.example.com/"}
	// APISnapshotCollector 缺少 api_endpoint，构造失败被跳过
	d := collectors.Deps{Config: cfg, Store: g, Fetcher: fetch.New(cfg.Fetch), Logger: zaptest.NewLogger(t)}

	first := names(RegisterCollectors(ctx, d))
	second := names(RegisterCollectors(ctx, d))
	assert.Equal(t, []string{collectors.NJHousingName, collectors.HostLoadName}, first)
	assert.Equal(t, first, second)
}
