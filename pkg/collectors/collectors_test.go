package collectors

import (
	"context"
	"encoding/json"
	"errors"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
	"golang.org/x/net/html"

	"github.com/feed-collector/pkg/collector"
	"github.com/feed-collector/pkg/config"
	"github.com/feed-collector/pkg/storage"
)

type fakeFetcher struct {
	text string
	json string
	err  error
	urls []string
}

func (f *fakeFetcher) GetText(_ context.Context, url string) (string, error) {
	f.urls = append(f.urls, url)
	return f.text, f.err
}

func (f *fakeFetcher) GetJSON(_ context.Context, url string, dest any) error {
	f.urls = append(f.urls, url)
	if f.err != nil {
		return f.err
	}
	return json.Unmarshal([]byte(f.json), dest)
}

type memStore struct{ ddl []string }

func (m *memStore) EnsureTable(_ context.Context, ddl string) error {
	m.ddl = append(m.ddl, ddl)
	return nil
}

func testDeps(t *testing.T, cfg *config.Config, f Fetcher) Deps {
	return Deps{
		Config:  cfg,
		Store:   &memStore{},
		Fetcher: f,
		Logger:  zaptest.NewLogger(t),
		Now: func() time.Time {
			return time.Date(2024, 12, 8, 9, 41, 5, 0, time.UTC)
		},
	}
}

func TestAPISnapshotRequiresEndpoint(t *testing.T) {
	cfg := config.NewDefaultConfig()
	_, err := NewAPISnapshotCollector(context.Background(), testDeps(t, cfg, &fakeFetcher{}))
	require.Error(t, err)
}

func TestAPISnapshotEndToEnd(t *testing.T) {
	cfg := config.NewDefaultConfig()
	cfg.Collectors["apisnapshotcollector"] = config.CollectorConfig{APIEndpoint: "http://api.example.com/snapshot"}
	f := &fakeFetcher{json: `{"timestamp":"2024-12-08T00:00:00Z","value1":"100","value2":"200"}`}

	c, err := NewAPISnapshotCollector(context.Background(), testDeps(t, cfg, f))
	require.NoError(t, err)
	assert.Equal(t, "api_snapshot_collector", c.TableName())

	raw, err := c.Collect(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"http://api.example.com/snapshot"}, f.urls)

	rec, err := c.Process(raw)
	require.NoError(t, err)
	assert.Equal(t, collector.Record{
		"date":      "2024-12-08",
		"timestamp": "2024-12-08T00:00:00Z",
		"value1":    "100",
		"value2":    "200",
	}, rec)
}

func TestAPISnapshotMissingValue(t *testing.T) {
	cfg := config.NewDefaultConfig()
	cfg.Collectors[APISnapshotName] = config.CollectorConfig{APIEndpoint: "http://api.example.com/snapshot"}
	c, err := NewAPISnapshotCollector(context.Background(), testDeps(t, cfg, &fakeFetcher{}))
	require.NoError(t, err)

	rec, err := c.Process(map[string]any{"timestamp": "2024-12-08T00:00:00Z", "value2": "200"})
	assert.Nil(t, rec)
	var ve *collector.ValidationError
	require.True(t, errors.As(err, &ve))
	assert.Equal(t, []string{"value1"}, ve.Missing)

	// 没有 T 时日期为 unknown，仍然有效
	rec, err = c.Process(map[string]any{"timestamp": "20241208", "value1": 1.5, "value2": float64(2)})
	require.NoError(t, err)
	assert.Equal(t, "unknown", rec["date"])
	assert.Equal(t, "1.5", rec["value1"])
	assert.Equal(t, "2", rec["value2"])
}

func TestAPISnapshotFetchError(t *testing.T) {
	cfg := config.NewDefaultConfig()
	cfg.Collectors[APISnapshotName] = config.CollectorConfig{APIEndpoint: "http://api.example.com/snapshot"}
	fe := &collector.FetchError{Source: "http://api.example.com/snapshot", StatusCode: 503, Err: errors.New("down")}
	c, err := NewAPISnapshotCollector(context.Background(), testDeps(t, cfg, &fakeFetcher{err: fe}))
	require.NoError(t, err)

	raw, err := c.Collect(context.Background())
	assert.Nil(t, raw)
	assert.ErrorIs(t, err, fe)
}

const njPage = `<html><body>
<div class="header">总量：1</div>
<div class="busniess_banner_num">
  <span>二手房挂牌总量：150,321套</span>
  <span>中介挂牌量：<b>120000</b></span>
  <span>个人挂牌量: 30321</span>
  <span>昨日成交量：312</span>
  <span>均价：暂无</span>
  <span>无分隔符</span>
</div>
</body></html>`

func TestNJHousingProcess(t *testing.T) {
	cfg := config.NewDefaultConfig()
	cfg.Collectors[NJHousingName] = config.CollectorConfig{URL: "http://nj.example.com/"}
	d := testDeps(t, cfg, &fakeFetcher{text: njPage})

	c, err := NewNJExistingHousingTradeInfoCollector(context.Background(), d)
	require.NoError(t, err)
	assert.Equal(t, "nj_existing_housing_trade_info_collector", c.TableName())
	assert.Contains(t, d.Store.(*memStore).ddl[0], "nj_existing_housing_trade_info_collector")

	raw, err := c.Collect(context.Background())
	require.NoError(t, err)

	rec, err := c.Process(raw)
	require.NoError(t, err)
	assert.Equal(t, collector.Record{
		"二手房挂牌总量":   int64(150321),
		"中介挂牌量":     int64(120000),
		"个人挂牌量":     int64(30321),
		"昨日成交量":     int64(312),
		"date":      "2024-12-08",
		"timestamp": "2024-12-08T09:41:05Z",
	}, rec)

	mapped := collector.MapKeys(rec, c.Mapping())
	assert.Equal(t, int64(312), mapped["deal_cnt"])
	assert.Equal(t, int64(150321), mapped["listing_all"])
}

func TestNJHousingIgnoresExtraConfiguredLabels(t *testing.T) {
	cfg := config.NewDefaultConfig()
	cfg.Collectors[NJHousingName] = config.CollectorConfig{
		URL:          "http://nj.example.com/",
		FieldMapping: map[string]string{"新房成交量": "new_deal_cnt"},
	}
	c, err := NewNJExistingHousingTradeInfoCollector(context.Background(), testDeps(t, cfg, &fakeFetcher{}))
	require.NoError(t, err)
	assert.Equal(t, "new_deal_cnt", c.Mapping()["新房成交量"])

	doc, err := html.Parse(strings.NewReader(`<div class="busniess_banner_num">
<span>二手房挂牌总量：10</span><span>中介挂牌量：6</span><span>个人挂牌量：4</span>
<span>昨日成交量：3</span><span>新房成交量：8</span></div>`))
	require.NoError(t, err)
	rec, err := c.Process(doc)
	require.NoError(t, err)
	assert.NotContains(t, rec, "新房成交量")
	assert.Equal(t, int64(3), rec["昨日成交量"])
}

func TestNJHousingMissingFields(t *testing.T) {
	cfg := config.NewDefaultConfig()
	cfg.Collectors[NJHousingName] = config.CollectorConfig{URL: "http://nj.example.com/"}
	c, err := NewNJExistingHousingTradeInfoCollector(context.Background(), testDeps(t, cfg, &fakeFetcher{}))
	require.NoError(t, err)

	doc, err := html.Parse(strings.NewReader(`<div class="busniess_banner_num"><span>昨日成交量：3</span></div>`))
	require.NoError(t, err)
	rec, err := c.Process(doc)
	assert.Nil(t, rec)
	var ve *collector.ValidationError
	require.True(t, errors.As(err, &ve))
	assert.Len(t, ve.Missing, 3)
}

func TestNJHousingRequiresURL(t *testing.T) {
	_, err := NewNJExistingHousingTradeInfoCollector(context.Background(), testDeps(t, config.NewDefaultConfig(), &fakeFetcher{}))
	require.Error(t, err)
}

func TestHostLoadProcess(t *testing.T) {
	d := testDeps(t, config.NewDefaultConfig(), nil)
	sample := func(context.Context) (HostSample, error) {
		return HostSample{At: d.Now(), Load1: 0.456, Load5: 0.5, Load15: 0.25, MemUsedPct: 41.237}, nil
	}
	c, err := newHostLoadCollector(context.Background(), d, sample)
	require.NoError(t, err)
	assert.Equal(t, "host_load_collector", c.TableName())

	raw, err := c.Collect(context.Background())
	require.NoError(t, err)
	rec, err := c.Process(raw)
	require.NoError(t, err)
	assert.Equal(t, collector.Record{
		"timestamp":        "2024-12-08T09:00:00Z",
		"date":             "2024-12-08",
		"load1":            0.46,
		"load5":            0.5,
		"load15":           0.25,
		"mem_used_percent": 41.24,
	}, rec)
}

func TestHostLoadSampleError(t *testing.T) {
	d := testDeps(t, config.NewDefaultConfig(), nil)
	fe := &collector.FetchError{Source: "load", Err: errors.New("unsupported")}
	c, err := newHostLoadCollector(context.Background(), d, func(context.Context) (HostSample, error) {
		return HostSample{}, fe
	})
	require.NoError(t, err)
	_, err = c.Collect(context.Background())
	assert.ErrorIs(t, err, fe)

	rec, err := c.Process("garbage")
	assert.Nil(t, rec)
	assert.Error(t, err)
}

func TestSchemasApplyToSQLite(t *testing.T) {
	ctx := context.Background()
	g, err := storage.New(ctx, filepath.Join(t.TempDir(), "data.db"))
	require.NoError(t, err)

	cfg := config.NewDefaultConfig()
	cfg.Collectors[NJHousingName] = config.CollectorConfig{URL: "http://nj.example.com/"}
	cfg.Collectors[APISnapshotName] = config.CollectorConfig{APIEndpoint: "http://api.example.com/"}
	d := testDeps(t, cfg, &fakeFetcher{})
	d.Store = g

	nj, err := NewNJExistingHousingTradeInfoCollector(ctx, d)
	require.NoError(t, err)
	_, err = NewAPISnapshotCollector(ctx, d)
	require.NoError(t, err)
	_, err = NewHostLoadCollector(ctx, d)
	require.NoError(t, err)

	rec := collector.Record{"date": "2024-12-08", "timestamp": "t", "listing_all": 1, "listing_agency": 2, "listing_person": 3, "deal_cnt": 4}
	require.NoError(t, g.Upsert(ctx, nj.TableName(), rec))
}
