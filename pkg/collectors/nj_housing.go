package collectors

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/net/html"

	"github.com/feed-collector/pkg/collector"
)

const NJHousingName = "NJExistingHousingTradeInfoCollector"

// 页面上的统计项 -> 存储列
var njDefaultMapping = map[string]string{
	"二手房挂牌总量": "listing_all",
	"中介挂牌量":   "listing_agency",
	"个人挂牌量":   "listing_person",
	"昨日成交量":   "deal_cnt",
}

const njBannerClass = "busniess_banner_num"

// NJExistingHousingTradeInfoCollector 抓取二手房交易信息页面的挂牌/成交统计
type NJExistingHousingTradeInfoCollector struct {
	collector.Base
	url     string
	fetcher Fetcher
	now     func() time.Time
}

func NewNJExistingHousingTradeInfoCollector(ctx context.Context, d Deps) (collector.Collector, error) {
	cc := d.Config.Collector(NJHousingName)
	if strings.TrimSpace(cc.URL) == "" {
		return nil, errors.New("url is required")
	}
	if d.Fetcher == nil {
		return nil, errors.New("fetcher is required")
	}
	c := &NJExistingHousingTradeInfoCollector{
		Base: collector.NewBase(NJHousingName, cc,
			collector.WithMapping(njDefaultMapping),
			collector.WithLogger(d.logger(NJHousingName))),
		url:     cc.URL,
		fetcher: d.Fetcher,
		now:     d.now(),
	}
	if err := collector.Init(ctx, c, d.Store); err != nil {
		return nil, err
	}
	return c, nil
}

func (c *NJExistingHousingTradeInfoCollector) Schema() string {
	return fmt.Sprintf(`
CREATE TABLE IF NOT EXISTS %s (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	date TEXT NOT NULL UNIQUE,
	timestamp TEXT NOT NULL,
	listing_all INTEGER,
	listing_agency INTEGER,
	listing_person INTEGER,
	deal_cnt INTEGER
);`, c.TableName())
}

func (c *NJExistingHousingTradeInfoCollector) Collect(ctx context.Context) (collector.RawPayload, error) {
	body, err := c.fetcher.GetText(ctx, c.url)
	if err != nil {
		return nil, err
	}
	doc, err := html.Parse(strings.NewReader(body))
	if err != nil {
		return nil, &collector.FetchError{Source: c.url, Err: fmt.Errorf("parse html: %w", err)}
	}
	c.Logger.Info("page fetched", zap.String("url", c.url), zap.Int("bytes", len(body)))
	return doc, nil
}

// Process 解析 banner 中 "键：值" 形式的 span，值转为整数
func (c *NJExistingHousingTradeInfoCollector) Process(raw collector.RawPayload) (collector.Record, error) {
	doc, ok := raw.(*html.Node)
	if !ok {
		return nil, &collector.ValidationError{Collector: c.Name(), Missing: []string{"document"}}
	}

	rec := collector.Record{}
	for _, text := range bannerSpans(doc) {
		key, val, found := splitKV(text)
		if !found {
			continue
		}
		// 表结构固定，只保留建表时已有列对应的统计项；配置里额外的映射不扩展列
		if _, known := njDefaultMapping[key]; !known {
			continue
		}
		n, err := parseCount(val)
		if err != nil {
			c.Logger.Debug("skip non numeric banner value", zap.String("key", key), zap.String("value", val))
			continue
		}
		rec[key] = n
	}

	now := c.now()
	rec["date"] = now.Format("2006-01-02")
	rec["timestamp"] = now.Format(time.RFC3339)

	required := make([]string, 0, len(njDefaultMapping)+1)
	for k := range njDefaultMapping {
		required = append(required, k)
	}
	sort.Strings(required)
	required = append([]string{"date"}, required...)
	if err := collector.RequireFields(c.Name(), rec, required...); err != nil {
		return nil, err
	}
	return rec, nil
}

// bannerSpans 收集 class 含 busniess_banner_num 的 div 下所有 span 文本
func bannerSpans(doc *html.Node) []string {
	var out []string
	var walk func(n *html.Node, inBanner bool)
	walk = func(n *html.Node, inBanner bool) {
		if n.Type == html.ElementNode {
			if n.Data == "div" && hasClass(n, njBannerClass) {
				inBanner = true
			}
			if inBanner && n.Data == "span" {
				out = append(out, strings.TrimSpace(textOf(n)))
				return
			}
		}
		for ch := n.FirstChild; ch != nil; ch = ch.NextSibling {
			walk(ch, inBanner)
		}
	}
	walk(doc, false)
	return out
}

func hasClass(n *html.Node, class string) bool {
	for _, a := range n.Attr {
		if a.Key != "class" {
			continue
		}
		for _, f := range strings.Fields(a.Val) {
			if f == class {
				return true
			}
		}
	}
	return false
}

func textOf(n *html.Node) string {
	if n.Type == html.TextNode {
		return n.Data
	}
	var sb strings.Builder
	for ch := n.FirstChild; ch != nil; ch = ch.NextSibling {
		sb.WriteString(textOf(ch))
	}
	return sb.String()
}

// splitKV 支持全角和半角冒号
func splitKV(s string) (string, string, bool) {
	for _, sep := range []string{"：", ":"} {
		if i := strings.Index(s, sep); i > 0 {
			return strings.TrimSpace(s[:i]), strings.TrimSpace(s[i+len(sep):]), true
		}
	}
	return "", "", false
}

// parseCount 去掉千分位和单位后解析整数，例如 "1,234套"
func parseCount(s string) (int64, error) {
	s = strings.ReplaceAll(s, ",", "")
	end := 0
	for end < len(s) && s[end] >= '0' && s[end] <= '9' {
		end++
	}
	if end == 0 {
		return 0, fmt.Errorf("no digits in %q", s)
	}
	return strconv.ParseInt(s[:end], 10, 64)
}
