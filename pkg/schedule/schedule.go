package schedule

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

type Kind string

const (
	Daily  Kind = "daily"
	Hourly Kind = "hourly"
)

// Spec 采集器调度声明：Daily 在 Hour:Minute 触发，Hourly 在每小时的 Minute 触发
type Spec struct {
	Kind   Kind
	Hour   int
	Minute int
}

// ConfigError 配置缺失/非法，或未知的调度类型
type ConfigError struct {
	Key   string
	Value string
	Msg   string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("config %s=%q: %s", e.Key, e.Value, e.Msg)
}

// Parse 解析 schedule_interval / schedule_time。
// hourly 只取分钟部分，支持 "00:30"、":30"、"30" 三种写法。
func Parse(interval, timeStr string) (Spec, error) {
	kind := Kind(strings.ToLower(strings.TrimSpace(interval)))
	timeStr = strings.TrimSpace(timeStr)

	switch kind {
	case Daily:
		h, m, err := parseClock(timeStr)
		if err != nil {
			return Spec{}, &ConfigError{Key: "schedule_time", Value: timeStr, Msg: err.Error()}
		}
		return Spec{Kind: Daily, Hour: h, Minute: m}, nil
	case Hourly:
		m, err := parseMinute(timeStr)
		if err != nil {
			return Spec{}, &ConfigError{Key: "schedule_time", Value: timeStr, Msg: err.Error()}
		}
		return Spec{Kind: Hourly, Minute: m}, nil
	default:
		return Spec{}, &ConfigError{Key: "schedule_interval", Value: interval, Msg: "unknown schedule kind"}
	}
}

func parseClock(s string) (int, int, error) {
	parts := strings.Split(s, ":")
	if len(parts) != 2 || len(parts[0]) != 2 || len(parts[1]) != 2 {
		return 0, 0, fmt.Errorf("want HH:MM")
	}
	h, err := strconv.Atoi(parts[0])
	if err != nil || h < 0 || h > 23 {
		return 0, 0, fmt.Errorf("hour out of range")
	}
	m, err := strconv.Atoi(parts[1])
	if err != nil || m < 0 || m > 59 {
		return 0, 0, fmt.Errorf("minute out of range")
	}
	return h, m, nil
}

func parseMinute(s string) (int, error) {
	if i := strings.LastIndex(s, ":"); i >= 0 {
		if i > 0 {
			if _, _, err := parseClock(s); err != nil {
				return 0, err
			}
		}
		s = s[i+1:]
	}
	if len(s) != 2 {
		return 0, fmt.Errorf("want MM")
	}
	m, err := strconv.Atoi(s)
	if err != nil || m < 0 || m > 59 {
		return 0, fmt.Errorf("minute out of range")
	}
	return m, nil
}

// Next 返回严格晚于 now 的下一次触发时间（使用 now 所在时区）
func (s Spec) Next(now time.Time) time.Time {
	switch s.Kind {
	case Hourly:
		t := time.Date(now.Year(), now.Month(), now.Day(), now.Hour(), s.Minute, 0, 0, now.Location())
		if !t.After(now) {
			t = t.Add(time.Hour)
		}
		return t
	default:
		t := time.Date(now.Year(), now.Month(), now.Day(), s.Hour, s.Minute, 0, 0, now.Location())
		if !t.After(now) {
			t = t.AddDate(0, 0, 1)
		}
		return t
	}
}

func (s Spec) String() string {
	if s.Kind == Hourly {
		return fmt.Sprintf("hourly at :%02d", s.Minute)
	}
	return fmt.Sprintf("daily at %02d:%02d", s.Hour, s.Minute)
}
