package collector

import (
	"fmt"
	"strings"
)

// FetchError 数据源不可达、非 2xx 或解析失败
type FetchError struct {
	Source     string
	StatusCode int
	Err        error
}

func (e *FetchError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("fetch %s: status %d: %v", e.Source, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("fetch %s: %v", e.Source, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

// ValidationError 处理后缺少必填字段
type ValidationError struct {
	Collector string
	Missing   []string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: missing required fields: %s", e.Collector, strings.Join(e.Missing, ", "))
}

// RequireFields 检查必填字段，值为 nil 或空串也视为缺失
func RequireFields(collector string, rec Record, fields ...string) error {
	var missing []string
	for _, f := range fields {
		v, ok := rec[f]
		if !ok || v == nil {
			missing = append(missing, f)
			continue
		}
		if s, isStr := v.(string); isStr && s == "" {
			missing = append(missing, f)
		}
	}
	if len(missing) > 0 {
		return &ValidationError{Collector: collector, Missing: missing}
	}
	return nil
}
