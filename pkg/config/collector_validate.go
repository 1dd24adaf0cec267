package config

import (
	"fmt"
	"regexp"
	"time"
)

var identRe = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// Validate 发件人密码允许为空（本地无认证 SMTP）
func (e *EmailConfig) Validate() error {
	return valid.Struct(e)
}

// Validate hourly 调度精确到分钟，轮询间隔不能超过一分钟
func (s *SchedulerConfig) Validate() error {
	if s.PollInterval <= 0 || s.PollInterval > time.Minute {
		return fmt.Errorf("scheduler.poll_interval must be in (0, 1m], got %s", s.PollInterval)
	}
	return nil
}

// Validate 表名和映射后的列名会直接拼进 SQL，只允许标识符。
// 调度类型不在这里校验：未知类型只让该采集器不被调度。
func (c *CollectorConfig) Validate(name string) error {
	if c.TableName != "" && !identRe.MatchString(c.TableName) {
		return fmt.Errorf("collectors.%s.table_name %q is not a valid identifier", name, c.TableName)
	}
	for src, dst := range c.FieldMapping {
		if !identRe.MatchString(dst) {
			return fmt.Errorf("collectors.%s.field_mapping[%s] %q is not a valid identifier", name, src, dst)
		}
	}
	return nil
}
