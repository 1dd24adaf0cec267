package config

import (
	"errors"
	"fmt"
	"net"
	"path/filepath"
	"strings"
	"time"
)

// Validate HTTP服务配置校验
func (h *ServerConfig) Validate() error {
	if err := valid.Struct(h); err != nil {
		return err
	}
	if h.Addr == "" {
		return errors.New("server.addr cannot be empty")
	}
	if _, err := net.ResolveTCPAddr("tcp", h.Addr); err != nil {
		return fmt.Errorf("server.addr format invalid (expected: :port or ip:port), got %s: %w", h.Addr, err)
	}
	return nil
}

// Validate 数据库路径所在目录必须可创建
func (d *DatabaseConfig) Validate() error {
	if strings.TrimSpace(d.DBPath) == "" {
		return errors.New("database.db_path cannot be empty")
	}
	// 存储层每次调用新开连接，内存库拿不到之前建的表
	p := strings.ToLower(strings.TrimSpace(d.DBPath))
	if p == ":memory:" || strings.HasPrefix(p, "file::memory:") || strings.Contains(p, "mode=memory") {
		return fmt.Errorf("database.db_path must be a file, in-memory database %q is not supported", d.DBPath)
	}
	dir := filepath.Dir(d.DBPath)
	if err := ensureDir(dir); err != nil {
		return fmt.Errorf("database.db_path directory %s is not usable: %w", dir, err)
	}
	return nil
}

// Validate 退避间隔上限 24h，避免一次投递卡住整个运行
func (n *NotifierConfig) Validate() error {
	if n.RetryBackoff > 24*time.Hour {
		return fmt.Errorf("notifier.retry_backoff must be at most 24h, got %s", n.RetryBackoff)
	}
	return nil
}
