package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

var valid = validator.New()

var envKeys = []string{
	"database.db_path",
	"notifier.default_recipient",
	"email.server_address",
	"email.server_port",
	"email.sender_email",
	"email.sender_password",
	"broker.url",
}

// Config 全局配置（启动时构建一次，按引用传递给各组件）
type Config struct {
	Server     ServerConfig               `yaml:"server" mapstructure:"server"`
	Log        ZapLogConfig               `yaml:"log" mapstructure:"log"`
	Database   DatabaseConfig             `yaml:"database" mapstructure:"database"`
	Scheduler  SchedulerConfig            `yaml:"scheduler" mapstructure:"scheduler"`
	Notifier   NotifierConfig             `yaml:"notifier" mapstructure:"notifier"`
	Email      EmailConfig                `yaml:"email" mapstructure:"email"`
	Report     ReportConfig               `yaml:"report" mapstructure:"report"`
	Fetch      FetchConfig                `yaml:"fetch" mapstructure:"fetch"`
	Broker     BrokerConfig               `yaml:"broker" mapstructure:"broker"`
	Collectors map[string]CollectorConfig `yaml:"collectors" mapstructure:"collectors" validate:"dive"`
}

// ServerConfig HTTP服务配置（/metrics /health /collectors）
type ServerConfig struct {
	Enable       bool          `yaml:"enable" mapstructure:"enable" env:"SERVER_ENABLE"`
	Addr         string        `yaml:"addr" mapstructure:"addr" env:"SERVER_ADDR" validate:"required,hostname_port"`
	ReadTimeout  time.Duration `yaml:"read_timeout" mapstructure:"read_timeout" validate:"required,gt=0"`
	WriteTimeout time.Duration `yaml:"write_timeout" mapstructure:"write_timeout" validate:"required,gt=0"`
	IdleTimeout  time.Duration `yaml:"idle_timeout" mapstructure:"idle_timeout" validate:"required,gt=0"`
}

// ZapLogConfig 日志配置。MaxBackup > 0 时按文件个数保留，否则按 MaxAge 天数清理
type ZapLogConfig struct {
	Level     string `yaml:"level" mapstructure:"level" env:"LOG_LEVEL" validate:"required,oneof=debug info warn error dpanic panic fatal"`
	Format    string `yaml:"format" mapstructure:"format" env:"LOG_FORMAT" validate:"required,oneof=json console"`
	Path      string `yaml:"path" mapstructure:"path" env:"LOG_PATH" validate:"required"`
	MaxSize   int    `yaml:"max_size" mapstructure:"max_size" validate:"required,gt=0"`
	MaxBackup int    `yaml:"max_backup" mapstructure:"max_backup" validate:"gte=0"`
	MaxAge    int    `yaml:"max_age" mapstructure:"max_age" validate:"required,gt=0"`
}

// DatabaseConfig 存储配置
type DatabaseConfig struct {
	DBPath      string        `yaml:"db_path" mapstructure:"db_path" env:"DATABASE_DB_PATH" validate:"required"`
	BusyTimeout time.Duration `yaml:"busy_timeout" mapstructure:"busy_timeout" validate:"gte=0"`
}

// SchedulerConfig 调度配置
type SchedulerConfig struct {
	PollInterval time.Duration `yaml:"poll_interval" mapstructure:"poll_interval" validate:"required,gt=0"`
}

// NotifierConfig 通知配置；重试间隔沿用原有 10 分钟默认值，可配置
type NotifierConfig struct {
	DefaultRecipient string        `yaml:"default_recipient" mapstructure:"default_recipient" env:"NOTIFIER_DEFAULT_RECIPIENT" validate:"required,email"`
	MaxRetries       int           `yaml:"max_retries" mapstructure:"max_retries" validate:"gte=0,lte=10"`
	RetryBackoff     time.Duration `yaml:"retry_backoff" mapstructure:"retry_backoff" validate:"gte=0"`
	SendInterval     time.Duration `yaml:"send_interval" mapstructure:"send_interval" validate:"gte=0"`
}

// EmailConfig SMTP 配置
type EmailConfig struct {
	ServerAddress  string `yaml:"server_address" mapstructure:"server_address" env:"EMAIL_SERVER_ADDRESS" validate:"required"`
	ServerPort     int    `yaml:"server_port" mapstructure:"server_port" env:"EMAIL_SERVER_PORT" validate:"required,gt=0,lte=65535"`
	SenderEmail    string `yaml:"sender_email" mapstructure:"sender_email" env:"EMAIL_SENDER_EMAIL" validate:"required,email"`
	SenderPassword string `yaml:"sender_password" mapstructure:"sender_password" env:"EMAIL_SENDER_PASSWORD"`
	SSL            bool   `yaml:"ssl" mapstructure:"ssl"`
}

// ReportConfig 报表输出配置
type ReportConfig struct {
	OutputDir string `yaml:"output_dir" mapstructure:"output_dir" validate:"required"`
	Rows      int    `yaml:"rows" mapstructure:"rows" validate:"required,gt=0"`
}

// FetchConfig 外部数据源 HTTP 客户端配置
type FetchConfig struct {
	Timeout       time.Duration `yaml:"timeout" mapstructure:"timeout" validate:"required,gt=0"`
	RatePerSecond float64       `yaml:"rate_per_second" mapstructure:"rate_per_second" validate:"gt=0"`
	Burst         int           `yaml:"burst" mapstructure:"burst" validate:"gt=0"`
	UserAgent     string        `yaml:"user_agent" mapstructure:"user_agent"`
}

// BrokerConfig AMQP 发布配置（可选）
type BrokerConfig struct {
	Enable       bool   `yaml:"enable" mapstructure:"enable"`
	URL          string `yaml:"url" mapstructure:"url" env:"BROKER_URL" validate:"required_if=Enable true"`
	Exchange     string `yaml:"exchange" mapstructure:"exchange" validate:"required_if=Enable true"`
	ExchangeType string `yaml:"exchange_type" mapstructure:"exchange_type" validate:"omitempty,oneof=fanout topic direct headers"`
	RoutingKey   string `yaml:"routing_key" mapstructure:"routing_key"`
}

// CollectorConfig 单个采集器的配置段，按采集器类型名索引
type CollectorConfig struct {
	Enable           *bool             `yaml:"enable" mapstructure:"enable"`
	ScheduleInterval string            `yaml:"schedule_interval" mapstructure:"schedule_interval"`
	ScheduleTime     string            `yaml:"schedule_time" mapstructure:"schedule_time"`
	TableName        string            `yaml:"table_name" mapstructure:"table_name"`
	APIEndpoint      string            `yaml:"api_endpoint" mapstructure:"api_endpoint" validate:"omitempty,url"`
	URL              string            `yaml:"url" mapstructure:"url" validate:"omitempty,url"`
	FieldMapping     map[string]string `yaml:"field_mapping" mapstructure:"field_mapping"`
}

const (
	DefaultScheduleInterval = "daily"
	DefaultScheduleTime     = "02:00"
)

// Enabled 未显式配置时默认启用
func (c CollectorConfig) Enabled() bool {
	return c.Enable == nil || *c.Enable
}

// Interval 返回调度类型，缺省 daily
func (c CollectorConfig) Interval() string {
	if strings.TrimSpace(c.ScheduleInterval) == "" {
		return DefaultScheduleInterval
	}
	return strings.ToLower(strings.TrimSpace(c.ScheduleInterval))
}

// Time 返回调度时间，缺省 02:00
func (c CollectorConfig) Time() string {
	if strings.TrimSpace(c.ScheduleTime) == "" {
		return DefaultScheduleTime
	}
	return strings.TrimSpace(c.ScheduleTime)
}

// Collector 按类型名查找采集器配置段，先精确匹配，再忽略大小写匹配
func (c *Config) Collector(name string) CollectorConfig {
	if cc, ok := c.Collectors[name]; ok {
		return cc
	}
	for k, cc := range c.Collectors {
		if strings.EqualFold(k, name) {
			return cc
		}
	}
	return CollectorConfig{}
}

// NewDefaultConfig 创建默认配置
func NewDefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Enable:       true,
			Addr:         "0.0.0.0:9091",
			ReadTimeout:  5 * time.Second,
			WriteTimeout: 10 * time.Second,
			IdleTimeout:  15 * time.Second,
		},
		Log: ZapLogConfig{
			Level:     "info",
			Format:    "json",
			Path:      "./logs",
			MaxSize:   100,
			MaxBackup: 0,
			MaxAge:    7,
		},
		Database: DatabaseConfig{
			DBPath:      "./data/data.db",
			BusyTimeout: 5 * time.Second,
		},
		Scheduler: SchedulerConfig{
			PollInterval: time.Second,
		},
		Notifier: NotifierConfig{
			MaxRetries:   1,
			RetryBackoff: 10 * time.Minute,
			SendInterval: 10 * time.Second,
		},
		Email: EmailConfig{
			ServerPort: 465,
			SSL:        true,
		},
		Report: ReportConfig{
			OutputDir: "./reports",
			Rows:      30,
		},
		Fetch: FetchConfig{
			Timeout:       30 * time.Second,
			RatePerSecond: 1,
			Burst:         2,
			UserAgent:     "feed-collector/1.0",
		},
		Broker: BrokerConfig{
			Exchange:     "collector-records",
			ExchangeType: "fanout",
		},
		Collectors: map[string]CollectorConfig{},
	}
}

// LoadConfigWithCli Flags + YAML + ENV
func LoadConfigWithCli(cmd *cobra.Command) (*Config, error) {
	v := viper.New()

	// 1. 绑定 Cobra Flags → Viper
	if err := v.BindPFlags(cmd.Flags()); err != nil {
		return nil, fmt.Errorf("bind flags: %w", err)
	}

	configFile, _ := cmd.Flags().GetString("config")
	return load(v, configFile)
}

// Load 仅从配置文件 + ENV 加载（命令行工具、测试使用）
func Load(configFile string) (*Config, error) {
	return load(viper.New(), configFile)
}

func load(v *viper.Viper, configFile string) (*Config, error) {
	cfg := NewDefaultConfig()

	// 2. 解析配置文件
	if configFile != "" {
		v.SetConfigFile(configFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config file %s: %w", configFile, err)
		}
	}

	// 3. ENV -> Viper （DATABASE_DB_PATH -> database.db_path）
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	// AutomaticEnv 只覆盖 viper 已知的键，敏感项需要显式绑定
	for _, key := range envKeys {
		if err := v.BindEnv(key); err != nil {
			return nil, fmt.Errorf("bind env %s: %w", key, err)
		}
	}

	// 4. 解码到结构体（支持 time.Duration）
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           cfg,
		WeaklyTypedInput: true,
		DecodeHook: mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(","),
		),
	})
	if err != nil {
		return nil, fmt.Errorf("new decoder: %w", err)
	}
	settings := v.AllSettings()
	delete(settings, "collectors")
	if err := decoder.Decode(settings); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if configFile != "" {
		collectors, err := readCollectors(configFile)
		if err != nil {
			return nil, err
		}
		if collectors != nil {
			cfg.Collectors = collectors
		}
	}

	// 5. 校验
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return cfg, nil
}

// readCollectors collectors 段直接按 yaml 标签解析，不经过 viper：
// viper 会把键转成小写并按 "." 拆成嵌套，field_mapping 的源字段名必须原样保留
func readCollectors(configFile string) (map[string]CollectorConfig, error) {
	data, err := os.ReadFile(configFile)
	if err != nil {
		return nil, fmt.Errorf("read config file %s: %w", configFile, err)
	}
	var raw struct {
		Collectors map[string]CollectorConfig `yaml:"collectors"`
	}
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("decode collectors: %w", err)
	}
	return raw.Collectors, nil
}

// Validate 配置校验
func (c *Config) Validate() error {
	if err := valid.Struct(c); err != nil {
		return err
	}
	if err := c.Server.Validate(); err != nil {
		return err
	}
	if err := c.Log.Validate(); err != nil {
		return err
	}
	if err := c.Database.Validate(); err != nil {
		return err
	}
	if err := c.Notifier.Validate(); err != nil {
		return err
	}
	if err := c.Email.Validate(); err != nil {
		return err
	}
	if err := c.Scheduler.Validate(); err != nil {
		return err
	}
	for name, cc := range c.Collectors {
		if err := cc.Validate(name); err != nil {
			return err
		}
	}
	return nil
}
