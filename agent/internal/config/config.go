package config

import (
	"errors"
	"fmt"
	"net"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/han-fei/redismon/internal/utils"
)

// TPS 计算方式
const (
	TPSModeCycle = "cycle" // 相邻两次采集周期之间计算
	TPSModeProbe = "probe" // 单次采集内两次读取并阻塞等待
)

// Config 采集代理配置
type Config struct {
	Agent    AgentConfig    `yaml:"agent"`
	Redis    RedisConfig    `yaml:"redis"`
	Collect  CollectConfig  `yaml:"collect"`
	Liveness LivenessConfig `yaml:"liveness"`
	Disk     DiskConfig     `yaml:"disk"`
	Network  NetworkConfig  `yaml:"network"`
	Sinks    SinksConfig    `yaml:"sinks"`
	Log      LogConfig      `yaml:"log"`
}

// AgentConfig 代理基本配置
type AgentConfig struct {
	HostID   string `yaml:"host_id"`  // 主机ID，写入每个快照
	Hostname string `yaml:"hostname"` // 主机名，为空时自动获取
}

// RedisConfig Redis连接配置
type RedisConfig struct {
	Host          string        `yaml:"host"`
	Port          int           `yaml:"port"`
	Password      string        `yaml:"password"`
	DB            int           `yaml:"db"`
	DialTimeout   time.Duration `yaml:"dial_timeout"`
	MaxAttempts   int           `yaml:"max_attempts"`   // 每轮连接的最大尝试次数
	RetryDelay    time.Duration `yaml:"retry_delay"`    // 重试基础延迟
	MaxRetryDelay time.Duration `yaml:"max_retry_delay"` // 重试最大延迟
	BackoffFactor float64       `yaml:"backoff_factor"` // 退避因子，1 为固定延迟
	Section       string        `yaml:"section"`        // INFO 分区
}

// RetryPolicy 返回连接重试策略
func (r RedisConfig) RetryPolicy() utils.RetryPolicy {
	return utils.RetryPolicy{
		MaxAttempts:   r.MaxAttempts,
		BaseDelay:     r.RetryDelay,
		MaxDelay:      r.MaxRetryDelay,
		BackoffFactor: r.BackoffFactor,
	}
}

// Addr 返回 host:port
func (c RedisConfig) Addr() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}

// CollectConfig 采集配置
type CollectConfig struct {
	Interval    time.Duration `yaml:"interval"`     // 采集间隔
	Timeout     time.Duration `yaml:"timeout"`      // 单次外部读取超时
	TPSMode     string        `yaml:"tps_mode"`     // cycle 或 probe
	ProbeWindow time.Duration `yaml:"probe_window"` // probe 模式下两次读取的间隔
	WindowSize  int           `yaml:"window_size"`  // QPS/TPS 滑动平均窗口大小
}

// LivenessConfig 存活检查配置
type LivenessConfig struct {
	PidFile string `yaml:"pid_file"` // 为空时不做存活检查
}

// DiskConfig 磁盘采集配置
type DiskConfig struct {
	Enable    bool              `yaml:"enable"`
	StatsPath string            `yaml:"stats_path"` // 默认 /proc/diskstats
	Devices   []string          `yaml:"devices"`    // 为空时采集已挂载分区对应的设备
	Aliases   map[string]string `yaml:"aliases"`    // 设备名别名，如 vg--redis-lv--redis: vdd
}

// NetworkConfig 网络采集配置
type NetworkConfig struct {
	Enable       bool     `yaml:"enable"`
	DevPath      string   `yaml:"dev_path"`      // 默认 /proc/net/dev
	SkipPrefixes []string `yaml:"skip_prefixes"` // 跳过的虚拟接口前缀
}

// SinksConfig 输出配置
type SinksConfig struct {
	Console ConsoleSinkConfig `yaml:"console"`
	File    FileSinkConfig    `yaml:"file"`
	Kafka   KafkaConfig       `yaml:"kafka"`
	HTTP    HTTPSinkConfig    `yaml:"http"`
}

// ConsoleSinkConfig 控制台输出
type ConsoleSinkConfig struct {
	Enable bool   `yaml:"enable"`
	Format string `yaml:"format"` // json 或 text
}

// FileSinkConfig NDJSON 文件输出
type FileSinkConfig struct {
	Enable bool   `yaml:"enable"`
	Path   string `yaml:"path"`
}

// KafkaConfig Kafka配置
type KafkaConfig struct {
	Enabled      bool          `yaml:"enabled"`       // 是否启用Kafka
	Brokers      []string      `yaml:"brokers"`       // Kafka服务器地址列表
	Topic        string        `yaml:"topic"`         // 主题名称
	BatchSize    int           `yaml:"batch_size"`    // 批处理大小
	BatchTimeout time.Duration `yaml:"batch_timeout"` // 批处理超时时间
	MaxRetry     int           `yaml:"max_retry"`     // 最大重试次数

	BreakerFailures int           `yaml:"breaker_failures"` // 连续失败多少次后熔断
	BreakerCooldown time.Duration `yaml:"breaker_cooldown"` // 熔断冷却时间
}

// HTTPSinkConfig 仪表盘 HTTP 服务
type HTTPSinkConfig struct {
	Enable     bool   `yaml:"enable"`
	Addr       string `yaml:"addr"`
	BufferSize int    `yaml:"buffer_size"` // 每个 WebSocket 客户端的发送缓冲
}

// LogConfig 日志配置
type LogConfig struct {
	Level  string `yaml:"level"`  // 日志级别
	Format string `yaml:"format"` // text 或 json
}

// Default 返回带默认值的配置
func Default() *Config {
	cfg := &Config{}
	cfg.Disk.Enable = true
	cfg.Network.Enable = true
	cfg.Sinks.Console.Enable = true
	cfg.applyDefaults()
	return cfg
}

// LoadConfig 加载配置文件，path 为空时返回默认配置
func LoadConfig(path string) (*Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	cfg.applyDefaults()
	return cfg, nil
}

// applyDefaults 设置默认值
func (c *Config) applyDefaults() {
	if c.Redis.Host == "" {
		c.Redis.Host = "localhost"
	}
	if c.Redis.Port == 0 {
		c.Redis.Port = 6379
	}
	if c.Redis.DialTimeout == 0 {
		c.Redis.DialTimeout = 3 * time.Second
	}
	if c.Redis.MaxAttempts == 0 {
		c.Redis.MaxAttempts = 3
	}
	if c.Redis.RetryDelay == 0 {
		c.Redis.RetryDelay = 100 * time.Millisecond
	}
	if c.Redis.MaxRetryDelay == 0 {
		c.Redis.MaxRetryDelay = 5 * time.Second
	}
	if c.Redis.BackoffFactor == 0 {
		c.Redis.BackoffFactor = 2
	}
	if c.Redis.Section == "" {
		c.Redis.Section = "default"
	}

	if c.Collect.Interval == 0 {
		c.Collect.Interval = 1 * time.Second
	}
	if c.Collect.Timeout == 0 {
		c.Collect.Timeout = c.Collect.Interval * 8 / 10
	}
	if c.Collect.TPSMode == "" {
		c.Collect.TPSMode = TPSModeCycle
	}
	if c.Collect.ProbeWindow == 0 {
		c.Collect.ProbeWindow = 1 * time.Second
	}
	if c.Collect.WindowSize == 0 {
		c.Collect.WindowSize = 10
	}

	if c.Disk.StatsPath == "" {
		c.Disk.StatsPath = "/proc/diskstats"
	}
	if c.Network.DevPath == "" {
		c.Network.DevPath = "/proc/net/dev"
	}

	if c.Sinks.Console.Format == "" {
		c.Sinks.Console.Format = "json"
	}
	if c.Sinks.File.Path == "" {
		c.Sinks.File.Path = "redismon.ndjson"
	}
	if c.Sinks.Kafka.BatchSize == 0 {
		c.Sinks.Kafka.BatchSize = 100
	}
	if c.Sinks.Kafka.BatchTimeout == 0 {
		c.Sinks.Kafka.BatchTimeout = 1 * time.Second
	}
	if c.Sinks.Kafka.MaxRetry == 0 {
		c.Sinks.Kafka.MaxRetry = 3
	}
	if c.Sinks.Kafka.BreakerFailures == 0 {
		c.Sinks.Kafka.BreakerFailures = 3
	}
	if c.Sinks.Kafka.BreakerCooldown == 0 {
		c.Sinks.Kafka.BreakerCooldown = 30 * time.Second
	}
	if c.Sinks.Kafka.Topic == "" {
		c.Sinks.Kafka.Topic = "redis-metrics"
	}
	if c.Sinks.HTTP.Addr == "" {
		c.Sinks.HTTP.Addr = ":9121"
	}
	if c.Sinks.HTTP.BufferSize == 0 {
		c.Sinks.HTTP.BufferSize = 16
	}

	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Format == "" {
		c.Log.Format = "text"
	}
}

// ApplyEnv 使用 REDIS_ADDRESS / REDIS_PORT / REDIS_PASSWORD 覆盖连接参数
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) error {
	if v, ok := lookup("REDIS_ADDRESS"); ok && v != "" {
		c.Redis.Host = v
	}
	if v, ok := lookup("REDIS_PORT"); ok && v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("REDIS_PORT %q: %w", v, err)
		}
		c.Redis.Port = port
	}
	if v, ok := lookup("REDIS_PASSWORD"); ok {
		c.Redis.Password = v
	}
	return nil
}

// Validate 校验配置
func (c *Config) Validate() error {
	var errs []error
	if c.Redis.Port <= 0 || c.Redis.Port > 65535 {
		errs = append(errs, fmt.Errorf("redis.port %d out of range", c.Redis.Port))
	}
	if c.Redis.MaxAttempts < 1 {
		errs = append(errs, fmt.Errorf("redis.max_attempts must be >= 1, got %d", c.Redis.MaxAttempts))
	}
	if c.Collect.Interval <= 0 {
		errs = append(errs, errors.New("collect.interval must be positive"))
	}
	if c.Collect.Timeout <= 0 || c.Collect.Timeout > c.Collect.Interval {
		errs = append(errs, fmt.Errorf("collect.timeout %v must be in (0, interval]", c.Collect.Timeout))
	}
	// 一轮重连的全部退避必须能在一次读取超时内完成
	if budget := c.Redis.RetryPolicy().Budget(); c.Collect.Timeout > 0 && budget >= c.Collect.Timeout {
		errs = append(errs, fmt.Errorf("redis retry backoff %v must be shorter than collect.timeout %v", budget, c.Collect.Timeout))
	}
	switch c.Collect.TPSMode {
	case TPSModeCycle:
	case TPSModeProbe:
		if c.Collect.ProbeWindow <= 0 || c.Collect.ProbeWindow >= c.Collect.Interval {
			errs = append(errs, fmt.Errorf("collect.probe_window %v must be in (0, interval)", c.Collect.ProbeWindow))
		}
	default:
		errs = append(errs, fmt.Errorf("collect.tps_mode %q unknown", c.Collect.TPSMode))
	}
	switch c.Sinks.Console.Format {
	case "json", "text":
	default:
		errs = append(errs, fmt.Errorf("sinks.console.format %q unknown", c.Sinks.Console.Format))
	}
	if c.Sinks.Kafka.Enabled && len(c.Sinks.Kafka.Brokers) == 0 {
		errs = append(errs, errors.New("sinks.kafka.brokers required when kafka is enabled"))
	}
	if !c.Sinks.Console.Enable && !c.Sinks.File.Enable && !c.Sinks.Kafka.Enabled && !c.Sinks.HTTP.Enable {
		errs = append(errs, errors.New("no sink enabled"))
	}
	return errors.Join(errs...)
}
