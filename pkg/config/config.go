// Package config 提供 TOML 配置加载与环境变量覆盖
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/wyfcoding/venuegateway/pkg/logger"
)

// Config 网关配置
type Config struct {
	// 服务名称
	ServiceName string `mapstructure:"service_name"`
	// 环境：dev, staging, prod
	Environment string `mapstructure:"environment"`
	// HTTP 服务配置
	HTTP HTTPConfig `mapstructure:"http"`
	// 行情网关配置
	Gateway GatewayConfig `mapstructure:"gateway"`
	// 交易所接入配置
	Venue VenueConfig `mapstructure:"venue"`
	// Redis 配置
	Redis RedisConfig `mapstructure:"redis"`
	// 数据库配置
	Database DatabaseConfig `mapstructure:"database"`
	// Kafka 配置
	Kafka KafkaConfig `mapstructure:"kafka"`
	// 日志配置
	Log logger.Config `mapstructure:"log"`
	// 指标配置
	Metrics MetricsConfig `mapstructure:"metrics"`
}

// HTTPConfig HTTP 服务配置
type HTTPConfig struct {
	Host string `mapstructure:"host"`
	Port int    `mapstructure:"port"`
}

// GatewayConfig 订阅复用配置
type GatewayConfig struct {
	RestoreOnErrorReconnect      bool `mapstructure:"restore_on_error_reconnect"`
	RestoreOnNormalReconnect     bool `mapstructure:"restore_on_normal_reconnect"`
	SupportMultipleSubscriptions bool `mapstructure:"support_multiple_subscriptions"`
	NonExistSubscriptionAsError  bool `mapstructure:"non_exist_subscription_as_error"`
	// 查询超时（秒），0 表示关闭
	LookupTimeoutSeconds int `mapstructure:"lookup_timeout_seconds"`
}

// LookupTimeout returns the configured lookup timeout as a duration.
func (c GatewayConfig) LookupTimeout() time.Duration {
	return time.Duration(c.LookupTimeoutSeconds) * time.Second
}

// VenueConfig 交易所接入配置
type VenueConfig struct {
	// WebSocket 接入地址
	Endpoint string `mapstructure:"endpoint"`
	// 重连间隔（秒）
	ReconnectIntervalSeconds int `mapstructure:"reconnect_interval_seconds"`
	// 按证券订阅能力
	SubscriptionBySecurity bool `mapstructure:"subscription_by_security"`
}

// RedisConfig Redis 配置
type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
	// 查询结果缓存 TTL（秒）
	LookupCacheTTLSeconds int `mapstructure:"lookup_cache_ttl_seconds"`
}

// DatabaseConfig 数据库配置
type DatabaseConfig struct {
	Enabled      bool   `mapstructure:"enabled"`
	DSN          string `mapstructure:"dsn"`
	MaxOpenConns int    `mapstructure:"max_open_conns"`
	MaxIdleConns int    `mapstructure:"max_idle_conns"`
}

// KafkaConfig Kafka 配置
type KafkaConfig struct {
	Enabled bool     `mapstructure:"enabled"`
	Brokers []string `mapstructure:"brokers"`
}

// MetricsConfig 指标配置
type MetricsConfig struct {
	Enabled bool `mapstructure:"enabled"`
	Port    int  `mapstructure:"port"`
}

// Load 加载配置文件，环境变量以 VENUEGATEWAY_ 前缀覆盖
func Load(path string, cfg *Config) error {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("toml")
	v.SetEnvPrefix("VENUEGATEWAY")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("service_name", "venuegateway")
	v.SetDefault("environment", "dev")
	v.SetDefault("http.host", "0.0.0.0")
	v.SetDefault("http.port", 8080)
	v.SetDefault("gateway.lookup_timeout_seconds", 10)
	v.SetDefault("venue.reconnect_interval_seconds", 5)
	v.SetDefault("venue.subscription_by_security", true)
	v.SetDefault("redis.lookup_cache_ttl_seconds", 300)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("log.output", "stdout")
	v.SetDefault("metrics.port", 9090)

	if err := v.ReadInConfig(); err != nil {
		return fmt.Errorf("failed to read config %s: %w", path, err)
	}
	if err := v.Unmarshal(cfg); err != nil {
		return fmt.Errorf("failed to unmarshal config: %w", err)
	}
	return validate(cfg)
}

func validate(cfg *Config) error {
	if cfg.ServiceName == "" {
		return fmt.Errorf("service_name cannot be empty")
	}
	if cfg.Gateway.LookupTimeoutSeconds < 0 {
		return fmt.Errorf("gateway.lookup_timeout_seconds must not be negative")
	}
	if cfg.Venue.Endpoint == "" {
		return fmt.Errorf("venue.endpoint cannot be empty")
	}
	return nil
}
