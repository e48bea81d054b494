package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

// Config 应用配置
type Config struct {
	Server      ServerConfig      `mapstructure:"server"`
	Database    DatabaseConfig    `mapstructure:"database"`
	Redis       RedisConfig       `mapstructure:"redis"`
	Log         LogConfig         `mapstructure:"log"`
	JWT         JWTConfig         `mapstructure:"jwt"`
	Sentry      SentryConfig      `mapstructure:"sentry"`
	Tracing     TracingConfig     `mapstructure:"tracing"`
	RateLimit   RateLimitConfig   `mapstructure:"ratelimit"`
	Correlation CorrelationConfig `mapstructure:"correlation"`
}

type ServerConfig struct {
	Port         int           `mapstructure:"port" validate:"required,min=1,max=65535"`
	Mode         string        `mapstructure:"mode" validate:"oneof=debug release test"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
}

type DatabaseConfig struct {
	Driver       string `mapstructure:"driver" validate:"oneof=postgres sqlite"`
	DSN          string `mapstructure:"dsn" validate:"required"`
	MaxOpenConns int    `mapstructure:"max_open_conns"`
	MaxIdleConns int    `mapstructure:"max_idle_conns"`
	AutoMigrate  bool   `mapstructure:"auto_migrate"`
}

type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

type LogConfig struct {
	Level  string `mapstructure:"level" validate:"oneof=debug info warn error"`
	Format string `mapstructure:"format" validate:"oneof=json console"`
}

type JWTConfig struct {
	Secret string        `mapstructure:"secret" validate:"required"`
	Expire time.Duration `mapstructure:"expire"`
}

type SentryConfig struct {
	DSN         string `mapstructure:"dsn"`
	Environment string `mapstructure:"environment"`
}

type TracingConfig struct {
	Enabled     bool    `mapstructure:"enabled"`
	Endpoint    string  `mapstructure:"endpoint"`
	ServiceName string  `mapstructure:"service_name"`
	SampleRatio float64 `mapstructure:"sample_ratio" validate:"min=0,max=1"`
}

type RateLimitConfig struct {
	RPS   float64 `mapstructure:"rps"`
	Burst int     `mapstructure:"burst"`
}

// CorrelationConfig 跨模块请求/响应关联配置
type CorrelationConfig struct {
	// memory | redis
	Transport   string `mapstructure:"transport" validate:"oneof=memory redis"`
	ResultStore string `mapstructure:"result_store" validate:"oneof=memory redis"`
	// push: 注册表通知；poll: 轮询结果存储
	WaitMode     string        `mapstructure:"wait_mode" validate:"oneof=push poll"`
	PollInterval time.Duration `mapstructure:"poll_interval"`
	ResultTTL    time.Duration `mapstructure:"result_ttl"`
	BusWorkers   int           `mapstructure:"bus_workers"`
	BusQueueSize int           `mapstructure:"bus_queue_size"`
	Stream       string        `mapstructure:"stream"`
	Group        string        `mapstructure:"group"`
	Timeouts     TimeoutConfig `mapstructure:"timeouts"`
}

// TimeoutConfig 每种请求的等待上限
type TimeoutConfig struct {
	User           time.Duration `mapstructure:"user" validate:"gt=0"`
	Interaction    time.Duration `mapstructure:"interaction" validate:"gt=0"`
	Comment        time.Duration `mapstructure:"comment" validate:"gt=0"`
	Bookmark       time.Duration `mapstructure:"bookmark" validate:"gt=0"`
	UserValidation time.Duration `mapstructure:"user_validation" validate:"gt=0"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.mode", "debug")
	v.SetDefault("server.read_timeout", 10*time.Second)
	v.SetDefault("server.write_timeout", 10*time.Second)

	v.SetDefault("database.driver", "sqlite")
	v.SetDefault("database.dsn", "file:postboard.db?cache=shared")
	v.SetDefault("database.max_open_conns", 20)
	v.SetDefault("database.max_idle_conns", 5)
	v.SetDefault("database.auto_migrate", true)

	v.SetDefault("redis.addr", "localhost:6379")

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	v.SetDefault("jwt.secret", "change-me")
	v.SetDefault("jwt.expire", 24*time.Hour)

	v.SetDefault("tracing.service_name", "postboard")
	v.SetDefault("tracing.sample_ratio", 1.0)

	v.SetDefault("ratelimit.rps", 100)
	v.SetDefault("ratelimit.burst", 200)

	v.SetDefault("correlation.transport", "memory")
	v.SetDefault("correlation.result_store", "memory")
	v.SetDefault("correlation.wait_mode", "push")
	v.SetDefault("correlation.poll_interval", 100*time.Millisecond)
	v.SetDefault("correlation.result_ttl", 30*time.Second)
	v.SetDefault("correlation.bus_workers", 8)
	v.SetDefault("correlation.bus_queue_size", 1024)
	v.SetDefault("correlation.stream", "postboard:requests")
	v.SetDefault("correlation.group", "postboard")
	v.SetDefault("correlation.timeouts.user", 3*time.Second)
	v.SetDefault("correlation.timeouts.interaction", 2*time.Second)
	v.SetDefault("correlation.timeouts.comment", 2*time.Second)
	v.SetDefault("correlation.timeouts.bookmark", 3*time.Second)
	v.SetDefault("correlation.timeouts.user_validation", 5*time.Second)
}

// Load 从 config/config.yaml（或 CONFIG_PATH）加载配置，环境变量 APP_* 覆盖
func Load(paths ...string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	if len(paths) == 0 {
		if p := os.Getenv("CONFIG_PATH"); p != "" {
			paths = []string{p}
		} else {
			paths = []string{"./config", "."}
		}
	}
	for _, p := range paths {
		v.AddConfigPath(p)
	}

	v.SetEnvPrefix("APP")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	validate := validator.New()
	validate.RegisterStructValidation(validateCorrelation, CorrelationConfig{})
	if err := validate.Struct(&cfg); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return &cfg, nil
}

// validateCorrelation 跨进程传输要求共享结果存储
func validateCorrelation(sl validator.StructLevel) {
	c := sl.Current().Interface().(CorrelationConfig)
	if c.Transport == "redis" && c.ResultStore != "redis" {
		sl.ReportError(c.ResultStore, "ResultStore", "result_store", "shared_with_transport", c.Transport)
	}
}
