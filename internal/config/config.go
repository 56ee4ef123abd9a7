package config

import (
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

type Config struct {
	Server    ServerConfig
	Database  DatabaseConfig
	JWT       JWTConfig
	Tracing   TracingConfig `mapstructure:"tracing"`
	Redis     RedisConfig
	Log       LogConfig       `mapstructure:"log"`
	Session   SessionConfig   `mapstructure:"session"`
	Queue     QueueConfig     `mapstructure:"queue"`
	CORS      CORSConfig      `mapstructure:"cors"`
	RateLimit RateLimitConfig `mapstructure:"rate_limit"`

	// 运行时标志（非配置文件，通过命令行参数设置）
	ForceMigrate bool `mapstructure:"-"`
}

type CORSConfig struct {
	AllowedOrigins []string `mapstructure:"allowed_origins"`
}

type RateLimitConfig struct {
	MaxRequests   int `mapstructure:"max_requests" validate:"gte=0"`
	WindowMinutes int `mapstructure:"window_minutes" validate:"gte=0"`
}

type ServerConfig struct {
	Port string `validate:"required"`
	Mode string `validate:"omitempty,oneof=debug release test"`
}

type DatabaseConfig struct {
	Driver    string `mapstructure:"driver" validate:"omitempty,oneof=mysql postgres sqlite"`
	Host      string
	Port      int
	User      string
	Password  string
	DBName    string
	Charset   string
	ParseTime bool
	// sqlite 使用文件路径
	Path string `mapstructure:"path"`
}

type JWTConfig struct {
	Secret string `mapstructure:"secret"`
}

type TracingConfig struct {
	Enabled           bool   `mapstructure:"enabled"`
	CollectorEndpoint string `mapstructure:"collector_endpoint"`
}

type RedisConfig struct {
	Enabled  bool `mapstructure:"enabled"`
	Host     string
	Port     int
	Password string
	DB       int
	PoolSize int `mapstructure:"pool_size" validate:"gte=0"`
	// 启动时连通性检查的超时
	DialTimeout time.Duration `mapstructure:"dial_timeout" validate:"gte=0"`
}

type LogConfig struct {
	File string `mapstructure:"file"`
	// 为空时 debug 模式用 debug，其他模式用 info
	Level      string `mapstructure:"level" validate:"omitempty,oneof=debug info warn error"`
	MaxSizeMB  int    `mapstructure:"max_size_mb" validate:"gte=0"`
	MaxBackups int    `mapstructure:"max_backups" validate:"gte=0"`
	MaxAgeDays int    `mapstructure:"max_age_days" validate:"gte=0"`
}

type SessionConfig struct {
	// 超过该时间没有心跳则开启新会话
	Window time.Duration `mapstructure:"window" validate:"gt=0"`
	// 跨实例心跳锁的持有时间
	LockTTL time.Duration `mapstructure:"lock_ttl" validate:"gte=0"`
}

type QueueConfig struct {
	MaxAttempts   int           `mapstructure:"max_attempts" validate:"gte=1"`
	StaleAfter    time.Duration `mapstructure:"stale_after" validate:"gt=0"`
	SweepInterval time.Duration `mapstructure:"sweep_interval" validate:"gt=0"`
	BatchSize     int           `mapstructure:"batch_size" validate:"gte=1"`
	Concurrency   int           `mapstructure:"concurrency" validate:"gte=1"`
	// 关闭后由外部调度器调用 sweep 命令
	RunWorker bool `mapstructure:"run_worker"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", "8080")
	v.SetDefault("server.mode", "debug")
	v.SetDefault("database.driver", "mysql")
	v.SetDefault("database.charset", "utf8mb4")
	v.SetDefault("database.parsetime", true)
	v.SetDefault("log.file", "logs/app.log")
	v.SetDefault("log.max_size_mb", 100)
	v.SetDefault("log.max_backups", 5)
	v.SetDefault("log.max_age_days", 30)
	v.SetDefault("redis.pool_size", 50)
	v.SetDefault("redis.dial_timeout", 3*time.Second)
	v.SetDefault("session.window", 15*time.Minute)
	v.SetDefault("session.lock_ttl", 5*time.Second)
	v.SetDefault("queue.max_attempts", 3)
	v.SetDefault("queue.stale_after", 5*time.Minute)
	v.SetDefault("queue.sweep_interval", 10*time.Second)
	v.SetDefault("queue.batch_size", 100)
	v.SetDefault("queue.concurrency", 4)
	v.SetDefault("queue.run_worker", true)
	v.SetDefault("rate_limit.max_requests", 600)
	v.SetDefault("rate_limit.window_minutes", 1)
}

// Default 返回不读取文件时的配置，测试与 CLI 子命令使用
func Default() *Config {
	v := viper.New()
	setDefaults(v)
	var cfg Config
	_ = v.Unmarshal(&cfg)
	return &cfg
}

func LoadConfig(path string) (*Config, error) {
	v := viper.New()
	v.AddConfigPath(path)
	v.SetConfigName("config")
	v.SetConfigType("yaml")

	v.SetEnvPrefix("PLAYSTATS")
	v.AutomaticEnv()
	setDefaults(v)

	// Database
	v.BindEnv("database.driver", "DATABASE_DRIVER")
	v.BindEnv("database.host", "DATABASE_HOST")
	v.BindEnv("database.port", "DATABASE_PORT")
	v.BindEnv("database.user", "DATABASE_USER")
	v.BindEnv("database.password", "DATABASE_PASSWORD")
	v.BindEnv("database.dbname", "DATABASE_NAME")
	v.BindEnv("database.path", "DATABASE_PATH")

	// JWT
	v.BindEnv("jwt.secret", "JWT_SECRET")

	// Redis
	v.BindEnv("redis.enabled", "REDIS_ENABLED")
	v.BindEnv("redis.host", "REDIS_HOST")
	v.BindEnv("redis.port", "REDIS_PORT")
	v.BindEnv("redis.password", "REDIS_PASSWORD")

	// Log
	v.BindEnv("log.level", "LOG_LEVEL")

	// Server
	v.BindEnv("server.mode", "SERVER_MODE")
	v.BindEnv("server.port", "SERVER_PORT")

	// Tracing
	v.BindEnv("tracing.enabled", "TRACING_ENABLED")
	v.BindEnv("tracing.collector_endpoint", "TRACING_COLLECTOR_ENDPOINT")

	if err := v.ReadInConfig(); err != nil {
		return nil, err
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

var validate = validator.New()

func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	// 生产环境校验 JWT Secret 强度
	if c.Server.Mode == "release" && len(c.JWT.Secret) < 32 {
		return fmt.Errorf("JWT secret is too short (%d chars), must be at least 32 characters in release mode", len(c.JWT.Secret))
	}
	return nil
}
