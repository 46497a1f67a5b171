package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// EnvPrefix 环境变量前缀，例如 GREEN_MYSQL_DSN
const EnvPrefix = "GREEN"

// Config 服务的全部配置
type Config struct {
	Server ServerConfig `mapstructure:"server"`
	MySQL  MySQLConfig  `mapstructure:"mysql"`
	Redis  RedisConfig  `mapstructure:"redis"`
	JWT    JWTConfig    `mapstructure:"jwt"`
	LLM    LLMConfig    `mapstructure:"llm"`
	Events EventsConfig `mapstructure:"events"`
	Plan   PlanConfig   `mapstructure:"plan"`
	Kafka  KafkaConfig  `mapstructure:"kafka"`
	SMTP   SMTPConfig   `mapstructure:"smtp"`
	Logger LoggerConfig `mapstructure:"logger"`
}

type ServerConfig struct {
	Addr string `mapstructure:"addr"`
	Mode string `mapstructure:"mode"` // debug / release / test
}

type MySQLConfig struct {
	DSN             string        `mapstructure:"dsn"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
}

type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

type JWTConfig struct {
	AccessSecret  string        `mapstructure:"access_secret"`
	RefreshSecret string        `mapstructure:"refresh_secret"`
	AccessTTL     time.Duration `mapstructure:"access_ttl"`
	RefreshTTL    time.Duration `mapstructure:"refresh_ttl"`
}

// LLMConfig 计划生成模型（OpenAI 兼容接口）
type LLMConfig struct {
	Endpoint            string        `mapstructure:"endpoint"`
	APIKey              string        `mapstructure:"api_key"`
	Model               string        `mapstructure:"model"`
	Timeout             time.Duration `mapstructure:"timeout"`
	Temperature         float64       `mapstructure:"temperature"`
	IndividualMaxTokens int           `mapstructure:"individual_max_tokens"`
	CommunityMaxTokens  int           `mapstructure:"community_max_tokens"`
}

type EventsConfig struct {
	QueueSize      int           `mapstructure:"queue_size"`
	Workers        int           `mapstructure:"workers"`
	OutboxInterval time.Duration `mapstructure:"outbox_interval"`
	OutboxBatch    int           `mapstructure:"outbox_batch"`
	OutboxMaxRetry int           `mapstructure:"outbox_max_retry"`
}

type PlanConfig struct {
	LockTTL   time.Duration `mapstructure:"lock_ttl"`
	CacheTTL  time.Duration `mapstructure:"cache_ttl"`
	MaxReruns int           `mapstructure:"max_reruns"`
}

// KafkaConfig 为空时事件只在进程内投递
type KafkaConfig struct {
	Brokers []string `mapstructure:"brokers"`
	Topic   string   `mapstructure:"topic"`
	GroupID string   `mapstructure:"group_id"`
}

func (k KafkaConfig) Enabled() bool { return len(k.Brokers) > 0 }

type SMTPConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
	From     string `mapstructure:"from"`
}

type LoggerConfig struct {
	Level       string `mapstructure:"level"`
	Format      string `mapstructure:"format"` // json / console
	ServiceName string `mapstructure:"service_name"`
	LogFile     string `mapstructure:"log_file"`
	MaxSize     int    `mapstructure:"max_size"`
	MaxBackups  int    `mapstructure:"max_backups"`
	MaxAge      int    `mapstructure:"max_age"`
	Compress    bool   `mapstructure:"compress"`
}

// SetDefaults 注册默认值
func SetDefaults(v *viper.Viper) {
	v.SetDefault("server.addr", ":8080")
	v.SetDefault("server.mode", "release")

	v.SetDefault("mysql.max_open_conns", 20)
	v.SetDefault("mysql.max_idle_conns", 5)
	v.SetDefault("mysql.conn_max_lifetime", time.Hour)

	v.SetDefault("redis.addr", "127.0.0.1:6379")
	v.SetDefault("redis.db", 0)

	v.SetDefault("jwt.access_ttl", 30*time.Minute)
	v.SetDefault("jwt.refresh_ttl", 24*time.Hour)

	v.SetDefault("llm.endpoint", "https://api.openai.com/v1")
	v.SetDefault("llm.model", "gpt-4o-mini")
	v.SetDefault("llm.timeout", 60*time.Second)
	v.SetDefault("llm.temperature", 0.7)
	v.SetDefault("llm.individual_max_tokens", 800)
	v.SetDefault("llm.community_max_tokens", 1200)

	v.SetDefault("events.queue_size", 256)
	v.SetDefault("events.workers", 4)
	v.SetDefault("events.outbox_interval", time.Second)
	v.SetDefault("events.outbox_batch", 200)
	v.SetDefault("events.outbox_max_retry", 5)

	v.SetDefault("plan.lock_ttl", 3*time.Minute)
	v.SetDefault("plan.cache_ttl", 10*time.Minute)
	v.SetDefault("plan.max_reruns", 2)

	v.SetDefault("kafka.topic", "green.events")
	v.SetDefault("kafka.group_id", "green-community")

	v.SetDefault("smtp.port", 587)

	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.format", "json")
	v.SetDefault("logger.service_name", "green-community")
	v.SetDefault("logger.max_size", 100)
	v.SetDefault("logger.max_backups", 5)
	v.SetDefault("logger.max_age", 30)
}

// Load 读取配置文件（可选）并叠加环境变量
func Load(path string) (*Config, error) {
	v := viper.New()
	SetDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	return FromViper(v)
}

// FromViper 将 viper 中的值解码为 Config
func FromViper(v *viper.Viper) (*Config, error) {
	// AutomaticEnv 只对已知 key 生效，这里把没有默认值的 key 也绑定上
	for _, key := range []string{
		"mysql.dsn", "redis.password", "jwt.access_secret", "jwt.refresh_secret",
		"llm.api_key", "kafka.brokers", "smtp.host", "smtp.username", "smtp.password", "smtp.from",
		"logger.log_file",
	} {
		_ = v.BindEnv(key)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}
	// 环境变量中的 brokers 以逗号分隔
	if len(cfg.Kafka.Brokers) == 1 && strings.Contains(cfg.Kafka.Brokers[0], ",") {
		cfg.Kafka.Brokers = strings.Split(cfg.Kafka.Brokers[0], ",")
	}
	return &cfg, nil
}

// Validate 启动前检查必填项
func (c *Config) Validate() error {
	var errs []error
	if c.MySQL.DSN == "" {
		errs = append(errs, errors.New("mysql.dsn is required"))
	}
	if c.Redis.Addr == "" {
		errs = append(errs, errors.New("redis.addr is required"))
	}
	if c.JWT.AccessSecret == "" || c.JWT.RefreshSecret == "" {
		errs = append(errs, errors.New("jwt secrets are required"))
	}
	if c.LLM.IndividualMaxTokens <= 0 || c.LLM.CommunityMaxTokens <= 0 {
		errs = append(errs, errors.New("llm token budgets must be positive"))
	}
	if c.Events.Workers <= 0 || c.Events.QueueSize <= 0 {
		errs = append(errs, errors.New("events.workers and events.queue_size must be positive"))
	}
	return errors.Join(errs...)
}
