// internal/common/config/config.go
package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

// Config представляет основную конфигурацию приложения
type Config struct {
	Server     ServerConfig   `mapstructure:"server"`
	Pipeline   PipelineConfig `mapstructure:"pipeline"`
	NATS       NATSConfig     `mapstructure:"nats"`
	PostgreSQL PGConfig       `mapstructure:"postgresql"`
	ClickHouse CHConfig       `mapstructure:"clickhouse"`
	Redis      RedisConfig    `mapstructure:"redis"`
	Telegram   TelegramConfig `mapstructure:"telegram"`
	Logging    LoggingConfig  `mapstructure:"logging"`
	AdminAPI   AdminAPIConfig `mapstructure:"adminapi"`
}

// ServerConfig представляет конфигурацию HTTP сервера
type ServerConfig struct {
	Host         string        `mapstructure:"host"`
	Port         int           `mapstructure:"port"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	IdleTimeout  time.Duration `mapstructure:"idle_timeout"`
}

// PipelineConfig представляет конфигурацию пайплайна модерации.
// Некорректные значения заменяются дефолтами, а не считаются фатальными.
type PipelineConfig struct {
	Concurrency      int           `mapstructure:"concurrency"`
	Interval         time.Duration `mapstructure:"interval"`
	IntervalCap      int           `mapstructure:"interval_cap"`
	WarningThreshold int           `mapstructure:"warning_threshold"`
	MuteDuration     time.Duration `mapstructure:"mute_duration"`
	MediaCeilingMB   float64       `mapstructure:"media_ceiling_mb"`
	CounterStore     string        `mapstructure:"counter_store"` // memory | redis
	RulePackPath     string        `mapstructure:"rule_pack_path"`
}

// NATSConfig представляет конфигурацию NATS
type NATSConfig struct {
	URLs        []string      `mapstructure:"urls"`
	ClientID    string        `mapstructure:"client_id"`
	Credentials string        `mapstructure:"credentials"`
	JWT         string        `mapstructure:"jwt"`
	NKeySeed    string        `mapstructure:"nkey_seed"`
	Timeout     time.Duration `mapstructure:"timeout"`
}

// PGConfig представляет конфигурацию PostgreSQL
type PGConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	Database        string        `mapstructure:"database"`
	Username        string        `mapstructure:"username"`
	Password        string        `mapstructure:"password"`
	SSLMode         string        `mapstructure:"ssl_mode"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
}

// CHConfig представляет конфигурацию ClickHouse
type CHConfig struct {
	Hosts    []string      `mapstructure:"hosts"`
	Database string        `mapstructure:"database"`
	Username string        `mapstructure:"username"`
	Password string        `mapstructure:"password"`
	Port     int           `mapstructure:"port"`
	Secure   bool          `mapstructure:"secure"`
	Compress bool          `mapstructure:"compress"`
	Timeout  time.Duration `mapstructure:"timeout"`
}

// RedisConfig представляет конфигурацию Redis
type RedisConfig struct {
	Host      string        `mapstructure:"host"`
	Port      int           `mapstructure:"port"`
	Password  string        `mapstructure:"password"`
	DB        int           `mapstructure:"db"`
	Timeout   time.Duration `mapstructure:"timeout"`
	KeyPrefix string        `mapstructure:"key_prefix"`
}

// TelegramConfig представляет конфигурацию Telegram Bot API
type TelegramConfig struct {
	BotToken  string        `mapstructure:"bot_token"`
	BaseURL   string        `mapstructure:"base_url"`
	ParseMode string        `mapstructure:"parse_mode"`
	Timeout   time.Duration `mapstructure:"timeout"`
}

// LoggingConfig представляет конфигурацию логирования
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
	Output string `mapstructure:"output"`
}

// AdminAPIConfig представляет конфигурацию Admin API
type AdminAPIConfig struct {
	TokenHash string `mapstructure:"token_hash"` // bcrypt хэш админского токена
	LogLevel  string `mapstructure:"log_level"`
}

// LoadConfig загружает конфигурацию из файла // v1.0
func LoadConfig(configPath string) (*Config, error) {
	if configPath == "" {
		configPath = "configs/config.yaml"
	}
	viper.SetConfigFile(configPath)
	viper.SetConfigType("yaml")

	// Устанавливаем значения по умолчанию
	setDefaults()

	// Читаем конфигурацию
	if err := viper.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	// Валидируем конфигурацию
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	// Значения пайплайна не фатальны: невалидные заменяются дефолтами
	config.Pipeline.applyFallbacks()

	return &config, nil
}

// setDefaults устанавливает значения по умолчанию // v1.0
func setDefaults() {
	// Server defaults
	viper.SetDefault("server.host", "0.0.0.0")
	viper.SetDefault("server.port", 8080)
	viper.SetDefault("server.read_timeout", "30s")
	viper.SetDefault("server.write_timeout", "30s")
	viper.SetDefault("server.idle_timeout", "60s")

	// Pipeline defaults
	viper.SetDefault("pipeline.concurrency", DefaultConcurrency)
	viper.SetDefault("pipeline.interval", DefaultInterval.String())
	viper.SetDefault("pipeline.interval_cap", DefaultIntervalCap)
	viper.SetDefault("pipeline.warning_threshold", DefaultWarningThreshold)
	viper.SetDefault("pipeline.mute_duration", DefaultMuteDuration.String())
	viper.SetDefault("pipeline.media_ceiling_mb", DefaultMediaCeilingMB)
	viper.SetDefault("pipeline.counter_store", "memory")

	// NATS defaults
	viper.SetDefault("nats.urls", []string{"nats://localhost:4222"})
	viper.SetDefault("nats.client_id", "chatguard")
	viper.SetDefault("nats.timeout", "5s")

	// PostgreSQL defaults
	viper.SetDefault("postgresql.host", "localhost")
	viper.SetDefault("postgresql.port", 5432)
	viper.SetDefault("postgresql.database", "chatguard")
	viper.SetDefault("postgresql.ssl_mode", "disable")
	viper.SetDefault("postgresql.max_open_conns", 50)
	viper.SetDefault("postgresql.max_idle_conns", 10)
	viper.SetDefault("postgresql.conn_max_lifetime", "1h")

	// ClickHouse defaults
	viper.SetDefault("clickhouse.hosts", []string{"localhost"})
	viper.SetDefault("clickhouse.database", "chatguard")
	viper.SetDefault("clickhouse.port", 9000)
	viper.SetDefault("clickhouse.compress", true)
	viper.SetDefault("clickhouse.timeout", "30s")

	// Redis defaults
	viper.SetDefault("redis.host", "localhost")
	viper.SetDefault("redis.port", 6379)
	viper.SetDefault("redis.db", 0)
	viper.SetDefault("redis.timeout", "5s")
	viper.SetDefault("redis.key_prefix", "chatguard")

	// Telegram defaults
	viper.SetDefault("telegram.base_url", "https://api.telegram.org")
	viper.SetDefault("telegram.parse_mode", "HTML")
	viper.SetDefault("telegram.timeout", "10s")

	// Logging defaults
	viper.SetDefault("logging.level", "info")
	viper.SetDefault("logging.format", "json")
	viper.SetDefault("logging.output", "stdout")
}

// Дефолты пайплайна
const (
	DefaultConcurrency      = 8
	DefaultIntervalCap      = 30
	DefaultWarningThreshold = 3
	DefaultMediaCeilingMB   = 15.0
)

// Дефолты пайплайна (длительности)
var (
	DefaultInterval     = time.Second
	DefaultMuteDuration = time.Hour
)

// applyFallbacks заменяет невалидные значения пайплайна дефолтами // v1.0
func (p *PipelineConfig) applyFallbacks() {
	if p.Concurrency <= 0 {
		p.Concurrency = DefaultConcurrency
	}
	if p.Interval <= 0 {
		p.Interval = DefaultInterval
	}
	if p.IntervalCap <= 0 {
		p.IntervalCap = DefaultIntervalCap
	}
	if p.WarningThreshold <= 0 {
		p.WarningThreshold = DefaultWarningThreshold
	}
	if p.MuteDuration <= 0 {
		p.MuteDuration = DefaultMuteDuration
	}
	if p.MediaCeilingMB <= 0 {
		p.MediaCeilingMB = DefaultMediaCeilingMB
	}
	if p.CounterStore != "memory" && p.CounterStore != "redis" {
		p.CounterStore = "memory"
	}
}

// Validate валидирует конфигурацию // v1.0
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}

	if len(c.NATS.URLs) == 0 {
		return fmt.Errorf("at least one NATS URL is required")
	}

	if c.PostgreSQL.Database == "" {
		return fmt.Errorf("PostgreSQL database name is required")
	}

	if len(c.ClickHouse.Hosts) == 0 {
		return fmt.Errorf("at least one ClickHouse host is required")
	}

	return nil
}

// GetServerAddr возвращает адрес сервера // v1.0
func (c *Config) GetServerAddr() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}

// GetRedisAddr возвращает адрес Redis // v1.0
func (c *Config) GetRedisAddr() string {
	return fmt.Sprintf("%s:%d", c.Redis.Host, c.Redis.Port)
}

// GetPostgreSQLDSN возвращает DSN для PostgreSQL // v1.0
func (c *Config) GetPostgreSQLDSN() string {
	return fmt.Sprintf("host=%s port=%d dbname=%s user=%s password=%s sslmode=%s",
		c.PostgreSQL.Host, c.PostgreSQL.Port, c.PostgreSQL.Database,
		c.PostgreSQL.Username, c.PostgreSQL.Password, c.PostgreSQL.SSLMode)
}
