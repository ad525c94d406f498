// internal/common/ch/client.go
package ch

import (
	"context"
	"fmt"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2"
	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"
)

// Client представляет клиент ClickHouse
type Client struct {
	conn   clickhouse.Conn
	config Config
}

// Config представляет конфигурацию ClickHouse
type Config struct {
	Hosts    []string      `yaml:"hosts"`
	Database string        `yaml:"database"`
	Username string        `yaml:"username"`
	Password string        `yaml:"password"`
	Port     int           `yaml:"port"`
	Secure   bool          `yaml:"secure"`
	Compress bool          `yaml:"compress"`
	Timeout  time.Duration `yaml:"timeout"`
}

// NewClient создает новый клиент ClickHouse // v1.0
func NewClient(config Config) (*Client, error) {
	opts := &clickhouse.Options{
		Addr: []string{fmt.Sprintf("%s:%d", config.Hosts[0], config.Port)},
		Auth: clickhouse.Auth{
			Database: config.Database,
			Username: config.Username,
			Password: config.Password,
		},
		Settings: clickhouse.Settings{
			"max_execution_time": 60,
		},
		DialTimeout: config.Timeout,
	}

	if config.Compress {
		opts.Compression = &clickhouse.Compression{
			Method: clickhouse.CompressionLZ4,
		}
	}

	if config.Secure {
		opts.Settings["secure"] = true
	}

	conn, err := clickhouse.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to ClickHouse: %w", err)
	}

	// Проверяем соединение
	if err := conn.Ping(context.Background()); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to ping ClickHouse: %w", err)
	}

	return &Client{
		conn:   conn,
		config: config,
	}, nil
}

// Close закрывает соединение с ClickHouse // v1.0
func (c *Client) Close() error {
	if c.conn != nil {
		return c.conn.Close()
	}
	return nil
}

// Exec выполняет запрос без результата // v1.0
func (c *Client) Exec(ctx context.Context, query string, args ...interface{}) error {
	return c.conn.Exec(ctx, query, args...)
}

// Query выполняет запрос с результатом // v1.0
func (c *Client) Query(ctx context.Context, query string, args ...interface{}) (driver.Rows, error) {
	return c.conn.Query(ctx, query, args...)
}

// AsyncInsert выполняет асинхронную вставку, не дожидаясь подтверждения.
// Подходит для best-effort аудита // v1.0
func (c *Client) AsyncInsert(ctx context.Context, query string, args ...interface{}) error {
	return c.conn.AsyncInsert(ctx, query, false, args...)
}
