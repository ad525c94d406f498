// internal/common/nats/client.go
package nats

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nkeys"
)

// Субъекты шины событий
const (
	SubjectChatEvents      = "chat.events"
	SubjectRuleInvalidate  = "rules.invalidate"
	SubjectModerationTaken = "moderation.actions"
)

// Client представляет клиент NATS
type Client struct {
	conn     *nats.Conn
	js       nats.JetStreamContext
	config   Config
	subjects map[string]*nats.Subscription
}

// Config представляет конфигурацию NATS
type Config struct {
	URLs        []string      `yaml:"urls"`
	ClientID    string        `yaml:"client_id"`
	Credentials string        `yaml:"credentials"`
	JWT         string        `yaml:"jwt"`
	NKeySeed    string        `yaml:"nkey_seed"`
	Timeout     time.Duration `yaml:"timeout"`
}

// NewClient создает новый клиент NATS // v1.0
func NewClient(config Config) (*Client, error) {
	opts := []nats.Option{
		nats.Name(config.ClientID),
		nats.Timeout(config.Timeout),
		nats.ReconnectWait(1 * time.Second),
		nats.MaxReconnects(-1),
	}

	// Добавляем аутентификацию если указана
	if config.Credentials != "" {
		opts = append(opts, nats.UserCredentials(config.Credentials))
	}

	if config.JWT != "" && config.NKeySeed != "" {
		// Проверяем seed до подключения, чтобы не ловить ошибку в рантайме
		kp, err := nkeys.FromSeed([]byte(config.NKeySeed))
		if err != nil {
			return nil, fmt.Errorf("invalid nkey seed: %w", err)
		}
		kp.Wipe()
		opts = append(opts, nats.UserJWTAndSeed(config.JWT, config.NKeySeed))
	}

	// Подключаемся к NATS
	conn, err := nats.Connect(config.URLs[0], opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}

	// Создаем JetStream контекст
	js, err := conn.JetStream()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to create JetStream context: %w", err)
	}

	// Создаем потоки если не существуют
	if err := ensureStreams(js); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to ensure streams: %w", err)
	}

	return &Client{
		conn:     conn,
		js:       js,
		config:   config,
		subjects: make(map[string]*nats.Subscription),
	}, nil
}

// ensureStreams создает необходимые потоки // v1.0
func ensureStreams(js nats.JetStreamContext) error {
	streams := []string{
		SubjectChatEvents,
		SubjectRuleInvalidate,
		SubjectModerationTaken,
	}

	for _, streamName := range streams {
		stream, err := js.StreamInfo(streamName)
		if err == nil && stream != nil {
			continue // Поток уже существует
		}

		streamConfig := &nats.StreamConfig{
			Name:      streamName,
			Subjects:  []string{streamName + ".*"},
			Storage:   nats.FileStorage,
			Retention: nats.LimitsPolicy,
			MaxAge:    24 * time.Hour,
			MaxMsgs:   1000000,
		}

		if _, err := js.AddStream(streamConfig); err != nil {
			return fmt.Errorf("failed to create stream %s: %w", streamName, err)
		}
	}

	return nil
}

// Publish публикует сообщение в поток // v1.0
func (c *Client) Publish(subject string, payload interface{}) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal payload: %w", err)
	}

	if _, err := c.js.Publish(subject, data); err != nil {
		return fmt.Errorf("failed to publish to %s: %w", subject, err)
	}

	return nil
}

// Subscribe подписывается на субъект // v1.0
func (c *Client) Subscribe(subject string, handler func(data []byte)) error {
	if _, exists := c.subjects[subject]; exists {
		return fmt.Errorf("already subscribed to %s", subject)
	}

	sub, err := c.conn.Subscribe(subject, func(msg *nats.Msg) {
		handler(msg.Data)
	})
	if err != nil {
		return fmt.Errorf("failed to subscribe to %s: %w", subject, err)
	}

	c.subjects[subject] = sub
	return nil
}

// Unsubscribe отписывается от субъекта // v1.0
func (c *Client) Unsubscribe(subject string) error {
	sub, exists := c.subjects[subject]
	if !exists {
		return fmt.Errorf("not subscribed to %s", subject)
	}

	if err := sub.Unsubscribe(); err != nil {
		return fmt.Errorf("failed to unsubscribe from %s: %w", subject, err)
	}

	delete(c.subjects, subject)
	return nil
}

// Close закрывает соединение с NATS // v1.0
func (c *Client) Close() {
	for subject, sub := range c.subjects {
		_ = sub.Unsubscribe()
		delete(c.subjects, subject)
	}
	if c.conn != nil {
		c.conn.Close()
	}
}

// IsConnected проверяет состояние соединения // v1.0
func (c *Client) IsConnected() bool {
	return c.conn != nil && c.conn.IsConnected()
}
