// internal/moderator/firewall/redis.go
package firewall

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisCounterStore реализует CounterStore поверх Redis sorted set.
// Score и member — наносекундный таймстамп нарушения. Используется когда
// несколько инстансов модератора делят общие счетчики.
type RedisCounterStore struct {
	client    *redis.Client
	keyPrefix string
}

// RedisCounterConfig конфигурация Redis CounterStore
type RedisCounterConfig struct {
	Addr      string
	Password  string
	DB        int
	KeyPrefix string
	Timeout   time.Duration
}

// NewRedisCounterStore создает новый Redis CounterStore // v1.0
func NewRedisCounterStore(config RedisCounterConfig) (*RedisCounterStore, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         config.Addr,
		Password:     config.Password,
		DB:           config.DB,
		DialTimeout:  config.Timeout,
		ReadTimeout:  config.Timeout,
		WriteTimeout: config.Timeout,
	})

	ctx, cancel := context.WithTimeout(context.Background(), config.Timeout)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to ping redis: %w", err)
	}

	prefix := config.KeyPrefix
	if prefix == "" {
		prefix = "chatguard"
	}

	return &RedisCounterStore{
		client:    client,
		keyPrefix: prefix,
	}, nil
}

// Close закрывает соединение с Redis // v1.0
func (r *RedisCounterStore) Close() error {
	return r.client.Close()
}

// Record добавляет нарушение в окно // v1.0
func (r *RedisCounterStore) Record(ctx context.Context, key CounterKey, ts time.Time, maxWindow, resetAfter time.Duration) ([]time.Time, error) {
	redisKey := r.makeKey(key)

	// Ленивый распад: если последнее нарушение старше resetAfter, чистим
	if resetAfter > 0 {
		last, err := r.client.ZRevRangeWithScores(ctx, redisKey, 0, 0).Result()
		if err != nil && err != redis.Nil {
			return nil, fmt.Errorf("failed to read counter %s: %w", redisKey, err)
		}
		if len(last) > 0 {
			lastTS := time.Unix(0, int64(last[0].Score))
			if ts.Sub(lastTS) >= resetAfter {
				if err := r.client.Del(ctx, redisKey).Err(); err != nil {
					return nil, fmt.Errorf("failed to reset counter %s: %w", redisKey, err)
				}
			}
		}
	}

	nano := ts.UnixNano()
	pipe := r.client.TxPipeline()
	pipe.ZAdd(ctx, redisKey, redis.Z{Score: float64(nano), Member: strconv.FormatInt(nano, 10)})
	pipe.ZRemRangeByScore(ctx, redisKey, "-inf", strconv.FormatInt(ts.Add(-maxWindow).UnixNano(), 10))
	if resetAfter > 0 {
		pipe.Expire(ctx, redisKey, resetAfter)
	} else {
		pipe.Expire(ctx, redisKey, maxWindow)
	}
	rangeCmd := pipe.ZRangeWithScores(ctx, redisKey, 0, -1)

	if _, err := pipe.Exec(ctx); err != nil {
		return nil, fmt.Errorf("failed to record violation %s: %w", redisKey, err)
	}

	members, err := rangeCmd.Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read violations %s: %w", redisKey, err)
	}

	stamps := make([]time.Time, 0, len(members))
	for _, m := range members {
		stamps = append(stamps, time.Unix(0, int64(m.Score)))
	}

	return stamps, nil
}

// Reset обнуляет счетчик // v1.0
func (r *RedisCounterStore) Reset(ctx context.Context, key CounterKey) error {
	if err := r.client.Del(ctx, r.makeKey(key)).Err(); err != nil {
		return fmt.Errorf("failed to reset counter: %w", err)
	}
	return nil
}

// makeKey создает Redis ключ счетчика // v1.0
func (r *RedisCounterStore) makeKey(key CounterKey) string {
	return fmt.Sprintf("%s:violations:%s", r.keyPrefix, key.String())
}
