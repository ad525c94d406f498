// internal/moderator/dedup.go
package moderator

import (
	"sync"
	"time"
)

// dedupCache запоминает ключи недавно принятых событий. Ключ, виденный
// повторно в пределах ttl, считается дубликатом доставки.
type dedupCache struct {
	mu   sync.Mutex
	keys map[string]time.Time
	ttl  time.Duration
}

// newDedupCache создает кэш дедупликации // v1.0
func newDedupCache(ttl time.Duration) *dedupCache {
	return &dedupCache{
		keys: make(map[string]time.Time),
		ttl:  ttl,
	}
}

// observe регистрирует ключ и возвращает true, если он уже встречался
// в пределах ttl // v1.0
func (d *dedupCache) observe(key string, now time.Time) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	if ts, ok := d.keys[key]; ok && now.Sub(ts) < d.ttl {
		return true
	}

	// Попутно выбрасываем устаревшие ключи
	for k, ts := range d.keys {
		if now.Sub(ts) >= d.ttl {
			delete(d.keys, k)
		}
	}

	d.keys[key] = now
	return false
}

// size возвращает число удерживаемых ключей // v1.0
func (d *dedupCache) size() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.keys)
}
