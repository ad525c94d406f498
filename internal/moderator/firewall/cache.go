// internal/moderator/firewall/cache.go
package firewall

import (
	"sync"

	"github.com/chatguard/chatguard/internal/models"
)

// ruleCache хранит слитый и отсортированный набор правил по чатам.
// Запись заменяет значение целиком: читатель видит либо старый список,
// либо полностью новый, никогда частичный. Записи не истекают сами —
// только явная инвалидация после правки правил.
type ruleCache struct {
	entries map[int64][]*models.FirewallRuleConfig
	mu      sync.RWMutex
}

// newRuleCache создает новый кэш правил // v1.0
func newRuleCache() *ruleCache {
	return &ruleCache{
		entries: make(map[int64][]*models.FirewallRuleConfig),
	}
}

// get возвращает набор правил чата // v1.0
func (c *ruleCache) get(chatID int64) ([]*models.FirewallRuleConfig, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	rules, ok := c.entries[chatID]
	return rules, ok
}

// put сохраняет набор правил чата // v1.0
func (c *ruleCache) put(chatID int64, rules []*models.FirewallRuleConfig) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[chatID] = rules
}

// invalidate удаляет запись чата // v1.0
func (c *ruleCache) invalidate(chatID int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, chatID)
}

// invalidateAll очищает кэш целиком (правка глобального правила) // v1.0
func (c *ruleCache) invalidateAll() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[int64][]*models.FirewallRuleConfig)
}

// size возвращает количество закэшированных чатов // v1.0
func (c *ruleCache) size() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}
