// internal/moderator/firewall/counter.go
package firewall

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// CounterKey идентифицирует счетчик нарушений: чат, участник, правило
type CounterKey struct {
	ChatID int64
	UserID int64
	RuleID string
}

// String возвращает строковое представление ключа // v1.0
func (k CounterKey) String() string {
	return fmt.Sprintf("%d:%d:%s", k.ChatID, k.UserID, k.RuleID)
}

// CounterStore хранит скользящие окна таймстампов нарушений.
// Счетчиком владеет исключительно движок правил; реализация обязана
// выдерживать конкурентные Record/Reset из нескольких воркеров.
type CounterStore interface {
	// Record добавляет нарушение и возвращает актуальные таймстампы
	// в пределах maxWindow. Если с последнего нарушения прошло больше
	// resetAfter (когда resetAfter > 0), счетчик предварительно
	// обнуляется — ленивый распад, без фоновых таймеров.
	Record(ctx context.Context, key CounterKey, ts time.Time, maxWindow, resetAfter time.Duration) ([]time.Time, error)

	// Reset явно обнуляет счетчик (административный сброс)
	Reset(ctx context.Context, key CounterKey) error
}

// MemoryCounterStore реализует CounterStore в памяти
type MemoryCounterStore struct {
	violations map[CounterKey][]time.Time
	mu         sync.Mutex
}

// NewMemoryCounterStore создает новый in-memory CounterStore // v1.0
func NewMemoryCounterStore() *MemoryCounterStore {
	return &MemoryCounterStore{
		violations: make(map[CounterKey][]time.Time),
	}
}

// Record добавляет нарушение в окно // v1.0
func (m *MemoryCounterStore) Record(_ context.Context, key CounterKey, ts time.Time, maxWindow, resetAfter time.Duration) ([]time.Time, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	stamps := m.violations[key]

	// Ленивый распад: счетчик обнуляется если тишина дольше resetAfter
	if resetAfter > 0 && len(stamps) > 0 {
		last := stamps[len(stamps)-1]
		if ts.Sub(last) >= resetAfter {
			stamps = stamps[:0]
		}
	}

	stamps = append(stamps, ts)

	// Отбрасываем таймстампы за пределами самого широкого окна
	cutoff := ts.Add(-maxWindow)
	pruned := stamps[:0]
	for _, s := range stamps {
		if !s.Before(cutoff) {
			pruned = append(pruned, s)
		}
	}

	m.violations[key] = pruned

	// Возвращаем копию: вызывающий не должен видеть внутренний слайс
	out := make([]time.Time, len(pruned))
	copy(out, pruned)
	return out, nil
}

// Reset обнуляет счетчик // v1.0
func (m *MemoryCounterStore) Reset(_ context.Context, key CounterKey) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.violations, key)
	return nil
}

// Len возвращает количество активных счетчиков // v1.0
func (m *MemoryCounterStore) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.violations)
}

// CountWithin возвращает количество таймстампов внутри окна,
// отсчитанного от now // v1.0
func CountWithin(stamps []time.Time, now time.Time, window time.Duration) int {
	cutoff := now.Add(-window)
	count := 0
	for _, s := range stamps {
		if !s.Before(cutoff) {
			count++
		}
	}
	return count
}
