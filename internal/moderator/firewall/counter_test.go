// internal/moderator/firewall/counter_test.go
package firewall

import (
	"context"
	"testing"
	"time"
)

func TestMemoryCounterStore_Record(t *testing.T) {
	store := NewMemoryCounterStore()
	key := CounterKey{ChatID: 1, UserID: 2, RuleID: "r1"}
	ctx := context.Background()
	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	stamps, err := store.Record(ctx, key, base, 10*time.Minute, 0)
	if err != nil {
		t.Fatalf("Record failed: %v", err)
	}
	if len(stamps) != 1 {
		t.Errorf("Expected 1 stamp, got %d", len(stamps))
	}

	stamps, err = store.Record(ctx, key, base.Add(time.Minute), 10*time.Minute, 0)
	if err != nil {
		t.Fatalf("Record failed: %v", err)
	}
	if len(stamps) != 2 {
		t.Errorf("Expected 2 stamps, got %d", len(stamps))
	}
}

func TestMemoryCounterStore_PrunesOldStamps(t *testing.T) {
	store := NewMemoryCounterStore()
	key := CounterKey{ChatID: 1, UserID: 2, RuleID: "r1"}
	ctx := context.Background()
	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	if _, err := store.Record(ctx, key, base, 5*time.Minute, 0); err != nil {
		t.Fatalf("Record failed: %v", err)
	}

	// Второе нарушение спустя 6 минут: первое выпадает из окна
	stamps, err := store.Record(ctx, key, base.Add(6*time.Minute), 5*time.Minute, 0)
	if err != nil {
		t.Fatalf("Record failed: %v", err)
	}
	if len(stamps) != 1 {
		t.Errorf("Expected 1 stamp after pruning, got %d", len(stamps))
	}
}

func TestMemoryCounterStore_ResetAfterDecay(t *testing.T) {
	store := NewMemoryCounterStore()
	key := CounterKey{ChatID: 1, UserID: 2, RuleID: "r1"}
	ctx := context.Background()
	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	if _, err := store.Record(ctx, key, base, time.Hour, 10*time.Minute); err != nil {
		t.Fatalf("Record failed: %v", err)
	}
	if _, err := store.Record(ctx, key, base.Add(time.Minute), time.Hour, 10*time.Minute); err != nil {
		t.Fatalf("Record failed: %v", err)
	}

	// Тишина дольше resetAfter: счетчик начинается заново
	stamps, err := store.Record(ctx, key, base.Add(20*time.Minute), time.Hour, 10*time.Minute)
	if err != nil {
		t.Fatalf("Record failed: %v", err)
	}
	if len(stamps) != 1 {
		t.Errorf("Expected counter to decay to 1 stamp, got %d", len(stamps))
	}
}

func TestMemoryCounterStore_Reset(t *testing.T) {
	store := NewMemoryCounterStore()
	key := CounterKey{ChatID: 1, UserID: 2, RuleID: "r1"}
	ctx := context.Background()

	if _, err := store.Record(ctx, key, time.Now(), time.Hour, 0); err != nil {
		t.Fatalf("Record failed: %v", err)
	}
	if store.Len() != 1 {
		t.Errorf("Expected 1 counter, got %d", store.Len())
	}

	if err := store.Reset(ctx, key); err != nil {
		t.Fatalf("Reset failed: %v", err)
	}
	if store.Len() != 0 {
		t.Errorf("Expected 0 counters after reset, got %d", store.Len())
	}
}

func TestMemoryCounterStore_ReturnsCopy(t *testing.T) {
	store := NewMemoryCounterStore()
	key := CounterKey{ChatID: 1, UserID: 2, RuleID: "r1"}
	ctx := context.Background()
	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	stamps, err := store.Record(ctx, key, base, time.Hour, 0)
	if err != nil {
		t.Fatalf("Record failed: %v", err)
	}

	// Изменение возвращенного слайса не должно влиять на хранилище
	stamps[0] = base.Add(-2 * time.Hour)

	stamps, err = store.Record(ctx, key, base.Add(time.Minute), time.Hour, 0)
	if err != nil {
		t.Fatalf("Record failed: %v", err)
	}
	if len(stamps) != 2 {
		t.Errorf("Expected 2 stamps, got %d", len(stamps))
	}
	if !stamps[0].Equal(base) {
		t.Errorf("Stored stamp was mutated: %v", stamps[0])
	}
}

func TestCountWithin(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	stamps := []time.Time{
		now.Add(-15 * time.Minute),
		now.Add(-5 * time.Minute),
		now.Add(-1 * time.Minute),
		now,
	}

	if got := CountWithin(stamps, now, 10*time.Minute); got != 3 {
		t.Errorf("Expected 3 stamps within 10m, got %d", got)
	}
	if got := CountWithin(stamps, now, time.Hour); got != 4 {
		t.Errorf("Expected 4 stamps within 1h, got %d", got)
	}
	if got := CountWithin(stamps, now, 30*time.Second); got != 1 {
		t.Errorf("Expected 1 stamp within 30s, got %d", got)
	}
}
