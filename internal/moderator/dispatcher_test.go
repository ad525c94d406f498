// internal/moderator/dispatcher_test.go
package moderator

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/chatguard/chatguard/internal/common/config"
	"github.com/chatguard/chatguard/internal/common/logging"
	"github.com/chatguard/chatguard/internal/models"
)

// createTestLogger создает logger для тестов
func createTestLogger(t *testing.T) *logging.Logger {
	cfg := logging.Config{
		Level:  "error",
		Format: "json",
		Output: "stdout",
	}
	logger, err := logging.NewLogger(cfg)
	if err != nil {
		t.Fatalf("Failed to create logger: %v", err)
	}
	return logger
}

// countingProcessor считает обработанные события и следит за пиковой
// одновременностью
type countingProcessor struct {
	processed int64
	active    int64
	peak      int64
	delay     time.Duration
	mu        sync.Mutex
}

func (p *countingProcessor) Process(_ context.Context, _ *models.Event) {
	current := atomic.AddInt64(&p.active, 1)
	p.mu.Lock()
	if current > p.peak {
		p.peak = current
	}
	p.mu.Unlock()

	if p.delay > 0 {
		time.Sleep(p.delay)
	}

	atomic.AddInt64(&p.active, -1)
	atomic.AddInt64(&p.processed, 1)
}

func (p *countingProcessor) peakConcurrency() int64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.peak
}

func testPipelineConfig() config.PipelineConfig {
	return config.PipelineConfig{
		Concurrency: 2,
		Interval:    50 * time.Millisecond,
		IntervalCap: 100,
	}
}

func groupEvent(chatID int64) *models.Event {
	return &models.Event{
		TS:   time.Now(),
		Chat: models.Chat{ID: chatID, Type: models.ChatTypeSupergroup},
	}
}

func TestDispatcher_NonGroupEventsDropped(t *testing.T) {
	processor := &countingProcessor{}
	d := NewDispatcher(testPipelineConfig(), createTestLogger(t), processor)

	private := &models.Event{TS: time.Now(), Chat: models.Chat{ID: 1, Type: models.ChatTypePrivate}}
	channel := &models.Event{TS: time.Now(), Chat: models.Chat{ID: 2, Type: models.ChatTypeChannel}}

	if d.Submit(private) {
		t.Error("Private chat event must not be admitted")
	}
	if d.Submit(channel) {
		t.Error("Channel event must not be admitted")
	}
	if d.QueueLen() != 0 {
		t.Errorf("Queue should stay empty, got %d", d.QueueLen())
	}
}

func TestDispatcher_ProcessesGroupEvents(t *testing.T) {
	processor := &countingProcessor{}
	d := NewDispatcher(testPipelineConfig(), createTestLogger(t), processor)

	ctx := context.Background()
	d.Start(ctx)

	for i := 0; i < 10; i++ {
		if !d.Submit(groupEvent(int64(100 + i))) {
			t.Fatalf("Group event %d not admitted", i)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := d.Shutdown(shutdownCtx); err != nil {
		t.Fatalf("Shutdown failed: %v", err)
	}

	if got := atomic.LoadInt64(&processor.processed); got != 10 {
		t.Errorf("Expected 10 processed events, got %d", got)
	}
}

func TestDispatcher_ConcurrencyBound(t *testing.T) {
	processor := &countingProcessor{delay: 20 * time.Millisecond}
	cfg := testPipelineConfig()
	cfg.Concurrency = 2
	d := NewDispatcher(cfg, createTestLogger(t), processor)

	ctx := context.Background()
	d.Start(ctx)

	for i := 0; i < 12; i++ {
		d.Submit(groupEvent(int64(100 + i)))
	}

	shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := d.Shutdown(shutdownCtx); err != nil {
		t.Fatalf("Shutdown failed: %v", err)
	}

	if peak := processor.peakConcurrency(); peak > 2 {
		t.Errorf("Concurrency bound violated: peak %d", peak)
	}
}

func TestDispatcher_RateWindow(t *testing.T) {
	processor := &countingProcessor{}
	cfg := config.PipelineConfig{
		Concurrency: 8,
		Interval:    time.Hour, // пополнение не успеет за время теста
		IntervalCap: 3,
	}
	d := NewDispatcher(cfg, createTestLogger(t), processor)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	d.Start(ctx)

	for i := 0; i < 10; i++ {
		d.Submit(groupEvent(int64(100 + i)))
	}

	// Даем насосу выдать все доступные токены
	time.Sleep(200 * time.Millisecond)

	if got := atomic.LoadInt64(&processor.processed); got != 3 {
		t.Errorf("Only interval_cap launches should happen per window, got %d", got)
	}
	cancel()
}

func TestDispatcher_SubmitAfterShutdown(t *testing.T) {
	processor := &countingProcessor{}
	d := NewDispatcher(testPipelineConfig(), createTestLogger(t), processor)

	ctx := context.Background()
	d.Start(ctx)

	shutdownCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := d.Shutdown(shutdownCtx); err != nil {
		t.Fatalf("Shutdown failed: %v", err)
	}

	if d.Submit(groupEvent(100)) {
		t.Error("Submit after shutdown must be rejected")
	}
}

func TestDispatcher_ShutdownDrainsQueue(t *testing.T) {
	processor := &countingProcessor{delay: 5 * time.Millisecond}
	d := NewDispatcher(testPipelineConfig(), createTestLogger(t), processor)

	ctx := context.Background()
	d.Start(ctx)

	for i := 0; i < 20; i++ {
		d.Submit(groupEvent(int64(100 + i)))
	}

	shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := d.Shutdown(shutdownCtx); err != nil {
		t.Fatalf("Shutdown failed: %v", err)
	}

	if got := atomic.LoadInt64(&processor.processed); got != 20 {
		t.Errorf("Shutdown should drain the queue, processed %d of 20", got)
	}
}
