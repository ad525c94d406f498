// internal/moderator/dispatcher.go
package moderator

import (
	"context"
	"sync"
	"time"

	"github.com/chatguard/chatguard/internal/common/config"
	"github.com/chatguard/chatguard/internal/common/logging"
	"github.com/chatguard/chatguard/internal/models"
)

// Processor прогоняет событие через цепочку обработчиков
type Processor interface {
	Process(ctx context.Context, event *models.Event)
}

// Dispatcher принимает события и раздает их воркерам с ограничением
// одновременности и скоростным окном: не более IntervalCap запусков за
// Interval. Очередь не ограничена; при устойчивом превышении скорости
// поступления она растет, мониторится через QueueLen.
type Dispatcher struct {
	config    config.PipelineConfig
	logger    *logging.Logger
	processor Processor

	mu     sync.Mutex
	cond   *sync.Cond
	queue  []*models.Event
	closed bool

	sem    chan struct{}
	tokens chan struct{}

	inflight sync.WaitGroup
	pumpDone chan struct{}
	stopFill chan struct{}
}

// NewDispatcher создает диспетчер пайплайна // v1.0
func NewDispatcher(cfg config.PipelineConfig, logger *logging.Logger, processor Processor) *Dispatcher {
	d := &Dispatcher{
		config:    cfg,
		logger:    logger,
		processor: processor,
		sem:       make(chan struct{}, cfg.Concurrency),
		tokens:    make(chan struct{}, cfg.IntervalCap),
		pumpDone:  make(chan struct{}),
		stopFill:  make(chan struct{}),
	}
	d.cond = sync.NewCond(&d.mu)
	return d
}

// Start запускает пополнение скоростного окна и насос очереди // v1.0
func (d *Dispatcher) Start(ctx context.Context) {
	d.refillTokens()
	go d.fillLoop()
	go d.pump(ctx)

	d.logger.Logger.WithField("concurrency", d.config.Concurrency).
		WithField("interval", d.config.Interval.String()).
		WithField("interval_cap", d.config.IntervalCap).
		Info("Dispatcher started")
}

// Submit ставит событие в очередь. События не из групповых чатов
// отбрасываются до допуска: личные переписки и каналы пайплайн не
// модерирует. Возвращает false, если событие не принято // v1.0
func (d *Dispatcher) Submit(event *models.Event) bool {
	if !event.IsGroupChat() {
		d.logger.WithChat(event.Chat.ID).Debug("Non-group event dropped")
		return false
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return false
	}
	d.queue = append(d.queue, event)
	d.cond.Signal()
	return true
}

// QueueLen возвращает текущую длину очереди // v1.0
func (d *Dispatcher) QueueLen() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.queue)
}

// Shutdown закрывает прием, дожидается обработки очереди и завершения
// запущенных воркеров, либо истечения контекста // v1.0
func (d *Dispatcher) Shutdown(ctx context.Context) error {
	d.mu.Lock()
	d.closed = true
	d.cond.Broadcast()
	d.mu.Unlock()

	done := make(chan struct{})
	go func() {
		// Пополнение окна останавливаем только после слива очереди:
		// дренаж тоже подчиняется скоростному окну
		<-d.pumpDone
		close(d.stopFill)
		d.inflight.Wait()
		close(done)
	}()

	select {
	case <-done:
		d.logger.Logger.Info("Dispatcher stopped")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// pump выдает события очереди воркерам, удерживая токен окна и слот
// одновременности перед каждым запуском // v1.0
func (d *Dispatcher) pump(ctx context.Context) {
	defer close(d.pumpDone)

	for {
		event, ok := d.next()
		if !ok {
			return
		}

		select {
		case <-d.tokens:
		case <-ctx.Done():
			return
		}

		select {
		case d.sem <- struct{}{}:
		case <-ctx.Done():
			return
		}

		d.inflight.Add(1)
		go func(event *models.Event) {
			defer d.inflight.Done()
			defer func() { <-d.sem }()
			d.processor.Process(ctx, event)
		}(event)
	}
}

// next блокируется до появления события или закрытия с пустой очередью // v1.0
func (d *Dispatcher) next() (*models.Event, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()

	for len(d.queue) == 0 && !d.closed {
		d.cond.Wait()
	}
	if len(d.queue) == 0 {
		return nil, false
	}

	event := d.queue[0]
	d.queue = d.queue[1:]
	return event, true
}

// fillLoop пополняет окно токенов каждый Interval // v1.0
func (d *Dispatcher) fillLoop() {
	ticker := time.NewTicker(d.config.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			d.refillTokens()
		case <-d.stopFill:
			return
		}
	}
}

// refillTokens доводит окно до IntervalCap токенов // v1.0
func (d *Dispatcher) refillTokens() {
	for {
		select {
		case d.tokens <- struct{}{}:
		default:
			return
		}
	}
}
