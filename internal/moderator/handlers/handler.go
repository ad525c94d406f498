// internal/moderator/handlers/handler.go
package handlers

import (
	"context"

	"github.com/chatguard/chatguard/internal/common/logging"
	"github.com/chatguard/chatguard/internal/models"
)

// Handler представляет один обработчик цепочки. Matches — чистый
// предикат без побочных эффектов; Handle может ходить во внешние
// сервисы, но ожидаемые несовпадения возвращает пустым списком
// действий, а не ошибкой.
type Handler interface {
	Name() string
	Matches(event *models.Event) bool
	Handle(ctx context.Context, event *models.Event) ([]models.ProcessingAction, error)
}

// Executor выполняет действия пайплайна. Никогда не возвращает ошибку
// наверх: каждая ветка ловит и логирует свою.
type Executor interface {
	Execute(ctx context.Context, chatID int64, action models.ProcessingAction)
}

// Chain представляет цепочку обработчиков с фиксированным порядком:
// membership → service → media → text. Порядок — контракт, а не деталь.
type Chain struct {
	logger   *logging.Logger
	executor Executor
	handlers []Handler
}

// NewChain создает цепочку обработчиков // v1.0
func NewChain(logger *logging.Logger, executor Executor, handlers ...Handler) *Chain {
	return &Chain{
		logger:   logger,
		executor: executor,
		handlers: handlers,
	}
}

// Process прогоняет событие через цепочку. Действия каждого обработчика
// выполняются сразу, до перехода к следующему. Паника или ошибка одного
// обработчика логируется и не мешает остальным: сломанный медиа-фильтр
// не должен блокировать приветствия // v1.0
func (c *Chain) Process(ctx context.Context, event *models.Event) {
	for _, handler := range c.handlers {
		if !handler.Matches(event) {
			continue
		}

		actions, err := c.runHandler(ctx, handler, event)
		if err != nil {
			c.logger.WithHandler(handler.Name(), event.Chat.ID).WithError(err).Error("Handler failed")
			continue
		}

		for _, action := range actions {
			c.executor.Execute(ctx, event.Chat.ID, action)
		}
	}
}

// runHandler выполняет один обработчик, перехватывая панику // v1.0
func (c *Chain) runHandler(ctx context.Context, handler Handler, event *models.Event) (actions []models.ProcessingAction, err error) {
	defer func() {
		if r := recover(); r != nil {
			c.logger.WithHandler(handler.Name(), event.Chat.ID).Errorf("Handler panicked: %v", r)
			actions = nil
			err = nil
		}
	}()

	return handler.Handle(ctx, event)
}

// Handlers возвращает обработчики цепочки в их порядке // v1.0
func (c *Chain) Handlers() []Handler {
	return c.handlers
}
