// internal/moderator/handlers/text.go
package handlers

import (
	"context"

	"github.com/chatguard/chatguard/internal/common/logging"
	"github.com/chatguard/chatguard/internal/models"
)

// TextHandler прогоняет текстовые сообщения через файрвол-правила
type TextHandler struct {
	logger *logging.Logger
	engine RuleEvaluator
}

// NewTextHandler создает обработчик текстовых сообщений // v1.0
func NewTextHandler(logger *logging.Logger, engine RuleEvaluator) *TextHandler {
	return &TextHandler{
		logger: logger,
		engine: engine,
	}
}

// Name возвращает имя обработчика // v1.0
func (h *TextHandler) Name() string { return "text" }

// Matches проверяет наличие непустого текста // v1.0
func (h *TextHandler) Matches(event *models.Event) bool {
	return event.HasText()
}

// Handle оценивает правила; без совпадений остается одна отладочная
// запись // v1.0
func (h *TextHandler) Handle(ctx context.Context, event *models.Event) ([]models.ProcessingAction, error) {
	actions := h.engine.Evaluate(ctx, event)
	if len(actions) == 0 {
		return []models.ProcessingAction{
			models.LogAction{
				Level:   "debug",
				Message: "no firewall rules matched",
				Details: map[string]interface{}{
					"chat_id": event.Chat.ID,
					"user_id": event.SenderID(),
				},
			},
		}, nil
	}
	return actions, nil
}
