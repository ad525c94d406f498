// internal/moderator/handlers/service.go
package handlers

import (
	"context"
	"fmt"
	"html"

	"github.com/chatguard/chatguard/internal/common/logging"
	"github.com/chatguard/chatguard/internal/models"
)

// ServiceHandler обрабатывает сервисные события чата: закрепления,
// смену названия и фото, апгрейд группы
type ServiceHandler struct {
	logger *logging.Logger
}

// NewServiceHandler создает обработчик сервисных событий // v1.0
func NewServiceHandler(logger *logging.Logger) *ServiceHandler {
	return &ServiceHandler{logger: logger}
}

// Name возвращает имя обработчика // v1.0
func (h *ServiceHandler) Name() string { return "service" }

// Matches проверяет наличие сервисных флагов // v1.0
func (h *ServiceHandler) Matches(event *models.Event) bool {
	return event.HasServiceFlags()
}

// Handle формирует уведомления по каждому применимому флагу. Название
// чата — недоверенный ввод и экранируется перед вставкой в HTML
// сообщения, это инвариант безопасности, а не стиль // v1.0
func (h *ServiceHandler) Handle(_ context.Context, event *models.Event) ([]models.ProcessingAction, error) {
	var actions []models.ProcessingAction
	s := event.Service

	if s.PinnedMessageID != 0 {
		actions = append(actions,
			models.LogAction{
				Level:   "info",
				Message: "message pinned",
				Details: map[string]interface{}{
					"chat_id":    event.Chat.ID,
					"message_id": s.PinnedMessageID,
				},
			},
			models.SendMessageAction{
				Text:      "Закреплено новое сообщение, просьба ознакомиться.",
				ReplyToID: s.PinnedMessageID,
			},
		)
	}

	if s.TitleChanged {
		actions = append(actions,
			models.LogAction{
				Level:   "info",
				Message: "chat title changed",
				Details: map[string]interface{}{
					"chat_id":   event.Chat.ID,
					"new_title": s.NewTitle,
				},
			},
			models.SendMessageAction{
				Text:      fmt.Sprintf("Название чата изменено на «%s».", html.EscapeString(s.NewTitle)),
				ParseMode: "HTML",
			},
		)
	}

	if s.PhotoRemoved {
		actions = append(actions,
			models.LogAction{
				Level:   "info",
				Message: "chat photo removed",
				Details: map[string]interface{}{"chat_id": event.Chat.ID},
			},
			models.SendMessageAction{
				Text: "Фото чата удалено.",
			},
		)
	} else if s.PhotoChanged {
		actions = append(actions, models.LogAction{
			Level:   "info",
			Message: "chat photo changed",
			Details: map[string]interface{}{"chat_id": event.Chat.ID},
		})
	}

	if s.GroupUpgraded {
		actions = append(actions, models.LogAction{
			Level:   "info",
			Message: "group upgraded to supergroup",
			Details: map[string]interface{}{"chat_id": event.Chat.ID},
		})
	}

	return actions, nil
}
