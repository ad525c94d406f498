// internal/moderator/handlers/media.go
package handlers

import (
	"context"
	"fmt"

	"github.com/chatguard/chatguard/internal/common/logging"
	"github.com/chatguard/chatguard/internal/models"
)

// RuleEvaluator оценивает файрвол-правила против события
type RuleEvaluator interface {
	Evaluate(ctx context.Context, event *models.Event) []models.ProcessingAction
}

// MediaHandler проверяет медиа-вложения: потолок размера, затем
// файрвол-правила
type MediaHandler struct {
	logger    *logging.Logger
	engine    RuleEvaluator
	ceilingMB float64
}

// NewMediaHandler создает обработчик медиа-сообщений // v1.0
func NewMediaHandler(logger *logging.Logger, engine RuleEvaluator, ceilingMB float64) *MediaHandler {
	return &MediaHandler{
		logger:    logger,
		engine:    engine,
		ceilingMB: ceilingMB,
	}
}

// Name возвращает имя обработчика // v1.0
func (h *MediaHandler) Name() string { return "media" }

// Matches проверяет наличие медиа-вложений // v1.0
func (h *MediaHandler) Matches(event *models.Event) bool {
	return event.HasMedia()
}

// Handle проверяет потолок размера и прогоняет правила. Порядок действий
// при превышении фиксирован: удаление, предупреждение, запись в журнал.
// Правила оцениваются всегда, даже если потолок превышен // v1.0
func (h *MediaHandler) Handle(ctx context.Context, event *models.Event) ([]models.ProcessingAction, error) {
	var actions []models.ProcessingAction

	sizeMB := event.LargestMediaSizeMB()
	if h.ceilingMB > 0 && sizeMB > h.ceilingMB {
		actions = append(actions,
			models.DeleteMessageAction{MessageID: event.MessageID()},
			models.WarnMemberAction{
				UserID:   event.SenderID(),
				Username: senderName(event),
				Severity: models.SeverityMedium,
				Reason:   fmt.Sprintf("вложение %.1f МБ превышает лимит %.1f МБ", sizeMB, h.ceilingMB),
			},
			models.LogAction{
				Level:   "warn",
				Message: "oversize media deleted",
				Details: map[string]interface{}{
					"chat_id":    event.Chat.ID,
					"user_id":    event.SenderID(),
					"message_id": event.MessageID(),
					"size_mb":    sizeMB,
					"ceiling_mb": h.ceilingMB,
				},
			},
		)
	}

	ruleActions := h.engine.Evaluate(ctx, event)
	actions = append(actions, ruleActions...)

	if len(actions) == 0 {
		actions = append(actions, models.LogAction{
			Level:   "debug",
			Message: "media within limits, no rules matched",
			Details: map[string]interface{}{
				"chat_id": event.Chat.ID,
				"size_mb": sizeMB,
			},
		})
	}

	return actions, nil
}

// senderName возвращает отображаемое имя отправителя // v1.0
func senderName(event *models.Event) string {
	if event.Sender == nil {
		return ""
	}
	if event.Sender.DisplayName != "" {
		return event.Sender.DisplayName
	}
	return event.Sender.Username
}
