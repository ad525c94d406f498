// internal/moderator/handlers/membership.go
package handlers

import (
	"context"
	"fmt"
	"html"
	"strings"

	"github.com/chatguard/chatguard/internal/common/logging"
	"github.com/chatguard/chatguard/internal/models"
)

// MembershipSink принимает записи об изменении состава чата.
// Вызовы best-effort: ошибка логируется и глотается.
type MembershipSink interface {
	RecordMembershipEvent(ctx context.Context, record models.MembershipRecord) error
}

// MembershipHandler обрабатывает вход и выход участников
type MembershipHandler struct {
	logger *logging.Logger
	sink   MembershipSink
}

// NewMembershipHandler создает обработчик изменений состава // v1.0
func NewMembershipHandler(logger *logging.Logger, sink MembershipSink) *MembershipHandler {
	return &MembershipHandler{
		logger: logger,
		sink:   sink,
	}
}

// Name возвращает имя обработчика // v1.0
func (h *MembershipHandler) Name() string { return "membership" }

// Matches проверяет наличие изменения состава // v1.0
func (h *MembershipHandler) Matches(event *models.Event) bool {
	return event.HasMembershipDelta()
}

// Handle приветствует вошедших и записывает аудит по вошедшим и
// вышедшим // v1.0
func (h *MembershipHandler) Handle(ctx context.Context, event *models.Event) ([]models.ProcessingAction, error) {
	var actions []models.ProcessingAction

	if len(event.Membership.Joined) > 0 {
		actions = append(actions, models.SendMessageAction{
			Text:      welcomeText(event.Membership.Joined),
			ParseMode: "HTML",
		})

		for _, user := range event.Membership.Joined {
			h.record(ctx, event.Chat.ID, user, models.MembershipJoin)
		}
	}

	for _, user := range event.Membership.Left {
		actions = append(actions, models.LogAction{
			Level:   "info",
			Message: "member left chat",
			Details: map[string]interface{}{
				"chat_id": event.Chat.ID,
				"user_id": user.ID,
			},
		})
		h.record(ctx, event.Chat.ID, user, models.MembershipLeave)
	}

	return actions, nil
}

// record пишет запись в аудит, проглатывая ошибку // v1.0
func (h *MembershipHandler) record(ctx context.Context, chatID int64, user models.User, eventType string) {
	record := models.MembershipRecord{
		ChatID:    chatID,
		UserID:    user.ID,
		Username:  user.Username,
		EventType: eventType,
	}
	if err := h.sink.RecordMembershipEvent(ctx, record); err != nil {
		h.logger.WithUser(chatID, user.ID).WithError(err).Error("Failed to record membership event")
	}
}

// welcomeText формирует приветствие с экранированными именами // v1.0
func welcomeText(joined []models.User) string {
	names := make([]string, 0, len(joined))
	for _, user := range joined {
		name := user.DisplayName
		if name == "" {
			name = user.Username
		}
		if name == "" {
			name = fmt.Sprintf("id%d", user.ID)
		}
		names = append(names, html.EscapeString(name))
	}

	if len(names) == 1 {
		return fmt.Sprintf("Добро пожаловать, %s! Ознакомьтесь с правилами чата.", names[0])
	}
	return fmt.Sprintf("Добро пожаловать, %s! Ознакомьтесь с правилами чата.", strings.Join(names, ", "))
}
