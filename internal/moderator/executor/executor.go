// internal/moderator/executor/executor.go
package executor

import (
	"context"
	"fmt"
	"html"
	"strings"
	"time"

	"github.com/google/uuid"

	cgerrors "github.com/chatguard/chatguard/internal/common/errors"
	"github.com/chatguard/chatguard/internal/common/logging"
	natsclient "github.com/chatguard/chatguard/internal/common/nats"
	"github.com/chatguard/chatguard/internal/models"
)

// Telegram описывает нужную исполнителю часть Bot API клиента
type Telegram interface {
	SendMessage(ctx context.Context, chatID int64, text string, replyToID int64, parseMode string) error
	DeleteMessage(ctx context.Context, chatID, messageID int64) error
	RestrictMember(ctx context.Context, chatID, userID int64, until time.Time) error
	BanMember(ctx context.Context, chatID, userID int64, until time.Time) error
	KickMember(ctx context.Context, chatID, userID int64) error
}

// ModerationSink принимает записи о выполненных модерационных действиях
type ModerationSink interface {
	RecordModerationAction(ctx context.Context, record models.ModerationRecord) error
}

// RuleAuditSink принимает записи аудита срабатывания правил
type RuleAuditSink interface {
	AppendRuleAudit(ctx context.Context, entry models.RuleAuditEntry) error
}

// ActionBus публикует выполненные модерационные действия в шину для
// внешних потребителей
type ActionBus interface {
	Publish(subject string, payload interface{}) error
}

// Executor выполняет действия пайплайна. Каждое действие изолировано:
// ошибка Telegram или хранилища логируется и не влияет на выполнение
// остальных действий события.
type Executor struct {
	logger     *logging.Logger
	telegram   Telegram
	moderation ModerationSink
	ruleAudit  RuleAuditSink
	bus        ActionBus
}

// NewExecutor создает исполнитель действий. bus может быть nil, тогда
// выполненные действия не публикуются // v1.0
func NewExecutor(logger *logging.Logger, telegram Telegram, moderation ModerationSink, ruleAudit RuleAuditSink, bus ActionBus) *Executor {
	return &Executor{
		logger:     logger,
		telegram:   telegram,
		moderation: moderation,
		ruleAudit:  ruleAudit,
		bus:        bus,
	}
}

// Execute выполняет одно действие. Switch исчерпывающий по вариантам
// ProcessingAction; неизвестный вариант — ошибка программирования и
// логируется как таковая // v1.0
func (e *Executor) Execute(ctx context.Context, chatID int64, action models.ProcessingAction) {
	switch a := action.(type) {
	case models.DeleteMessageAction:
		e.deleteMessage(ctx, chatID, a)
	case models.WarnMemberAction:
		e.warnMember(ctx, chatID, a)
	case models.RestrictMemberAction:
		e.restrictMember(ctx, chatID, a)
	case models.KickMemberAction:
		e.kickMember(ctx, chatID, a)
	case models.BanMemberAction:
		e.banMember(ctx, chatID, a)
	case models.SendMessageAction:
		e.sendMessage(ctx, chatID, a)
	case models.RecordModerationAction:
		e.recordModeration(ctx, chatID, a.Record)
	case models.RecordRuleAuditAction:
		e.recordRuleAudit(ctx, chatID, a.Entry)
	case models.LogAction:
		e.logAction(chatID, a)
	case models.NoopAction:
		// Ничего не делаем
	default:
		e.logger.WithAction(action.ActionType(), chatID).Error("Unknown action type")
	}
}

// deleteMessage удаляет сообщение // v1.0
func (e *Executor) deleteMessage(ctx context.Context, chatID int64, a models.DeleteMessageAction) {
	if err := e.telegram.DeleteMessage(ctx, chatID, a.MessageID); err != nil {
		e.logger.WithAction(a.ActionType(), chatID).WithError(telegramError(err)).Error("Failed to delete message")
		return
	}
	e.audit(ctx, chatID, 0, a.ActionType(), "", fmt.Sprintf("message %d deleted", a.MessageID))
}

// warnMember отправляет предупреждение в чат. Имя участника и причина —
// недоверенный ввод, экранируются перед вставкой в HTML // v1.0
func (e *Executor) warnMember(ctx context.Context, chatID int64, a models.WarnMemberAction) {
	text := warnText(a)
	if err := e.telegram.SendMessage(ctx, chatID, text, 0, "HTML"); err != nil {
		e.logger.WithAction(a.ActionType(), chatID).WithError(telegramError(err)).Error("Failed to send warning")
		return
	}
	e.audit(ctx, chatID, a.UserID, a.ActionType(), a.Reason, fmt.Sprintf("severity %s", a.Severity))
}

// restrictMember ограничивает участника на заданный срок // v1.0
func (e *Executor) restrictMember(ctx context.Context, chatID int64, a models.RestrictMemberAction) {
	until := time.Time{}
	if a.DurationSeconds > 0 {
		until = time.Now().Add(time.Duration(a.DurationSeconds) * time.Second)
	}
	if err := e.telegram.RestrictMember(ctx, chatID, a.UserID, until); err != nil {
		e.logger.WithAction(a.ActionType(), chatID).WithError(telegramError(err)).Error("Failed to restrict member")
		return
	}
	e.audit(ctx, chatID, a.UserID, a.ActionType(), "", fmt.Sprintf("duration %ds", a.DurationSeconds))
}

// kickMember исключает участника без постоянного бана // v1.0
func (e *Executor) kickMember(ctx context.Context, chatID int64, a models.KickMemberAction) {
	if err := e.telegram.KickMember(ctx, chatID, a.UserID); err != nil {
		e.logger.WithAction(a.ActionType(), chatID).WithError(telegramError(err)).Error("Failed to kick member")
		return
	}
	e.audit(ctx, chatID, a.UserID, a.ActionType(), "", "")
}

// banMember банит участника // v1.0
func (e *Executor) banMember(ctx context.Context, chatID int64, a models.BanMemberAction) {
	until := time.Time{}
	if a.DurationSeconds > 0 {
		until = time.Now().Add(time.Duration(a.DurationSeconds) * time.Second)
	}
	if err := e.telegram.BanMember(ctx, chatID, a.UserID, until); err != nil {
		e.logger.WithAction(a.ActionType(), chatID).WithError(telegramError(err)).Error("Failed to ban member")
		return
	}
	e.audit(ctx, chatID, a.UserID, a.ActionType(), "", fmt.Sprintf("duration %ds", a.DurationSeconds))
}

// sendMessage отправляет сообщение в чат // v1.0
func (e *Executor) sendMessage(ctx context.Context, chatID int64, a models.SendMessageAction) {
	if err := e.telegram.SendMessage(ctx, chatID, a.Text, a.ReplyToID, a.ParseMode); err != nil {
		e.logger.WithAction(a.ActionType(), chatID).WithError(telegramError(err)).Error("Failed to send message")
	}
}

// recordModeration пишет модерационную запись в аудит и публикует ее
// для внешних потребителей // v1.0
func (e *Executor) recordModeration(ctx context.Context, chatID int64, record models.ModerationRecord) {
	if record.ID == "" {
		record.ID = uuid.New().String()
	}
	if record.TS.IsZero() {
		record.TS = time.Now()
	}
	if record.ChatID == 0 {
		record.ChatID = chatID
	}
	if err := e.moderation.RecordModerationAction(ctx, record); err != nil {
		cherr := cgerrors.Wrap(err, cgerrors.ErrorCodeCHInsert, "moderation audit insert failed")
		e.logger.WithAction(models.ActionTypeRecordModeration, chatID).WithError(cherr).Error("Failed to record moderation action")
	}

	if e.bus == nil {
		return
	}
	if err := e.bus.Publish(natsclient.SubjectModerationTaken, record); err != nil {
		perr := cgerrors.Wrap(err, cgerrors.ErrorCodeNATSPublish, "moderation action publish failed")
		e.logger.WithAction(record.ActionType, chatID).WithError(perr).Error("Failed to publish moderation action")
	}
}

// recordRuleAudit пишет запись аудита правила // v1.0
func (e *Executor) recordRuleAudit(ctx context.Context, chatID int64, entry models.RuleAuditEntry) {
	if entry.ID == "" {
		entry.ID = uuid.New().String()
	}
	if entry.TS.IsZero() {
		entry.TS = time.Now()
	}
	if entry.ChatID == 0 {
		entry.ChatID = chatID
	}
	if err := e.ruleAudit.AppendRuleAudit(ctx, entry); err != nil {
		perr := cgerrors.Wrap(err, cgerrors.ErrorCodePGQuery, "rule audit insert failed")
		e.logger.WithAction(models.ActionTypeRecordRuleAudit, chatID).WithError(perr).Error("Failed to record rule audit")
	}
}

// logAction пишет структурную запись в журнал процесса // v1.0
func (e *Executor) logAction(chatID int64, a models.LogAction) {
	entry := e.logger.WithChat(chatID)
	for key, value := range a.Details {
		entry = entry.WithField(key, value)
	}

	switch a.Level {
	case "debug":
		entry.Debug(a.Message)
	case "warn", "warning":
		entry.Warn(a.Message)
	case "error":
		entry.Error(a.Message)
	default:
		entry.Info(a.Message)
	}
}

// audit best-effort пишет запись о выполненном действии // v1.0
func (e *Executor) audit(ctx context.Context, chatID, userID int64, actionType, reason, details string) {
	e.recordModeration(ctx, chatID, models.ModerationRecord{
		ChatID:     chatID,
		UserID:     userID,
		ActionType: actionType,
		Reason:     reason,
		Details:    details,
	})
}

// telegramError помечает ошибку Bot API доменным кодом // v1.0
func telegramError(err error) error {
	return cgerrors.Wrap(err, cgerrors.ErrorCodeTelegramAPI, "telegram API call failed")
}

// warnText формирует текст предупреждения с экранированным именем и
// причиной // v1.0
func warnText(a models.WarnMemberAction) string {
	name := a.Username
	if name == "" {
		name = fmt.Sprintf("id%d", a.UserID)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "⚠️ <b>%s</b>, предупреждение [%s]", html.EscapeString(name), strings.ToUpper(a.Severity))
	if a.Reason != "" {
		fmt.Fprintf(&b, ": %s", html.EscapeString(a.Reason))
	}
	return b.String()
}
