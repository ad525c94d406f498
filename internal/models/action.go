// internal/models/action.go
package models

// Уровни серьезности предупреждений
const (
	SeverityLow    = "low"
	SeverityMedium = "medium"
	SeverityHigh   = "high"
)

// Типы действий пайплайна
const (
	ActionTypeDeleteMessage    = "delete_message"
	ActionTypeWarnMember       = "warn_member"
	ActionTypeRestrictMember   = "restrict_member"
	ActionTypeKickMember       = "kick_member"
	ActionTypeBanMember        = "ban_member"
	ActionTypeSendMessage      = "send_message"
	ActionTypeRecordModeration = "record_moderation"
	ActionTypeRecordRuleAudit  = "record_rule_audit"
	ActionTypeLog              = "log"
	ActionTypeNoop             = "noop"
)

// ProcessingAction представляет одно действие, которое пайплайн должен
// выполнить для события. Варианты закрыты: исполнитель обязан обработать
// каждый из них в исчерпывающем switch.
type ProcessingAction interface {
	ActionType() string
}

// DeleteMessageAction удаляет сообщение из чата
type DeleteMessageAction struct {
	MessageID int64 `json:"message_id"`
}

// WarnMemberAction отправляет участнику предупреждение
type WarnMemberAction struct {
	UserID   int64  `json:"user_id"`
	Username string `json:"username,omitempty"`
	Severity string `json:"severity"`
	Reason   string `json:"reason"`
}

// RestrictMemberAction ограничивает участника (mute)
type RestrictMemberAction struct {
	UserID          int64 `json:"user_id"`
	DurationSeconds int64 `json:"duration_seconds,omitempty"`
}

// KickMemberAction исключает участника без постоянного бана
type KickMemberAction struct {
	UserID int64 `json:"user_id"`
}

// BanMemberAction банит участника, опционально на время
type BanMemberAction struct {
	UserID          int64 `json:"user_id"`
	DurationSeconds int64 `json:"duration_seconds,omitempty"`
}

// SendMessageAction отправляет сообщение в чат
type SendMessageAction struct {
	Text      string `json:"text"`
	ReplyToID int64  `json:"reply_to_id,omitempty"`
	ParseMode string `json:"parse_mode,omitempty"`
}

// RecordModerationAction записывает модерационное действие в аудит
type RecordModerationAction struct {
	Record ModerationRecord `json:"record"`
}

// RecordRuleAuditAction записывает срабатывание правила в аудит
type RecordRuleAuditAction struct {
	Entry RuleAuditEntry `json:"entry"`
}

// LogAction пишет структурную запись в журнал процесса
type LogAction struct {
	Level   string                 `json:"level"`
	Message string                 `json:"message"`
	Details map[string]interface{} `json:"details,omitempty"`
}

// NoopAction ничего не делает
type NoopAction struct{}

// ActionType возвращает тип действия // v1.0
func (DeleteMessageAction) ActionType() string { return ActionTypeDeleteMessage }

// ActionType возвращает тип действия // v1.0
func (WarnMemberAction) ActionType() string { return ActionTypeWarnMember }

// ActionType возвращает тип действия // v1.0
func (RestrictMemberAction) ActionType() string { return ActionTypeRestrictMember }

// ActionType возвращает тип действия // v1.0
func (KickMemberAction) ActionType() string { return ActionTypeKickMember }

// ActionType возвращает тип действия // v1.0
func (BanMemberAction) ActionType() string { return ActionTypeBanMember }

// ActionType возвращает тип действия // v1.0
func (SendMessageAction) ActionType() string { return ActionTypeSendMessage }

// ActionType возвращает тип действия // v1.0
func (RecordModerationAction) ActionType() string { return ActionTypeRecordModeration }

// ActionType возвращает тип действия // v1.0
func (RecordRuleAuditAction) ActionType() string { return ActionTypeRecordRuleAudit }

// ActionType возвращает тип действия // v1.0
func (LogAction) ActionType() string { return ActionTypeLog }

// ActionType возвращает тип действия // v1.0
func (NoopAction) ActionType() string { return ActionTypeNoop }

// IsValidSeverity проверяет валидность уровня серьезности // v1.0
func IsValidSeverity(severity string) bool {
	return severity == SeverityLow || severity == SeverityMedium || severity == SeverityHigh
}
