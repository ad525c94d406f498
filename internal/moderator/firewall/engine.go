// internal/moderator/firewall/engine.go
package firewall

import (
	"context"
	"fmt"
	"time"

	cgerrors "github.com/chatguard/chatguard/internal/common/errors"
	"github.com/chatguard/chatguard/internal/common/logging"
	"github.com/chatguard/chatguard/internal/models"
)

// warningCounterRule — псевдо-правило для сквозного счетчика предупреждений
// участника. Раньше это был глобальный map со строковым ключом на каждом
// вызове; теперь счетчиком владеет движок.
const warningCounterRule = "warnings"

// RuleSource поставляет наборы правил. Ошибка выборки трактуется как
// пустой набор (fail-open): файрвол без правил лучше мертвого пайплайна.
type RuleSource interface {
	FetchRules(ctx context.Context, chatID int64) ([]*models.FirewallRuleConfig, error)
}

// Config конфигурация движка правил
type Config struct {
	// WarningThreshold — сколько предупреждений приводит к авто-муту
	WarningThreshold int
	// MuteDuration — длительность мута по умолчанию, если правило
	// не задает свою
	MuteDuration time.Duration
}

// Engine представляет движок файрвол-правил: оценка условий, кэш правил
// по чатам и счетчики нарушений для эскалации
type Engine struct {
	config   Config
	logger   *logging.Logger
	source   RuleSource
	cache    *ruleCache
	counters CounterStore
}

// NewEngine создает новый движок правил // v1.0
func NewEngine(config Config, logger *logging.Logger, source RuleSource, counters CounterStore) *Engine {
	if config.WarningThreshold <= 0 {
		config.WarningThreshold = 3
	}
	if config.MuteDuration <= 0 {
		config.MuteDuration = time.Hour
	}
	return &Engine{
		config:   config,
		logger:   logger,
		source:   source,
		cache:    newRuleCache(),
		counters: counters,
	}
}

// Evaluate оценивает все правила чата против события и возвращает
// действия сработавших правил. Правила не обрывают друг друга: каждое
// включенное совпавшее правило добавляет свои действия // v1.0
func (e *Engine) Evaluate(ctx context.Context, event *models.Event) []models.ProcessingAction {
	rules := e.rulesFor(ctx, event.Chat.ID)
	if len(rules) == 0 {
		return nil
	}

	now := event.TS
	if now.IsZero() {
		now = time.Now()
	}

	var actions []models.ProcessingAction
	for _, rule := range rules {
		if !rule.Enabled {
			continue
		}
		if !matchRule(event, rule, now) {
			continue
		}

		ruleActions := e.applyRule(ctx, event, rule, now)
		actions = append(actions, ruleActions...)
	}

	return actions
}

// applyRule добавляет действия совпавшего правила: немедленные, затем
// эскалационные, затем запись аудита // v1.0
func (e *Engine) applyRule(ctx context.Context, event *models.Event, rule *models.FirewallRuleConfig, now time.Time) []models.ProcessingAction {
	var actions []models.ProcessingAction
	warns := 0

	for _, ra := range rule.Actions {
		mapped := e.mapRuleAction(ra, event)
		if mapped == nil {
			continue
		}
		if ra.Type == models.RuleActionWarn {
			warns++
		}
		actions = append(actions, mapped)
	}

	// Счетчик нарушений нужен только для эскалации
	if rule.Escalation != nil {
		actions = append(actions, e.escalate(ctx, event, rule, now)...)
	}

	// Сквозной счетчик предупреждений: после WarningThreshold
	// предупреждений в окне мута добавляется авто-мут
	if warns > 0 {
		actions = append(actions, e.trackWarnings(ctx, event, now)...)
	}

	actions = append(actions, models.RecordRuleAuditAction{
		Entry: models.RuleAuditEntry{
			TS:        now,
			RuleID:    rule.ID,
			ChatID:    event.Chat.ID,
			UserID:    event.SenderID(),
			Operation: "matched",
			Detail:    rule.Name,
		},
	})

	return actions
}

// escalate записывает нарушение и оценивает все ступени эскалации.
// Ступени не исключают друг друга: в одно событие могут сработать
// несколько // v1.0
func (e *Engine) escalate(ctx context.Context, event *models.Event, rule *models.FirewallRuleConfig, now time.Time) []models.ProcessingAction {
	key := CounterKey{
		ChatID: event.Chat.ID,
		UserID: event.SenderID(),
		RuleID: rule.ID,
	}

	resetAfter := time.Duration(0)
	if rule.Escalation.ResetAfterSeconds > 0 {
		resetAfter = time.Duration(rule.Escalation.ResetAfterSeconds) * time.Second
	}

	stamps, err := e.counters.Record(ctx, key, now, rule.MaxEscalationWindow(), resetAfter)
	if err != nil {
		e.logger.WithRule(rule.ID, rule.Name).WithError(err).Error("Failed to record violation")
		return nil
	}

	var actions []models.ProcessingAction
	for _, step := range rule.Escalation.Steps {
		window := time.Duration(step.WindowSeconds) * time.Second
		if CountWithin(stamps, now, window) >= step.Threshold {
			for _, ra := range step.Actions {
				if mapped := e.mapRuleAction(ra, event); mapped != nil {
					actions = append(actions, mapped)
				}
			}
		}
	}

	return actions
}

// trackWarnings ведет сквозной счетчик предупреждений участника и
// добавляет авто-мут при достижении порога // v1.0
func (e *Engine) trackWarnings(ctx context.Context, event *models.Event, now time.Time) []models.ProcessingAction {
	key := CounterKey{
		ChatID: event.Chat.ID,
		UserID: event.SenderID(),
		RuleID: warningCounterRule,
	}

	stamps, err := e.counters.Record(ctx, key, now, e.config.MuteDuration, 0)
	if err != nil {
		e.logger.WithUser(event.Chat.ID, event.SenderID()).WithError(err).Error("Failed to record warning")
		return nil
	}

	if CountWithin(stamps, now, e.config.MuteDuration) < e.config.WarningThreshold {
		return nil
	}

	// Порог достигнут: мут и сброс счетчика
	if err := e.counters.Reset(ctx, key); err != nil {
		e.logger.WithUser(event.Chat.ID, event.SenderID()).WithError(err).Error("Failed to reset warning counter")
	}

	return []models.ProcessingAction{
		models.RestrictMemberAction{
			UserID:          event.SenderID(),
			DurationSeconds: int64(e.config.MuteDuration.Seconds()),
		},
		models.LogAction{
			Level:   "warn",
			Message: "warning threshold reached, member muted",
			Details: map[string]interface{}{
				"chat_id":   event.Chat.ID,
				"user_id":   event.SenderID(),
				"threshold": e.config.WarningThreshold,
			},
		},
	}
}

// mapRuleAction переводит действие правила в действие пайплайна // v1.0
func (e *Engine) mapRuleAction(ra models.RuleAction, event *models.Event) models.ProcessingAction {
	switch ra.Type {
	case models.RuleActionDelete:
		if event.MessageID() == 0 {
			return nil
		}
		return models.DeleteMessageAction{MessageID: event.MessageID()}
	case models.RuleActionWarn:
		severity := ra.Severity
		if severity == "" {
			severity = models.SeverityMedium
		}
		username := ""
		if event.Sender != nil {
			username = event.Sender.DisplayName
		}
		return models.WarnMemberAction{
			UserID:   event.SenderID(),
			Username: username,
			Severity: severity,
			Reason:   ra.Reason,
		}
	case models.RuleActionMute:
		duration := ra.DurationSeconds
		if duration <= 0 {
			duration = int64(e.config.MuteDuration.Seconds())
		}
		return models.RestrictMemberAction{
			UserID:          event.SenderID(),
			DurationSeconds: duration,
		}
	case models.RuleActionKick:
		return models.KickMemberAction{UserID: event.SenderID()}
	case models.RuleActionBan:
		return models.BanMemberAction{
			UserID:          event.SenderID(),
			DurationSeconds: ra.DurationSeconds,
		}
	case models.RuleActionLog:
		message := ra.Message
		if message == "" {
			message = "firewall rule matched"
		}
		return models.LogAction{
			Level:   "info",
			Message: message,
			Details: map[string]interface{}{
				"chat_id": event.Chat.ID,
				"user_id": event.SenderID(),
			},
		}
	default:
		return nil
	}
}

// rulesFor возвращает набор правил чата из кэша, при промахе выбирает
// из источника. Ошибка выборки деградирует в пустой набор // v1.0
func (e *Engine) rulesFor(ctx context.Context, chatID int64) []*models.FirewallRuleConfig {
	if rules, ok := e.cache.get(chatID); ok {
		return rules
	}

	rules, err := e.source.FetchRules(ctx, chatID)
	if err != nil {
		ferr := cgerrors.Wrap(err, cgerrors.ErrorCodeRuleFetchFailed, "rule fetch failed")
		e.logger.WithChat(chatID).WithError(ferr).Error("Rule fetch failed, failing open with empty rule set")
		return nil
	}

	e.cache.put(chatID, rules)
	return rules
}

// Invalidate сбрасывает кэш правил одного чата. Безопасно вызывать
// конкурентно с Evaluate: идущая оценка доработает на старом наборе,
// следующая выберет заново // v1.0
func (e *Engine) Invalidate(chatID int64) {
	e.cache.invalidate(chatID)
	e.logger.WithChat(chatID).Debug("Rule cache invalidated")
}

// InvalidateAll сбрасывает кэш правил целиком (правка глобального
// правила) // v1.0
func (e *Engine) InvalidateAll() {
	e.cache.invalidateAll()
	e.logger.Logger.Debug("Rule cache fully invalidated")
}

// ResetViolations административно обнуляет счетчик нарушений // v1.0
func (e *Engine) ResetViolations(ctx context.Context, chatID, userID int64, ruleID string) error {
	key := CounterKey{ChatID: chatID, UserID: userID, RuleID: ruleID}
	if err := e.counters.Reset(ctx, key); err != nil {
		return fmt.Errorf("failed to reset violations: %w", err)
	}
	return nil
}

// CacheSize возвращает количество закэшированных чатов // v1.0
func (e *Engine) CacheSize() int {
	return e.cache.size()
}
