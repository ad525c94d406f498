// internal/models/rule.go
package models

import (
	"encoding/json"
	"fmt"
	"regexp"
	"time"

	"github.com/go-playground/validator/v10"
)

// Типы условий файрвол-правила
const (
	ConditionTextContains  = "text_contains"
	ConditionRegex         = "regex"
	ConditionKeyword       = "keyword"
	ConditionMediaType     = "media_type"
	ConditionLinkDomain    = "link_domain"
	ConditionUserRole      = "user_role"
	ConditionTimeRange     = "time_range"
	ConditionMessageLength = "message_length"
)

// Режимы сопоставления наборов ключевых слов
const (
	KeywordMatchAny = "any"
	KeywordMatchAll = "all"
)

// Типы действий файрвол-правила
const (
	RuleActionDelete = "delete"
	RuleActionWarn   = "warn"
	RuleActionMute   = "mute"
	RuleActionKick   = "kick"
	RuleActionBan    = "ban"
	RuleActionLog    = "log"
)

// GlobalChatID обозначает правило, действующее во всех чатах
const GlobalChatID int64 = 0

// FirewallRuleConfig представляет правило модерации, принадлежащее
// администратору и привязанное к одному чату либо глобальное
type FirewallRuleConfig struct {
	ID          string           `json:"id" db:"id"`
	ChatID      int64            `json:"chat_id" db:"chat_id"`
	Name        string           `json:"name" db:"name" validate:"required"`
	Description string           `json:"description,omitempty" db:"description"`
	Priority    int              `json:"priority" db:"priority"`
	Enabled     bool             `json:"enabled" db:"enabled"`
	MatchAll    bool             `json:"match_all" db:"match_all"`
	Conditions  []RuleCondition  `json:"conditions"`
	Actions     []RuleAction     `json:"actions"`
	Escalation  *EscalationBlock `json:"escalation,omitempty"`
	Version     int              `json:"version" db:"version"`
	CreatedBy   string           `json:"created_by,omitempty" db:"created_by"`
	CreatedAt   time.Time        `json:"created_at" db:"created_at"`
	UpdatedAt   time.Time        `json:"updated_at" db:"updated_at"`
}

// RuleCondition представляет одно условие правила. Тип задает вариант,
// заполняются только поля этого варианта.
type RuleCondition struct {
	Type string `json:"type" yaml:"type" validate:"required"`

	// text_contains
	Text          string `json:"text,omitempty" yaml:"text,omitempty"`
	CaseSensitive *bool  `json:"case_sensitive,omitempty" yaml:"case_sensitive,omitempty"`

	// regex
	Pattern string `json:"pattern,omitempty" yaml:"pattern,omitempty"`
	Flags   string `json:"flags,omitempty" yaml:"flags,omitempty"`

	// keyword
	Keywords []string `json:"keywords,omitempty" yaml:"keywords,omitempty"`
	Match    string   `json:"match,omitempty" yaml:"match,omitempty"` // any | all
	CaseFold bool     `json:"case_fold,omitempty" yaml:"case_fold,omitempty"`

	// media_type
	MediaTypes []string `json:"media_types,omitempty" yaml:"media_types,omitempty"`

	// link_domain
	Domains           []string `json:"domains,omitempty" yaml:"domains,omitempty"`
	IncludeSubdomains bool     `json:"include_subdomains,omitempty" yaml:"include_subdomains,omitempty"`

	// user_role
	Roles []string `json:"roles,omitempty" yaml:"roles,omitempty"`

	// time_range: [start_hour, end_hour), переход через полночь допустим
	StartHour *int   `json:"start_hour,omitempty" yaml:"start_hour,omitempty"`
	EndHour   *int   `json:"end_hour,omitempty" yaml:"end_hour,omitempty"`
	Timezone  string `json:"timezone,omitempty" yaml:"timezone,omitempty"`

	// message_length
	MinLength *int `json:"min_length,omitempty" yaml:"min_length,omitempty"`
	MaxLength *int `json:"max_length,omitempty" yaml:"max_length,omitempty"`
}

// RuleAction представляет одно действие правила
type RuleAction struct {
	Type string `json:"type" yaml:"type" validate:"required"`

	// warn
	Severity string `json:"severity,omitempty" yaml:"severity,omitempty"`
	Reason   string `json:"reason,omitempty" yaml:"reason,omitempty"`

	// mute, ban
	DurationSeconds int64 `json:"duration_seconds,omitempty" yaml:"duration_seconds,omitempty"`

	// log
	Message string `json:"message,omitempty" yaml:"message,omitempty"`
}

// EscalationBlock представляет блок эскалации правила
type EscalationBlock struct {
	Steps             []EscalationStep `json:"steps" yaml:"steps"`
	ResetAfterSeconds int64            `json:"reset_after_seconds,omitempty" yaml:"reset_after_seconds,omitempty"`
}

// EscalationStep представляет ступень эскалации: порог нарушений в
// скользящем окне, при достижении которого добавляются свои действия
type EscalationStep struct {
	Threshold     int          `json:"threshold" yaml:"threshold"`
	WindowSeconds int64        `json:"window_seconds" yaml:"window_seconds"`
	Actions       []RuleAction `json:"actions" yaml:"actions"`
}

var ruleValidate = validator.New()

// NewFirewallRule создает новое правило с дефолтами // v1.0
func NewFirewallRule(id string, chatID int64, name string) *FirewallRuleConfig {
	now := time.Now()
	return &FirewallRuleConfig{
		ID:        id,
		ChatID:    chatID,
		Name:      name,
		Priority:  100,
		Enabled:   true,
		Version:   1,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// IsGlobal проверяет, глобальное ли правило // v1.0
func (r *FirewallRuleConfig) IsGlobal() bool {
	return r.ChatID == GlobalChatID
}

// MatchesEverything проверяет, срабатывает ли правило на любое событие.
// Пустой список условий при match_all=true совпадает со всем — это
// намеренная семантика, но опасная конфигурация // v1.0
func (r *FirewallRuleConfig) MatchesEverything() bool {
	return r.MatchAll && len(r.Conditions) == 0
}

// UpdateVersion увеличивает версию правила // v1.0
func (r *FirewallRuleConfig) UpdateVersion() {
	r.Version++
	r.UpdatedAt = time.Now()
}

// ToJSON возвращает правило в JSON формате // v1.0
func (r *FirewallRuleConfig) ToJSON() ([]byte, error) {
	return json.Marshal(r)
}

// Validate проверяет корректность правила. Вызывается при записи правила,
// а не при оценке: некорректный regex или таймзона не должны дожить до
// пайплайна // v1.0
func (r *FirewallRuleConfig) Validate() error {
	if err := ruleValidate.Struct(r); err != nil {
		return fmt.Errorf("rule validation failed: %w", err)
	}
	if r.ID == "" {
		return fmt.Errorf("rule ID is required")
	}
	if r.Version <= 0 {
		return fmt.Errorf("rule version must be positive")
	}
	if r.Enabled && len(r.Actions) == 0 {
		return fmt.Errorf("enabled rule must have at least one action")
	}

	for i, cond := range r.Conditions {
		if err := validateCondition(cond); err != nil {
			return fmt.Errorf("condition %d: %w", i, err)
		}
	}
	for i, action := range r.Actions {
		if err := validateRuleAction(action); err != nil {
			return fmt.Errorf("action %d: %w", i, err)
		}
	}
	if r.Escalation != nil {
		if err := validateEscalation(r.Escalation); err != nil {
			return fmt.Errorf("escalation: %w", err)
		}
	}

	return nil
}

// validateCondition проверяет одно условие правила // v1.0
func validateCondition(cond RuleCondition) error {
	switch cond.Type {
	case ConditionTextContains:
		if cond.Text == "" {
			return fmt.Errorf("text_contains requires text")
		}
	case ConditionRegex:
		if cond.Pattern == "" {
			return fmt.Errorf("regex requires pattern")
		}
		if _, err := regexp.Compile(applyRegexFlags(cond.Pattern, cond.Flags)); err != nil {
			return fmt.Errorf("invalid regex pattern: %w", err)
		}
	case ConditionKeyword:
		if len(cond.Keywords) == 0 {
			return fmt.Errorf("keyword requires at least one keyword")
		}
		if cond.Match != "" && cond.Match != KeywordMatchAny && cond.Match != KeywordMatchAll {
			return fmt.Errorf("invalid keyword match mode: %s", cond.Match)
		}
	case ConditionMediaType:
		if len(cond.MediaTypes) == 0 {
			return fmt.Errorf("media_type requires at least one media type")
		}
	case ConditionLinkDomain:
		if len(cond.Domains) == 0 {
			return fmt.Errorf("link_domain requires at least one domain")
		}
	case ConditionUserRole:
		if len(cond.Roles) == 0 {
			return fmt.Errorf("user_role requires at least one role")
		}
	case ConditionTimeRange:
		if cond.StartHour == nil || cond.EndHour == nil {
			return fmt.Errorf("time_range requires start_hour and end_hour")
		}
		if *cond.StartHour < 0 || *cond.StartHour > 23 || *cond.EndHour < 0 || *cond.EndHour > 24 {
			return fmt.Errorf("time_range hours out of range")
		}
		if cond.Timezone != "" {
			if _, err := time.LoadLocation(cond.Timezone); err != nil {
				return fmt.Errorf("invalid timezone %q: %w", cond.Timezone, err)
			}
		}
	case ConditionMessageLength:
		if cond.MinLength == nil && cond.MaxLength == nil {
			return fmt.Errorf("message_length requires min_length or max_length")
		}
		if cond.MinLength != nil && *cond.MinLength < 0 {
			return fmt.Errorf("min_length must be non-negative")
		}
		if cond.MinLength != nil && cond.MaxLength != nil && *cond.MaxLength < *cond.MinLength {
			return fmt.Errorf("max_length must be >= min_length")
		}
	default:
		return fmt.Errorf("unsupported condition type: %s", cond.Type)
	}
	return nil
}

// validateRuleAction проверяет одно действие правила // v1.0
func validateRuleAction(action RuleAction) error {
	switch action.Type {
	case RuleActionDelete, RuleActionKick, RuleActionLog:
		return nil
	case RuleActionWarn:
		if action.Severity != "" && !IsValidSeverity(action.Severity) {
			return fmt.Errorf("invalid warn severity: %s", action.Severity)
		}
	case RuleActionMute:
		if action.DurationSeconds < 0 {
			return fmt.Errorf("mute duration must be non-negative")
		}
	case RuleActionBan:
		if action.DurationSeconds < 0 {
			return fmt.Errorf("ban duration must be non-negative")
		}
	default:
		return fmt.Errorf("unsupported rule action type: %s", action.Type)
	}
	return nil
}

// validateEscalation проверяет блок эскалации // v1.0
func validateEscalation(esc *EscalationBlock) error {
	if len(esc.Steps) == 0 {
		return fmt.Errorf("escalation requires at least one step")
	}
	if esc.ResetAfterSeconds < 0 {
		return fmt.Errorf("reset_after_seconds must be non-negative")
	}
	for i, step := range esc.Steps {
		if step.Threshold <= 0 {
			return fmt.Errorf("step %d: threshold must be positive", i)
		}
		if step.WindowSeconds <= 0 {
			return fmt.Errorf("step %d: window_seconds must be positive", i)
		}
		if len(step.Actions) == 0 {
			return fmt.Errorf("step %d: at least one action required", i)
		}
		for j, action := range step.Actions {
			if err := validateRuleAction(action); err != nil {
				return fmt.Errorf("step %d action %d: %w", i, j, err)
			}
		}
	}
	return nil
}

// applyRegexFlags применяет флаги к шаблону регулярного выражения // v1.0
func applyRegexFlags(pattern, flags string) string {
	if flags == "" {
		return pattern
	}
	return "(?" + flags + ")" + pattern
}

// MaxEscalationWindow возвращает наибольшее окно среди ступеней эскалации // v1.0
func (r *FirewallRuleConfig) MaxEscalationWindow() time.Duration {
	if r.Escalation == nil {
		return 0
	}
	var max int64
	for _, step := range r.Escalation.Steps {
		if step.WindowSeconds > max {
			max = step.WindowSeconds
		}
	}
	return time.Duration(max) * time.Second
}
