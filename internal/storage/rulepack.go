// internal/storage/rulepack.go
package storage

import (
	"context"
	"fmt"
	"os"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"

	"github.com/chatguard/chatguard/internal/common/logging"
	"github.com/chatguard/chatguard/internal/models"
)

// RulePack представляет YAML файл с набором дефолтных глобальных правил,
// загружаемых при первом запуске
type RulePack struct {
	Rules []RulePackEntry `yaml:"rules"`
}

// RulePackEntry представляет одно правило в YAML формате
type RulePackEntry struct {
	Name        string                  `yaml:"name"`
	Description string                  `yaml:"description"`
	Priority    int                     `yaml:"priority"`
	Enabled     bool                    `yaml:"enabled"`
	MatchAll    bool                    `yaml:"match_all"`
	Conditions  []models.RuleCondition  `yaml:"conditions"`
	Actions     []models.RuleAction     `yaml:"actions"`
	Escalation  *models.EscalationBlock `yaml:"escalation"`
}

// LoadRulePack читает набор правил из YAML файла // v1.0
func LoadRulePack(path string) (*RulePack, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read rule pack: %w", err)
	}

	var pack RulePack
	if err := yaml.Unmarshal(data, &pack); err != nil {
		return nil, fmt.Errorf("failed to parse rule pack: %w", err)
	}

	return &pack, nil
}

// SeedDefaultRules загружает дефолтные глобальные правила в хранилище.
// Выполняется только если глобальных правил еще нет // v1.0
func SeedDefaultRules(ctx context.Context, logger *logging.Logger, store *RuleStore, path string) error {
	if path == "" {
		return nil
	}

	existing, err := store.FetchRules(ctx, models.GlobalChatID)
	if err != nil {
		return fmt.Errorf("failed to check existing rules: %w", err)
	}
	if len(existing) > 0 {
		logger.Logger.WithField("count", len(existing)).Debug("Global rules already present, skipping seed")
		return nil
	}

	pack, err := LoadRulePack(path)
	if err != nil {
		return err
	}

	for _, entry := range pack.Rules {
		rule := models.NewFirewallRule(uuid.NewString(), models.GlobalChatID, entry.Name)
		rule.Description = entry.Description
		if entry.Priority != 0 {
			rule.Priority = entry.Priority
		}
		rule.Enabled = entry.Enabled
		rule.MatchAll = entry.MatchAll
		rule.Conditions = entry.Conditions
		rule.Actions = entry.Actions
		rule.Escalation = entry.Escalation
		rule.CreatedBy = "rulepack"

		if err := rule.Validate(); err != nil {
			logger.WithRule(rule.ID, rule.Name).WithError(err).Error("Skipping invalid rule pack entry")
			continue
		}

		if err := store.CreateRule(ctx, rule); err != nil {
			return fmt.Errorf("failed to seed rule %q: %w", entry.Name, err)
		}

		logger.WithRule(rule.ID, rule.Name).Info("Seeded default rule")
	}

	return nil
}
