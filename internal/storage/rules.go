// internal/storage/rules.go
package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/chatguard/chatguard/internal/common/logging"
	"github.com/chatguard/chatguard/internal/common/pg"
	"github.com/chatguard/chatguard/internal/models"
)

// RuleStore хранит файрвол-правила в PostgreSQL
type RuleStore struct {
	logger *logging.Logger
	pg     *pg.Client
}

// NewRuleStore создает новое хранилище правил // v1.0
func NewRuleStore(logger *logging.Logger, pgClient *pg.Client) *RuleStore {
	return &RuleStore{
		logger: logger,
		pg:     pgClient,
	}
}

// EnsureSchema создает таблицы если не существуют // v1.0
func (s *RuleStore) EnsureSchema(ctx context.Context) error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS firewall_rules (
			id UUID PRIMARY KEY,
			chat_id BIGINT NOT NULL DEFAULT 0,
			name TEXT NOT NULL,
			description TEXT NOT NULL DEFAULT '',
			priority INT NOT NULL DEFAULT 100,
			enabled BOOLEAN NOT NULL DEFAULT TRUE,
			match_all BOOLEAN NOT NULL DEFAULT FALSE,
			conditions JSONB NOT NULL DEFAULT '[]',
			actions JSONB NOT NULL DEFAULT '[]',
			escalation JSONB,
			version INT NOT NULL DEFAULT 1,
			created_by TEXT NOT NULL DEFAULT '',
			created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`,
		`CREATE INDEX IF NOT EXISTS idx_firewall_rules_chat ON firewall_rules (chat_id, enabled)`,
		`CREATE TABLE IF NOT EXISTS rule_audit (
			id UUID PRIMARY KEY,
			ts TIMESTAMPTZ NOT NULL DEFAULT now(),
			rule_id UUID NOT NULL,
			chat_id BIGINT NOT NULL,
			user_id BIGINT NOT NULL DEFAULT 0,
			operation TEXT NOT NULL,
			detail TEXT NOT NULL DEFAULT ''
		)`,
	}

	for _, query := range queries {
		if _, err := s.pg.Exec(ctx, query); err != nil {
			return fmt.Errorf("failed to ensure schema: %w", err)
		}
	}

	return nil
}

// FetchRules возвращает включенные правила чата вместе с глобальными,
// отсортированные по приоритету и времени создания // v1.0
func (s *RuleStore) FetchRules(ctx context.Context, chatID int64) ([]*models.FirewallRuleConfig, error) {
	query := `SELECT id, chat_id, name, description, priority, enabled, match_all,
			conditions, actions, escalation, version, created_by, created_at, updated_at
		FROM firewall_rules
		WHERE enabled = TRUE AND (chat_id = $1 OR chat_id = $2)
		ORDER BY priority ASC, created_at ASC`

	rows, err := s.pg.Query(ctx, query, chatID, models.GlobalChatID)
	if err != nil {
		return nil, fmt.Errorf("failed to query rules: %w", err)
	}
	defer rows.Close()

	var rules []*models.FirewallRuleConfig
	for rows.Next() {
		rule, err := scanRule(rows)
		if err != nil {
			// Поврежденная запись пропускается, а не валит весь набор
			s.logger.WithChat(chatID).WithError(err).Error("Skipping corrupt rule row")
			continue
		}
		rules = append(rules, rule)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate rules: %w", err)
	}

	return rules, nil
}

// GetRule возвращает правило по идентификатору // v1.0
func (s *RuleStore) GetRule(ctx context.Context, id string) (*models.FirewallRuleConfig, error) {
	query := `SELECT id, chat_id, name, description, priority, enabled, match_all,
			conditions, actions, escalation, version, created_by, created_at, updated_at
		FROM firewall_rules WHERE id = $1`

	rows, err := s.pg.Query(ctx, query, id)
	if err != nil {
		return nil, fmt.Errorf("failed to query rule: %w", err)
	}
	defer rows.Close()

	if !rows.Next() {
		return nil, sql.ErrNoRows
	}

	return scanRule(rows)
}

// ListRules возвращает правила чата (включая отключенные) // v1.0
func (s *RuleStore) ListRules(ctx context.Context, chatID int64, limit, offset int) ([]*models.FirewallRuleConfig, error) {
	query := `SELECT id, chat_id, name, description, priority, enabled, match_all,
			conditions, actions, escalation, version, created_by, created_at, updated_at
		FROM firewall_rules
		WHERE chat_id = $1
		ORDER BY priority ASC, created_at ASC
		LIMIT $2 OFFSET $3`

	rows, err := s.pg.Query(ctx, query, chatID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list rules: %w", err)
	}
	defer rows.Close()

	var rules []*models.FirewallRuleConfig
	for rows.Next() {
		rule, err := scanRule(rows)
		if err != nil {
			s.logger.WithChat(chatID).WithError(err).Error("Skipping corrupt rule row")
			continue
		}
		rules = append(rules, rule)
	}

	return rules, rows.Err()
}

// CreateRule сохраняет новое правило // v1.0
func (s *RuleStore) CreateRule(ctx context.Context, rule *models.FirewallRuleConfig) error {
	conditions, actions, escalation, err := marshalRuleParts(rule)
	if err != nil {
		return err
	}

	query := `INSERT INTO firewall_rules
			(id, chat_id, name, description, priority, enabled, match_all,
			 conditions, actions, escalation, version, created_by, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14)`

	_, err = s.pg.Exec(ctx, query,
		rule.ID, rule.ChatID, rule.Name, rule.Description, rule.Priority,
		rule.Enabled, rule.MatchAll, conditions, actions, escalation,
		rule.Version, rule.CreatedBy, rule.CreatedAt, rule.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert rule: %w", err)
	}

	return nil
}

// UpdateRule обновляет существующее правило // v1.0
func (s *RuleStore) UpdateRule(ctx context.Context, rule *models.FirewallRuleConfig) error {
	conditions, actions, escalation, err := marshalRuleParts(rule)
	if err != nil {
		return err
	}

	query := `UPDATE firewall_rules SET
			chat_id=$2, name=$3, description=$4, priority=$5, enabled=$6, match_all=$7,
			conditions=$8, actions=$9, escalation=$10, version=$11, updated_at=$12
		WHERE id=$1`

	result, err := s.pg.Exec(ctx, query,
		rule.ID, rule.ChatID, rule.Name, rule.Description, rule.Priority,
		rule.Enabled, rule.MatchAll, conditions, actions, escalation,
		rule.Version, rule.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to update rule: %w", err)
	}

	affected, err := result.RowsAffected()
	if err == nil && affected == 0 {
		return sql.ErrNoRows
	}

	return nil
}

// DeleteRule удаляет правило // v1.0
func (s *RuleStore) DeleteRule(ctx context.Context, id string) (int64, error) {
	var chatID int64
	if err := s.pg.QueryRow(ctx, `SELECT chat_id FROM firewall_rules WHERE id = $1`, id).Scan(&chatID); err != nil {
		return 0, err
	}

	if _, err := s.pg.Exec(ctx, `DELETE FROM firewall_rules WHERE id = $1`, id); err != nil {
		return 0, fmt.Errorf("failed to delete rule: %w", err)
	}

	return chatID, nil
}

// AppendRuleAudit добавляет запись аудита правила. Вызывается best-effort:
// ошибка логируется вызывающим и не влияет на пайплайн // v1.0
func (s *RuleStore) AppendRuleAudit(ctx context.Context, entry models.RuleAuditEntry) error {
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	if entry.TS.IsZero() {
		entry.TS = time.Now()
	}

	query := `INSERT INTO rule_audit (id, ts, rule_id, chat_id, user_id, operation, detail)
		VALUES ($1,$2,$3,$4,$5,$6,$7)`

	if _, err := s.pg.Exec(ctx, query,
		entry.ID, entry.TS, entry.RuleID, entry.ChatID, entry.UserID, entry.Operation, entry.Detail); err != nil {
		return fmt.Errorf("failed to append rule audit: %w", err)
	}

	return nil
}

// marshalRuleParts сериализует JSONB части правила // v1.0
func marshalRuleParts(rule *models.FirewallRuleConfig) ([]byte, []byte, []byte, error) {
	conditions, err := json.Marshal(rule.Conditions)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("failed to marshal conditions: %w", err)
	}
	actions, err := json.Marshal(rule.Actions)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("failed to marshal actions: %w", err)
	}
	var escalation []byte
	if rule.Escalation != nil {
		escalation, err = json.Marshal(rule.Escalation)
		if err != nil {
			return nil, nil, nil, fmt.Errorf("failed to marshal escalation: %w", err)
		}
	}
	return conditions, actions, escalation, nil
}

// scanRule читает одну строку правила // v1.0
func scanRule(rows *sql.Rows) (*models.FirewallRuleConfig, error) {
	var rule models.FirewallRuleConfig
	var conditions, actions []byte
	var escalation sql.NullString

	if err := rows.Scan(&rule.ID, &rule.ChatID, &rule.Name, &rule.Description,
		&rule.Priority, &rule.Enabled, &rule.MatchAll,
		&conditions, &actions, &escalation,
		&rule.Version, &rule.CreatedBy, &rule.CreatedAt, &rule.UpdatedAt); err != nil {
		return nil, fmt.Errorf("failed to scan rule: %w", err)
	}

	if err := json.Unmarshal(conditions, &rule.Conditions); err != nil {
		return nil, fmt.Errorf("corrupt conditions for rule %s: %w", rule.ID, err)
	}
	if err := json.Unmarshal(actions, &rule.Actions); err != nil {
		return nil, fmt.Errorf("corrupt actions for rule %s: %w", rule.ID, err)
	}
	if escalation.Valid && escalation.String != "" {
		var esc models.EscalationBlock
		if err := json.Unmarshal([]byte(escalation.String), &esc); err != nil {
			return nil, fmt.Errorf("corrupt escalation for rule %s: %w", rule.ID, err)
		}
		rule.Escalation = &esc
	}

	return &rule, nil
}
