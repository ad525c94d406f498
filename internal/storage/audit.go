// internal/storage/audit.go
package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/chatguard/chatguard/internal/common/ch"
	"github.com/chatguard/chatguard/internal/common/logging"
	"github.com/chatguard/chatguard/internal/models"
)

// AuditStore пишет модерационный аудит в ClickHouse. Все операции
// best-effort: ошибки возвращаются вызывающему, но тот обязан их
// проглотить, аудит никогда не влияет на обработку события.
type AuditStore struct {
	logger *logging.Logger
	ch     *ch.Client
}

// NewAuditStore создает новое хранилище аудита // v1.0
func NewAuditStore(logger *logging.Logger, chClient *ch.Client) *AuditStore {
	return &AuditStore{
		logger: logger,
		ch:     chClient,
	}
}

// EnsureSchema создает таблицы аудита если не существуют // v1.0
func (s *AuditStore) EnsureSchema(ctx context.Context) error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS moderation_actions (
			id String,
			ts DateTime64(3),
			chat_id Int64,
			user_id Int64,
			action_type String,
			reason String,
			rule_id String,
			details String
		) ENGINE = MergeTree()
		ORDER BY (chat_id, ts)`,
		`CREATE TABLE IF NOT EXISTS membership_events (
			id String,
			ts DateTime64(3),
			chat_id Int64,
			user_id Int64,
			username String,
			event_type String
		) ENGINE = MergeTree()
		ORDER BY (chat_id, ts)`,
	}

	for _, query := range queries {
		if err := s.ch.Exec(ctx, query); err != nil {
			return fmt.Errorf("failed to ensure audit schema: %w", err)
		}
	}

	return nil
}

// RecordModerationAction записывает модерационное действие // v1.0
func (s *AuditStore) RecordModerationAction(ctx context.Context, record models.ModerationRecord) error {
	if record.ID == "" {
		record.ID = uuid.NewString()
	}
	if record.TS.IsZero() {
		record.TS = time.Now()
	}

	query := `INSERT INTO moderation_actions (id, ts, chat_id, user_id, action_type, reason, rule_id, details)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)`

	if err := s.ch.AsyncInsert(ctx, query,
		record.ID, record.TS, record.ChatID, record.UserID,
		record.ActionType, record.Reason, record.RuleID, record.Details); err != nil {
		return fmt.Errorf("failed to record moderation action: %w", err)
	}

	return nil
}

// RecordMembershipEvent записывает изменение состава чата // v1.0
func (s *AuditStore) RecordMembershipEvent(ctx context.Context, record models.MembershipRecord) error {
	if record.ID == "" {
		record.ID = uuid.NewString()
	}
	if record.TS.IsZero() {
		record.TS = time.Now()
	}

	query := `INSERT INTO membership_events (id, ts, chat_id, user_id, username, event_type)
		VALUES ($1,$2,$3,$4,$5,$6)`

	if err := s.ch.AsyncInsert(ctx, query,
		record.ID, record.TS, record.ChatID, record.UserID,
		record.Username, record.EventType); err != nil {
		return fmt.Errorf("failed to record membership event: %w", err)
	}

	return nil
}
