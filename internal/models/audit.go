// internal/models/audit.go
package models

import (
	"encoding/json"
	"time"
)

// Типы событий изменения состава участников
const (
	MembershipJoin  = "join"
	MembershipLeave = "leave"
)

// ModerationRecord представляет запись о выполненном модерационном действии
type ModerationRecord struct {
	ID         string    `json:"id"`
	TS         time.Time `json:"ts"`
	ChatID     int64     `json:"chat_id"`
	UserID     int64     `json:"user_id,omitempty"`
	ActionType string    `json:"action_type"`
	Reason     string    `json:"reason,omitempty"`
	RuleID     string    `json:"rule_id,omitempty"`
	Details    string    `json:"details,omitempty"`
}

// MembershipRecord представляет запись об изменении состава чата
type MembershipRecord struct {
	ID        string    `json:"id"`
	TS        time.Time `json:"ts"`
	ChatID    int64     `json:"chat_id"`
	UserID    int64     `json:"user_id"`
	Username  string    `json:"username,omitempty"`
	EventType string    `json:"event_type"` // join | leave
}

// RuleAuditEntry представляет запись аудита срабатывания или изменения правила
type RuleAuditEntry struct {
	ID        string    `json:"id"`
	TS        time.Time `json:"ts"`
	RuleID    string    `json:"rule_id"`
	ChatID    int64     `json:"chat_id"`
	UserID    int64     `json:"user_id,omitempty"`
	Operation string    `json:"operation"` // matched | created | updated | deleted
	Detail    string    `json:"detail,omitempty"`
}

// ToJSON возвращает запись в JSON формате // v1.0
func (r *ModerationRecord) ToJSON() ([]byte, error) {
	return json.Marshal(r)
}

// ToJSON возвращает запись в JSON формате // v1.0
func (r *MembershipRecord) ToJSON() ([]byte, error) {
	return json.Marshal(r)
}

// ToJSON возвращает запись в JSON формате // v1.0
func (e *RuleAuditEntry) ToJSON() ([]byte, error) {
	return json.Marshal(e)
}
