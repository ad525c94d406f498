// internal/models/event.go
package models

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// Типы чатов, в которых может появиться событие
const (
	ChatTypePrivate    = "private"
	ChatTypeGroup      = "group"
	ChatTypeSupergroup = "supergroup"
	ChatTypeChannel    = "channel"
)

// Роли отправителя в чате
const (
	RoleNew        = "new"
	RoleMember     = "member"
	RoleRestricted = "restricted"
	RoleAdmin      = "admin"
	RoleOwner      = "owner"
)

// Виды медиа-вложений
const (
	MediaPhoto     = "photo"
	MediaVideo     = "video"
	MediaDocument  = "document"
	MediaAnimation = "animation"
	MediaAudio     = "audio"
	MediaVoice     = "voice"
	MediaSticker   = "sticker"
	MediaVideoNote = "video_note"
)

// Event представляет единую модель входящего события чата
type Event struct {
	TS         time.Time   `json:"ts" validate:"required"`
	Chat       Chat        `json:"chat" validate:"required"`
	Sender     *User       `json:"sender,omitempty"`
	Message    *Message    `json:"message,omitempty"`
	Membership *Membership `json:"membership,omitempty"`
	Service    *Service    `json:"service,omitempty"`
	Raw        string      `json:"raw,omitempty"`
}

// Chat представляет информацию о чате
type Chat struct {
	ID    int64  `json:"id"`
	Type  string `json:"type"`
	Title string `json:"title,omitempty"`
}

// User представляет участника чата
type User struct {
	ID          int64  `json:"id"`
	Username    string `json:"username,omitempty"`
	DisplayName string `json:"display_name"`
	Role        string `json:"role,omitempty"`
}

// Message представляет сообщение внутри события
type Message struct {
	ID        int64    `json:"id"`
	Text      string   `json:"text,omitempty"`
	Entities  []Entity `json:"entities,omitempty"`
	Media     []Media  `json:"media,omitempty"`
	ReplyToID int64    `json:"reply_to_id,omitempty"`
}

// Entity представляет размеченный фрагмент текста сообщения
type Entity struct {
	Type   string `json:"type"`
	Offset int    `json:"offset"`
	Length int    `json:"length"`
	URL    string `json:"url,omitempty"`
}

// Media представляет медиа-вложение сообщения
type Media struct {
	Kind     string `json:"kind"`
	FileID   string `json:"file_id,omitempty"`
	FileSize int64  `json:"file_size,omitempty"`
	// Photo приходит в нескольких разрешениях, размеры перечислены отдельно
	PhotoSizes []int64 `json:"photo_sizes,omitempty"`
}

// Membership представляет изменение состава участников
type Membership struct {
	Joined []User `json:"joined,omitempty"`
	Left   []User `json:"left,omitempty"`
}

// Service представляет сервисные флаги события
type Service struct {
	PinnedMessageID int64  `json:"pinned_message_id,omitempty"`
	NewTitle        string `json:"new_title,omitempty"`
	TitleChanged    bool   `json:"title_changed,omitempty"`
	PhotoChanged    bool   `json:"photo_changed,omitempty"`
	PhotoRemoved    bool   `json:"photo_removed,omitempty"`
	GroupUpgraded   bool   `json:"group_upgraded,omitempty"`
}

// NewEventFromJSON создает событие из JSON данных // v1.0
func NewEventFromJSON(data []byte) (*Event, error) {
	var event Event
	if err := json.Unmarshal(data, &event); err != nil {
		return nil, fmt.Errorf("failed to parse event: %w", err)
	}

	// Валидация обязательных полей
	if event.Chat.ID == 0 {
		return nil, fmt.Errorf("chat id is required")
	}
	if event.Chat.Type == "" {
		return nil, fmt.Errorf("chat type is required")
	}
	if event.TS.IsZero() {
		event.TS = time.Now()
	}

	return &event, nil
}

// ToJSON возвращает событие в JSON формате // v1.0
func (e *Event) ToJSON() ([]byte, error) {
	return json.Marshal(e)
}

// IsGroupChat проверяет, пришло ли событие из многопользовательского чата // v1.0
func (e *Event) IsGroupChat() bool {
	return e.Chat.Type == ChatTypeGroup || e.Chat.Type == ChatTypeSupergroup
}

// HasText проверяет, содержит ли событие текстовое сообщение // v1.0
func (e *Event) HasText() bool {
	return e.Message != nil && strings.TrimSpace(e.Message.Text) != ""
}

// HasMedia проверяет, содержит ли событие медиа-вложения // v1.0
func (e *Event) HasMedia() bool {
	return e.Message != nil && len(e.Message.Media) > 0
}

// HasMembershipDelta проверяет, есть ли изменение состава участников // v1.0
func (e *Event) HasMembershipDelta() bool {
	return e.Membership != nil && (len(e.Membership.Joined) > 0 || len(e.Membership.Left) > 0)
}

// HasServiceFlags проверяет, есть ли сервисные флаги // v1.0
func (e *Event) HasServiceFlags() bool {
	if e.Service == nil {
		return false
	}
	s := e.Service
	return s.PinnedMessageID != 0 || s.TitleChanged || s.PhotoChanged || s.PhotoRemoved || s.GroupUpgraded
}

// SenderID возвращает идентификатор отправителя или 0 // v1.0
func (e *Event) SenderID() int64 {
	if e.Sender == nil {
		return 0
	}
	return e.Sender.ID
}

// SenderRole возвращает роль отправителя, по умолчанию member // v1.0
func (e *Event) SenderRole() string {
	if e.Sender == nil || e.Sender.Role == "" {
		return RoleMember
	}
	return e.Sender.Role
}

// MessageID возвращает идентификатор сообщения или 0 // v1.0
func (e *Event) MessageID() int64 {
	if e.Message == nil {
		return 0
	}
	return e.Message.ID
}

// MediaKinds возвращает виды вложений сообщения // v1.0
func (e *Event) MediaKinds() []string {
	if e.Message == nil {
		return nil
	}
	kinds := make([]string, 0, len(e.Message.Media))
	for _, m := range e.Message.Media {
		kinds = append(kinds, m.Kind)
	}
	return kinds
}

// LargestMediaSizeMB возвращает наибольший размер вложения в мегабайтах // v1.0
func (e *Event) LargestMediaSizeMB() float64 {
	if e.Message == nil {
		return 0
	}

	var largest int64
	for _, m := range e.Message.Media {
		size := m.FileSize
		// Для фото берем наибольшее из разрешений
		for _, ps := range m.PhotoSizes {
			if ps > size {
				size = ps
			}
		}
		if size > largest {
			largest = size
		}
	}

	return float64(largest) / (1024 * 1024)
}

// DedupKey возвращает ключ для дедупликации события // v1.0
func (e *Event) DedupKey() string {
	return fmt.Sprintf("%d:%d:%d", e.Chat.ID, e.SenderID(), e.MessageID())
}
