// internal/moderator/service.go
package moderator

import (
	"context"
	"encoding/json"
	"time"

	cgerrors "github.com/chatguard/chatguard/internal/common/errors"
	"github.com/chatguard/chatguard/internal/common/logging"
	natsclient "github.com/chatguard/chatguard/internal/common/nats"
	"github.com/chatguard/chatguard/internal/models"
)

// dedupTTL — окно, в пределах которого повторная доставка события
// считается дубликатом
const dedupTTL = 5 * time.Minute

// Invalidator сбрасывает кэш правил движка
type Invalidator interface {
	Invalidate(chatID int64)
	InvalidateAll()
}

// InvalidateMessage представляет сообщение сброса кэша правил.
// ChatID=0 означает полный сброс: правки глобальных правил видны всем чатам.
type InvalidateMessage struct {
	ChatID int64  `json:"chat_id"`
	RuleID string `json:"rule_id,omitempty"`
}

// Service связывает шину событий с диспетчером и движком правил
type Service struct {
	logger      *logging.Logger
	nats        *natsclient.Client
	dispatcher  *Dispatcher
	invalidator Invalidator
	dedup       *dedupCache
}

// NewService создает сервис модератора // v1.0
func NewService(logger *logging.Logger, nats *natsclient.Client, dispatcher *Dispatcher, invalidator Invalidator) *Service {
	return &Service{
		logger:      logger,
		nats:        nats,
		dispatcher:  dispatcher,
		invalidator: invalidator,
		dedup:       newDedupCache(dedupTTL),
	}
}

// Start подписывается на события чатов и сбросы кэша правил // v1.0
func (s *Service) Start(ctx context.Context) error {
	s.dispatcher.Start(ctx)

	if err := s.nats.Subscribe(natsclient.SubjectChatEvents, s.handleChatEvent); err != nil {
		return err
	}
	if err := s.nats.Subscribe(natsclient.SubjectRuleInvalidate, s.handleInvalidate); err != nil {
		return err
	}

	s.logger.Logger.Info("Moderator service started")
	return nil
}

// Stop отписывается от шины и дожидается диспетчера // v1.0
func (s *Service) Stop(ctx context.Context) error {
	_ = s.nats.Unsubscribe(natsclient.SubjectChatEvents)
	_ = s.nats.Unsubscribe(natsclient.SubjectRuleInvalidate)
	return s.dispatcher.Shutdown(ctx)
}

// handleChatEvent разбирает событие и передает диспетчеру. Повторная
// доставка одного сообщения (JetStream передоставляет при потере
// подтверждения) подавляется по ключу дедупликации // v1.0
func (s *Service) handleChatEvent(data []byte) {
	event, err := models.NewEventFromJSON(data)
	if err != nil {
		perr := cgerrors.Wrap(err, cgerrors.ErrorCodeEventParseFailed, "chat event parse failed")
		s.logger.Logger.WithError(perr).Error("Failed to parse chat event")
		return
	}

	if event.Message != nil && s.dedup.observe(event.DedupKey(), time.Now()) {
		s.logger.WithChat(event.Chat.ID).Debug("Duplicate delivery suppressed")
		return
	}

	if !s.dispatcher.Submit(event) {
		s.logger.WithChat(event.Chat.ID).Debug("Event not admitted to pipeline")
	}
}

// handleInvalidate сбрасывает кэш правил по сообщению шины // v1.0
func (s *Service) handleInvalidate(data []byte) {
	var msg InvalidateMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		s.logger.Logger.WithError(err).Error("Failed to parse invalidate message")
		return
	}

	if msg.ChatID == 0 {
		s.invalidator.InvalidateAll()
		return
	}
	s.invalidator.Invalidate(msg.ChatID)
}
