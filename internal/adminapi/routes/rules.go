// internal/adminapi/routes/rules.go
package routes

import (
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	cgerrors "github.com/chatguard/chatguard/internal/common/errors"
	"github.com/chatguard/chatguard/internal/common/logging"
	natsclient "github.com/chatguard/chatguard/internal/common/nats"
	"github.com/chatguard/chatguard/internal/models"
	"github.com/chatguard/chatguard/internal/storage"
)

// InvalidatePublisher публикует сообщения сброса кэша правил
type InvalidatePublisher interface {
	Publish(subject string, payload interface{}) error
}

// RulesHandler обработчик CRUD файрвол-правил // v1.0
type RulesHandler struct {
	logger *logging.Logger
	store  *storage.RuleStore
	bus    InvalidatePublisher
}

// invalidateMessage сообщение сброса кэша; chat_id=0 — полный сброс
type invalidateMessage struct {
	ChatID int64  `json:"chat_id"`
	RuleID string `json:"rule_id,omitempty"`
}

// NewRulesHandler создает новый обработчик правил // v1.0
func NewRulesHandler(logger *logging.Logger, store *storage.RuleStore, bus InvalidatePublisher) *RulesHandler {
	return &RulesHandler{
		logger: logger,
		store:  store,
		bus:    bus,
	}
}

// GetRules возвращает правила чата, включая отключенные // v1.0
func (h *RulesHandler) GetRules(c *gin.Context) {
	chatID, err := strconv.ParseInt(c.Query("chat_id"), 10, 64)
	if err != nil {
		respondError(c, cgerrors.ValidationError("chat_id", "query parameter is required and must be an integer"))
		return
	}

	limit := 100
	if l, err := strconv.Atoi(c.Query("limit")); err == nil && l > 0 && l <= 1000 {
		limit = l
	}
	offset := 0
	if o, err := strconv.Atoi(c.Query("offset")); err == nil && o >= 0 {
		offset = o
	}

	rules, err := h.store.ListRules(c.Request.Context(), chatID, limit, offset)
	if err != nil {
		h.logger.WithChat(chatID).WithError(err).Error("Failed to list rules")
		respondError(c, cgerrors.Wrap(err, cgerrors.ErrorCodePGQuery, "failed to retrieve rules"))
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"rules":   rules,
		"total":   len(rules),
		"chat_id": chatID,
		"limit":   limit,
		"offset":  offset,
	})
}

// GetRuleByID возвращает правило по ID // v1.0
func (h *RulesHandler) GetRuleByID(c *gin.Context) {
	ruleID := c.Param("id")

	rule, err := h.store.GetRule(c.Request.Context(), ruleID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			respondError(c, ruleNotFound(ruleID))
			return
		}
		h.logger.Logger.WithError(err).Error("Failed to query rule")
		respondError(c, cgerrors.Wrap(err, cgerrors.ErrorCodePGQuery, "failed to retrieve rule"))
		return
	}

	c.JSON(http.StatusOK, rule)
}

// CreateRule создает новое правило с полной валидацией. Правило,
// совпадающее с любым событием (match_all без условий), принимается, но
// помечается предупреждением в ответе // v1.0
func (h *RulesHandler) CreateRule(c *gin.Context) {
	var rule models.FirewallRuleConfig
	if err := c.ShouldBindJSON(&rule); err != nil {
		respondError(c, cgerrors.Wrap(err, cgerrors.ErrorCodeValidation, "invalid request body"))
		return
	}

	if rule.ID == "" {
		rule.ID = uuid.NewString()
	}
	if rule.Version == 0 {
		rule.Version = 1
	}
	now := time.Now()
	rule.CreatedAt = now
	rule.UpdatedAt = now

	if err := rule.Validate(); err != nil {
		respondError(c, cgerrors.Wrap(err, cgerrors.ErrorCodeRuleInvalid, err.Error()))
		return
	}

	ctx := c.Request.Context()
	if err := h.store.CreateRule(ctx, &rule); err != nil {
		h.logger.WithRule(rule.ID, rule.Name).WithError(err).Error("Failed to create rule")
		respondError(c, cgerrors.Wrap(err, cgerrors.ErrorCodePGQuery, "failed to create rule"))
		return
	}

	h.auditAndInvalidate(c, &rule, "created")

	response := gin.H{
		"message":    "Rule created successfully",
		"id":         rule.ID,
		"chat_id":    rule.ChatID,
		"created_at": rule.CreatedAt.Format(time.RFC3339),
	}
	if rule.MatchesEverything() {
		response["warnings"] = []string{
			"rule has match_all=true and no conditions: it will fire on every event in scope",
		}
	}

	c.JSON(http.StatusCreated, response)
}

// UpdateRule обновляет правило с оптимистичной проверкой версии // v1.0
func (h *RulesHandler) UpdateRule(c *gin.Context) {
	ruleID := c.Param("id")

	var rule models.FirewallRuleConfig
	if err := c.ShouldBindJSON(&rule); err != nil {
		respondError(c, cgerrors.Wrap(err, cgerrors.ErrorCodeValidation, "invalid request body"))
		return
	}
	rule.ID = ruleID

	ctx := c.Request.Context()
	existing, err := h.store.GetRule(ctx, ruleID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			respondError(c, ruleNotFound(ruleID))
			return
		}
		h.logger.Logger.WithError(err).Error("Failed to check rule existence")
		respondError(c, cgerrors.Wrap(err, cgerrors.ErrorCodePGQuery, "failed to check rule existence"))
		return
	}

	if rule.Version != 0 && rule.Version != existing.Version {
		respondError(c, cgerrors.New(cgerrors.ErrorCodeConflict, "rule has been modified by another user"))
		return
	}

	rule.Version = existing.Version + 1
	rule.CreatedBy = existing.CreatedBy
	rule.CreatedAt = existing.CreatedAt
	rule.UpdatedAt = time.Now()

	if err := rule.Validate(); err != nil {
		respondError(c, cgerrors.Wrap(err, cgerrors.ErrorCodeRuleInvalid, err.Error()))
		return
	}

	if err := h.store.UpdateRule(ctx, &rule); err != nil {
		h.logger.WithRule(rule.ID, rule.Name).WithError(err).Error("Failed to update rule")
		respondError(c, cgerrors.Wrap(err, cgerrors.ErrorCodePGQuery, "failed to update rule"))
		return
	}

	h.auditAndInvalidate(c, &rule, "updated")
	// Если правило сменило чат, старый набор тоже устарел
	if existing.ChatID != rule.ChatID {
		h.publishInvalidate(existing.ChatID, rule.ID)
	}

	response := gin.H{
		"message":    "Rule updated successfully",
		"id":         rule.ID,
		"version":    rule.Version,
		"updated_at": rule.UpdatedAt.Format(time.RFC3339),
	}
	if rule.MatchesEverything() {
		response["warnings"] = []string{
			"rule has match_all=true and no conditions: it will fire on every event in scope",
		}
	}

	c.JSON(http.StatusOK, response)
}

// DeleteRule удаляет правило и сбрасывает кэш его чата // v1.0
func (h *RulesHandler) DeleteRule(c *gin.Context) {
	ruleID := c.Param("id")

	ctx := c.Request.Context()
	chatID, err := h.store.DeleteRule(ctx, ruleID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			respondError(c, ruleNotFound(ruleID))
			return
		}
		h.logger.Logger.WithError(err).Error("Failed to delete rule")
		respondError(c, cgerrors.Wrap(err, cgerrors.ErrorCodePGQuery, "failed to delete rule"))
		return
	}

	h.appendAudit(c, ruleID, chatID, "deleted", "")
	h.publishInvalidate(chatID, ruleID)

	c.JSON(http.StatusOK, gin.H{
		"message":    "Rule deleted successfully",
		"id":         ruleID,
		"deleted_at": time.Now().Format(time.RFC3339),
	})
}

// EnableRule включает правило // v1.0
func (h *RulesHandler) EnableRule(c *gin.Context) {
	h.setEnabled(c, true)
}

// DisableRule отключает правило // v1.0
func (h *RulesHandler) DisableRule(c *gin.Context) {
	h.setEnabled(c, false)
}

// ValidateRule валидирует правило без сохранения // v1.0
func (h *RulesHandler) ValidateRule(c *gin.Context) {
	var rule models.FirewallRuleConfig
	if err := c.ShouldBindJSON(&rule); err != nil {
		respondError(c, cgerrors.Wrap(err, cgerrors.ErrorCodeValidation, "invalid request body"))
		return
	}

	if rule.ID == "" {
		rule.ID = uuid.NewString()
	}
	if rule.Version == 0 {
		rule.Version = 1
	}

	if err := rule.Validate(); err != nil {
		c.JSON(http.StatusOK, gin.H{
			"valid":  false,
			"errors": []string{err.Error()},
		})
		return
	}

	warnings := []string{}
	if rule.MatchesEverything() {
		warnings = append(warnings,
			"rule has match_all=true and no conditions: it will fire on every event in scope")
	}

	c.JSON(http.StatusOK, gin.H{
		"valid":    true,
		"errors":   []string{},
		"warnings": warnings,
	})
}

// setEnabled переключает флаг enabled правила // v1.0
func (h *RulesHandler) setEnabled(c *gin.Context, enabled bool) {
	ruleID := c.Param("id")

	ctx := c.Request.Context()
	rule, err := h.store.GetRule(ctx, ruleID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			respondError(c, ruleNotFound(ruleID))
			return
		}
		h.logger.Logger.WithError(err).Error("Failed to load rule")
		respondError(c, cgerrors.Wrap(err, cgerrors.ErrorCodePGQuery, "failed to load rule"))
		return
	}

	rule.Enabled = enabled
	rule.UpdateVersion()

	if err := h.store.UpdateRule(ctx, rule); err != nil {
		h.logger.WithRule(rule.ID, rule.Name).WithError(err).Error("Failed to toggle rule")
		respondError(c, cgerrors.Wrap(err, cgerrors.ErrorCodePGQuery, "failed to update rule"))
		return
	}

	h.auditAndInvalidate(c, rule, "updated")

	c.JSON(http.StatusOK, gin.H{
		"message":    "Rule updated successfully",
		"id":         rule.ID,
		"enabled":    enabled,
		"updated_at": rule.UpdatedAt.Format(time.RFC3339),
	})
}

// auditAndInvalidate пишет аудит операции и публикует сброс кэша // v1.0
func (h *RulesHandler) auditAndInvalidate(c *gin.Context, rule *models.FirewallRuleConfig, operation string) {
	h.appendAudit(c, rule.ID, rule.ChatID, operation, rule.Name)
	h.publishInvalidate(rule.ChatID, rule.ID)
}

// appendAudit best-effort пишет запись аудита правила // v1.0
func (h *RulesHandler) appendAudit(c *gin.Context, ruleID string, chatID int64, operation, detail string) {
	entry := models.RuleAuditEntry{
		ID:        uuid.NewString(),
		TS:        time.Now(),
		RuleID:    ruleID,
		ChatID:    chatID,
		Operation: operation,
		Detail:    detail,
	}
	if err := h.store.AppendRuleAudit(c.Request.Context(), entry); err != nil {
		h.logger.Logger.WithError(err).Error("Failed to append rule audit")
	}
}

// publishInvalidate уведомляет модератор о смене набора правил.
// Глобальное правило (chat_id=0) сбрасывает кэш целиком // v1.0
func (h *RulesHandler) publishInvalidate(chatID int64, ruleID string) {
	msg := invalidateMessage{ChatID: chatID, RuleID: ruleID}
	if err := h.bus.Publish(natsclient.SubjectRuleInvalidate, msg); err != nil {
		h.logger.WithChat(chatID).WithError(cgerrors.Wrap(err, cgerrors.ErrorCodeNATSPublish, "rule invalidation publish failed")).Error("Failed to publish rule invalidation")
	}
}

// respondError пишет доменную ошибку с ее HTTP статусом // v1.0
func respondError(c *gin.Context, err *cgerrors.ChatGuardError) {
	body := gin.H{
		"code":  err.Code,
		"error": err.Message,
	}
	if len(err.Details) > 0 {
		body["details"] = err.Details
	}
	c.JSON(err.StatusCode, body)
}

// ruleNotFound формирует ошибку отсутствующего правила // v1.0
func ruleNotFound(ruleID string) *cgerrors.ChatGuardError {
	return cgerrors.New(cgerrors.ErrorCodeRuleNotFound, fmt.Sprintf("rule %s not found", ruleID))
}
