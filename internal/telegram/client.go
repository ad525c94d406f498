// internal/telegram/client.go
package telegram

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// Client представляет клиент Telegram Bot API.
// Вызовы не ретраятся автоматически: повторы на усмотрение вызывающего.
type Client struct {
	config Config
	client *http.Client
}

// Config представляет конфигурацию Telegram Bot API
type Config struct {
	BotToken  string        `yaml:"bot_token"`
	BaseURL   string        `yaml:"base_url"`
	ParseMode string        `yaml:"parse_mode"` // HTML, Markdown, MarkdownV2
	Timeout   time.Duration `yaml:"timeout"`
}

// apiResponse представляет ответ Telegram API
type apiResponse struct {
	OK          bool   `json:"ok"`
	Description string `json:"description,omitempty"`
	ErrorCode   int    `json:"error_code,omitempty"`
}

// APIError представляет ошибку Telegram API
type APIError struct {
	Method      string
	Code        int
	Description string
}

// Error возвращает строковое представление ошибки // v1.0
func (e *APIError) Error() string {
	return fmt.Sprintf("telegram %s failed: %d %s", e.Method, e.Code, e.Description)
}

// sendMessageRequest тело запроса sendMessage
type sendMessageRequest struct {
	ChatID                int64  `json:"chat_id"`
	Text                  string `json:"text"`
	ParseMode             string `json:"parse_mode,omitempty"`
	ReplyToMessageID      int64  `json:"reply_to_message_id,omitempty"`
	DisableWebPagePreview bool   `json:"disable_web_page_preview,omitempty"`
}

// deleteMessageRequest тело запроса deleteMessage
type deleteMessageRequest struct {
	ChatID    int64 `json:"chat_id"`
	MessageID int64 `json:"message_id"`
}

// chatPermissions битовая маска разрешений участника
type chatPermissions struct {
	CanSendMessages      bool `json:"can_send_messages"`
	CanSendMediaMessages bool `json:"can_send_media_messages"`
	CanSendPolls         bool `json:"can_send_polls"`
	CanSendOtherMessages bool `json:"can_send_other_messages"`
	CanAddWebPagePreview bool `json:"can_add_web_page_previews"`
}

// restrictMemberRequest тело запроса restrictChatMember
type restrictMemberRequest struct {
	ChatID      int64           `json:"chat_id"`
	UserID      int64           `json:"user_id"`
	Permissions chatPermissions `json:"permissions"`
	UntilDate   int64           `json:"until_date,omitempty"`
}

// banMemberRequest тело запроса banChatMember
type banMemberRequest struct {
	ChatID    int64 `json:"chat_id"`
	UserID    int64 `json:"user_id"`
	UntilDate int64 `json:"until_date,omitempty"`
}

// unbanMemberRequest тело запроса unbanChatMember
type unbanMemberRequest struct {
	ChatID       int64 `json:"chat_id"`
	UserID       int64 `json:"user_id"`
	OnlyIfBanned bool  `json:"only_if_banned"`
}

// NewClient создает новый клиент Telegram Bot API // v1.0
func NewClient(config Config) *Client {
	if config.BaseURL == "" {
		config.BaseURL = "https://api.telegram.org"
	}
	if config.Timeout <= 0 {
		config.Timeout = 10 * time.Second
	}

	return &Client{
		config: config,
		client: &http.Client{Timeout: config.Timeout},
	}
}

// SendMessage отправляет сообщение в чат // v1.0
func (c *Client) SendMessage(ctx context.Context, chatID int64, text string, replyToID int64, parseMode string) error {
	if parseMode == "" {
		parseMode = c.config.ParseMode
	}
	req := sendMessageRequest{
		ChatID:                chatID,
		Text:                  text,
		ParseMode:             parseMode,
		ReplyToMessageID:      replyToID,
		DisableWebPagePreview: true,
	}
	return c.call(ctx, "sendMessage", req)
}

// DeleteMessage удаляет сообщение из чата // v1.0
func (c *Client) DeleteMessage(ctx context.Context, chatID, messageID int64) error {
	return c.call(ctx, "deleteMessage", deleteMessageRequest{
		ChatID:    chatID,
		MessageID: messageID,
	})
}

// RestrictMember снимает разрешения участника, опционально до указанного
// момента // v1.0
func (c *Client) RestrictMember(ctx context.Context, chatID, userID int64, until time.Time) error {
	req := restrictMemberRequest{
		ChatID: chatID,
		UserID: userID,
		// Все разрешения сняты
		Permissions: chatPermissions{},
	}
	if !until.IsZero() {
		req.UntilDate = until.Unix()
	}
	return c.call(ctx, "restrictChatMember", req)
}

// BanMember банит участника, опционально до указанного момента // v1.0
func (c *Client) BanMember(ctx context.Context, chatID, userID int64, until time.Time) error {
	req := banMemberRequest{
		ChatID: chatID,
		UserID: userID,
	}
	if !until.IsZero() {
		req.UntilDate = until.Unix()
	}
	return c.call(ctx, "banChatMember", req)
}

// UnbanMember снимает бан участника // v1.0
func (c *Client) UnbanMember(ctx context.Context, chatID, userID int64) error {
	return c.call(ctx, "unbanChatMember", unbanMemberRequest{
		ChatID:       chatID,
		UserID:       userID,
		OnlyIfBanned: true,
	})
}

// KickMember исключает участника: бан и немедленный разбан, чтобы участник
// мог вернуться по приглашению // v1.0
func (c *Client) KickMember(ctx context.Context, chatID, userID int64) error {
	if err := c.BanMember(ctx, chatID, userID, time.Time{}); err != nil {
		return err
	}
	return c.UnbanMember(ctx, chatID, userID)
}

// call выполняет вызов метода Bot API // v1.0
func (c *Client) call(ctx context.Context, method string, payload interface{}) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal %s request: %w", method, err)
	}

	url := fmt.Sprintf("%s/bot%s/%s", c.config.BaseURL, c.config.BotToken, method)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to build %s request: %w", method, err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return fmt.Errorf("telegram %s request failed: %w", method, err)
	}
	defer resp.Body.Close()

	var apiResp apiResponse
	if err := json.NewDecoder(resp.Body).Decode(&apiResp); err != nil {
		return fmt.Errorf("failed to decode %s response: %w", method, err)
	}

	if !apiResp.OK {
		return &APIError{
			Method:      method,
			Code:        apiResp.ErrorCode,
			Description: apiResp.Description,
		}
	}

	return nil
}
