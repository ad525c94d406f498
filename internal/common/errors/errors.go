// internal/common/errors/errors.go
package errors

import (
	"fmt"
)

// ErrorCode представляет код ошибки
type ErrorCode string

const (
	// Общие ошибки
	ErrorCodeInternal     ErrorCode = "INTERNAL_ERROR"
	ErrorCodeValidation   ErrorCode = "VALIDATION_ERROR"
	ErrorCodeNotFound     ErrorCode = "NOT_FOUND"
	ErrorCodeUnauthorized ErrorCode = "UNAUTHORIZED"
	ErrorCodeConflict     ErrorCode = "CONFLICT"
	ErrorCodeTimeout      ErrorCode = "TIMEOUT"

	// Ошибки событий
	ErrorCodeEventInvalid     ErrorCode = "EVENT_INVALID"
	ErrorCodeEventParseFailed ErrorCode = "EVENT_PARSE_FAILED"

	// Ошибки правил
	ErrorCodeRuleInvalid     ErrorCode = "RULE_INVALID"
	ErrorCodeRuleNotFound    ErrorCode = "RULE_NOT_FOUND"
	ErrorCodeRuleFetchFailed ErrorCode = "RULE_FETCH_FAILED"

	// Ошибки Telegram API
	ErrorCodeTelegramAPI     ErrorCode = "TELEGRAM_API_ERROR"
	ErrorCodeTelegramTimeout ErrorCode = "TELEGRAM_TIMEOUT"

	// Ошибки хранилищ
	ErrorCodePGConnection ErrorCode = "PG_CONNECTION_ERROR"
	ErrorCodePGQuery      ErrorCode = "PG_QUERY_ERROR"
	ErrorCodeCHConnection ErrorCode = "CH_CONNECTION_ERROR"
	ErrorCodeCHInsert     ErrorCode = "CH_INSERT_ERROR"

	// Ошибки NATS
	ErrorCodeNATSConnection ErrorCode = "NATS_CONNECTION_ERROR"
	ErrorCodeNATSPublish    ErrorCode = "NATS_PUBLISH_ERROR"
	ErrorCodeNATSSubscribe  ErrorCode = "NATS_SUBSCRIBE_ERROR"
)

// ChatGuardError представляет доменную ошибку
type ChatGuardError struct {
	Code       ErrorCode              `json:"code"`
	Message    string                 `json:"message"`
	Details    map[string]interface{} `json:"details,omitempty"`
	Internal   error                  `json:"-"`
	StatusCode int                    `json:"status_code"`
}

// Error возвращает строковое представление ошибки // v1.0
func (e *ChatGuardError) Error() string {
	if e.Internal != nil {
		return fmt.Sprintf("%s: %s (internal: %v)", e.Code, e.Message, e.Internal)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap возвращает внутреннюю ошибку // v1.0
func (e *ChatGuardError) Unwrap() error {
	return e.Internal
}

// New создает новую доменную ошибку // v1.0
func New(code ErrorCode, message string) *ChatGuardError {
	return &ChatGuardError{
		Code:       code,
		Message:    message,
		StatusCode: getStatusCode(code),
	}
}

// Wrap оборачивает существующую ошибку // v1.0
func Wrap(err error, code ErrorCode, message string) *ChatGuardError {
	return &ChatGuardError{
		Code:       code,
		Message:    message,
		Internal:   err,
		StatusCode: getStatusCode(code),
	}
}

// AddDetail добавляет деталь к ошибке // v1.0
func (e *ChatGuardError) AddDetail(key string, value interface{}) *ChatGuardError {
	if e.Details == nil {
		e.Details = make(map[string]interface{})
	}
	e.Details[key] = value
	return e
}

// IsErrorCode проверяет код ошибки // v1.0
func IsErrorCode(err error, code ErrorCode) bool {
	if cgErr, ok := err.(*ChatGuardError); ok {
		return cgErr.Code == code
	}
	return false
}

// GetErrorCode возвращает код ошибки // v1.0
func GetErrorCode(err error) ErrorCode {
	if cgErr, ok := err.(*ChatGuardError); ok {
		return cgErr.Code
	}
	return ErrorCodeInternal
}

// getStatusCode возвращает HTTP статус код для кода ошибки // v1.0
func getStatusCode(code ErrorCode) int {
	switch code {
	case ErrorCodeValidation, ErrorCodeEventInvalid, ErrorCodeRuleInvalid:
		return 400
	case ErrorCodeUnauthorized:
		return 401
	case ErrorCodeNotFound, ErrorCodeRuleNotFound:
		return 404
	case ErrorCodeConflict:
		return 409
	case ErrorCodeTimeout:
		return 408
	default:
		return 500
	}
}

// ValidationError создает ошибку валидации // v1.0
func ValidationError(field, message string) *ChatGuardError {
	return New(ErrorCodeValidation, fmt.Sprintf("validation failed for field '%s': %s", field, message))
}

// NotFoundError создает ошибку "не найдено" // v1.0
func NotFoundError(resource, id string) *ChatGuardError {
	return New(ErrorCodeNotFound, fmt.Sprintf("%s with id '%s' not found", resource, id))
}

// UnauthorizedError создает ошибку авторизации // v1.0
func UnauthorizedError(message string) *ChatGuardError {
	if message == "" {
		message = "authentication required"
	}
	return New(ErrorCodeUnauthorized, message)
}
