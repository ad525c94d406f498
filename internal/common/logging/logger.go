// internal/common/logging/logger.go
package logging

import (
	"io"
	"os"
	"path/filepath"

	"github.com/sirupsen/logrus"
)

// Logger представляет логгер приложения
type Logger struct {
	*logrus.Logger
}

// Config представляет конфигурацию логирования
type Config struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
	Output string `yaml:"output" mapstructure:"output"`
}

// NewLogger создает новый логгер // v1.0
func NewLogger(config Config) (*Logger, error) {
	logger := logrus.New()

	// Устанавливаем уровень логирования
	level, err := logrus.ParseLevel(config.Level)
	if err != nil {
		return nil, err
	}
	logger.SetLevel(level)

	// Устанавливаем формат
	switch config.Format {
	case "text":
		logger.SetFormatter(&logrus.TextFormatter{
			FullTimestamp: true,
		})
	default:
		logger.SetFormatter(&logrus.JSONFormatter{})
	}

	// Устанавливаем вывод
	if err := setOutput(logger, config); err != nil {
		return nil, err
	}

	return &Logger{Logger: logger}, nil
}

// setOutput устанавливает вывод для логгера // v1.0
func setOutput(logger *logrus.Logger, config Config) error {
	switch config.Output {
	case "", "stdout":
		logger.SetOutput(os.Stdout)
	case "stderr":
		logger.SetOutput(os.Stderr)
	default:
		// Любое другое значение трактуется как путь к файлу
		dir := filepath.Dir(config.Output)
		if err := os.MkdirAll(dir, 0755); err != nil {
			return err
		}
		file, err := os.OpenFile(config.Output, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0666)
		if err != nil {
			return err
		}
		logger.SetOutput(io.MultiWriter(os.Stdout, file))
	}

	return nil
}

// WithChat добавляет информацию о чате к логгеру // v1.0
func (l *Logger) WithChat(chatID int64) *logrus.Entry {
	return l.Logger.WithField("chat_id", chatID)
}

// WithUser добавляет информацию об участнике к логгеру // v1.0
func (l *Logger) WithUser(chatID, userID int64) *logrus.Entry {
	return l.Logger.WithFields(logrus.Fields{
		"chat_id": chatID,
		"user_id": userID,
	})
}

// WithHandler добавляет имя обработчика к логгеру // v1.0
func (l *Logger) WithHandler(handler string, chatID int64) *logrus.Entry {
	return l.Logger.WithFields(logrus.Fields{
		"handler": handler,
		"chat_id": chatID,
	})
}

// WithRule добавляет информацию о правиле к логгеру // v1.0
func (l *Logger) WithRule(ruleID, ruleName string) *logrus.Entry {
	return l.Logger.WithFields(logrus.Fields{
		"rule_id":   ruleID,
		"rule_name": ruleName,
	})
}

// WithAction добавляет информацию о действии к логгеру // v1.0
func (l *Logger) WithAction(actionType string, chatID int64) *logrus.Entry {
	return l.Logger.WithFields(logrus.Fields{
		"action":  actionType,
		"chat_id": chatID,
	})
}

// SetLevel устанавливает уровень логирования // v1.0
func (l *Logger) SetLevel(level string) error {
	logLevel, err := logrus.ParseLevel(level)
	if err != nil {
		return err
	}
	l.Logger.SetLevel(logLevel)
	return nil
}
