// internal/adminapi/server/server.go
package server

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/crypto/bcrypt"

	"github.com/chatguard/chatguard/internal/adminapi/routes"
	"github.com/chatguard/chatguard/internal/common/logging"
)

// Server представляет HTTP сервер Admin API // v1.0
type Server struct {
	config *Config
	logger *logging.Logger
	router *gin.Engine
	server *http.Server
}

// Config конфигурация сервера // v1.0
type Config struct {
	Host         string        `yaml:"host"`
	Port         int           `yaml:"port"`
	ReadTimeout  time.Duration `yaml:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
	IdleTimeout  time.Duration `yaml:"idle_timeout"`
	LogLevel     string        `yaml:"log_level"`
	// TokenHash — bcrypt хэш админского токена; пустой отключает аутентификацию
	TokenHash string `yaml:"token_hash"`
}

// Handlers обработчики роутов сервера
type Handlers struct {
	Health *routes.HealthHandler
	Rules  *routes.RulesHandler
}

// NewServer создает новый HTTP сервер // v1.0
func NewServer(config *Config, logger *logging.Logger, handlers Handlers) *Server {
	// Устанавливаем уровень логирования Gin
	if config.LogLevel == "debug" {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()

	// Добавляем middleware
	router.Use(gin.Recovery())
	router.Use(loggingMiddleware(logger))

	server := &Server{
		config: config,
		logger: logger,
		router: router,
	}

	server.setupRoutes(handlers)

	server.server = &http.Server{
		Addr:         fmt.Sprintf("%s:%d", config.Host, config.Port),
		Handler:      router,
		ReadTimeout:  config.ReadTimeout,
		WriteTimeout: config.WriteTimeout,
		IdleTimeout:  config.IdleTimeout,
	}

	return server
}

// setupRoutes настраивает роуты API. Health доступен без токена,
// мутации правил — только с ним // v1.0
func (s *Server) setupRoutes(handlers Handlers) {
	v1 := s.router.Group("/api/v1")
	{
		v1.GET("/health", handlers.Health.HealthCheck)
		v1.GET("/health/ready", handlers.Health.ReadinessCheck)
		v1.GET("/health/live", handlers.Health.LivenessCheck)
		v1.GET("/health/status", handlers.Health.Status)

		rules := v1.Group("/rules")
		rules.Use(authMiddleware(s.config.TokenHash))
		{
			rules.GET("", handlers.Rules.GetRules)
			rules.POST("", handlers.Rules.CreateRule)
			rules.POST("/validate", handlers.Rules.ValidateRule)
			rules.GET("/:id", handlers.Rules.GetRuleByID)
			rules.PUT("/:id", handlers.Rules.UpdateRule)
			rules.DELETE("/:id", handlers.Rules.DeleteRule)
			rules.PUT("/:id/enable", handlers.Rules.EnableRule)
			rules.PUT("/:id/disable", handlers.Rules.DisableRule)
		}
	}

	s.router.GET("/", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"service":   "ChatGuard Admin API",
			"version":   "1.0.0",
			"status":    "running",
			"timestamp": time.Now().Format(time.RFC3339),
			"endpoints": gin.H{
				"health": "/api/v1/health",
				"rules":  "/api/v1/rules",
			},
		})
	})

	s.router.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, gin.H{
			"error":     "Endpoint not found",
			"message":   fmt.Sprintf("Method %s %s not found", c.Request.Method, c.Request.URL.Path),
			"timestamp": time.Now().Format(time.RFC3339),
		})
	})
}

// Start запускает HTTP сервер // v1.0
func (s *Server) Start() error {
	s.logger.Logger.WithFields(map[string]interface{}{
		"host": s.config.Host,
		"port": s.config.Port,
	}).Info("Starting Admin API server")

	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("failed to start server: %w", err)
	}

	return nil
}

// Stop останавливает HTTP сервер // v1.0
func (s *Server) Stop(ctx context.Context) error {
	s.logger.Logger.Info("Stopping Admin API server")

	if err := s.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("failed to shutdown server: %w", err)
	}

	return nil
}

// GetRouter возвращает роутер для тестирования // v1.0
func (s *Server) GetRouter() *gin.Engine {
	return s.router
}

// loggingMiddleware добавляет логирование запросов // v1.0
func loggingMiddleware(logger *logging.Logger) gin.HandlerFunc {
	return gin.LoggerWithFormatter(func(param gin.LogFormatterParams) string {
		logger.Logger.WithFields(map[string]interface{}{
			"method":    param.Method,
			"path":      param.Path,
			"status":    param.StatusCode,
			"latency":   param.Latency,
			"client_ip": param.ClientIP,
		}).Info("HTTP request")

		return ""
	})
}

// authMiddleware сверяет bearer-токен с bcrypt хэшем из конфигурации // v1.0
func authMiddleware(tokenHash string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if tokenHash == "" {
			c.Next()
			return
		}

		header := c.GetHeader("Authorization")
		token, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || token == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error":   "Unauthorized",
				"message": "Bearer token required",
			})
			return
		}

		if err := bcrypt.CompareHashAndPassword([]byte(tokenHash), []byte(token)); err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error":   "Unauthorized",
				"message": "Invalid token",
			})
			return
		}

		c.Next()
	}
}
