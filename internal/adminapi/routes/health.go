// internal/adminapi/routes/health.go
package routes

import (
	"context"
	"net/http"
	"runtime"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/chatguard/chatguard/internal/common/logging"
)

// Pinger проверяет доступность внешней зависимости
type Pinger interface {
	Ping(ctx context.Context) error
}

// connChecker проверяет состояние соединения с шиной
type connChecker interface {
	IsConnected() bool
}

// HealthHandler обработчик проверки здоровья сервиса // v1.0
type HealthHandler struct {
	logger    *logging.Logger
	startTime time.Time
	pg        Pinger
	nats      connChecker
}

// NewHealthHandler создает новый обработчик здоровья // v1.0
func NewHealthHandler(logger *logging.Logger, pg Pinger, nats connChecker) *HealthHandler {
	return &HealthHandler{
		logger:    logger,
		startTime: time.Now(),
		pg:        pg,
		nats:      nats,
	}
}

// HealthCheck проверяет общее состояние сервиса // v1.0
func (h *HealthHandler) HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":    "healthy",
		"service":   "chatguard-adminapi",
		"version":   "1.0.0",
		"timestamp": time.Now().Format(time.RFC3339),
		"uptime":    time.Since(h.startTime).Round(time.Second).String(),
	})
}

// ReadinessCheck проверяет готовность зависимостей // v1.0
func (h *HealthHandler) ReadinessCheck(c *gin.Context) {
	components := gin.H{}
	ready := true

	pgStatus := "healthy"
	if h.pg != nil {
		if err := h.pg.Ping(c.Request.Context()); err != nil {
			pgStatus = "unhealthy"
			ready = false
		}
	}
	components["postgresql"] = gin.H{"status": pgStatus}

	natsStatus := "healthy"
	if h.nats != nil && !h.nats.IsConnected() {
		natsStatus = "unhealthy"
		ready = false
	}
	components["nats"] = gin.H{"status": natsStatus}

	httpStatus := http.StatusOK
	status := "ready"
	if !ready {
		httpStatus = http.StatusServiceUnavailable
		status = "not_ready"
	}

	c.JSON(httpStatus, gin.H{
		"status":     status,
		"components": components,
		"timestamp":  time.Now().Format(time.RFC3339),
	})
}

// LivenessCheck проверяет, что процесс жив // v1.0
func (h *HealthHandler) LivenessCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":    "alive",
		"timestamp": time.Now().Format(time.RFC3339),
	})
}

// Status возвращает информацию о процессе // v1.0
func (h *HealthHandler) Status(c *gin.Context) {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)

	c.JSON(http.StatusOK, gin.H{
		"service":     "chatguard-adminapi",
		"version":     "1.0.0",
		"uptime":      time.Since(h.startTime).Round(time.Second).String(),
		"go_version":  runtime.Version(),
		"go_routines": runtime.NumGoroutine(),
		"memory": gin.H{
			"alloc_bytes": m.Alloc,
			"sys_bytes":   m.Sys,
			"num_gc":      m.NumGC,
		},
		"timestamp": time.Now().Format(time.RFC3339),
	})
}
