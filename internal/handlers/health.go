package handlers

import (
	"context"
	"time"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/codebuildervaibhav/podcast-summarizer/internal/cleanup"
)

// Version is reported by the health endpoint
const Version = "1.0.0"

// HealthReporter reports the processing backlog
type HealthReporter interface {
	Health(ctx context.Context) (*cleanup.HealthReport, error)
}

// QueueLength reports how many jobs are waiting
type QueueLength interface {
	Len(ctx context.Context) (int, error)
}

// LogSource returns recent log lines
type LogSource interface {
	Lines() []string
}

// HealthHandler serves GET /health and GET /logs
type HealthHandler struct {
	reporter HealthReporter
	queue    QueueLength
	logs     LogSource
	started  time.Time
	logger   *zap.Logger
}

// NewHealthHandler creates a health handler. queue and logs may be nil.
func NewHealthHandler(reporter HealthReporter, queue QueueLength, logs LogSource, logger *zap.Logger) *HealthHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &HealthHandler{
		reporter: reporter,
		queue:    queue,
		logs:     logs,
		started:  time.Now(),
		logger:   logger.With(zap.String("component", "http")),
	}
}

// Health handles GET /health
func (h *HealthHandler) Health(c *fiber.Ctx) error {
	report, err := h.reporter.Health(c.UserContext())
	if err != nil {
		h.logger.Error("health check failed", zap.Error(err))
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{
			"status":  "unhealthy",
			"version": Version,
			"error":   err.Error(),
		})
	}

	body := fiber.Map{
		"status":  "healthy",
		"version": Version,
		"uptime":  time.Since(h.started).Round(time.Second).String(),
		"report":  report,
	}
	if !report.Healthy {
		body["status"] = "degraded"
	}
	if h.queue != nil {
		if n, err := h.queue.Len(c.UserContext()); err == nil {
			body["queue_depth"] = n
		} else {
			h.logger.Warn("failed to read queue depth", zap.Error(err))
		}
	}
	return c.JSON(body)
}

// Logs handles GET /logs
func (h *HealthHandler) Logs(c *fiber.Ctx) error {
	if h.logs == nil {
		return c.JSON(fiber.Map{"logs": []string{}, "count": 0})
	}
	lines := h.logs.Lines()
	return c.JSON(fiber.Map{
		"logs":  lines,
		"count": len(lines),
	})
}
