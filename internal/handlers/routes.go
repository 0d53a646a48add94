package handlers

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"
)

// Register mounts every endpoint on app
func Register(app *fiber.App, summaries *SummaryHandler, stream *StreamHandler, health *HealthHandler) {
	app.Get("/health", health.Health)
	app.Get("/logs", health.Logs)

	app.Post("/summaries", summaries.Submit)
	app.Get("/summaries", summaries.List)
	app.Get("/summaries/:id", summaries.Get)
	app.Post("/summaries/:id/retry", summaries.Retry)
	app.Get("/summaries/:id/stream", stream.HandleSSE)

	app.Use("/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return c.Status(fiber.StatusUpgradeRequired).JSON(fiber.Map{
			"error": "WebSocket upgrade required",
			"code":  "ERR_UPGRADE_REQUIRED",
		})
	})
	app.Get("/ws/summaries/:id", websocket.New(stream.HandleWebSocket))
}
