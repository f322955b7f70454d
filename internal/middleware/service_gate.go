package middleware

import (
	"github.com/gofiber/fiber/v2"
	"github.com/sirupsen/logrus"
)

// RequireRunning refuses new work while the inference server is not running.
func (m *middleware) RequireRunning(running func() bool) fiber.Handler {
	return func(ctx *fiber.Ctx) error {
		if running() || ctx.Method() == fiber.MethodOptions {
			return ctx.Next()
		}

		m.log.WithFields(logrus.Fields{
			"request_id": m.GetRequestID(ctx),
			"path":       ctx.Path(),
		}).Warn("Request refused, inference server is stopping")

		return ctx.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{
			"error": "inference server is not running",
			"code":  "SERVICE_STOPPED",
		})
	}
}
