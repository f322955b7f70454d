package config

import (
	"github.com/gofiber/fiber/v2"
	jsoniter "github.com/json-iterator/go"
)

// NewFiber builds an app for one listener. Frames arrive as base64 JSON, so the
// body limit leaves room for large captures.
func NewFiber(name string) *fiber.App {
	app := fiber.New(
		fiber.Config{
			AppName:               name,
			BodyLimit:             16 * 1024 * 1024,
			DisableKeepalive:      false,
			StrictRouting:         true,
			CaseSensitive:         true,
			DisableStartupMessage: true,
			JSONEncoder:           jsoniter.Marshal,
			JSONDecoder:           jsoniter.Unmarshal,
		})

	return app
}
