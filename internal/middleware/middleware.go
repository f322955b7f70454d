package middleware

import (
	"PalmSpeak/pkg/requestid"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"
)

type Middleware interface {
	NewRateLimiter(ctx *fiber.Ctx) error
	NewRequestIDMiddleware() fiber.Handler
	NewCORS() fiber.Handler
	RequireRunning(running func() bool) fiber.Handler
	GetRequestID(ctx *fiber.Ctx) string
}

type Config struct {
	RateLimit      float64
	RateBurst      int
	AllowedOrigins string
}

func DefaultConfig() Config {
	return Config{
		RateLimit:      50,
		RateBurst:      100,
		AllowedOrigins: "*",
	}
}

type middleware struct {
	rateLimitter        *rateLimiter
	requestIDMiddleware fiber.Handler
	corsMiddleware      fiber.Handler
	log                 *logrus.Logger
}

func New(logger *logrus.Logger, cfg Config) Middleware {
	if cfg.RateLimit <= 0 {
		cfg.RateLimit = DefaultConfig().RateLimit
	}
	if cfg.RateBurst <= 0 {
		cfg.RateBurst = DefaultConfig().RateBurst
	}
	if cfg.AllowedOrigins == "" {
		cfg.AllowedOrigins = DefaultConfig().AllowedOrigins
	}

	return &middleware{
		rateLimitter:        newRateLimiter(rate.Limit(cfg.RateLimit), cfg.RateBurst),
		requestIDMiddleware: requestID,
		corsMiddleware: cors.New(cors.Config{
			AllowOrigins:  cfg.AllowedOrigins,
			AllowMethods:  "GET,POST,DELETE,OPTIONS",
			AllowHeaders:  "Origin, Content-Type, Accept, " + requestid.Header,
			ExposeHeaders: requestid.Header,
		}),
		log: logger,
	}
}

// GetRequestID assigns an ID when the request-ID middleware did not run.
func (m *middleware) GetRequestID(ctx *fiber.Ctx) string {
	return requestid.Resolve(ctx)
}

func (m *middleware) NewRequestIDMiddleware() fiber.Handler {
	return m.requestIDMiddleware
}

// NewCORS lets the browser extension call the inference listener from any page.
func (m *middleware) NewCORS() fiber.Handler {
	return m.corsMiddleware
}
