package middleware

import (
	"PalmSpeak/pkg/log"
	"PalmSpeak/pkg/requestid"
	"fmt"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	jsoniter "github.com/json-iterator/go"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

func LoggerConfig() fiber.Handler {
	return func(c *fiber.Ctx) error {
		start := time.Now()

		requestID := requestid.Resolve(c)

		err := c.Next()

		latency := time.Since(start)
		status := c.Response().StatusCode()

		if err != nil && status == fiber.StatusInternalServerError {
			return err
		}

		logFields := log.Fields{
			log.RequestIDKey: requestID,
			"method":        c.Method(),
			"path":          c.Path(),
			"status":        status,
			"latency_ms":    latency.Milliseconds(),
			"ip":            c.IP(),
			"host":          c.Hostname(),
			"user_agent":    c.Get("User-Agent"),
			"response_size": len(c.Response().Body()),
		}

		if body := c.Request().Body(); len(body) > 0 {
			logFields["request_body"] = sanitizeRequestBody(string(c.Request().Header.ContentType()), body)
		}

		if status >= 500 {
			log.Error(logFields, "Server error")
		} else if status >= 400 {
			log.Warn(logFields, "Client error")
		} else {
			log.Debug(logFields, "Success")
		}

		return err
	}
}

// sanitizeRequestBody keeps request logs small: frame payloads are replaced
// by their size.
func sanitizeRequestBody(contentType string, body []byte) string {
	if strings.HasPrefix(contentType, "multipart/") {
		return fmt.Sprintf("[multipart %d bytes]", len(body))
	}

	var jsonBody map[string]interface{}
	if err := json.Unmarshal(body, &jsonBody); err != nil {
		return "[non-JSON body]"
	}

	for _, field := range []string{"image", "frame", "data"} {
		if v, exists := jsonBody[field]; exists {
			if s, ok := v.(string); ok {
				jsonBody[field] = fmt.Sprintf("[%d chars]", len(s))
			}
		}
	}

	sanitized, err := json.Marshal(jsonBody)
	if err != nil {
		return "[sanitization-failed]"
	}

	return string(sanitized)
}
