package middleware

import (
	"PalmSpeak/pkg/requestid"
	"github.com/gofiber/fiber/v2"
)

// requestID echoes the request's ID and puts it on the user context so the
// service logs carry it too.
func requestID(c *fiber.Ctx) error {
	id := requestid.Resolve(c)

	c.Set(requestid.Header, id)
	c.SetUserContext(requestid.NewContext(c.UserContext(), id))

	return c.Next()
}
