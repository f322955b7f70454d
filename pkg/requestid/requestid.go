// Package requestid carries one correlation ID per request from the HTTP
// header through fiber locals into the context handed to the service.
package requestid

import (
	"context"
	"time"

	"PalmSpeak/pkg/utils"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
)

// Header is used both on the wire and as the fiber locals key.
const Header = "X-Request-ID"

const maxLength = 128

type ctxKey struct{}

var ids = utils.New()

func NewContext(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, ctxKey{}, id)
}

func FromContext(ctx context.Context) (string, bool) {
	if ctx == nil {
		return "", false
	}
	id, ok := ctx.Value(ctxKey{}).(string)
	return id, ok && id != ""
}

// Valid reports whether a client-supplied ID is safe to echo and log as is.
func Valid(id string) bool {
	if id == "" || len(id) > maxLength {
		return false
	}
	for i := 0; i < len(id); i++ {
		switch b := id[i]; {
		case b >= 'a' && b <= 'z', b >= 'A' && b <= 'Z', b >= '0' && b <= '9':
		case b == '-', b == '_', b == '.', b == ':':
		default:
			return false
		}
	}
	return true
}

// Resolve returns the request's ID, assigning one on first use: the client's
// header when Valid, otherwise a fresh ULID.
func Resolve(c *fiber.Ctx) string {
	if id, ok := c.Locals(Header).(string); ok && id != "" {
		return id
	}

	id := c.Get(Header)
	if !Valid(id) {
		id = New()
	}
	c.Locals(Header, id)
	return id
}

// FromFiber returns the request's user context carrying its ID.
func FromFiber(c *fiber.Ctx) context.Context {
	return NewContext(c.UserContext(), Resolve(c))
}

func New() string {
	id, err := ids.NewULIDFromTimestamp(time.Now())
	if err != nil {
		return uuid.NewString()
	}
	return id
}
