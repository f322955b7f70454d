package handlerUtil

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"

	"PalmSpeak/pkg/response"
	"github.com/gofiber/fiber/v2"
	"github.com/sirupsen/logrus"
)

func TestMain(m *testing.M) {
	os.Setenv("APP_ENV", "test")
	os.Exit(m.Run())
}

func TestHandle(t *testing.T) {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	h := New(logger)

	errBusy := response.NewCodedError(http.StatusServiceUnavailable, "MODEL_UNAVAILABLE", "model is not loaded")

	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantCode   string
		wantTrace  bool
	}{
		{name: "coded domain error", err: errBusy, wantStatus: 503, wantCode: "MODEL_UNAVAILABLE"},
		{name: "wrapped domain error", err: fmt.Errorf("submit: %w", errBusy), wantStatus: 503, wantCode: "MODEL_UNAVAILABLE"},
		{name: "plain response error", err: response.NewError(http.StatusConflict, "conflict"), wantStatus: 409},
		{name: "unexpected error", err: errors.New("boom"), wantStatus: 500, wantCode: "INTERNAL_ERROR", wantTrace: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			app := fiber.New()
			app.Get("/", func(c *fiber.Ctx) error {
				return h.Handle(c, "req-1", tt.err, c.Path(), "test")
			})

			resp, err := app.Test(httptest.NewRequest(fiber.MethodGet, "/", nil))
			if err != nil {
				t.Fatalf("app.Test() error = %v", err)
			}
			if resp.StatusCode != tt.wantStatus {
				t.Errorf("status = %d, want %d", resp.StatusCode, tt.wantStatus)
			}

			var body ErrorResponse
			if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
				t.Fatalf("decode body: %v", err)
			}
			if body.Code != tt.wantCode {
				t.Errorf("code = %q, want %q", body.Code, tt.wantCode)
			}
			if tt.wantTrace && body.TraceID != "req-1" {
				t.Errorf("trace_id = %q, want request id reused", body.TraceID)
			}
			if body.Error == "" {
				t.Error("error message is empty")
			}
		})
	}
}

func TestMessage(t *testing.T) {
	coded := response.NewCodedError(http.StatusBadRequest, "INVALID_IMAGE", "bad frame")
	if got := Message(coded); got.Code != "INVALID_IMAGE" || got.Error != "bad frame" {
		t.Errorf("Message(coded) = %+v", got)
	}
	if got := Message(errors.New("secret detail")); got.Code != "INTERNAL_ERROR" || got.Error == "secret detail" {
		t.Errorf("Message(plain) = %+v, want generic message", got)
	}
}
