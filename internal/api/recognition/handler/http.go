package recognitionHandler

import (
	recognitionService "PalmSpeak/internal/api/recognition/service"
	"PalmSpeak/internal/entity"
	"PalmSpeak/internal/middleware"
	"PalmSpeak/pkg/utils"
	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"
	"github.com/sirupsen/logrus"
	"time"
)

type RecognitionHandler struct {
	log                *logrus.Logger
	validator          *validator.Validate
	middleware         middleware.Middleware
	recognitionService recognitionService.IRecognitionService
	utils              utils.IUtils
	requestTimeout     time.Duration
	wsReadLimit        int64
}

func New(
	log *logrus.Logger,
	validator *validator.Validate,
	middleware middleware.Middleware,
	rs recognitionService.IRecognitionService,
	utils utils.IUtils,
) *RecognitionHandler {
	return &RecognitionHandler{
		recognitionService: rs,
		log:                log,
		validator:          validator,
		middleware:         middleware,
		utils:              utils,
		requestTimeout:     10 * time.Second,
		wsReadLimit:        wsMaxMessageSize,
	}
}

func (h *RecognitionHandler) running() bool {
	return h.recognitionService.State().ServerStatus == entity.ServerRunning
}

// Start mounts the inference routes served while the service is running.
func (h *RecognitionHandler) Start(srv fiber.Router) {
	gate := h.middleware.RequireRunning(h.running)

	wsMiddleware := func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	}

	srv.Get("/health", h.Health)
	srv.Post("/predict", gate, h.Predict)
	srv.Post("/clear-buffer", gate, h.ClearBuffer)
	srv.Get("/transcript", h.GetTranscript)
	srv.Delete("/transcript", gate, h.ClearTranscript)

	srv.Use("/ws", wsMiddleware)
	srv.Get("/ws", gate, websocket.New(h.handleWebSocket))
}

// StartAdmin mounts lifecycle control on the always-on admin listener.
func (h *RecognitionHandler) StartAdmin(srv fiber.Router) {
	srv.Get("/health", h.Health)
	srv.Post("/clear-buffer", h.ClearBuffer)
	srv.Get("/transcript", h.GetTranscript)
	srv.Delete("/transcript", h.ClearTranscript)

	service := srv.Group("/service")
	service.Post("/start", h.StartService)
	service.Post("/stop", h.StopService)

	model := srv.Group("/model")
	model.Post("/load", h.LoadModel)
}
