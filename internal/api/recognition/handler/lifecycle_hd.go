package recognitionHandler

import (
	"PalmSpeak/internal/api/recognition"
	"PalmSpeak/pkg/handlerUtil"
	"PalmSpeak/pkg/log"
	"PalmSpeak/pkg/requestid"
	"context"
	"errors"
	"github.com/gofiber/fiber/v2"
	"time"
)

const shutdownTimeout = 15 * time.Second

func (h *RecognitionHandler) StartService(ctx *fiber.Ctx) error {
	requestID := h.middleware.GetRequestID(ctx)
	errHandler := handlerUtil.New(h.log)

	h.log.WithFields(log.Fields{
		"request_id": requestID,
		"path":       ctx.Path(),
	}).Info("Start requested")

	state, err := h.recognitionService.StartService()
	if err != nil {
		return errHandler.Handle(ctx, requestID, err, ctx.Path(), "start_service")
	}

	return errHandler.HandleSuccess(ctx, fiber.StatusOK, recognition.ServiceStateResponse{
		Status:  "success",
		Message: "Inference server is running",
		State:   state,
	})
}

func (h *RecognitionHandler) StopService(ctx *fiber.Ctx) error {
	requestID := h.middleware.GetRequestID(ctx)
	c, cancel := context.WithTimeout(requestid.FromFiber(ctx), shutdownTimeout)
	defer cancel()

	errHandler := handlerUtil.New(h.log)

	h.log.WithFields(log.Fields{
		"request_id": requestID,
		"path":       ctx.Path(),
	}).Info("Stop requested")

	state, err := h.recognitionService.StopService(c)
	if errors.Is(err, context.DeadlineExceeded) {
		// the listener is closed; only draining in-flight requests ran out of time
		return errHandler.HandleRequestTimeout(ctx)
	}
	if err != nil {
		return errHandler.Handle(ctx, requestID, err, ctx.Path(), "stop_service")
	}

	return errHandler.HandleSuccess(ctx, fiber.StatusOK, recognition.ServiceStateResponse{
		Status:  "success",
		Message: "Inference server is stopped",
		State:   state,
	})
}

func (h *RecognitionHandler) LoadModel(ctx *fiber.Ctx) error {
	errHandler := handlerUtil.New(h.log)

	state := h.recognitionService.LoadModel()

	return errHandler.HandleSuccess(ctx, fiber.StatusAccepted, recognition.ServiceStateResponse{
		Status: "accepted",
		State:  state,
	})
}
