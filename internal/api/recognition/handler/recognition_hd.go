package recognitionHandler

import (
	"PalmSpeak/internal/api/recognition"
	"PalmSpeak/pkg/handlerUtil"
	"PalmSpeak/pkg/log"
	"PalmSpeak/pkg/requestid"
	"context"
	"fmt"
	"github.com/gofiber/fiber/v2"
)

func (h *RecognitionHandler) Predict(ctx *fiber.Ctx) error {
	requestID := h.middleware.GetRequestID(ctx)
	c, cancel := context.WithTimeout(requestid.FromFiber(ctx), h.requestTimeout)
	defer cancel()

	errHandler := handlerUtil.New(h.log)

	h.log.WithFields(log.Fields{
		"request_id": requestID,
		"path":       ctx.Path(),
	}).Debug("Processing predict request")

	var image []byte

	file, err := ctx.FormFile("image")
	if err == nil {
		h.log.WithFields(log.Fields{
			"request_id": requestID,
			"file_name":  file.Filename,
			"file_size":  file.Size,
		}).Debug("Processing file upload")

		image, err = h.utils.ReadImageFile(file)
		if err != nil {
			return errHandler.Handle(ctx, requestID, fmt.Errorf("%w: %v", recognition.ErrInvalidImage, err), ctx.Path(), "read_image_file")
		}
	} else {
		var req recognition.PredictRequest
		if err := ctx.BodyParser(&req); err != nil {
			return errHandler.HandleValidationError(ctx, requestID, err, ctx.Path())
		}

		if err := h.validator.Struct(req); err != nil {
			return errHandler.HandleValidationError(ctx, requestID, err, ctx.Path())
		}

		image, err = h.utils.DecodeBase64Image(req.Image)
		if err != nil {
			return errHandler.Handle(ctx, requestID, fmt.Errorf("%w: %v", recognition.ErrInvalidImage, err), ctx.Path(), "decode_image")
		}
	}

	result, err := h.recognitionService.SubmitFrame(c, image)
	if err != nil {
		return errHandler.Handle(ctx, requestID, err, ctx.Path(), "submit_frame")
	}

	// a late result is still returned: its sample is already in the history
	if c.Err() != nil {
		h.log.WithFields(log.Fields{
			"request_id": requestID,
			"frame_id":   result.FrameID,
		}).Warn("Frame processed after request deadline")
	}

	return errHandler.HandleSuccess(ctx, fiber.StatusOK, result)
}

func (h *RecognitionHandler) ClearBuffer(ctx *fiber.Ctx) error {
	errHandler := handlerUtil.New(h.log)

	h.recognitionService.ResetHistory()

	return errHandler.HandleSuccess(ctx, fiber.StatusOK, recognition.ClearBufferResponse{
		Status:  "success",
		Message: "Prediction buffer cleared",
	})
}

func (h *RecognitionHandler) Health(ctx *fiber.Ctx) error {
	errHandler := handlerUtil.New(h.log)

	health := h.recognitionService.Health()

	return errHandler.HandleSuccess(ctx, fiber.StatusOK, recognition.NewHealthResponse(health))
}

func (h *RecognitionHandler) GetTranscript(ctx *fiber.Ctx) error {
	errHandler := handlerUtil.New(h.log)

	text, last := h.recognitionService.Transcript()

	return errHandler.HandleSuccess(ctx, fiber.StatusOK, recognition.TranscriptResponse{
		Transcript: text,
		LastLetter: last,
	})
}

func (h *RecognitionHandler) ClearTranscript(ctx *fiber.Ctx) error {
	requestID := h.middleware.GetRequestID(ctx)
	c, cancel := context.WithTimeout(requestid.FromFiber(ctx), h.requestTimeout)
	defer cancel()

	errHandler := handlerUtil.New(h.log)

	if err := h.recognitionService.ClearTranscript(c); err != nil {
		// the local transcript is already cleared; only the shared copy failed
		h.log.WithFields(log.Fields{
			"request_id": requestID,
			"error":      err.Error(),
		}).Warn("Failed to clear shared transcript")
	}

	return errHandler.HandleSuccess(ctx, fiber.StatusOK, recognition.TranscriptResponse{})
}
