package recognition

import (
	"PalmSpeak/pkg/response"
	"net/http"
)

var (
	ErrInvalidImage       = response.NewCodedError(http.StatusBadRequest, "INVALID_IMAGE", "image could not be decoded into a usable frame")
	ErrModelUnavailable   = response.NewCodedError(http.StatusServiceUnavailable, "MODEL_UNAVAILABLE", "model is not loaded")
	ErrPreconditionNotMet = response.NewCodedError(http.StatusConflict, "PRECONDITION_NOT_MET", "model must be loaded before the server can start")
	ErrServiceStopped     = response.NewCodedError(http.StatusServiceUnavailable, "SERVICE_STOPPED", "inference server is not running")
	ErrLabelMismatch      = response.NewCodedError(http.StatusInternalServerError, "LABEL_MISMATCH", "classifier output does not match the label set")
	ErrInternalServer     = response.NewError(http.StatusInternalServerError, "internal server error")
)
