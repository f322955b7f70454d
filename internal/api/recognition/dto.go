package recognition

import "PalmSpeak/internal/entity"

type PredictRequest struct {
	Image string `json:"image" validate:"required"`
}

type ClearBufferResponse struct {
	Status  string `json:"status"`
	Message string `json:"message"`
}

type HealthResponse struct {
	Status       string              `json:"status"`
	ModelLoaded  bool                `json:"model_loaded"`
	ModelStatus  entity.ModelStatus  `json:"model_status"`
	ServerStatus entity.ServerStatus `json:"server_status"`
	BufferSize   int                 `json:"buffer_size"`
}

func NewHealthResponse(h entity.Health) HealthResponse {
	return HealthResponse{
		Status:       "healthy",
		ModelLoaded:  h.ModelStatus == entity.ModelLoaded,
		ModelStatus:  h.ModelStatus,
		ServerStatus: h.ServerStatus,
		BufferSize:   h.HistoryLength,
	}
}

type TranscriptResponse struct {
	Transcript string       `json:"transcript"`
	LastLetter entity.Label `json:"last_letter"`
}

type ServiceStateResponse struct {
	Status  string              `json:"status"`
	Message string              `json:"message,omitempty"`
	State   entity.ServiceState `json:"state"`
}

const MessageNoHand = "No hand detected"
