package recognitionHandler

import (
	"PalmSpeak/internal/api/recognition"
	"PalmSpeak/pkg/handlerUtil"
	"PalmSpeak/pkg/requestid"
	"context"
	"fmt"
	"github.com/gofiber/websocket/v2"
	"time"
)

const (
	wsReadTimeout  = 60 * time.Second
	wsWriteTimeout = 10 * time.Second
	// same ceiling as the HTTP body limit
	wsMaxMessageSize = 16 * 1024 * 1024
)

// handleWebSocket treats every message as one frame: binary messages carry
// image bytes, text messages carry base64 or a data URL.
func (h *RecognitionHandler) handleWebSocket(c *websocket.Conn) {
	h.log.Info("Frame WebSocket client connected")
	defer h.log.Info("Frame WebSocket client disconnected")

	c.SetReadLimit(h.wsReadLimit)

	// one ID for the whole connection, assigned at upgrade
	requestID, _ := c.Locals(requestid.Header).(string)

	c.SetPingHandler(func(data string) error {
		if err := c.WriteControl(websocket.PongMessage, []byte(data), time.Now().Add(5*time.Second)); err != nil {
			h.log.Errorf("Error sending pong: %v", err)
		}
		return nil
	})

	for {
		if err := c.SetReadDeadline(time.Now().Add(wsReadTimeout)); err != nil {
			h.log.Errorf("Error setting read deadline: %v", err)
			break
		}

		messageType, message, err := c.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				h.log.Errorf("Frame WebSocket error: %v", err)
			}
			break
		}

		if !h.running() {
			h.writeWS(c, handlerUtil.Message(recognition.ErrServiceStopped))
			c.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseTryAgainLater, "inference server stopped"),
				time.Now().Add(time.Second))
			break
		}

		var image []byte
		switch messageType {
		case websocket.BinaryMessage:
			image = message
		case websocket.TextMessage:
			image, err = h.utils.DecodeBase64Image(string(message))
			if err != nil {
				if !h.writeWS(c, handlerUtil.Message(fmt.Errorf("%w: %v", recognition.ErrInvalidImage, err))) {
					return
				}
				continue
			}
		default:
			h.log.Warnf("Received unexpected message type: %d", messageType)
			continue
		}

		ctx, cancel := context.WithTimeout(requestid.NewContext(context.Background(), requestID), h.requestTimeout)
		result, err := h.recognitionService.SubmitFrame(ctx, image)
		cancel()

		if err != nil {
			h.log.Debugf("Error processing frame: %v", err)
			if !h.writeWS(c, handlerUtil.Message(err)) {
				return
			}
			continue
		}

		if !h.writeWS(c, result) {
			return
		}
	}
}

func (h *RecognitionHandler) writeWS(c *websocket.Conn, v interface{}) bool {
	if err := c.SetWriteDeadline(time.Now().Add(wsWriteTimeout)); err != nil {
		h.log.Errorf("Error setting write deadline: %v", err)
		return false
	}
	if err := c.WriteJSON(v); err != nil {
		h.log.Errorf("Error writing JSON response: %v", err)
		return false
	}
	return true
}
