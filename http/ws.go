package http

import (
	"context"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	wsWriteWait      = 10 * time.Second
	wsMaxMessageSize = 4096
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
}

// handleWebSocket answers every text message with the same body POST
// /predict would return for it. One goroutine reads and writes.
func (h *Handlers) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	requestID := GetRequestID(r.Context())
	var header http.Header
	if requestID != "" {
		header = http.Header{RequestIDHeader: []string{requestID}}
	}
	conn, err := upgrader.Upgrade(w, r, header)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", zap.Error(err))
		return
	}
	defer conn.Close()
	conn.SetReadLimit(wsMaxMessageSize)

	// Unblock ReadMessage when the server shuts down.
	stop := context.AfterFunc(r.Context(), func() { conn.Close() })
	defer stop()

	h.logger.Info("websocket connected", zap.String("request_id", requestID))
	for {
		messageType, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				h.logger.Warn("websocket read failed", zap.String("request_id", requestID), zap.Error(err))
			}
			return
		}
		if messageType != websocket.TextMessage {
			continue
		}

		_, payload := h.predict(r, data)
		conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
		if err := conn.WriteJSON(payload); err != nil {
			h.logger.Warn("websocket write failed", zap.String("request_id", requestID), zap.Error(err))
			return
		}
	}
}
