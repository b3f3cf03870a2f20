package assistant

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 4 << 10
)

// Frame is what the WebSocket transport writes.
type Frame struct {
	Type    string   `json:"type"` // "message" or "error"
	Message *Message `json:"message,omitempty"`
	Error   string   `json:"error,omitempty"`
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
}

// ServeSSE streams the chat log as Server-Sent Events: the backlog first,
// then every new message until the client leaves or the session closes.
func ServeSSE(w http.ResponseWriter, r *http.Request, s *Session) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "Streaming not supported", http.StatusInternalServerError)
		return
	}

	backlog, msgs, cancel := s.Subscribe()
	defer cancel()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	write := func(m Message) {
		data, _ := json.Marshal(m)
		fmt.Fprintf(w, "id: %d\ndata: %s\n\n", m.Seq, data)
		flusher.Flush()
	}

	for _, m := range backlog {
		write(m)
	}
	flusher.Flush()

	for {
		select {
		case m, ok := <-msgs:
			if !ok {
				return
			}
			write(m)
		case <-r.Context().Done():
			return
		}
	}
}

// ServeWS upgrades to a WebSocket. Inbound text frames are user replies;
// outbound frames carry chat messages and rejected-reply errors.
func ServeWS(w http.ResponseWriter, r *http.Request, s *Session, logger *zap.Logger) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Warn("websocket upgrade failed", zap.Error(err))
		return
	}
	defer conn.Close()

	backlog, msgs, cancel := s.Subscribe()
	defer cancel()

	notices := make(chan Frame, 8)
	go writePump(conn, backlog, msgs, notices, logger)

	conn.SetReadLimit(maxMessageSize)
	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		mt, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				logger.Warn("websocket read error", zap.Error(err))
			}
			return
		}
		if mt != websocket.TextMessage {
			continue
		}
		if _, err := s.Send(r.Context(), string(data)); err != nil {
			select {
			case notices <- Frame{Type: "error", Error: err.Error()}:
			default:
			}
			if errors.Is(err, ErrSessionClosed) {
				return
			}
		}
	}
}

func writePump(conn *websocket.Conn, backlog []Message, msgs <-chan Message, notices <-chan Frame, logger *zap.Logger) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		conn.Close()
	}()

	write := func(f Frame) bool {
		conn.SetWriteDeadline(time.Now().Add(writeWait))
		if err := conn.WriteJSON(f); err != nil {
			logger.Debug("websocket write failed", zap.Error(err))
			return false
		}
		return true
	}

	for i := range backlog {
		if !write(Frame{Type: "message", Message: &backlog[i]}) {
			return
		}
	}

	for {
		select {
		case m, ok := <-msgs:
			if !ok {
				conn.SetWriteDeadline(time.Now().Add(writeWait))
				conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return
			}
			if !write(Frame{Type: "message", Message: &m}) {
				return
			}
		case f := <-notices:
			if !write(f) {
				return
			}
		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
