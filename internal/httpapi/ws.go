package httpapi

import (
	"context"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/soulkindred/kindred/internal/chat"
)

type wsClientMessage struct {
	Type           string `json:"type"`
	ConversationID string `json:"conversation_id,omitempty"`
	Content        string `json:"content,omitempty"`
	PersonaID      string `json:"persona_id,omitempty"`
}

type wsServerEvent struct {
	Type     string `json:"type"`
	Text     string `json:"text,omitempty"`
	Strategy string `json:"strategy,omitempty"`
	Code     string `json:"code,omitempty"`
	Detail   string `json:"detail,omitempty"`
}

// handleChatWS streams reply deltas for each sent message. The client sends
// {"type":"send",...} frames; the server answers with zero or more "delta"
// events followed by one "done" or "error" event. Turns run sequentially on
// the connection, so the read loop is also the only websocket writer.
func (s *Server) handleChatWS(w http.ResponseWriter, r *http.Request) {
	u := userFrom(r)

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	s.metrics.ActiveStreams.Inc()
	defer s.metrics.ActiveStreams.Dec()

	conn.SetReadLimit(1 << 20)
	_ = conn.SetReadDeadline(time.Now().Add(120 * time.Second))
	conn.SetPongHandler(func(string) error {
		_ = conn.SetReadDeadline(time.Now().Add(120 * time.Second))
		return nil
	})

	for {
		var msg wsClientMessage
		if err := conn.ReadJSON(&msg); err != nil {
			return
		}
		_ = conn.SetReadDeadline(time.Now().Add(120 * time.Second))

		if msg.Type != "send" {
			if !s.writeEvent(conn, wsServerEvent{Type: "error", Code: "invalid_client_message", Detail: "expected type \"send\""}) {
				return
			}
			continue
		}

		ctx, cancel := context.WithTimeout(r.Context(), s.cfg.RequestTimeout)
		res, err := s.pipeline.SendMessage(ctx, u.ID, msg.ConversationID, msg.Content, msg.PersonaID,
			func(delta string) error {
				_ = conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
				return conn.WriteJSON(wsServerEvent{Type: "delta", Text: delta})
			})
		cancel()

		if err != nil {
			if !s.writeEvent(conn, wsServerEvent{Type: "error", Code: string(chat.KindOf(err)), Detail: err.Error()}) {
				return
			}
			continue
		}
		if !s.writeEvent(conn, wsServerEvent{Type: "done", Text: res.Text, Strategy: res.Strategy}) {
			return
		}
	}
}

func (s *Server) writeEvent(conn *websocket.Conn, evt wsServerEvent) bool {
	_ = conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
	return conn.WriteJSON(evt) == nil
}
