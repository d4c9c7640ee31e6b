package server

import (
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/agentic-neurodata/nwbconvertd/internal/logging"
	"github.com/agentic-neurodata/nwbconvertd/internal/streaming"
)

// wsHeartbeatInterval mirrors the teacher's SSEHeartbeatInterval — the
// /ws endpoint keeps the same keep-alive cadence, just carried over a
// gorilla/websocket ping instead of an SSE comment line.
const wsHeartbeatInterval = 30 * time.Second

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// handleWS bridges the streaming event bus to the /ws persistent connection
// (spec §6). It keeps the teacher's hand-rolled-SSE shape — per-connection
// subscription, buffered event channel, heartbeat ticker — carried over
// gorilla's Conn instead of http.Flusher, since spec names the endpoint a
// WebSocket path.
func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		logging.Warn().Err(err).Msg("websocket upgrade failed")
		return
	}
	defer conn.Close()

	events := make(chan streaming.Event, 32)
	unsubscribe := s.stream.Subscribe(func(e streaming.Event) {
		select {
		case events <- e:
		default:
			logging.Warn().Str("kind", string(e.Kind)).Msg("ws event dropped: channel full")
		}
	})
	defer unsubscribe()

	ticker := time.NewTicker(wsHeartbeatInterval)
	defer ticker.Stop()

	// Detect client-initiated close without blocking the write loop.
	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case <-r.Context().Done():
			return
		case <-closed:
			return
		case e := <-events:
			if err := conn.WriteJSON(e); err != nil {
				return
			}
		case <-ticker.C:
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
