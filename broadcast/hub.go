// Package broadcast fans finished pipeline results out to connected viewer
// sessions over WebSocket. Delivery is best-effort: no retry, no per-viewer
// acknowledgment, and a transport that fails a write is dropped.
package broadcast

import (
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/onnwee/mintcast/telemetry"
)

const writeWait = 5 * time.Second

// Result is the viewer-facing payload. Message, Audio and Emotion are null
// when the corresponding pipeline leg failed; the original message is always
// present.
type Result struct {
	Username    string  `json:"username"`
	UserMessage string  `json:"userMessage"`
	Message     *string `json:"message"`
	Audio       *string `json:"audio"`
	Emotion     *string `json:"emotion"`
}

// Hub tracks connected viewer transports.
type Hub struct {
	mu    sync.Mutex
	conns map[*websocket.Conn]struct{}
}

func NewHub() *Hub {
	return &Hub{conns: make(map[*websocket.Conn]struct{})}
}

// Register adds a viewer connection to the fan-out set.
func (h *Hub) Register(c *websocket.Conn) {
	h.mu.Lock()
	h.conns[c] = struct{}{}
	n := len(h.conns)
	h.mu.Unlock()
	telemetry.SetViewers(n)
	slog.Debug("viewer connected", slog.Int("viewers", n), slog.String("component", "broadcast"))
}

// Unregister removes a viewer connection and closes it.
func (h *Hub) Unregister(c *websocket.Conn) {
	h.mu.Lock()
	delete(h.conns, c)
	n := len(h.conns)
	h.mu.Unlock()
	_ = c.Close()
	telemetry.SetViewers(n)
	slog.Debug("viewer disconnected", slog.Int("viewers", n), slog.String("component", "broadcast"))
}

// Count returns the number of connected viewers.
func (h *Hub) Count() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.conns)
}

// Broadcast sends the result to every connected viewer. Writes that fail or
// time out evict the connection; everyone else still gets the payload.
func (h *Hub) Broadcast(res Result) {
	payload, err := json.Marshal(res)
	if err != nil {
		slog.Error("marshal broadcast payload", slog.Any("err", err), slog.String("component", "broadcast"))
		return
	}

	h.mu.Lock()
	conns := make([]*websocket.Conn, 0, len(h.conns))
	for c := range h.conns {
		conns = append(conns, c)
	}
	h.mu.Unlock()

	var dead []*websocket.Conn
	for _, c := range conns {
		_ = c.SetWriteDeadline(time.Now().Add(writeWait))
		if err := c.WriteMessage(websocket.TextMessage, payload); err != nil {
			dead = append(dead, c)
		}
	}
	for _, c := range dead {
		h.Unregister(c)
	}
	telemetry.BroadcastsSent.Inc()
}
