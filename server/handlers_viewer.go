package server

import (
	"log/slog"
	"net/http"

	"github.com/gorilla/websocket"
)

var viewerUpgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	// CORS policy is enforced by the outer middleware; the upgrade itself
	// accepts any origin so overlays embedded in other pages can connect.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// HandleViewerWS upgrades the connection and registers it with the broadcast
// hub. Viewers only listen; inbound frames are read and discarded so pings
// and close frames are processed.
func (h *Handlers) HandleViewerWS(w http.ResponseWriter, r *http.Request) {
	conn, err := viewerUpgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Warn("websocket upgrade failed", slog.Any("err", err), slog.String("component", "http"))
		return
	}
	h.hub.Register(conn)

	go func() {
		defer h.hub.Unregister(conn)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()
}
