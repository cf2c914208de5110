// Package server exposes the HTTP API: health and status probes, metrics,
// the viewer WebSocket, and the admin surface for room switching and
// forwarder management.
package server

import (
	"database/sql"
	"encoding/json"
	"net/http"

	"github.com/onnwee/mintcast/broadcast"
	"github.com/onnwee/mintcast/forwarder"
	"github.com/onnwee/mintcast/pipeline"
	"github.com/onnwee/mintcast/session"
)

// Handlers holds dependencies for all HTTP handlers.
type Handlers struct {
	db         *sql.DB
	registry   *forwarder.Registry
	controller *session.Controller
	hub        *broadcast.Hub
	queue      *pipeline.Queue
}

// NewHandlers creates a new Handlers instance with the given dependencies.
func NewHandlers(db *sql.DB, registry *forwarder.Registry, controller *session.Controller, hub *broadcast.Hub, queue *pipeline.Queue) *Handlers {
	return &Handlers{db: db, registry: registry, controller: controller, hub: hub, queue: queue}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
