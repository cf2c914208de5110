package server

import (
	"encoding/json"
	"net/http"

	"github.com/onnwee/mintcast/db"
)

// HandleHealthz responds to liveness probes.
func (h *Handlers) HandleHealthz(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

// HandleReadyz responds to readiness probes with per-dependency checks: the
// database must answer and at least one forwarder must be usable.
func (h *Handlers) HandleReadyz(w http.ResponseWriter, r *http.Request) {
	checks := []struct {
		name string
		fn   func() error
	}{
		{"database", func() error {
			if h.db == nil {
				return nil
			}
			return db.Ping(r.Context(), h.db)
		}},
		{"forwarders", func() error {
			_, err := h.registry.SelectActive(r.Context())
			return err
		}},
	}

	for _, check := range checks {
		if err := check.fn(); err != nil {
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{
				"status":       "not_ready",
				"failed_check": check.name,
				"error":        err.Error(),
			})
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

// HandleStatus reports the live operational picture for the admin dashboard.
func (h *Handlers) HandleStatus(w http.ResponseWriter, r *http.Request) {
	type forwarderStatus struct {
		Total     int    `json:"total"`
		Limited   int    `json:"limited"`
		Selected  string `json:"selected,omitempty"`
		Exhausted bool   `json:"exhausted"`
	}
	var fs forwarderStatus
	entries, err := h.registry.List(r.Context())
	if err == nil {
		fs.Total = len(entries)
		free := 0
		for _, e := range entries {
			if e.UsageLimited {
				fs.Limited++
			} else {
				free++
			}
			if e.Selected {
				fs.Selected = e.URL
			}
		}
		fs.Exhausted = fs.Total > 0 && free == 0
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(map[string]any{
		"room":       h.controller.CurrentRoom(),
		"queued":     h.queue.Depth(),
		"viewers":    h.hub.Count(),
		"forwarders": fs,
	})
}
