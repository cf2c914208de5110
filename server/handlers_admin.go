package server

import (
	"encoding/json"
	"log/slog"
	"net/http"
)

// HandleAdminRoom switches the attached chat room. An empty room_id detaches
// without reattaching.
func (h *Handlers) HandleAdminRoom(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "POST required")
		return
	}
	var req struct {
		RoomID string `json:"room_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if err := h.controller.SwitchRoom(r.Context(), req.RoomID); err != nil {
		slog.Error("room switch failed", slog.Any("err", err), slog.String("room", req.RoomID), slog.String("component", "http"))
		writeError(w, http.StatusBadGateway, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"room": h.controller.CurrentRoom()})
}

// HandleAdminTurn injects a synthetic chat turn through the normal pipeline;
// used to exercise the persona without a live room.
func (h *Handlers) HandleAdminTurn(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "POST required")
		return
	}
	var req struct {
		Username string `json:"username"`
		Message  string `json:"message"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if req.Username == "" || req.Message == "" {
		writeError(w, http.StatusBadRequest, "username and message are required")
		return
	}
	accepted := h.controller.InjectTurn(req.Username, req.Message)
	writeJSON(w, http.StatusOK, map[string]bool{"accepted": accepted})
}

// HandleAdminForwarders lists the forwarder registry.
func (h *Handlers) HandleAdminForwarders(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "GET required")
		return
	}
	entries, err := h.registry.List(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, entries)
}

// HandleAdminForwarderSelect forces selection of a registered forwarder,
// bypassing the usage-limited flag; the operator's override after quota resets.
func (h *Handlers) HandleAdminForwarderSelect(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "POST required")
		return
	}
	var req struct {
		URL string `json:"url"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.URL == "" {
		writeError(w, http.StatusBadRequest, "url is required")
		return
	}
	if err := h.registry.AdminSelect(r.Context(), req.URL); err != nil {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"selected": req.URL})
}
