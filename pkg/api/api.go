// Package api exposes the HTTP control surface for the player manager. It is
// a thin translation layer: decode the request, call into the player, report
// a success flag. All playback failures are handled inside the player.
package api

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/gorilla/mux"

	"room-jukebox/pkg/player"
)

// Handler routes control requests to per-room players.
type Handler struct {
	manager *player.Manager
	logger  *slog.Logger
}

// NewRouter builds the control API router around manager.
func NewRouter(manager *player.Manager) *mux.Router {
	h := &Handler{
		manager: manager,
		logger:  slog.Default().With("component", "api"),
	}

	r := mux.NewRouter().StrictSlash(true)
	r.HandleFunc("/health", h.handleHealth).Methods("GET")
	r.HandleFunc("/play", h.handlePlay).Methods("POST")
	r.HandleFunc("/pause", h.handlePause).Methods("POST")
	r.HandleFunc("/resume", h.handleResume).Methods("POST")
	r.HandleFunc("/seek", h.handleSeek).Methods("POST")
	r.HandleFunc("/stop", h.handleStop).Methods("POST")
	r.HandleFunc("/progress", h.handleProgress).Methods("GET")
	return r
}

type playRequest struct {
	RoomName string            `json:"room_name"`
	Song     *player.TrackInfo `json:"song"`
}

type roomRequest struct {
	RoomName   string `json:"room_name"`
	PositionMs int64  `json:"position_ms,omitempty"`
}

func respondJSON(w http.ResponseWriter, statusCode int, m any) {
	payload, _ := json.Marshal(m)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_, _ = w.Write(payload)
}

func respondError(w http.ResponseWriter, statusCode int, reason string) {
	respondJSON(w, statusCode, map[string]any{"error": reason})
}

func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]any{"status": "ok"})
}

func (h *Handler) handlePlay(w http.ResponseWriter, r *http.Request) {
	var req playRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	if req.RoomName == "" || req.Song == nil {
		respondError(w, http.StatusBadRequest, "room_name and song required")
		return
	}

	p := h.manager.GetOrCreate(req.RoomName)
	p.Load(req.Song)
	if err := p.Play(); err != nil {
		h.logger.Error("play failed", "room", req.RoomName, "error", err)
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"success": true})
}

func (h *Handler) handlePause(w http.ResponseWriter, r *http.Request) {
	req, ok := h.decodeRoomRequest(w, r)
	if !ok {
		return
	}
	h.manager.GetOrCreate(req.RoomName).Pause()
	respondJSON(w, http.StatusOK, map[string]any{"success": true})
}

// handleResume reports an invalid resume as success:false rather than an
// HTTP error: the caller treats it as "nothing to resume" and moves on.
func (h *Handler) handleResume(w http.ResponseWriter, r *http.Request) {
	req, ok := h.decodeRoomRequest(w, r)
	if !ok {
		return
	}
	if err := h.manager.GetOrCreate(req.RoomName).Resume(); err != nil {
		respondJSON(w, http.StatusOK, map[string]any{"success": false, "error": err.Error()})
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"success": true})
}

func (h *Handler) handleSeek(w http.ResponseWriter, r *http.Request) {
	req, ok := h.decodeRoomRequest(w, r)
	if !ok {
		return
	}
	h.manager.GetOrCreate(req.RoomName).Seek(req.PositionMs)
	respondJSON(w, http.StatusOK, map[string]any{"success": true})
}

func (h *Handler) handleStop(w http.ResponseWriter, r *http.Request) {
	req, ok := h.decodeRoomRequest(w, r)
	if !ok {
		return
	}
	h.manager.GetOrCreate(req.RoomName).Stop()
	respondJSON(w, http.StatusOK, map[string]any{"success": true})
}

func (h *Handler) handleProgress(w http.ResponseWriter, r *http.Request) {
	roomName := r.URL.Query().Get("room_name")
	if roomName == "" {
		respondError(w, http.StatusBadRequest, "room_name required")
		return
	}

	pos, dur, state, song := h.manager.GetOrCreate(roomName).GetProgress()
	respondJSON(w, http.StatusOK, map[string]any{
		"position_ms": pos,
		"duration_ms": dur,
		"state":       state,
		"song":        song,
	})
}

func (h *Handler) decodeRoomRequest(w http.ResponseWriter, r *http.Request) (roomRequest, bool) {
	var req roomRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return req, false
	}
	if req.RoomName == "" {
		respondError(w, http.StatusBadRequest, "room_name required")
		return req, false
	}
	return req, true
}
