// Package notify tells the queue orchestrator that a room's track finished,
// so it can advance to the next song. Delivery is best-effort: failures are
// logged and never surfaced to playback.
package notify

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"room-jukebox/pkg/player"
)

const requestTimeout = 5 * time.Second

// Emitter posts song-ended callbacks to the orchestrator base URL.
type Emitter struct {
	client  *http.Client
	baseURL string
	logger  *slog.Logger
}

var _ player.Notifier = (*Emitter)(nil)

// New creates an emitter for baseURL. An empty baseURL disables callbacks.
func New(baseURL string) *Emitter {
	return &Emitter{
		client:  &http.Client{Timeout: requestTimeout},
		baseURL: baseURL,
		logger:  slog.Default().With("component", "notify"),
	}
}

// SongEnded announces that playback in roomName ran to completion.
func (e *Emitter) SongEnded(roomName string) {
	if e.baseURL == "" {
		return
	}

	body, err := json.Marshal(map[string]string{"room_name": roomName})
	if err != nil {
		e.logger.Error("failed to marshal callback payload", "error", err)
		return
	}

	resp, err := e.client.Post(e.baseURL+"/song-ended", "application/json", bytes.NewReader(body))
	if err != nil {
		e.logger.Warn("failed to send song ended callback", "room", roomName, "error", err)
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		e.logger.Warn("song ended callback rejected", "room", roomName, "status", resp.StatusCode)
		return
	}
	e.logger.Debug("song ended callback sent", "room", roomName)
}
