package player

import "time"

// PlayState is the lifecycle state of a room's player.
type PlayState string

const (
	StateIdle    PlayState = "idle"
	StateLoading PlayState = "loading"
	StatePlaying PlayState = "playing"
	StatePaused  PlayState = "paused"
	StateStopped PlayState = "stopped"
)

// TrackInfo describes the track loaded for a room. Duration is in seconds
// on the wire and converted to milliseconds on load.
type TrackInfo struct {
	Mid      string `json:"mid"`
	Name     string `json:"name"`
	Artist   string `json:"artist"`
	Duration int    `json:"duration"`
	URL      string `json:"url"`
}

// Chunk is one encoded audio chunk with its playback duration.
type Chunk struct {
	Data     []byte
	Duration time.Duration
}

// Source is a constructed decode/transcode pipeline delivering sequential
// timed chunks. Done yields at most one value: nil on end-of-stream or the
// fatal pipeline error. Stop must be idempotent and safe on a source that
// was never started.
type Source interface {
	Start() error
	Chunks() <-chan Chunk
	Done() <-chan error
	Stop()
}

// SourceFactory constructs a pipeline for url that starts decoding at
// startMs into the track.
type SourceFactory func(url string, startMs int64) (Source, error)

// Sink is a published audio track accepting encoded samples. Unpublish must
// be idempotent.
type Sink interface {
	WriteSample(data []byte, d time.Duration) error
	Unpublish()
}

// Conn is an established room connection. Disconnect must be idempotent.
type Conn interface {
	PublishTrack(name string) (Sink, error)
	Disconnect()
}

// Joiner connects to a conferencing room. onDisconnected fires when the
// connection drops unexpectedly, not on an explicit Disconnect.
type Joiner interface {
	Join(roomName string, onDisconnected func()) (Conn, error)
}

// Notifier announces that the track playing in a room ran to completion.
// Implementations are fire-and-forget and must never block playback.
type Notifier interface {
	SongEnded(roomName string)
}
