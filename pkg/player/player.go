package player

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"room-jukebox/pkg/timer"
)

const (
	DefaultPauseTimeout   = 30 * time.Second
	DefaultLoadingTimeout = 30 * time.Second
	DefaultTrackName      = "music"

	// A playback attempt may outlive the track's nominal duration by this
	// much before it is considered stuck.
	playbackSlack      = 60 * time.Second
	minPlaybackTimeout = 2 * time.Minute
)

// ErrNoSongLoaded is returned by Play when no track has been loaded.
var ErrNoSongLoaded = errors.New("no song loaded")

// Options tunes a Player. Zero values fall back to the defaults above.
type Options struct {
	PauseTimeout   time.Duration
	LoadingTimeout time.Duration
	TrackName      string
}

func (o Options) withDefaults() Options {
	if o.PauseTimeout <= 0 {
		o.PauseTimeout = DefaultPauseTimeout
	}
	if o.LoadingTimeout <= 0 {
		o.LoadingTimeout = DefaultLoadingTimeout
	}
	if o.TrackName == "" {
		o.TrackName = DefaultTrackName
	}
	return o
}

// Player plays one track at a time into a single room. All field access goes
// through mu; the playback task holds the lock only for short state updates,
// never across pipeline or room I/O.
type Player struct {
	roomName  string
	rooms     Joiner
	newSource SourceFactory
	notifier  Notifier
	opts      Options
	logger    *slog.Logger

	mu         sync.RWMutex
	state      PlayState
	track      *TrackInfo
	positionMs int64
	durationMs int64

	// generation identifies the active playback attempt. Play, Resume, Seek,
	// Pause, Stop and the timeouts bump it; a playback task must check its
	// own generation against it before mutating shared state.
	generation uint64
	cancel     context.CancelFunc

	conn   Conn
	source Source

	pauseTimer   *timer.Timer
	loadingTimer *timer.Timer
	overallTimer *timer.Timer
}

// NewPlayer creates an idle player for roomName.
func NewPlayer(roomName string, rooms Joiner, factory SourceFactory, notifier Notifier, opts Options) *Player {
	return &Player{
		roomName:  roomName,
		rooms:     rooms,
		newSource: factory,
		notifier:  notifier,
		opts:      opts.withDefaults(),
		state:     StateIdle,
		logger:    slog.Default().With("component", "player", "room", roomName),
	}
}

// Load stores track as the current one and rewinds to the start. It does not
// connect to the room; Play does that on demand.
func (p *Player) Load(track *TrackInfo) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.invalidateLocked()
	p.state = StateLoading
	p.track = track
	p.positionMs = 0
	p.durationMs = int64(track.Duration) * 1000
	p.logger.Info("loaded track", "track", track.Name, "duration_ms", p.durationMs)
}

// Play starts playback of the loaded track from the current position.
// Calling it while already playing is a no-op.
func (p *Player) Play() error {
	p.mu.Lock()
	p.pauseTimer.Cancel()
	p.pauseTimer = nil

	if p.state == StatePlaying {
		p.mu.Unlock()
		return nil
	}
	track := p.track
	if track == nil {
		p.mu.Unlock()
		return ErrNoSongLoaded
	}

	gen, ctx := p.newGenerationLocked()
	p.state = StatePlaying
	startPos := p.positionMs
	p.mu.Unlock()

	if err := p.connect(gen); err != nil {
		p.failGeneration(gen)
		return err
	}

	go p.playbackTask(ctx, gen, track, startPos)
	return nil
}

// Pause suspends playback, keeping the last reported position. The room
// connection is retained until the pause timeout fires. No-op unless playing.
func (p *Player) Pause() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.state != StatePlaying {
		return
	}
	p.invalidateLocked()
	p.state = StatePaused
	p.logger.Info("paused", "position_ms", p.positionMs)

	p.pauseTimer.Cancel()
	p.pauseTimer = timer.After(p.opts.PauseTimeout, p.pauseExpired)
}

// Resume continues playback from the paused position, reconnecting to the
// room if the pause timeout had already dropped the connection.
func (p *Player) Resume() error {
	p.mu.Lock()
	p.pauseTimer.Cancel()
	p.pauseTimer = nil

	if p.state != StatePaused {
		state := p.state
		p.mu.Unlock()
		return fmt.Errorf("not paused, state=%s", state)
	}
	track := p.track
	if track == nil {
		p.mu.Unlock()
		return ErrNoSongLoaded
	}

	gen, ctx := p.newGenerationLocked()
	p.state = StatePlaying
	startPos := p.positionMs
	p.mu.Unlock()

	if err := p.connect(gen); err != nil {
		p.mu.Lock()
		if p.generation == gen {
			p.state = StatePaused
		}
		p.mu.Unlock()
		return err
	}

	p.logger.Info("resuming", "position_ms", startPos)
	go p.playbackTask(ctx, gen, track, startPos)
	return nil
}

// Seek moves the position. If a track is playing, the active attempt is
// superseded and a new one starts from the new position over the same room
// connection.
func (p *Player) Seek(positionMs int64) {
	p.mu.Lock()
	if positionMs < 0 {
		positionMs = 0
	}
	if positionMs > p.durationMs {
		positionMs = p.durationMs
	}
	p.positionMs = positionMs

	if p.state != StatePlaying || p.track == nil {
		p.mu.Unlock()
		return
	}
	track := p.track
	gen, ctx := p.newGenerationLocked()
	p.mu.Unlock()

	p.logger.Info("seeking", "position_ms", positionMs)
	go p.playbackTask(ctx, gen, track, positionMs)
}

// Stop cancels playback and all timers, tears down the pipeline and
// disconnects from the room. Valid from any state.
func (p *Player) Stop() {
	p.mu.Lock()
	p.invalidateLocked()
	p.pauseTimer.Cancel()
	p.pauseTimer = nil
	p.loadingTimer.Cancel()
	p.loadingTimer = nil
	p.overallTimer.Cancel()
	p.overallTimer = nil
	src := p.source
	p.source = nil
	conn := p.conn
	p.conn = nil
	p.state = StateStopped
	p.mu.Unlock()

	if src != nil {
		src.Stop()
	}
	if conn != nil {
		conn.Disconnect()
	}
	p.logger.Info("stopped")
}

// GetProgress reports position, duration, state and the loaded track.
func (p *Player) GetProgress() (positionMs, durationMs int64, state PlayState, track *TrackInfo) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.positionMs, p.durationMs, p.state, p.track
}

// invalidateLocked supersedes the active playback generation. The old task
// keeps running until it observes the cancellation but can no longer mutate
// shared state.
func (p *Player) invalidateLocked() {
	p.generation++
	if p.cancel != nil {
		p.cancel()
		p.cancel = nil
	}
}

// newGenerationLocked supersedes the previous generation and hands out the
// token and cancellation context for a new playback attempt.
func (p *Player) newGenerationLocked() (uint64, context.Context) {
	p.invalidateLocked()
	ctx, cancel := context.WithCancel(context.Background())
	p.cancel = cancel
	return p.generation, ctx
}

func (p *Player) isCurrent(gen uint64) bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.generation == gen
}

// connect joins the room if not already connected. Never holds the lock
// across the join call. A join that completes after generation gen was
// superseded, or after a concurrent connect won, is disconnected instead of
// installed.
func (p *Player) connect(gen uint64) error {
	p.mu.RLock()
	connected := p.conn != nil
	p.mu.RUnlock()
	if connected {
		return nil
	}

	conn, err := p.rooms.Join(p.roomName, p.onRoomDisconnected)
	if err != nil {
		return fmt.Errorf("failed to join room: %w", err)
	}

	p.mu.Lock()
	if p.generation != gen || p.conn != nil {
		p.mu.Unlock()
		conn.Disconnect()
		return nil
	}
	p.conn = conn
	p.mu.Unlock()

	p.logger.Info("connected to room")
	return nil
}

// onRoomDisconnected handles the room dropping underneath us: the active
// attempt is torn down and the player falls to stopped.
func (p *Player) onRoomDisconnected() {
	p.mu.Lock()
	p.conn = nil
	p.invalidateLocked()
	src := p.source
	p.source = nil
	p.state = StateStopped
	p.mu.Unlock()

	if src != nil {
		src.Stop()
	}
	p.logger.Warn("room connection lost")
}

// pauseExpired drops the room connection after an idle pause. Position and
// track survive so a later Resume can reconnect and continue.
func (p *Player) pauseExpired() {
	p.mu.Lock()
	if p.state != StatePaused {
		p.mu.Unlock()
		return
	}
	conn := p.conn
	p.conn = nil
	p.pauseTimer = nil
	p.mu.Unlock()

	if conn != nil {
		conn.Disconnect()
		p.logger.Info("disconnected after pause timeout")
	}
}

// failGeneration moves the player to stopped unless a newer generation has
// already taken over.
func (p *Player) failGeneration(gen uint64) {
	p.mu.Lock()
	if p.generation == gen {
		p.invalidateLocked()
		p.source = nil
		p.state = StateStopped
	}
	p.mu.Unlock()
}

// timeoutGeneration force-stops generation gen if it is still the active one.
func (p *Player) timeoutGeneration(gen uint64, reason string) {
	p.mu.Lock()
	if p.generation != gen {
		p.mu.Unlock()
		return
	}
	p.invalidateLocked()
	src := p.source
	p.source = nil
	p.state = StateStopped
	p.mu.Unlock()

	if src != nil {
		src.Stop()
	}
	p.logger.Warn("playback force-stopped", "reason", reason)
}

// finishGeneration records the terminal pipeline result for generation gen.
// A natural end-of-stream notifies the orchestrator exactly once; a fatal
// pipeline error just stops.
func (p *Player) finishGeneration(gen uint64, err error) {
	p.mu.Lock()
	if p.generation != gen {
		p.mu.Unlock()
		return
	}
	p.invalidateLocked()
	notify := err == nil && p.state == StatePlaying
	if notify {
		p.positionMs = p.durationMs
	}
	p.state = StateStopped
	p.source = nil
	p.mu.Unlock()

	if err != nil {
		p.logger.Error("pipeline error", "error", err)
		return
	}
	p.logger.Info("playback finished")
	if notify {
		go p.notifier.SongEnded(p.roomName)
	}
}

func overallTimeout(track *TrackInfo) time.Duration {
	d := time.Duration(track.Duration)*time.Second + playbackSlack
	if d < minPlaybackTimeout {
		d = minPlaybackTimeout
	}
	return d
}

// playbackTask runs one playback attempt for generation gen. It exclusively
// owns the pipeline it constructs and the track it publishes until it
// returns, and must not touch shared state once a newer generation exists.
func (p *Player) playbackTask(ctx context.Context, gen uint64, track *TrackInfo, startMs int64) {
	log := p.logger.With("track", track.Name, "start_ms", startMs)
	log.Info("starting playback")

	src, err := p.newSource(track.URL, startMs)
	if err != nil {
		log.Error("failed to construct pipeline", "error", err)
		p.failGeneration(gen)
		return
	}

	// Expose the pipeline through the shared slot so Stop and the timeouts
	// can tear it down promptly even while this task is blocked.
	p.mu.Lock()
	if p.generation != gen {
		p.mu.Unlock()
		src.Stop()
		return
	}
	p.source = src
	conn := p.conn
	p.mu.Unlock()

	if conn == nil {
		log.Error("room not connected")
		src.Stop()
		p.failGeneration(gen)
		return
	}

	sink, err := conn.PublishTrack(p.opts.TrackName)
	if err != nil {
		log.Error("failed to publish track", "error", err)
		src.Stop()
		p.failGeneration(gen)
		return
	}

	// Loading timeout: a pipeline that never produces a first chunk is stuck.
	// Overall timeout: a pipeline that never reaches end-of-stream is stuck.
	loading := timer.After(p.opts.LoadingTimeout, func() {
		p.timeoutGeneration(gen, "loading timeout")
	})
	overall := timer.After(overallTimeout(track), func() {
		p.timeoutGeneration(gen, "playback timeout")
	})
	p.mu.Lock()
	if p.generation == gen {
		p.loadingTimer.Cancel()
		p.loadingTimer = loading
		p.overallTimer.Cancel()
		p.overallTimer = overall
		p.mu.Unlock()
	} else {
		p.mu.Unlock()
		loading.Cancel()
		overall.Cancel()
		src.Stop()
		sink.Unpublish()
		return
	}

	defer func() {
		loading.Cancel()
		overall.Cancel()
		p.mu.Lock()
		if p.loadingTimer == loading {
			p.loadingTimer = nil
		}
		if p.overallTimer == overall {
			p.overallTimer = nil
		}
		if p.source == src {
			p.source = nil
		}
		p.mu.Unlock()
		src.Stop()
		sink.Unpublish()
	}()

	if err := src.Start(); err != nil {
		log.Error("failed to start pipeline", "error", err)
		p.failGeneration(gen)
		return
	}

	firstChunk := true
	for {
		select {
		case <-ctx.Done():
			return

		case c, ok := <-src.Chunks():
			if !ok {
				// Chunk flow ended; wait for the terminal result.
				select {
				case err := <-src.Done():
					p.finishGeneration(gen, err)
				case <-ctx.Done():
				}
				return
			}
			if !p.isCurrent(gen) {
				return
			}
			if firstChunk {
				firstChunk = false
				loading.Cancel()
			}
			if err := sink.WriteSample(c.Data, c.Duration); err != nil {
				log.Warn("failed to write sample", "error", err)
			}
			p.mu.Lock()
			if p.generation != gen {
				p.mu.Unlock()
				return
			}
			p.positionMs += c.Duration.Milliseconds()
			if p.positionMs > p.durationMs {
				p.positionMs = p.durationMs
			}
			p.mu.Unlock()

		case err := <-src.Done():
			p.finishGeneration(gen, err)
			return
		}
	}
}
