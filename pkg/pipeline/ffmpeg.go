// Package pipeline turns a source locator into a stream of timed Ogg/Opus
// chunks using an external ffmpeg process. Chunk durations come from the
// granule position deltas of the Ogg pages at the 48kHz Opus clock.
package pipeline

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os/exec"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/pion/webrtc/v3/pkg/media/oggreader"

	"room-jukebox/pkg/player"
)

// Audio format expected by the room: 48kHz stereo Opus tuned for music.
const (
	SampleRate  = 48000
	Channels    = 2
	OpusBitrate = "256k"
	FrameMs     = 20
)

const chunkQueueSize = 64

// FFmpeg constructs transcode pipelines backed by an ffmpeg subprocess.
type FFmpeg struct {
	path   string
	logger *slog.Logger
}

// New returns a factory using the given ffmpeg binary ("" means $PATH lookup
// of "ffmpeg").
func New(path string) *FFmpeg {
	if path == "" {
		path = "ffmpeg"
	}
	return &FFmpeg{
		path:   path,
		logger: slog.Default().With("component", "pipeline"),
	}
}

// NewSource constructs (but does not start) a pipeline decoding url from
// startMs onward. Seeking is expressed as the start offset because the
// player restarts the pipeline on every seek.
func (f *FFmpeg) NewSource(url string, startMs int64) (player.Source, error) {
	if url == "" {
		return nil, errors.New("empty source url")
	}
	cmd := exec.Command(f.path, buildArgs(url, startMs)...)
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("failed to open ffmpeg stdout: %w", err)
	}
	f.logger.Debug("pipeline constructed", "url", url, "start_ms", startMs)
	return &source{
		cmd:    cmd,
		stdout: stdout,
		chunks: make(chan player.Chunk, chunkQueueSize),
		done:   make(chan error, 1),
		quit:   make(chan struct{}),
	}, nil
}

func buildArgs(url string, startMs int64) []string {
	args := []string{"-nostats", "-hide_banner", "-loglevel", "error"}
	if startMs > 0 {
		args = append(args, "-ss", fmt.Sprintf("%d.%03d", startMs/1000, startMs%1000))
	}
	if strings.HasPrefix(url, "http://") || strings.HasPrefix(url, "https://") {
		// Keep network sources alive across transient hiccups.
		args = append(args,
			"-reconnect", "1",
			"-reconnect_streamed", "1",
			"-reconnect_delay_max", "5",
		)
	}
	return append(args,
		"-i", url,
		"-vn",
		"-c:a", "libopus",
		"-b:a", OpusBitrate,
		"-ar", strconv.Itoa(SampleRate),
		"-ac", strconv.Itoa(Channels),
		"-frame_duration", strconv.Itoa(FrameMs),
		// One opus frame per ogg page, so each parsed page is one 20ms sample.
		"-page_duration", strconv.Itoa(FrameMs*1000),
		"-application", "audio",
		"-f", "ogg",
		"pipe:1",
	)
}

type source struct {
	cmd    *exec.Cmd
	stdout io.ReadCloser
	chunks chan player.Chunk
	done   chan error

	quit     chan struct{}
	stopOnce sync.Once
	doneOnce sync.Once
}

var _ player.Source = (*source)(nil)

func (s *source) Chunks() <-chan player.Chunk { return s.chunks }
func (s *source) Done() <-chan error          { return s.done }

// Start spawns ffmpeg and begins delivering chunks.
func (s *source) Start() error {
	select {
	case <-s.quit:
		return errors.New("pipeline already stopped")
	default:
	}
	if err := s.cmd.Start(); err != nil {
		return fmt.Errorf("failed to start ffmpeg: %w", err)
	}
	go s.readLoop()
	return nil
}

// Stop tears the pipeline down. Safe to call more than once and safe on a
// source that was never started.
func (s *source) Stop() {
	s.stopOnce.Do(func() {
		close(s.quit)
		if s.cmd.Process != nil {
			_ = s.cmd.Process.Kill()
		}
		_ = s.stdout.Close()
	})
}

func (s *source) readLoop() {
	defer close(s.chunks)
	err := s.pump()
	werr := s.cmd.Wait()
	if err == nil && werr != nil {
		err = fmt.Errorf("ffmpeg exited: %w", werr)
	}
	s.finish(err)
}

func (s *source) pump() error {
	ogg, _, err := oggreader.NewWith(s.stdout)
	if err != nil {
		return fmt.Errorf("failed to read ogg stream: %w", err)
	}

	var lastGranule uint64
	for {
		page, header, err := ogg.ParseNextPage()
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("failed to parse ogg page: %w", err)
		}

		var d time.Duration
		if header.GranulePosition > lastGranule {
			delta := header.GranulePosition - lastGranule
			lastGranule = header.GranulePosition
			d = time.Duration(delta) * time.Second / SampleRate
		}

		select {
		case s.chunks <- player.Chunk{Data: page, Duration: d}:
		case <-s.quit:
			return nil
		}
	}
}

func (s *source) finish(err error) {
	s.doneOnce.Do(func() {
		s.done <- err
		close(s.done)
	})
}
