// Package room publishes audio into LiveKit rooms. It is glue only: the
// player owns all playback state, this package just joins, publishes opus
// samples and disconnects.
package room

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/livekit/protocol/livekit"
	lksdk "github.com/livekit/server-sdk-go/v2"
	"github.com/pion/webrtc/v3"
	"github.com/pion/webrtc/v3/pkg/media"
	"github.com/rs/xid"

	"room-jukebox/pkg/player"
)

const (
	sampleRate      = 48000
	channels        = 2
	participantName = "Music Bot"
)

// Service joins LiveKit rooms on behalf of the music bot.
type Service struct {
	url            string
	apiKey         string
	apiSecret      string
	identityPrefix string
	logger         *slog.Logger
}

var _ player.Joiner = (*Service)(nil)

// NewService configures a joiner for the given LiveKit deployment.
func NewService(url, apiKey, apiSecret, identityPrefix string) *Service {
	if identityPrefix == "" {
		identityPrefix = "music-bot"
	}
	return &Service{
		url:            url,
		apiKey:         apiKey,
		apiSecret:      apiSecret,
		identityPrefix: identityPrefix,
		logger:         slog.Default().With("component", "room"),
	}
}

// Join connects to roomName without subscribing to other participants.
// The identity carries a unique suffix so a reconnect never collides with a
// stale session of the same bot.
func (s *Service) Join(roomName string, onDisconnected func()) (player.Conn, error) {
	cb := lksdk.NewRoomCallback()
	cb.OnDisconnected = onDisconnected

	r := lksdk.NewRoom(cb)
	err := r.Join(s.url, lksdk.ConnectInfo{
		APIKey:              s.apiKey,
		APISecret:           s.apiSecret,
		RoomName:            roomName,
		ParticipantIdentity: fmt.Sprintf("%s-%s-%s", s.identityPrefix, roomName, xid.New().String()),
		ParticipantName:     participantName,
	}, lksdk.WithAutoSubscribe(false))
	if err != nil {
		return nil, fmt.Errorf("failed to join room: %w", err)
	}

	s.logger.Info("joined room", "room", roomName)
	return &conn{room: r, logger: s.logger.With("room", roomName)}, nil
}

type conn struct {
	room   *lksdk.Room
	logger *slog.Logger
	once   sync.Once
}

// PublishTrack publishes a stereo opus track tuned for music: DTX off so
// quiet passages are not mistaken for silence.
func (c *conn) PublishTrack(name string) (player.Sink, error) {
	t, err := lksdk.NewLocalSampleTrack(webrtc.RTPCodecCapability{
		MimeType:  webrtc.MimeTypeOpus,
		ClockRate: sampleRate,
		Channels:  channels,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create track: %w", err)
	}

	pub, err := c.room.LocalParticipant.PublishTrack(t, &lksdk.TrackPublicationOptions{
		Name:       name,
		Source:     livekit.TrackSource_MICROPHONE,
		DisableDTX: true,
		Stereo:     true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to publish track: %w", err)
	}

	c.logger.Info("published track", "sid", pub.SID())
	return &track{track: t, sid: pub.SID(), room: c.room}, nil
}

func (c *conn) Disconnect() {
	c.once.Do(c.room.Disconnect)
}

type track struct {
	track *lksdk.LocalSampleTrack
	sid   string
	room  *lksdk.Room
	once  sync.Once
}

func (t *track) WriteSample(data []byte, d time.Duration) error {
	return t.track.WriteSample(media.Sample{Data: data, Duration: d}, nil)
}

func (t *track) Unpublish() {
	t.once.Do(func() {
		_ = t.room.LocalParticipant.UnpublishTrack(t.sid)
	})
}
