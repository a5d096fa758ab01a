package api

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	. "github.com/smartystreets/goconvey/convey"

	"room-jukebox/pkg/player"
)

type stubSink struct{}

func (stubSink) WriteSample(data []byte, d time.Duration) error { return nil }
func (stubSink) Unpublish()                                     {}

type stubConn struct{}

func (stubConn) PublishTrack(name string) (player.Sink, error) { return stubSink{}, nil }
func (stubConn) Disconnect()                                   {}

type stubJoiner struct{}

func (stubJoiner) Join(roomName string, onDisconnected func()) (player.Conn, error) {
	return stubConn{}, nil
}

type stubSource struct {
	chunks chan player.Chunk
	done   chan error
}

func (s *stubSource) Start() error                { return nil }
func (s *stubSource) Chunks() <-chan player.Chunk { return s.chunks }
func (s *stubSource) Done() <-chan error          { return s.done }
func (s *stubSource) Stop()                       {}

func stubFactory(url string, startMs int64) (player.Source, error) {
	return &stubSource{chunks: make(chan player.Chunk), done: make(chan error, 1)}, nil
}

type stubNotifier struct{}

func (stubNotifier) SongEnded(roomName string) {}

func newTestServer() *httptest.Server {
	m := player.NewManager(stubJoiner{}, stubFactory, stubNotifier{}, player.Options{})
	return httptest.NewServer(NewRouter(m))
}

func post(url string, body any) (*http.Response, map[string]any) {
	payload, _ := json.Marshal(body)
	resp, err := http.Post(url, "application/json", bytes.NewReader(payload))
	if err != nil {
		panic(err)
	}
	defer resp.Body.Close()
	var decoded map[string]any
	_ = json.NewDecoder(resp.Body).Decode(&decoded)
	return resp, decoded
}

func get(url string) (*http.Response, map[string]any) {
	resp, err := http.Get(url)
	if err != nil {
		panic(err)
	}
	defer resp.Body.Close()
	var decoded map[string]any
	_ = json.NewDecoder(resp.Body).Decode(&decoded)
	return resp, decoded
}

func testSong() map[string]any {
	return map[string]any{
		"mid":      "m1",
		"name":     "Test Song",
		"artist":   "Test Artist",
		"duration": 180,
		"url":      "http://media.example/m1.mp3",
	}
}

func TestControlAPI(t *testing.T) {
	Convey("Control API", t, func() {
		srv := newTestServer()
		defer srv.Close()

		Convey("GET /health should report ok", func() {
			resp, body := get(srv.URL + "/health")
			So(resp.StatusCode, ShouldEqual, http.StatusOK)
			So(body["status"], ShouldEqual, "ok")
		})

		Convey("POST /play should load and start the track", func() {
			resp, body := post(srv.URL+"/play", map[string]any{
				"room_name": "room1",
				"song":      testSong(),
			})
			So(resp.StatusCode, ShouldEqual, http.StatusOK)
			So(body["success"], ShouldEqual, true)

			resp, body = get(srv.URL + "/progress?room_name=room1")
			So(resp.StatusCode, ShouldEqual, http.StatusOK)
			So(body["state"], ShouldEqual, "playing")
			So(body["duration_ms"], ShouldEqual, 180000.0)
			So(body["position_ms"], ShouldEqual, 0.0)
			song := body["song"].(map[string]any)
			So(song["mid"], ShouldEqual, "m1")
		})

		Convey("POST /play should reject malformed and incomplete requests", func() {
			resp, err := http.Post(srv.URL+"/play", "application/json", bytes.NewReader([]byte("{")))
			So(err, ShouldBeNil)
			resp.Body.Close()
			So(resp.StatusCode, ShouldEqual, http.StatusBadRequest)

			resp2, _ := post(srv.URL+"/play", map[string]any{"room_name": "room1"})
			So(resp2.StatusCode, ShouldEqual, http.StatusBadRequest)
		})

		Convey("POST /resume should report failure without an HTTP error when not paused", func() {
			resp, body := post(srv.URL+"/resume", map[string]any{"room_name": "room1"})
			So(resp.StatusCode, ShouldEqual, http.StatusOK)
			So(body["success"], ShouldEqual, false)
			So(body["error"], ShouldContainSubstring, "not paused")
		})

		Convey("Pause, seek and stop should round-trip through progress", func() {
			post(srv.URL+"/play", map[string]any{"room_name": "room1", "song": testSong()})

			resp, body := post(srv.URL+"/pause", map[string]any{"room_name": "room1"})
			So(resp.StatusCode, ShouldEqual, http.StatusOK)
			So(body["success"], ShouldEqual, true)
			_, body = get(srv.URL + "/progress?room_name=room1")
			So(body["state"], ShouldEqual, "paused")

			resp, body = post(srv.URL+"/seek", map[string]any{"room_name": "room1", "position_ms": 90000})
			So(resp.StatusCode, ShouldEqual, http.StatusOK)
			So(body["success"], ShouldEqual, true)
			_, body = get(srv.URL + "/progress?room_name=room1")
			So(body["position_ms"], ShouldEqual, 90000.0)

			resp, body = post(srv.URL+"/stop", map[string]any{"room_name": "room1"})
			So(resp.StatusCode, ShouldEqual, http.StatusOK)
			So(body["success"], ShouldEqual, true)
			_, body = get(srv.URL + "/progress?room_name=room1")
			So(body["state"], ShouldEqual, "stopped")
		})

		Convey("GET /progress should require a room name", func() {
			resp, _ := get(srv.URL + "/progress")
			So(resp.StatusCode, ShouldEqual, http.StatusBadRequest)
		})

		Convey("Room requests should require a room name", func() {
			resp, _ := post(srv.URL+"/pause", map[string]any{})
			So(resp.StatusCode, ShouldEqual, http.StatusBadRequest)
		})
	})
}
