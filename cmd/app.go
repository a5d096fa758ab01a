package main

import (
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/rs/cors"

	"room-jukebox/pkg/api"
	"room-jukebox/pkg/config"
	"room-jukebox/pkg/notify"
	"room-jukebox/pkg/pipeline"
	"room-jukebox/pkg/player"
	"room-jukebox/pkg/room"
)

func main() {
	os.Exit(run())
}

func run() int {
	if len(os.Args) > 2 {
		fmt.Fprintf(os.Stderr, "Usage: %s [config.yaml]\n", os.Args[0])
		return 1
	}

	configPath := ""
	if len(os.Args) == 2 {
		configPath = os.Args[1]
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		slog.Error("Failed to load config", "error", err)
		return 1
	}

	var level slog.Level
	if err := level.UnmarshalText([]byte(cfg.LogLevel)); err != nil {
		slog.Error("Invalid log level", "level", cfg.LogLevel, "error", err)
		return 1
	}

	h := slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level})
	slog.SetDefault(slog.New(h))

	joiner := room.NewService(cfg.LivekitUrl, cfg.LivekitApiKey, cfg.LivekitApiSecret, cfg.IdentityPrefix)
	ff := pipeline.New(cfg.FfmpegPath)
	notifier := notify.New(cfg.CallbackUrl)

	manager := player.NewManager(joiner, ff.NewSource, notifier, player.Options{
		PauseTimeout:   time.Duration(cfg.PauseTimeoutSec) * time.Second,
		LoadingTimeout: time.Duration(cfg.LoadingTimeoutSec) * time.Second,
	})

	router := api.NewRouter(manager)
	handler := cors.Default().Handler(router)

	slog.Info("Starting control API", "addr", cfg.ListenAddr)
	if err := http.ListenAndServe(cfg.ListenAddr, handler); err != nil {
		slog.Error("Server terminated", "error", err)
		return 2
	}

	return 0
}
