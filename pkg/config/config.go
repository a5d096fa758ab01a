package config

import (
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

type Config struct {
	ListenAddr        string `koanf:"listenAddr"`
	LivekitUrl        string `koanf:"livekitUrl"`
	LivekitApiKey     string `koanf:"livekitApiKey"`
	LivekitApiSecret  string `koanf:"livekitApiSecret"`
	CallbackUrl       string `koanf:"callbackUrl"`
	IdentityPrefix    string `koanf:"identityPrefix"`
	FfmpegPath        string `koanf:"ffmpegPath"`
	PauseTimeoutSec   int    `koanf:"pauseTimeoutSec"`
	LoadingTimeoutSec int    `koanf:"loadingTimeoutSec"`
	LogLevel          string `koanf:"logLevel"`
}

func Default() Config {
	return Config{
		ListenAddr:        ":9100",
		LivekitUrl:        "ws://127.0.0.1:7880",
		LivekitApiKey:     "devkey",
		LivekitApiSecret:  "secret",
		CallbackUrl:       "http://127.0.0.1:8000/api/music/internal",
		IdentityPrefix:    "music-bot",
		FfmpegPath:        "ffmpeg",
		PauseTimeoutSec:   30,
		LoadingTimeoutSec: 30,
		LogLevel:          "info",
	}
}

// Load reads configPath over the defaults. An empty path returns the
// defaults unchanged.
func Load(configPath string) (*Config, error) {
	var k = koanf.New(".")
	if err := k.Load(structs.Provider(Default(), "koanf"), nil); err != nil {
		return nil, err
	}

	if configPath != "" {
		if err := k.Load(file.Provider(configPath), yaml.Parser()); err != nil {
			return nil, err
		}
	}

	var config Config
	err := k.UnmarshalWithConf("", &config, koanf.UnmarshalConf{FlatPaths: true})
	if err != nil {
		return nil, err
	}

	return &config, nil
}
