package config

import (
	"time"

	"github.com/caarlos0/env/v11"
)

// ObserverConfig tunes the stream subscription and gap recovery, plus
// the local debug HTTP surface.
type ObserverConfig struct {
	HTTPAddr string `env:"HTTP_ADDR" envDefault:":8090"`

	// sse or ws
	StreamTransport string `env:"STREAM_TRANSPORT" envDefault:"sse"`

	ReconnectBase time.Duration `env:"RECONNECT_BASE" envDefault:"1s"`
	ReconnectMax  time.Duration `env:"RECONNECT_MAX" envDefault:"30s"`

	GapRetryMax  int           `env:"GAP_RETRY_MAX" envDefault:"3"`
	GapRetryBase time.Duration `env:"GAP_RETRY_BASE" envDefault:"500ms"`

	EventBufferMax int `env:"EVENT_BUFFER_MAX" envDefault:"256"`
}

func LoadObserver() (ObserverConfig, error) {
	var cfg ObserverConfig
	err := env.Parse(&cfg)
	return cfg, err
}
