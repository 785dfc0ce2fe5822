package config

import (
	"testing"
	"time"
)

func TestLoadLogDefaults(t *testing.T) {
	cfg, err := LoadLog()
	if err != nil {
		t.Fatalf("LoadLog() error = %v", err)
	}
	if cfg.Level != "info" {
		t.Fatalf("Level = %q, want info", cfg.Level)
	}
}

func TestLoadLogParse(t *testing.T) {
	t.Setenv("LOG_LEVEL", "debug")
	t.Setenv("LOG_CALLER", "true")

	cfg, err := LoadLog()
	if err != nil {
		t.Fatalf("LoadLog() error = %v", err)
	}
	if cfg.Level != "debug" || !cfg.Caller {
		t.Fatalf("unexpected log config: %+v", cfg)
	}
}

func TestLoadLedgerRequiresBaseURL(t *testing.T) {
	t.Setenv("LEDGER_BASE_URL", "")
	if _, err := LoadLedger(); err == nil {
		t.Fatal("LoadLedger() without LEDGER_BASE_URL should fail")
	}
	t.Setenv("LEDGER_BASE_URL", "http://ledger:8080")
	cfg, err := LoadLedger()
	if err != nil {
		t.Fatalf("LoadLedger() error = %v", err)
	}
	if cfg.BaseURL != "http://ledger:8080" || cfg.RequestTimeout != 10*time.Second {
		t.Fatalf("unexpected ledger config: %+v", cfg)
	}
}

func TestLoadObserverDefaults(t *testing.T) {
	cfg, err := LoadObserver()
	if err != nil {
		t.Fatalf("LoadObserver() error = %v", err)
	}
	if cfg.StreamTransport != "sse" {
		t.Fatalf("StreamTransport = %q, want sse", cfg.StreamTransport)
	}
	if cfg.ReconnectMax != 30*time.Second || cfg.GapRetryMax != 3 {
		t.Fatalf("unexpected observer config: %+v", cfg)
	}
}

func TestLoadAppAggregates(t *testing.T) {
	t.Setenv("LEDGER_BASE_URL", "http://ledger:8080")
	t.Setenv("STREAM_TRANSPORT", "ws")

	cfg, err := LoadApp()
	if err != nil {
		t.Fatalf("LoadApp() error = %v", err)
	}
	if cfg.Ledger.BaseURL == "" || cfg.Observer.StreamTransport != "ws" {
		t.Fatalf("unexpected app config: %+v", cfg)
	}
}
