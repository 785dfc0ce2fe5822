package config

import (
	"time"

	"github.com/caarlos0/env/v11"
)

// LedgerConfig locates the ordering service this client observes.
type LedgerConfig struct {
	BaseURL        string        `env:"LEDGER_BASE_URL,required,notEmpty"`
	RequestTimeout time.Duration `env:"LEDGER_REQUEST_TIMEOUT" envDefault:"10s"`
}

func LoadLedger() (LedgerConfig, error) {
	var cfg LedgerConfig
	err := env.Parse(&cfg)
	return cfg, err
}
