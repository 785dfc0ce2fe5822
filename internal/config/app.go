package config

type AppConfig struct {
	Ledger   LedgerConfig
	Observer ObserverConfig
	Log      LogConfig
}

func LoadApp() (AppConfig, error) {
	logCfg, err := LoadLog()
	if err != nil {
		return AppConfig{}, err
	}
	ledgerCfg, err := LoadLedger()
	if err != nil {
		return AppConfig{}, err
	}
	observerCfg, err := LoadObserver()
	if err != nil {
		return AppConfig{}, err
	}
	return AppConfig{
		Ledger:   ledgerCfg,
		Observer: observerCfg,
		Log:      logCfg,
	}, nil
}
