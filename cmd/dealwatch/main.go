package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"dealwatch/internal/config"
	"dealwatch/internal/ledgerclient"
	"dealwatch/internal/logging"
	"dealwatch/internal/observer"
	"dealwatch/internal/stream"
	httptransport "dealwatch/internal/transport/http"

	"github.com/rs/zerolog/log"
)

func main() {
	logCfg, err := config.LoadLog()
	if err != nil {
		panic(err)
	}
	logging.Init(logCfg)
	cfg, err := config.LoadApp()
	if err != nil {
		log.Fatal().Err(err).Msg("load config failed")
	}

	client := ledgerclient.New(cfg.Ledger.BaseURL, cfg.Ledger.RequestTimeout)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	sess, err := client.CreateSession(ctx)
	if err != nil {
		log.Fatal().Err(err).Msg("create session failed")
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := client.CloseSession(closeCtx, sess.SessionID); err != nil {
			log.Warn().Err(err).Msg("close session failed")
		}
	}()
	log.Info().
		Str("session_id", sess.SessionID).
		Str("hand_id", sess.HandID).
		Int("viewer_seat", sess.ViewerSeat).
		Int("player_count", sess.PlayerCount).
		Msg("session created")

	transport := newTransport(cfg.Observer)
	obs := observer.New(transport, client, sess, observer.Config{
		GapRetryMax:    cfg.Observer.GapRetryMax,
		GapRetryBase:   cfg.Observer.GapRetryBase,
		BufferMax:      cfg.Observer.EventBufferMax,
		PhaseTransport: newPhaseTransport(cfg.Observer),
	})

	server := &http.Server{
		Addr:              cfg.Observer.HTTPAddr,
		Handler:           httptransport.NewRouter(obs),
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       120 * time.Second,
	}
	go func() {
		log.Info().Str("addr", cfg.Observer.HTTPAddr).Msg("http listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error().Err(err).Msg("http server stopped")
		}
	}()

	runErr := obs.Run(ctx)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = server.Shutdown(shutdownCtx)

	if runErr != nil && !errors.Is(runErr, context.Canceled) {
		log.Error().Err(runErr).Msg("observer stopped")
		os.Exit(1)
	}
	log.Info().Str("phase", string(obs.State().Phase)).Msg("observer done")
}

func newTransport(cfg config.ObserverConfig) stream.Transport {
	backoff := stream.Backoff{Base: cfg.ReconnectBase, Max: cfg.ReconnectMax}
	switch cfg.StreamTransport {
	case "ws":
		return &stream.WSTransport{Backoff: backoff}
	default:
		return &stream.SSETransport{Backoff: backoff}
	}
}

// newPhaseTransport builds the transport for the per-phase side
// streams. Those end by deliberate closure, so a clean EOF means the
// phase completed rather than a dropped connection.
func newPhaseTransport(cfg config.ObserverConfig) stream.Transport {
	backoff := stream.Backoff{Base: cfg.ReconnectBase, Max: cfg.ReconnectMax}
	switch cfg.StreamTransport {
	case "ws":
		return &stream.WSTransport{Backoff: backoff}
	default:
		return &stream.SSETransport{Backoff: backoff, CompleteOnEOF: true}
	}
}
