package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"

	"meeting-capture-service/internal/config"
	httpapi "meeting-capture-service/internal/http"
	"meeting-capture-service/internal/observability"
	"meeting-capture-service/internal/observability/logging"
	"meeting-capture-service/internal/relay"
)

func main() {
	cfg := config.MustLoad()

	logCfg := logging.DefaultConfig()
	logCfg.Level = cfg.Logging.Level
	if cfg.Logging.Pretty {
		logCfg.Format = "console"
	}
	logging.Init(logCfg)

	if cfg.Relay.APIKey == "" {
		log.Fatal().Msg("OPENAI_API_KEY is required")
	}

	svc := relay.New(relay.Config{
		UpstreamURL: cfg.Relay.UpstreamURL,
		APIKey:      cfg.Relay.APIKey,
		AuthTimeout: cfg.Relay.AuthTimeout,
		DialTimeout: cfg.Relay.DialTimeout,
	})

	obs := observability.NewServer(fmt.Sprintf(":%d", cfg.Relay.MetricsPort))
	obs.Start()

	server := &http.Server{
		Addr:        fmt.Sprintf(":%d", cfg.Relay.Port),
		Handler:     httpapi.NewRouter(svc),
		ReadTimeout: 10 * time.Second,
		IdleTimeout: 120 * time.Second,
	}

	go func() {
		log.Info().Int("port", cfg.Relay.Port).Msg("Relay started")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("Relay server failed")
		}
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig

	log.Info().Msg("Shutting down")
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		log.Error().Err(err).Msg("Relay shutdown failed")
	}
	if err := obs.Shutdown(ctx); err != nil {
		log.Error().Err(err).Msg("Observability shutdown failed")
	}
}
