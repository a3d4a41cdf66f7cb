// Command captured is the headless meeting-capture client. It provisions a
// transcription session, streams microphone audio (raw float32 PCM on stdin)
// through the relay, assembles the transcript, and writes a meeting document
// on shutdown.
package main

import (
	"context"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"

	"meeting-capture-service/internal/audio"
	"meeting-capture-service/internal/config"
	"meeting-capture-service/internal/diarize"
	"meeting-capture-service/internal/document"
	"meeting-capture-service/internal/events"
	"meeting-capture-service/internal/observability/logging"
	"meeting-capture-service/internal/provider"
	"meeting-capture-service/internal/session"
	"meeting-capture-service/internal/transport"
)

func main() {
	cfg := config.MustLoad()

	logCfg := logging.DefaultConfig()
	logCfg.Level = cfg.Logging.Level
	if cfg.Logging.Pretty {
		logCfg.Format = "console"
	}
	logging.Init(logCfg)

	publisher := events.New(&events.Config{
		Enabled:      cfg.Kafka.Enabled,
		Brokers:      cfg.Kafka.BrokerList(),
		TopicPartial: cfg.Kafka.TopicPartial,
		TopicFinal:   cfg.Kafka.TopicFinal,
		Principal:    cfg.Kafka.Principal,
	})
	defer publisher.Close()

	providerClient := provider.NewClient(provider.Config{
		Endpoint: cfg.Capture.SessionEndpoint,
		APIKey:   cfg.Capture.SessionAPIKey,
		Language: cfg.Capture.Language,
	})

	var diarizer diarize.Diarizer = diarize.GapDiarizer{}
	if cfg.Capture.DiarizerEndpoint != "" {
		diarizer = diarize.NewHTTPDiarizer(cfg.Capture.DiarizerEndpoint, cfg.Capture.DiarizeTimeout)
	}

	renderer, err := document.NewMarkdownRenderer("documents")
	if err != nil {
		log.Fatal().Err(err).Msg("Document directory unavailable")
	}

	// The transport callbacks route into the controller; the controller is
	// created after the engine, so they go through a late-bound pointer.
	var ctrl *session.Controller
	dialer := &transport.WSDialer{Opts: transport.Options{
		OnMessage: func(data []byte, binary bool) { ctrl.HandleTransportMessage(data, binary) },
		OnError:   func(err error) { ctrl.HandleTransportFailure(err) },
	}}

	engine := audio.NewEngine(audio.NewPipeDevice(os.Stdin), dialer)

	relayBase := strings.TrimSuffix(cfg.Capture.RelayURL, "/")
	ctrl = session.New(session.Config{
		Provider:       providerClient,
		Engine:         engine,
		Diarizer:       diarizer,
		Renderer:       renderer,
		Publisher:      publisher,
		DiarizeTimeout: cfg.Capture.DiarizeTimeout,
		EndpointFor: func(sess *provider.Session) string {
			return relayBase + "/" + sess.SessionID
		},
		OnFailure: func(err error) {
			log.Error().Err(err).Msg("Recording interrupted")
		},
		OnTick: func(seconds int) {
			if seconds%60 == 0 {
				log.Info().Int("seconds", seconds).Msg("Recording in progress")
			}
		},
	})

	ctx := context.Background()
	if err := ctrl.Start(ctx); err != nil {
		log.Fatal().Err(err).Msg("Failed to start recording")
	}
	defer engine.Release()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig

	ctrl.Stop()

	genCtx, cancel := context.WithTimeout(ctx, 90*time.Second)
	defer cancel()
	handle, err := ctrl.GenerateDocument(genCtx)
	if err != nil {
		log.Error().Err(err).Msg("No document generated")
		return
	}
	log.Info().Str("document", handle).Msg("Meeting document ready")
}
