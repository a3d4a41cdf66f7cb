// Package config loads service configuration from the environment.
package config

import (
	"strings"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
)

// Config is the full environment-driven configuration. The relay and capture
// binaries read the sections they need; unset variables fall back to
// defaults that work for local development.
type Config struct {
	Relay   RelayConfig
	Capture CaptureConfig
	Kafka   KafkaConfig
	Logging LoggingConfig
}

// RelayConfig configures the credential-injecting websocket relay.
type RelayConfig struct {
	Port        int           `env:"RELAY_PORT" env-default:"8080"`
	MetricsPort int           `env:"METRICS_PORT" env-default:"9090"`
	UpstreamURL string        `env:"UPSTREAM_WS_URL" env-default:"wss://api.openai.com/v1/realtime"`
	APIKey      string        `env:"OPENAI_API_KEY"`
	AuthTimeout time.Duration `env:"AUTH_TIMEOUT" env-default:"10s"`
	DialTimeout time.Duration `env:"UPSTREAM_DIAL_TIMEOUT" env-default:"10s"`
}

// CaptureConfig configures the capture client.
type CaptureConfig struct {
	RelayURL         string        `env:"RELAY_WS_URL" env-default:"ws://localhost:8080/ws-proxy"`
	SessionEndpoint  string        `env:"SESSION_ENDPOINT" env-default:"http://localhost:8080/v1/sessions"`
	SessionAPIKey    string        `env:"SESSION_API_KEY"`
	Language         string        `env:"TRANSCRIPTION_LANGUAGE" env-default:"zh"`
	DiarizerEndpoint string        `env:"DIARIZER_ENDPOINT"`
	DiarizeTimeout   time.Duration `env:"DIARIZE_TIMEOUT" env-default:"60s"`
}

// KafkaConfig configures transcript event publishing.
type KafkaConfig struct {
	Enabled      bool   `env:"KAFKA_ENABLED" env-default:"false"`
	Brokers      string `env:"KAFKA_BROKERS"`
	TopicPartial string `env:"KAFKA_TOPIC_PARTIAL" env-default:"meeting.transcript.partial"`
	TopicFinal   string `env:"KAFKA_TOPIC_FINAL" env-default:"meeting.transcript.final"`
	Principal    string `env:"KAFKA_PRINCIPAL" env-default:"meeting-capture-service"`
}

// BrokerList splits the comma-separated broker string.
func (k KafkaConfig) BrokerList() []string {
	if k.Brokers == "" {
		return nil
	}
	parts := strings.Split(k.Brokers, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

// LoggingConfig configures the structured logger.
type LoggingConfig struct {
	Level  string `env:"LOG_LEVEL" env-default:"info"`
	Pretty bool   `env:"LOG_PRETTY" env-default:"false"`
}

// Load reads configuration from the environment.
func Load() (*Config, error) {
	var cfg Config
	if err := cleanenv.ReadEnv(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// MustLoad is Load for binaries that cannot start without configuration.
func MustLoad() *Config {
	cfg, err := Load()
	if err != nil {
		panic("failed to read environment variables: " + err.Error())
	}
	return cfg
}
