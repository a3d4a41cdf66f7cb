// Package provider creates realtime transcription sessions with the upstream
// speech service.
package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"meeting-capture-service/internal/observability/logging"
)

// DefaultLanguage is the transcription language requested when the config
// leaves it empty.
const DefaultLanguage = "zh"

// Session is a provisioned realtime transcription session. URL is the
// websocket endpoint audio must be streamed to before ExpiresAt.
type Session struct {
	SessionID string    `json:"session_id"`
	URL       string    `json:"url"`
	ExpiresAt time.Time `json:"expires_at"`
}

// Config holds the session-creation client settings.
type Config struct {
	// Endpoint is the session-creation HTTP endpoint.
	Endpoint string
	// APIKey is sent as a bearer credential.
	APIKey string
	// Language defaults to DefaultLanguage.
	Language string
	// Timeout bounds the creation request; zero means 15 s.
	Timeout time.Duration
}

// Client provisions transcription sessions over HTTP.
type Client struct {
	cfg  Config
	http *http.Client
	log  zerolog.Logger
}

// NewClient creates a session-creation client.
func NewClient(cfg Config) *Client {
	if cfg.Language == "" {
		cfg.Language = DefaultLanguage
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 15 * time.Second
	}
	return &Client{
		cfg:  cfg,
		http: &http.Client{Timeout: cfg.Timeout},
		log:  logging.WithComponent("provider"),
	}
}

type createRequest struct {
	InputAudioFormat string          `json:"input_audio_format"`
	TurnDetection    turnDetection   `json:"turn_detection"`
	NoiseReduction   *noiseReduction `json:"input_audio_noise_reduction,omitempty"`
	Language         string          `json:"language"`
}

type turnDetection struct {
	Type string `json:"type"`
}

type noiseReduction struct {
	Type string `json:"type"`
}

// CreateSession requests a new realtime session configured for 16-bit PCM
// with server-side voice activity detection and near-field noise reduction.
func (c *Client) CreateSession(ctx context.Context) (*Session, error) {
	body, err := json.Marshal(createRequest{
		InputAudioFormat: "pcm16",
		TurnDetection:    turnDetection{Type: "server_vad"},
		NoiseReduction:   &noiseReduction{Type: "near_field"},
		Language:         c.cfg.Language,
	})
	if err != nil {
		return nil, fmt.Errorf("marshal session request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.Endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build session request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("session creation failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		_, _ = io.CopyN(io.Discard, resp.Body, 4096)
		return nil, fmt.Errorf("session creation returned %d", resp.StatusCode)
	}

	var sess Session
	if err := json.NewDecoder(resp.Body).Decode(&sess); err != nil {
		return nil, fmt.Errorf("decode session response: %w", err)
	}
	if sess.SessionID == "" || sess.URL == "" {
		return nil, fmt.Errorf("session response missing id or url")
	}

	c.log.Info().
		Str("sessionId", sess.SessionID).
		Time("expiresAt", sess.ExpiresAt).
		Dur("elapsed", time.Since(start)).
		Msg("Transcription session created")
	return &sess, nil
}
