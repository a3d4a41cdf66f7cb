package diarize

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

// HTTPDiarizer sends the full finalized transcript to an external diarization
// service and maps its response back onto turn ids.
type HTTPDiarizer struct {
	endpoint string
	client   *http.Client
	log      zerolog.Logger
}

type diarizeRequest struct {
	Transcript []Turn `json:"transcript"`
}

type diarizeResponse struct {
	Diarized []Assignment `json:"diarized_transcript"`
}

// NewHTTPDiarizer creates a client for the given diarization endpoint.
func NewHTTPDiarizer(endpoint string, timeout time.Duration) *HTTPDiarizer {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &HTTPDiarizer{
		endpoint: endpoint,
		client:   &http.Client{Timeout: timeout},
		log:      logging.WithComponent("diarizer"),
	}
}

// Diarize posts the transcript and returns the service's speaker assignments.
func (d *HTTPDiarizer) Diarize(ctx context.Context, turns []Turn) ([]Assignment, error) {
	if len(turns) == 0 {
		return nil, nil
	}

	body, err := json.Marshal(diarizeRequest{Transcript: turns})
	if err != nil {
		return nil, fmt.Errorf("marshal diarization request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build diarization request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	start := time.Now()
	resp, err := d.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("diarization request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		// Drain a bounded amount so the connection can be reused.
		_, _ = io.CopyN(io.Discard, resp.Body, 4096)
		return nil, fmt.Errorf("diarization service returned %d", resp.StatusCode)
	}

	var parsed diarizeResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("decode diarization response: %w", err)
	}

	d.log.Debug().
		Int("turns", len(turns)).
		Int("assignments", len(parsed.Diarized)).
		Dur("elapsed", time.Since(start)).
		Msg("Diarization complete")
	return parsed.Diarized, nil
}
