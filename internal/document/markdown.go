// Package document renders finished transcripts into meeting documents.
package document

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"meeting-capture-service/internal/observability/logging"
	"meeting-capture-service/internal/transcript"
)

// MarkdownRenderer writes the transcript as a markdown file and returns its
// path as the document handle.
type MarkdownRenderer struct {
	dir string
	log zerolog.Logger
}

// NewMarkdownRenderer creates a renderer writing into dir, which is created
// if missing.
func NewMarkdownRenderer(dir string) (*MarkdownRenderer, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create document directory: %w", err)
	}
	return &MarkdownRenderer{
		dir: dir,
		log: logging.WithComponent("document"),
	}, nil
}

// Render writes the transcript and returns the file path.
func (r *MarkdownRenderer) Render(ctx context.Context, sessionID string, segments []transcript.Segment) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	var b strings.Builder
	fmt.Fprintf(&b, "# Meeting Transcript\n\n")
	fmt.Fprintf(&b, "Session: %s\n\n", sessionID)
	fmt.Fprintf(&b, "Generated: %s\n\n", time.Now().Format(time.RFC3339))

	for _, seg := range segments {
		if seg.Text == "" {
			continue
		}
		if seg.Speaker != "" {
			fmt.Fprintf(&b, "**%s:** %s\n\n", seg.Speaker, seg.Text)
		} else {
			fmt.Fprintf(&b, "%s\n\n", seg.Text)
		}
	}

	path := filepath.Join(r.dir, fmt.Sprintf("%s-%d.md", sessionID, time.Now().Unix()))
	if err := os.WriteFile(path, []byte(b.String()), 0o644); err != nil {
		return "", fmt.Errorf("write document: %w", err)
	}

	r.log.Info().Str("sessionId", sessionID).Str("path", path).Msg("Transcript document written")
	return path, nil
}
