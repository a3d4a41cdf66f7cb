package document

import (
	"context"
	"os"
	"strings"
	"testing"

	"meeting-capture-service/internal/transcript"
)

func TestMarkdownRenderer_Render(t *testing.T) {
	r, err := NewMarkdownRenderer(t.TempDir())
	if err != nil {
		t.Fatalf("NewMarkdownRenderer failed: %v", err)
	}

	segments := []transcript.Segment{
		{ID: "1", Text: "Hello everyone", Speaker: "A", Final: true},
		{ID: "2", Text: "Hi there", Speaker: "B", Final: true},
		{ID: "3", Text: "", Final: true}, // empty segments are skipped
		{ID: "4", Text: "No speaker label", Final: true},
	}

	path, err := r.Render(context.Background(), "sess-1", segments)
	if err != nil {
		t.Fatalf("Render failed: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("document not written: %v", err)
	}
	doc := string(data)

	if !strings.Contains(doc, "Session: sess-1") {
		t.Error("document missing session id")
	}
	if !strings.Contains(doc, "**A:** Hello everyone") {
		t.Error("speaker-labeled segment not rendered")
	}
	if !strings.Contains(doc, "**B:** Hi there") {
		t.Error("second speaker not rendered")
	}
	if !strings.Contains(doc, "No speaker label") {
		t.Error("unlabeled segment not rendered")
	}

	// Segments render in transcript order.
	if strings.Index(doc, "Hello everyone") > strings.Index(doc, "Hi there") {
		t.Error("segments rendered out of order")
	}
}

func TestMarkdownRenderer_CancelledContext(t *testing.T) {
	r, err := NewMarkdownRenderer(t.TempDir())
	if err != nil {
		t.Fatalf("NewMarkdownRenderer failed: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := r.Render(ctx, "sess-1", nil); err == nil {
		t.Error("expected error for cancelled context")
	}
}
