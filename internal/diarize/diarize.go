// Package diarize assigns speaker labels to finalized transcript turns.
package diarize

import "context"

// Turn is one finalized utterance handed to a diarizer. Timestamps are
// provider-relative seconds and may be absent.
type Turn struct {
	ID    string   `json:"id"`
	Text  string   `json:"text"`
	Start *float64 `json:"start,omitempty"`
	End   *float64 `json:"end,omitempty"`
}

// Assignment labels one turn with a speaker.
type Assignment struct {
	ID      string `json:"id"`
	Speaker string `json:"speaker"`
}

// Diarizer maps a sequence of turns to speaker assignments. Implementations
// must not reorder or drop turns silently; a turn they cannot label is simply
// omitted from the result.
type Diarizer interface {
	Diarize(ctx context.Context, turns []Turn) ([]Assignment, error)
}

// Noop assigns nothing. Used when diarization is disabled.
type Noop struct{}

// Diarize returns an empty assignment list.
func (Noop) Diarize(_ context.Context, _ []Turn) ([]Assignment, error) {
	return nil, nil
}
