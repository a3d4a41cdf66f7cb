package diarize

import "context"

// DefaultGapThreshold is the silence length that suggests a speaker change.
const DefaultGapThreshold = 2.0

var rotation = []string{"A", "B", "C"}

// GapDiarizer is a timing heuristic: a silence longer than the threshold
// between consecutive turns rotates to the next speaker label (A, B, C, then
// back to A). Turns without timestamps inherit the current speaker. It is a
// deliberately cheap stand-in for acoustic diarization and accurate mostly
// for two-party calls with clean turn-taking.
type GapDiarizer struct {
	// Threshold in seconds; zero means DefaultGapThreshold.
	Threshold float64
}

// Diarize labels every turn. Never returns an error.
func (g GapDiarizer) Diarize(_ context.Context, turns []Turn) ([]Assignment, error) {
	threshold := g.Threshold
	if threshold <= 0 {
		threshold = DefaultGapThreshold
	}

	out := make([]Assignment, 0, len(turns))
	speaker := 0
	var prevEnd *float64
	for _, t := range turns {
		if prevEnd != nil && t.Start != nil && *t.Start-*prevEnd > threshold {
			speaker = (speaker + 1) % len(rotation)
		}
		out = append(out, Assignment{ID: t.ID, Speaker: rotation[speaker]})
		if t.End != nil {
			prevEnd = t.End
		}
	}
	return out, nil
}
