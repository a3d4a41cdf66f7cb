// Package transcript assembles streaming transcription events into an
// ordered, display-ready sequence of segments.
package transcript

// Segment is one transcribed utterance unit. Its id is assigned by the
// upstream provider and stable for the segment's lifetime. Text is
// append-only while open; finalization replaces it wholesale, after which it
// is immutable except for the speaker label.
type Segment struct {
	ID      string   `json:"id"`
	Text    string   `json:"text"`
	Start   *float64 `json:"start,omitempty"`
	End     *float64 `json:"end,omitempty"`
	Speaker string   `json:"speaker,omitempty"`
	Final   bool     `json:"isFinal"`
}

// EventKind discriminates assembler events.
type EventKind int

const (
	// EventStarted opens a new segment.
	EventStarted EventKind = iota
	// EventDelta appends a text fragment to an open segment.
	EventDelta
	// EventCompleted finalizes a segment with its authoritative text.
	EventCompleted
	// EventSpeaker assigns a speaker label, valid at any time.
	EventSpeaker
)

// String returns the string representation of the kind.
func (k EventKind) String() string {
	switch k {
	case EventStarted:
		return "started"
	case EventDelta:
		return "delta"
	case EventCompleted:
		return "completed"
	case EventSpeaker:
		return "speaker"
	default:
		return "unknown"
	}
}

// Event is one assembler input. Text carries the delta fragment, the final
// transcript, or the speaker label depending on Kind.
type Event struct {
	Kind  EventKind
	ID    string
	Text  string
	Start *float64
	End   *float64
}
