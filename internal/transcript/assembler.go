package transcript

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"meeting-capture-service/internal/events"
	"meeting-capture-service/internal/observability/logging"
	"meeting-capture-service/internal/observability/metrics"
	"meeting-capture-service/internal/protocol"
)

// ErrDuplicateID means a start event arrived for an id that is already
// final. Logged and absorbed, never fatal: streaming protocols are expected
// to occasionally redeliver.
var ErrDuplicateID = errors.New("duplicate segment id")

// Assembler is the per-session transcript state machine. Segment insertion
// order equals arrival order of started events, not temporal order. Events
// for one session are applied strictly in arrival order; the internal lock
// serializes the network event loop against the asynchronous
// speaker-labeling pass and renderer reads.
type Assembler struct {
	mu        sync.Mutex
	sessionID string
	order     []string
	segments  map[string]*Segment
	publisher *events.Publisher
	metrics   *metrics.Metrics
	log       zerolog.Logger
}

// Option configures an Assembler.
type Option func(*Assembler)

// WithPublisher mirrors applied partial/final transcript events onto the
// Kafka publisher.
func WithPublisher(p *events.Publisher) Option {
	return func(a *Assembler) { a.publisher = p }
}

// New creates an empty assembler for a session.
func New(sessionID string, opts ...Option) *Assembler {
	a := &Assembler{
		sessionID: sessionID,
		segments:  make(map[string]*Segment),
		metrics:   metrics.DefaultMetrics,
		log:       logging.WithSession(sessionID).With().Str("component", "assembler").Logger(),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Run consumes events until the channel closes or ctx is done. This is the
// single consumer for a session's transcript.
func (a *Assembler) Run(ctx context.Context, ch <-chan Event) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-ch:
			if !ok {
				return
			}
			a.Apply(ev)
		}
	}
}

// Apply dispatches one event. Anomalies are logged and absorbed so the
// transcript stays usable under partial data loss.
func (a *Assembler) Apply(ev Event) {
	var err error
	switch ev.Kind {
	case EventStarted:
		err = a.ApplyStarted(ev.ID, ev.Start, ev.End)
	case EventDelta:
		err = a.ApplyDelta(ev.ID, ev.Text)
	case EventCompleted:
		err = a.ApplyCompleted(ev.ID, ev.Text)
	case EventSpeaker:
		a.ApplySpeaker(ev.ID, ev.Text)
	}
	if err != nil {
		a.log.Warn().Err(err).
			Str("segmentId", ev.ID).
			Str("event", ev.Kind.String()).
			Msg("Transcript event absorbed")
	}
}

// ApplyStarted creates a new open segment with empty text. A started event
// for an id that is still open is a benign no-op (reconnection legitimately
// resends start events); an id that is already final is ErrDuplicateID.
func (a *Assembler) ApplyStarted(id string, start, end *float64) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if existing, ok := a.segments[id]; ok {
		if existing.Final {
			a.metrics.RecordEventAbsorbed("duplicate_final_start")
			return ErrDuplicateID
		}
		// Open duplicate: reconnect resent the start. Keep what we have.
		return nil
	}

	a.segments[id] = &Segment{ID: id, Start: start, End: end}
	a.order = append(a.order, id)
	a.metrics.RecordSegmentStarted()
	return nil
}

// ApplyDelta appends a fragment to an open segment, exactly as received; the
// assembler never invents separators. Unknown ids and finalized segments are
// warned no-ops — late deltas must never corrupt finalized text.
func (a *Assembler) ApplyDelta(id, fragment string) error {
	a.mu.Lock()
	seg, ok := a.segments[id]
	if !ok {
		a.mu.Unlock()
		a.metrics.RecordEventAbsorbed("delta_unknown_id")
		return errors.New("delta for unknown segment")
	}
	if seg.Final {
		a.mu.Unlock()
		a.metrics.RecordEventAbsorbed("delta_after_final")
		return errors.New("delta after finalization")
	}
	seg.Text += fragment
	text := seg.Text
	a.mu.Unlock()

	a.metrics.RecordDeltaApplied()
	a.publishPartial(id, text)
	return nil
}

// ApplyCompleted replaces the segment's text with the authoritative final
// transcript (replacement, not concatenation) and seals it.
func (a *Assembler) ApplyCompleted(id, finalText string) error {
	a.mu.Lock()
	seg, ok := a.segments[id]
	if !ok {
		a.mu.Unlock()
		a.metrics.RecordEventAbsorbed("completed_unknown_id")
		return errors.New("completion for unknown segment")
	}
	if seg.Final {
		a.mu.Unlock()
		a.metrics.RecordEventAbsorbed("completed_after_final")
		return errors.New("segment already finalized")
	}
	seg.Text = finalText
	seg.Final = true
	a.mu.Unlock()

	a.metrics.RecordSegmentFinalized()
	a.publishFinal(id, finalText)
	return nil
}

// ApplySpeaker sets the speaker label without touching text or finality.
// Valid at any time, including after finalization; unknown ids are ignored,
// not errors (diarization may reference segments lost to reconnects).
func (a *Assembler) ApplySpeaker(id, speaker string) {
	a.mu.Lock()
	seg, ok := a.segments[id]
	if ok {
		seg.Speaker = speaker
	}
	a.mu.Unlock()

	if ok {
		a.metrics.RecordSpeakerAssigned()
	}
}

// FromWire converts a decoded protocol message into an assembler event.
func FromWire(msg any) (Event, bool) {
	switch m := msg.(type) {
	case protocol.ItemStarted:
		return Event{Kind: EventStarted, ID: m.ItemID, Start: m.StartTime, End: m.EndTime}, true
	case protocol.ItemDelta:
		return Event{Kind: EventDelta, ID: m.ItemID, Text: m.Delta}, true
	case protocol.ItemCompleted:
		return Event{Kind: EventCompleted, ID: m.ItemID, Text: m.Transcript}, true
	default:
		return Event{}, false
	}
}

// Snapshot returns a copy of the transcript in segment arrival order.
func (a *Assembler) Snapshot() []Segment {
	a.mu.Lock()
	defer a.mu.Unlock()

	out := make([]Segment, 0, len(a.order))
	for _, id := range a.order {
		out = append(out, *a.segments[id])
	}
	return out
}

// Len returns the number of segments.
func (a *Assembler) Len() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.order)
}

// Reset clears the transcript. Segments are owned by the session and
// destroyed when it returns to idle.
func (a *Assembler) Reset() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.order = nil
	a.segments = make(map[string]*Segment)
}

func (a *Assembler) publishPartial(segmentID, text string) {
	if a.publisher == nil {
		return
	}
	ev := events.TranscriptPartial{
		EventType: "meeting.transcript.partial",
		SessionID: a.sessionID,
		SegmentID: segmentID,
		Text:      text,
		Timestamp: time.Now().UnixMilli(),
	}
	if err := a.publisher.PublishPartial(context.Background(), a.sessionID, ev); err != nil {
		a.log.Error().Err(err).Str("segmentId", segmentID).Msg("Failed to publish partial")
	}
}

func (a *Assembler) publishFinal(segmentID, text string) {
	if a.publisher == nil {
		return
	}
	ev := events.TranscriptFinal{
		EventType: "meeting.transcript.final",
		SessionID: a.sessionID,
		SegmentID: segmentID,
		Text:      text,
		Timestamp: time.Now().UnixMilli(),
	}
	if err := a.publisher.PublishFinal(context.Background(), a.sessionID, ev); err != nil {
		a.log.Error().Err(err).Str("segmentId", segmentID).Msg("Failed to publish final")
	}
}
