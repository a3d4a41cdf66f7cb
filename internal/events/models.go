package events

// TranscriptPartial is the payload published whenever an open segment grows.
// Text carries the segment's accumulated text, not the individual fragment,
// so consumers can render without replaying history.
type TranscriptPartial struct {
	EventType string `json:"eventType"`
	SessionID string `json:"sessionId"`
	SegmentID string `json:"segmentId"`
	Text      string `json:"text"`
	Timestamp int64  `json:"timestamp"`
}

// TranscriptFinal is the payload published when a segment is finalized with
// its authoritative text.
type TranscriptFinal struct {
	EventType string `json:"eventType"`
	SessionID string `json:"sessionId"`
	SegmentID string `json:"segmentId"`
	Text      string `json:"text"`
	Speaker   string `json:"speaker,omitempty"`
	Timestamp int64  `json:"timestamp"`
}
