// Package protocol defines the JSON wire messages exchanged between the
// capture client, the relay and the upstream transcription provider.
package protocol

import "encoding/json"

// Message type tags as they appear on the wire.
const (
	TypePing        = "ping"
	TypePong        = "pong"
	TypeClose       = "close"
	TypeAuth        = "auth"
	TypeAuthSuccess = "auth_success"

	TypeItemStarted   = "transcription.item.started"
	TypeItemDelta     = "transcription.item.delta"
	TypeItemCompleted = "transcription.item.completed"
)

// Ping is the application-level keep-alive. No pong is required to keep the
// connection open.
type Ping struct {
	Type string `json:"type"`
}

// Auth carries the provider credential. It is injected by the relay and must
// never appear on the downstream side.
type Auth struct {
	Type  string `json:"type"`
	Token string `json:"token"`
}

// ItemStarted announces a new transcription segment.
type ItemStarted struct {
	Type      string   `json:"type"`
	ItemID    string   `json:"item_id"`
	StartTime *float64 `json:"start_time,omitempty"`
	EndTime   *float64 `json:"end_time,omitempty"`
}

// ItemDelta carries an incremental text fragment for an open segment.
type ItemDelta struct {
	Type   string `json:"type"`
	ItemID string `json:"item_id"`
	Delta  string `json:"delta"`
}

// ItemCompleted finalizes a segment with its authoritative transcript.
type ItemCompleted struct {
	Type       string `json:"type"`
	ItemID     string `json:"item_id"`
	Transcript string `json:"transcript"`
}

// RelayError is the single error frame the relay emits downstream before
// closing on a failure path.
type RelayError struct {
	Error string `json:"error"`
}

// envelope is the minimal shape inspected during the tagged decode attempt.
type envelope struct {
	Type string `json:"type"`
}

// Decode attempts a tagged decode of a text frame. The second return value is
// false when the payload is not one of the known message shapes; callers must
// then fall back to treating the bytes as opaque and forward them unmodified.
func Decode(data []byte) (any, bool) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, false
	}

	switch env.Type {
	case TypePing, TypePong, TypeClose, TypeAuthSuccess:
		return Ping{Type: env.Type}, true
	case TypeAuth:
		var m Auth
		if err := json.Unmarshal(data, &m); err != nil {
			return nil, false
		}
		return m, true
	case TypeItemStarted:
		var m ItemStarted
		if err := json.Unmarshal(data, &m); err != nil {
			return nil, false
		}
		return m, true
	case TypeItemDelta:
		var m ItemDelta
		if err := json.Unmarshal(data, &m); err != nil {
			return nil, false
		}
		return m, true
	case TypeItemCompleted:
		var m ItemCompleted
		if err := json.Unmarshal(data, &m); err != nil {
			return nil, false
		}
		return m, true
	default:
		return nil, false
	}
}

// IsAuthSuccess reports whether a frame is the provider's authentication
// success marker. Anything that does not parse as JSON is not a marker.
func IsAuthSuccess(data []byte) bool {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return false
	}
	return env.Type == TypeAuthSuccess
}

// EncodeError builds the relay's downstream error frame.
func EncodeError(msg string) []byte {
	b, _ := json.Marshal(RelayError{Error: msg})
	return b
}

// EncodePing builds a keep-alive frame.
func EncodePing() []byte {
	b, _ := json.Marshal(Ping{Type: TypePing})
	return b
}

// EncodeClose builds the best-effort close notification sent before a
// graceful disconnect.
func EncodeClose() []byte {
	b, _ := json.Marshal(Ping{Type: TypeClose})
	return b
}

// EncodeAuth builds the credential-injection frame sent to the provider.
func EncodeAuth(token string) []byte {
	b, _ := json.Marshal(Auth{Type: TypeAuth, Token: token})
	return b
}
