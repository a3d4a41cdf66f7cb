package audio

import (
	"context"
	"errors"
)

// Capture setup errors. Neither is retried automatically; the user has to
// fix permissions or plug in a device and try again.
var (
	ErrPermissionDenied  = errors.New("microphone permission denied")
	ErrDeviceUnavailable = errors.New("no audio input device available")
)

// DeviceConfig holds the fixed constraints the engine captures with.
type DeviceConfig struct {
	SampleRate       int
	EchoCancellation bool
	NoiseSuppression bool
	AutoGainControl  bool
}

// DefaultDeviceConfig returns the capture constraints used for meeting audio.
func DefaultDeviceConfig() DeviceConfig {
	return DeviceConfig{
		SampleRate:       16000,
		EchoCancellation: true,
		NoiseSuppression: true,
		AutoGainControl:  true,
	}
}

// SampleStream is a live microphone stream delivering mono float32 chunks.
// Chunk length is driven by the hardware clock and is outside the caller's
// control.
type SampleStream interface {
	// Read blocks until the next chunk is available or the stream ends.
	// Implementations must return promptly when ctx is cancelled, even
	// while blocked waiting for samples.
	Read(ctx context.Context) ([]float32, error)
	Close() error
}

// Device grants exclusive access to an audio input.
type Device interface {
	// Open acquires the input with the given constraints. Returns
	// ErrPermissionDenied or ErrDeviceUnavailable when the host refuses.
	Open(ctx context.Context, cfg DeviceConfig) (SampleStream, error)
}
