// Package audio provides microphone capture and PCM frame encoding for the
// capture side of the streaming pipeline.
package audio

import "encoding/binary"

// DefaultFrameSize is the number of 16-bit samples per emitted frame.
const DefaultFrameSize = 4096

// Encoder accumulates mono float32 samples into fixed-size frames and emits
// each full frame as little-endian 16-bit PCM. Chunk sizes are driven by the
// capture clock and carry no meaning; frame boundaries carry none either
// beyond the fixed size. A partial frame left at stream end is dropped.
//
// Encoder is not safe for concurrent use; it runs on the single capture pump
// goroutine, mirroring the isolated audio callback it stands in for, and must
// return promptly from Write.
type Encoder struct {
	frameSize int
	buf       []float32
	filled    int
	emit      func(frame []byte)
}

// NewEncoder creates an encoder emitting frames of frameSize samples.
// frameSize <= 0 falls back to DefaultFrameSize.
func NewEncoder(frameSize int, emit func([]byte)) *Encoder {
	if frameSize <= 0 {
		frameSize = DefaultFrameSize
	}
	return &Encoder{
		frameSize: frameSize,
		buf:       make([]float32, frameSize),
		emit:      emit,
	}
}

// FrameSize returns the fixed frame size in samples.
func (e *Encoder) FrameSize() int {
	return e.frameSize
}

// Write accumulates a chunk of samples, emitting a frame every time the
// buffer fills exactly. Chunks may be any length, including longer than one
// frame.
func (e *Encoder) Write(samples []float32) {
	for len(samples) > 0 {
		n := copy(e.buf[e.filled:], samples)
		e.filled += n
		samples = samples[n:]

		if e.filled == e.frameSize {
			e.emit(encodeFrame(e.buf))
			e.filled = 0
		}
	}
}

// Pending returns how many samples are buffered short of a full frame. These
// samples are dropped if the stream ends here.
func (e *Encoder) Pending() int {
	return e.filled
}

// encodeFrame converts float samples in [-1, 1] to little-endian int16,
// saturating out-of-range input.
func encodeFrame(samples []float32) []byte {
	out := make([]byte, len(samples)*2)
	for i, s := range samples {
		if s > 1 {
			s = 1
		} else if s < -1 {
			s = -1
		}
		v := int16(s * 0x7FFF)
		binary.LittleEndian.PutUint16(out[i*2:], uint16(v))
	}
	return out
}

// DecodeFrame converts a little-endian 16-bit PCM frame back to float
// samples. Used by tests and diagnostic tooling.
func DecodeFrame(frame []byte) []float32 {
	out := make([]float32, len(frame)/2)
	for i := range out {
		v := int16(binary.LittleEndian.Uint16(frame[i*2:]))
		out[i] = float32(v) / 0x7FFF
	}
	return out
}
