package audio

import (
	"math"
	"testing"
)

func TestEncoder_EmitsOnlyFullFrames(t *testing.T) {
	var frames [][]byte
	enc := NewEncoder(4, func(f []byte) { frames = append(frames, f) })

	enc.Write([]float32{0.1, 0.2})
	if len(frames) != 0 {
		t.Fatalf("expected no frame before buffer fills, got %d", len(frames))
	}

	enc.Write([]float32{0.3, 0.4})
	if len(frames) != 1 {
		t.Fatalf("expected exactly one frame, got %d", len(frames))
	}
	if len(frames[0]) != 8 {
		t.Errorf("expected 8 bytes (4 samples x int16), got %d", len(frames[0]))
	}
	if enc.Pending() != 0 {
		t.Errorf("expected empty buffer after emit, got %d pending", enc.Pending())
	}
}

func TestEncoder_ChunkLongerThanFrame(t *testing.T) {
	var frames [][]byte
	enc := NewEncoder(4, func(f []byte) { frames = append(frames, f) })

	// 10 samples through a 4-sample frame: two frames out, two samples left.
	enc.Write(make([]float32, 10))

	if len(frames) != 2 {
		t.Errorf("expected 2 frames, got %d", len(frames))
	}
	if enc.Pending() != 2 {
		t.Errorf("expected 2 pending tail samples, got %d", enc.Pending())
	}
}

func TestEncoder_PartialTailDropped(t *testing.T) {
	var frames [][]byte
	enc := NewEncoder(4, func(f []byte) { frames = append(frames, f) })

	enc.Write([]float32{0.5, 0.5, 0.5})

	// Stream ends here; the three buffered samples are never emitted.
	if len(frames) != 0 {
		t.Errorf("expected partial tail not emitted, got %d frames", len(frames))
	}
	if enc.Pending() != 3 {
		t.Errorf("expected 3 pending samples, got %d", enc.Pending())
	}
}

func TestEncoder_RoundTripWithinQuantizationStep(t *testing.T) {
	in := []float32{0, 0.5, -0.5, 0.25, -0.25, 0.999, -0.999, 1.0}

	var frame []byte
	enc := NewEncoder(len(in), func(f []byte) { frame = f })
	enc.Write(in)

	if frame == nil {
		t.Fatal("expected a frame")
	}

	out := DecodeFrame(frame)
	const step = 1.0 / 32767.0
	for i, want := range in {
		if diff := math.Abs(float64(out[i] - want)); diff > step {
			t.Errorf("sample %d: got %f, want %f (diff %f > %f)", i, out[i], want, diff, step)
		}
	}
}

func TestEncoder_SaturatesOutOfRangeInput(t *testing.T) {
	in := []float32{2.0, -3.5, 100, -100}

	var frame []byte
	enc := NewEncoder(len(in), func(f []byte) { frame = f })
	enc.Write(in)

	out := DecodeFrame(frame)
	for i, s := range in {
		want := float32(1)
		if s < 0 {
			want = -1
		}
		if out[i] != want {
			t.Errorf("sample %d: expected saturation to %f, got %f", i, want, out[i])
		}
	}
}

func TestNewEncoder_DefaultFrameSize(t *testing.T) {
	enc := NewEncoder(0, func([]byte) {})
	if enc.FrameSize() != DefaultFrameSize {
		t.Errorf("expected default frame size %d, got %d", DefaultFrameSize, enc.FrameSize())
	}
}
