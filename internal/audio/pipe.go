package audio

import (
	"context"
	"encoding/binary"
	"io"
	"math"
	"sync"
)

// DefaultPipeChunk is the number of samples delivered per Read.
const DefaultPipeChunk = 1024

// PipeDevice adapts a raw PCM byte stream (mono little-endian float32) into
// a capture Device. The headless client uses it to ingest audio piped from an
// external recorder.
type PipeDevice struct {
	r     io.Reader
	chunk int
}

// NewPipeDevice wraps r. A nil reader yields ErrDeviceUnavailable on Open.
func NewPipeDevice(r io.Reader) *PipeDevice {
	return &PipeDevice{r: r, chunk: DefaultPipeChunk}
}

// Open returns the stream. A PipeDevice supports one open stream; the
// reader is consumed from wherever it currently stands.
func (d *PipeDevice) Open(_ context.Context, _ DeviceConfig) (SampleStream, error) {
	if d.r == nil {
		return nil, ErrDeviceUnavailable
	}
	return &pipeStream{
		r:      d.r,
		chunk:  d.chunk,
		frames: make(chan []float32),
		errs:   make(chan error, 1),
		done:   make(chan struct{}),
	}, nil
}

// pipeStream decouples the blocking byte reads from Read callers: a fill
// goroutine parks in io.ReadFull while Read stays cancellable, so a caller
// waiting out a silent pipe can still honor its context.
type pipeStream struct {
	r     io.Reader
	chunk int

	once   sync.Once
	frames chan []float32
	errs   chan error

	mu     sync.Mutex
	closed bool
	done   chan struct{}
}

// fill reads chunks off the pipe and hands them to Read. A short tail before
// EOF is delivered as a final partial chunk.
func (s *pipeStream) fill() {
	for {
		buf := make([]byte, s.chunk*4)
		n, err := io.ReadFull(s.r, buf)
		n -= n % 4

		if n > 0 {
			samples := make([]float32, n/4)
			for i := range samples {
				bits := binary.LittleEndian.Uint32(buf[i*4:])
				samples[i] = math.Float32frombits(bits)
			}
			select {
			case s.frames <- samples:
			case <-s.done:
				return
			}
		}

		if err != nil {
			if err == io.ErrUnexpectedEOF {
				err = io.EOF
			}
			select {
			case s.errs <- err:
			case <-s.done:
			}
			return
		}
	}
}

// Read delivers up to chunk samples, returning as soon as ctx is cancelled
// even while the underlying reader is blocked mid-read.
func (s *pipeStream) Read(ctx context.Context) ([]float32, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	closed := s.closed
	s.mu.Unlock()
	if closed {
		return nil, io.EOF
	}

	s.once.Do(func() { go s.fill() })

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-s.done:
		return nil, io.EOF
	case samples := <-s.frames:
		return samples, nil
	case err := <-s.errs:
		return nil, err
	}
}

// Close stops the fill goroutine and closes the underlying reader when it
// supports closing, which also unblocks a ReadFull parked on it.
func (s *pipeStream) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	close(s.done)
	if c, ok := s.r.(io.Closer); ok {
		return c.Close()
	}
	return nil
}
