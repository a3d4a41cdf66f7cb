package transport

import (
	"context"
	"sync"
)

// frame is one outbound transport message.
type frame struct {
	data []byte
	text bool
}

// frameQueue is the bounded enqueue buffer for messages sent while the
// connection is down or the writer is busy. Overflow policy is
// drop-oldest: the newest message always gets in, the oldest buffered one is
// discarded. Callers observe drops through the push return value.
type frameQueue struct {
	mu      sync.Mutex
	items   []frame
	cap     int
	signal  chan struct{}
	closed  bool
	dropped int
}

func newFrameQueue(capacity int) *frameQueue {
	if capacity <= 0 {
		capacity = 1
	}
	return &frameQueue{
		cap:    capacity,
		signal: make(chan struct{}, 1),
	}
}

// push appends f, dropping the oldest buffered frame when full. Returns the
// number of frames dropped to make room (0 or 1), or -1 if the queue is
// closed.
func (q *frameQueue) push(f frame) int {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return -1
	}

	dropped := 0
	if len(q.items) >= q.cap {
		q.items = q.items[1:]
		q.dropped++
		dropped = 1
	}
	q.items = append(q.items, f)

	select {
	case q.signal <- struct{}{}:
	default:
	}
	return dropped
}

// pushFront reinserts f at the head so a frame taken off the queue but never
// delivered keeps its place ahead of newer frames. When full the reinserted
// frame is the oldest one, so the drop-oldest policy discards f itself.
// Returns the number of frames dropped (0 or 1), or -1 if the queue is closed.
func (q *frameQueue) pushFront(f frame) int {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return -1
	}

	if len(q.items) >= q.cap {
		q.dropped++
		return 1
	}
	q.items = append([]frame{f}, q.items...)

	select {
	case q.signal <- struct{}{}:
	default:
	}
	return 0
}

// pop blocks until a frame is available, the queue closes, or ctx is done.
func (q *frameQueue) pop(ctx context.Context) (frame, bool) {
	for {
		q.mu.Lock()
		if len(q.items) > 0 {
			f := q.items[0]
			q.items = q.items[1:]
			q.mu.Unlock()
			return f, true
		}
		if q.closed {
			q.mu.Unlock()
			return frame{}, false
		}
		q.mu.Unlock()

		select {
		case <-q.signal:
		case <-ctx.Done():
			return frame{}, false
		}
	}
}

func (q *frameQueue) close() {
	q.mu.Lock()
	q.closed = true
	q.mu.Unlock()

	select {
	case q.signal <- struct{}{}:
	default:
	}
}

func (q *frameQueue) len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

func (q *frameQueue) droppedCount() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.dropped
}
