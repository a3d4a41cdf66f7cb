package transport

import (
	"context"
	"testing"
	"time"
)

func TestFrameQueue_FIFOOrder(t *testing.T) {
	q := newFrameQueue(10)

	q.push(frame{data: []byte("a")})
	q.push(frame{data: []byte("b")})
	q.push(frame{data: []byte("c")})

	ctx := context.Background()
	for _, want := range []string{"a", "b", "c"} {
		f, ok := q.pop(ctx)
		if !ok {
			t.Fatal("expected frame")
		}
		if string(f.data) != want {
			t.Errorf("expected %q, got %q", want, f.data)
		}
	}
}

func TestFrameQueue_DropOldestOnOverflow(t *testing.T) {
	q := newFrameQueue(3)

	q.push(frame{data: []byte("a")})
	q.push(frame{data: []byte("b")})
	q.push(frame{data: []byte("c")})

	// Queue full: the newest message gets in, the oldest is discarded.
	if dropped := q.push(frame{data: []byte("d")}); dropped != 1 {
		t.Errorf("expected 1 drop, got %d", dropped)
	}

	ctx := context.Background()
	for _, want := range []string{"b", "c", "d"} {
		f, _ := q.pop(ctx)
		if string(f.data) != want {
			t.Errorf("expected %q, got %q", want, f.data)
		}
	}

	if q.droppedCount() != 1 {
		t.Errorf("expected dropped count 1, got %d", q.droppedCount())
	}
}

func TestFrameQueue_PushFrontKeepsOrder(t *testing.T) {
	q := newFrameQueue(10)

	// "a" was popped for sending but the write failed; frames "b" and "c"
	// were enqueued meanwhile. Reinserting "a" at the head preserves the
	// original send order.
	q.push(frame{data: []byte("b")})
	q.push(frame{data: []byte("c")})
	if dropped := q.pushFront(frame{data: []byte("a")}); dropped != 0 {
		t.Errorf("expected no drop, got %d", dropped)
	}

	ctx := context.Background()
	for _, want := range []string{"a", "b", "c"} {
		f, ok := q.pop(ctx)
		if !ok {
			t.Fatal("expected frame")
		}
		if string(f.data) != want {
			t.Errorf("expected %q, got %q", want, f.data)
		}
	}
}

func TestFrameQueue_PushFrontOnFullDropsReinserted(t *testing.T) {
	q := newFrameQueue(2)

	q.push(frame{data: []byte("b")})
	q.push(frame{data: []byte("c")})

	// The reinserted frame is the oldest one, so drop-oldest discards it.
	if dropped := q.pushFront(frame{data: []byte("a")}); dropped != 1 {
		t.Errorf("expected 1 drop, got %d", dropped)
	}

	ctx := context.Background()
	for _, want := range []string{"b", "c"} {
		f, _ := q.pop(ctx)
		if string(f.data) != want {
			t.Errorf("expected %q, got %q", want, f.data)
		}
	}
	if q.droppedCount() != 1 {
		t.Errorf("expected dropped count 1, got %d", q.droppedCount())
	}
}

func TestFrameQueue_PushFrontAfterClose(t *testing.T) {
	q := newFrameQueue(3)
	q.close()

	if dropped := q.pushFront(frame{data: []byte("a")}); dropped != -1 {
		t.Errorf("expected -1 for closed queue, got %d", dropped)
	}
}

func TestFrameQueue_PushAfterClose(t *testing.T) {
	q := newFrameQueue(3)
	q.close()

	if dropped := q.push(frame{data: []byte("a")}); dropped != -1 {
		t.Errorf("expected -1 for closed queue, got %d", dropped)
	}
}

func TestFrameQueue_CloseUnblocksPop(t *testing.T) {
	q := newFrameQueue(3)

	done := make(chan bool)
	go func() {
		_, ok := q.pop(context.Background())
		done <- ok
	}()

	time.Sleep(10 * time.Millisecond)
	q.close()

	select {
	case ok := <-done:
		if ok {
			t.Error("expected pop to report closed")
		}
	case <-time.After(time.Second):
		t.Fatal("pop did not unblock on close")
	}
}

func TestFrameQueue_ContextCancelUnblocksPop(t *testing.T) {
	q := newFrameQueue(3)
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan bool)
	go func() {
		_, ok := q.pop(ctx)
		done <- ok
	}()

	time.Sleep(10 * time.Millisecond)
	cancel()

	select {
	case ok := <-done:
		if ok {
			t.Error("expected pop to report cancellation")
		}
	case <-time.After(time.Second):
		t.Fatal("pop did not unblock on cancel")
	}
}

func TestFrameQueue_DrainAfterClose(t *testing.T) {
	q := newFrameQueue(3)
	q.push(frame{data: []byte("a")})
	q.close()

	// Buffered frames remain poppable after close.
	f, ok := q.pop(context.Background())
	if !ok || string(f.data) != "a" {
		t.Errorf("expected buffered frame after close, got ok=%v data=%q", ok, f.data)
	}
	if _, ok := q.pop(context.Background()); ok {
		t.Error("expected queue exhausted")
	}
}
