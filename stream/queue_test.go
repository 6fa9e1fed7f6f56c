package stream

import (
	"testing"

	"github.com/zsiec/beam/media"
)

func delta(seq byte) *media.Frame {
	return &media.Frame{Payload: []byte{seq}, Kind: media.DeltaFrame}
}

func key(seq byte) *media.Frame {
	return &media.Frame{Payload: []byte{seq}, Kind: media.KeyFrame}
}

func TestQueueFIFO(t *testing.T) {
	t.Parallel()

	q := newPendingQueue(4)
	for i := byte(0); i < 3; i++ {
		if _, result := q.push(delta(i)); result != pushAccepted {
			t.Fatalf("push %d rejected", i)
		}
	}

	for i := byte(0); i < 3; i++ {
		f, ok := q.pop()
		if !ok {
			t.Fatalf("pop %d: empty", i)
		}
		if f.Payload[0] != i {
			t.Errorf("pop %d: got frame %d", i, f.Payload[0])
		}
	}
	if _, ok := q.pop(); ok {
		t.Error("pop on empty queue returned a frame")
	}
}

func TestQueueEvictsOldestDeltaForKeyframe(t *testing.T) {
	t.Parallel()

	q := newPendingQueue(3)
	q.push(delta(0))
	q.push(delta(1))
	q.push(delta(2))

	evicted, result := q.push(key(3))
	if result != pushAccepted || !evicted {
		t.Fatalf("keyframe on full queue: evicted=%v result=%v", evicted, result)
	}

	// Oldest delta (0) gone, order otherwise preserved.
	want := []byte{1, 2, 3}
	for i, w := range want {
		f, ok := q.pop()
		if !ok || f.Payload[0] != w {
			t.Fatalf("pop %d: got %v ok=%v, want %d", i, f, ok, w)
		}
	}
}

func TestQueueEvictsOldestDeltaForDelta(t *testing.T) {
	t.Parallel()

	q := newPendingQueue(2)
	q.push(delta(0))
	q.push(delta(1))

	evicted, result := q.push(delta(2))
	if result != pushAccepted || !evicted {
		t.Fatalf("delta on full queue: evicted=%v result=%v", evicted, result)
	}
	f, _ := q.pop()
	if f.Payload[0] != 1 {
		t.Errorf("head after eviction: got %d, want 1", f.Payload[0])
	}
}

func TestQueueDegenerateFullOfKeyframes(t *testing.T) {
	t.Parallel()

	q := newPendingQueue(2)
	q.push(key(0))
	q.push(key(1))

	if _, result := q.push(delta(2)); result != pushRejected {
		t.Error("delta accepted into full all-keyframe queue")
	}
	if _, result := q.push(key(3)); result != pushRejected {
		t.Error("keyframe accepted into full all-keyframe queue")
	}
	if q.len() != 2 {
		t.Errorf("len: got %d, want 2", q.len())
	}
}

func TestQueueClosedRejectsSilently(t *testing.T) {
	t.Parallel()

	q := newPendingQueue(4)
	q.push(delta(0))
	q.close()

	if _, result := q.push(delta(1)); result != pushClosed {
		t.Errorf("push on closed queue: got %v, want pushClosed", result)
	}
	// Draining a closed queue still works.
	if _, ok := q.pop(); !ok {
		t.Error("pop on closed queue failed")
	}

	q.reopen()
	if _, result := q.push(delta(2)); result != pushAccepted {
		t.Error("push after reopen rejected")
	}
}

func TestQueueClear(t *testing.T) {
	t.Parallel()

	q := newPendingQueue(4)
	q.push(delta(0))
	q.push(delta(1))

	if n := q.clear(); n != 2 {
		t.Errorf("clear: got %d, want 2", n)
	}
	if q.len() != 0 {
		t.Errorf("len after clear: got %d, want 0", q.len())
	}
	if _, result := q.push(delta(2)); result != pushAccepted {
		t.Error("push after clear rejected")
	}
}
