package stream

import (
	"sync"

	"github.com/zsiec/beam/media"
)

// pushResult is the outcome of a push attempt.
type pushResult int

const (
	pushAccepted pushResult = iota
	pushRejected            // full and nothing evictable
	pushClosed              // queue closed by Stop, silently ignored
)

// pendingQueue is the bounded outbound frame queue shared by the producer
// (encoder callback) and the sender worker. Insertion never blocks: when the
// queue is full the drop policy evicts the oldest delta frame, or rejects the
// incoming frame when nothing is evictable. A capacity-1 notify channel wakes
// the worker without requiring it to poll.
type pendingQueue struct {
	mu       sync.Mutex
	frames   []*media.Frame
	capacity int
	closed   bool
	notify   chan struct{}
}

func newPendingQueue(capacity int) *pendingQueue {
	return &pendingQueue{
		frames:   make([]*media.Frame, 0, capacity),
		capacity: capacity,
		notify:   make(chan struct{}, 1),
	}
}

// push applies the drop policy and inserts frame if possible. It returns
// whether an older delta frame was evicted to make room and the outcome for
// frame itself. Config and key frames are only rejected in the degenerate
// case where the full queue holds no evictable delta frame.
func (q *pendingQueue) push(frame *media.Frame) (evicted bool, result pushResult) {
	q.mu.Lock()

	if q.closed {
		q.mu.Unlock()
		return false, pushClosed
	}

	if len(q.frames) >= q.capacity {
		idx := -1
		for i, f := range q.frames {
			if f.IsDroppable() {
				idx = i
				break
			}
		}
		if idx < 0 {
			q.mu.Unlock()
			return false, pushRejected
		}
		q.frames = append(q.frames[:idx], q.frames[idx+1:]...)
		evicted = true
	}

	q.frames = append(q.frames, frame)
	q.mu.Unlock()

	select {
	case q.notify <- struct{}{}:
	default:
	}
	return evicted, pushAccepted
}

// pop removes and returns the oldest frame, or (nil, false) when empty.
func (q *pendingQueue) pop() (*media.Frame, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.frames) == 0 {
		return nil, false
	}
	frame := q.frames[0]
	q.frames[0] = nil
	q.frames = q.frames[1:]
	return frame, true
}

// wait returns the channel the worker blocks on between frames.
func (q *pendingQueue) wait() <-chan struct{} {
	return q.notify
}

// close rejects all future pushes until reopen. Called when Stopping begins
// so producers racing the state machine cannot slip frames past the drain.
func (q *pendingQueue) close() {
	q.mu.Lock()
	q.closed = true
	q.mu.Unlock()
}

// reopen clears the closed flag for a fresh session.
func (q *pendingQueue) reopen() {
	q.mu.Lock()
	q.closed = false
	q.mu.Unlock()
}

// clear discards all queued frames and returns how many were removed.
func (q *pendingQueue) clear() int {
	q.mu.Lock()
	defer q.mu.Unlock()

	n := len(q.frames)
	for i := range q.frames {
		q.frames[i] = nil
	}
	q.frames = q.frames[:0]
	return n
}

func (q *pendingQueue) len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.frames)
}
