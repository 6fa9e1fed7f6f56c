// Package stream implements the frame transport and flow-control engine:
// it accepts encoded H.264 access units from a hardware encoder at an
// unpredictable rate, frames them into wire messages, applies backpressure
// by dropping delta frames rather than stalling the encoder, periodically
// re-sends decoder configuration so a recovering receiver can resynchronize,
// and adapts the target bitrate in response to congestion signals.
package stream

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/zsiec/beam/link"
	"github.com/zsiec/beam/media"
)

// Engine tuning constants. These are engine-level behavior, not caller
// configuration, so resync time and drop behavior stay predictable across
// camera and resolution switches.
const (
	// configResendInterval is the number of transmitted frames after which
	// the cached SPS/PPS is re-sent ahead of the next delta frame.
	configResendInterval = 30

	// stopGracePeriod bounds how long Stop blocks waiting for the worker
	// to drain the queue before discarding whatever remains.
	stopGracePeriod = 500 * time.Millisecond

	// DefaultBitrateKbps is the initial encoder bitrate hint.
	DefaultBitrateKbps = 4000

	// MinBitrateKbps is the floor the congestion response never reduces
	// the target below.
	MinBitrateKbps = 500

	// congestionBackoffNum/Den reduce the target bitrate to 3/4 on each
	// detected congestion episode.
	congestionBackoffNum = 3
	congestionBackoffDen = 4
)

// Caller input errors, rejected synchronously at the call site while
// streaming. Lifecycle misuse (sending while not streaming) is a silent
// no-op instead, since producers may race the state machine.
var (
	ErrEmptyPayload     = errors.New("stream: empty frame payload")
	ErrInvalidKind      = errors.New("stream: invalid frame kind")
	ErrInvalidTimestamp = errors.New("stream: negative frame timestamp")
	ErrNoConfig         = errors.New("stream: frame sent before SPS/PPS")
)

// Callbacks carries the optional notification hooks the encoder-side caller
// registers with the engine. Nil fields are skipped. Callbacks are invoked
// from engine goroutines and must not block.
type Callbacks struct {
	OnStreamStarted      func()
	OnStreamStopped      func()
	OnStreamError        func(err error)
	OnBandwidthUpdate    func(kbps int)
	OnCongestionDetected func()
	OnBitrateChange      func(kbps int)
}

// Config holds the parameters for creating an Engine.
type Config struct {
	Link      link.Link
	Callbacks Callbacks
	// InitialBitrateKbps defaults to DefaultBitrateKbps when zero.
	InitialBitrateKbps int
	// QueueCapacity defaults to media.PendingQueueSize when zero.
	QueueCapacity int
	// Log defaults to slog.Default when nil.
	Log *slog.Logger
}

// Engine is the frame transport engine. One background worker per instance
// drains the pending queue sequentially so frame order on the wire is
// preserved; the producer and the bandwidth estimator tick run concurrently
// with it. All shared state is an atomic counter or guarded by a mutex.
type Engine struct {
	log       *slog.Logger
	lnk       link.Link
	callbacks Callbacks
	queue     *pendingQueue

	state atomic.Int32

	// sessionMu guards the per-session fields below across
	// Start/Stop/SendSPSPPS and the worker.
	sessionMu  sync.Mutex
	stopCh     chan struct{}
	stopOnce   *sync.Once
	workerDone chan struct{}
	lastConfig []byte

	configSeen atomic.Bool
	sequence   atomic.Uint64
	// sinceConfigResend counts transmitted frames since the last SPS/PPS
	// send. Both a caller SendSPSPPS and a scheduled resend reset it.
	sinceConfigResend atomic.Int64

	framesSent    atomic.Int64
	keyframesSent atomic.Int64
	bytesSent     atomic.Int64
	framesDropped atomic.Int64

	targetBitrateKbps atomic.Int64
	estimator         *bandwidthEstimator
}

// New creates an Engine in the Idle state.
func New(cfg Config) *Engine {
	log := cfg.Log
	if log == nil {
		log = slog.Default()
	}
	capacity := cfg.QueueCapacity
	if capacity <= 0 {
		capacity = media.PendingQueueSize
	}
	bitrate := cfg.InitialBitrateKbps
	if bitrate <= 0 {
		bitrate = DefaultBitrateKbps
	}

	e := &Engine{
		log:       log.With("component", "stream-engine"),
		lnk:       cfg.Link,
		callbacks: cfg.Callbacks,
		queue:     newPendingQueue(capacity),
	}
	e.targetBitrateKbps.Store(int64(bitrate))
	e.estimator = newBandwidthEstimator(e)
	e.state.Store(int32(StateIdle))
	return e
}

// Start begins a fresh streaming session: statistics, sequence numbers, and
// the config-resend schedule reset to zero, and the sender worker and
// estimator tick are spawned. Valid only from Idle or Stopped.
func (e *Engine) Start() error {
	if !e.transition(StateIdle, StateStarting) && !e.transition(StateStopped, StateStarting) {
		return fmt.Errorf("stream: start from %s state", e.State())
	}

	e.framesSent.Store(0)
	e.keyframesSent.Store(0)
	e.bytesSent.Store(0)
	e.framesDropped.Store(0)
	e.sequence.Store(0)
	e.sinceConfigResend.Store(0)
	e.configSeen.Store(false)
	e.queue.clear()
	e.queue.reopen()
	e.estimator.reset()

	e.sessionMu.Lock()
	e.lastConfig = nil
	e.stopCh = make(chan struct{})
	e.stopOnce = new(sync.Once)
	e.workerDone = make(chan struct{})
	stopCh, stopOnce, done := e.stopCh, e.stopOnce, e.workerDone
	e.sessionMu.Unlock()

	go e.runWorker(stopCh, done)
	go e.estimator.run(stopCh)

	// A concurrent Stop may have raced us into Stopping; in that case the
	// session is already being torn down and the worker must be released.
	if !e.transition(StateStarting, StateStreaming) {
		stopOnce.Do(func() { close(stopCh) })
		return nil
	}

	e.log.Info("stream started", "bitrate_kbps", e.TargetBitrate())
	if cb := e.callbacks.OnStreamStarted; cb != nil {
		cb()
	}
	return nil
}

// Stop ends the session. The worker is given a bounded grace period to
// drain queued frames; whatever remains afterwards is discarded and counted
// as dropped. Stop is a no-op unless the engine is Starting, Streaming, or
// in the Error state, and is safe to call concurrently with in-flight
// SendFrame calls.
func (e *Engine) Stop() error {
	if !e.transition(StateStreaming, StateStopping) &&
		!e.transition(StateStarting, StateStopping) &&
		!e.transition(StateError, StateStopping) {
		return nil
	}

	e.queue.close()

	e.sessionMu.Lock()
	stopCh, stopOnce, done := e.stopCh, e.stopOnce, e.workerDone
	e.sessionMu.Unlock()

	if stopCh != nil {
		stopOnce.Do(func() { close(stopCh) })
	}
	if done != nil {
		select {
		case <-done:
		case <-time.After(stopGracePeriod):
			e.log.Warn("worker did not drain in time, discarding queue")
		}
	}

	if n := e.queue.clear(); n > 0 {
		e.framesDropped.Add(int64(n))
		e.log.Debug("discarded queued frames on stop", "count", n)
	}

	e.state.Store(int32(StateStopped))
	e.log.Info("stream stopped",
		"frames_sent", e.framesSent.Load(),
		"frames_dropped", e.framesDropped.Load(),
		"bytes_sent", e.bytesSent.Load(),
	)
	if cb := e.callbacks.OnStreamStopped; cb != nil {
		cb()
	}
	return nil
}

// SendSPSPPS submits H.264 decoder configuration. The payload (SPS followed
// by PPS) is cached for the periodic durability resend and enqueued at
// keyframe priority: it is never evicted to make room for another frame.
// A no-op outside the Streaming state.
func (e *Engine) SendSPSPPS(sps, pps []byte) error {
	if e.State() != StateStreaming {
		return nil
	}
	if len(sps) == 0 || len(pps) == 0 {
		return fmt.Errorf("%w: sps=%d pps=%d bytes", ErrEmptyPayload, len(sps), len(pps))
	}

	payload := make([]byte, 0, len(sps)+len(pps))
	payload = append(payload, sps...)
	payload = append(payload, pps...)

	e.sessionMu.Lock()
	e.lastConfig = payload
	e.sessionMu.Unlock()
	e.configSeen.Store(true)
	e.sinceConfigResend.Store(0)

	e.enqueue(&media.Frame{
		Payload:         payload,
		Kind:            media.ConfigFrame,
		TimestampMicros: time.Now().UnixMicro(),
	})
	return nil
}

// SendFrame submits one encoded access unit. It never blocks the caller:
// under queue pressure delta frames are dropped silently (counted in
// FramesDropped). Key and delta frames sent before any SPS/PPS are rejected,
// since a fresh decoder cannot use them. A no-op outside Streaming.
func (e *Engine) SendFrame(payload []byte, kind media.FrameKind, timestampMicros int64) error {
	if e.State() != StateStreaming {
		return nil
	}
	if kind != media.KeyFrame && kind != media.DeltaFrame {
		return fmt.Errorf("%w: %s (use SendSPSPPS for configuration)", ErrInvalidKind, kind)
	}
	if len(payload) == 0 {
		return ErrEmptyPayload
	}
	// The wire varints cannot carry a negative value; reject it here instead
	// of letting it reach the sender worker.
	if timestampMicros < 0 {
		return fmt.Errorf("%w: %d", ErrInvalidTimestamp, timestampMicros)
	}
	if !e.configSeen.Load() {
		return fmt.Errorf("%w: %s frame rejected", ErrNoConfig, kind)
	}

	e.enqueue(&media.Frame{
		Payload:         payload,
		Kind:            kind,
		TimestampMicros: timestampMicros,
	})
	return nil
}

// enqueue applies the drop policy and records drop accounting. Backpressure
// drops are expected and non-fatal: they are counted, never surfaced as
// errors, so streaming cannot stall the producer. A push against a closed
// queue lost the race with Stop and is ignored like any other send outside
// the Streaming state.
func (e *Engine) enqueue(frame *media.Frame) {
	evicted, result := e.queue.push(frame)
	if evicted {
		e.framesDropped.Add(1)
	}
	if result == pushRejected {
		e.framesDropped.Add(1)
		e.log.Debug("frame dropped, queue full", "kind", frame.Kind.String())
	}
}

// SetTargetBitrate sets the encoder bitrate hint in kbps. Non-positive
// values are ignored.
func (e *Engine) SetTargetBitrate(kbps int) {
	if kbps <= 0 {
		e.log.Warn("ignoring non-positive bitrate", "kbps", kbps)
		return
	}
	e.targetBitrateKbps.Store(int64(kbps))
	e.log.Info("target bitrate set", "kbps", kbps)
}

// TargetBitrate returns the current encoder bitrate hint in kbps.
func (e *Engine) TargetBitrate() int {
	return int(e.targetBitrateKbps.Load())
}

// NotifyCongestion is the explicit external congestion signal. The next
// estimator tick treats the episode as congested, reducing the target
// bitrate and firing OnCongestionDetected once for the episode.
func (e *Engine) NotifyCongestion() {
	e.estimator.notifyCongestion()
}

// State returns the current lifecycle state.
func (e *Engine) State() State {
	return State(e.state.Load())
}

func (e *Engine) transition(from, to State) bool {
	return e.state.CompareAndSwap(int32(from), int32(to))
}

// Stats returns a point-in-time snapshot of the session counters.
// PendingFrames always matches the queue length at the observation point.
func (e *Engine) Stats() Stats {
	return Stats{
		TotalFramesSent:    e.framesSent.Load(),
		TotalKeyframesSent: e.keyframesSent.Load(),
		TotalBytesSent:     e.bytesSent.Load(),
		FramesDropped:      e.framesDropped.Load(),
		PendingFrames:      e.queue.len(),
		TargetBitrateKbps:  e.TargetBitrate(),
		State:              e.State().String(),
	}
}

// runWorker drains the pending queue in FIFO order and hands each frame to
// the device link. Once the stop channel closes it finishes whatever is
// still queued (the queue is already closed to new frames, and Stop bounds
// the wait) and exits.
func (e *Engine) runWorker(stopCh <-chan struct{}, done chan<- struct{}) {
	defer close(done)

	for {
		frame, ok := e.queue.pop()
		if !ok {
			select {
			case <-stopCh:
				e.drain()
				return
			case <-e.queue.wait():
			}
			continue
		}

		if !e.sendFrame(frame) {
			return
		}

		select {
		case <-stopCh:
			e.drain()
			return
		default:
		}
	}
}

// drain sends every remaining queued frame.
func (e *Engine) drain() {
	for {
		frame, ok := e.queue.pop()
		if !ok {
			return
		}
		if !e.sendFrame(frame) {
			return
		}
	}
}

// sendFrame transmits one frame, injecting a config resend ahead of a delta
// frame when the durability schedule has expired. It returns false when the
// link is permanently closed and the worker must exit.
func (e *Engine) sendFrame(frame *media.Frame) bool {
	if frame.Kind == media.DeltaFrame && e.sinceConfigResend.Load() >= configResendInterval {
		e.sessionMu.Lock()
		config := e.lastConfig
		e.sessionMu.Unlock()
		if config != nil {
			resend := &media.Frame{
				Payload:         config,
				Kind:            media.ConfigFrame,
				TimestampMicros: frame.TimestampMicros,
			}
			e.log.Debug("re-sending SPS/PPS", "frames_since", e.sinceConfigResend.Load())
			if !e.transmit(resend) {
				return false
			}
		}
	}
	return e.transmit(frame)
}

// transmit serializes one frame onto the link and updates the counters.
// Sequence numbers are assigned here, in the single worker goroutine, so
// they are monotonic in wire order. A failed frame is counted as dropped
// and never retried; stale video has no value once late.
func (e *Engine) transmit(frame *media.Frame) bool {
	hdr := link.Header{
		Kind:            frame.Kind,
		TimestampMicros: frame.TimestampMicros,
		Sequence:        e.sequence.Add(1) - 1,
		PayloadSize:     len(frame.Payload),
	}

	start := time.Now()
	err := e.lnk.SendMessage(hdr, frame.Payload)
	e.estimator.recordSendLatency(time.Since(start))

	if err != nil {
		e.framesDropped.Add(1)
		if errors.Is(err, link.ErrLinkClosed) {
			e.fatal(fmt.Errorf("link closed: %w", err))
			return false
		}
		e.log.Warn("frame send failed", "kind", frame.Kind.String(), "seq", hdr.Sequence, "error", err)
		if cb := e.callbacks.OnStreamError; cb != nil {
			cb(err)
		}
		return true
	}

	e.framesSent.Add(1)
	e.bytesSent.Add(frame.Size())
	switch frame.Kind {
	case media.KeyFrame:
		e.keyframesSent.Add(1)
		e.sinceConfigResend.Add(1)
	case media.ConfigFrame:
		e.sinceConfigResend.Store(0)
	default:
		e.sinceConfigResend.Add(1)
	}
	return true
}

// fatal moves the session to the Error state. The caller must Stop and
// Start again explicitly; the engine never reconnects on its own.
func (e *Engine) fatal(err error) {
	if e.transition(StateStreaming, StateError) || e.transition(StateStarting, StateError) {
		e.log.Error("stream failed", "error", err)
		if cb := e.callbacks.OnStreamError; cb != nil {
			cb(err)
		}
	}
}
