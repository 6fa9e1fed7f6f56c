package stream

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/zsiec/beam/media"
)

// Stats is a point-in-time snapshot of one streaming session, serialized as
// JSON by the control API. All counters are monotonically non-decreasing for
// the lifetime of a session and reset to zero on Start.
type Stats struct {
	TotalFramesSent    int64  `json:"totalFramesSent"`
	TotalKeyframesSent int64  `json:"totalKeyframesSent"`
	TotalBytesSent     int64  `json:"totalBytesSent"`
	FramesDropped      int64  `json:"framesDropped"`
	PendingFrames      int    `json:"pendingFrames"`
	TargetBitrateKbps  int    `json:"targetBitrateKbps"`
	State              string `json:"state"`
}

// Estimator tuning. The congestion trigger heuristics are deliberately
// conservative: the latched episode state keeps OnCongestionDetected from
// firing once per tick during a sustained stall.
const (
	estimatorInterval = time.Second

	// sendLatencyBound is the smoothed per-frame link write latency above
	// which the path is considered congested.
	sendLatencyBound = 100 * time.Millisecond

	// dropBurstThreshold is the number of frames dropped within one tick
	// that counts as congestion on its own.
	dropBurstThreshold = media.PendingQueueSize

	// clearTicks is how many consecutive calm ticks end a congestion episode.
	clearTicks = 2
)

// bandwidthEstimator computes outbound bandwidth once per tick from the
// engine's byte counter and watches for congestion: a send-latency average
// over the bound, a burst of drops, or the explicit external signal. On the
// first congested tick of an episode it fires OnCongestionDetected exactly
// once and applies the bitrate backoff.
type bandwidthEstimator struct {
	engine *Engine

	// latencyMicros is a smoothed link write latency, written only by the
	// sender worker and read by the tick loop.
	latencyMicros atomic.Int64

	externalSignal atomic.Bool

	// mu guards the per-tick deltas and episode latch, touched only by the
	// tick loop and reset.
	mu        sync.Mutex
	lastBytes int64
	lastDrops int64
	lastTick  time.Time
	inEpisode bool
	calm      int
}

func newBandwidthEstimator(engine *Engine) *bandwidthEstimator {
	return &bandwidthEstimator{engine: engine}
}

// reset clears per-session estimator state. Called from Start before the
// tick loop is spawned.
func (b *bandwidthEstimator) reset() {
	b.latencyMicros.Store(0)
	b.externalSignal.Store(false)
	b.mu.Lock()
	b.lastBytes = 0
	b.lastDrops = 0
	b.lastTick = time.Now()
	b.inEpisode = false
	b.calm = 0
	b.mu.Unlock()
}

// recordSendLatency folds one link write duration into the smoothed latency.
// Single writer (the sender worker), so a plain load/store pair suffices.
func (b *bandwidthEstimator) recordSendLatency(d time.Duration) {
	prev := b.latencyMicros.Load()
	b.latencyMicros.Store((prev*3 + d.Microseconds()) / 4)
}

// notifyCongestion arms the external congestion signal for the next tick.
func (b *bandwidthEstimator) notifyCongestion() {
	b.externalSignal.Store(true)
}

// run executes the periodic tick until the session's stop channel closes.
func (b *bandwidthEstimator) run(stopCh <-chan struct{}) {
	ticker := time.NewTicker(estimatorInterval)
	defer ticker.Stop()

	for {
		select {
		case <-stopCh:
			return
		case <-ticker.C:
			b.tick()
		}
	}
}

func (b *bandwidthEstimator) tick() {
	e := b.engine
	now := time.Now()
	bytes := e.bytesSent.Load()
	drops := e.framesDropped.Load()

	b.mu.Lock()
	elapsedMs := now.Sub(b.lastTick).Milliseconds()
	byteDelta := bytes - b.lastBytes
	dropDelta := drops - b.lastDrops
	b.lastBytes = bytes
	b.lastDrops = drops
	b.lastTick = now
	b.mu.Unlock()

	if elapsedMs <= 0 {
		return
	}

	kbps := int(byteDelta * 8 / elapsedMs)
	if cb := e.callbacks.OnBandwidthUpdate; cb != nil {
		cb(kbps)
	}

	congested := b.externalSignal.Swap(false) ||
		time.Duration(b.latencyMicros.Load())*time.Microsecond > sendLatencyBound ||
		dropDelta >= dropBurstThreshold

	b.mu.Lock()
	fire := false
	if congested {
		b.calm = 0
		if !b.inEpisode {
			b.inEpisode = true
			fire = true
		}
	} else if b.inEpisode {
		b.calm++
		if b.calm >= clearTicks {
			b.inEpisode = false
			b.calm = 0
		}
	}
	b.mu.Unlock()

	if fire {
		e.log.Info("congestion detected",
			"kbps", kbps,
			"drops_last_tick", dropDelta,
			"send_latency_ms", time.Duration(b.latencyMicros.Load())*time.Microsecond/time.Millisecond,
		)
		e.reduceBitrate()
		if cb := e.callbacks.OnCongestionDetected; cb != nil {
			cb()
		}
	}
}

// reduceBitrate applies the congestion response: the target drops to 3/4
// with a floor, and the new target is reported so the external encoder can
// reconfigure. The engine never recovers bitrate upward on its own; ramping
// back up is an explicit caller decision.
func (e *Engine) reduceBitrate() {
	for {
		cur := e.targetBitrateKbps.Load()
		next := cur * congestionBackoffNum / congestionBackoffDen
		if next < MinBitrateKbps {
			next = MinBitrateKbps
		}
		if next == cur {
			return
		}
		if e.targetBitrateKbps.CompareAndSwap(cur, next) {
			e.log.Info("bitrate reduced", "from_kbps", cur, "to_kbps", next)
			if cb := e.callbacks.OnBitrateChange; cb != nil {
				cb(int(next))
			}
			return
		}
	}
}
