// Package monitor layers a read-only performance observer over the
// transport engine's counters. It never feeds back into the engine: it
// samples snapshots on a fixed interval, keeps short sliding windows, and
// classifies stream health for operators and the control API.
package monitor

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/zsiec/beam/stream"
)

// Status classifies stream health from the sliding windows.
type Status string

const (
	// StatusGood: frame rate near target and negligible drops.
	StatusGood Status = "good"
	// StatusDegraded: frame rate lagging or a noticeable drop ratio.
	StatusDegraded Status = "degraded"
	// StatusPoor: under half the target frame rate or heavy dropping.
	StatusPoor Status = "poor"
	// StatusIdle: no active streaming session.
	StatusIdle Status = "idle"
)

const (
	defaultInterval = 250 * time.Millisecond
	windowSpan      = 2 * time.Second

	degradedFPSRatio  = 0.9
	poorFPSRatio      = 0.5
	degradedDropRatio = 0.02
	poorDropRatio     = 0.10
)

// StatsSource is the engine surface the monitor observes.
type StatsSource interface {
	Stats() stream.Stats
}

type sample struct {
	at      time.Time
	frames  int64
	bytes   int64
	dropped int64
}

// Health is a point-in-time classification of the stream, serialized as
// JSON by the control API.
type Health struct {
	Status        Status  `json:"status"`
	FPS           float64 `json:"fps"`
	BitrateKbps   float64 `json:"bitrateKbps"`
	DropRatio     float64 `json:"dropRatio"`
	PendingFrames int     `json:"pendingFrames"`
	TargetFPS     float64 `json:"targetFps"`
}

// Monitor samples a StatsSource periodically and derives rates over a
// 2-second sliding window.
type Monitor struct {
	log       *slog.Logger
	source    StatsSource
	targetFPS float64
	interval  time.Duration

	// mu guards window
	mu     sync.Mutex
	window []sample
}

// New creates a Monitor for source. targetFPS is the frame rate the
// classification measures against.
func New(source StatsSource, targetFPS float64, log *slog.Logger) *Monitor {
	if log == nil {
		log = slog.Default()
	}
	return &Monitor{
		log:       log.With("component", "monitor"),
		source:    source,
		targetFPS: targetFPS,
		interval:  defaultInterval,
	}
}

// Run samples until ctx is cancelled.
func (m *Monitor) Run(ctx context.Context) error {
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			m.sample(time.Now())
		}
	}
}

// sample records one observation and trims the window.
func (m *Monitor) sample(now time.Time) {
	s := m.source.Stats()

	m.mu.Lock()
	defer m.mu.Unlock()

	m.window = append(m.window, sample{
		at:      now,
		frames:  s.TotalFramesSent,
		bytes:   s.TotalBytesSent,
		dropped: s.FramesDropped,
	})
	cutoff := now.Add(-windowSpan)
	i := 0
	for i < len(m.window) && m.window[i].at.Before(cutoff) {
		i++
	}
	m.window = m.window[i:]
}

// Snapshot computes current rates and health classification.
func (m *Monitor) Snapshot() Health {
	s := m.source.Stats()

	h := Health{
		Status:        StatusIdle,
		PendingFrames: s.PendingFrames,
		TargetFPS:     m.targetFPS,
	}
	if s.State != stream.StateStreaming.String() {
		return h
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if len(m.window) < 2 {
		h.Status = StatusGood
		return h
	}

	first, last := m.window[0], m.window[len(m.window)-1]
	dur := last.at.Sub(first.at).Seconds()
	if dur <= 0 {
		h.Status = StatusGood
		return h
	}

	frameDelta := last.frames - first.frames
	dropDelta := last.dropped - first.dropped

	h.FPS = float64(frameDelta) / dur
	h.BitrateKbps = float64(last.bytes-first.bytes) * 8 / dur / 1000
	if attempts := frameDelta + dropDelta; attempts > 0 {
		h.DropRatio = float64(dropDelta) / float64(attempts)
	}
	h.Status = m.classify(h)
	return h
}

func (m *Monitor) classify(h Health) Status {
	switch {
	case h.DropRatio >= poorDropRatio,
		m.targetFPS > 0 && h.FPS < m.targetFPS*poorFPSRatio:
		return StatusPoor
	case h.DropRatio >= degradedDropRatio,
		m.targetFPS > 0 && h.FPS < m.targetFPS*degradedFPSRatio:
		return StatusDegraded
	default:
		return StatusGood
	}
}
