// Package encoder provides a synthetic H.264-shaped frame source for local
// bring-up and load testing. It paces key and delta frames at a constant
// rate with sizes matching the engine's current target bitrate, standing in
// for a hardware encoder when no camera is attached.
package encoder

import (
	"context"
	"log/slog"
	"time"

	"github.com/zsiec/beam/media"
	"github.com/zsiec/beam/stream"
)

// Keyframes carry the bulk of a GOP's bits; deltas are comparatively small.
// The split below approximates a typical camera encode at moderate motion.
const (
	keyframeShare = 6 // keyframe is ~6x a delta frame

	minFrameBytes = 64
)

// Placeholder parameter sets: a plausible SPS/PPS pair for a 1080p baseline
// stream. Receivers treat these as opaque configuration bytes.
var (
	syntheticSPS = []byte{
		0x67, 0x42, 0xc0, 0x28, 0xda, 0x01, 0xe0, 0x08,
		0x9f, 0x96, 0x10, 0x00, 0x00, 0x03, 0x00, 0x10,
		0x00, 0x00, 0x03, 0x03, 0xc0, 0xf1, 0x62, 0xee,
	}
	syntheticPPS = []byte{0x68, 0xce, 0x3c, 0x80}
)

// Source generates frames against a stream.Engine.
type Source struct {
	log    *slog.Logger
	engine *stream.Engine
	fps    int
	gop    int
}

// New creates a Source producing fps frames per second with a keyframe
// every gop frames.
func New(engine *stream.Engine, fps, gop int, log *slog.Logger) *Source {
	if log == nil {
		log = slog.Default()
	}
	return &Source{
		log:    log.With("component", "encoder"),
		engine: engine,
		fps:    fps,
		gop:    gop,
	}
}

// Run emits SPS/PPS once, then paces frames until ctx is cancelled. Frame
// sizes track the engine's target bitrate each GOP, mimicking an encoder
// that picks up bitrate reconfiguration at the next keyframe.
func (s *Source) Run(ctx context.Context) error {
	if err := s.engine.SendSPSPPS(syntheticSPS, syntheticPPS); err != nil {
		return err
	}

	interval := time.Second / time.Duration(s.fps)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	keyBytes, deltaBytes := s.frameSizes()
	start := time.Now()
	n := 0

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			kind := media.DeltaFrame
			size := deltaBytes
			if n%s.gop == 0 {
				kind = media.KeyFrame
				size = keyBytes
				keyBytes, deltaBytes = s.frameSizes()
			}

			ts := time.Since(start).Microseconds()
			if err := s.engine.SendFrame(s.payload(size, kind, n), kind, ts); err != nil {
				s.log.Warn("frame rejected", "error", err)
			}
			n++
		}
	}
}

// frameSizes splits the target bitrate across one second of frames,
// weighting keyframes over deltas.
func (s *Source) frameSizes() (keyBytes, deltaBytes int) {
	bytesPerSecond := s.engine.TargetBitrate() * 1000 / 8

	// One keyframe weighing keyframeShare deltas, plus fps-1 deltas.
	weight := keyframeShare + (s.fps - 1)
	deltaBytes = bytesPerSecond / weight
	if deltaBytes < minFrameBytes {
		deltaBytes = minFrameBytes
	}
	keyBytes = deltaBytes * keyframeShare
	return keyBytes, deltaBytes
}

// payload fabricates a recognizable frame body: a NAL-like first byte and a
// repeating filler pattern carrying the frame index.
func (s *Source) payload(size int, kind media.FrameKind, n int) []byte {
	buf := make([]byte, size)
	if kind == media.KeyFrame {
		buf[0] = 0x65
	} else {
		buf[0] = 0x41
	}
	for i := 1; i < len(buf); i++ {
		buf[i] = byte(n)
	}
	return buf
}
