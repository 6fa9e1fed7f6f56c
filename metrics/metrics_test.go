package metrics

import (
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/zsiec/beam/stream"
)

type staticSource struct {
	stats stream.Stats
}

func (s *staticSource) Stats() stream.Stats { return s.stats }

func TestCollectorScrape(t *testing.T) {
	t.Parallel()

	src := &staticSource{stats: stream.Stats{
		TotalFramesSent:    120,
		TotalKeyframesSent: 4,
		TotalBytesSent:     2_000_000,
		FramesDropped:      3,
		PendingFrames:      2,
		TargetBitrateKbps:  3000,
		State:              stream.StateStreaming.String(),
	}}

	reg := prometheus.NewRegistry()
	if err := reg.Register(NewCollector(src)); err != nil {
		t.Fatalf("Register: %v", err)
	}

	expected := `
# HELP beam_frames_dropped_total Frames dropped by backpressure or send failure this session
# TYPE beam_frames_dropped_total counter
beam_frames_dropped_total 3
# HELP beam_frames_sent_total Frames transmitted on the device link this session
# TYPE beam_frames_sent_total counter
beam_frames_sent_total 120
# HELP beam_pending_frames Frames currently queued for transmission
# TYPE beam_pending_frames gauge
beam_pending_frames 2
# HELP beam_streaming 1 while a streaming session is active
# TYPE beam_streaming gauge
beam_streaming 1
# HELP beam_target_bitrate_kbps Current encoder bitrate hint in kbps
# TYPE beam_target_bitrate_kbps gauge
beam_target_bitrate_kbps 3000
`
	err := testutil.GatherAndCompare(reg, strings.NewReader(expected),
		"beam_frames_dropped_total",
		"beam_frames_sent_total",
		"beam_pending_frames",
		"beam_streaming",
		"beam_target_bitrate_kbps",
	)
	if err != nil {
		t.Errorf("GatherAndCompare: %v", err)
	}
}

func TestCollectorIdleStreamGauge(t *testing.T) {
	t.Parallel()

	src := &staticSource{stats: stream.Stats{State: "stopped"}}
	reg := prometheus.NewRegistry()
	if err := reg.Register(NewCollector(src)); err != nil {
		t.Fatalf("Register: %v", err)
	}

	expected := `
# HELP beam_streaming 1 while a streaming session is active
# TYPE beam_streaming gauge
beam_streaming 0
`
	if err := testutil.GatherAndCompare(reg, strings.NewReader(expected), "beam_streaming"); err != nil {
		t.Errorf("GatherAndCompare: %v", err)
	}
}
