// Package metrics exposes the transport engine's counters to Prometheus.
// The collector reads a stats snapshot at scrape time instead of maintaining
// parallel counters, so the scraped values can never drift from what the
// engine reports.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/zsiec/beam/stream"
)

// Compile-time interface check.
var _ prometheus.Collector = (*Collector)(nil)

// StatsSource is the engine surface the collector scrapes.
type StatsSource interface {
	Stats() stream.Stats
}

// Collector implements prometheus.Collector over a StatsSource.
//
// Counter-typed metrics reset when a new streaming session starts, matching
// the engine's per-session counters; rate() handles the reset as usual.
type Collector struct {
	source StatsSource

	framesSent    *prometheus.Desc
	keyframesSent *prometheus.Desc
	bytesSent     *prometheus.Desc
	framesDropped *prometheus.Desc
	pendingFrames *prometheus.Desc
	targetBitrate *prometheus.Desc
	streaming     *prometheus.Desc
}

// NewCollector creates a Collector. Register it with a prometheus.Registerer
// to expose the metrics.
func NewCollector(source StatsSource) *Collector {
	return &Collector{
		source: source,
		framesSent: prometheus.NewDesc(
			"beam_frames_sent_total",
			"Frames transmitted on the device link this session",
			nil, nil,
		),
		keyframesSent: prometheus.NewDesc(
			"beam_keyframes_sent_total",
			"Keyframes transmitted on the device link this session",
			nil, nil,
		),
		bytesSent: prometheus.NewDesc(
			"beam_bytes_sent_total",
			"Payload bytes transmitted on the device link this session",
			nil, nil,
		),
		framesDropped: prometheus.NewDesc(
			"beam_frames_dropped_total",
			"Frames dropped by backpressure or send failure this session",
			nil, nil,
		),
		pendingFrames: prometheus.NewDesc(
			"beam_pending_frames",
			"Frames currently queued for transmission",
			nil, nil,
		),
		targetBitrate: prometheus.NewDesc(
			"beam_target_bitrate_kbps",
			"Current encoder bitrate hint in kbps",
			nil, nil,
		),
		streaming: prometheus.NewDesc(
			"beam_streaming",
			"1 while a streaming session is active",
			nil, nil,
		),
	}
}

func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.framesSent
	ch <- c.keyframesSent
	ch <- c.bytesSent
	ch <- c.framesDropped
	ch <- c.pendingFrames
	ch <- c.targetBitrate
	ch <- c.streaming
}

func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	s := c.source.Stats()

	ch <- prometheus.MustNewConstMetric(c.framesSent, prometheus.CounterValue, float64(s.TotalFramesSent))
	ch <- prometheus.MustNewConstMetric(c.keyframesSent, prometheus.CounterValue, float64(s.TotalKeyframesSent))
	ch <- prometheus.MustNewConstMetric(c.bytesSent, prometheus.CounterValue, float64(s.TotalBytesSent))
	ch <- prometheus.MustNewConstMetric(c.framesDropped, prometheus.CounterValue, float64(s.FramesDropped))
	ch <- prometheus.MustNewConstMetric(c.pendingFrames, prometheus.GaugeValue, float64(s.PendingFrames))
	ch <- prometheus.MustNewConstMetric(c.targetBitrate, prometheus.GaugeValue, float64(s.TargetBitrateKbps))

	streaming := 0.0
	if s.State == stream.StateStreaming.String() {
		streaming = 1
	}
	ch <- prometheus.MustNewConstMetric(c.streaming, prometheus.GaugeValue, streaming)
}
