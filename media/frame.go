// Package media defines the core frame types that flow through the beam
// transport engine, from the encoder callback through the device link.
package media

// PendingQueueSize bounds the engine's outbound frame queue. Sized for
// roughly one second of frames at typical camera frame rates; when the link
// cannot drain at that rate the drop policy evicts delta frames rather than
// letting the queue grow.
const PendingQueueSize = 12

// FrameKind classifies an encoded access unit. The values double as the wire
// discriminator and must stay stable across releases so a cold-started
// receiver can parse messages from any sender version.
type FrameKind uint8

const (
	// ConfigFrame carries H.264 decoder configuration (SPS+PPS). Exactly one
	// config payload logically precedes the first keyframe of a session.
	ConfigFrame FrameKind = iota
	// KeyFrame is an independently decodable picture (IDR).
	KeyFrame
	// DeltaFrame is decodable only with reference to prior frames.
	DeltaFrame
)

// String returns the wire-level name of the frame kind.
func (k FrameKind) String() string {
	switch k {
	case ConfigFrame:
		return "config"
	case KeyFrame:
		return "key"
	case DeltaFrame:
		return "delta"
	default:
		return "unknown"
	}
}

// Valid reports whether k is one of the three defined frame kinds.
func (k FrameKind) Valid() bool {
	return k <= DeltaFrame
}

// Frame represents a single encoded H.264 access unit queued for transport.
// Frames are immutable once created; the engine assigns Sequence when the
// frame goes on the wire and never reuses a value within a session.
type Frame struct {
	Payload         []byte
	Kind            FrameKind
	TimestampMicros int64
	Sequence        uint64
}

// Size returns the payload size in bytes.
func (f *Frame) Size() int64 {
	return int64(len(f.Payload))
}

// IsDroppable reports whether the drop policy may evict this frame to make
// room under queue pressure. Config and key frames are never evicted: a
// decoder corrupts entirely on a missing keyframe or missing configuration,
// while a missing delta frame self-heals at the next keyframe.
func (f *Frame) IsDroppable() bool {
	return f.Kind == DeltaFrame
}
