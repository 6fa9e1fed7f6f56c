// Package link defines the device-link abstraction the transport engine
// sends frames over, plus the wire format shared by every link
// implementation. The link is assumed to deliver messages reliably and in
// order once accepted, but is opaque to congestion; it may fail a send
// synchronously (not connected) or report a write error.
package link

import (
	"errors"

	"github.com/zsiec/beam/media"
)

// Sentinel errors reported by link implementations. ErrLinkClosed means the
// link is permanently unavailable and the session cannot continue;
// ErrNotConnected and ordinary write errors are per-send failures.
var (
	ErrNotConnected = errors.New("link: not connected")
	ErrLinkClosed   = errors.New("link: closed")
)

// Header describes one frame message ahead of its payload bytes.
type Header struct {
	Kind            media.FrameKind
	TimestampMicros int64
	Sequence        uint64
	PayloadSize     int
}

// Link is the single operation the transport engine consumes from the
// device-link layer. SendMessage blocks the calling goroutine (the engine's
// sender worker, never the encoder) until the message is accepted or the
// write fails. Reconnection, retry, and backoff are link-layer concerns;
// the engine never retries a failed frame.
type Link interface {
	SendMessage(hdr Header, payload []byte) error
	Close() error
}
