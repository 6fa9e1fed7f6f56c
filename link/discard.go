package link

import "sync/atomic"

// Compile-time interface check.
var _ Link = (*DiscardLink)(nil)

// DiscardLink serializes messages and throws the bytes away, counting what
// passed through. Used for local bring-up and load testing when no peer is
// available.
type DiscardLink struct {
	messages atomic.Int64
	bytes    atomic.Int64
	closed   atomic.Bool
}

// NewDiscard returns a DiscardLink.
func NewDiscard() *DiscardLink {
	return &DiscardLink{}
}

func (d *DiscardLink) SendMessage(hdr Header, payload []byte) error {
	if d.closed.Load() {
		return ErrLinkClosed
	}
	d.messages.Add(1)
	d.bytes.Add(MessageSize(hdr, payload))
	return nil
}

func (d *DiscardLink) Close() error {
	d.closed.Store(true)
	return nil
}

// Counts returns the number of messages and wire bytes accepted so far.
func (d *DiscardLink) Counts() (messages, bytes int64) {
	return d.messages.Load(), d.bytes.Load()
}
