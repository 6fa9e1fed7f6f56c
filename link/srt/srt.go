// Package srt provides an SRT-backed device link. SRT gives the frame
// transport an ordered, reliable message path across lossy networks while
// keeping latency bounded, which suits a live camera feed better than plain
// TCP.
package srt

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	srtgo "github.com/zsiec/srtgo"

	"github.com/zsiec/beam/link"
)

// srtLatencyNs is the SRT latency setting in nanoseconds (120ms).
const srtLatencyNs = 120_000_000

const dialTimeout = 10 * time.Second

// Compile-time interface check.
var _ link.Link = (*Link)(nil)

// Link sends frame messages over a single SRT connection. Writes are
// serialized by a mutex so concurrent senders cannot interleave message
// bytes on the wire.
type Link struct {
	log  *slog.Logger
	conn *srtgo.Conn

	mu     sync.Mutex
	closed bool
	buf    []byte
}

// Dial connects to a remote SRT listener. streamID is carried in the SRT
// handshake so the receiver can route the feed; when empty, the receiver's
// default routing applies. The dial is bounded by a timeout, draining and
// closing any connection that arrives late.
func Dial(address, streamID string, log *slog.Logger) (*Link, error) {
	if log == nil {
		log = slog.Default()
	}

	cfg := srtgo.DefaultConfig()
	cfg.Latency = srtLatencyNs
	cfg.StreamID = streamID

	type dialResult struct {
		conn *srtgo.Conn
		err  error
	}
	ch := make(chan dialResult, 1)
	go func() {
		conn, err := srtgo.Dial(address, cfg)
		ch <- dialResult{conn, err}
	}()

	timer := time.NewTimer(dialTimeout)
	defer timer.Stop()

	select {
	case res := <-ch:
		if res.err != nil {
			return nil, fmt.Errorf("SRT dial failed: %w", res.err)
		}
		return &Link{
			log:  log.With("component", "srt-link", "address", address),
			conn: res.conn,
		}, nil
	case <-timer.C:
		go func() {
			if res := <-ch; res.conn != nil {
				res.conn.Close()
			}
		}()
		return nil, fmt.Errorf("SRT dial timed out after %s", dialTimeout)
	}
}

// SendMessage serializes one frame message and writes it to the SRT
// connection. The header buffer is reused across calls; only the worker's
// single goroutine and the mutex make that safe.
func (l *Link) SendMessage(hdr link.Header, payload []byte) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.closed {
		return link.ErrLinkClosed
	}

	l.buf = link.AppendMessage(l.buf[:0], hdr, payload)
	if _, err := l.conn.Write(l.buf); err != nil {
		return fmt.Errorf("SRT write: %w", err)
	}
	return nil
}

// Close tears down the SRT connection. Subsequent sends report
// link.ErrLinkClosed.
func (l *Link) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.closed {
		return nil
	}
	l.closed = true
	l.log.Info("link closed")
	return l.conn.Close()
}
