// Package ws provides a WebSocket-backed device link, for peers reachable
// through an HTTP endpoint rather than a raw SRT listener. Each frame
// message travels as one binary WebSocket message, so the peer never has to
// resynchronize framing mid-stream.
package ws

import (
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/zsiec/beam/link"
)

const (
	handshakeTimeout = 10 * time.Second
	writeTimeout     = 5 * time.Second
)

// Compile-time interface check.
var _ link.Link = (*Link)(nil)

// Link sends frame messages over a single WebSocket connection.
// gorilla/websocket allows one concurrent writer, so sends are serialized
// by a mutex.
type Link struct {
	log  *slog.Logger
	conn *websocket.Conn

	mu     sync.Mutex
	closed bool
	buf    []byte
}

// Dial connects to a WebSocket peer at url (ws:// or wss://). header may
// carry authentication for the receiving side, or nil.
func Dial(url string, header http.Header, log *slog.Logger) (*Link, error) {
	if log == nil {
		log = slog.Default()
	}

	dialer := websocket.Dialer{HandshakeTimeout: handshakeTimeout}
	conn, resp, err := dialer.Dial(url, header)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("websocket dial %s: %w (status %d)", url, err, resp.StatusCode)
		}
		return nil, fmt.Errorf("websocket dial %s: %w", url, err)
	}

	return &Link{
		log:  log.With("component", "ws-link", "url", url),
		conn: conn,
	}, nil
}

// SendMessage writes one frame message as a binary WebSocket message. A
// write deadline bounds how long the sender worker can stall on a dead peer;
// an expired deadline poisons the connection, so it is reported as
// link.ErrLinkClosed.
func (l *Link) SendMessage(hdr link.Header, payload []byte) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.closed {
		return link.ErrLinkClosed
	}

	l.buf = link.AppendMessage(l.buf[:0], hdr, payload)
	if err := l.conn.SetWriteDeadline(time.Now().Add(writeTimeout)); err != nil {
		return fmt.Errorf("set write deadline: %w", err)
	}
	if err := l.conn.WriteMessage(websocket.BinaryMessage, l.buf); err != nil {
		l.closed = true
		l.conn.Close()
		return fmt.Errorf("%w: websocket write: %v", link.ErrLinkClosed, err)
	}
	return nil
}

// Close sends a close frame and tears down the connection.
func (l *Link) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.closed {
		return nil
	}
	l.closed = true

	deadline := time.Now().Add(time.Second)
	_ = l.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), deadline)
	l.log.Info("link closed")
	return l.conn.Close()
}
