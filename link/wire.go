package link

import (
	"fmt"
	"io"

	"github.com/quic-go/quic-go/quicvarint"

	"github.com/zsiec/beam/media"
)

// Wire message layout, all integer fields QUIC varints:
//
//	kind | timestampMicros | sequence | payloadSize | payload bytes
//
// The framing carries no session state, so it is bit-compatible across
// sessions: a cold-started receiver only needs the next config+keyframe
// pair to begin decoding.

// AppendMessage serializes a frame message into buf and returns the
// extended slice. The header is rebuilt on every call; payload bytes are
// appended as-is.
func AppendMessage(buf []byte, hdr Header, payload []byte) []byte {
	buf = quicvarint.Append(buf, uint64(hdr.Kind))
	buf = quicvarint.Append(buf, uint64(hdr.TimestampMicros))
	buf = quicvarint.Append(buf, hdr.Sequence)
	buf = quicvarint.Append(buf, uint64(len(payload)))
	return append(buf, payload...)
}

// MessageSize returns the encoded size of a message without building it,
// for pre-allocation and byte accounting.
func MessageSize(hdr Header, payload []byte) int64 {
	size := quicvarint.Len(uint64(hdr.Kind)) +
		quicvarint.Len(uint64(hdr.TimestampMicros)) +
		quicvarint.Len(hdr.Sequence) +
		quicvarint.Len(uint64(len(payload)))
	return int64(size) + int64(len(payload))
}

// ReadMessage parses one frame message from r. It is the receiving-side
// counterpart of AppendMessage, used by peers and by tests to verify
// round-trip framing.
func ReadMessage(r io.Reader) (Header, []byte, error) {
	var hdr Header

	br, ok := r.(quicvarint.Reader)
	if !ok {
		br = quicvarint.NewReader(r)
	}

	kind, err := quicvarint.Read(br)
	if err != nil {
		return hdr, nil, fmt.Errorf("read kind: %w", err)
	}
	if !media.FrameKind(kind).Valid() {
		return hdr, nil, fmt.Errorf("invalid frame kind %d", kind)
	}
	hdr.Kind = media.FrameKind(kind)

	ts, err := quicvarint.Read(br)
	if err != nil {
		return hdr, nil, fmt.Errorf("read timestamp: %w", err)
	}
	hdr.TimestampMicros = int64(ts)

	seq, err := quicvarint.Read(br)
	if err != nil {
		return hdr, nil, fmt.Errorf("read sequence: %w", err)
	}
	hdr.Sequence = seq

	size, err := quicvarint.Read(br)
	if err != nil {
		return hdr, nil, fmt.Errorf("read payload size: %w", err)
	}
	hdr.PayloadSize = int(size)

	payload := make([]byte, size)
	if _, err := io.ReadFull(br, payload); err != nil {
		return hdr, nil, fmt.Errorf("read payload: %w", err)
	}
	return hdr, payload, nil
}
