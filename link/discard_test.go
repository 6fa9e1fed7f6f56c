package link

import (
	"testing"

	"github.com/zsiec/beam/media"
)

func TestDiscardLinkCounts(t *testing.T) {
	t.Parallel()

	d := NewDiscard()
	hdr := Header{Kind: media.KeyFrame, TimestampMicros: 1, Sequence: 0}
	payload := make([]byte, 100)

	if err := d.SendMessage(hdr, payload); err != nil {
		t.Fatalf("SendMessage: %v", err)
	}

	msgs, bytes := d.Counts()
	if msgs != 1 {
		t.Errorf("messages: got %d, want 1", msgs)
	}
	if want := MessageSize(hdr, payload); bytes != want {
		t.Errorf("bytes: got %d, want %d", bytes, want)
	}

	if err := d.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := d.SendMessage(hdr, payload); err != ErrLinkClosed {
		t.Errorf("SendMessage after close: got %v, want ErrLinkClosed", err)
	}
}
