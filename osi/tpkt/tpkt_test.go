package tpkt

import (
	"bytes"
	"context"
	"testing"
)

func TestEncodeDecodeRoundTrip(t *testing.T) {
	payloads := [][]byte{
		{0x01},
		bytes.Repeat([]byte{0xAB}, 100),
		bytes.Repeat([]byte{0xCD}, 65531),
	}
	for _, p := range payloads {
		frame, err := Encode(p)
		if err != nil {
			t.Fatalf("Encode: %v", err)
		}
		if frame[0] != 0x03 || frame[1] != 0x00 {
			t.Fatalf("unexpected header prefix: %x", frame[:2])
		}
		got, err := ReadFrame(context.Background(), bytes.NewReader(frame))
		if err != nil {
			t.Fatalf("ReadFrame: %v", err)
		}
		if !bytes.Equal(got, p) {
			t.Fatalf("round trip mismatch: got %d bytes, want %d", len(got), len(p))
		}
	}
}

func TestEncodeRejectsOversize(t *testing.T) {
	if _, err := Encode(make([]byte, MaxPayloadSize+1)); err == nil {
		t.Fatal("expected error for oversize payload")
	}
	if _, err := Encode(nil); err == nil {
		t.Fatal("expected error for empty payload")
	}
}

func TestReadFrameRejectsBadVersion(t *testing.T) {
	bad := []byte{0x04, 0x00, 0x00, 0x04}
	if _, err := ReadFrame(context.Background(), bytes.NewReader(bad)); err == nil {
		t.Fatal("expected version mismatch error")
	}
}

func TestReadFrameShortReadsRetried(t *testing.T) {
	// a reader that trickles bytes one at a time
	frame, _ := Encode([]byte{0x01, 0x02, 0x03})
	r := &byteAtATimeReader{data: frame}
	got, err := ReadFrame(context.Background(), r)
	if err != nil {
		t.Fatalf("ReadFrame: %v", err)
	}
	if !bytes.Equal(got, []byte{0x01, 0x02, 0x03}) {
		t.Fatalf("got %x", got)
	}
}

type byteAtATimeReader struct {
	data []byte
	pos  int
}

func (r *byteAtATimeReader) Read(p []byte) (int, error) {
	if r.pos >= len(r.data) {
		return 0, nil
	}
	p[0] = r.data[r.pos]
	r.pos++
	return 1, nil
}
