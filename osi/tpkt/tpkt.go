// Package tpkt implements the RFC 1006 TPKT framer: byte-stream to
// length-delimited frame, and back. It is the bottom of the stack and
// knows nothing about COTP or any higher layer.
package tpkt

import (
	"context"
	"encoding/binary"
	"fmt"
	"io"

	"github.com/mms61850/goiec61850/errs"
)

const (
	// HeaderSize is the fixed TPKT header length: version, reserved, two
	// length bytes.
	HeaderSize = 4
	// Version is the only TPKT version this client speaks.
	Version = 3
	// MaxPayloadSize is the largest payload a single TPKT frame can carry
	// (65535 total length minus the 4-byte header).
	MaxPayloadSize = 0xFFFF - HeaderSize
)

// Encode prepends a TPKT header to payload. payload must be between 1 and
// MaxPayloadSize bytes.
func Encode(payload []byte) ([]byte, error) {
	if len(payload) == 0 || len(payload) > MaxPayloadSize {
		return nil, &errs.ProtocolError{Layer: "tpkt", Detail: fmt.Sprintf("payload length %d out of range", len(payload))}
	}
	total := len(payload) + HeaderSize
	frame := make([]byte, total)
	frame[0] = Version
	frame[1] = 0
	binary.BigEndian.PutUint16(frame[2:4], uint16(total))
	copy(frame[HeaderSize:], payload)
	return frame, nil
}

// ReadFrame reads exactly one TPKT frame from r, retrying short reads until
// the declared length is satisfied. It returns the payload (header
// stripped). io.EOF encountered mid-frame is reported as a TransportError;
// a clean EOF before any header byte is read is returned as io.EOF so
// callers can distinguish a graceful peer close from a framing violation.
func ReadFrame(ctx context.Context, r io.Reader) ([]byte, error) {
	header := make([]byte, HeaderSize)
	if err := readFull(ctx, r, header); err != nil {
		return nil, err
	}
	if header[0] != Version {
		return nil, &errs.ProtocolError{Layer: "tpkt", Detail: fmt.Sprintf("unexpected version %d", header[0])}
	}
	length := binary.BigEndian.Uint16(header[2:4])
	if length < HeaderSize {
		return nil, &errs.ProtocolError{Layer: "tpkt", Detail: fmt.Sprintf("length %d shorter than header", length)}
	}
	payload := make([]byte, int(length)-HeaderSize)
	if len(payload) > 0 {
		if err := readFull(ctx, r, payload); err != nil {
			if err == io.EOF {
				return nil, &errs.TransportError{Op: "read", Err: io.ErrUnexpectedEOF}
			}
			return nil, err
		}
	}
	return payload, nil
}

func readFull(ctx context.Context, r io.Reader, buf []byte) error {
	read := 0
	for read < len(buf) {
		if err := ctx.Err(); err != nil {
			return err
		}
		n, err := r.Read(buf[read:])
		read += n
		if err != nil {
			if err == io.EOF && read == 0 {
				return io.EOF
			}
			if err == io.EOF {
				return &errs.TransportError{Op: "read", Err: io.ErrUnexpectedEOF}
			}
			return &errs.TransportError{Op: "read", Err: err}
		}
	}
	return nil
}
