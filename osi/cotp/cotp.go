// Package cotp implements the class-0 Connection-Oriented Transport
// Protocol (ISO 8073 / RFC 905) state machine on top of TPKT framing:
// the CR/CC handshake, DT data transfer, and reassembly across EOT
// boundaries.
package cotp

import (
	"context"
	"fmt"
	"io"

	"github.com/mms61850/goiec61850/errs"
	"github.com/mms61850/goiec61850/logger"
	"github.com/mms61850/goiec61850/osi/tpkt"
)

// TPDU type octets (high nibble carries the type, per ISO 8073 table 4).
const (
	tpduCR = 0xE0 // Connection Request
	tpduCC = 0xD0 // Connection Confirm
	tpduDR = 0x80 // Disconnect Request
	tpduDT = 0xF0 // Data
)

// Option codes within CR/CC variable part.
const (
	optTpduSize     = 0xC0
	optSrcTSelector = 0xC1
	optDstTSelector = 0xC2
)

const (
	eotFlag = 0x80 // "last data unit" bit of the DT TPDU number octet

	minTpduSize     = 128
	maxTpduSize     = 8192
	defaultTpduSize = maxTpduSize
)

// TSelector is an opaque transport selector (0-32 bytes), exchanged during
// the CR/CC handshake.
type TSelector struct {
	Value []byte
}

// Params carries the peer addressing needed to build a Connection Request.
type Params struct {
	RemoteTSelector TSelector
	LocalTSelector  TSelector
	// MaxTpduSize is the largest TPDU size this side offers, 128-8192.
	// Zero selects the default (8192).
	MaxTpduSize int
}

// connectionOptions configures a Connection.
type connectionOptions struct {
	logger logger.Logger
}

// Option configures a Connection.
type Option func(*connectionOptions)

// WithLogger sets the logger used for byte-level tracing.
func WithLogger(l logger.Logger) Option {
	return func(o *connectionOptions) { o.logger = l }
}

func defaultOptions() connectionOptions {
	return connectionOptions{logger: logger.NewLogger("cotp")}
}

// Connection drives the COTP state machine over a single TCP connection
// (or any io.ReadWriteCloser standing in for one in tests).
type Connection struct {
	conn io.ReadWriteCloser
	opts connectionOptions

	state           stateValue
	localRef        uint16
	remoteRef       uint16
	negotiatedTpdu  int
	localMaxTpdu    int
}

type stateValue int

const (
	csClosed stateValue = iota
	csEstablished
)

// NewConnection wraps conn without performing any handshake; use Connect
// to drive the CR/CC exchange.
func NewConnection(conn io.ReadWriteCloser, opts ...Option) *Connection {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	return &Connection{conn: conn, opts: o, localMaxTpdu: defaultTpduSize}
}

// Connect performs the client-side CR/CC handshake: send CR, await a
// matching CC, and record the negotiated TPDU size (the minimum of what we
// offered and what the peer granted, floored at 128). It returns once the
// connection is Established or the context is done / a fatal error occurs.
func Connect(ctx context.Context, conn io.ReadWriteCloser, params Params, opts ...Option) (*Connection, error) {
	c := NewConnection(conn, opts...)
	if params.MaxTpduSize > 0 {
		c.localMaxTpdu = clampTpduSize(params.MaxTpduSize)
	}

	c.localRef = 1 // a single client never needs more than one ref per process lifetime
	cr := c.buildCR(params)
	if err := c.writeTpdu(ctx, cr); err != nil {
		return nil, err
	}
	c.opts.logger.Debug("sent CR, src-ref=%d, tpdu-size offer=%d", c.localRef, c.localMaxTpdu)

	payload, err := tpkt.ReadFrame(ctx, c.conn)
	if err != nil {
		return nil, err
	}
	negotiated, remoteRef, err := c.parseCC(payload)
	if err != nil {
		return nil, err
	}
	c.remoteRef = remoteRef
	c.negotiatedTpdu = negotiated
	c.state = csEstablished
	c.opts.logger.Debug("received CC, dst-ref=%d, negotiated tpdu size=%d", c.remoteRef, c.negotiatedTpdu)
	return c, nil
}

func clampTpduSize(size int) int {
	if size < minTpduSize {
		return minTpduSize
	}
	if size > maxTpduSize {
		return maxTpduSize
	}
	return size
}

// tpduSizeToExponent converts a byte size to its log2 exponent, as carried
// in the TPDU-size option (e.g. 2048 -> 11).
func tpduSizeToExponent(size int) byte {
	size = clampTpduSize(size)
	exp := byte(0)
	for (1 << exp) < size {
		exp++
	}
	return exp
}

func exponentToTpduSize(exp byte) int {
	size := 1 << exp
	if size < minTpduSize {
		size = minTpduSize
	}
	if size > maxTpduSize {
		size = maxTpduSize
	}
	return size
}

// buildCR builds a CR TPDU (type 0xE0): dst-ref=0, a locally chosen
// src-ref, class 0, and the TPDU-size / T-selector options.
func (c *Connection) buildCR(params Params) []byte {
	var variable []byte
	variable = append(variable, optTpduSize, 1, tpduSizeToExponent(c.localMaxTpdu))
	if len(params.LocalTSelector.Value) > 0 {
		variable = append(variable, optSrcTSelector, byte(len(params.LocalTSelector.Value)))
		variable = append(variable, params.LocalTSelector.Value...)
	}
	if len(params.RemoteTSelector.Value) > 0 {
		variable = append(variable, optDstTSelector, byte(len(params.RemoteTSelector.Value)))
		variable = append(variable, params.RemoteTSelector.Value...)
	}

	fixed := []byte{
		tpduCR,
		0, 0, // dst-ref = 0
		byte(c.localRef >> 8), byte(c.localRef),
		0x00, // class 0, no options
	}
	body := append(fixed, variable...)
	li := byte(len(body))
	return append([]byte{li}, body...)
}

// parseCC parses a CC TPDU (type 0xD0) and returns the negotiated TPDU
// size and the peer's src-ref (our new remote-ref).
func (c *Connection) parseCC(tpdu []byte) (negotiatedSize int, remoteRef uint16, err error) {
	if len(tpdu) < 1 {
		return 0, 0, &errs.ProtocolError{Layer: "cotp", Detail: "empty TPDU"}
	}
	li := int(tpdu[0])
	if len(tpdu) < 1+li {
		return 0, 0, &errs.ProtocolError{Layer: "cotp", Detail: "LI exceeds TPDU length"}
	}
	body := tpdu[1 : 1+li]
	if len(body) < 6 {
		return 0, 0, &errs.ProtocolError{Layer: "cotp", Detail: "CC TPDU too short"}
	}
	if body[0] != tpduCC {
		return 0, 0, &errs.Negotiation{Layer: "cotp", PeerReason: fmt.Sprintf("unexpected TPDU type 0x%02X, wanted CC", body[0])}
	}
	dstRef := uint16(body[1])<<8 | uint16(body[2])
	if dstRef != c.localRef {
		return 0, 0, &errs.ProtocolError{Layer: "cotp", Detail: fmt.Sprintf("CC dst-ref %d does not match our src-ref %d", dstRef, c.localRef)}
	}
	srcRef := uint16(body[3])<<8 | uint16(body[4])

	peerOffered := c.localMaxTpdu
	pos := 6
	for pos+1 < len(body) {
		code := body[pos]
		length := int(body[pos+1])
		pos += 2
		if pos+length > len(body) {
			break
		}
		if code == optTpduSize && length >= 1 {
			peerOffered = exponentToTpduSize(body[pos])
		}
		pos += length
	}
	negotiated := c.localMaxTpdu
	if peerOffered < negotiated {
		negotiated = peerOffered
	}
	return negotiated, srcRef, nil
}

func (c *Connection) writeTpdu(ctx context.Context, tpdu []byte) error {
	frame, err := tpkt.Encode(tpdu)
	if err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if _, err := c.conn.Write(frame); err != nil {
		return &errs.TransportError{Op: "write", Err: err}
	}
	return nil
}

// NegotiatedTpduSize returns the TPDU size agreed during Connect.
func (c *Connection) NegotiatedTpduSize() int {
	if c.negotiatedTpdu == 0 {
		return defaultTpduSize
	}
	return c.negotiatedTpdu
}

// dtOverhead is the bytes TPKT + a DT TPDU header add atop user data: 4
// TPKT header bytes, plus LI(1) + type(1) + TPDU-number/EOT(1).
const dtOverhead = tpkt.HeaderSize + 3

// SendData fragments payload into DT TPDUs whose TPKT frames each fit the
// negotiated TPDU size, setting EOT=0x80 on the final fragment only.
func (c *Connection) SendData(ctx context.Context, payload []byte) error {
	if c.state != csEstablished {
		return &errs.ProtocolError{Layer: "cotp", Detail: "SendData before connection established"}
	}
	chunkSize := c.NegotiatedTpduSize() - dtOverhead
	if chunkSize <= 0 {
		chunkSize = minTpduSize - dtOverhead
	}
	if len(payload) == 0 {
		payload = []byte{}
	}
	for offset := 0; ; {
		end := offset + chunkSize
		last := false
		if end >= len(payload) {
			end = len(payload)
			last = true
		}
		chunk := payload[offset:end]
		eot := byte(0)
		if last {
			eot = eotFlag
		}
		dt := []byte{2, tpduDT, eot}
		dt = append(dt, chunk...)
		if err := c.writeTpdu(ctx, dt); err != nil {
			return err
		}
		offset = end
		if last {
			break
		}
	}
	return nil
}

// ReceiveData reads TPKT frames, accumulating DT payload until a fragment
// carries EOT=0x80, and returns the reassembled upper-layer payload. An
// incoming CR or CC at this point (Established) is a fatal ProtocolError.
func (c *Connection) ReceiveData(ctx context.Context) ([]byte, error) {
	var assembled []byte
	for {
		payload, err := tpkt.ReadFrame(ctx, c.conn)
		if err != nil {
			return nil, err
		}
		if len(payload) < 1 {
			return nil, &errs.ProtocolError{Layer: "cotp", Detail: "empty TPDU"}
		}
		li := int(payload[0])
		if len(payload) < 1+li {
			return nil, &errs.ProtocolError{Layer: "cotp", Detail: "LI exceeds TPDU length"}
		}
		body := payload[1 : 1+li]
		if len(body) < 1 {
			return nil, &errs.ProtocolError{Layer: "cotp", Detail: "TPDU body missing type octet"}
		}
		switch body[0] & 0xF0 {
		case tpduDT:
			if len(body) < 2 {
				return nil, &errs.ProtocolError{Layer: "cotp", Detail: "DT TPDU missing TPDU-number/EOT octet"}
			}
			eot := body[1]&eotFlag != 0
			data := payload[1+li:]
			assembled = append(assembled, data...)
			if eot {
				return assembled, nil
			}
			continue
		case tpduCR, tpduCC:
			return nil, &errs.ProtocolError{Layer: "cotp", Detail: "unexpected CR/CC in Established state"}
		case tpduDR:
			return nil, &errs.TransportError{Op: "receive", Err: fmt.Errorf("peer sent Disconnect Request")}
		default:
			return nil, &errs.ProtocolError{Layer: "cotp", Detail: fmt.Sprintf("unexpected TPDU type 0x%02X", body[0])}
		}
	}
}

// Close closes the underlying connection.
func (c *Connection) Close() error {
	return c.conn.Close()
}
