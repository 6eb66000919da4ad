// Package session implements the ISO 8327 Session Protocol SPDU codec
// used between COTP and Presentation: the SI/LI + PGI/PI TLV body, the
// CN/AC connect handshake, and the Give-Tokens+DT data-phase envelope.
package session

import (
	"fmt"

	"github.com/mms61850/goiec61850/errs"
)

// SPDUType is the SPDU Identifier (SI), ISO 8327 table 1.
type SPDUType byte

const (
	SessionSPDUTypeDataTransfer SPDUType = 0x01 // DT
	SessionSPDUTypeNotFinished  SPDUType = 0x08 // NF
	SessionSPDUTypeFinish       SPDUType = 0x09 // FN
	SessionSPDUTypeDisconnect   SPDUType = 0x0A // DN
	SessionSPDUTypeRefuse       SPDUType = 0x0C // RF
	SessionSPDUTypeConnect      SPDUType = 0x0D // CN
	SessionSPDUTypeAccept       SPDUType = 0x0E // AC
	SessionSPDUTypeAbort        SPDUType = 0x19 // AB
)

// giveTokensSI is the "Give Tokens" SPDU identifier. A Give Tokens SPDU
// always carries an empty body and always immediately precedes a DT
// SPDU in this client's data phase.
const giveTokensSI = 0x01

// PGICode identifies a Parameter Group, ISO 8327 table 2.
type PGICode byte

const (
	PgiConnectionIdentifier PGICode = 0x01
	PgiConnectAcceptItem    PGICode = 0x05
	PgiTransportDisconnect  PGICode = 0x11
	PgiSessionUserReq       PGICode = 0x14
	PgiEnclosureItem        PGICode = 0x19
	PgiCallingSessionSel    PGICode = 0x33
	PgiCalledSessionSel     PGICode = 0x34
	PgiDataOverflow         PGICode = 0x3C
	PgiUserData             PGICode = 0xC1
	PgiExtendedUserData     PGICode = 0xC2
)

// PICode identifies a Parameter, ISO 8327 table 3.
type PICode byte

const (
	PiSessionUserReq      PICode = 0x14
	PiProtocolOptions     PICode = 0x13
	PiTsduMaximumSize     PICode = 0x15
	PiVersionNumber       PICode = 0x16
	PiInitialSerialNumber PICode = 0x17
	PiTokenSettingItem    PICode = 0x1A
	PiReasonCode          PICode = 0x32
)

// isOpaqueItem reports whether code's body is an upper-layer payload or
// selector value rather than a nested PI list.
func isOpaqueItem(code PGICode) bool {
	switch code {
	case PgiUserData, PgiExtendedUserData, PgiCallingSessionSel, PgiCalledSessionSel:
		return true
	default:
		return false
	}
}

// PI is a single Parameter Identifier item: code plus raw value.
type PI struct {
	Code  PICode
	Value []byte
}

// PGI is a single Parameter Group Identifier item: code plus either a
// nested list of PIs (for structured groups) or an opaque body.
type PGI struct {
	Code   PGICode
	Params []PI
	Opaque []byte
}

// SPDU is a decoded Session PDU: its type, the item tree, and the
// handshake/data fields upper layers read directly.
type SPDU struct {
	Type   SPDUType
	Length int
	PGIs   []PGI

	ProtocolOptions       byte
	ProtocolVersion       byte
	SessionRequirement    uint16
	CallingSessionSel     []byte
	CalledSessionSelector []byte
	ReasonCode            byte

	// Data is the UserData item's opaque payload, handed to Presentation.
	Data []byte
}

// decodeLength reads a PGI/PI/SPDU length field: short form is one byte;
// the extended form (0xFF marker) is two big-endian bytes following it.
func decodeLength(buf []byte, pos int) (length int, consumed int, err error) {
	if pos >= len(buf) {
		return 0, 0, &errs.ProtocolError{Layer: "session", Detail: "truncated length field"}
	}
	if buf[pos] == 0xFF {
		if pos+2 >= len(buf) {
			return 0, 0, &errs.ProtocolError{Layer: "session", Detail: "truncated extended length field"}
		}
		length = int(buf[pos+1])<<8 | int(buf[pos+2])
		return length, 3, nil
	}
	return int(buf[pos]), 1, nil
}

// encodeLength writes a Session-layer length. Unlike BER, the Session
// protocol uses the plain one-byte form for any value up to 255 and only
// switches to the extended 0xFF marker form beyond that, matching
// captured associations whose 100+ byte UserData items carry a single
// length octet (e.g. 0xC1 0x74 for a 116-byte payload).
func encodeLength(length int) []byte {
	if length <= 0xFF {
		return []byte{byte(length)}
	}
	return []byte{0xFF, byte(length >> 8), byte(length)}
}

// decodePIs decodes a flat sequence of PI items filling exactly body.
func decodePIs(body []byte) ([]PI, error) {
	var pis []PI
	pos := 0
	for pos < len(body) {
		code := PICode(body[pos])
		pos++
		length, consumed, err := decodeLength(body, pos)
		if err != nil {
			return nil, err
		}
		pos += consumed
		if pos+length > len(body) {
			return nil, &errs.ProtocolError{Layer: "session", Detail: fmt.Sprintf("PI 0x%02X length exceeds body", code)}
		}
		pis = append(pis, PI{Code: code, Value: body[pos : pos+length]})
		pos += length
	}
	return pis, nil
}

// ParseSessionSPDU decodes an SPDU: one type octet, a length field, and a
// body that is a flat sequence of items, each either a structured PGI
// (e.g. ConnectAcceptItem), an opaque PGI (e.g. UserData, the session
// selectors), or a bare top-level PI (e.g. SessionUserRequirements).
// Handshake parameters and the UserData payload are surfaced as
// convenience fields regardless of where in the body they appeared.
func ParseSessionSPDU(data []byte) (*SPDU, error) {
	if len(data) < 1 {
		return nil, &errs.ProtocolError{Layer: "session", Detail: "empty SPDU"}
	}
	spduType := SPDUType(data[0])
	length, consumed, err := decodeLength(data, 1)
	if err != nil {
		return nil, err
	}
	pos := 1 + consumed
	if pos+length > len(data) {
		return nil, &errs.ProtocolError{Layer: "session", Detail: "SPDU length exceeds buffer"}
	}
	body := data[pos : pos+length]

	spdu := &SPDU{Type: spduType, Length: length}

	bodyPos := 0
	for bodyPos < len(body) {
		code := body[bodyPos]
		itemPos := bodyPos + 1
		itemLen, consumed, err := decodeLength(body, itemPos)
		if err != nil {
			return nil, err
		}
		itemPos += consumed
		if itemPos+itemLen > len(body) {
			return nil, &errs.ProtocolError{Layer: "session", Detail: fmt.Sprintf("item 0x%02X length exceeds body", code)}
		}
		value := body[itemPos : itemPos+itemLen]
		bodyPos = itemPos + itemLen

		pgiCode := PGICode(code)
		switch pgiCode {
		case PgiConnectAcceptItem:
			pis, err := decodePIs(value)
			if err != nil {
				return nil, err
			}
			spdu.PGIs = append(spdu.PGIs, PGI{Code: pgiCode, Params: pis})
			for _, pi := range pis {
				switch pi.Code {
				case PiProtocolOptions:
					if len(pi.Value) > 0 {
						spdu.ProtocolOptions = pi.Value[0]
					}
				case PiVersionNumber:
					if len(pi.Value) > 0 {
						spdu.ProtocolVersion = pi.Value[0]
					}
				}
			}
		case PgiCallingSessionSel:
			spdu.CallingSessionSel = value
			spdu.PGIs = append(spdu.PGIs, PGI{Code: pgiCode, Opaque: value})
		case PgiCalledSessionSel:
			spdu.CalledSessionSelector = value
			spdu.PGIs = append(spdu.PGIs, PGI{Code: pgiCode, Opaque: value})
		case PgiUserData, PgiExtendedUserData:
			spdu.Data = value
			spdu.PGIs = append(spdu.PGIs, PGI{Code: pgiCode, Opaque: value})
		default:
			// Not a recognized PGI: treat as a bare top-level PI, the
			// shape SessionUserRequirements and ReasonCode travel in.
			switch PICode(code) {
			case PiSessionUserReq:
				if len(value) >= 2 {
					spdu.SessionRequirement = uint16(value[0])<<8 | uint16(value[1])
				}
			case PiReasonCode:
				if len(value) > 0 {
					spdu.ReasonCode = value[0]
				}
			}
			spdu.PGIs = append(spdu.PGIs, PGI{Code: pgiCode, Opaque: value})
		}
	}

	return spdu, nil
}

// ConnectParams configures BuildConnectSPDU beyond the fixed kernel+duplex
// shape the teacher originally hardcoded.
type ConnectParams struct {
	CallingSessionSelector []byte
	CalledSessionSelector  []byte
	// SessionRequirement is the functional unit bitmap; Duplex (0x0002)
	// is the only functional unit this client negotiates.
	SessionRequirement uint16
	UserData           []byte
}

const sessionRequirementDuplex = 0x0002

// DefaultConnectParams returns the kernel+duplex parameters this client
// always proposes, with 2-byte session selectors matching the reference
// association capture.
func DefaultConnectParams(userData []byte) ConnectParams {
	return ConnectParams{
		CallingSessionSelector: []byte{0x00, 0x01},
		CalledSessionSelector:  []byte{0x00, 0x01},
		SessionRequirement:     sessionRequirementDuplex,
		UserData:               userData,
	}
}

// BuildConnectSPDU builds a CN SPDU (SI=0x0D) carrying the Connect Accept
// Item, the duplex SessionUserRequirements, calling/called session
// selectors, and a trailing UserData item wrapping the Presentation CP
// payload. userData is wrapped with the default (duplex, 0001/0001
// selector) parameters, matching the single association this client
// negotiates; use BuildConnectSPDUWithParams to override any of them.
func BuildConnectSPDU(userData []byte) []byte {
	return BuildConnectSPDUWithParams(DefaultConnectParams(userData))
}

// BuildConnectSPDUWithParams is BuildConnectSPDU generalized to accept
// caller-chosen session selectors and functional-unit requirements.
func BuildConnectSPDUWithParams(params ConnectParams) []byte {
	connectAccept := append([]byte{}, byte(PiProtocolOptions), 1, 0x00)
	connectAccept = append(connectAccept, byte(PiVersionNumber), 1, 0x02)
	body := append([]byte{byte(PgiConnectAcceptItem)}, encodeLength(len(connectAccept))...)
	body = append(body, connectAccept...)

	req := params.SessionRequirement
	body = append(body, byte(PiSessionUserReq))
	body = append(body, encodeLength(2)...)
	body = append(body, byte(req>>8), byte(req))

	if params.CallingSessionSelector != nil {
		body = append(body, byte(PgiCallingSessionSel))
		body = append(body, encodeLength(len(params.CallingSessionSelector))...)
		body = append(body, params.CallingSessionSelector...)
	}
	if params.CalledSessionSelector != nil {
		body = append(body, byte(PgiCalledSessionSel))
		body = append(body, encodeLength(len(params.CalledSessionSelector))...)
		body = append(body, params.CalledSessionSelector...)
	}
	body = append(body, byte(PgiUserData))
	body = append(body, encodeLength(len(params.UserData))...)
	body = append(body, params.UserData...)

	out := []byte{byte(SessionSPDUTypeConnect)}
	out = append(out, encodeLength(len(body))...)
	out = append(out, body...)
	return out
}

// BuildDataTransferWithTokens wraps an upper-layer payload in the
// canonical data-phase envelope: a Give-Tokens SPDU (empty body)
// immediately followed by a DT SPDU whose body is a UserData item.
// Receivers must accept both this form and a bare DT without a
// preceding Give-Tokens SPDU.
func BuildDataTransferWithTokens(payload []byte) []byte {
	giveTokens := []byte{giveTokensSI, 0x00}
	userData := append([]byte{byte(PgiUserData)}, encodeLength(len(payload))...)
	userData = append(userData, payload...)

	dt := []byte{byte(SessionSPDUTypeDataTransfer)}
	dt = append(dt, encodeLength(len(userData))...)
	dt = append(dt, userData...)
	return append(giveTokens, dt...)
}

// ParseDataTransfer parses the data-phase envelope produced by
// BuildDataTransferWithTokens, accepting both the Give-Tokens+DT form
// and a bare DT SPDU (a Give Tokens SPDU always has an empty body, so a
// nonzero length right after SI=0x01 means this is actually a bare DT).
func ParseDataTransfer(data []byte) ([]byte, error) {
	if len(data) < 2 {
		return nil, &errs.ProtocolError{Layer: "session", Detail: "data-phase SPDU too short"}
	}
	pos := 0
	if data[0] == giveTokensSI {
		length, consumed, err := decodeLength(data, 1)
		if err != nil {
			return nil, err
		}
		if length == 0 {
			pos = 1 + consumed
		}
	}
	if pos >= len(data) {
		return nil, &errs.ProtocolError{Layer: "session", Detail: "missing DT SPDU after Give Tokens"}
	}
	spdu, err := ParseSessionSPDU(data[pos:])
	if err != nil {
		return nil, err
	}
	switch spdu.Type {
	case SessionSPDUTypeDataTransfer:
		return spdu.Data, nil
	case SessionSPDUTypeFinish, SessionSPDUTypeDisconnect:
		return nil, errs.ErrDisassociated
	case SessionSPDUTypeAbort:
		return nil, &errs.Negotiation{Layer: "session", PeerReason: fmt.Sprintf("session aborted, reason=0x%02X", spdu.ReasonCode)}
	default:
		return nil, &errs.ProtocolError{Layer: "session", Detail: fmt.Sprintf("unexpected SPDU type 0x%02X in data phase", spdu.Type)}
	}
}
