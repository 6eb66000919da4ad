// Package presentation implements the ISO 8823 Presentation Layer CP/CPA
// handshake codec and the simpler fully-encoded-data wrapper used for
// ordinary data-phase traffic once an association is established.
package presentation

import (
	"fmt"

	"github.com/mms61850/goiec61850/errs"
)

// PresentationPDUType is the outer tag distinguishing a handshake PDU
// (CP/CPA, tag 0x31) from a bare data-phase wrapper (fully-encoded-data,
// tag 0x61). This profile does not give CP and CPA distinct tags; which
// one a given 0x31 PDU is follows from the connection's role (this
// client only ever parses CPA, since it never accepts associations).
type PresentationPDUType byte

const (
	CP             PresentationPDUType = 0x31
	CPA            PresentationPDUType = 0x31
	FullyEncodedData PresentationPDUType = 0x61
)

// Presentation-context identifiers this client negotiates.
const (
	ContextIdACSE = 1
	ContextIdMMS  = 3
)

// OID arcs for the two abstract syntaxes and their (single) transfer
// syntax, as captured on the wire.
var (
	abstractSyntaxACSE    = []byte{0x52, 0x01, 0x00, 0x01} // 2.2.1.0.1
	abstractSyntaxMMS     = []byte{0x28, 0xca, 0x22, 0x02, 0x01} // 1.0.9506.2.1
	transferSyntaxBER     = []byte{0x51, 0x01}                   // 2.1.1
)

// PresentationPDU is the decoded result of either a CPA handshake PDU or
// a bare data-phase wrapper. Fields not present in the wire form the PDU
// was decoded from are left zero.
type PresentationPDU struct {
	Type                           PresentationPDUType
	ModeValue                      byte
	RespondingPresentationSelector []byte
	PresentationContextId          byte
	AcseContextId                  byte
	PresentationDataValuesType     byte
	Data                           []byte
}

// decodeBERLength reads a standard BER length field (short form, or long
// form with a 0x80|n marker followed by n big-endian bytes) at pos.
func decodeBERLength(buf []byte, pos int) (length int, consumed int, err error) {
	if pos >= len(buf) {
		return 0, 0, &errs.ProtocolError{Layer: "presentation", Detail: "truncated length field"}
	}
	first := buf[pos]
	if first&0x80 == 0 {
		return int(first), 1, nil
	}
	n := int(first & 0x7F)
	if n == 0 || pos+1+n > len(buf) {
		return 0, 0, &errs.ProtocolError{Layer: "presentation", Detail: "truncated long-form length"}
	}
	for i := 0; i < n; i++ {
		length = length<<8 | int(buf[pos+1+i])
	}
	return length, 1 + n, nil
}

// encodeBERLength writes length using the short form (<0x80) or the long
// form otherwise.
func encodeBERLength(length int) []byte {
	if length < 0x80 {
		return []byte{byte(length)}
	}
	switch {
	case length <= 0xFF:
		return []byte{0x81, byte(length)}
	case length <= 0xFFFF:
		return []byte{0x82, byte(length >> 8), byte(length)}
	default:
		return []byte{0x83, byte(length >> 16), byte(length >> 8), byte(length)}
	}
}

// berTLV reads one BER tag+length+value starting at pos, returning the
// value bytes and the offset just past them.
func berTLV(buf []byte, pos int) (tag byte, value []byte, next int, err error) {
	if pos >= len(buf) {
		return 0, nil, 0, &errs.ProtocolError{Layer: "presentation", Detail: "truncated TLV tag"}
	}
	tag = buf[pos]
	length, consumed, err := decodeBERLength(buf, pos+1)
	if err != nil {
		return 0, nil, 0, err
	}
	start := pos + 1 + consumed
	if start+length > len(buf) {
		return 0, nil, 0, &errs.ProtocolError{Layer: "presentation", Detail: fmt.Sprintf("tag 0x%02X length exceeds buffer", tag)}
	}
	return tag, buf[start : start+length], start + length, nil
}

// parsePDVSequence decodes a single-PDV SEQUENCE body ("02 01 <ctx> a0
// <len> <data>", already past its own SEQUENCE tag+length) into a
// context id, the presentation-data-values tag, and its value.
func parsePDVSequence(seq []byte) (ctxId byte, pdvTag byte, pdvValue []byte, err error) {
	pos := 0
	for pos < len(seq) {
		tag, value, next, err := berTLV(seq, pos)
		if err != nil {
			return 0, 0, nil, err
		}
		switch tag {
		case 0x02: // presentation-context-identifier INTEGER
			if len(value) > 0 {
				ctxId = value[len(value)-1]
			}
		default:
			pdvTag = tag
			pdvValue = value
		}
		pos = next
	}
	return ctxId, pdvTag, pdvValue, nil
}

// parseFullyEncodedData decodes a bare "61 <len> 30 <len> 02 01 <ctx> a0
// <len> <data>" wrapper: exactly one PDV carrying a single-ASN1-type
// value, the shape every post-handshake MMS/ACSE exchange uses. data
// still carries its own 0x61 tag+length.
func parseFullyEncodedData(data []byte) (*PresentationPDU, error) {
	_, fullyEncoded, _, err := berTLV(data, 0)
	if err != nil {
		return nil, err
	}
	// fullyEncoded is "30 <len> 02 01 <ctx> a0 <len> <data>" (one PDV
	// SEQUENCE); unwrap the SEQUENCE to reach the context-id/value pair.
	_, seq, _, err := berTLV(fullyEncoded, 0)
	if err != nil {
		return nil, err
	}
	ctxId, pdvTag, pdvValue, err := parsePDVSequence(seq)
	if err != nil {
		return nil, err
	}
	return &PresentationPDU{
		Type:                       FullyEncodedData,
		PresentationContextId:      ctxId,
		PresentationDataValuesType: pdvTag & 0x1F,
		Data:                       pdvValue,
	}, nil
}

// parseCPType decodes a CP/CPA PDU: mode-selector, normal-mode-parameters
// (responding-presentation-selector, context-definition-result-list),
// and the embedded fully-encoded-data user-data.
func parseCPType(body []byte) (*PresentationPDU, error) {
	pdu := &PresentationPDU{Type: CPA}
	pos := 0
	for pos < len(body) {
		tag, value, next, err := berTLV(body, pos)
		if err != nil {
			return nil, err
		}
		switch tag {
		case 0xA0: // mode-selector
			if len(value) > 0 {
				_, modeVal, _, err := berTLV(value, 0)
				if err == nil && len(modeVal) > 0 {
					pdu.ModeValue = modeVal[len(modeVal)-1]
				}
			}
		case 0xA2: // normal-mode-parameters
			if err := parseNormalModeParams(value, pdu); err != nil {
				return nil, err
			}
		}
		pos = next
	}
	return pdu, nil
}

func parseNormalModeParams(body []byte, pdu *PresentationPDU) error {
	pos := 0
	for pos < len(body) {
		tag, value, next, err := berTLV(body, pos)
		if err != nil {
			return err
		}
		switch tag {
		case 0x83: // responding-presentation-selector
			pdu.RespondingPresentationSelector = value
		case 0xA5: // presentation-context-definition-result-list (not needed per-item; context id comes from user-data)
		case 0x61: // user-data: fully-encoded-data; value is already past
			// the 0x61 tag+length, i.e. the PDV SEQUENCE's tag+length.
			_, seq, _, err := berTLV(value, 0)
			if err != nil {
				return err
			}
			ctxId, pdvTag, pdvValue, err := parsePDVSequence(seq)
			if err != nil {
				return err
			}
			pdu.PresentationContextId = ctxId
			pdu.PresentationDataValuesType = pdvTag & 0x1F
			pdu.Data = pdvValue
		}
		pos = next
	}
	return nil
}

// ParsePresentationPDU decodes either a CPA handshake PDU (leading tag
// 0x31) or a bare data-phase fully-encoded-data wrapper (leading tag
// 0x61); both shapes appear in this client's traffic once the
// association is established, and the caller does not need to know
// which one is coming.
func ParsePresentationPDU(data []byte) (*PresentationPDU, error) {
	if len(data) < 2 {
		return nil, &errs.ProtocolError{Layer: "presentation", Detail: "PDU too short"}
	}
	tag, value, _, err := berTLV(data, 0)
	if err != nil {
		return nil, err
	}
	switch tag {
	case byte(CPA):
		return parseCPType(value)
	case byte(FullyEncodedData):
		return parseFullyEncodedData(data)
	default:
		return nil, &errs.ProtocolError{Layer: "presentation", Detail: fmt.Sprintf("unexpected presentation tag 0x%02X", tag)}
	}
}

// wrapTLV builds tag+length(len(body))+body.
func wrapTLV(tag byte, body []byte) []byte {
	out := append([]byte{tag}, encodeBERLength(len(body))...)
	return append(out, body...)
}

// BuildUserData wraps a single payload (an ACSE or MMS PDU) in the bare
// fully-encoded-data envelope used for all data-phase traffic after
// association: "61 <len> 30 <len> 02 01 <contextId> a0 <len> <payload>".
func BuildUserData(payload []byte, contextId byte) []byte {
	pdv := wrapTLV(0x02, []byte{contextId})
	pdv = append(pdv, wrapTLV(0xA0, payload)...)
	seq := wrapTLV(0x30, pdv)
	return wrapTLV(byte(FullyEncodedData), seq)
}

// contextListEntry builds one presentation-context-definition-list item:
// SEQUENCE { id INTEGER, abstract-syntax-name OID, transfer-syntax-name-list SEQUENCE OF OID }.
func contextListEntry(id byte, abstractSyntax []byte) []byte {
	body := wrapTLV(0x02, []byte{id})
	body = append(body, wrapTLV(0x06, abstractSyntax)...)
	body = append(body, wrapTLV(0x30, wrapTLV(0x06, transferSyntaxBER))...)
	return wrapTLV(0x30, body)
}

// defaultPresentationSelector is the 4-byte calling/called presentation
// selector this client proposes by default, matching the reference
// association capture.
var defaultPresentationSelector = []byte{0x00, 0x00, 0x00, 0x01}

// CPParams configures BuildCPType beyond the fixed ACSE+MMS context list
// the teacher originally hardcoded.
type CPParams struct {
	CallingPresentationSelector []byte
	CalledPresentationSelector  []byte
	UserData                    []byte
}

// DefaultCPParams returns the presentation selectors this client proposes
// by default, matching the reference association capture.
func DefaultCPParams(userData []byte) CPParams {
	return CPParams{
		CallingPresentationSelector: defaultPresentationSelector,
		CalledPresentationSelector:  defaultPresentationSelector,
		UserData:                    userData,
	}
}

// BuildCPType builds a CP-type PDU proposing the ACSE and MMS
// presentation contexts (1 and 3), carrying userData (the ACSE AARQ
// PDU, wrapped in its own fully-encoded-data envelope) as the initial
// user data. Use BuildCPTypeWithParams to override the presentation
// selectors.
func BuildCPType(userData []byte) []byte {
	return BuildCPTypeWithParams(DefaultCPParams(userData))
}

// BuildCPTypeWithParams is BuildCPType generalized to accept
// caller-chosen calling/called presentation selectors.
func BuildCPTypeWithParams(params CPParams) []byte {
	modeSelector := wrapTLV(0xA0, wrapTLV(0x80, []byte{0x01}))

	normalMode := wrapTLV(0x81, params.CallingPresentationSelector)
	normalMode = append(normalMode, wrapTLV(0x82, params.CalledPresentationSelector)...)

	contextList := append(contextListEntry(ContextIdACSE, abstractSyntaxACSE), contextListEntry(ContextIdMMS, abstractSyntaxMMS)...)
	normalMode = append(normalMode, wrapTLV(0xA4, contextList)...)

	normalMode = append(normalMode, BuildUserData(params.UserData, ContextIdACSE)...)

	body := append(modeSelector, wrapTLV(0xA2, normalMode)...)
	return wrapTLV(byte(CP), body)
}
