// Package acse implements the ISO 8650 Association Control Service
// Element PDU codec: AARQ (Association Request) and AARE (Association
// Response), both carrying MMS Initiate PDUs wrapped in an Association-
// data EXTERNAL value as user-information.
package acse

import (
	"fmt"

	"github.com/mms61850/goiec61850/ber"
	"github.com/mms61850/goiec61850/errs"
)

// PDU tags, Application class constructed.
const (
	TagAARQ = 0x60
	TagAARE = 0x61
)

// AP-title/AE-qualifier this client presents by default, matching the
// reference association capture. Callers that need a different AP-title
// (e.g. a server requiring a specific calling AP-title) override them via
// AARQParams.
var (
	defaultCalledAPTitle      = []byte{0x06, 0x05, 0x29, 0x01, 0x87, 0x67, 0x01} // 1.1.1.999.1
	defaultCalledAEQualifier  = byte(0x0C)
	defaultCallingAPTitle     = []byte{0x06, 0x04, 0x29, 0x01, 0x87, 0x67} // 1.1.1.999
	defaultCallingAEQualifier = byte(0x0C)
	applicationContextMMS     = []byte{0x06, 0x05, 0x28, 0xca, 0x22, 0x02, 0x03} // 1.0.9506.2.3
)

// indirectReference is the fixed indirect-reference this client uses
// inside Association-data (INTEGER 3), matching the reference capture.
const indirectReference = 3

// resultAccepted is the ACSE result value meaning the association was
// accepted.
const resultAccepted = 0

// ACSEPDU is a decoded AARQ or AARE.
type ACSEPDU struct {
	Type                   byte
	ApplicationContextName []byte
	Result                 byte // AARE only
	HasResult              bool
	ResultSourceDiagnostic []byte
	// Data is the MMS PDU embedded in Association-data's encoding.
	Data []byte
}

func (p *ACSEPDU) String() string {
	if p == nil {
		return "<nil ACSE PDU>"
	}
	name := "AARQ"
	if p.Type == TagAARE {
		name = "AARE"
	}
	return fmt.Sprintf("%s{result=%d, data=%d bytes}", name, p.Result, len(p.Data))
}

// decodeBERLength / encodeBERLength / berTLV mirror the presentation
// package's minimal standard-BER helpers; ACSE needs the same tag+length
// walking and nothing else.
func decodeBERLength(buf []byte, pos int) (length int, consumed int, err error) {
	if pos >= len(buf) {
		return 0, 0, &errs.ProtocolError{Layer: "acse", Detail: "truncated length field"}
	}
	first := buf[pos]
	if first&0x80 == 0 {
		return int(first), 1, nil
	}
	n := int(first & 0x7F)
	if n == 0 || pos+1+n > len(buf) {
		return 0, 0, &errs.ProtocolError{Layer: "acse", Detail: "truncated long-form length"}
	}
	for i := 0; i < n; i++ {
		length = length<<8 | int(buf[pos+1+i])
	}
	return length, 1 + n, nil
}

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

func berTLV(buf []byte, pos int) (tag byte, value []byte, next int, err error) {
	if pos >= len(buf) {
		return 0, nil, 0, &errs.ProtocolError{Layer: "acse", Detail: "truncated TLV tag"}
	}
	tag = buf[pos]
	length, consumed, err := decodeBERLength(buf, pos+1)
	if err != nil {
		return 0, nil, 0, err
	}
	start := pos + 1 + consumed
	if start+length > len(buf) {
		return 0, nil, 0, &errs.ProtocolError{Layer: "acse", Detail: fmt.Sprintf("tag 0x%02X length exceeds buffer", tag)}
	}
	return tag, buf[start : start+length], start + length, nil
}

func wrapTLV(tag byte, body []byte) []byte {
	out := append([]byte{tag}, encodeBERLength(len(body))...)
	return append(out, body...)
}

// buildAssociationData wraps an MMS PDU in the Association-data EXTERNAL
// value: indirect-reference INTEGER + encoding single-ASN1-type. The
// wire tag for Association-data is the universal EXTERNAL tag
// (ber.ExternalConstructed, 0x28), not an Application-class tag.
func buildAssociationData(mmsPdu []byte) []byte {
	body := wrapTLV(0x02, []byte{indirectReference})
	body = append(body, wrapTLV(0xA0, mmsPdu)...)
	return wrapTLV(byte(ber.ExternalConstructed), body)
}

// parseAssociationData is the inverse of buildAssociationData: it
// extracts the encoding (single-ASN1-type) value carrying the MMS PDU,
// ignoring the indirect-reference (this client only ever associates to
// one peer per connection, so it has no use for distinguishing refs).
func parseAssociationData(data []byte) ([]byte, error) {
	_, body, _, err := berTLV(data, 0)
	if err != nil {
		return nil, err
	}
	pos := 0
	var encoding []byte
	for pos < len(body) {
		tag, value, next, err := berTLV(body, pos)
		if err != nil {
			return nil, err
		}
		if tag == 0xA0 {
			encoding = value
		}
		pos = next
	}
	if encoding == nil {
		return nil, &errs.ProtocolError{Layer: "acse", Detail: "Association-data missing encoding"}
	}
	return encoding, nil
}

// AARQParams configures BuildAARQ beyond the fixed application-context and
// indirect-reference shape the teacher originally hardcoded.
type AARQParams struct {
	CalledAPTitle      []byte
	CalledAEQualifier  byte
	CallingAPTitle     []byte
	CallingAEQualifier byte
	UserData           []byte
}

// DefaultAARQParams returns the AP-title/AE-qualifier pair this client
// presents by default, matching the reference association capture.
func DefaultAARQParams(userData []byte) AARQParams {
	return AARQParams{
		CalledAPTitle:      defaultCalledAPTitle,
		CalledAEQualifier:  defaultCalledAEQualifier,
		CallingAPTitle:     defaultCallingAPTitle,
		CallingAEQualifier: defaultCallingAEQualifier,
		UserData:           userData,
	}
}

// BuildAARQ builds an AARQ PDU proposing the MMS application context,
// the default AP-title/AE-qualifier pair, and userData (an MMS
// Initiate-RequestPDU) wrapped as Association-data user-information.
// Use BuildAARQWithParams to override the AP-title/AE-qualifier.
func BuildAARQ(userData []byte) []byte {
	return BuildAARQWithParams(DefaultAARQParams(userData))
}

// BuildAARQWithParams is BuildAARQ generalized to accept caller-chosen
// AP-titles and AE-qualifiers.
func BuildAARQWithParams(params AARQParams) []byte {
	body := wrapTLV(0xA1, applicationContextMMS)
	body = append(body, wrapTLV(0xA2, params.CalledAPTitle)...)
	body = append(body, wrapTLV(0xA3, wrapTLV(0x02, []byte{params.CalledAEQualifier}))...)
	body = append(body, wrapTLV(0xA6, params.CallingAPTitle)...)
	body = append(body, wrapTLV(0xA7, wrapTLV(0x02, []byte{params.CallingAEQualifier}))...)
	body = append(body, wrapTLV(0xBE, buildAssociationData(params.UserData))...)
	return wrapTLV(TagAARQ, body)
}

// ParseACSEPDU decodes an AARQ or AARE PDU. For an AARE whose result is
// not "accepted", it returns errs.AssociationRejected rather than a
// generic protocol error, so callers can distinguish a negotiation
// refusal from a malformed packet.
func ParseACSEPDU(data []byte) (*ACSEPDU, error) {
	if len(data) < 2 {
		return nil, &errs.ProtocolError{Layer: "acse", Detail: "PDU too short"}
	}
	tag, body, _, err := berTLV(data, 0)
	if err != nil {
		return nil, err
	}
	if tag != TagAARQ && tag != TagAARE {
		return nil, &errs.ProtocolError{Layer: "acse", Detail: fmt.Sprintf("unexpected ACSE tag 0x%02X", tag)}
	}
	pdu := &ACSEPDU{Type: tag}

	pos := 0
	for pos < len(body) {
		itemTag, value, next, err := berTLV(body, pos)
		if err != nil {
			return nil, err
		}
		switch itemTag {
		case 0xA1: // application-context-name
			pdu.ApplicationContextName = value
		case 0xA2: // result (AARE)
			if _, intVal, _, err := berTLV(value, 0); err == nil && len(intVal) > 0 {
				pdu.Result = intVal[len(intVal)-1]
				pdu.HasResult = true
			}
		case 0xA3: // result-source-diagnostic (AARE)
			pdu.ResultSourceDiagnostic = value
		case 0xBE: // user-information
			mmsPdu, err := parseAssociationData(value)
			if err != nil {
				return nil, err
			}
			pdu.Data = mmsPdu
		}
		pos = next
	}

	if tag == TagAARE && pdu.HasResult && pdu.Result != resultAccepted {
		return nil, &errs.AssociationRejected{
			Source:     sourceFromDiagnostic(pdu.ResultSourceDiagnostic),
			Diagnostic: fmt.Sprintf("result=%d", pdu.Result),
		}
	}
	return pdu, nil
}

// sourceFromDiagnostic reports which side of the association the
// result-source-diagnostic blames: acse-service-user (a1) or
// acse-service-provider (a2), per ISO 8650.
func sourceFromDiagnostic(diag []byte) string {
	if len(diag) == 0 {
		return "unknown"
	}
	switch diag[0] {
	case 0xA1:
		return "acse-service-user"
	case 0xA2:
		return "acse-service-provider"
	default:
		return "unknown"
	}
}
