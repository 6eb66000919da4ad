package mms

import (
	"fmt"

	"github.com/mms61850/goiec61850/ber"
	"github.com/mms61850/goiec61850/errs"
)

// PDU tags this client classifies incoming MMS payloads by, ISO/IEC
// 9506-2's outermost MMSpdu CHOICE.
const (
	TagInitiateRequestPDU  = 0xA8
	TagInitiateResponsePDU = 0xA9
	TagConfirmedRequestPDU = 0xA0
	TagConfirmedResponsePDU = 0xA1
	TagConfirmedErrorPDU   = 0xA2
	TagUnconfirmedPDU      = 0xA3
	TagRejectPDU           = 0xA4
	TagConcludeRequestPDU  = 0x8B
	TagConcludeResponsePDU = 0x8C
)

// ServiceTag identifies which confirmed service a ConfirmedRequest or
// ConfirmedResponse body carries, taken from the confirmedServiceRequest/
// confirmedServiceResponse CHOICE tag one level in.
type ServiceTag byte

const (
	ServiceRead                       ServiceTag = 0xA4
	ServiceWrite                      ServiceTag = 0xA5
	ServiceGetVariableAccessAttributes ServiceTag = 0xA6
)

// PDUKind classifies a decoded MMS PDU.
type PDUKind int

const (
	KindUnknown PDUKind = iota
	KindInitiateResponse
	KindConfirmedResponse
	KindConfirmedError
	KindUnconfirmed
	KindReject
	KindConcludeResponse
)

// DecodedPDU is the result of classifying a raw MMS PDU: its kind, the
// invocation id when the PDU carries one, and a Body: for confirmed
// responses and errors the full PDU, which the service-specific parsers
// take whole; for every other kind the content past the outer tag and
// length.
type DecodedPDU struct {
	Kind       PDUKind
	InvokeID   uint32
	HasInvoke  bool
	ServiceTag ServiceTag
	Body       []byte
	Raw        []byte

	// innerBody is the content past the outer tag+length (invokeId TLV
	// onward), before Body is widened to the full PDU for response
	// parsers that self-unwrap the outer wrapper. Only confirmedErrorToServiceError
	// uses this; everything else decodes from Body/Raw.
	innerBody []byte
}

// ClassifyPDU inspects an MMS PDU's outer tag (and, for confirmed PDUs,
// its invokeId and inner service tag) without fully decoding the service
// body, so the dispatcher can route it before any service-specific
// parser runs.
func ClassifyPDU(data []byte) (*DecodedPDU, error) {
	if len(data) < 2 {
		return nil, &errs.ProtocolError{Layer: "mms", Detail: "PDU too short"}
	}
	tag := data[0]
	bodyStart, length, err := ber.DecodeLength(data, 1, len(data))
	if err != nil {
		return nil, &errs.ProtocolError{Layer: "mms", Detail: "bad PDU length", Err: err}
	}
	if bodyStart+length > len(data) {
		return nil, &errs.ProtocolError{Layer: "mms", Detail: "PDU length exceeds buffer"}
	}
	body := data[bodyStart : bodyStart+length]

	pdu := &DecodedPDU{Raw: data}
	switch tag {
	case TagInitiateResponsePDU:
		pdu.Kind = KindInitiateResponse
		pdu.Body = body
		return pdu, nil
	case TagUnconfirmedPDU:
		pdu.Kind = KindUnconfirmed
		pdu.Body = body
		return pdu, nil
	case TagRejectPDU:
		pdu.Kind = KindReject
		pdu.Body = body
		pdu.InvokeID, pdu.HasInvoke = extractLeadingInvokeID(body)
		return pdu, nil
	case TagConcludeResponsePDU:
		pdu.Kind = KindConcludeResponse
		pdu.Body = body
		return pdu, nil
	case TagConfirmedResponsePDU:
		pdu.Kind = KindConfirmedResponse
	case TagConfirmedErrorPDU:
		pdu.Kind = KindConfirmedError
	default:
		return nil, &errs.ProtocolError{Layer: "mms", Detail: fmt.Sprintf("unhandled MMS PDU tag 0x%02X", tag)}
	}

	invokeID, ok := extractLeadingInvokeID(body)
	if !ok {
		return nil, &errs.ProtocolError{Layer: "mms", Detail: "confirmed PDU missing invokeId"}
	}
	pdu.InvokeID = invokeID
	pdu.HasInvoke = true
	pdu.innerBody = body
	pdu.Body = data // service parsers (ParseReadResponse etc.) expect the full PDU including invokeId
	if len(body) > 0 {
		// the byte right after the invokeId TLV is the service CHOICE tag
		if skip := invokeIDTLVLen(body); skip < len(body) {
			pdu.ServiceTag = ServiceTag(body[skip])
		}
	}
	return pdu, nil
}

// extractLeadingInvokeID reads the INTEGER invokeId TLV starting body[0],
// the shape every confirmed PDU and Reject PDU leads with.
func extractLeadingInvokeID(body []byte) (uint32, bool) {
	if len(body) < 2 || body[0] != byte(ber.Integer) {
		return 0, false
	}
	length := int(body[1])
	if 2+length > len(body) {
		return 0, false
	}
	return ber.DecodeUint32(body, length, 2), true
}

func invokeIDTLVLen(body []byte) int {
	if len(body) < 2 || body[0] != byte(ber.Integer) {
		return 0
	}
	return 2 + int(body[1])
}

// errorClassNames maps a ServiceError's errorClass CHOICE tag (context 0
// through 11) to the name ISO/IEC 9506-2 gives it.
var errorClassNames = map[byte]string{
	0xA0: "vmd-state", 0xA1: "application-reference", 0xA2: "definition",
	0xA3: "resource", 0xA4: "service", 0xA5: "service-preempt",
	0xA6: "time-resolution", 0xA7: "access", 0xA8: "initiate",
	0xA9: "conclude", 0xAA: "cancel", 0xAB: "others",
}

// confirmedErrorToServiceError decodes a ConfirmedErrorPDU's serviceError
// (context 2) into errs.ServiceError, walking past the leading invokeId
// TLV and an optional modifierPosition TLV (context 1).
func confirmedErrorToServiceError(pdu *DecodedPDU) error {
	body := pdu.innerBody
	pos := invokeIDTLVLen(body)
	for pos < len(body) {
		if pos+2 > len(body) {
			break
		}
		tag := body[pos]
		length := int(body[pos+1])
		if pos+2+length > len(body) {
			break
		}
		value := body[pos+2 : pos+2+length]
		if tag == 0xA2 { // serviceError
			class, code := decodeServiceErrorClass(value)
			return &errs.ServiceError{ServiceErrorClass: class, ServiceErrorCode: code}
		}
		pos += 2 + length
	}
	return &errs.ServiceError{ServiceErrorClass: "unknown", ServiceErrorCode: 0}
}

func decodeServiceErrorClass(value []byte) (string, int) {
	if len(value) < 3 {
		return "unknown", 0
	}
	tag := value[0]
	length := int(value[1])
	if 2+length > len(value) {
		return "unknown", 0
	}
	code := int(ber.DecodeUint32(value, length, 2))
	if name, ok := errorClassNames[tag]; ok {
		return name, code
	}
	return fmt.Sprintf("class-0x%02X", tag), code
}
