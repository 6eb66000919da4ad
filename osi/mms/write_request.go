package mms

import (
	"encoding/binary"
	"fmt"
	"math"
	"time"

	"github.com/mms61850/goiec61850/ber"
	"github.com/mms61850/goiec61850/errs"
	"github.com/mms61850/goiec61850/osi/mms/variant"
)

// WriteRequest представляет MMS Write Request PDU для одной переменной.
// Структура согласно ISO/IEC 9506-2:
//
//	confirmed-RequestPDU ::= SEQUENCE {
//	  invokeID            [0] IMPLICIT Unsigned32,
//	  confirmedServiceRequest [1] CHOICE {
//	    write [5] Write-Request
//	  }
//	}
//
//	Write-Request ::= SEQUENCE {
//	  variableAccessSpecification [0] CHOICE {
//	    listOfVariable [0] SEQUENCE OF VariableAccessSpecification
//	  },
//	  listOfData [1] SEQUENCE OF Data
//	}
type WriteRequest struct {
	InvokeID uint32
	DomainID string
	ItemID   string
	Value    *variant.Variant
}

// NewWriteRequest создаёт новый WriteRequest для одной переменной.
func NewWriteRequest(invokeID uint32, domainID, itemID string, value *variant.Variant) *WriteRequest {
	return &WriteRequest{
		InvokeID: invokeID,
		DomainID: domainID,
		ItemID:   itemID,
		Value:    value,
	}
}

// Bytes кодирует WriteRequest в BER-кодированный пакет MMS confirmed-RequestPDU.
// Структура следует тому же профилю, что и ReadRequest: confirmed-RequestPDU
// (a0) с invokeID, за которым идёт write service request (a5). It returns
// an error rather than encoding a malformed PDU when r.Value carries a
// variant type this writer does not know how to represent on the wire.
func (r *WriteRequest) Bytes() ([]byte, error) {
	buffer := make([]byte, 512)
	bufPos := 0

	innerContent, err := r.buildRequestContent()
	if err != nil {
		return nil, err
	}

	bufPos = ber.EncodeTL(ber.ContextSpecific0Constructed, uint32(len(innerContent)), buffer, bufPos)
	copy(buffer[bufPos:], innerContent)
	bufPos += len(innerContent)

	return buffer[:bufPos], nil
}

func (r *WriteRequest) buildRequestContent() ([]byte, error) {
	buffer := make([]byte, 512)
	bufPos := 0

	tempBuf := make([]byte, 256)
	tempPos := ber.EncodeUInt32(r.InvokeID, tempBuf, 0)
	intValue := tempBuf[0:tempPos]
	bufPos = ber.EncodeTL(ber.Integer, uint32(len(intValue)), buffer, bufPos)
	copy(buffer[bufPos:], intValue)
	bufPos += len(intValue)

	writeContent, err := r.buildWriteServiceRequest()
	if err != nil {
		return nil, err
	}
	bufPos = ber.EncodeTL(ber.ContextSpecific5Constructed, uint32(len(writeContent)), buffer, bufPos)
	copy(buffer[bufPos:], writeContent)
	bufPos += len(writeContent)

	return buffer[:bufPos], nil
}

// buildWriteServiceRequest собирает variableAccessSpecification и listOfData.
func (r *WriteRequest) buildWriteServiceRequest() ([]byte, error) {
	buffer := make([]byte, 512)
	bufPos := 0

	accessSpec := r.buildVariableAccessSpecification()
	bufPos = ber.EncodeTL(ber.ContextSpecific0Constructed, uint32(len(accessSpec)), buffer, bufPos)
	copy(buffer[bufPos:], accessSpec)
	bufPos += len(accessSpec)

	dataValue, err := encodeDataValue(r.Value)
	if err != nil {
		return nil, err
	}
	lodBuf := make([]byte, 256)
	lodPos := ber.EncodeTL(ber.ContextSpecific1Constructed, uint32(len(dataValue)), lodBuf, 0)
	copy(lodBuf[lodPos:], dataValue)
	lodPos += len(dataValue)
	bufPos += copy(buffer[bufPos:], lodBuf[:lodPos])

	return buffer[:bufPos], nil
}

// buildVariableAccessSpecification собирает listOfVariable со списком из
// одного VariableAccessSpecification (domain-specific ObjectName).
func (r *WriteRequest) buildVariableAccessSpecification() []byte {
	buffer := make([]byte, 512)
	bufPos := 0

	variableSpec := r.buildVariableSpecification()
	seqBuf := make([]byte, 256)
	seqPos := ber.EncodeTL(ber.SequenceConstructed, uint32(len(variableSpec)), seqBuf, 0)
	copy(seqBuf[seqPos:], variableSpec)
	seqPos += len(variableSpec)

	bufPos = ber.EncodeTL(ber.ContextSpecific0Constructed, uint32(seqPos), buffer, bufPos)
	copy(buffer[bufPos:], seqBuf[:seqPos])
	bufPos += seqPos

	return buffer[:bufPos]
}

func (r *WriteRequest) buildVariableSpecification() []byte {
	buffer := make([]byte, 512)
	bufPos := 0

	nameContent := r.buildObjectName()
	bufPos = ber.EncodeTL(ber.ContextSpecific0Constructed, uint32(len(nameContent)), buffer, bufPos)
	copy(buffer[bufPos:], nameContent)
	bufPos += len(nameContent)

	return buffer[:bufPos]
}

func (r *WriteRequest) buildObjectName() []byte {
	buffer := make([]byte, 512)
	bufPos := 0

	domainSpecificContent := r.buildDomainSpecificName()
	bufPos = ber.EncodeTL(ber.ContextSpecific1Constructed, uint32(len(domainSpecificContent)), buffer, bufPos)
	copy(buffer[bufPos:], domainSpecificContent)
	bufPos += len(domainSpecificContent)

	return buffer[:bufPos]
}

func (r *WriteRequest) buildDomainSpecificName() []byte {
	buffer := make([]byte, 512)
	bufPos := 0

	bufPos = ber.EncodeStringWithTag(ber.VisibleString, r.DomainID, buffer, bufPos)
	bufPos = ber.EncodeStringWithTag(ber.VisibleString, r.ItemID, buffer, bufPos)

	return buffer[:bufPos]
}

// Data value tags this client writes, matching the wire tags
// ParseReadResponse already expects for the same leaf types (0x84
// bit-string, 0x85 integer, 0x87 floating-point, 0x91 utc-time), plus
// boolean (0x83) and visible-string (0x8A) for the two types the Write
// service adds.
const (
	dataTagBoolean       = 0x83
	dataTagBitString     = 0x84
	dataTagInteger       = 0x85
	dataTagFloatingPoint = 0x87
	dataTagVisibleString = 0x8A
	dataTagUTCTime       = 0x91
)

// encodeDataValue encodes a single MMS Data value for listOfData. It
// returns a *errs.ProtocolError, rather than panicking, for a variant
// type this writer does not have an encoding for.
func encodeDataValue(v *variant.Variant) ([]byte, error) {
	if v == nil {
		return []byte{dataTagBoolean, 0x01, 0x00}, nil
	}
	switch v.Type() {
	case variant.Boolean:
		val := byte(0x00)
		if v.Boolean() {
			val = 0xFF
		}
		return []byte{dataTagBoolean, 0x01, val}, nil
	case variant.Int32:
		return encodeIntegerDataValue(v.Int32()), nil
	case variant.Float32:
		return encodeFloatingPointDataValue(v.Float32()), nil
	case variant.VisibleString:
		s := v.VisibleString()
		body := []byte{dataTagVisibleString, byte(len(s))}
		return append(body, s...), nil
	case variant.BitString:
		bs := v.BitString()
		padding := byte(len(bs.Data)*8 - bs.BitSize)
		body := []byte{dataTagBitString, byte(len(bs.Data) + 1), padding}
		return append(body, bs.Data...), nil
	case variant.UTCTime:
		return encodeUTCTimeDataValue(v.Time()), nil
	default:
		return nil, &errs.ProtocolError{Layer: "mms", Detail: fmt.Sprintf("unsupported variant type for write: %s", v.Type())}
	}
}

func encodeIntegerDataValue(value int32) []byte {
	tmp := make([]byte, 4)
	binary.BigEndian.PutUint32(tmp, uint32(value))
	n := ber.CompressInteger(tmp)
	valueBytes := tmp[:n]
	return append([]byte{dataTagInteger, byte(len(valueBytes))}, valueBytes...)
}

func encodeFloatingPointDataValue(value float32) []byte {
	body := make([]byte, 5)
	body[0] = 0x08 // IEEE 754 single precision, per ParseReadResponse's parseFloatingPoint
	binary.BigEndian.PutUint32(body[1:], math.Float32bits(value))
	return append([]byte{dataTagFloatingPoint, byte(len(body))}, body...)
}

// encodeUTCTimeDataValue encodes value as the 8-byte utc-time wire form
// parseUTCTime decodes: 4-byte big-endian seconds since the Unix epoch,
// 3-byte fraction-of-second in units of 1/2^24s, and a trailing
// time-quality byte (always 0, unspecified accuracy/clock-not-synced).
func encodeUTCTimeDataValue(value time.Time) []byte {
	body := make([]byte, 8)
	binary.BigEndian.PutUint32(body[0:4], uint32(value.Unix()))
	fraction := uint32(uint64(value.Nanosecond()) * 0x1000000 / 1_000_000_000)
	body[4] = byte(fraction >> 16)
	body[5] = byte(fraction >> 8)
	body[6] = byte(fraction)
	body[7] = 0x00
	return append([]byte{dataTagUTCTime, byte(len(body))}, body...)
}
