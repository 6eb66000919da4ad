package mms

import (
	"testing"
	"time"

	"github.com/mms61850/goiec61850/osi/mms/variant"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriteRequestBytesEncodesHeaderAndInvokeID(t *testing.T) {
	req := NewWriteRequest(7, "domain", "item", variant.NewBooleanVariant(true))
	data, err := req.Bytes()
	require.NoError(t, err)
	require.NotEmpty(t, data)
	assert.Equal(t, byte(0xA0), data[0], "confirmed-RequestPDU tag")
	assert.Equal(t, byte(0x02), data[2], "invokeID tag follows immediately")
	assert.Equal(t, byte(0x07), data[4], "invokeID value")
}

func TestEncodeDataValueBoolean(t *testing.T) {
	got, err := encodeDataValue(variant.NewBooleanVariant(true))
	require.NoError(t, err)
	assert.Equal(t, []byte{0x83, 0x01, 0xFF}, got)

	got, err = encodeDataValue(variant.NewBooleanVariant(false))
	require.NoError(t, err)
	assert.Equal(t, []byte{0x83, 0x01, 0x00}, got)
}

func TestEncodeDataValueVisibleString(t *testing.T) {
	got, err := encodeDataValue(variant.NewVisibleStringVariant("abc"))
	require.NoError(t, err)
	assert.Equal(t, []byte{0x8A, 0x03, 'a', 'b', 'c'}, got)
}

func TestEncodeDataValueFloatingPoint(t *testing.T) {
	got, err := encodeDataValue(variant.NewFloat32Variant(1.5))
	require.NoError(t, err)
	require.Len(t, got, 7)
	assert.Equal(t, byte(0x87), got[0])
	assert.Equal(t, byte(0x05), got[1])
	assert.Equal(t, byte(0x08), got[2])
}

func TestEncodeDataValueInteger(t *testing.T) {
	got, err := encodeDataValue(variant.NewInt32Variant(1))
	require.NoError(t, err)
	assert.Equal(t, []byte{0x85, 0x01, 0x01}, got)
}

func TestEncodeDataValueNilDefaultsToFalse(t *testing.T) {
	got, err := encodeDataValue(nil)
	require.NoError(t, err)
	assert.Equal(t, []byte{0x83, 0x01, 0x00}, got)
}

func TestEncodeDataValueUTCTimeRoundTripsThroughParseUTCTime(t *testing.T) {
	when := time.Date(2024, time.March, 2, 10, 30, 0, 500_000_000, time.UTC)
	got, err := encodeDataValue(variant.NewUTCTimeVariant(when))
	require.NoError(t, err)
	require.Len(t, got, 10)
	assert.Equal(t, byte(0x91), got[0])
	assert.Equal(t, byte(0x08), got[1])

	decoded, err := parseUTCTime(got[2:], 8)
	require.NoError(t, err)
	assert.Equal(t, when.Unix(), decoded.Unix())
}

// encodeDataValue's default branch (an unrecognized variant.Type) has no
// exercisable case through the public variant constructors: every Type
// variant.go defines (Float32, Int32, UTCTime, BitString, Boolean,
// VisibleString) returns a value, not an error, and all of them except
// BitString are exercised by the tests above. The default branch exists defensively, returning a
// *errs.ProtocolError instead of panicking, in case variant.go ever grows
// a type this writer hasn't been taught to encode yet.
