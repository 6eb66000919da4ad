package mms

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClassifyPDUConfirmedResponse(t *testing.T) {
	// a1 0e 02 01 01 a409 a107 8705 08 3d a8 83 7c - TestParseReadResponse's
	// first fixture under the confirmed-ResponsePDU tag a1
	data := parseHexString("a10e020101a409a1078705083da8837c")
	pdu, err := ClassifyPDU(data)
	require.NoError(t, err)
	assert.Equal(t, KindConfirmedResponse, pdu.Kind)
	assert.True(t, pdu.HasInvoke)
	assert.Equal(t, uint32(1), pdu.InvokeID)
	assert.Equal(t, ServiceRead, pdu.ServiceTag)
}

func TestClassifyPDUInitiateResponse(t *testing.T) {
	data := []byte{0xA9, 0x02, 0x80, 0x00}
	pdu, err := ClassifyPDU(data)
	require.NoError(t, err)
	assert.Equal(t, KindInitiateResponse, pdu.Kind)
	assert.False(t, pdu.HasInvoke)
}

func TestClassifyPDUUnconfirmed(t *testing.T) {
	data := []byte{0xA3, 0x02, 0xA0, 0x00}
	pdu, err := ClassifyPDU(data)
	require.NoError(t, err)
	assert.Equal(t, KindUnconfirmed, pdu.Kind)
}

func TestClassifyPDUTooShort(t *testing.T) {
	_, err := ClassifyPDU([]byte{0xA0})
	assert.Error(t, err)
}

func TestClassifyPDUUnknownTag(t *testing.T) {
	_, err := ClassifyPDU([]byte{0xFF, 0x00})
	assert.Error(t, err)
}

func TestClassifyPDUConfirmedErrorDecodesServiceError(t *testing.T) {
	// a2 08
	//    02 01 05    - invokeID = 5
	//    a2 03       - serviceError (SEQUENCE, content below)
	//       a4 01 01 - errorClass: service (IMPLICIT INTEGER), code = 1
	data := parseHexString("a208020105a203a40101")
	pdu, err := ClassifyPDU(data)
	require.NoError(t, err)
	assert.Equal(t, KindConfirmedError, pdu.Kind)
	assert.Equal(t, uint32(5), pdu.InvokeID)

	err2 := confirmedErrorToServiceError(pdu)
	require.Error(t, err2)
	assert.Equal(t, "mms service error: service(1)", err2.Error())
}
