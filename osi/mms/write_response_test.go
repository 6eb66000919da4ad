package mms

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseWriteResponseSuccess(t *testing.T) {
	// a0 09             - confirmed-ResponsePDU
	//    02 01 07       - invokeID = 7
	//    a5 04          - confirmedServiceResponse: write
	//       30 02       - listOfAccessResult (SEQUENCE)
	//          81 00    - success (NULL)
	buffer := parseHexString("a0090201 07 a5043002 8100")
	resp, err := ParseWriteResponse(buffer)
	require.NoError(t, err)
	assert.Equal(t, uint32(7), resp.InvokeID)
	assert.True(t, resp.Success)
	assert.Nil(t, resp.Error)
}

func TestParseWriteResponseFailure(t *testing.T) {
	// a0 09
	//    02 01 07
	//    a5 04
	//       30 02
	//          80 00    - failure (DataAccessError, length 0 -> code 0)
	buffer := parseHexString("a0090201 07 a5043002 8000")
	resp, err := ParseWriteResponse(buffer)
	require.NoError(t, err)
	assert.Equal(t, uint32(7), resp.InvokeID)
	assert.False(t, resp.Success)
	require.NotNil(t, resp.Error)
	assert.Equal(t, DataAccessErrorCode(0), resp.Error.ErrorCode)
}

func TestParseWriteResponseEmptyBuffer(t *testing.T) {
	_, err := ParseWriteResponse(nil)
	assert.Error(t, err)
}

func TestWriteResponseString(t *testing.T) {
	success := WriteResponse{InvokeID: 1, Success: true}
	assert.Contains(t, success.String(), "Success")

	failure := WriteResponse{InvokeID: 2, Error: &DataAccessError{ErrorCode: ObjectAccessDenied}}
	assert.Contains(t, failure.String(), "Error")
}
