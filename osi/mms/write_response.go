package mms

import (
	"errors"
	"fmt"

	"github.com/mms61850/goiec61850/ber"
)

// WriteResponse представляет MMS Write Response PDU для одной переменной.
// Структура согласно ISO/IEC 9506-2:
//
//	Write-Response ::= SEQUENCE OF CHOICE {
//	  failure [0] DataAccessError,
//	  success [1] NULL
//	}
//
// Для одной переменной listOfAccessResult содержит ровно один элемент.
type WriteResponse struct {
	InvokeID uint32
	Success  bool
	Error    *DataAccessError
}

// ParseWriteResponse парсит MMS Write Response PDU из BER-кодированного буфера.
// Структура повторяет confirmed-ResponsePDU, но с write service tag (a5):
// a0/a1 <len> - confirmed-ResponsePDU
//
//	02 01 <id> - invokeID
//	a5 <len> - confirmedServiceResponse: write
//	   30 <len> - listOfAccessResult (SEQUENCE)
//	      81 00 - success (Context-specific 1, NULL)
//
// или с failure:
//
//	80 01 <code> - failure (Context-specific 0, DataAccessError)
func ParseWriteResponse(buffer []byte) (WriteResponse, error) {
	var response WriteResponse
	if len(buffer) == 0 {
		return response, errors.New("empty buffer")
	}

	bufPos := 0
	maxBufPos := len(buffer)
	if buffer[0] == 0xA0 || buffer[0] == 0xA1 {
		newPos, length, err := ber.DecodeLength(buffer, 1, maxBufPos)
		if err != nil {
			return response, fmt.Errorf("failed to decode length: %w", err)
		}
		bufPos = newPos
		if bufPos+length > maxBufPos {
			return response, errors.New("invalid length: exceeds buffer size")
		}
		maxBufPos = bufPos + length
	}

	for bufPos < maxBufPos {
		tag := buffer[bufPos]
		bufPos++

		newPos, length, err := ber.DecodeLength(buffer, bufPos, maxBufPos)
		if err != nil {
			return response, fmt.Errorf("failed to decode length for tag 0x%02x: %w", tag, err)
		}
		bufPos = newPos
		if bufPos+length > maxBufPos {
			return response, fmt.Errorf("invalid length for tag 0x%02x: exceeds buffer size", tag)
		}

		switch tag {
		case 0x02: // invokeID
			response.InvokeID = ber.DecodeUint32(buffer, length, bufPos)
			bufPos += length

		case 0xA5: // confirmedServiceResponse: write
			if err := parseWriteServiceResponse(buffer[bufPos:bufPos+length], &response); err != nil {
				return response, fmt.Errorf("failed to parse write service response: %w", err)
			}
			bufPos += length

		default:
			bufPos += length
		}
	}

	return response, nil
}

func parseWriteServiceResponse(buffer []byte, response *WriteResponse) error {
	bufPos := 0
	maxBufPos := len(buffer)

	if bufPos < maxBufPos && buffer[bufPos] == 0x30 {
		bufPos++
		newPos, length, err := ber.DecodeLength(buffer, bufPos, maxBufPos)
		if err != nil {
			return fmt.Errorf("failed to decode listOfAccessResult length: %w", err)
		}
		bufPos = newPos
		maxBufPos = bufPos + length
	}

	for bufPos < maxBufPos {
		tag := buffer[bufPos]
		bufPos++

		newPos, length, err := ber.DecodeLength(buffer, bufPos, maxBufPos)
		if err != nil {
			return fmt.Errorf("failed to decode length for tag 0x%02x: %w", tag, err)
		}
		bufPos = newPos
		if bufPos+length > maxBufPos {
			return fmt.Errorf("invalid length for tag 0x%02x: exceeds buffer size", tag)
		}

		switch tag {
		case 0x81: // success (Context-specific 1, NULL)
			response.Success = true
		case 0x80: // failure (Context-specific 0, DataAccessError)
			errorCode := DataAccessErrorCode(ber.DecodeUint32(buffer, length, bufPos))
			response.Error = &DataAccessError{ErrorCode: errorCode}
		}
		bufPos += length
	}

	return nil
}

// String возвращает строковое представление WriteResponse.
func (r *WriteResponse) String() string {
	if r.Success {
		return fmt.Sprintf("WriteResponse{InvokeID: %d, Success}", r.InvokeID)
	}
	if r.Error != nil {
		return fmt.Sprintf("WriteResponse{InvokeID: %d, Error(%s)}", r.InvokeID, r.Error.ErrorCode)
	}
	return fmt.Sprintf("WriteResponse{InvokeID: %d, <unknown>}", r.InvokeID)
}
