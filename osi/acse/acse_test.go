package acse

import (
	"bytes"
	"encoding/hex"
	"strings"
	"testing"

	"github.com/mms61850/goiec61850/errs"
)

func hexBytes(t *testing.T, s string) []byte {
	t.Helper()
	data, err := hex.DecodeString(strings.ReplaceAll(s, " ", ""))
	if err != nil {
		t.Fatalf("bad hex fixture: %v", err)
	}
	return data
}

// aareFixtureHex is the AARE embedded in the captured CPA's user-data,
// carrying an MMS InitiateResponsePDU (tag 0xA9) as Association-data.
const aareFixtureHex = "61 46 a1 07 06 05 28 ca 22 02 03 a2 03 02 01 00 a3 05 a1 03 02 01 00 be 2f 28 2d 02 01 03 a0 28 a9 26 80 03 00 fd e8 81 01 05 82 01 05 83 01 0a a4 16 80 01 01 81 03 05 f1 00 82 0c 03 ee 1c 00 00 00 02 00 00 40 ed 18"

func TestParseACSEPDU_AARE(t *testing.T) {
	pdu, err := ParseACSEPDU(hexBytes(t, aareFixtureHex))
	if err != nil {
		t.Fatalf("ParseACSEPDU: %v", err)
	}
	if pdu.Type != TagAARE {
		t.Errorf("Type = 0x%02X, want AARE 0x%02X", pdu.Type, TagAARE)
	}
	if !pdu.HasResult || pdu.Result != resultAccepted {
		t.Errorf("Result = %v (has=%v), want accepted", pdu.Result, pdu.HasResult)
	}
	wantCtx := []byte{0x06, 0x05, 0x28, 0xca, 0x22, 0x02, 0x03}
	if !bytes.Equal(pdu.ApplicationContextName, wantCtx) {
		t.Errorf("ApplicationContextName = %x, want %x", pdu.ApplicationContextName, wantCtx)
	}
	if len(pdu.Data) != 40 {
		t.Fatalf("Data length = %d, want 40", len(pdu.Data))
	}
	if pdu.Data[0] != 0xA9 {
		t.Errorf("Data[0] = 0x%02X, want 0xA9 (InitiateResponsePDU)", pdu.Data[0])
	}
}

func TestParseACSEPDU_RejectedAARE(t *testing.T) {
	// Same shape as the fixture but result forced to 1 (rejected-permanent).
	rejected := hexBytes(t, "61 46 a1 07 06 05 28 ca 22 02 03 a2 03 02 01 01 a3 05 a1 03 02 01 00 be 2f 28 2d 02 01 03 a0 28 a9 26 80 03 00 fd e8 81 01 05 82 01 05 83 01 0a a4 16 80 01 01 81 03 05 f1 00 82 0c 03 ee 1c 00 00 00 02 00 00 40 ed 18")
	_, err := ParseACSEPDU(rejected)
	if err == nil {
		t.Fatal("expected AssociationRejected error")
	}
	var rejErr *errs.AssociationRejected
	if !asAssociationRejected(err, &rejErr) {
		t.Fatalf("expected *errs.AssociationRejected, got %T: %v", err, err)
	}
	if rejErr.Source != "acse-service-user" {
		t.Errorf("Source = %q, want acse-service-user", rejErr.Source)
	}
}

func asAssociationRejected(err error, target **errs.AssociationRejected) bool {
	if e, ok := err.(*errs.AssociationRejected); ok {
		*target = e
		return true
	}
	return false
}

func TestBuildAARQRoundTripsThroughParse(t *testing.T) {
	mmsInitiateRequest := []byte{0xA8, 0x03, 0x01, 0x02, 0x03} // stand-in payload
	aarq := BuildAARQ(mmsInitiateRequest)

	pdu, err := ParseACSEPDU(aarq)
	if err != nil {
		t.Fatalf("ParseACSEPDU(BuildAARQ(...)): %v", err)
	}
	if pdu.Type != TagAARQ {
		t.Errorf("Type = 0x%02X, want AARQ", pdu.Type)
	}
	if !bytes.Equal(pdu.Data, mmsInitiateRequest) {
		t.Errorf("Data = %x, want %x", pdu.Data, mmsInitiateRequest)
	}
}
