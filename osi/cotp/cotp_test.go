package cotp

import (
	"bytes"
	"context"
	"encoding/hex"
	"net"
	"strings"
	"testing"
	"time"
)

func hexBytes(t *testing.T, s string) []byte {
	t.Helper()
	data, err := hex.DecodeString(strings.ReplaceAll(s, " ", ""))
	if err != nil {
		t.Fatalf("bad hex fixture: %v", err)
	}
	return data
}

// fakeConn is an io.ReadWriteCloser over a canned read buffer and a
// captured write buffer, standing in for the TCP socket.
type fakeConn struct {
	toRead  *bytes.Reader
	written bytes.Buffer
}

func (f *fakeConn) Read(p []byte) (int, error)  { return f.toRead.Read(p) }
func (f *fakeConn) Write(p []byte) (int, error) { return f.written.Write(p) }
func (f *fakeConn) Close() error                { return nil }

// Connection Confirm captured from a real association, TPDU size 0x0d
// (8192), src-ref=0x0001, dst-ref (our CR src-ref) = 0x0001.
const ccFixtureHex = "03 00 00 16 11 d0 00 01 00 01 00 c0 01 0d c2 02 00 01 c1 02 00 01"

func TestConnectParsesRealCC(t *testing.T) {
	conn := &fakeConn{toRead: bytes.NewReader(hexBytes(t, ccFixtureHex))}
	c, err := Connect(context.Background(), conn, Params{
		LocalTSelector:  TSelector{Value: []byte{0, 1}},
		RemoteTSelector: TSelector{Value: []byte{0, 1}},
	})
	if err != nil {
		t.Fatalf("Connect: %v", err)
	}
	if c.NegotiatedTpduSize() != 8192 {
		t.Errorf("NegotiatedTpduSize = %d, want 8192", c.NegotiatedTpduSize())
	}
	if c.remoteRef != 1 {
		t.Errorf("remoteRef = %d, want 1", c.remoteRef)
	}

	// what we sent should be a well-formed TPKT-wrapped CR.
	sent := conn.written.Bytes()
	if len(sent) < 4 || sent[0] != 0x03 {
		t.Fatalf("sent frame missing TPKT header: %x", sent)
	}
	if sent[5] != tpduCR {
		t.Errorf("sent TPDU type = 0x%02X, want CR 0x%02X", sent[5], tpduCR)
	}
}

func TestConnectRejectsWrongDstRef(t *testing.T) {
	// dst-ref = 0x0099 will never match our chosen src-ref (1).
	bad := hexBytes(t, "03 00 00 16 11 d0 00 99 00 01 00 c0 01 0d c2 02 00 01 c1 02 00 01")
	conn := &fakeConn{toRead: bytes.NewReader(bad)}
	if _, err := Connect(context.Background(), conn, Params{}); err == nil {
		t.Fatal("expected error for mismatched dst-ref")
	}
}

func TestSendDataFragmentsAndEOT(t *testing.T) {
	client, server := net.Pipe()
	defer client.Close()
	defer server.Close()

	c := NewConnection(client)
	c.state = csEstablished
	c.negotiatedTpdu = minTpduSize // force fragmentation across a small window

	payload := bytes.Repeat([]byte{0xAB}, 500)

	done := make(chan error, 1)
	go func() { done <- c.SendData(context.Background(), payload) }()

	received, err := readRawFragments(t, server)
	if err != nil {
		t.Fatalf("readRawFragments: %v", err)
	}
	if err := <-done; err != nil {
		t.Fatalf("SendData: %v", err)
	}

	if len(received) < 2 {
		t.Fatalf("expected fragmentation into multiple DT TPDUs, got %d", len(received))
	}
	var reassembled []byte
	for i, frag := range received {
		last := i == len(received)-1
		eot := frag[1]&eotFlag != 0
		if eot != last {
			t.Errorf("fragment %d EOT=%v, want %v (last=%v)", i, eot, last, last)
		}
		reassembled = append(reassembled, frag[2:]...)
	}
	if !bytes.Equal(reassembled, payload) {
		t.Fatalf("reassembled payload mismatch: got %d bytes, want %d", len(reassembled), len(payload))
	}
}

// readRawFragments drains DT TPDU bodies (type+EOT octet plus data) off the
// wire until EOT is seen, mirroring what ReceiveData does but keeping each
// fragment separate so the test can check EOT placement per-fragment.
func readRawFragments(t *testing.T, conn net.Conn) ([][]byte, error) {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var fragments [][]byte
	for {
		header := make([]byte, 4)
		if _, err := readFullT(conn, header); err != nil {
			return nil, err
		}
		length := int(header[2])<<8 | int(header[3])
		body := make([]byte, length-4)
		if _, err := readFullT(conn, body); err != nil {
			return nil, err
		}
		// body[0] = LI, body[1] = type, body[2] = eot+tpdu-nr
		dtBody := body[1:]
		fragments = append(fragments, dtBody)
		if dtBody[1]&eotFlag != 0 {
			return fragments, nil
		}
	}
}

func readFullT(conn net.Conn, buf []byte) (int, error) {
	total := 0
	for total < len(buf) {
		n, err := conn.Read(buf[total:])
		total += n
		if err != nil {
			return total, err
		}
	}
	return total, nil
}

func TestReceiveDataReassembly(t *testing.T) {
	client, server := net.Pipe()
	defer client.Close()
	defer server.Close()

	c := NewConnection(server)
	c.state = csEstablished

	payload := bytes.Repeat([]byte{0xCD}, 300)
	senderConn := NewConnection(client)
	senderConn.state = csEstablished
	senderConn.negotiatedTpdu = minTpduSize

	go senderConn.SendData(context.Background(), payload)

	got, err := c.ReceiveData(context.Background())
	if err != nil {
		t.Fatalf("ReceiveData: %v", err)
	}
	if !bytes.Equal(got, payload) {
		t.Fatalf("reassembled mismatch: got %d bytes, want %d", len(got), len(payload))
	}
}
