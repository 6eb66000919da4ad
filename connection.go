// Package goiec61850 drives one IEC 61850 MMS client connection end to
// end: the nested CR/CC -> CN/AC -> CP/CPA -> AARQ/AARE -> Initiate
// handshake, a single-writer send path, a background reader that
// demultiplexes MMS PDUs by invocation id, and the request/response
// surface a façade uses to issue Read/Write/GetVariableAccessAttributes
// calls once Established.
package goiec61850

import (
	"context"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/mms61850/goiec61850/errs"
	"github.com/mms61850/goiec61850/logger"
	"github.com/mms61850/goiec61850/osi/acse"
	"github.com/mms61850/goiec61850/osi/cotp"
	"github.com/mms61850/goiec61850/osi/mms"
	"github.com/mms61850/goiec61850/osi/mms/variant"
	"github.com/mms61850/goiec61850/osi/presentation"
	"github.com/mms61850/goiec61850/osi/session"
)

// State is the connection's position in its strictly-forward lifecycle.
type State int

const (
	StateIdle State = iota
	StateTcpConnecting
	StateCotpHandshake
	StateSessionHandshake
	StatePresentationHandshake
	StateAcseHandshake
	StateMmsInitiate
	StateEstablished
	StateClosing
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "Idle"
	case StateTcpConnecting:
		return "TcpConnecting"
	case StateCotpHandshake:
		return "CotpHandshake"
	case StateSessionHandshake:
		return "SessionHandshake"
	case StatePresentationHandshake:
		return "PresentationHandshake"
	case StateAcseHandshake:
		return "AcseHandshake"
	case StateMmsInitiate:
		return "MmsInitiate"
	case StateEstablished:
		return "Established"
	case StateClosing:
		return "Closing"
	case StateClosed:
		return "Closed"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// defaultPort is the registered MMS server port (ISO 8802/OSI over TCP).
const defaultPort = 102

// defaultPresentationSelector and defaultMmsMaxServices mirror the values
// osi/presentation and osi/mms/initiate_request.go propose when a caller
// leaves the corresponding Config field unset.
var defaultPresentationSelector = []byte{0x00, 0x00, 0x00, 0x01}

const defaultMmsMaxServices = 5

// Config configures Connect. Zero-value fields take the defaults listed
// per field.
type Config struct {
	Host string
	Port int // default 102

	LocalTSelector  []byte // default {0, 1}
	RemoteTSelector []byte // default {0, 1}

	LocalPresentationSelector  []byte // default {0,0,0,1}
	RemotePresentationSelector []byte // default {0,0,0,1}

	// LocalAPTitle/RemoteAPTitle are OID-encoded AP-titles (BER "06 <len>
	// <arcs>") this client presents during the ACSE handshake. A nil
	// value keeps acse.BuildAARQ's default AP-title/AE-qualifier pair.
	LocalAPTitle      []byte
	LocalAEQualifier  byte
	RemoteAPTitle     []byte
	RemoteAEQualifier byte

	MaxTpduSize int // default 8192, clamped [128, 8192]

	// MmsMaxServices bounds the proposed-max-serv-outstanding-calling/
	// called parameters of the MMS Initiate request (default 5,
	// matching mms.DefaultInitiateRequestParams). A bound that
	// InitiateOptions sets explicitly overrides this value for that
	// bound only; the other bound still takes MmsMaxServices.
	MmsMaxServices  int
	InitiateOptions []mms.InitiateRequestOption

	// CotpTimeout bounds the CR/CC exchange. SessionTimeout,
	// PresentationTimeout and AcseTimeout are summed into one budget for
	// the single send that carries all nested handshake PDUs (see
	// handshakeSendTimeout); MmsInitiateTimeout bounds receiving the
	// nested accept chain. Zero takes the listed default; ConnectTimeout
	// remains the overall ceiling applied to the whole Connect call.
	CotpTimeout         time.Duration // default 2s, COTP CR/CC
	SessionTimeout      time.Duration // default 2s, Session CN/AC
	PresentationTimeout time.Duration // default 2s, Presentation CP/CPA
	AcseTimeout         time.Duration // default 2s, ACSE AARQ/AARE
	MmsInitiateTimeout  time.Duration // default 3s, MMS Initiate exchange

	ConnectTimeout time.Duration // default 5s, bounds the whole handshake
	RequestTimeout time.Duration // default 10s, per Connection.Request call
	ReportSink     mms.ReportSink
	Logger         logger.Logger
}

func (c Config) withDefaults() Config {
	if c.Port == 0 {
		c.Port = defaultPort
	}
	if len(c.LocalTSelector) == 0 {
		c.LocalTSelector = []byte{0, 1}
	}
	if len(c.RemoteTSelector) == 0 {
		c.RemoteTSelector = []byte{0, 1}
	}
	if len(c.LocalPresentationSelector) == 0 {
		c.LocalPresentationSelector = defaultPresentationSelector
	}
	if len(c.RemotePresentationSelector) == 0 {
		c.RemotePresentationSelector = defaultPresentationSelector
	}
	if c.MmsMaxServices == 0 {
		c.MmsMaxServices = defaultMmsMaxServices
	}
	if c.CotpTimeout == 0 {
		c.CotpTimeout = 2 * time.Second
	}
	if c.SessionTimeout == 0 {
		c.SessionTimeout = 2 * time.Second
	}
	if c.PresentationTimeout == 0 {
		c.PresentationTimeout = 2 * time.Second
	}
	if c.AcseTimeout == 0 {
		c.AcseTimeout = 2 * time.Second
	}
	if c.MmsInitiateTimeout == 0 {
		c.MmsInitiateTimeout = 3 * time.Second
	}
	if c.ConnectTimeout == 0 {
		c.ConnectTimeout = 5 * time.Second
	}
	if c.RequestTimeout == 0 {
		c.RequestTimeout = 10 * time.Second
	}
	if c.Logger == nil {
		c.Logger = logger.NewLogger("connection")
	}
	return c
}

// initiateOptionsWithMaxServices prepends WithProposedMaxServOutstanding{
// Calling,Called} from Config.MmsMaxServices ahead of the caller-supplied
// InitiateOptions, so an explicit option in InitiateOptions (applied
// after, hence later in the functional-options chain) still wins.
func (c Config) initiateOptionsWithMaxServices() []mms.InitiateRequestOption {
	opts := []mms.InitiateRequestOption{
		mms.WithProposedMaxServOutstandingCalling(uint32(c.MmsMaxServices)),
		mms.WithProposedMaxServOutstandingCalled(uint32(c.MmsMaxServices)),
	}
	return append(opts, c.InitiateOptions...)
}

// Connection is one established MMS client connection: a TCP socket, the
// COTP connection layered on it, the MMS dispatcher correlating requests
// with responses, and the state machine recording handshake progress.
type Connection struct {
	cfg Config

	netConn  net.Conn
	cotpConn *cotp.Connection
	mmsConn  *mms.Client
	disp     *mms.Dispatcher

	writeMu sync.Mutex // serializes every send down the stack (single-writer discipline)
	stateMu sync.Mutex
	state   State

	readerDone chan struct{}
	closeOnce  sync.Once
}

// State reports the connection's current lifecycle state.
func (c *Connection) State() State {
	c.stateMu.Lock()
	defer c.stateMu.Unlock()
	return c.state
}

func (c *Connection) setState(s State) {
	c.stateMu.Lock()
	c.state = s
	c.stateMu.Unlock()
}

// Connect dials host:port and drives the full five-layer handshake:
// TCP connect, COTP CR/CC, Session CN/AC, Presentation CP/CPA (carrying
// the ACSE AARQ/AARE), and the MMS Initiate exchange riding inside it.
// It returns an Established Connection or the first handshake failure,
// having already torn down the socket in the failure case.
func Connect(ctx context.Context, cfg Config) (*Connection, error) {
	cfg = cfg.withDefaults()
	ctx, cancel := context.WithTimeout(ctx, cfg.ConnectTimeout)
	defer cancel()

	c := &Connection{cfg: cfg, state: StateIdle}

	c.setState(StateTcpConnecting)
	dialer := &net.Dialer{}
	netConn, err := dialer.DialContext(ctx, "tcp", fmt.Sprintf("%s:%d", cfg.Host, cfg.Port))
	if err != nil {
		c.setState(StateClosed)
		return nil, &errs.TransportError{Op: "dial", Err: err}
	}
	c.netConn = netConn

	c.setState(StateCotpHandshake)
	cotpCtx, cancelCotp := context.WithTimeout(ctx, cfg.CotpTimeout)
	cotpConn, err := cotp.Connect(cotpCtx, netConn, cotp.Params{
		LocalTSelector:  cotp.TSelector{Value: cfg.LocalTSelector},
		RemoteTSelector: cotp.TSelector{Value: cfg.RemoteTSelector},
		MaxTpduSize:     cfg.MaxTpduSize,
	}, cotp.WithLogger(cfg.Logger))
	cancelCotp()
	if err != nil {
		c.abort()
		return nil, err
	}
	c.cotpConn = cotpConn
	c.mmsConn = mms.NewClient(cotpConn, cfg.Logger)
	c.disp = mms.NewDispatcher(cfg.ReportSink, cfg.Logger)

	if err := c.handshake(ctx); err != nil {
		c.abort()
		return nil, err
	}

	c.setState(StateEstablished)
	c.readerDone = make(chan struct{})
	go c.readLoop()
	return c, nil
}

// handshakeSendTimeout is the wire-level budget for the single
// SendData call carrying the nested Session CN / Presentation CP / ACSE
// AARQ / MMS Initiate-RequestPDU: since this profile encodes all four
// layers into one SPDU, there is no separate round trip per layer to
// bound individually, so the session/presentation/ACSE budgets are
// summed into the one send this phase actually performs.
func (c *Connection) handshakeSendTimeout() time.Duration {
	return c.cfg.SessionTimeout + c.cfg.PresentationTimeout + c.cfg.AcseTimeout
}

// handshake sends the Session CONNECT SPDU (carrying the Presentation
// CP, carrying the ACSE AARQ, carrying the MMS Initiate-RequestPDU) and
// parses the matching ACCEPT chain, parsing and logging the MMS
// InitiateResponse. This mirrors the nesting order the teacher's Initiate
// built by hand, generalized to run once as part of Connect rather than
// as a separate call the façade must remember to make.
func (c *Connection) handshake(ctx context.Context) error {
	c.setState(StateSessionHandshake)

	initiateReq := mms.NewInitiateRequest(c.cfg.initiateOptionsWithMaxServices()...)
	c.cfg.Logger.Debug("MMS InitiateRequest: %s", initiateReq)
	mmsPdu := initiateReq.Bytes()

	c.setState(StatePresentationHandshake)
	acseParams := acse.DefaultAARQParams(mmsPdu)
	if len(c.cfg.LocalAPTitle) > 0 {
		acseParams.CallingAPTitle = c.cfg.LocalAPTitle
		acseParams.CallingAEQualifier = c.cfg.LocalAEQualifier
	}
	if len(c.cfg.RemoteAPTitle) > 0 {
		acseParams.CalledAPTitle = c.cfg.RemoteAPTitle
		acseParams.CalledAEQualifier = c.cfg.RemoteAEQualifier
	}
	acsePdu := acse.BuildAARQWithParams(acseParams)

	c.setState(StateAcseHandshake)
	presentationPdu :=presentation.BuildCPTypeWithParams(presentation.CPParams{
		CallingPresentationSelector: c.cfg.LocalPresentationSelector,
		CalledPresentationSelector:  c.cfg.RemotePresentationSelector,
		UserData:                    acsePdu,
	})

	sessionPdu := session.BuildConnectSPDU(presentationPdu)

	sendCtx, cancelSend := context.WithTimeout(ctx, c.handshakeSendTimeout())
	err := c.cotpConn.SendData(sendCtx, sessionPdu)
	cancelSend()
	if err != nil {
		return err
	}

	c.setState(StateMmsInitiate)
	initiateCtx, cancelInitiate := context.WithTimeout(ctx, c.cfg.MmsInitiateTimeout)
	mmsData, err := c.mmsConn.ReceiveAndParseHandshakeResponse(initiateCtx)
	cancelInitiate()
	if err != nil {
		return err
	}
	if len(mmsData) == 0 {
		return &errs.ProtocolError{Layer: "mms", Detail: "Initiate response data is empty"}
	}
	initiateResp, err := mms.ParseInitiateResponse(mmsData)
	if err != nil {
		return err
	}
	c.cfg.Logger.Debug("MMS InitiateResponse: %s", initiateResp)
	return nil
}

// abort tears down a connection attempt that failed partway through the
// handshake: no waiters exist yet, so there is nothing for Close's
// fuller teardown to do beyond closing the socket.
func (c *Connection) abort() {
	c.setState(StateClosed)
	c.closeTransport()
}

// readLoop is the background reader: it owns the read half of the COTP
// connection exclusively, reassembling and classifying each MMS PDU and
// handing it to the dispatcher. It runs until ReceiveData fails (peer
// disconnect, Close closing the socket, or a protocol violation), at
// which point it tears the connection down.
func (c *Connection) readLoop() {
	defer close(c.readerDone)
	for {
		mmsData, err := c.mmsConn.ReceiveAndParseMmsResponse(context.Background())
		if err != nil {
			c.teardown(err)
			return
		}
		pdu, err := mms.ClassifyPDU(mmsData)
		if err != nil {
			c.cfg.Logger.Warn("dropping unclassifiable MMS PDU: %v", err)
			continue
		}
		c.disp.Dispatch(pdu)
	}
}

// send pushes an MMS PDU down through Presentation/Session/COTP,
// serialized against every other sender by writeMu (the single-writer
// discipline the concurrency model requires).
func (c *Connection) send(ctx context.Context, mmsPdu []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return c.mmsConn.SendMmsPdu(ctx, mmsPdu)
}

// Request submits a ConfirmedRequest built by buildPDU (given the
// allocated invokeId) and blocks until the matching response arrives, the
// request's own timeout elapses, or ctx is cancelled. It returns the raw
// response PDU bytes for the caller to decode into its service-specific
// response type.
func (c *Connection) Request(ctx context.Context, buildPDU func(invokeID uint32) ([]byte, error)) ([]byte, error) {
	if c.State() != StateEstablished {
		return nil, &errs.ProtocolError{Layer: "mms", Detail: "Request called before connection established"}
	}
	ctx, cancel := context.WithTimeout(ctx, c.cfg.RequestTimeout)
	defer cancel()

	return c.disp.Submit(ctx, func(invokeID uint32) error {
		pdu, err := buildPDU(invokeID)
		if err != nil {
			return err
		}
		return c.send(ctx, pdu)
	})
}

// ReadVariable issues a Read request for one domain/item variable and
// returns its decoded access result.
func (c *Connection) ReadVariable(ctx context.Context, domainID, itemID string) (mms.AccessResult, error) {
	var result mms.AccessResult
	raw, err := c.Request(ctx, func(invokeID uint32) ([]byte, error) {
		return mms.NewReadRequest(invokeID, domainID, itemID).Bytes(), nil
	})
	if err != nil {
		return result, err
	}
	resp, err := mms.ParseReadResponse(raw)
	if err != nil {
		return result, err
	}
	if len(resp.ListOfAccessResult) == 0 {
		return result, &errs.ProtocolError{Layer: "mms", Detail: "Read response carries no access results"}
	}
	return resp.ListOfAccessResult[0], nil
}

// WriteVariable issues a Write request for one domain/item variable.
func (c *Connection) WriteVariable(ctx context.Context, domainID, itemID string, value *variant.Variant) (mms.WriteResponse, error) {
	var result mms.WriteResponse
	raw, err := c.Request(ctx, func(invokeID uint32) ([]byte, error) {
		return mms.NewWriteRequest(invokeID, domainID, itemID, value).Bytes()
	})
	if err != nil {
		return result, err
	}
	return mms.ParseWriteResponse(raw)
}

// GetTypeSpecification issues a getVariableAccessAttributes request and
// returns the variable's decoded TypeSpecification.
func (c *Connection) GetTypeSpecification(ctx context.Context, domainID, itemID string) (*mms.TypeSpecification, error) {
	raw, err := c.Request(ctx, func(invokeID uint32) ([]byte, error) {
		return mms.NewGetVariableAccessAttributesRequest(invokeID, domainID, itemID).Bytes(), nil
	})
	if err != nil {
		return nil, err
	}
	resp, err := mms.ParseGetVariableAccessAttributesResponse(raw)
	if err != nil {
		return nil, err
	}
	return resp.TypeSpecification, nil
}

// Close tears the connection down idempotently: it marks Closing,
// completes every pending waiter with errs.ErrDisassociated, closes the
// socket, waits for the reader to exit, and marks Closed. It sends no
// MMS Conclude, Session Finish or COTP Disconnect Request to the peer
// before closing the socket.
func (c *Connection) Close() error {
	var err error
	c.closeOnce.Do(func() {
		err = c.closeOnceBody()
	})
	return err
}

func (c *Connection) closeOnceBody() error {
	c.setState(StateClosing)
	if c.disp != nil {
		c.disp.Close()
	}
	closeErr := c.closeTransport()
	if c.readerDone != nil {
		<-c.readerDone
	}
	c.setState(StateClosed)
	return closeErr
}

func (c *Connection) closeTransport() error {
	if c.cotpConn != nil {
		return c.cotpConn.Close()
	}
	if c.netConn != nil {
		return c.netConn.Close()
	}
	return nil
}

// teardown is the reader's failure path: it behaves like Close but is
// triggered by a read-side failure (peer disconnect, protocol error)
// rather than an explicit caller request. reason is logged, not
// returned, since the reader goroutine has no caller to return it to.
func (c *Connection) teardown(reason error) {
	c.cfg.Logger.Info("connection reader exiting: %v", reason)
	c.closeOnce.Do(func() {
		c.setState(StateClosing)
		if c.disp != nil {
			c.disp.Close()
		}
		c.closeTransport()
		c.setState(StateClosed)
	})
}
