package mms

import (
	"context"

	"github.com/mms61850/goiec61850/errs"
	"github.com/mms61850/goiec61850/logger"
	"github.com/mms61850/goiec61850/osi/acse"
	"github.com/mms61850/goiec61850/osi/cotp"
	"github.com/mms61850/goiec61850/osi/presentation"
	"github.com/mms61850/goiec61850/osi/session"
)

// Client drives one established COTP connection through the
// Session/Presentation wrapping this stack uses for every MMS exchange
// after association: outgoing MMS PDUs are wrapped Presentation ->
// Session -> COTP, incoming ones unwrapped COTP -> Session ->
// Presentation -> (ACSE | MMS).
type Client struct {
	cotpConn *cotp.Connection
	logger   logger.Logger
}

// NewClient wraps an already-connected COTP connection.
func NewClient(cotpConn *cotp.Connection, logger logger.Logger) *Client {
	return &Client{
		cotpConn: cotpConn,
		logger:   logger,
	}
}

// SendMmsPdu wraps an MMS PDU in the Presentation user-data envelope
// (context 3) and the Session give-tokens/data-transfer envelope, then
// sends it over the COTP connection.
func (c *Client) SendMmsPdu(ctx context.Context, mmsPdu []byte) error {
	presentationPdu := presentation.BuildUserData(mmsPdu, presentation.ContextIdMMS)
	sessionPdu := session.BuildDataTransferWithTokens(presentationPdu)
	return c.cotpConn.SendData(ctx, sessionPdu)
}

// ExtractMmsDataFromPresentation returns the MMS PDU carried in a
// decoded Presentation PDU, unwrapping one more ACSE layer when the
// presentation context is ACSE rather than MMS directly.
func (c *Client) ExtractMmsDataFromPresentation(presentationPdu *presentation.PresentationPDU) ([]byte, error) {
	switch presentationPdu.PresentationContextId {
	case presentation.ContextIdMMS:
		return presentationPdu.Data, nil
	case presentation.ContextIdACSE:
		if len(presentationPdu.Data) == 0 {
			return nil, &errs.ProtocolError{Layer: "mms", Detail: "presentation PDU data is empty"}
		}
		acsePdu, err := acse.ParseACSEPDU(presentationPdu.Data)
		if err != nil {
			return nil, err
		}
		if c.logger != nil {
			c.logger.Debug("  %s", acsePdu)
		}
		return acsePdu.Data, nil
	default:
		return nil, &errs.ProtocolError{Layer: "mms", Detail: "unknown presentation context id"}
	}
}

// ReceiveAndParseMmsResponse reads one reassembled COTP payload, unwraps
// it through the data-phase Session envelope (Give-Tokens+DT or bare DT)
// and Presentation, and returns the MMS PDU it carries. Used once the
// association is established; the CN/AC handshake uses
// ReceiveAndParseHandshakeResponse instead, since the peer's AC SPDU is
// not a data-phase SPDU and ParseDataTransfer rejects it.
func (c *Client) ReceiveAndParseMmsResponse(ctx context.Context) ([]byte, error) {
	payload, err := c.cotpConn.ReceiveData(ctx)
	if err != nil {
		return nil, err
	}
	if len(payload) == 0 {
		return nil, &errs.ProtocolError{Layer: "mms", Detail: "received empty COTP payload"}
	}

	sessionData, err := session.ParseDataTransfer(payload)
	if err != nil {
		return nil, err
	}
	return c.unwrapPresentation(sessionData)
}

// ReceiveAndParseHandshakeResponse reads one reassembled COTP payload
// expected to carry the Session ACCEPT (AC) SPDU that completes the
// CN/AC handshake, and returns the MMS InitiateResponse PDU carried in
// the user-information of the ACSE AARE nested inside its Presentation
// CPA.
func (c *Client) ReceiveAndParseHandshakeResponse(ctx context.Context) ([]byte, error) {
	payload, err := c.cotpConn.ReceiveData(ctx)
	if err != nil {
		return nil, err
	}
	if len(payload) == 0 {
		return nil, &errs.ProtocolError{Layer: "mms", Detail: "received empty COTP payload"}
	}

	spdu, err := session.ParseSessionSPDU(payload)
	if err != nil {
		return nil, err
	}
	switch spdu.Type {
	case session.SessionSPDUTypeAccept:
		return c.unwrapPresentation(spdu.Data)
	case session.SessionSPDUTypeFinish, session.SessionSPDUTypeDisconnect:
		return nil, errs.ErrDisassociated
	case session.SessionSPDUTypeAbort:
		return nil, &errs.Negotiation{Layer: "session", PeerReason: "session aborted during handshake"}
	case session.SessionSPDUTypeRefuse:
		return nil, &errs.Negotiation{Layer: "session", PeerReason: "session connect refused"}
	default:
		return nil, &errs.ProtocolError{Layer: "session", Detail: "unexpected SPDU type during handshake"}
	}
}

// unwrapPresentation parses a Session SPDU's UserData payload as a
// Presentation PDU (CPA or data-phase fully-encoded-data, either shape)
// and extracts the MMS/ACSE PDU it carries.
func (c *Client) unwrapPresentation(sessionData []byte) ([]byte, error) {
	if len(sessionData) == 0 {
		return nil, &errs.ProtocolError{Layer: "mms", Detail: "session SPDU data is empty"}
	}

	presentationPdu, err := presentation.ParsePresentationPDU(sessionData)
	if err != nil {
		return nil, err
	}
	if c.logger != nil {
		c.logger.Debug("  %s", presentationPdu)
	}

	return c.ExtractMmsDataFromPresentation(presentationPdu)
}
