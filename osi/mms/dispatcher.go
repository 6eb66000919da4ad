package mms

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"golang.org/x/exp/maps"

	"github.com/mms61850/goiec61850/errs"
	"github.com/mms61850/goiec61850/logger"
)

// maxInvokeID is the wrap point for the monotonically increasing
// invocation id counter, 2^31-1 per the component's invocation
// correlation rule.
const maxInvokeID = 1<<31 - 1

// ReportSink receives Unconfirmed PDUs (InformationReport) the reader
// demultiplexes outside of any pending call. It is invoked sequentially
// from the reader; a slow sink applies backpressure to the connection.
type ReportSink interface {
	OnReport(body []byte)
}

// NopReportSink discards every report; the default when the caller
// supplies none.
type NopReportSink struct{}

func (NopReportSink) OnReport([]byte) {}

// waiter is the completion sink a pending call blocks on.
type waiter struct {
	done chan struct{}
	body []byte
	err  error
}

// Dispatcher owns invocation correlation for one connection: it assigns
// invokeIds, tracks one waiter per outstanding confirmed request, and
// demultiplexes every MMS PDU the reader decodes into either a waiter
// completion or a report-sink delivery.
type Dispatcher struct {
	mu         sync.Mutex
	nextInvoke uint32
	pending    map[uint32]*waiter
	sink       ReportSink
	log        logger.Logger
	closed     bool
}

// NewDispatcher creates a Dispatcher. A nil sink is replaced with
// NopReportSink.
func NewDispatcher(sink ReportSink, log logger.Logger) *Dispatcher {
	if sink == nil {
		sink = NopReportSink{}
	}
	if log == nil {
		log = logger.Nop
	}
	return &Dispatcher{
		pending: make(map[uint32]*waiter),
		sink:    sink,
		log:     log,
	}
}

// allocateInvokeID returns the next invokeId and registers a waiter for
// it, wrapping at maxInvokeID. ok is false once the dispatcher has been
// closed, so a Submit racing a concurrent Close does not register a
// waiter nobody will ever complete.
func (d *Dispatcher) allocateInvokeID() (id uint32, w *waiter, ok bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return 0, nil, false
	}
	id = d.nextInvoke
	d.nextInvoke++
	if d.nextInvoke > maxInvokeID {
		d.nextInvoke = 0
	}
	w = &waiter{done: make(chan struct{})}
	d.pending[id] = w
	return id, w, true
}

func (d *Dispatcher) removeWaiter(id uint32) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.pending, id)
}

// Submit allocates an invokeId, calls send with it to encode and write
// the request, then suspends until the matching response/error/reject
// arrives, ctx is cancelled, or the connection is closed. The caller is
// responsible for actually writing the encoded PDU inside send; Submit
// does not touch the transport itself.
func (d *Dispatcher) Submit(ctx context.Context, send func(invokeID uint32) error) ([]byte, error) {
	invokeID, w, ok := d.allocateInvokeID()
	if !ok {
		return nil, errs.ErrDisassociated
	}
	defer d.removeWaiter(invokeID)

	if err := send(invokeID); err != nil {
		return nil, err
	}

	select {
	case <-w.done:
		return w.body, w.err
	case <-ctx.Done():
		return nil, ctxErrToServiceCondition(ctx.Err())
	}
}

// ctxErrToServiceCondition translates a context cancellation into the
// taxonomy callers are expected to handle: a deadline elapsing is a
// per-request Timeout, an explicit cancellation is errs.ErrCancelled.
func ctxErrToServiceCondition(err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return &errs.Timeout{Phase: "request"}
	}
	return errs.ErrCancelled
}

// Dispatch classifies and routes one decoded MMS PDU: ConfirmedResponse/
// ConfirmedError/Reject complete a pending waiter by invokeId; Unconfirmed
// is forwarded to the report sink; a ConcludeResponse is logged and
// nothing else is done with it. A Conclude request from the peer is not
// classified by ClassifyPDU and never reaches Dispatch; neither Conclude
// PDU starts a shutdown. Spurious responses (no matching waiter) are
// logged and dropped, never treated as fatal.
func (d *Dispatcher) Dispatch(pdu *DecodedPDU) {
	switch pdu.Kind {
	case KindConfirmedResponse:
		d.complete(pdu.InvokeID, pdu.Raw, nil)
	case KindConfirmedError:
		d.complete(pdu.InvokeID, nil, confirmedErrorToServiceError(pdu))
	case KindReject:
		if pdu.HasInvoke {
			d.complete(pdu.InvokeID, nil, &errs.ProtocolError{Layer: "mms", Detail: "request rejected by peer"})
		} else {
			d.log.Warn("RejectPDU without invokeId, dropping")
		}
	case KindUnconfirmed:
		d.sink.OnReport(pdu.Body)
	case KindConcludeResponse:
		d.log.Info("peer confirmed Conclude")
	default:
		d.log.Warn("unhandled MMS PDU kind %d", pdu.Kind)
	}
}

func (d *Dispatcher) complete(invokeID uint32, body []byte, err error) {
	d.mu.Lock()
	w, ok := d.pending[invokeID]
	if ok {
		delete(d.pending, invokeID)
	}
	d.mu.Unlock()
	if !ok {
		d.log.Warn("spurious MMS response for unknown invokeId %d, dropping", invokeID)
		return
	}
	w.body, w.err = body, err
	close(w.done)
}

// Close completes every pending waiter with errs.ErrDisassociated, used
// during connection teardown so no Submit call hangs forever.
func (d *Dispatcher) Close() {
	d.mu.Lock()
	waiters := make([]*waiter, 0, len(d.pending))
	for id := range maps.Keys(d.pending) {
		waiters = append(waiters, d.pending[id])
		delete(d.pending, id)
	}
	d.closed = true
	d.mu.Unlock()

	for _, w := range waiters {
		w.err = errs.ErrDisassociated
		close(w.done)
	}
}

// PendingCount reports how many calls are currently awaiting a response,
// chiefly useful for tests asserting S3's two-in-flight scenario.
func (d *Dispatcher) PendingCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.pending)
}

func (d *Dispatcher) String() string {
	return fmt.Sprintf("Dispatcher{pending=%d}", d.PendingCount())
}
