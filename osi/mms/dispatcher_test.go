package mms

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/mms61850/goiec61850/errs"
	"github.com/mms61850/goiec61850/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingSink struct {
	mu      sync.Mutex
	reports [][]byte
}

func (s *recordingSink) OnReport(body []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reports = append(s.reports, body)
}

func (s *recordingSink) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.reports)
}

func TestDispatcherSubmitCompletesOnMatchingResponse(t *testing.T) {
	d := NewDispatcher(nil, logger.Nop)

	var gotID uint32
	resultCh := make(chan struct {
		body []byte
		err  error
	}, 1)

	go func() {
		body, err := d.Submit(context.Background(), func(invokeID uint32) error {
			gotID = invokeID
			return nil
		})
		resultCh <- struct {
			body []byte
			err  error
		}{body, err}
	}()

	require.Eventually(t, func() bool { return d.PendingCount() == 1 }, time.Second, time.Millisecond)
	d.Dispatch(&DecodedPDU{Kind: KindConfirmedResponse, InvokeID: gotID, Raw: []byte{0xA1, 0x00}})

	result := <-resultCh
	require.NoError(t, result.err)
	assert.Equal(t, []byte{0xA1, 0x00}, result.body)
	assert.Equal(t, 0, d.PendingCount())
}

func TestDispatcherTwoInFlightOutOfOrderReplies(t *testing.T) {
	d := NewDispatcher(nil, logger.Nop)
	ids := make(chan uint32, 2)

	submit := func() <-chan error {
		ch := make(chan error, 1)
		go func() {
			_, err := d.Submit(context.Background(), func(invokeID uint32) error {
				ids <- invokeID
				return nil
			})
			ch <- err
		}()
		return ch
	}

	done1 := submit()
	done2 := submit()
	require.Eventually(t, func() bool { return d.PendingCount() == 2 }, time.Second, time.Millisecond)

	id1 := <-ids
	id2 := <-ids

	// complete the second call first
	d.Dispatch(&DecodedPDU{Kind: KindConfirmedResponse, InvokeID: id2, Raw: []byte{0x02}})
	require.NoError(t, <-done2)

	d.Dispatch(&DecodedPDU{Kind: KindConfirmedResponse, InvokeID: id1, Raw: []byte{0x01}})
	require.NoError(t, <-done1)
}

func TestDispatcherSpuriousResponseIsDroppedNotFatal(t *testing.T) {
	d := NewDispatcher(nil, logger.Nop)
	d.Dispatch(&DecodedPDU{Kind: KindConfirmedResponse, InvokeID: 999, Raw: []byte{0x00}})
	assert.Equal(t, 0, d.PendingCount())
}

func TestDispatcherUnconfirmedGoesToReportSink(t *testing.T) {
	sink := &recordingSink{}
	d := NewDispatcher(sink, logger.Nop)
	d.Dispatch(&DecodedPDU{Kind: KindUnconfirmed, Body: []byte{0xAB}})
	assert.Equal(t, 1, sink.count())
}

func TestDispatcherConfirmedErrorCompletesWaiterWithServiceError(t *testing.T) {
	d := NewDispatcher(nil, logger.Nop)
	resultCh := make(chan error, 1)
	idCh := make(chan uint32, 1)

	go func() {
		_, err := d.Submit(context.Background(), func(invokeID uint32) error {
			idCh <- invokeID
			return nil
		})
		resultCh <- err
	}()

	id := <-idCh
	pdu := &DecodedPDU{
		Kind:      KindConfirmedError,
		InvokeID:  id,
		Body:      parseHexString("a208020105a203a40101"),
		innerBody: parseHexString("020105a203a40101"),
	}
	d.Dispatch(pdu)

	err := <-resultCh
	var svcErr *errs.ServiceError
	require.True(t, errors.As(err, &svcErr))
	assert.Equal(t, "service", svcErr.ServiceErrorClass)
	assert.Equal(t, 1, svcErr.ServiceErrorCode)
}

func TestDispatcherSubmitSendFailurePropagates(t *testing.T) {
	d := NewDispatcher(nil, logger.Nop)
	sendErr := errors.New("write failed")
	_, err := d.Submit(context.Background(), func(uint32) error { return sendErr })
	assert.ErrorIs(t, err, sendErr)
	assert.Equal(t, 0, d.PendingCount())
}

func TestDispatcherSubmitContextCancelled(t *testing.T) {
	d := NewDispatcher(nil, logger.Nop)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := d.Submit(ctx, func(uint32) error { return nil })
	assert.ErrorIs(t, err, errs.ErrCancelled)
}

func TestDispatcherSubmitContextDeadlineExceeded(t *testing.T) {
	d := NewDispatcher(nil, logger.Nop)
	ctx, cancel := context.WithTimeout(context.Background(), time.Nanosecond)
	defer cancel()
	time.Sleep(time.Millisecond)
	_, err := d.Submit(ctx, func(uint32) error { return nil })
	var timeoutErr *errs.Timeout
	require.ErrorAs(t, err, &timeoutErr)
	assert.Equal(t, "request", timeoutErr.Phase)
}

func TestDispatcherSubmitAfterCloseFailsFastWithDisassociated(t *testing.T) {
	d := NewDispatcher(nil, logger.Nop)
	d.Close()

	sendCalled := false
	_, err := d.Submit(context.Background(), func(uint32) error {
		sendCalled = true
		return nil
	})
	assert.ErrorIs(t, err, errs.ErrDisassociated)
	assert.False(t, sendCalled, "Submit must not attempt to send once closed")
	assert.Equal(t, 0, d.PendingCount())
}

func TestDispatcherCloseCompletesPendingWaitersWithDisassociated(t *testing.T) {
	d := NewDispatcher(nil, logger.Nop)
	resultCh := make(chan error, 1)
	go func() {
		_, err := d.Submit(context.Background(), func(uint32) error { return nil })
		resultCh <- err
	}()
	require.Eventually(t, func() bool { return d.PendingCount() == 1 }, time.Second, time.Millisecond)

	d.Close()
	assert.ErrorIs(t, <-resultCh, errs.ErrDisassociated)
}
