package domain

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestPayment(t *testing.T) *Payment {
	t.Helper()
	p, err := NewPayment(uuid.New(), uuid.New(), decimal.NewFromInt(1000), CurrencyUSD,
		MethodStandard, time.Now().Add(30*time.Minute))
	require.NoError(t, err)
	return p
}

func TestNewPayment_Validation(t *testing.T) {
	bookingID := uuid.New()
	expiry := time.Now().Add(time.Hour)

	tests := []struct {
		name     string
		booking  uuid.UUID
		amount   decimal.Decimal
		currency Currency
		wantCode string
	}{
		{"zero amount", bookingID, decimal.Zero, CurrencyUSD, "INVALID_AMOUNT"},
		{"negative amount", bookingID, decimal.NewFromInt(-50), CurrencyUSD, "INVALID_AMOUNT"},
		{"unknown currency", bookingID, decimal.NewFromInt(100), Currency("XXX"), "INVALID_CURRENCY"},
		{"missing booking", uuid.Nil, decimal.NewFromInt(100), CurrencyUSD, "MISSING_BOOKING_ID"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewPayment(tt.booking, uuid.New(), tt.amount, tt.currency, MethodStandard, expiry)
			require.Error(t, err)
			assert.Equal(t, KindValidation, KindOf(err))
			assert.Equal(t, tt.wantCode, ErrorCode(err))
		})
	}

	p, err := NewPayment(bookingID, uuid.New(), decimal.NewFromInt(100), CurrencyNPR, MethodStandard, expiry)
	require.NoError(t, err)
	assert.Equal(t, PaymentStatusPending, p.Status)
	assert.True(t, p.TotalRefunded.IsZero())
}

func TestPayment_HappyPathTimestamps(t *testing.T) {
	p := newTestPayment(t)
	now := time.Now()

	require.NoError(t, p.MarkInitiated("SES_1", "TXN_1", now))
	assert.Equal(t, PaymentStatusInitiated, p.Status)
	require.NotNil(t, p.InitiatedAt)

	require.NoError(t, p.Complete(now.Add(time.Minute)))
	assert.Equal(t, PaymentStatusCompleted, p.Status)
	require.NotNil(t, p.CompletedAt)
	assert.Nil(t, p.FailedAt)
	assert.Nil(t, p.CancelledAt)
}

func TestPayment_MarkInitiatedRequiresSession(t *testing.T) {
	p := newTestPayment(t)
	err := p.MarkInitiated("", "TXN_1", time.Now())
	require.Error(t, err)
	assert.Equal(t, "MISSING_SESSION_ID", ErrorCode(err))
	assert.Equal(t, PaymentStatusPending, p.Status)
}

func TestPayment_FailSetsTimestampAndReason(t *testing.T) {
	p := newTestPayment(t)
	now := time.Now()

	require.NoError(t, p.Fail("GATEWAY_UNREACHABLE", "connection refused", now))
	assert.Equal(t, PaymentStatusFailed, p.Status)
	require.NotNil(t, p.FailedAt)
	assert.Equal(t, "GATEWAY_UNREACHABLE", p.FailureCode)
	assert.Nil(t, p.CompletedAt)
}

func TestPayment_TerminalStatesAreSinks(t *testing.T) {
	now := time.Now()

	terminalSetups := map[string]func(*Payment){
		"failed":    func(p *Payment) { _ = p.Fail("X", "x", now) },
		"cancelled": func(p *Payment) { _ = p.Cancel(now) },
		"expired":   func(p *Payment) { _ = p.Expire("PAYMENT_TIMEOUT", now) },
	}

	for name, setup := range terminalSetups {
		t.Run(name, func(t *testing.T) {
			p := newTestPayment(t)
			setup(p)
			before := p.Status

			assert.Error(t, p.MarkInitiated("SES", "TXN", now))
			assert.Error(t, p.Complete(now))
			assert.Error(t, p.Fail("Y", "y", now))
			assert.Error(t, p.Cancel(now))
			assert.Error(t, p.Expire("Z", now))
			assert.Equal(t, before, p.Status)
		})
	}
}

func TestPayment_CompletedOnlyTransitionsToRefundStates(t *testing.T) {
	p := newTestPayment(t)
	now := time.Now()
	require.NoError(t, p.MarkInitiated("SES", "TXN_9", now))
	require.NoError(t, p.Complete(now))

	assert.Error(t, p.Fail("X", "x", now))
	assert.Error(t, p.Cancel(now))
	assert.Error(t, p.Expire("X", now))

	_, err := p.ApplyRefund(decimal.NewFromInt(1000), "full", "RREF_1", now)
	require.NoError(t, err)
	assert.Equal(t, PaymentStatusRefunded, p.Status)
}

func TestPayment_PartialRefundLedger(t *testing.T) {
	p := newTestPayment(t)
	now := time.Now()
	require.NoError(t, p.MarkInitiated("SES", "TXN_7", now))
	require.NoError(t, p.Complete(now))

	entry, err := p.ApplyRefund(decimal.NewFromInt(400), "room change", "RREF_A", now)
	require.NoError(t, err)
	assert.Equal(t, PaymentStatusPartialRefund, p.Status)
	assert.True(t, decimal.NewFromInt(400).Equal(p.TotalRefunded))
	assert.True(t, decimal.NewFromInt(600).Equal(p.RefundableAmount()))
	assert.Contains(t, entry.ID, "RREF_A")

	// over-refund of the remainder is rejected
	_, err = p.ApplyRefund(decimal.NewFromInt(700), "too much", "RREF_B", now)
	require.Error(t, err)
	assert.Equal(t, KindValidation, KindOf(err))
	assert.True(t, decimal.NewFromInt(400).Equal(p.TotalRefunded))

	// draining the remainder flips to fully refunded
	_, err = p.ApplyRefund(decimal.NewFromInt(600), "cancelled stay", "RREF_C", now)
	require.NoError(t, err)
	assert.Equal(t, PaymentStatusRefunded, p.Status)
	assert.True(t, p.TotalRefunded.Equal(p.Amount))
	assert.False(t, p.CanRefund())
	assert.Len(t, p.Refunds, 2)
}

func TestPayment_RefundRejectedOnOpenPayment(t *testing.T) {
	p := newTestPayment(t)
	_, err := p.ApplyRefund(decimal.NewFromInt(100), "nope", "", time.Now())
	require.Error(t, err)
	assert.Equal(t, "NOT_REFUNDABLE", ErrorCode(err))
}

func TestPayment_SingleSuccessorLink(t *testing.T) {
	p := newTestPayment(t)
	now := time.Now()

	first := uuid.New()
	require.Error(t, p.LinkSuccessor(first), "open payments spawn no retry")

	require.NoError(t, p.Fail("X", "x", now))
	require.NoError(t, p.LinkSuccessor(first))

	err := p.LinkSuccessor(uuid.New())
	require.Error(t, err)
	assert.Equal(t, "RETRY_ALREADY_LINKED", ErrorCode(err))
	assert.Equal(t, first, *p.RetryPaymentID)
}

func TestRetryableClassification(t *testing.T) {
	assert.True(t, Retryable(NewError(KindTransport, "T", "t")))
	assert.True(t, Retryable(NewError(KindGatewayRejected, "G", "g")))
	assert.False(t, Retryable(NewError(KindCircuitOpen, "C", "c")))
	assert.False(t, Retryable(NewError(KindValidation, "V", "v")))
	assert.False(t, Retryable(NewError(KindConflict, "K", "k")))
	assert.False(t, Retryable(nil))
}
