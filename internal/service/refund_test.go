package service

import (
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hotel-booking-platform/payment-service/internal/domain"
	"github.com/hotel-booking-platform/payment-service/internal/events"
	"github.com/hotel-booking-platform/payment-service/internal/gateway"
	"github.com/hotel-booking-platform/payment-service/internal/repository"
)

func completedPayment(t *testing.T, store *repository.MemoryStore, amount int64) *domain.Payment {
	t.Helper()
	p, err := domain.NewPayment(uuid.New(), uuid.New(), decimal.NewFromInt(amount),
		domain.CurrencyUSD, domain.MethodStandard, time.Now().Add(30*time.Minute))
	require.NoError(t, err)
	require.NoError(t, store.Create(p))

	updated, err := store.UpdateIfStatus(p.ID, domain.PaymentStatusPending, func(x *domain.Payment) error {
		if err := x.MarkInitiated("SES_RF", "TXN_RF", time.Now()); err != nil {
			return err
		}
		return x.Complete(time.Now())
	})
	require.NoError(t, err)
	return updated
}

func TestRefund_PartialThenExcessThenDrain(t *testing.T) {
	gw := &stubGateway{}
	svc, store, pub := newTestService(gw, testConfig())

	p := completedPayment(t, store, 1000)

	entry, err := svc.Refund(p.ID, decimal.NewFromInt(400), "room downgrade")
	require.NoError(t, err)
	assert.True(t, entry.Amount.Equal(decimal.NewFromInt(400)))

	got, err := store.GetByID(p.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.PaymentStatusPartialRefund, got.Status)
	assert.True(t, got.TotalRefunded.Equal(decimal.NewFromInt(400)))
	assert.True(t, got.RefundableAmount().Equal(decimal.NewFromInt(600)))

	// more than the remaining 600 is rejected and nothing changes
	_, err = svc.Refund(p.ID, decimal.NewFromInt(700), "over-ask")
	require.Error(t, err)
	assert.Equal(t, "REFUND_EXCEEDS_REMAINING", domain.ErrorCode(err))

	got, err = store.GetByID(p.ID)
	require.NoError(t, err)
	assert.True(t, got.TotalRefunded.Equal(decimal.NewFromInt(400)))
	require.Len(t, got.Refunds, 1)

	// draining the remainder flips the payment to fully refunded
	_, err = svc.Refund(p.ID, decimal.NewFromInt(600), "stay cancelled")
	require.NoError(t, err)

	got, err = store.GetByID(p.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.PaymentStatusRefunded, got.Status)
	assert.True(t, got.TotalRefunded.Equal(got.Amount))

	refundEvents := pub.byType(events.PaymentRefundedEvent)
	require.Len(t, refundEvents, 2)
	first := refundEvents[0].Payload.(events.PaymentRefundedPayload)
	last := refundEvents[1].Payload.(events.PaymentRefundedPayload)
	assert.False(t, first.FullyRefunded)
	assert.True(t, last.FullyRefunded)
}

func TestRefund_RejectedOnNonRefundableStates(t *testing.T) {
	gw := &stubGateway{}
	svc, store, _ := newTestService(gw, testConfig())

	pending, err := domain.NewPayment(uuid.New(), uuid.New(), decimal.NewFromInt(500),
		domain.CurrencyUSD, domain.MethodStandard, time.Now().Add(30*time.Minute))
	require.NoError(t, err)
	require.NoError(t, store.Create(pending))

	_, err = svc.Refund(pending.ID, decimal.NewFromInt(100), "too early")
	require.Error(t, err)
	assert.Equal(t, "NOT_REFUNDABLE", domain.ErrorCode(err))

	expired, err := domain.NewPayment(uuid.New(), uuid.New(), decimal.NewFromInt(500),
		domain.CurrencyUSD, domain.MethodStandard, time.Now().Add(30*time.Minute))
	require.NoError(t, err)
	require.NoError(t, store.Create(expired))
	_, err = store.UpdateIfStatus(expired.ID, domain.PaymentStatusPending, func(x *domain.Payment) error {
		return x.Expire(ReasonPaymentTimeout, time.Now())
	})
	require.NoError(t, err)

	_, err = svc.Refund(expired.ID, decimal.NewFromInt(100), "too late")
	require.Error(t, err)
	assert.Equal(t, "NOT_REFUNDABLE", domain.ErrorCode(err))
}

func TestRefund_UnknownPayment(t *testing.T) {
	gw := &stubGateway{}
	svc, _, _ := newTestService(gw, testConfig())

	_, err := svc.Refund(uuid.New(), decimal.NewFromInt(100), "nothing there")
	require.Error(t, err)
	assert.Equal(t, domain.KindNotFound, domain.KindOf(err))
}

func TestRefund_GatewayDeclineLeavesLedgerUntouched(t *testing.T) {
	gw := &stubGateway{refundFn: func(gateway.RefundRequest) (*gateway.RefundResult, error) {
		return nil, domain.NewError(domain.KindGatewayRejected, "REFUND_DECLINED", "refund window closed")
	}}
	svc, store, pub := newTestService(gw, testConfig())

	p := completedPayment(t, store, 800)

	_, err := svc.Refund(p.ID, decimal.NewFromInt(200), "goodwill")
	require.Error(t, err)
	assert.Equal(t, "REFUND_DECLINED", domain.ErrorCode(err))

	got, err := store.GetByID(p.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.PaymentStatusCompleted, got.Status)
	assert.True(t, got.TotalRefunded.IsZero())
	assert.Empty(t, got.Refunds)
	assert.Empty(t, pub.byType(events.PaymentRefundedEvent))
}

func TestRefund_EntryIDsDerivedFromGatewayReference(t *testing.T) {
	gw := &stubGateway{refundFn: func(gateway.RefundRequest) (*gateway.RefundResult, error) {
		return &gateway.RefundResult{RefundReference: "GWREF_77", RefundedAt: time.Now()}, nil
	}}
	svc, store, _ := newTestService(gw, testConfig())

	p := completedPayment(t, store, 1000)

	entry, err := svc.Refund(p.ID, decimal.NewFromInt(250), "first night comp")
	require.NoError(t, err)
	assert.Equal(t, "GWREF_77-RF1", entry.ID)

	entry, err = svc.Refund(p.ID, decimal.NewFromInt(250), "second night comp")
	require.NoError(t, err)
	assert.Equal(t, "GWREF_77-RF2", entry.ID)
}

func TestRefund_ConcurrentRefundsNeverOverdraw(t *testing.T) {
	gw := &stubGateway{}
	svc, store, _ := newTestService(gw, testConfig())

	p := completedPayment(t, store, 1000)

	var wg sync.WaitGroup
	var mu sync.Mutex
	successes := 0
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := svc.Refund(p.ID, decimal.NewFromInt(200), "race"); err == nil {
				mu.Lock()
				successes++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	got, err := store.GetByID(p.ID)
	require.NoError(t, err)

	require.GreaterOrEqual(t, successes, 1)
	assert.True(t, got.TotalRefunded.Equal(decimal.NewFromInt(int64(successes*200))))
	assert.True(t, got.TotalRefunded.LessThanOrEqual(got.Amount),
		"ledger can never exceed the captured amount")
	assert.Len(t, got.Refunds, successes)
}
