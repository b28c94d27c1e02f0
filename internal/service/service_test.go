package service

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hotel-booking-platform/payment-service/internal/breaker"
	"github.com/hotel-booking-platform/payment-service/internal/domain"
	"github.com/hotel-booking-platform/payment-service/internal/events"
	"github.com/hotel-booking-platform/payment-service/internal/gateway"
	"github.com/hotel-booking-platform/payment-service/internal/repository"
)

type stubGateway struct {
	mu          sync.Mutex
	createCalls int
	createFn    func(gateway.CreateSessionRequest) (*gateway.Session, error)
	refundFn    func(gateway.RefundRequest) (*gateway.RefundResult, error)
	statusFn    func(string) (*gateway.StatusResult, error)
}

func (g *stubGateway) CreateSession(req gateway.CreateSessionRequest) (*gateway.Session, error) {
	g.mu.Lock()
	g.createCalls++
	n := g.createCalls
	g.mu.Unlock()

	if g.createFn != nil {
		return g.createFn(req)
	}
	return &gateway.Session{
		SessionID:     fmt.Sprintf("SES_%d", n),
		TransactionID: fmt.Sprintf("TXN_%d", n),
		RedirectURL:   fmt.Sprintf("https://pay.example.com/checkout/SES_%d", n),
	}, nil
}

func (g *stubGateway) RefundTransaction(req gateway.RefundRequest) (*gateway.RefundResult, error) {
	if g.refundFn != nil {
		return g.refundFn(req)
	}
	return &gateway.RefundResult{RefundReference: "RREF_TEST", RefundedAt: time.Now()}, nil
}

func (g *stubGateway) QueryStatus(sessionID string) (*gateway.StatusResult, error) {
	if g.statusFn != nil {
		return g.statusFn(sessionID)
	}
	return nil, gateway.ErrStatusQueryUnsupported
}

func (g *stubGateway) calls() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.createCalls
}

// failCreates makes the first n session attempts fail with err, then
// delegates to the default success response.
func (g *stubGateway) failCreates(n int, err error) {
	var mu sync.Mutex
	remaining := n
	g.createFn = func(req gateway.CreateSessionRequest) (*gateway.Session, error) {
		mu.Lock()
		defer mu.Unlock()
		if remaining > 0 {
			remaining--
			return nil, err
		}
		return &gateway.Session{
			SessionID:     "SES_OK",
			TransactionID: "TXN_OK",
			RedirectURL:   "https://pay.example.com/checkout/SES_OK",
		}, nil
	}
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []events.PaymentEvent
}

func (p *recordingPublisher) PublishPaymentEvent(event events.PaymentEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, event)
	return nil
}

func (p *recordingPublisher) byType(eventType events.PaymentEventType) []events.PaymentEvent {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []events.PaymentEvent
	for _, e := range p.events {
		if e.EventType == eventType {
			out = append(out, e)
		}
	}
	return out
}

func testConfig() Config {
	return Config{
		MaxRetries:         3,
		RetryBaseDelay:     time.Millisecond,
		RetryMaxDelay:      4 * time.Millisecond,
		FallbackEnabled:    true,
		ExpiryStandard:     30 * time.Minute,
		ExpiryManual:       time.Hour,
		ExpiryBankTransfer: 24 * time.Hour,
		ManualPayBaseURL:   "https://pay.example.com",
		BankName:           "Himalayan Bank",
		BankAccountName:    "Hotel Booking Platform Ltd",
		BankAccountNumber:  "0123456789",
	}
}

func newTestBreakerForService() *breaker.CircuitBreaker {
	return breaker.New(breaker.Config{
		FailureThreshold: 1000,
		ResetTimeout:     time.Minute,
		MonitoringWindow: time.Minute,
	})
}

func newTestService(gw gateway.Gateway, cfg Config) (*PaymentService, *repository.MemoryStore, *recordingPublisher) {
	store := repository.NewMemoryStore()
	cb := newTestBreakerForService()
	pub := &recordingPublisher{}
	svc := NewPaymentService(store, gw, cb, pub, cfg)
	svc.sleep = func(time.Duration) {}
	return svc, store, pub
}

func testCheckoutRequest() CheckoutRequest {
	return CheckoutRequest{
		BookingID:  uuid.New(),
		GuestID:    uuid.New(),
		Amount:     decimal.NewFromInt(1500),
		Currency:   domain.CurrencyUSD,
		GuestName:  "Asha Shrestha",
		GuestEmail: "asha@example.com",
	}
}

func TestHandleGatewayCallback_CompletesInitiatedPayment(t *testing.T) {
	gw := &stubGateway{}
	svc, store, pub := newTestService(gw, testConfig())

	result, err := svc.Checkout(testCheckoutRequest())
	require.NoError(t, err)
	require.Equal(t, domain.PaymentStatusInitiated, result.Payment.Status)

	updated, err := svc.HandleGatewayCallback(GatewayCallback{
		SessionID:     result.Payment.SessionID,
		Success:       true,
		TransactionID: result.Payment.TransactionID,
	})
	require.NoError(t, err)
	assert.Equal(t, domain.PaymentStatusCompleted, updated.Status)
	require.NotNil(t, updated.CompletedAt)

	stored, err := store.GetByID(updated.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.PaymentStatusCompleted, stored.Status)
	assert.Len(t, pub.byType(events.PaymentCompletedEvent), 1)
}

func TestHandleGatewayCallback_MissingSuccessTokenIsFailure(t *testing.T) {
	gw := &stubGateway{}
	svc, _, pub := newTestService(gw, testConfig())

	result, err := svc.Checkout(testCheckoutRequest())
	require.NoError(t, err)

	// gateway claims success but carries no transaction identifier
	updated, err := svc.HandleGatewayCallback(GatewayCallback{
		SessionID: result.Payment.SessionID,
		Success:   true,
	})
	require.NoError(t, err)
	assert.Equal(t, domain.PaymentStatusFailed, updated.Status)
	assert.Equal(t, "CALLBACK_FAILED", updated.FailureCode)
	assert.Len(t, pub.byType(events.PaymentFailedEvent), 1)
}

func TestHandleGatewayCallback_RedeliveryIsNoOp(t *testing.T) {
	gw := &stubGateway{}
	svc, _, pub := newTestService(gw, testConfig())

	result, err := svc.Checkout(testCheckoutRequest())
	require.NoError(t, err)

	cb := GatewayCallback{
		SessionID:     result.Payment.SessionID,
		Success:       true,
		TransactionID: result.Payment.TransactionID,
	}
	_, err = svc.HandleGatewayCallback(cb)
	require.NoError(t, err)

	again, err := svc.HandleGatewayCallback(cb)
	require.NoError(t, err)
	assert.Equal(t, domain.PaymentStatusCompleted, again.Status)
	assert.Len(t, pub.byType(events.PaymentCompletedEvent), 1, "redelivery must not publish twice")
}

func TestHandleGatewayCallback_FailureAfterSettlementConflicts(t *testing.T) {
	gw := &stubGateway{}
	svc, _, _ := newTestService(gw, testConfig())

	result, err := svc.Checkout(testCheckoutRequest())
	require.NoError(t, err)

	_, err = svc.HandleGatewayCallback(GatewayCallback{
		SessionID:     result.Payment.SessionID,
		Success:       true,
		TransactionID: "TXN_OK",
	})
	require.NoError(t, err)

	_, err = svc.HandleGatewayCallback(GatewayCallback{
		SessionID: result.Payment.SessionID,
		Success:   false,
		ErrorCode: "DECLINED",
	})
	require.Error(t, err)
	assert.Equal(t, domain.KindConflict, domain.KindOf(err))
}

func TestHandleGatewayCallback_OfflineConfirmationByPaymentID(t *testing.T) {
	gw := &stubGateway{}
	svc, store, _ := newTestService(gw, testConfig())

	p, err := domain.NewPayment(uuid.New(), uuid.New(), decimal.NewFromInt(900),
		domain.CurrencyNPR, domain.MethodBankTransfer, time.Now().Add(24*time.Hour))
	require.NoError(t, err)
	require.NoError(t, store.Create(p))

	updated, err := svc.HandleGatewayCallback(GatewayCallback{
		PaymentID:     p.ID,
		Success:       true,
		TransactionID: "BANK_STMT_41",
	})
	require.NoError(t, err)
	assert.Equal(t, domain.PaymentStatusCompleted, updated.Status)
	assert.NotEmpty(t, updated.SessionID)
	require.NotNil(t, updated.InitiatedAt)
}

func TestCancelPayment(t *testing.T) {
	gw := &stubGateway{}
	svc, _, _ := newTestService(gw, testConfig())

	result, err := svc.Checkout(testCheckoutRequest())
	require.NoError(t, err)

	cancelled, err := svc.CancelPayment(result.Payment.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.PaymentStatusCancelled, cancelled.Status)
	require.NotNil(t, cancelled.CancelledAt)

	// terminal payments cannot be cancelled again
	_, err = svc.CancelPayment(result.Payment.ID)
	require.Error(t, err)
	assert.Equal(t, domain.KindValidation, domain.KindOf(err))
}
