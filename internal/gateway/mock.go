package gateway

import (
	"fmt"
	"log"
	"math/rand"
	"time"

	"github.com/google/uuid"

	"github.com/hotel-booking-platform/payment-service/internal/domain"
)

// MockGateway simulates the provider for local runs and integration tests.
// FailureRate injects random declines; TransportRate injects random network
// failures.
type MockGateway struct {
	FailureRate   float64
	TransportRate float64
}

func NewMockGateway(failureRate float64) *MockGateway {
	return &MockGateway{FailureRate: failureRate}
}

func (m *MockGateway) CreateSession(req CreateSessionRequest) (*Session, error) {
	log.Printf("Mock gateway: checkout session for payment %s, amount %s %s",
		req.PaymentID, req.Amount, req.Currency)

	if rand.Float64() < m.TransportRate {
		return nil, domain.NewError(domain.KindTransport, "GATEWAY_UNREACHABLE",
			"simulated network failure")
	}
	if rand.Float64() < m.FailureRate {
		return nil, domain.NewError(domain.KindGatewayRejected, "PAYMENT_DECLINED",
			"simulated decline")
	}

	sessionID := fmt.Sprintf("SES_%s", uuid.New().String()[:8])
	return &Session{
		SessionID:     sessionID,
		TransactionID: fmt.Sprintf("TXN_%d", time.Now().UnixNano()),
		RedirectURL:   fmt.Sprintf("https://pay.example.com/checkout/%s", sessionID),
	}, nil
}

func (m *MockGateway) RefundTransaction(req RefundRequest) (*RefundResult, error) {
	log.Printf("Mock gateway: refund %s against transaction %s", req.Amount, req.TransactionID)

	if rand.Float64() < m.FailureRate*0.5 {
		return nil, domain.NewError(domain.KindGatewayRejected, "REFUND_DECLINED",
			"simulated refund decline")
	}

	return &RefundResult{
		RefundReference: fmt.Sprintf("RREF_%s", uuid.New().String()[:8]),
		RefundedAt:      time.Now(),
	}, nil
}

func (m *MockGateway) QueryStatus(sessionID string) (*StatusResult, error) {
	return &StatusResult{
		Status:        StatusCompleted,
		TransactionID: fmt.Sprintf("TXN_%s", sessionID),
	}, nil
}
