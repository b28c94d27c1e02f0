package events

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type PaymentEventType string

const (
	PaymentCompletedEvent PaymentEventType = "payment.completed"
	PaymentFailedEvent    PaymentEventType = "payment.failed"
	PaymentRefundedEvent  PaymentEventType = "payment.refunded"
)

// PaymentEvent is the envelope handed to the notification dispatcher.
// Delivery and templating are the dispatcher's concern, not ours.
type PaymentEvent struct {
	ID        uuid.UUID        `json:"id"`
	PaymentID uuid.UUID        `json:"payment_id"`
	BookingID uuid.UUID        `json:"booking_id"`
	EventType PaymentEventType `json:"event_type"`
	Payload   interface{}      `json:"payload"`
	Timestamp time.Time        `json:"timestamp"`
}

type PaymentCompletedPayload struct {
	TransactionID string          `json:"transaction_id"`
	Amount        decimal.Decimal `json:"amount"`
	Currency      string          `json:"currency"`
	Method        string          `json:"method"`
}

type PaymentFailedPayload struct {
	FailureCode   string          `json:"failure_code"`
	FailureReason string          `json:"failure_reason"`
	Amount        decimal.Decimal `json:"amount"`
	RetryCount    int             `json:"retry_count"`
}

type PaymentRefundedPayload struct {
	RefundID       string          `json:"refund_id"`
	RefundedAmount decimal.Decimal `json:"refunded_amount"`
	TotalRefunded  decimal.Decimal `json:"total_refunded"`
	FullyRefunded  bool            `json:"fully_refunded"`
}
