package domain

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type PaymentStatus string

const (
	PaymentStatusPending       PaymentStatus = "pending"
	PaymentStatusInitiated     PaymentStatus = "initiated"
	PaymentStatusCompleted     PaymentStatus = "completed"
	PaymentStatusFailed        PaymentStatus = "failed"
	PaymentStatusCancelled     PaymentStatus = "cancelled"
	PaymentStatusExpired       PaymentStatus = "expired"
	PaymentStatusRefunded      PaymentStatus = "refunded"
	PaymentStatusPartialRefund PaymentStatus = "partial_refund"
)

type PaymentMethod string

const (
	MethodStandard       PaymentMethod = "standard"
	MethodManualRedirect PaymentMethod = "manual_redirect"
	MethodQRCode         PaymentMethod = "qr_code"
	MethodBankTransfer   PaymentMethod = "bank_transfer"
	MethodRefund         PaymentMethod = "refund"
)

type Currency string

const (
	CurrencyNPR Currency = "NPR"
	CurrencyUSD Currency = "USD"
	CurrencyEUR Currency = "EUR"
	CurrencyGBP Currency = "GBP"
	CurrencyINR Currency = "INR"
	CurrencyAUD Currency = "AUD"
)

func (c Currency) Valid() bool {
	switch c {
	case CurrencyNPR, CurrencyUSD, CurrencyEUR, CurrencyGBP, CurrencyINR, CurrencyAUD:
		return true
	}
	return false
}

// RefundEntry is one line of a payment's refund sub-ledger.
type RefundEntry struct {
	ID        string          `json:"id"`
	Amount    decimal.Decimal `json:"amount"`
	Reason    string          `json:"reason"`
	Status    string          `json:"status"`
	CreatedAt time.Time       `json:"created_at"`
}

const RefundEntryStatusCompleted = "completed"

// Payment is one attempt to collect money for a booking. Failed payments may
// spawn exactly one successor attempt, linked through RetryPaymentID.
type Payment struct {
	ID             uuid.UUID       `json:"id"`
	BookingID      uuid.UUID       `json:"booking_id"`
	GuestID        uuid.UUID       `json:"guest_id"`
	Amount         decimal.Decimal `json:"amount"`
	Currency       Currency        `json:"currency"`
	Method         PaymentMethod   `json:"method"`
	Status         PaymentStatus   `json:"status"`
	SessionID      string          `json:"session_id,omitempty"`
	TransactionID  string          `json:"transaction_id,omitempty"`
	FailureCode    string          `json:"failure_code,omitempty"`
	FailureReason  string          `json:"failure_reason,omitempty"`
	RetryCount     int             `json:"retry_count"`
	LastRetryAt    *time.Time      `json:"last_retry_at,omitempty"`
	RetryPaymentID *uuid.UUID      `json:"retry_payment_id,omitempty"`
	Refunds        []RefundEntry   `json:"refunds,omitempty"`
	TotalRefunded  decimal.Decimal `json:"total_refunded"`
	InitiatedAt    *time.Time      `json:"initiated_at,omitempty"`
	CompletedAt    *time.Time      `json:"completed_at,omitempty"`
	FailedAt       *time.Time      `json:"failed_at,omitempty"`
	CancelledAt    *time.Time      `json:"cancelled_at,omitempty"`
	ExpiredAt      *time.Time      `json:"expired_at,omitempty"`
	ExpiresAt      time.Time       `json:"expires_at"`
	CreatedAt      time.Time       `json:"created_at"`
	UpdatedAt      time.Time       `json:"updated_at"`
}

func NewPayment(bookingID, guestID uuid.UUID, amount decimal.Decimal, currency Currency, method PaymentMethod, expiresAt time.Time) (*Payment, error) {
	if bookingID == uuid.Nil {
		return nil, NewError(KindValidation, "MISSING_BOOKING_ID", "payment requires a booking reference")
	}
	if !amount.IsPositive() {
		return nil, NewError(KindValidation, "INVALID_AMOUNT", "payment amount must be positive, got %s", amount)
	}
	if !currency.Valid() {
		return nil, NewError(KindValidation, "INVALID_CURRENCY", "unsupported currency: %s", currency)
	}

	now := time.Now()
	return &Payment{
		ID:            uuid.New(),
		BookingID:     bookingID,
		GuestID:       guestID,
		Amount:        amount,
		Currency:      currency,
		Method:        method,
		Status:        PaymentStatusPending,
		TotalRefunded: decimal.Zero,
		ExpiresAt:     expiresAt,
		CreatedAt:     now,
		UpdatedAt:     now,
	}, nil
}

// MarkInitiated records the gateway accepting the request and handing back a
// session identifier.
func (p *Payment) MarkInitiated(sessionID, transactionID string, now time.Time) error {
	if p.Status != PaymentStatusPending {
		return p.transitionError(PaymentStatusInitiated)
	}
	if sessionID == "" {
		return NewError(KindValidation, "MISSING_SESSION_ID", "cannot initiate payment without a gateway session")
	}
	p.Status = PaymentStatusInitiated
	p.SessionID = sessionID
	p.TransactionID = transactionID
	p.InitiatedAt = &now
	p.UpdatedAt = now
	return nil
}

func (p *Payment) Complete(now time.Time) error {
	if p.Status != PaymentStatusInitiated {
		return p.transitionError(PaymentStatusCompleted)
	}
	p.Status = PaymentStatusCompleted
	p.CompletedAt = &now
	p.FailureCode = ""
	p.FailureReason = ""
	p.UpdatedAt = now
	return nil
}

func (p *Payment) Fail(code, reason string, now time.Time) error {
	if p.Status != PaymentStatusPending && p.Status != PaymentStatusInitiated {
		return p.transitionError(PaymentStatusFailed)
	}
	p.Status = PaymentStatusFailed
	p.FailureCode = code
	p.FailureReason = reason
	p.FailedAt = &now
	p.UpdatedAt = now
	return nil
}

// Cancel is a user action on a still-open payment, distinct from gateway
// failure.
func (p *Payment) Cancel(now time.Time) error {
	if p.Status != PaymentStatusPending && p.Status != PaymentStatusInitiated {
		return p.transitionError(PaymentStatusCancelled)
	}
	p.Status = PaymentStatusCancelled
	p.CancelledAt = &now
	p.UpdatedAt = now
	return nil
}

// Expire resolves an open payment whose collection window has lapsed. Only
// the reconciliation sweep calls this.
func (p *Payment) Expire(reason string, now time.Time) error {
	if p.Status != PaymentStatusPending && p.Status != PaymentStatusInitiated {
		return p.transitionError(PaymentStatusExpired)
	}
	p.Status = PaymentStatusExpired
	p.FailureCode = reason
	p.ExpiredAt = &now
	p.UpdatedAt = now
	return nil
}

// LinkSuccessor attaches the retry attempt spawned by a failed payment. A
// payment holds at most one successor.
func (p *Payment) LinkSuccessor(successorID uuid.UUID) error {
	if p.Status != PaymentStatusFailed {
		return NewError(KindValidation, "INVALID_RETRY_LINK", "only failed payments spawn a retry, current status: %s", p.Status)
	}
	if p.RetryPaymentID != nil {
		return NewError(KindValidation, "RETRY_ALREADY_LINKED", "payment %s already has successor %s", p.ID, *p.RetryPaymentID)
	}
	p.RetryPaymentID = &successorID
	return nil
}

// ApplyRefund appends a refund entry and recomputes the refund status. The
// caller supplies the gateway refund reference; the entry id is derived from
// it, or from the original transaction when the gateway gave none.
func (p *Payment) ApplyRefund(amount decimal.Decimal, reason, refundRef string, now time.Time) (*RefundEntry, error) {
	if !p.CanRefund() {
		return nil, NewError(KindValidation, "NOT_REFUNDABLE", "payment in status %s cannot be refunded", p.Status)
	}
	if !amount.IsPositive() {
		return nil, NewError(KindValidation, "INVALID_REFUND_AMOUNT", "refund amount must be positive, got %s", amount)
	}
	refundable := p.RefundableAmount()
	if amount.GreaterThan(refundable) {
		return nil, NewError(KindValidation, "REFUND_EXCEEDS_REMAINING", "refund %s exceeds refundable amount %s", amount, refundable)
	}

	entry := RefundEntry{
		ID:        p.nextRefundID(refundRef),
		Amount:    amount,
		Reason:    reason,
		Status:    RefundEntryStatusCompleted,
		CreatedAt: now,
	}
	p.Refunds = append(p.Refunds, entry)
	p.TotalRefunded = p.TotalRefunded.Add(amount)

	if p.TotalRefunded.Equal(p.Amount) {
		p.Status = PaymentStatusRefunded
	} else {
		p.Status = PaymentStatusPartialRefund
	}
	p.UpdatedAt = now

	return &p.Refunds[len(p.Refunds)-1], nil
}

func (p *Payment) nextRefundID(refundRef string) string {
	base := refundRef
	if base == "" {
		base = p.TransactionID
	}
	if base == "" {
		base = p.ID.String()[:8]
	}
	return fmt.Sprintf("%s-RF%d", base, len(p.Refunds)+1)
}

func (p *Payment) CanRefund() bool {
	if p.Status != PaymentStatusCompleted && p.Status != PaymentStatusPartialRefund {
		return false
	}
	return p.TotalRefunded.LessThan(p.Amount)
}

// RefundableAmount is only meaningful for completed / partially refunded
// payments.
func (p *Payment) RefundableAmount() decimal.Decimal {
	return p.Amount.Sub(p.TotalRefunded)
}

// IsOpen reports whether the payment still awaits a collection outcome.
func (p *Payment) IsOpen() bool {
	return p.Status == PaymentStatusPending || p.Status == PaymentStatusInitiated
}

func (p *Payment) IsTerminal() bool {
	return !p.IsOpen()
}

func (p *Payment) Age(now time.Time) time.Duration {
	return now.Sub(p.CreatedAt)
}

func (p *Payment) transitionError(target PaymentStatus) error {
	return NewError(KindValidation, "INVALID_TRANSITION", "cannot transition payment %s from %s to %s", p.ID, p.Status, target)
}
