package service

import (
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/hotel-booking-platform/payment-service/internal/domain"
	"github.com/hotel-booking-platform/payment-service/internal/gateway"
)

// Refund applies a full or partial refund against a completed payment. The
// amount validation and status recomputation happen inside one conditional
// store update, so two racing refunds can never both pass validation against
// a stale refundable amount: the loser sees a conflict, is re-read once, and
// either gets a definitive validation answer or surfaces CONFLICT unchanged.
func (s *PaymentService) Refund(paymentID uuid.UUID, amount decimal.Decimal, reason string) (*domain.RefundEntry, error) {
	p, err := s.store.GetByID(paymentID)
	if err != nil {
		return nil, err
	}

	if !p.CanRefund() {
		return nil, domain.NewError(domain.KindValidation, "NOT_REFUNDABLE",
			"payment %s in status %s cannot be refunded", p.ID, p.Status)
	}
	if !amount.IsPositive() {
		return nil, domain.NewError(domain.KindValidation, "INVALID_REFUND_AMOUNT",
			"refund amount must be positive, got %s", amount)
	}
	if amount.GreaterThan(p.RefundableAmount()) {
		return nil, domain.NewError(domain.KindValidation, "REFUND_EXCEEDS_REMAINING",
			"refund %s exceeds refundable amount %s", amount, p.RefundableAmount())
	}

	// settle with the gateway before recording anything
	settlement, err := s.gateway.RefundTransaction(gateway.RefundRequest{
		TransactionID: p.TransactionID,
		Amount:        amount,
		Currency:      string(p.Currency),
		Reason:        reason,
	})
	if err != nil {
		return nil, err
	}

	var entry *domain.RefundEntry
	updated, err := s.store.UpdateIfStatus(p.ID, p.Status, func(x *domain.Payment) error {
		applied, aerr := x.ApplyRefund(amount, reason, settlement.RefundReference, s.now())
		if aerr != nil {
			return aerr
		}
		entry = applied
		return nil
	})
	if err != nil {
		if domain.IsKind(err, domain.KindConflict) {
			// re-read and decide whether a refund is still possible at all
			if current, gerr := s.store.GetByID(p.ID); gerr == nil && !current.CanRefund() {
				return nil, domain.NewError(domain.KindValidation, "NOT_REFUNDABLE",
					"payment %s became %s; refund no longer possible", current.ID, current.Status)
			}
		}
		return nil, err
	}

	s.publishRefunded(updated, entry)
	return entry, nil
}
