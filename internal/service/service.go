package service

import (
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/hotel-booking-platform/payment-service/internal/breaker"
	"github.com/hotel-booking-platform/payment-service/internal/domain"
	"github.com/hotel-booking-platform/payment-service/internal/events"
	"github.com/hotel-booking-platform/payment-service/internal/gateway"
)

// PaymentStore is the record store the payment core writes through. The
// conditional update is the sole state-changing primitive; two writers racing
// on one payment produce exactly one winner.
type PaymentStore interface {
	Create(p *domain.Payment) error
	GetByID(id uuid.UUID) (*domain.Payment, error)
	GetBySessionID(sessionID string) (*domain.Payment, error)
	GetByBookingID(bookingID uuid.UUID) ([]*domain.Payment, error)
	UpdateIfStatus(id uuid.UUID, expected domain.PaymentStatus, mutate func(*domain.Payment) error) (*domain.Payment, error)
	FindByStatusOlderThan(status domain.PaymentStatus, cutoff time.Time) ([]*domain.Payment, error)
}

type EventPublisher interface {
	PublishPaymentEvent(event events.PaymentEvent) error
}

type Config struct {
	MaxRetries     int
	RetryBaseDelay time.Duration
	RetryMaxDelay  time.Duration

	FallbackEnabled bool

	ExpiryStandard     time.Duration
	ExpiryManual       time.Duration
	ExpiryBankTransfer time.Duration

	ManualPayBaseURL  string
	BankName          string
	BankAccountName   string
	BankAccountNumber string
}

type PaymentService struct {
	store     PaymentStore
	gateway   gateway.Gateway
	breaker   *breaker.CircuitBreaker
	publisher EventPublisher
	cfg       Config

	now   func() time.Time
	sleep func(time.Duration)
}

func NewPaymentService(
	store PaymentStore,
	gw gateway.Gateway,
	cb *breaker.CircuitBreaker,
	publisher EventPublisher,
	cfg Config,
) *PaymentService {
	return &PaymentService{
		store:     store,
		gateway:   gw,
		breaker:   cb,
		publisher: publisher,
		cfg:       cfg,
		now:       time.Now,
		sleep:     time.Sleep,
	}
}

// CheckoutRequest is what the booking side hands us at checkout initiation.
// ResumePaymentID re-enters an earlier checkout's retry chain instead of
// starting a fresh one.
type CheckoutRequest struct {
	BookingID       uuid.UUID
	GuestID         uuid.UUID
	Amount          decimal.Decimal
	Currency        domain.Currency
	GuestName       string
	GuestEmail      string
	Description     string
	ResumePaymentID *uuid.UUID
}

// GatewayCallback is the gateway's (or offline reconciler's) report of a
// collection outcome. A success report without a transaction identifier is
// treated as failure: the system never parks a payment in an indeterminate
// state.
type GatewayCallback struct {
	SessionID     string
	PaymentID     uuid.UUID
	Success       bool
	TransactionID string
	ErrorCode     string
	ErrorMessage  string
}

func (s *PaymentService) GetPayment(id uuid.UUID) (*domain.Payment, error) {
	return s.store.GetByID(id)
}

func (s *PaymentService) GetPaymentsByBooking(bookingID uuid.UUID) ([]*domain.Payment, error) {
	return s.store.GetByBookingID(bookingID)
}

func (s *PaymentService) BreakerStats() breaker.Snapshot {
	return s.breaker.Stats()
}

// HandleGatewayCallback settles an open payment from a gateway callback.
// Redelivery of a success callback for an already-completed payment is a
// no-op.
func (s *PaymentService) HandleGatewayCallback(cb GatewayCallback) (*domain.Payment, error) {
	p, err := s.findCallbackPayment(cb)
	if err != nil {
		return nil, err
	}

	success := cb.Success && cb.TransactionID != ""

	if p.IsTerminal() {
		if p.Status == domain.PaymentStatusCompleted && success {
			return p, nil
		}
		return nil, domain.NewError(domain.KindConflict, "PAYMENT_SETTLED",
			"payment %s is already %s", p.ID, p.Status)
	}

	now := s.now()
	if success {
		updated, uerr := s.store.UpdateIfStatus(p.ID, p.Status, func(x *domain.Payment) error {
			if x.Status == domain.PaymentStatusPending {
				sid := cb.SessionID
				if sid == "" {
					sid = fmt.Sprintf("offline-%s", x.ID.String()[:8])
				}
				if ierr := x.MarkInitiated(sid, cb.TransactionID, now); ierr != nil {
					return ierr
				}
			}
			return x.Complete(now)
		})
		if uerr != nil {
			return nil, uerr
		}
		s.publishCompleted(updated)
		return updated, nil
	}

	code := cb.ErrorCode
	if code == "" {
		code = "CALLBACK_FAILED"
	}
	updated, uerr := s.store.UpdateIfStatus(p.ID, p.Status, func(x *domain.Payment) error {
		return x.Fail(code, nonEmpty(cb.ErrorMessage, "gateway reported failure"), now)
	})
	if uerr != nil {
		return nil, uerr
	}
	s.publishFailed(updated)
	return updated, nil
}

func (s *PaymentService) findCallbackPayment(cb GatewayCallback) (*domain.Payment, error) {
	if cb.SessionID != "" {
		return s.store.GetBySessionID(cb.SessionID)
	}
	if cb.PaymentID != uuid.Nil {
		return s.store.GetByID(cb.PaymentID)
	}
	return nil, domain.NewError(domain.KindValidation, "MISSING_CALLBACK_KEY",
		"callback carries neither session nor payment identifier")
}

// CancelPayment is the explicit user action on a still-open payment.
func (s *PaymentService) CancelPayment(id uuid.UUID) (*domain.Payment, error) {
	p, err := s.store.GetByID(id)
	if err != nil {
		return nil, err
	}
	if !p.IsOpen() {
		return nil, domain.NewError(domain.KindValidation, "NOT_CANCELLABLE",
			"payment %s is %s and cannot be cancelled", p.ID, p.Status)
	}
	return s.store.UpdateIfStatus(p.ID, p.Status, func(x *domain.Payment) error {
		return x.Cancel(s.now())
	})
}

func (s *PaymentService) publishCompleted(p *domain.Payment) {
	s.publish(events.PaymentEvent{
		PaymentID: p.ID,
		BookingID: p.BookingID,
		EventType: events.PaymentCompletedEvent,
		Payload: events.PaymentCompletedPayload{
			TransactionID: p.TransactionID,
			Amount:        p.Amount,
			Currency:      string(p.Currency),
			Method:        string(p.Method),
		},
	})
}

func (s *PaymentService) publishFailed(p *domain.Payment) {
	s.publish(events.PaymentEvent{
		PaymentID: p.ID,
		BookingID: p.BookingID,
		EventType: events.PaymentFailedEvent,
		Payload: events.PaymentFailedPayload{
			FailureCode:   p.FailureCode,
			FailureReason: p.FailureReason,
			Amount:        p.Amount,
			RetryCount:    p.RetryCount,
		},
	})
}

func (s *PaymentService) publishRefunded(p *domain.Payment, entry *domain.RefundEntry) {
	s.publish(events.PaymentEvent{
		PaymentID: p.ID,
		BookingID: p.BookingID,
		EventType: events.PaymentRefundedEvent,
		Payload: events.PaymentRefundedPayload{
			RefundID:       entry.ID,
			RefundedAmount: entry.Amount,
			TotalRefunded:  p.TotalRefunded,
			FullyRefunded:  p.Status == domain.PaymentStatusRefunded,
		},
	})
}

// Event delivery is best effort; a broker outage never fails the payment
// operation that produced the event.
func (s *PaymentService) publish(event events.PaymentEvent) {
	if s.publisher == nil {
		return
	}
	if err := s.publisher.PublishPaymentEvent(event); err != nil {
		log.Printf("Payment event publish error (%s, payment=%s): %v",
			event.EventType, event.PaymentID, err)
	}
}

func nonEmpty(s, fallback string) string {
	if s == "" {
		return fallback
	}
	return s
}
