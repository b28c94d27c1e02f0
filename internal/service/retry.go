package service

import (
	"fmt"
	"log"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/hotel-booking-platform/payment-service/internal/domain"
	"github.com/hotel-booking-platform/payment-service/internal/gateway"
)

// createWithRetry drives one logical checkout through the circuit breaker
// with bounded exponential backoff. Every attempt is its own Payment record;
// a failed attempt links its successor through RetryPaymentID, so the chain
// survives process restarts and re-invocations resume counting from the
// stored RetryCount. On error the last attempt's record is returned alongside
// it when one exists.
func (s *PaymentService) createWithRetry(req CheckoutRequest) (*domain.Payment, *gateway.Session, error) {
	p, err := s.retryEntryPayment(req)
	if err != nil {
		return nil, nil, err
	}

	var lastErr error
	for {
		sess, attemptErr := s.attemptGateway(p, req)
		if attemptErr == nil {
			updated, uerr := s.store.UpdateIfStatus(p.ID, domain.PaymentStatusPending, func(x *domain.Payment) error {
				return x.MarkInitiated(sess.SessionID, sess.TransactionID, s.now())
			})
			if uerr != nil {
				// a cancel or sweep won the race while the gateway call
				// was in flight
				return p, nil, uerr
			}
			return updated, sess, nil
		}

		lastErr = attemptErr
		p = s.markAttemptFailed(p, attemptErr)

		if !domain.Retryable(attemptErr) {
			return p, nil, lastErr
		}
		if p.RetryCount >= s.cfg.MaxRetries {
			log.Printf("Payment %s exhausted %d retries: %v", p.ID, s.cfg.MaxRetries, lastErr)
			return p, nil, lastErr
		}

		s.sleep(backoffDelay(s.cfg.RetryBaseDelay, s.cfg.RetryMaxDelay, p.RetryCount))

		next, spawnErr := s.spawnRetry(p)
		if spawnErr != nil {
			return p, nil, spawnErr
		}
		p = next
	}
}

// retryEntryPayment resolves the Payment record the next attempt runs
// against: a fresh record for a new checkout, or the tail of the existing
// retry chain when the caller resumes one.
func (s *PaymentService) retryEntryPayment(req CheckoutRequest) (*domain.Payment, error) {
	if req.ResumePaymentID == nil {
		return s.newStandardPayment(req)
	}

	tail, err := s.chainTail(*req.ResumePaymentID)
	if err != nil {
		return nil, err
	}

	switch tail.Status {
	case domain.PaymentStatusCompleted, domain.PaymentStatusRefunded, domain.PaymentStatusPartialRefund:
		return nil, domain.NewError(domain.KindAlreadyCompleted, "ALREADY_COMPLETED",
			"payment %s is already settled", tail.ID)
	case domain.PaymentStatusPending:
		return tail, nil
	case domain.PaymentStatusInitiated:
		return nil, domain.NewError(domain.KindValidation, "PAYMENT_IN_PROGRESS",
			"payment %s is awaiting a gateway callback", tail.ID)
	case domain.PaymentStatusFailed:
		if tail.RetryCount >= s.cfg.MaxRetries {
			return nil, domain.NewError(domain.KindValidation, "RETRY_LIMIT_REACHED",
				"payment %s already used %d retries", tail.ID, tail.RetryCount)
		}
		return s.spawnRetry(tail)
	default:
		return nil, domain.NewError(domain.KindValidation, "NOT_RETRYABLE",
			"payment %s is %s and cannot be retried", tail.ID, tail.Status)
	}
}

// chainTail follows RetryPaymentID links to the newest attempt. Each payment
// has at most one successor, so the walk is linear.
func (s *PaymentService) chainTail(id uuid.UUID) (*domain.Payment, error) {
	p, err := s.store.GetByID(id)
	if err != nil {
		return nil, err
	}
	for hops := 0; p.RetryPaymentID != nil; hops++ {
		if hops > 100 {
			return nil, fmt.Errorf("retry chain from %s exceeds 100 links", id)
		}
		next, err := s.store.GetByID(*p.RetryPaymentID)
		if err != nil {
			return nil, err
		}
		p = next
	}
	return p, nil
}

func (s *PaymentService) newStandardPayment(req CheckoutRequest) (*domain.Payment, error) {
	p, err := domain.NewPayment(req.BookingID, req.GuestID, req.Amount, req.Currency,
		domain.MethodStandard, s.now().Add(s.cfg.ExpiryStandard))
	if err != nil {
		return nil, err
	}
	if err := s.store.Create(p); err != nil {
		return nil, err
	}
	return p, nil
}

// spawnRetry creates the successor attempt and links it from the failed
// predecessor.
func (s *PaymentService) spawnRetry(prev *domain.Payment) (*domain.Payment, error) {
	next, err := domain.NewPayment(prev.BookingID, prev.GuestID, prev.Amount, prev.Currency,
		domain.MethodStandard, s.now().Add(s.cfg.ExpiryStandard))
	if err != nil {
		return nil, err
	}
	now := s.now()
	next.RetryCount = prev.RetryCount + 1
	next.LastRetryAt = &now

	if err := s.store.Create(next); err != nil {
		return nil, err
	}

	if _, err := s.store.UpdateIfStatus(prev.ID, domain.PaymentStatusFailed, func(x *domain.Payment) error {
		return x.LinkSuccessor(next.ID)
	}); err != nil {
		log.Printf("Failed linking retry %s to payment %s: %v", next.ID, prev.ID, err)
	}

	return next, nil
}

func (s *PaymentService) attemptGateway(p *domain.Payment, req CheckoutRequest) (*gateway.Session, error) {
	var sess *gateway.Session
	err := s.breaker.Execute(func() error {
		out, gerr := s.gateway.CreateSession(gateway.CreateSessionRequest{
			PaymentID:   p.ID,
			BookingID:   p.BookingID,
			Amount:      p.Amount,
			Currency:    string(p.Currency),
			GuestName:   req.GuestName,
			GuestEmail:  req.GuestEmail,
			Description: nonEmpty(req.Description, fmt.Sprintf("Booking payment for %s", p.BookingID)),
			Metadata:    map[string]string{"retry_count": strconv.Itoa(p.RetryCount)},
		})
		if gerr != nil {
			return gerr
		}
		sess = out
		return nil
	})
	return sess, err
}

// backoffDelay is min(2^retryCount * base, max).
func backoffDelay(base, max time.Duration, retryCount int) time.Duration {
	if retryCount > 30 {
		return max
	}
	d := base * time.Duration(1<<uint(retryCount))
	if d <= 0 || d > max {
		return max
	}
	return d
}

// markAttemptFailed settles the attempt record; the caller keeps retrying or
// escalating regardless of whether the write itself succeeded.
func (s *PaymentService) markAttemptFailed(p *domain.Payment, cause error) *domain.Payment {
	updated, err := s.store.UpdateIfStatus(p.ID, p.Status, func(x *domain.Payment) error {
		return x.Fail(domain.ErrorCode(cause), cause.Error(), s.now())
	})
	if err != nil {
		log.Printf("Failed marking payment %s failed: %v", p.ID, err)
		return p
	}
	return updated
}
