package service

import (
	"log"
	"time"

	"github.com/hotel-booking-platform/payment-service/internal/domain"
	"github.com/hotel-booking-platform/payment-service/internal/gateway"
)

// ReasonPaymentTimeout marks payments expired because their collection
// window lapsed without a gateway outcome.
const ReasonPaymentTimeout = "PAYMENT_TIMEOUT"

type SweepResult struct {
	Recovered int `json:"recovered"`
	Failed    int `json:"failed"`
	Expired   int `json:"expired"`
}

// Sweep resolves stuck payments: anything pending or initiated past its
// collection window expires; anything the gateway can still vouch for is
// recovered. Per-record errors never abort the sweep, and re-running over
// already-terminal records changes nothing. Concurrent sweeps are safe
// because every transition is a conditional write on the current status.
func (s *PaymentService) Sweep() SweepResult {
	now := s.now()
	var res SweepResult

	cutoff := now.Add(-s.cfg.ExpiryStandard)
	for _, status := range []domain.PaymentStatus{domain.PaymentStatusPending, domain.PaymentStatusInitiated} {
		payments, err := s.store.FindByStatusOlderThan(status, cutoff)
		if err != nil {
			log.Printf("Sweep query error for status %s: %v", status, err)
			continue
		}
		for _, p := range payments {
			if p.RetryCount > s.cfg.MaxRetries {
				continue
			}
			s.sweepOne(p, now, &res)
		}
	}

	if res.Recovered+res.Failed+res.Expired > 0 {
		log.Printf("Sweep resolved payments: recovered=%d failed=%d expired=%d",
			res.Recovered, res.Failed, res.Expired)
	}
	return res
}

func (s *PaymentService) sweepOne(p *domain.Payment, now time.Time, res *SweepResult) {
	if now.After(p.ExpiresAt) {
		s.expirePayment(p, now, res)
		return
	}

	// best-effort status query before giving up on the record
	if p.SessionID != "" {
		st, err := s.gateway.QueryStatus(p.SessionID)
		if err == nil {
			s.resolveFromStatus(p, st, now, res)
			return
		}
		if err != gateway.ErrStatusQueryUnsupported {
			log.Printf("Sweep status query failed for payment %s: %v", p.ID, err)
			return
		}
	}

	// no status API: age heuristic for the standard checkout window
	if p.Method == domain.MethodStandard && p.Age(now) > s.cfg.ExpiryStandard {
		s.expirePayment(p, now, res)
	}
}

func (s *PaymentService) resolveFromStatus(p *domain.Payment, st *gateway.StatusResult, now time.Time, res *SweepResult) {
	switch st.Status {
	case gateway.StatusCompleted:
		updated, err := s.store.UpdateIfStatus(p.ID, p.Status, func(x *domain.Payment) error {
			if x.Status == domain.PaymentStatusPending {
				if ierr := x.MarkInitiated(x.SessionID, st.TransactionID, now); ierr != nil {
					return ierr
				}
			}
			if st.TransactionID != "" {
				x.TransactionID = st.TransactionID
			}
			return x.Complete(now)
		})
		if err != nil {
			log.Printf("Sweep recovery of payment %s lost a race: %v", p.ID, err)
			return
		}
		res.Recovered++
		s.publishCompleted(updated)

	case gateway.StatusFailed:
		updated, err := s.store.UpdateIfStatus(p.ID, p.Status, func(x *domain.Payment) error {
			return x.Fail("GATEWAY_REPORTED_FAILED", "gateway status query reported failure", now)
		})
		if err != nil {
			log.Printf("Sweep failure resolution of payment %s lost a race: %v", p.ID, err)
			return
		}
		res.Failed++
		s.publishFailed(updated)
	}
	// still pending at the gateway: leave it until the expiry window lapses
}

func (s *PaymentService) expirePayment(p *domain.Payment, now time.Time, res *SweepResult) {
	if _, err := s.store.UpdateIfStatus(p.ID, p.Status, func(x *domain.Payment) error {
		return x.Expire(ReasonPaymentTimeout, now)
	}); err != nil {
		// a concurrent sweep or writer already resolved it
		log.Printf("Sweep expiry of payment %s lost a race: %v", p.ID, err)
		return
	}
	res.Expired++
}

// RunSweeper runs Sweep on the given interval until stop closes.
func (s *PaymentService) RunSweeper(interval time.Duration, stop <-chan struct{}) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	log.Printf("Reconciliation sweeper running every %s", interval)
	for {
		select {
		case <-ticker.C:
			s.Sweep()
		case <-stop:
			log.Println("Reconciliation sweeper stopped")
			return
		}
	}
}
