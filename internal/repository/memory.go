package repository

import (
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/hotel-booking-platform/payment-service/internal/domain"
)

// MemoryStore keeps payments in process with the same conditional-update
// semantics as the Postgres store. Used by tests and for local runs without
// a database.
type MemoryStore struct {
	mu       sync.RWMutex
	payments map[uuid.UUID]*domain.Payment
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		payments: make(map[uuid.UUID]*domain.Payment),
	}
}

func (s *MemoryStore) Create(p *domain.Payment) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.payments[p.ID]; exists {
		return domain.NewError(domain.KindConflict, "DUPLICATE_PAYMENT", "payment %s already exists", p.ID)
	}
	s.payments[p.ID] = clonePayment(p)
	return nil
}

func (s *MemoryStore) GetByID(id uuid.UUID) (*domain.Payment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.payments[id]
	if !ok {
		return nil, notFound(id.String())
	}
	return clonePayment(p), nil
}

func (s *MemoryStore) GetBySessionID(sessionID string) (*domain.Payment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, p := range s.payments {
		if p.SessionID != "" && p.SessionID == sessionID {
			return clonePayment(p), nil
		}
	}
	return nil, notFound(sessionID)
}

func (s *MemoryStore) GetByBookingID(bookingID uuid.UUID) ([]*domain.Payment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*domain.Payment
	for _, p := range s.payments {
		if p.BookingID == bookingID {
			out = append(out, clonePayment(p))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

// UpdateIfStatus applies mutate to the stored record only when its current
// status matches expected. Racing writers lose with a CONFLICT error, never
// a partial write: mutate runs on a copy and the copy is swapped in whole.
func (s *MemoryStore) UpdateIfStatus(id uuid.UUID, expected domain.PaymentStatus, mutate func(*domain.Payment) error) (*domain.Payment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, ok := s.payments[id]
	if !ok {
		return nil, notFound(id.String())
	}
	if current.Status != expected {
		return nil, domain.NewError(domain.KindConflict, "STATUS_CONFLICT",
			"payment %s is %s, expected %s", id, current.Status, expected)
	}

	next := clonePayment(current)
	if err := mutate(next); err != nil {
		return nil, err
	}
	s.payments[id] = next
	return clonePayment(next), nil
}

func (s *MemoryStore) FindByStatusOlderThan(status domain.PaymentStatus, cutoff time.Time) ([]*domain.Payment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*domain.Payment
	for _, p := range s.payments {
		if p.Status == status && p.CreatedAt.Before(cutoff) {
			out = append(out, clonePayment(p))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func notFound(ref string) error {
	return domain.NewError(domain.KindNotFound, "PAYMENT_NOT_FOUND", "payment not found: %s", ref)
}

func clonePayment(p *domain.Payment) *domain.Payment {
	c := *p
	if p.RetryPaymentID != nil {
		id := *p.RetryPaymentID
		c.RetryPaymentID = &id
	}
	c.LastRetryAt = cloneTime(p.LastRetryAt)
	c.InitiatedAt = cloneTime(p.InitiatedAt)
	c.CompletedAt = cloneTime(p.CompletedAt)
	c.FailedAt = cloneTime(p.FailedAt)
	c.CancelledAt = cloneTime(p.CancelledAt)
	c.ExpiredAt = cloneTime(p.ExpiredAt)
	if p.Refunds != nil {
		c.Refunds = make([]domain.RefundEntry, len(p.Refunds))
		copy(c.Refunds, p.Refunds)
	}
	return &c
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}
