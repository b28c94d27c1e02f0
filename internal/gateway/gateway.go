package gateway

import (
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Gateway is the outbound adapter to the external payment provider. It is
// stateless: it builds requests, parses responses and classifies failures
// into the error taxonomy, nothing more.
type Gateway interface {
	CreateSession(req CreateSessionRequest) (*Session, error)
	RefundTransaction(req RefundRequest) (*RefundResult, error)
	QueryStatus(sessionID string) (*StatusResult, error)
}

// ErrStatusQueryUnsupported is returned by gateways that expose no status
// endpoint; callers fall back to age-based reconciliation.
var ErrStatusQueryUnsupported = errors.New("gateway does not support status queries")

type CreateSessionRequest struct {
	PaymentID   uuid.UUID
	BookingID   uuid.UUID
	Amount      decimal.Decimal
	Currency    string
	GuestName   string
	GuestEmail  string
	Description string
	Metadata    map[string]string
}

// Session is the hosted-checkout handle returned on acceptance. SessionID is
// the success token: a response without it is a rejection, never a partial
// success.
type Session struct {
	SessionID     string
	TransactionID string
	RedirectURL   string
}

type RefundRequest struct {
	TransactionID string
	Amount        decimal.Decimal
	Currency      string
	Reason        string
}

type RefundResult struct {
	RefundReference string
	RefundedAt      time.Time
}

type StatusResult struct {
	Status        string
	TransactionID string
}

const (
	StatusCompleted = "completed"
	StatusPending   = "pending"
	StatusFailed    = "failed"
)
