package repository

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "github.com/lib/pq"

	"github.com/hotel-booking-platform/payment-service/internal/domain"
)

// PostgresStore persists payments and their refund sub-ledger. All state
// changes go through UpdateIfStatus, a conditional UPDATE keyed on the
// current status; there are no other write paths and no external locks.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

const paymentColumns = `
	id, booking_id, guest_id, amount, currency, method, status,
	session_id, transaction_id, failure_code, failure_reason,
	retry_count, last_retry_at, retry_payment_id, total_refunded,
	initiated_at, completed_at, failed_at, cancelled_at, expired_at,
	expires_at, created_at, updated_at
`

func (s *PostgresStore) Create(p *domain.Payment) error {
	query := `
		INSERT INTO payments (` + paymentColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12,
			$13, $14, $15, $16, $17, $18, $19, $20, $21, $22, $23)
	`

	_, err := s.db.Exec(
		query,
		p.ID,
		p.BookingID,
		p.GuestID,
		p.Amount,
		p.Currency,
		p.Method,
		p.Status,
		nullString(p.SessionID),
		nullString(p.TransactionID),
		nullString(p.FailureCode),
		nullString(p.FailureReason),
		p.RetryCount,
		nullTime(p.LastRetryAt),
		nullUUID(p.RetryPaymentID),
		p.TotalRefunded,
		nullTime(p.InitiatedAt),
		nullTime(p.CompletedAt),
		nullTime(p.FailedAt),
		nullTime(p.CancelledAt),
		nullTime(p.ExpiredAt),
		p.ExpiresAt,
		p.CreatedAt,
		p.UpdatedAt,
	)

	if err != nil {
		return fmt.Errorf("payment create error: %v", err)
	}
	return nil
}

func (s *PostgresStore) GetByID(id uuid.UUID) (*domain.Payment, error) {
	query := `SELECT ` + paymentColumns + ` FROM payments WHERE id = $1`
	return s.getOne(query, id.String(), id)
}

func (s *PostgresStore) GetBySessionID(sessionID string) (*domain.Payment, error) {
	query := `SELECT ` + paymentColumns + ` FROM payments WHERE session_id = $1`
	return s.getOne(query, sessionID, sessionID)
}

func (s *PostgresStore) getOne(query, ref string, arg interface{}) (*domain.Payment, error) {
	p, err := scanPayment(s.db.QueryRow(query, arg))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, notFound(ref)
		}
		return nil, fmt.Errorf("payment query error: %v", err)
	}
	if err := s.loadRefunds(p); err != nil {
		return nil, err
	}
	return p, nil
}

func (s *PostgresStore) GetByBookingID(bookingID uuid.UUID) ([]*domain.Payment, error) {
	query := `SELECT ` + paymentColumns + ` FROM payments WHERE booking_id = $1 ORDER BY created_at ASC`
	return s.list(query, bookingID)
}

func (s *PostgresStore) FindByStatusOlderThan(status domain.PaymentStatus, cutoff time.Time) ([]*domain.Payment, error) {
	query := `SELECT ` + paymentColumns + ` FROM payments WHERE status = $1 AND created_at < $2 ORDER BY created_at ASC`
	return s.list(query, status, cutoff)
}

func (s *PostgresStore) list(query string, args ...interface{}) ([]*domain.Payment, error) {
	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("payments query error: %v", err)
	}
	defer rows.Close()

	var payments []*domain.Payment
	for rows.Next() {
		p, err := scanPayment(rows)
		if err != nil {
			return nil, fmt.Errorf("payment scan error: %v", err)
		}
		payments = append(payments, p)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for _, p := range payments {
		if err := s.loadRefunds(p); err != nil {
			return nil, err
		}
	}
	return payments, nil
}

// UpdateIfStatus loads the payment, applies mutate, and writes back with
// UPDATE ... WHERE id AND status = expected. Zero rows affected means a
// concurrent writer won the race; the caller gets CONFLICT and must re-read.
func (s *PostgresStore) UpdateIfStatus(id uuid.UUID, expected domain.PaymentStatus, mutate func(*domain.Payment) error) (*domain.Payment, error) {
	tx, err := s.db.Begin()
	if err != nil {
		return nil, fmt.Errorf("transaction begin error: %v", err)
	}
	defer tx.Rollback()

	query := `SELECT ` + paymentColumns + ` FROM payments WHERE id = $1`
	p, err := scanPayment(tx.QueryRow(query, id))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, notFound(id.String())
		}
		return nil, fmt.Errorf("payment query error: %v", err)
	}
	if err := s.loadRefundsTx(tx, p); err != nil {
		return nil, err
	}

	if p.Status != expected {
		return nil, domain.NewError(domain.KindConflict, "STATUS_CONFLICT",
			"payment %s is %s, expected %s", id, p.Status, expected)
	}

	refundsBefore := len(p.Refunds)
	if err := mutate(p); err != nil {
		return nil, err
	}

	update := `
		UPDATE payments
		SET status = $3, session_id = $4, transaction_id = $5,
			failure_code = $6, failure_reason = $7, retry_count = $8,
			last_retry_at = $9, retry_payment_id = $10, total_refunded = $11,
			initiated_at = $12, completed_at = $13, failed_at = $14,
			cancelled_at = $15, expired_at = $16, expires_at = $17,
			updated_at = $18
		WHERE id = $1 AND status = $2
	`
	result, err := tx.Exec(
		update,
		p.ID,
		expected,
		p.Status,
		nullString(p.SessionID),
		nullString(p.TransactionID),
		nullString(p.FailureCode),
		nullString(p.FailureReason),
		p.RetryCount,
		nullTime(p.LastRetryAt),
		nullUUID(p.RetryPaymentID),
		p.TotalRefunded,
		nullTime(p.InitiatedAt),
		nullTime(p.CompletedAt),
		nullTime(p.FailedAt),
		nullTime(p.CancelledAt),
		nullTime(p.ExpiredAt),
		p.ExpiresAt,
		p.UpdatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("payment update error: %v", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return nil, err
	}
	if rowsAffected == 0 {
		return nil, domain.NewError(domain.KindConflict, "STATUS_CONFLICT",
			"payment %s was updated concurrently", id)
	}

	for _, entry := range p.Refunds[refundsBefore:] {
		_, err := tx.Exec(`
			INSERT INTO payment_refunds (id, payment_id, amount, reason, status, created_at)
			VALUES ($1, $2, $3, $4, $5, $6)
		`, entry.ID, p.ID, entry.Amount, entry.Reason, entry.Status, entry.CreatedAt)
		if err != nil {
			return nil, fmt.Errorf("refund entry insert error: %v", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("transaction commit error: %v", err)
	}
	return p, nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanPayment(row rowScanner) (*domain.Payment, error) {
	p := &domain.Payment{}
	var sessionID, transactionID, failureCode, failureReason sql.NullString
	var retryPaymentID sql.NullString
	var lastRetryAt, initiatedAt, completedAt, failedAt, cancelledAt, expiredAt sql.NullTime

	err := row.Scan(
		&p.ID,
		&p.BookingID,
		&p.GuestID,
		&p.Amount,
		&p.Currency,
		&p.Method,
		&p.Status,
		&sessionID,
		&transactionID,
		&failureCode,
		&failureReason,
		&p.RetryCount,
		&lastRetryAt,
		&retryPaymentID,
		&p.TotalRefunded,
		&initiatedAt,
		&completedAt,
		&failedAt,
		&cancelledAt,
		&expiredAt,
		&p.ExpiresAt,
		&p.CreatedAt,
		&p.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	p.SessionID = sessionID.String
	p.TransactionID = transactionID.String
	p.FailureCode = failureCode.String
	p.FailureReason = failureReason.String
	if retryPaymentID.Valid {
		id, err := uuid.Parse(retryPaymentID.String)
		if err != nil {
			return nil, fmt.Errorf("invalid retry_payment_id: %v", err)
		}
		p.RetryPaymentID = &id
	}
	p.LastRetryAt = timePtr(lastRetryAt)
	p.InitiatedAt = timePtr(initiatedAt)
	p.CompletedAt = timePtr(completedAt)
	p.FailedAt = timePtr(failedAt)
	p.CancelledAt = timePtr(cancelledAt)
	p.ExpiredAt = timePtr(expiredAt)

	return p, nil
}

func (s *PostgresStore) loadRefunds(p *domain.Payment) error {
	rows, err := s.db.Query(`
		SELECT id, amount, reason, status, created_at
		FROM payment_refunds WHERE payment_id = $1 ORDER BY created_at ASC
	`, p.ID)
	if err != nil {
		return fmt.Errorf("refund entries query error: %v", err)
	}
	defer rows.Close()
	return scanRefunds(rows, p)
}

func (s *PostgresStore) loadRefundsTx(tx *sql.Tx, p *domain.Payment) error {
	rows, err := tx.Query(`
		SELECT id, amount, reason, status, created_at
		FROM payment_refunds WHERE payment_id = $1 ORDER BY created_at ASC
	`, p.ID)
	if err != nil {
		return fmt.Errorf("refund entries query error: %v", err)
	}
	defer rows.Close()
	return scanRefunds(rows, p)
}

func scanRefunds(rows *sql.Rows, p *domain.Payment) error {
	for rows.Next() {
		var entry domain.RefundEntry
		if err := rows.Scan(&entry.ID, &entry.Amount, &entry.Reason, &entry.Status, &entry.CreatedAt); err != nil {
			return fmt.Errorf("refund entry scan error: %v", err)
		}
		p.Refunds = append(p.Refunds, entry)
	}
	return rows.Err()
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}

func timePtr(t sql.NullTime) *time.Time {
	if !t.Valid {
		return nil
	}
	return &t.Time
}

func nullUUID(id *uuid.UUID) sql.NullString {
	if id == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: id.String(), Valid: true}
}
