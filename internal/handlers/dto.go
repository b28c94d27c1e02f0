package handlers

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/hotel-booking-platform/payment-service/internal/domain"
	"github.com/hotel-booking-platform/payment-service/internal/service"
)

type CheckoutRequestDTO struct {
	BookingID       string `json:"booking_id"`
	GuestID         string `json:"guest_id"`
	Amount          string `json:"amount"`
	Currency        string `json:"currency"`
	GuestName       string `json:"guest_name"`
	GuestEmail      string `json:"guest_email"`
	Description     string `json:"description"`
	ResumePaymentID string `json:"resume_payment_id,omitempty"`
}

type RefundRequestDTO struct {
	Amount string `json:"amount"`
	Reason string `json:"reason"`
}

type CallbackRequestDTO struct {
	SessionID     string `json:"session_id"`
	PaymentID     string `json:"payment_id"`
	Success       bool   `json:"success"`
	TransactionID string `json:"transaction_id"`
	ErrorCode     string `json:"error_code"`
	ErrorMessage  string `json:"error_message"`
}

type PaymentResponse struct {
	ID             uuid.UUID            `json:"id"`
	BookingID      uuid.UUID            `json:"booking_id"`
	GuestID        uuid.UUID            `json:"guest_id"`
	Amount         decimal.Decimal      `json:"amount"`
	Currency       string               `json:"currency"`
	Method         string               `json:"method"`
	Status         string               `json:"status"`
	SessionID      string               `json:"session_id,omitempty"`
	TransactionID  string               `json:"transaction_id,omitempty"`
	FailureCode    string               `json:"failure_code,omitempty"`
	FailureReason  string               `json:"failure_reason,omitempty"`
	RetryCount     int                  `json:"retry_count"`
	RetryPaymentID *uuid.UUID           `json:"retry_payment_id,omitempty"`
	Refunds        []domain.RefundEntry `json:"refunds,omitempty"`
	TotalRefunded  decimal.Decimal      `json:"total_refunded"`
	ExpiresAt      time.Time            `json:"expires_at"`
	CreatedAt      time.Time            `json:"created_at"`
	CompletedAt    *time.Time           `json:"completed_at,omitempty"`
	FailedAt       *time.Time           `json:"failed_at,omitempty"`
}

func toPaymentResponse(p *domain.Payment) PaymentResponse {
	return PaymentResponse{
		ID:             p.ID,
		BookingID:      p.BookingID,
		GuestID:        p.GuestID,
		Amount:         p.Amount,
		Currency:       string(p.Currency),
		Method:         string(p.Method),
		Status:         string(p.Status),
		SessionID:      p.SessionID,
		TransactionID:  p.TransactionID,
		FailureCode:    p.FailureCode,
		FailureReason:  p.FailureReason,
		RetryCount:     p.RetryCount,
		RetryPaymentID: p.RetryPaymentID,
		Refunds:        p.Refunds,
		TotalRefunded:  p.TotalRefunded,
		ExpiresAt:      p.ExpiresAt,
		CreatedAt:      p.CreatedAt,
		CompletedAt:    p.CompletedAt,
		FailedAt:       p.FailedAt,
	}
}

type CheckoutResponse struct {
	Payment      PaymentResponse      `json:"payment"`
	Method       string               `json:"method"`
	Instructions service.Instructions `json:"instructions"`
}

func toCheckoutResponse(res *service.CheckoutResult) CheckoutResponse {
	return CheckoutResponse{
		Payment:      toPaymentResponse(res.Payment),
		Method:       string(res.Method),
		Instructions: res.Instructions,
	}
}
