package handlers

import (
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/hotel-booking-platform/payment-service/internal/domain"
	"github.com/hotel-booking-platform/payment-service/internal/service"
)

type PaymentHandler struct {
	paymentService *service.PaymentService
}

func NewPaymentHandler(paymentService *service.PaymentService) *PaymentHandler {
	return &PaymentHandler{
		paymentService: paymentService,
	}
}

func (h *PaymentHandler) Checkout(c *fiber.Ctx) error {
	var dto CheckoutRequestDTO
	if err := c.BodyParser(&dto); err != nil {
		return BadRequestResponse(c, "Invalid request body")
	}

	req, err := h.mapCheckoutRequest(dto)
	if err != nil {
		return ErrorResponse(c, err)
	}

	result, err := h.paymentService.Checkout(req)
	if err != nil {
		return ErrorResponse(c, err)
	}

	return CreatedResponse(c, "Checkout created", toCheckoutResponse(result))
}

func (h *PaymentHandler) GatewayCallback(c *fiber.Ctx) error {
	var dto CallbackRequestDTO
	if err := c.BodyParser(&dto); err != nil {
		return BadRequestResponse(c, "Invalid callback body")
	}

	cb := service.GatewayCallback{
		SessionID:     dto.SessionID,
		Success:       dto.Success,
		TransactionID: dto.TransactionID,
		ErrorCode:     dto.ErrorCode,
		ErrorMessage:  dto.ErrorMessage,
	}
	if dto.PaymentID != "" {
		id, err := uuid.Parse(dto.PaymentID)
		if err != nil {
			return BadRequestResponse(c, "Invalid payment ID")
		}
		cb.PaymentID = id
	}

	payment, err := h.paymentService.HandleGatewayCallback(cb)
	if err != nil {
		return ErrorResponse(c, err)
	}

	return SuccessResponse(c, "Callback processed", toPaymentResponse(payment))
}

func (h *PaymentHandler) GetPayment(c *fiber.Ctx) error {
	id, err := uuid.Parse(c.Params("payment_id"))
	if err != nil {
		return BadRequestResponse(c, "Invalid payment ID")
	}

	payment, err := h.paymentService.GetPayment(id)
	if err != nil {
		return ErrorResponse(c, err)
	}

	return SuccessResponse(c, "Payment retrieved", toPaymentResponse(payment))
}

func (h *PaymentHandler) GetPaymentsByBooking(c *fiber.Ctx) error {
	bookingID, err := uuid.Parse(c.Params("booking_id"))
	if err != nil {
		return BadRequestResponse(c, "Invalid booking ID")
	}

	payments, err := h.paymentService.GetPaymentsByBooking(bookingID)
	if err != nil {
		return ErrorResponse(c, err)
	}

	out := make([]PaymentResponse, 0, len(payments))
	for _, p := range payments {
		out = append(out, toPaymentResponse(p))
	}
	return SuccessResponse(c, "Payments retrieved", out)
}

func (h *PaymentHandler) Refund(c *fiber.Ctx) error {
	id, err := uuid.Parse(c.Params("payment_id"))
	if err != nil {
		return BadRequestResponse(c, "Invalid payment ID")
	}

	var dto RefundRequestDTO
	if err := c.BodyParser(&dto); err != nil {
		return BadRequestResponse(c, "Invalid refund body")
	}
	amount, err := decimal.NewFromString(dto.Amount)
	if err != nil {
		return BadRequestResponse(c, "Invalid refund amount")
	}

	entry, err := h.paymentService.Refund(id, amount, dto.Reason)
	if err != nil {
		return ErrorResponse(c, err)
	}

	return SuccessResponse(c, "Refund applied", entry)
}

func (h *PaymentHandler) Cancel(c *fiber.Ctx) error {
	id, err := uuid.Parse(c.Params("payment_id"))
	if err != nil {
		return BadRequestResponse(c, "Invalid payment ID")
	}

	payment, err := h.paymentService.CancelPayment(id)
	if err != nil {
		return ErrorResponse(c, err)
	}

	return SuccessResponse(c, "Payment cancelled", toPaymentResponse(payment))
}

func (h *PaymentHandler) Sweep(c *fiber.Ctx) error {
	result := h.paymentService.Sweep()
	return SuccessResponse(c, "Sweep completed", result)
}

func (h *PaymentHandler) HealthCheck(c *fiber.Ctx) error {
	return SuccessResponse(c, "Payment service is healthy", fiber.Map{
		"service": "payment-service",
		"status":  "healthy",
		"breaker": h.paymentService.BreakerStats(),
	})
}

func (h *PaymentHandler) mapCheckoutRequest(dto CheckoutRequestDTO) (service.CheckoutRequest, error) {
	var req service.CheckoutRequest

	bookingID, err := uuid.Parse(dto.BookingID)
	if err != nil {
		return req, domain.NewError(domain.KindValidation, "INVALID_BOOKING_ID",
			"invalid booking_id: %s", dto.BookingID)
	}
	req.BookingID = bookingID

	if dto.GuestID != "" {
		guestID, err := uuid.Parse(dto.GuestID)
		if err != nil {
			return req, domain.NewError(domain.KindValidation, "INVALID_GUEST_ID",
				"invalid guest_id: %s", dto.GuestID)
		}
		req.GuestID = guestID
	}

	amount, err := decimal.NewFromString(dto.Amount)
	if err != nil {
		return req, domain.NewError(domain.KindValidation, "INVALID_AMOUNT",
			"invalid amount: %s", dto.Amount)
	}
	req.Amount = amount
	req.Currency = domain.Currency(dto.Currency)
	req.GuestName = dto.GuestName
	req.GuestEmail = dto.GuestEmail
	req.Description = dto.Description

	if dto.ResumePaymentID != "" {
		resumeID, err := uuid.Parse(dto.ResumePaymentID)
		if err != nil {
			return req, domain.NewError(domain.KindValidation, "INVALID_RESUME_ID",
				"invalid resume_payment_id: %s", dto.ResumePaymentID)
		}
		req.ResumePaymentID = &resumeID
	}

	return req, nil
}
