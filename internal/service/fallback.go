package service

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/hotel-booking-platform/payment-service/internal/domain"
)

// Instructions tells the guest how to actually pay, depending on which
// strategy produced the payment.
type Instructions struct {
	RedirectURL  string               `json:"redirect_url,omitempty"`
	QRPayload    string               `json:"qr_payload,omitempty"`
	BankTransfer *BankTransferDetails `json:"bank_transfer,omitempty"`
}

type BankTransferDetails struct {
	BankName      string          `json:"bank_name"`
	AccountName   string          `json:"account_name"`
	AccountNumber string          `json:"account_number"`
	Reference     string          `json:"reference"`
	Amount        decimal.Decimal `json:"amount"`
	Currency      string          `json:"currency"`
}

type CheckoutResult struct {
	Payment      *domain.Payment `json:"payment"`
	Method       domain.PaymentMethod `json:"method"`
	Instructions Instructions    `json:"instructions"`
}

var fallbackOrder = []domain.PaymentMethod{
	domain.MethodManualRedirect,
	domain.MethodQRCode,
	domain.MethodBankTransfer,
}

// Checkout runs the primary hosted-checkout flow under retry and breaker
// protection, then walks the fallback strategies in priority order. The
// caller always sees either a successful result or the primary failure;
// fallback-internal errors are logged and subordinate.
func (s *PaymentService) Checkout(req CheckoutRequest) (*CheckoutResult, error) {
	p, sess, primaryErr := s.createWithRetry(req)
	if primaryErr == nil {
		return &CheckoutResult{
			Payment:      p,
			Method:       p.Method,
			Instructions: Instructions{RedirectURL: sess.RedirectURL},
		}, nil
	}

	switch domain.KindOf(primaryErr) {
	case domain.KindTransport, domain.KindGatewayRejected, domain.KindCircuitOpen:
	default:
		// validation, conflicts and settled payments are never eligible
		// for fallback
		return nil, primaryErr
	}

	if p != nil {
		s.publishFailed(p)
	}

	if !s.cfg.FallbackEnabled {
		return nil, primaryErr
	}

	log.Printf("Primary checkout failed (%s), trying fallback strategies: %v",
		domain.KindOf(primaryErr), primaryErr)

	for _, method := range fallbackOrder {
		res, err := s.createFallbackPayment(req, method)
		if err != nil {
			log.Printf("Fallback strategy %s failed: %v", method, err)
			continue
		}
		log.Printf("Fallback strategy %s produced payment %s", method, res.Payment.ID)
		return res, nil
	}

	return nil, primaryErr
}

func (s *PaymentService) createFallbackPayment(req CheckoutRequest, method domain.PaymentMethod) (*CheckoutResult, error) {
	var window time.Duration
	switch method {
	case domain.MethodBankTransfer:
		window = s.cfg.ExpiryBankTransfer
	default:
		window = s.cfg.ExpiryManual
	}

	p, err := domain.NewPayment(req.BookingID, req.GuestID, req.Amount, req.Currency,
		method, s.now().Add(window))
	if err != nil {
		return nil, err
	}

	instructions, err := s.buildInstructions(p, method)
	if err != nil {
		return nil, err
	}

	if err := s.store.Create(p); err != nil {
		return nil, err
	}

	return &CheckoutResult{Payment: p, Method: method, Instructions: instructions}, nil
}

func (s *PaymentService) buildInstructions(p *domain.Payment, method domain.PaymentMethod) (Instructions, error) {
	switch method {
	case domain.MethodManualRedirect:
		base := strings.TrimRight(s.cfg.ManualPayBaseURL, "/")
		if base == "" {
			return Instructions{}, domain.NewError(domain.KindValidation, "MANUAL_PAY_UNCONFIGURED",
				"manual redirect base URL is not configured")
		}
		return Instructions{RedirectURL: fmt.Sprintf("%s/pay/%s", base, p.ID)}, nil

	case domain.MethodQRCode:
		payload, err := json.Marshal(map[string]interface{}{
			"payment_id": p.ID,
			"booking_id": p.BookingID,
			"amount":     p.Amount,
			"currency":   p.Currency,
			"expires_at": p.ExpiresAt,
		})
		if err != nil {
			return Instructions{}, err
		}
		return Instructions{QRPayload: base64.StdEncoding.EncodeToString(payload)}, nil

	case domain.MethodBankTransfer:
		if s.cfg.BankAccountNumber == "" {
			return Instructions{}, domain.NewError(domain.KindValidation, "BANK_TRANSFER_UNCONFIGURED",
				"bank transfer account details are not configured")
		}
		return Instructions{BankTransfer: &BankTransferDetails{
			BankName:      s.cfg.BankName,
			AccountName:   s.cfg.BankAccountName,
			AccountNumber: s.cfg.BankAccountNumber,
			Reference:     transferReference(p),
			Amount:        p.Amount,
			Currency:      string(p.Currency),
		}}, nil
	}

	return Instructions{}, domain.NewError(domain.KindValidation, "UNKNOWN_STRATEGY",
		"no instructions for method %s", method)
}

// transferReference is the short string a human reconciles an incoming bank
// transfer against.
func transferReference(p *domain.Payment) string {
	return fmt.Sprintf("BT-%s-%s",
		strings.ToUpper(p.BookingID.String()[:8]),
		strings.ToUpper(p.ID.String()[:8]))
}
