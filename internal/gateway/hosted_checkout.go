package gateway

import (
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/hotel-booking-platform/payment-service/internal/domain"
)

type HostedCheckoutConfig struct {
	BaseURL    string
	MerchantID string
	APIKey     string
	ReturnURL  string
	CancelURL  string
	Timeout    time.Duration
}

// HostedCheckoutClient drives the redirect-based hosted checkout API. The
// outbound request is a flat form; the response is JSON carrying either a
// session identifier or a structured failure. Errors are classified here,
// exactly once: network failures, 5xx and unparseable bodies are TRANSPORT,
// declines and missing session tokens are GATEWAY_REJECTED.
type HostedCheckoutClient struct {
	cfg  HostedCheckoutConfig
	http *http.Client
}

func NewHostedCheckoutClient(cfg HostedCheckoutConfig) *HostedCheckoutClient {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 15 * time.Second
	}
	return &HostedCheckoutClient{
		cfg:  cfg,
		http: &http.Client{Timeout: cfg.Timeout},
	}
}

type sessionResponse struct {
	SessionID     string `json:"session_id"`
	TransactionID string `json:"transaction_id"`
	RedirectURL   string `json:"redirect_url"`
	ErrorCode     string `json:"error_code"`
	ErrorMessage  string `json:"error_message"`
}

func (c *HostedCheckoutClient) CreateSession(req CreateSessionRequest) (*Session, error) {
	form := url.Values{}
	form.Set("merchant_id", c.cfg.MerchantID)
	form.Set("api_key", c.cfg.APIKey)
	form.Set("payment_id", req.PaymentID.String())
	form.Set("order_id", req.BookingID.String())
	form.Set("amount", req.Amount.StringFixed(2))
	form.Set("currency", req.Currency)
	form.Set("return_url", c.cfg.ReturnURL)
	form.Set("cancel_url", c.cfg.CancelURL)
	form.Set("description", req.Description)
	form.Set("guest_name", req.GuestName)
	form.Set("guest_email", req.GuestEmail)
	for k, v := range req.Metadata {
		form.Set("meta_"+k, v)
	}

	body, status, err := c.post("/checkout/session", form)
	if err != nil {
		return nil, err
	}

	var sr sessionResponse
	if jerr := json.Unmarshal(body, &sr); jerr != nil {
		return nil, domain.WrapError(domain.KindTransport, "MALFORMED_RESPONSE", jerr,
			"gateway returned an unparseable checkout response (status %d)", status)
	}

	if status >= 400 || sr.ErrorCode != "" {
		code := sr.ErrorCode
		if code == "" {
			code = "PAYMENT_DECLINED"
		}
		return nil, domain.NewError(domain.KindGatewayRejected, code,
			"gateway rejected checkout: %s", nonEmpty(sr.ErrorMessage, "no message"))
	}
	if sr.SessionID == "" {
		return nil, domain.NewError(domain.KindGatewayRejected, "MISSING_SESSION_ID",
			"gateway response carries no session identifier")
	}

	return &Session{
		SessionID:     sr.SessionID,
		TransactionID: sr.TransactionID,
		RedirectURL:   sr.RedirectURL,
	}, nil
}

type refundResponse struct {
	RefundReference string `json:"refund_reference"`
	ErrorCode       string `json:"error_code"`
	ErrorMessage    string `json:"error_message"`
}

func (c *HostedCheckoutClient) RefundTransaction(req RefundRequest) (*RefundResult, error) {
	form := url.Values{}
	form.Set("merchant_id", c.cfg.MerchantID)
	form.Set("api_key", c.cfg.APIKey)
	form.Set("transaction_id", req.TransactionID)
	form.Set("amount", req.Amount.StringFixed(2))
	form.Set("currency", req.Currency)
	form.Set("reason", req.Reason)

	body, status, err := c.post("/refund", form)
	if err != nil {
		return nil, err
	}

	var rr refundResponse
	if jerr := json.Unmarshal(body, &rr); jerr != nil {
		return nil, domain.WrapError(domain.KindTransport, "MALFORMED_RESPONSE", jerr,
			"gateway returned an unparseable refund response (status %d)", status)
	}

	if status >= 400 || rr.ErrorCode != "" {
		code := rr.ErrorCode
		if code == "" {
			code = "REFUND_DECLINED"
		}
		return nil, domain.NewError(domain.KindGatewayRejected, code,
			"gateway rejected refund: %s", nonEmpty(rr.ErrorMessage, "no message"))
	}
	if rr.RefundReference == "" {
		return nil, domain.NewError(domain.KindGatewayRejected, "MISSING_REFUND_REFERENCE",
			"gateway refund response carries no reference")
	}

	return &RefundResult{RefundReference: rr.RefundReference, RefundedAt: time.Now()}, nil
}

// QueryStatus is unsupported by the hosted checkout API; reconciliation falls
// back to the age heuristic.
func (c *HostedCheckoutClient) QueryStatus(string) (*StatusResult, error) {
	return nil, ErrStatusQueryUnsupported
}

func (c *HostedCheckoutClient) post(path string, form url.Values) ([]byte, int, error) {
	resp, err := c.http.PostForm(c.cfg.BaseURL+path, form)
	if err != nil {
		return nil, 0, domain.WrapError(domain.KindTransport, "GATEWAY_UNREACHABLE", err,
			"gateway request failed")
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, resp.StatusCode, domain.WrapError(domain.KindTransport, "GATEWAY_READ_ERROR", err,
			"failed reading gateway response")
	}
	if resp.StatusCode >= 500 {
		return nil, resp.StatusCode, domain.NewError(domain.KindTransport, "GATEWAY_ERROR",
			"gateway returned status %d", resp.StatusCode)
	}
	return body, resp.StatusCode, nil
}

func nonEmpty(s, fallback string) string {
	if s == "" {
		return fallback
	}
	return s
}
