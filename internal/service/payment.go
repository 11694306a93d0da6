package service

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// Charge is a successful payment authorization.
type Charge struct {
	TransactionID string
	AmountCents   int64
	Currency      string
}

// PaymentGateway is the external payment provider contract.  Charge
// must return ErrPaymentDeclined for rejections the buyer caused (bad
// card, no funds); every other error is treated as transient and
// retried by the saga.
type PaymentGateway interface {
	Charge(ctx context.Context, paymentMethodID string, amountCents int64, currency string) (*Charge, error)
	Refund(ctx context.Context, transactionID string, amountCents int64) error
}

// HTTPGateway talks JSON over HTTP to the payment provider.  Each
// request is bounded by the client timeout; the saga layers its own
// retry with backoff on top, so this client makes exactly one attempt
// per call.
type HTTPGateway struct {
	baseURL string
	client  *http.Client
}

// NewHTTPGateway builds an HTTPGateway with a per-request timeout.
func NewHTTPGateway(baseURL string, timeout time.Duration) *HTTPGateway {
	return &HTTPGateway{
		baseURL: baseURL,
		client:  &http.Client{Timeout: timeout},
	}
}

type chargeRequest struct {
	PaymentMethodID string `json:"payment_method_id"`
	AmountCents     int64  `json:"amount_cents"`
	Currency        string `json:"currency"`
}

type chargeResponse struct {
	TransactionID string `json:"transaction_id"`
	Status        string `json:"status"`
}

// Charge authorizes and captures a payment.  Declines come back as
// ErrPaymentDeclined with no gateway detail attached; transport and
// server errors come back verbatim for retry classification.
func (g *HTTPGateway) Charge(ctx context.Context, paymentMethodID string, amountCents int64, currency string) (*Charge, error) {
	body, err := json.Marshal(chargeRequest{
		PaymentMethodID: paymentMethodID,
		AmountCents:     amountCents,
		Currency:        currency,
	})
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.baseURL+"/charges", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := g.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("payment gateway unreachable: %w", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusPaymentRequired || resp.StatusCode == http.StatusUnprocessableEntity:
		return nil, ErrPaymentDeclined
	case resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated:
		return nil, fmt.Errorf("payment gateway status %d", resp.StatusCode)
	}

	var out chargeResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decode charge response: %w", err)
	}
	if out.Status == "DECLINED" || out.Status == "FAILED" {
		return nil, ErrPaymentDeclined
	}
	if out.TransactionID == "" {
		return nil, fmt.Errorf("charge response missing transaction id")
	}
	return &Charge{TransactionID: out.TransactionID, AmountCents: amountCents, Currency: currency}, nil
}

type refundRequest struct {
	TransactionID string `json:"transaction_id"`
	AmountCents   int64  `json:"amount_cents"`
}

// Refund reverses a captured charge.
func (g *HTTPGateway) Refund(ctx context.Context, transactionID string, amountCents int64) error {
	body, err := json.Marshal(refundRequest{TransactionID: transactionID, AmountCents: amountCents})
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.baseURL+"/refunds", bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := g.client.Do(req)
	if err != nil {
		return fmt.Errorf("payment gateway unreachable: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return fmt.Errorf("payment gateway status %d", resp.StatusCode)
	}
	return nil
}
