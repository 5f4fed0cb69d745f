// Package checkout is a minimal Stripe Checkout client for selling credit
// packs through a hosted payment page.
package checkout

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/rotisserie/eris"
)

const defaultBaseURL = "https://api.stripe.com"

// Session statuses and payment statuses reported by Stripe.
const (
	StatusComplete = "complete"
	StatusOpen     = "open"
	StatusExpired  = "expired"

	PaymentPaid   = "paid"
	PaymentUnpaid = "unpaid"
)

// Client performs checkout session operations.
type Client interface {
	CreateSession(ctx context.Context, req SessionRequest) (*Session, error)
	GetSession(ctx context.Context, id string) (*Session, error)
}

// SessionRequest describes a one-off payment for a single price.
type SessionRequest struct {
	PriceID    string
	Quantity   int
	SuccessURL string
	CancelURL  string
	// Account is carried as client_reference_id and metadata so fulfillment
	// can verify who paid.
	Account string
}

// Session is a hosted checkout session.
type Session struct {
	ID                string            `json:"id"`
	URL               string            `json:"url"`
	Status            string            `json:"status"`
	PaymentStatus     string            `json:"payment_status"`
	ClientReferenceID string            `json:"client_reference_id"`
	Metadata          map[string]string `json:"metadata"`
	AmountTotal       int64             `json:"amount_total"`
	Currency          string            `json:"currency"`
}

// Paid reports whether the session completed with a successful payment.
func (s *Session) Paid() bool {
	return s != nil && s.Status == StatusComplete && s.PaymentStatus == PaymentPaid
}

// APIError is the error envelope Stripe returns.
type APIError struct {
	Type    string `json:"type"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Option configures the client.
type Option func(*httpClient)

// WithBaseURL overrides the default API base URL.
func WithBaseURL(u string) Option {
	return func(c *httpClient) {
		c.baseURL = u
	}
}

// WithHTTPClient overrides the default http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *httpClient) {
		c.http = hc
	}
}

type httpClient struct {
	secretKey string
	baseURL   string
	http      *http.Client
}

// NewClient creates a checkout client authenticated with a secret key.
func NewClient(secretKey string, opts ...Option) Client {
	c := &httpClient{
		secretKey: secretKey,
		baseURL:   defaultBaseURL,
		http: &http.Client{
			Timeout: 15 * time.Second,
		},
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

func (c *httpClient) CreateSession(ctx context.Context, sr SessionRequest) (*Session, error) {
	if sr.PriceID == "" {
		return nil, eris.New("checkout: price id is required")
	}
	if sr.SuccessURL == "" || sr.CancelURL == "" {
		return nil, eris.New("checkout: success and cancel urls are required")
	}
	quantity := sr.Quantity
	if quantity <= 0 {
		quantity = 1
	}

	form := url.Values{}
	form.Set("mode", "payment")
	form.Set("line_items[0][price]", sr.PriceID)
	form.Set("line_items[0][quantity]", strconv.Itoa(quantity))
	form.Set("success_url", sr.SuccessURL)
	form.Set("cancel_url", sr.CancelURL)
	if sr.Account != "" {
		form.Set("client_reference_id", sr.Account)
		form.Set("metadata[account]", sr.Account)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/checkout/sessions", strings.NewReader(form.Encode()))
	if err != nil {
		return nil, eris.Wrap(err, "checkout: create request")
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	var s Session
	if err := c.do(req, &s); err != nil {
		return nil, eris.Wrap(err, "checkout: create session")
	}
	return &s, nil
}

func (c *httpClient) GetSession(ctx context.Context, id string) (*Session, error) {
	if id == "" {
		return nil, eris.New("checkout: session id is required")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/v1/checkout/sessions/"+url.PathEscape(id), nil)
	if err != nil {
		return nil, eris.Wrap(err, "checkout: create request")
	}

	var s Session
	if err := c.do(req, &s); err != nil {
		return nil, eris.Wrapf(err, "checkout: get session %s", id)
	}
	return &s, nil
}

func (c *httpClient) do(req *http.Request, out any) error {
	req.Header.Set("Authorization", "Bearer "+c.secretKey)

	resp, err := c.http.Do(req)
	if err != nil {
		return eris.Wrap(err, "send request")
	}
	defer resp.Body.Close() //nolint:errcheck

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return eris.Wrap(err, "read response")
	}

	if resp.StatusCode != http.StatusOK {
		var envelope struct {
			Error APIError `json:"error"`
		}
		if json.Unmarshal(body, &envelope) == nil && envelope.Error.Message != "" {
			return eris.Errorf("unexpected status %d: %s", resp.StatusCode, envelope.Error.Message)
		}
		return eris.Errorf("unexpected status %d: %s", resp.StatusCode, string(body))
	}

	if err := json.Unmarshal(body, out); err != nil {
		return eris.Wrap(err, "unmarshal response")
	}
	return nil
}
