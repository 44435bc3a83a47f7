package stripe

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/yungbote/enneagram-backend/internal/platform/ctxutil"
	"github.com/yungbote/enneagram-backend/internal/platform/envutil"
	"github.com/yungbote/enneagram-backend/internal/platform/httpx"
	"github.com/yungbote/enneagram-backend/internal/platform/logger"
)

// Client covers the two Checkout calls the payment flow needs.
type Client interface {
	CreateCheckoutSession(ctx context.Context, req CheckoutRequest) (*CheckoutSession, error)
	GetCheckoutSession(ctx context.Context, sessionID string) (*CheckoutSession, error)
}

type Config struct {
	SecretKey  string
	BaseURL    string
	Timeout    time.Duration
	MaxRetries int
}

func ConfigFromEnv() Config {
	return Config{
		SecretKey:  strings.TrimSpace(os.Getenv("STRIPE_SECRET_KEY")),
		BaseURL:    envutil.String("STRIPE_BASE_URL", "https://api.stripe.com"),
		Timeout:    envutil.Seconds("STRIPE_TIMEOUT_SECONDS", 20*time.Second),
		MaxRetries: envutil.Int("STRIPE_MAX_RETRIES", 2),
	}
}

func New(log *logger.Logger, cfg Config) (Client, error) {
	if log == nil {
		return nil, fmt.Errorf("logger required")
	}
	if cfg.SecretKey == "" {
		return nil, fmt.Errorf("missing STRIPE_SECRET_KEY")
	}
	cfg.BaseURL = strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api.stripe.com"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 20 * time.Second
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}
	cl := log.With("client", "StripeClient")
	return &client{
		log:        cl,
		cfg:        cfg,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		retry:      httpx.Retrier{Log: cl, Service: "stripe", MaxRetries: cfg.MaxRetries, Backoff: 500 * time.Millisecond, MaxWait: 5 * time.Second},
	}, nil
}

type client struct {
	log        *logger.Logger
	cfg        Config
	httpClient *http.Client
	retry      httpx.Retrier
}

type CheckoutRequest struct {
	CustomerEmail     string
	AmountCents       int64
	Currency          string
	ProductName       string
	SuccessURL        string
	CancelURL         string
	ClientReferenceID string
	Metadata          map[string]string
}

type CheckoutSession struct {
	ID                string            `json:"id"`
	URL               string            `json:"url"`
	Status            string            `json:"status"`
	PaymentStatus     string            `json:"payment_status"`
	ClientReferenceID string            `json:"client_reference_id"`
	CustomerEmail     string            `json:"customer_email"`
	AmountTotal       int64             `json:"amount_total"`
	Currency          string            `json:"currency"`
	Metadata          map[string]string `json:"metadata"`
}

// Paid reports whether the session has collected funds.
func (s *CheckoutSession) Paid() bool {
	if s == nil {
		return false
	}
	return s.PaymentStatus == "paid" || s.PaymentStatus == "no_payment_required"
}

func (c *client) CreateCheckoutSession(ctx context.Context, req CheckoutRequest) (*CheckoutSession, error) {
	if req.AmountCents <= 0 {
		return nil, fmt.Errorf("stripe: amount must be positive")
	}
	if req.SuccessURL == "" || req.CancelURL == "" {
		return nil, fmt.Errorf("stripe: success and cancel urls required")
	}
	currency := strings.ToLower(strings.TrimSpace(req.Currency))
	if currency == "" {
		currency = "usd"
	}

	form := url.Values{}
	form.Set("mode", "payment")
	form.Set("success_url", req.SuccessURL)
	form.Set("cancel_url", req.CancelURL)
	if req.CustomerEmail != "" {
		form.Set("customer_email", req.CustomerEmail)
	}
	if req.ClientReferenceID != "" {
		form.Set("client_reference_id", req.ClientReferenceID)
	}
	form.Set("line_items[0][quantity]", "1")
	form.Set("line_items[0][price_data][currency]", currency)
	form.Set("line_items[0][price_data][unit_amount]", strconv.FormatInt(req.AmountCents, 10))
	form.Set("line_items[0][price_data][product_data][name]", req.ProductName)
	for k, v := range req.Metadata {
		form.Set("metadata["+k+"]", v)
	}

	var out CheckoutSession
	// One idempotency key across retries so a timed out request is not charged twice.
	if err := c.do(ctx, http.MethodPost, "/v1/checkout/sessions", form, uuid.NewString(), &out); err != nil {
		return nil, err
	}
	if out.ID == "" || out.URL == "" {
		return nil, fmt.Errorf("stripe: checkout session missing id or url")
	}
	return &out, nil
}

func (c *client) GetCheckoutSession(ctx context.Context, sessionID string) (*CheckoutSession, error) {
	sessionID = strings.TrimSpace(sessionID)
	if sessionID == "" {
		return nil, fmt.Errorf("stripe: session id required")
	}
	var out CheckoutSession
	if err := c.do(ctx, http.MethodGet, "/v1/checkout/sessions/"+url.PathEscape(sessionID), nil, "", &out); err != nil {
		return nil, err
	}
	return &out, nil
}

type HTTPError struct {
	StatusCode int
	Type       string
	Code       string
	Message    string
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("stripe http %d (%s): %s", e.StatusCode, e.Type, e.Message)
}

func (e *HTTPError) HTTPStatusCode() int { return e.StatusCode }

// NotFound reports a missing object on the Stripe side.
func (e *HTTPError) NotFound() bool {
	return e.StatusCode == http.StatusNotFound || e.Code == "resource_missing"
}

type errorEnvelope struct {
	Error struct {
		Type    string `json:"type"`
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

func (c *client) do(ctx context.Context, method, path string, form url.Values, idempotencyKey string, out any) error {
	var raw []byte
	err := c.retry.Do(ctx, path, func(ctx context.Context) (*http.Response, error) {
		var body io.Reader
		if form != nil {
			body = strings.NewReader(form.Encode())
		}
		req, err := http.NewRequestWithContext(ctxutil.Default(ctx), method, c.cfg.BaseURL+path, body)
		if err != nil {
			return nil, err
		}
		req.Header.Set("Authorization", "Bearer "+c.cfg.SecretKey)
		if form != nil {
			req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		}
		if idempotencyKey != "" {
			req.Header.Set("Idempotency-Key", idempotencyKey)
		}
		resp, b, err := httpx.Exchange(c.httpClient, req, stripeError)
		raw = b
		return resp, err
	})
	if err != nil {
		return err
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("stripe decode error: %w", err)
	}
	return nil
}

func stripeError(status int, raw []byte) error {
	he := &HTTPError{StatusCode: status, Message: strings.TrimSpace(string(raw))}
	var env errorEnvelope
	if json.Unmarshal(raw, &env) == nil && env.Error.Message != "" {
		he.Type = env.Error.Type
		he.Code = env.Error.Code
		he.Message = env.Error.Message
	}
	return he
}
