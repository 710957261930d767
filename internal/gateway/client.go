package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// Client talks to the provider's REST API with form-encoded requests and a
// bearer secret key, the provider's native dialect.
type Client struct {
	baseURL    string
	secretKey  string
	httpClient *http.Client
}

// NewClient creates a gateway client. baseURL has no trailing slash, e.g.
// https://api.cardprocessor.example.com/v1.
func NewClient(baseURL, secretKey string) *Client {
	return &Client{
		baseURL:   strings.TrimSuffix(baseURL, "/"),
		secretKey: secretKey,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

func (c *Client) CreateCustomer(ctx context.Context, params CustomerParams) (*Customer, error) {
	form := url.Values{}
	form.Set("name", params.Name)
	if params.Email != "" {
		form.Set("email", params.Email)
	}
	if params.Phone != "" {
		form.Set("phone", params.Phone)
	}

	var customer Customer
	if err := c.post(ctx, "/customers", form, "", &customer); err != nil {
		return nil, err
	}
	return &customer, nil
}

func (c *Client) CreateSetupIntent(ctx context.Context, customerID string) (*SetupIntent, error) {
	form := url.Values{}
	form.Set("customer", customerID)
	form.Set("usage", "off_session")

	var intent SetupIntent
	if err := c.post(ctx, "/setup_intents", form, "", &intent); err != nil {
		return nil, err
	}
	return &intent, nil
}

func (c *Client) CreatePaymentIntent(ctx context.Context, params PaymentIntentParams) (*PaymentIntent, error) {
	form := url.Values{}
	form.Set("amount", strconv.FormatInt(params.Amount, 10))
	form.Set("currency", params.Currency)
	if params.Description != "" {
		form.Set("description", params.Description)
	}
	for k, v := range params.Metadata {
		form.Set(fmt.Sprintf("metadata[%s]", k), v)
	}

	var intent PaymentIntent
	if err := c.post(ctx, "/payment_intents", form, "", &intent); err != nil {
		return nil, err
	}
	return &intent, nil
}

// ConfirmOffSession creates and auto-confirms a payment intent against a
// stored payment method. The idempotency key is forwarded as a header so the
// provider treats a retried call as a no-op beyond the first execution.
func (c *Client) ConfirmOffSession(ctx context.Context, params OffSessionChargeParams) (*PaymentIntent, error) {
	form := url.Values{}
	form.Set("amount", strconv.FormatInt(params.Amount, 10))
	form.Set("currency", params.Currency)
	form.Set("customer", params.CustomerID)
	form.Set("payment_method", params.PaymentMethodID)
	form.Set("off_session", "true")
	form.Set("confirm", "true")
	if params.Description != "" {
		form.Set("description", params.Description)
	}

	var intent PaymentIntent
	if err := c.post(ctx, "/payment_intents", form, params.IdempotencyKey, &intent); err != nil {
		return nil, err
	}
	return &intent, nil
}

func (c *Client) GetPaymentIntent(ctx context.Context, id string) (*PaymentIntent, error) {
	var intent PaymentIntent
	if err := c.get(ctx, "/payment_intents/"+id, &intent); err != nil {
		return nil, err
	}
	return &intent, nil
}

func (c *Client) CreateRefund(ctx context.Context, paymentIntentID string, amount int64) (*Refund, error) {
	form := url.Values{}
	form.Set("payment_intent", paymentIntentID)
	form.Set("amount", strconv.FormatInt(amount, 10))

	var refund Refund
	if err := c.post(ctx, "/refunds", form, "", &refund); err != nil {
		return nil, err
	}
	return &refund, nil
}

func (c *Client) SetDefaultPaymentMethod(ctx context.Context, customerID, paymentMethodID string) error {
	form := url.Values{}
	form.Set("invoice_settings[default_payment_method]", paymentMethodID)

	var customer Customer
	return c.post(ctx, "/customers/"+customerID, form, "", &customer)
}

func (c *Client) post(ctx context.Context, path string, form url.Values, idempotencyKey string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, strings.NewReader(form.Encode()))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	if idempotencyKey != "" {
		req.Header.Set("Idempotency-Key", idempotencyKey)
	}
	return c.do(req, out)
}

func (c *Client) get(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return err
	}
	return c.do(req, out)
}

func (c *Client) do(req *http.Request, out any) error {
	req.Header.Set("Authorization", "Bearer "+c.secretKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("gateway request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1_048_576))
	if err != nil {
		return fmt.Errorf("gateway response read failed: %w", err)
	}

	if resp.StatusCode >= 400 {
		var payload struct {
			Error Error `json:"error"`
		}
		if err := json.Unmarshal(body, &payload); err != nil || payload.Error.Message == "" {
			log.Printf("[GATEWAY] Unparseable error response, status %d", resp.StatusCode)
			return &Error{
				Code:       "unknown",
				Message:    fmt.Sprintf("gateway returned status %d", resp.StatusCode),
				HTTPStatus: resp.StatusCode,
			}
		}
		payload.Error.HTTPStatus = resp.StatusCode
		return &payload.Error
	}

	return json.Unmarshal(body, out)
}
