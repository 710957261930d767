// Package gateway is the client for the external card processor. The engine
// consumes the provider's primitives (customers, setup intents, payment
// intents, refunds) and never reimplements them; everything money-real
// happens on the provider's side.
package gateway

import (
	"context"
	"fmt"
)

// Payment-intent statuses reported by the provider.
const (
	IntentSucceeded            = "succeeded"
	IntentRequiresAction       = "requires_action"
	IntentRequiresConfirmation = "requires_confirmation"
	IntentRequiresPayment      = "requires_payment_method"
	IntentProcessing           = "processing"
	IntentCanceled             = "canceled"
)

// Customer is a provider-side customer record that payment methods attach to.
type Customer struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email"`
}

// SetupIntent authorizes storing a card for a later off-session charge
// without charging immediately.
type SetupIntent struct {
	ID           string `json:"id"`
	CustomerID   string `json:"customer"`
	ClientSecret string `json:"client_secret"`
	Status       string `json:"status"`
}

// PaymentIntent is one provider-side attempt to charge a card.
type PaymentIntent struct {
	ID           string `json:"id"`
	Amount       int64  `json:"amount"`
	Currency     string `json:"currency"`
	Status       string `json:"status"`
	ClientSecret string `json:"client_secret"`
	CustomerID   string `json:"customer,omitempty"`
}

// Refund is a provider-side refund against a payment intent.
type Refund struct {
	ID              string `json:"id"`
	PaymentIntentID string `json:"payment_intent"`
	Amount          int64  `json:"amount"`
	Status          string `json:"status"`
}

// CustomerParams creates a customer.
type CustomerParams struct {
	Name  string
	Email string
	Phone string
}

// PaymentIntentParams creates an immediate payment intent that the borrower
// confirms client-side with the returned client secret.
type PaymentIntentParams struct {
	Amount      int64
	Currency    string
	Description string
	Metadata    map[string]string
}

// OffSessionChargeParams executes a merchant-initiated charge against a
// stored payment method. IdempotencyKey must be stable across retries so a
// repeated call can never double-charge the cardholder.
type OffSessionChargeParams struct {
	CustomerID      string
	PaymentMethodID string
	Amount          int64
	Currency        string
	Description     string
	IdempotencyKey  string
}

// Error is a failure reported by the provider, preserving its error code and
// message for operator triage.
type Error struct {
	Code       string `json:"code"`
	Message    string `json:"message"`
	HTTPStatus int    `json:"-"`
}

func (e *Error) Error() string {
	return fmt.Sprintf("gateway error %s: %s", e.Code, e.Message)
}

// API is the set of provider operations the engine consumes. It is injected
// into the services so tests can substitute a fake.
type API interface {
	CreateCustomer(ctx context.Context, params CustomerParams) (*Customer, error)
	CreateSetupIntent(ctx context.Context, customerID string) (*SetupIntent, error)
	CreatePaymentIntent(ctx context.Context, params PaymentIntentParams) (*PaymentIntent, error)
	ConfirmOffSession(ctx context.Context, params OffSessionChargeParams) (*PaymentIntent, error)
	GetPaymentIntent(ctx context.Context, id string) (*PaymentIntent, error)
	CreateRefund(ctx context.Context, paymentIntentID string, amount int64) (*Refund, error)
	SetDefaultPaymentMethod(ctx context.Context, customerID, paymentMethodID string) error
}
