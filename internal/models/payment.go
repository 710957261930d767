package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"
)

// Payment represents one attempt to move money for a transaction. A
// transaction may have several payments (original attempt plus refund
// attempts, linked through TransactionID and the refund_ prefix on
// ProviderRef), but at most one may be in a non-terminal active state.
type Payment struct {
	ID            string          `json:"id" db:"id"`
	TransactionID string          `json:"transaction_id" db:"transaction_id"`
	Method        string          `json:"method" db:"method"`
	ProviderRef   string          `json:"provider_ref,omitempty" db:"provider_ref"`
	DepositAmount int64           `json:"deposit_amount" db:"deposit_amount"`
	ProcessingFee int64           `json:"processing_fee" db:"processing_fee"`
	TotalAmount   int64           `json:"total_amount" db:"total_amount"`
	Status        string          `json:"status" db:"status"`
	Metadata      PaymentMetadata `json:"metadata" db:"metadata"`
	CreatedAt     time.Time       `json:"created_at" db:"created_at"`
	UpdatedAt     time.Time       `json:"updated_at" db:"updated_at"`
}

// CashConfirmationMetadata records the human confirmation step for cash
// deposits.
type CashConfirmationMetadata struct {
	ConfirmedBy      string    `json:"confirmed_by"`
	Confirmed        bool      `json:"confirmed"`
	ConfirmedAt      time.Time `json:"confirmed_at"`
	Notes            string    `json:"notes,omitempty"`
	ConfirmationCode string    `json:"confirmation_code,omitempty"`
}

// RefundMetadata records who triggered a refund and the item condition it
// was computed from.
type RefundMetadata struct {
	RefundedBy       string `json:"refunded_by"`
	ItemCondition    string `json:"item_condition,omitempty"`
	ProviderRefundID string `json:"provider_refund_id,omitempty"`
	Amount           int64  `json:"amount"`
}

// WebhookMetadata marks a payment as settled asynchronously by the gateway,
// as opposed to a manual operator confirmation.
type WebhookMetadata struct {
	ProcessedAt time.Time `json:"processed_at"`
	EventStatus string    `json:"event_status"`
}

// PaymentMetadata is the provider metadata blob attached to a payment.
// Known operations get typed fields; Extra is an opaque escape hatch for
// forward compatibility. Writers must append, never overwrite existing keys.
type PaymentMetadata struct {
	ClientSecret string                    `json:"client_secret,omitempty"`
	Cash         *CashConfirmationMetadata `json:"cash,omitempty"`
	Refund       *RefundMetadata           `json:"refund,omitempty"`
	Webhook      *WebhookMetadata          `json:"webhook,omitempty"`
	FailureCode  string                    `json:"failure_code,omitempty"`
	Extra        map[string]any            `json:"extra,omitempty"`
}

// Value serializes the metadata for storage in a JSONB column.
func (m PaymentMetadata) Value() (driver.Value, error) {
	return json.Marshal(m)
}

// Scan deserializes the metadata from a JSONB column.
func (m *PaymentMetadata) Scan(src any) error {
	switch v := src.(type) {
	case nil:
		*m = PaymentMetadata{}
		return nil
	case []byte:
		return json.Unmarshal(v, m)
	case string:
		return json.Unmarshal([]byte(v), m)
	default:
		return fmt.Errorf("unsupported metadata type %T", src)
	}
}
