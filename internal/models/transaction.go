package models

import (
	"time"
)

// Transaction represents one loan event: an item lent against a refundable
// deposit. Transactions are never physically deleted; they are the durable
// audit substrate for the network. Once IsReturned flips to true it can
// never go back.
type Transaction struct {
	ID                   string     `json:"id" db:"id"`
	LocationID           string     `json:"location_id" db:"location_id"`
	BorrowerName         string     `json:"borrower_name" db:"borrower_name"`
	BorrowerEmail        string     `json:"borrower_email,omitempty" db:"borrower_email"`
	BorrowerPhone        string     `json:"borrower_phone,omitempty" db:"borrower_phone"`
	ItemDescription      string     `json:"item_description,omitempty" db:"item_description"`
	DepositAmount        int64      `json:"deposit_amount" db:"deposit_amount"`
	DepositPaymentMethod string     `json:"deposit_payment_method" db:"deposit_payment_method"`
	IsReturned           bool       `json:"is_returned" db:"is_returned"`
	ExpectedReturnAt     *time.Time `json:"expected_return_at,omitempty" db:"expected_return_at"`
	ReturnedAt           *time.Time `json:"returned_at,omitempty" db:"returned_at"`
	RefundAmount         int64      `json:"refund_amount" db:"refund_amount"`

	// Deferred-charge fields. Empty for cash and immediate-card loans.
	PayLaterStatus      string     `json:"pay_later_status,omitempty" db:"pay_later_status"`
	MagicTokenHash      string     `json:"-" db:"magic_token_hash"`
	MagicTokenExpiresAt *time.Time `json:"-" db:"magic_token_expires_at"`
	GatewayCustomerID   string     `json:"-" db:"gateway_customer_id"`
	SetupIntentID       string     `json:"-" db:"setup_intent_id"`
	PaymentIntentID     string     `json:"-" db:"payment_intent_id"`
	PaymentMethodID     string     `json:"-" db:"payment_method_id"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}
