package models

import "time"

// Location represents a lending site (a gemach): a physical location that
// lends items against a deposit. Directory browsing and editing of locations
// is handled elsewhere; the engine only reads the configured deposit amount.
type Location struct {
	ID            string    `json:"id" db:"id"`
	Name          string    `json:"name" db:"name"`
	Address       string    `json:"address,omitempty" db:"address"`
	City          string    `json:"city,omitempty" db:"city"`
	ContactEmail  string    `json:"contact_email,omitempty" db:"contact_email"`
	ContactPhone  string    `json:"contact_phone,omitempty" db:"contact_phone"`
	DepositAmount int64     `json:"deposit_amount" db:"deposit_amount"`
	Currency      string    `json:"currency" db:"currency"`
	IsActive      bool      `json:"is_active" db:"is_active"`
	CreatedAt     time.Time `json:"created_at" db:"created_at"`
}
