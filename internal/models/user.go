package models

import "time"

// User is an authenticated principal: an admin for the whole network or an
// operator assigned to a single location. Borrowers are not users; they act
// through public token-protected endpoints.
type User struct {
	ID           string     `json:"id" db:"id"`
	Email        string     `json:"email" db:"email"`
	Name         string     `json:"name" db:"name"`
	Role         string     `json:"role" db:"role"`
	LocationID   string     `json:"location_id,omitempty" db:"location_id"`
	PasswordHash string     `json:"-" db:"password_hash"`
	LastLogin    *time.Time `json:"last_login,omitempty" db:"last_login"`
	CreatedAt    time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at" db:"updated_at"`
}
