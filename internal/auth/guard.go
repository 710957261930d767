// Package auth holds the role/location authorization rules for the lending
// network. Every predicate is a pure function over a per-request Context so
// callers can compose checks before deciding to fail a request.
package auth

import "github.com/gemachnet/backend/internal/domain"

// Context carries the identity of the acting user for one request.
// It is built from the request's claims and never persisted.
type Context struct {
	Role             string
	UserID           string
	UserLocationID   string
	TargetLocationID string
	IsAdmin          bool
}

// AuthorizationError is returned when a guarded operation is attempted by a
// principal that is not allowed to perform it. It is always raised before any
// mutation and is never retried.
type AuthorizationError struct {
	Role    string
	Message string
}

func (e *AuthorizationError) Error() string {
	return e.Message
}

// IsAuthorizedForLocation reports whether the actor may operate on the
// target location. Admins pass unconditionally; operators only for their own
// assigned location. An operator with no assigned location passes nothing.
func IsAuthorizedForLocation(a Context) bool {
	if a.IsAdmin || a.Role == domain.RoleAdmin {
		return true
	}
	if a.Role == domain.RoleOperator {
		return a.UserLocationID != "" && a.UserLocationID == a.TargetLocationID
	}
	return false
}

// CanProcessRefund reports whether the actor may issue refunds. Borrowers
// never can; operators only for transactions at their own location.
func CanProcessRefund(a Context) bool {
	if a.Role == domain.RoleBorrower {
		return false
	}
	return IsAuthorizedForLocation(a)
}

// CanPerformBulkOperations reports whether the actor may run bulk
// confirm/return operations. This requires admin specifically; an operator
// does not qualify even for its own location.
func CanPerformBulkOperations(a Context) bool {
	return a.IsAdmin || a.Role == domain.RoleAdmin
}

// CanAccessTransaction reports whether the actor may read a transaction at
// the target location.
func CanAccessTransaction(a Context) bool {
	return IsAuthorizedForLocation(a)
}

// RequireAuthorization converts a failed predicate into an AuthorizationError
// carrying a human-readable, role-specific message.
func RequireAuthorization(ok bool, role, message string) error {
	if ok {
		return nil
	}
	return &AuthorizationError{Role: role, Message: message}
}

// LocationMessage builds the denial message for location-scoped checks.
func LocationMessage(role string) string {
	switch role {
	case domain.RoleOperator:
		return "operators may only act on transactions at their assigned location"
	case domain.RoleBorrower:
		return "borrowers may not perform administrative operations"
	default:
		return "not authorized for this location"
	}
}

// RefundMessage builds the denial message for refund checks.
func RefundMessage(role string) string {
	if role == domain.RoleBorrower {
		return "borrowers may not process refunds"
	}
	return LocationMessage(role)
}

// BulkMessage builds the denial message for bulk operations.
func BulkMessage(role string) string {
	return "bulk operations require an administrator"
}
