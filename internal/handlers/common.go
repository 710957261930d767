package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/go-playground/validator/v10"

	"github.com/gemachnet/backend/internal/auth"
	"github.com/gemachnet/backend/internal/domain"
	"github.com/gemachnet/backend/internal/gateway"
	"github.com/gemachnet/backend/internal/services"
)

// actorFromRequest builds the authorization context from the claims the JWT
// middleware placed on the request.
func actorFromRequest(r *http.Request) auth.Context {
	actor := auth.Context{}
	if v, ok := r.Context().Value("userID").(string); ok {
		actor.UserID = v
	}
	if v, ok := r.Context().Value("role").(string); ok {
		actor.Role = v
	}
	if v, ok := r.Context().Value("locationID").(string); ok {
		actor.UserLocationID = v
	}
	actor.IsAdmin = actor.Role == domain.RoleAdmin
	return actor
}

// decodeJSONBody applies the standard request-body discipline: 1MB cap,
// unknown fields rejected, exactly one JSON object.
func decodeJSONBody(w http.ResponseWriter, r *http.Request, dst any) error {
	r.Body = http.MaxBytesReader(w, r.Body, 1_048_576)
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()

	if err := dec.Decode(dst); err != nil {
		return errors.New("invalid request body")
	}
	if err := dec.Decode(&struct{}{}); err != io.EOF {
		return errors.New("request body must only contain a single JSON object")
	}
	return nil
}

// respondError maps service errors to HTTP status codes. Typed domain and
// authorization errors carry their own semantics; anything else is a 500.
func respondError(w http.ResponseWriter, err error) {
	var authErr *auth.AuthorizationError
	var transitionErr *domain.InvalidTransitionError
	var validationErr *domain.ValidationError
	var fieldErrs validator.ValidationErrors
	var gwErr *gateway.Error

	switch {
	case errors.As(err, &fieldErrs):
		services.SendErrorResponse(w, "Validation failed", http.StatusBadRequest, fieldErrs)
	case errors.Is(err, domain.ErrTransactionNotFound),
		errors.Is(err, domain.ErrPaymentNotFound),
		errors.Is(err, domain.ErrLocationNotFound):
		services.SendErrorResponse(w, err.Error(), http.StatusNotFound, nil)
	case errors.As(err, &authErr):
		services.SendErrorResponse(w, authErr.Message, http.StatusForbidden, nil)
	case errors.As(err, &transitionErr),
		errors.Is(err, domain.ErrAlreadyReturned),
		errors.Is(err, domain.ErrRefundInProgress),
		errors.Is(err, domain.ErrDuplicateActivePayment):
		services.SendErrorResponse(w, err.Error(), http.StatusConflict, nil)
	case errors.As(err, &validationErr),
		errors.Is(err, domain.ErrNoCompletedPayment):
		services.SendErrorResponse(w, err.Error(), http.StatusBadRequest, nil)
	case errors.As(err, &gwErr):
		services.SendErrorResponse(w, gwErr.Message, http.StatusBadGateway, nil)
	default:
		services.SendErrorResponse(w, "An internal error occurred", http.StatusInternalServerError, nil)
	}
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(payload)
}
