package handlers

import (
	"log"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/gemachnet/backend/internal/services"
)

type DepositHandler struct {
	service *services.DepositService
}

func NewDepositHandler(service *services.DepositService) *DepositHandler {
	return &DepositHandler{service: service}
}

// CreateTransaction creates a new loan with a deposit to collect
// @Summary Create a deposit transaction
// @Description Create a loan transaction with the deposit amount defaulted from the location
// @Tags deposits
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body services.CreateDepositRequest true "Transaction details"
// @Success 201 {object} models.Transaction
// @Failure 400 {object} services.ErrorResponse
// @Failure 404 {object} services.ErrorResponse
// @Router /transactions [post]
func (h *DepositHandler) CreateTransaction(w http.ResponseWriter, r *http.Request) {
	var req services.CreateDepositRequest
	if err := decodeJSONBody(w, r, &req); err != nil {
		services.SendErrorResponse(w, err.Error(), http.StatusBadRequest, nil)
		return
	}

	tx, err := h.service.CreateDepositTransaction(r.Context(), req)
	if err != nil {
		respondError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, tx)
}

// InitiateCardPayment starts an immediate card charge for the deposit
// @Summary Initiate card payment
// @Description Create a provider payment intent for deposit plus processing fee
// @Tags deposits
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param transactionId path string true "Transaction ID"
// @Param request body object{locationId=string} true "Location"
// @Success 200 {object} services.CardPaymentInit
// @Failure 404 {object} services.ErrorResponse
// @Failure 409 {object} services.ErrorResponse
// @Router /transactions/{transactionId}/payments/card [post]
func (h *DepositHandler) InitiateCardPayment(w http.ResponseWriter, r *http.Request) {
	transactionID := chi.URLParam(r, "transactionId")

	var req struct {
		LocationID string `json:"locationId"`
	}
	if err := decodeJSONBody(w, r, &req); err != nil {
		services.SendErrorResponse(w, err.Error(), http.StatusBadRequest, nil)
		return
	}

	init, err := h.service.InitiateCardPayment(r.Context(), transactionID, req.LocationID)
	if err != nil {
		respondError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, init)
}

// InitiateCashPayment records a cash deposit awaiting operator confirmation
// @Summary Initiate cash payment
// @Description Record a cash deposit in confirming state with no processing fee
// @Tags deposits
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param transactionId path string true "Transaction ID"
// @Param request body object{locationId=string} true "Location"
// @Success 200 {object} models.Payment
// @Failure 404 {object} services.ErrorResponse
// @Failure 409 {object} services.ErrorResponse
// @Router /transactions/{transactionId}/payments/cash [post]
func (h *DepositHandler) InitiateCashPayment(w http.ResponseWriter, r *http.Request) {
	transactionID := chi.URLParam(r, "transactionId")

	var req struct {
		LocationID string `json:"locationId"`
	}
	if err := decodeJSONBody(w, r, &req); err != nil {
		services.SendErrorResponse(w, err.Error(), http.StatusBadRequest, nil)
		return
	}

	payment, err := h.service.InitiateCashPayment(r.Context(), transactionID, req.LocationID)
	if err != nil {
		respondError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, payment)
}

// ConfirmPayment resolves a pending or confirming payment
// @Summary Confirm or reject a payment
// @Description Move a payment to completed or failed; operators only for their own location
// @Tags deposits
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param paymentId path string true "Payment ID"
// @Param request body object{confirmed=bool,notes=string,confirmationCode=string} true "Confirmation"
// @Success 200 {object} models.Payment
// @Failure 403 {object} services.ErrorResponse
// @Failure 409 {object} services.ErrorResponse
// @Router /payments/{paymentId}/confirm [post]
func (h *DepositHandler) ConfirmPayment(w http.ResponseWriter, r *http.Request) {
	paymentID := chi.URLParam(r, "paymentId")
	actor := actorFromRequest(r)

	var req struct {
		Confirmed        bool   `json:"confirmed"`
		Notes            string `json:"notes"`
		ConfirmationCode string `json:"confirmationCode"`
	}
	if err := decodeJSONBody(w, r, &req); err != nil {
		services.SendErrorResponse(w, err.Error(), http.StatusBadRequest, nil)
		return
	}

	payment, err := h.service.ConfirmPayment(r.Context(), paymentID, actor, req.Confirmed, req.Notes, req.ConfirmationCode)
	if err != nil {
		respondError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, payment)
}

// RefundDeposit refunds a completed deposit
// @Summary Refund a deposit
// @Description Refund the deposit and mark the loan returned
// @Tags deposits
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param transactionId path string true "Transaction ID"
// @Param request body object{amount=int64} false "Optional partial amount"
// @Success 200 {object} services.RefundResult
// @Failure 403 {object} services.ErrorResponse
// @Failure 409 {object} services.ErrorResponse
// @Router /transactions/{transactionId}/refund [post]
func (h *DepositHandler) RefundDeposit(w http.ResponseWriter, r *http.Request) {
	transactionID := chi.URLParam(r, "transactionId")
	actor := actorFromRequest(r)

	var req struct {
		Amount *int64 `json:"amount"`
	}
	if r.ContentLength > 0 {
		if err := decodeJSONBody(w, r, &req); err != nil {
			services.SendErrorResponse(w, err.Error(), http.StatusBadRequest, nil)
			return
		}
	}

	result, err := h.service.RefundDeposit(r.Context(), transactionID, actor, req.Amount)
	if err != nil {
		log.Printf("[HANDLER] Refund failed for %s: %v", transactionID, err)
		respondError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// BulkConfirmPayments confirms several payments at once
// @Summary Bulk confirm payments
// @Description Confirm payments sequentially with a per-id report; admin only
// @Tags deposits
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body object{paymentIds=[]string,confirmed=bool,notes=string} true "Payments to confirm"
// @Success 200 {object} services.BulkReport
// @Failure 403 {object} services.ErrorResponse
// @Router /payments/bulk-confirm [post]
func (h *DepositHandler) BulkConfirmPayments(w http.ResponseWriter, r *http.Request) {
	actor := actorFromRequest(r)

	var req struct {
		PaymentIDs []string `json:"paymentIds"`
		Confirmed  bool     `json:"confirmed"`
		Notes      string   `json:"notes"`
	}
	if err := decodeJSONBody(w, r, &req); err != nil {
		services.SendErrorResponse(w, err.Error(), http.StatusBadRequest, nil)
		return
	}
	if len(req.PaymentIDs) == 0 {
		services.SendErrorResponse(w, "paymentIds must not be empty", http.StatusBadRequest, nil)
		return
	}

	report, err := h.service.BulkConfirmPayments(r.Context(), req.PaymentIDs, actor, req.Confirmed, req.Notes)
	if err != nil {
		respondError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}
