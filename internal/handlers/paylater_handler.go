package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	qrcode "github.com/skip2/go-qrcode"

	"github.com/gemachnet/backend/internal/config"
	"github.com/gemachnet/backend/internal/services"
)

type PayLaterHandler struct {
	service *services.PayLaterService
	cfg     *config.EngineConfig
}

func NewPayLaterHandler(service *services.PayLaterService, cfg *config.EngineConfig) *PayLaterHandler {
	return &PayLaterHandler{service: service, cfg: cfg}
}

// CreateSetupIntent starts the deferred-charge flow
// @Summary Start pay-later flow
// @Description Create a provider setup intent and magic status link for a loan
// @Tags pay-later
// @Produce json
// @Security BearerAuth
// @Param transactionId path string true "Transaction ID"
// @Success 200 {object} services.SetupIntentResult
// @Failure 404 {object} services.ErrorResponse
// @Failure 409 {object} services.ErrorResponse
// @Router /transactions/{transactionId}/pay-later [post]
func (h *PayLaterHandler) CreateSetupIntent(w http.ResponseWriter, r *http.Request) {
	transactionID := chi.URLParam(r, "transactionId")

	result, err := h.service.CreateSetupIntent(r.Context(), transactionID)
	if err != nil {
		respondError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// ApproveTransaction approves a pay-later request
// @Summary Approve pay-later request
// @Tags pay-later
// @Produce json
// @Security BearerAuth
// @Param transactionId path string true "Transaction ID"
// @Success 200 {object} map[string]string
// @Failure 403 {object} services.ErrorResponse
// @Failure 409 {object} services.ErrorResponse
// @Router /pay-later/{transactionId}/approve [post]
func (h *PayLaterHandler) ApproveTransaction(w http.ResponseWriter, r *http.Request) {
	transactionID := chi.URLParam(r, "transactionId")
	actor := actorFromRequest(r)

	if err := h.service.ApproveTransaction(r.Context(), transactionID, actor); err != nil {
		respondError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "approved"})
}

// DeclineTransaction declines a pay-later request still in setup
// @Summary Decline pay-later request
// @Tags pay-later
// @Produce json
// @Security BearerAuth
// @Param transactionId path string true "Transaction ID"
// @Success 200 {object} map[string]string
// @Failure 403 {object} services.ErrorResponse
// @Failure 409 {object} services.ErrorResponse
// @Router /pay-later/{transactionId}/decline [post]
func (h *PayLaterHandler) DeclineTransaction(w http.ResponseWriter, r *http.Request) {
	transactionID := chi.URLParam(r, "transactionId")
	actor := actorFromRequest(r)

	if err := h.service.DeclineTransaction(r.Context(), transactionID, actor); err != nil {
		respondError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "declined"})
}

// ChargeTransaction charges the deposit off-session
// @Summary Charge an approved pay-later deposit
// @Description Execute the off-session charge; the outcome is reported in the response, never thrown
// @Tags pay-later
// @Produce json
// @Security BearerAuth
// @Param transactionId path string true "Transaction ID"
// @Success 200 {object} services.ChargeOutcome
// @Failure 403 {object} services.ErrorResponse
// @Failure 409 {object} services.ErrorResponse
// @Router /pay-later/{transactionId}/charge [post]
func (h *PayLaterHandler) ChargeTransaction(w http.ResponseWriter, r *http.Request) {
	transactionID := chi.URLParam(r, "transactionId")
	actor := actorFromRequest(r)

	outcome, err := h.service.ChargeTransaction(r.Context(), transactionID, actor)
	if err != nil {
		respondError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, outcome)
}

// GetStatus serves the public borrower status page data
// @Summary Get transaction status by magic token
// @Description Public endpoint; requires the magic token issued with the setup intent
// @Tags pay-later
// @Produce json
// @Param transactionId path string true "Transaction ID"
// @Param token query string true "Magic token"
// @Success 200 {object} services.TransactionStatus
// @Failure 404 {object} services.ErrorResponse
// @Router /status/{transactionId} [get]
func (h *PayLaterHandler) GetStatus(w http.ResponseWriter, r *http.Request) {
	transactionID := chi.URLParam(r, "transactionId")
	token := r.URL.Query().Get("token")
	if token == "" {
		services.SendErrorResponse(w, "Transaction not found", http.StatusNotFound, nil)
		return
	}

	status, err := h.service.GetTransactionByToken(r.Context(), transactionID, token)
	if err != nil {
		respondError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, status)
}

// GetStatusQR renders the status link as a QR code
// @Summary Get status link QR code
// @Description PNG QR code of the magic status link, for printing at the counter
// @Tags pay-later
// @Produce png
// @Param transactionId path string true "Transaction ID"
// @Param token query string true "Magic token"
// @Success 200 {file} binary
// @Failure 404 {object} services.ErrorResponse
// @Router /status/{transactionId}/qr [get]
func (h *PayLaterHandler) GetStatusQR(w http.ResponseWriter, r *http.Request) {
	transactionID := chi.URLParam(r, "transactionId")
	token := r.URL.Query().Get("token")
	if token == "" {
		services.SendErrorResponse(w, "Transaction not found", http.StatusNotFound, nil)
		return
	}

	// Token must be valid before the link is rendered.
	if _, err := h.service.GetTransactionByToken(r.Context(), transactionID, token); err != nil {
		respondError(w, err)
		return
	}

	statusURL := h.cfg.StatusBaseURL + "/status/" + transactionID + "?token=" + token
	png, err := qrcode.Encode(statusURL, qrcode.Medium, 256)
	if err != nil {
		services.SendErrorResponse(w, "Failed to render QR code", http.StatusInternalServerError, nil)
		return
	}

	w.Header().Set("Content-Type", "image/png")
	w.WriteHeader(http.StatusOK)
	w.Write(png)
}
