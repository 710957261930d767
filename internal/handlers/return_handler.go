package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/gemachnet/backend/internal/services"
)

type ReturnHandler struct {
	service *services.ReturnService
}

func NewReturnHandler(service *services.ReturnService) *ReturnHandler {
	return &ReturnHandler{service: service}
}

// ProcessReturn marks an item returned and queues the refund
// @Summary Process an item return
// @Description Mark the loan returned, queue a refund per the item condition, and sync stock
// @Tags returns
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param transactionId path string true "Transaction ID"
// @Param request body object{itemCondition=string,notes=string} false "Return details"
// @Success 200 {object} services.ReturnResult
// @Failure 403 {object} services.ErrorResponse
// @Failure 409 {object} services.ErrorResponse
// @Router /transactions/{transactionId}/return [post]
func (h *ReturnHandler) ProcessReturn(w http.ResponseWriter, r *http.Request) {
	actor := actorFromRequest(r)

	req := services.ReturnRequest{TransactionID: chi.URLParam(r, "transactionId")}
	if r.ContentLength > 0 {
		var body struct {
			ItemCondition string `json:"itemCondition"`
			Notes         string `json:"notes"`
		}
		if err := decodeJSONBody(w, r, &body); err != nil {
			services.SendErrorResponse(w, err.Error(), http.StatusBadRequest, nil)
			return
		}
		req.ItemCondition = body.ItemCondition
		req.Notes = body.Notes
	}

	result, err := h.service.ProcessItemReturn(r.Context(), req, actor)
	if err != nil {
		respondError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// BulkProcessReturns processes several returns at once
// @Summary Bulk process returns
// @Description Process returns sequentially with a per-id report; admin only
// @Tags returns
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body object{returns=[]services.ReturnRequest} true "Returns to process"
// @Success 200 {object} services.BulkReport
// @Failure 403 {object} services.ErrorResponse
// @Router /returns/bulk [post]
func (h *ReturnHandler) BulkProcessReturns(w http.ResponseWriter, r *http.Request) {
	actor := actorFromRequest(r)

	var req struct {
		Returns []services.ReturnRequest `json:"returns"`
	}
	if err := decodeJSONBody(w, r, &req); err != nil {
		services.SendErrorResponse(w, err.Error(), http.StatusBadRequest, nil)
		return
	}
	if len(req.Returns) == 0 {
		services.SendErrorResponse(w, "returns must not be empty", http.StatusBadRequest, nil)
		return
	}

	report, err := h.service.BulkProcessReturns(r.Context(), req.Returns, actor)
	if err != nil {
		respondError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}
