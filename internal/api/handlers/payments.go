package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/lpgagnon/passtrack-backend/internal/api/dto"
	"github.com/lpgagnon/passtrack-backend/internal/infrastructure/storage"
)

// ManualArchiver closes out a logged payment by hand. Satisfied by the
// reconciliation engine.
type ManualArchiver interface {
	ArchiveManually(ctx context.Context, senderName string, amount decimal.Decimal, fromEmail, note string) (string, error)
}

// PaymentsHandler serves the payment log and the manual archive action.
type PaymentsHandler struct {
	*Base
	archiver ManualArchiver
}

// NewPaymentsHandler creates a payments handler.
func NewPaymentsHandler(repo storage.Repository, archiver ManualArchiver) *PaymentsHandler {
	return &PaymentsHandler{Base: NewBase(repo), archiver: archiver}
}

// List handles GET /api/payments with optional result, limit and offset
// query parameters.
func (h *PaymentsHandler) List(w http.ResponseWriter, r *http.Request) {
	filters := storage.NotificationFilters{
		Limit:  ParseIntParam(r, "limit", 50),
		Offset: ParseIntParam(r, "offset", 0),
	}

	if result := r.URL.Query().Get("result"); result != "" {
		result = strings.ToUpper(result)
		switch storage.Result(result) {
		case storage.ResultMatched, storage.ResultNoMatch, storage.ResultManualProcessed:
			filters.Result = storage.Result(result)
		default:
			h.WriteError(w, http.StatusBadRequest, dto.BadRequestError("unknown result filter: "+result))
			return
		}
	}

	payments, err := h.repo.ListNotifications(filters)
	if err != nil {
		h.WriteError(w, http.StatusInternalServerError, dto.InternalError())
		return
	}

	h.WriteJSON(w, http.StatusOK, dto.PaymentListResponse{
		Payments: payments,
		Count:    len(payments),
	})
}

// Archive handles POST /api/payments/archive.
func (h *PaymentsHandler) Archive(w http.ResponseWriter, r *http.Request) {
	var req dto.ArchivePaymentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.WriteError(w, http.StatusBadRequest, dto.BadRequestError("invalid JSON body"))
		return
	}
	if msg := req.Validate(); msg != "" {
		h.WriteError(w, http.StatusBadRequest, dto.BadRequestError(msg))
		return
	}

	amount, err := decimal.NewFromString(req.Amount)
	if err != nil {
		h.WriteError(w, http.StatusBadRequest, dto.BadRequestError("invalid amount: "+req.Amount))
		return
	}

	message, err := h.archiver.ArchiveManually(r.Context(), req.SenderName, amount, req.FromEmail, req.Note)
	if err != nil {
		switch {
		case strings.Contains(err.Error(), "no logged payment"):
			h.WriteError(w, http.StatusNotFound, dto.NotFoundError("payment"))
		case strings.Contains(err.Error(), "already"):
			h.WriteError(w, http.StatusConflict, dto.ConflictError(err.Error()))
		default:
			h.WriteError(w, http.StatusInternalServerError, dto.InternalError())
		}
		return
	}

	h.WriteJSON(w, http.StatusOK, dto.ArchivePaymentResponse{Message: message})
}
