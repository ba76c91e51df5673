package handlers

import (
	"context"
	"net/http"

	"github.com/lpgagnon/passtrack-backend/internal/api/dto"
	"github.com/lpgagnon/passtrack-backend/internal/application/reconcile"
	"github.com/lpgagnon/passtrack-backend/internal/application/reminder"
)

// Reconciler triggers one reconciliation tick. Satisfied by the engine.
type Reconciler interface {
	ReconcileOnce(ctx context.Context) (*reconcile.Summary, error)
}

// ReminderSweeper triggers one reminder sweep. Satisfied by the driver.
type ReminderSweeper interface {
	SendUnpaidReminders(ctx context.Context, force bool) (*reminder.Summary, error)
}

// ReconcileHandler exposes on-demand reconciliation and reminder runs, on
// top of the background schedule.
type ReconcileHandler struct {
	*Base
	engine   Reconciler
	reminder ReminderSweeper
}

// NewReconcileHandler creates a reconcile handler.
func NewReconcileHandler(engine Reconciler, reminder ReminderSweeper) *ReconcileHandler {
	return &ReconcileHandler{Base: &Base{}, engine: engine, reminder: reminder}
}

// Run handles POST /api/reconcile.
func (h *ReconcileHandler) Run(w http.ResponseWriter, r *http.Request) {
	summary, err := h.engine.ReconcileOnce(r.Context())
	if err != nil {
		h.WriteError(w, http.StatusInternalServerError,
			dto.NewAPIError(dto.ErrCodeInternalError, err.Error()))
		return
	}

	h.WriteJSON(w, http.StatusOK, dto.ReconcileResponse{
		Fetched: summary.Fetched,
		Matched: summary.Matched,
		NoMatch: summary.NoMatch,
		Skipped: summary.Skipped,
		Errored: summary.Errored,
	})
}

// Reminders handles POST /api/reminders. The force query parameter bypasses
// the per-passport throttle.
func (h *ReconcileHandler) Reminders(w http.ResponseWriter, r *http.Request) {
	force := ParseBoolParam(r, "force", false)

	summary, err := h.reminder.SendUnpaidReminders(r.Context(), force)
	if err != nil {
		h.WriteError(w, http.StatusInternalServerError,
			dto.NewAPIError(dto.ErrCodeInternalError, err.Error()))
		return
	}

	h.WriteJSON(w, http.StatusOK, dto.ReminderResponse{
		Scanned: summary.Scanned,
		Sent:    summary.Sent,
		Skipped: summary.Skipped,
		Errored: summary.Errored,
	})
}
