package expense

import (
	"context"
	"net/http"

	"github.com/frahmantamala/sms-expense-pipeline/internal"
	"github.com/frahmantamala/sms-expense-pipeline/internal/transport"
	"github.com/go-chi/chi"
)

type ServiceAPI interface {
	Get(ctx context.Context, userID, id string) (*Expense, error)
	List(ctx context.Context, userID string, limit, offset int) ([]*Expense, error)
	Update(ctx context.Context, userID, id string, req UpdateExpenseRequest) (*Expense, error)
}

type Handler struct {
	*transport.BaseHandler
	Service ServiceAPI
}

func NewHandler(baseHandler *transport.BaseHandler, service ServiceAPI) *Handler {
	return &Handler{
		BaseHandler: baseHandler,
		Service:     service,
	}
}

func (h *Handler) GetExpenses(w http.ResponseWriter, r *http.Request) {
	userID := internal.UserIDFromContext(r.Context())
	limit, offset := h.Pagination(r)

	expenses, err := h.Service.List(r.Context(), userID, limit, offset)
	if err != nil {
		h.Logger.Error("GetExpenses: service error", "error", err, "user_id", userID)
		h.HandleServiceError(w, err)
		return
	}

	h.WriteJSON(w, http.StatusOK, ListResponse{
		Expenses: expenses,
		Limit:    limit,
		Offset:   offset,
	})
}

func (h *Handler) GetExpense(w http.ResponseWriter, r *http.Request) {
	userID := internal.UserIDFromContext(r.Context())
	expenseID := chi.URLParam(r, "id")

	exp, err := h.Service.Get(r.Context(), userID, expenseID)
	if err != nil {
		h.HandleServiceError(w, err)
		return
	}

	h.WriteJSON(w, http.StatusOK, exp)
}

func (h *Handler) UpdateExpense(w http.ResponseWriter, r *http.Request) {
	userID := internal.UserIDFromContext(r.Context())
	expenseID := chi.URLParam(r, "id")

	var req UpdateExpenseRequest
	if !h.DecodeJSON(w, r, &req) {
		return
	}

	exp, err := h.Service.Update(r.Context(), userID, expenseID, req)
	if err != nil {
		h.Logger.Warn("UpdateExpense: service error", "error", err, "expense_id", expenseID, "user_id", userID)
		h.HandleServiceError(w, err)
		return
	}

	h.WriteJSON(w, http.StatusOK, exp)
}
