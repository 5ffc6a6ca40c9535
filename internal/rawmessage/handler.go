package rawmessage

import (
	"context"
	"net/http"

	"github.com/frahmantamala/sms-expense-pipeline/internal"
	"github.com/frahmantamala/sms-expense-pipeline/internal/transport"
	"github.com/go-chi/chi"
)

type ServiceAPI interface {
	Ingest(ctx context.Context, callerID string, req IngestRequest) (*RawMessage, error)
	Get(ctx context.Context, userID, id string) (*RawMessage, error)
	List(ctx context.Context, userID string, filter ListFilter) ([]*RawMessage, error)
}

// Requeuer hands a raw message id back to the delivery queue.
type Requeuer interface {
	Requeue(ctx context.Context, id string) error
}

type Handler struct {
	*transport.BaseHandler
	Service  ServiceAPI
	Requeuer Requeuer
}

func NewHandler(baseHandler *transport.BaseHandler, service ServiceAPI, requeuer Requeuer) *Handler {
	return &Handler{
		BaseHandler: baseHandler,
		Service:     service,
		Requeuer:    requeuer,
	}
}

// Ingest handles POST /sms from the device forwarder.
func (h *Handler) Ingest(w http.ResponseWriter, r *http.Request) {
	callerID := internal.UserIDFromContext(r.Context())

	var req IngestRequest
	if !h.DecodeJSON(w, r, &req) {
		return
	}

	msg, err := h.Service.Ingest(r.Context(), callerID, req)
	if err != nil {
		h.HandleServiceError(w, err)
		return
	}

	h.WriteJSON(w, http.StatusCreated, msg)
}

func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	userID := internal.UserIDFromContext(r.Context())

	state, ok := ParseStateFilter(r.URL.Query().Get("state"))
	if !ok {
		h.WriteAppError(w, internal.NewValidationFieldError("state",
			"state must be one of: pending, retryable, failed, committed", internal.ErrCodeValidationFailed))
		return
	}

	limit, offset := h.Pagination(r)
	filter := ListFilter{State: state, Limit: limit, Offset: offset}

	msgs, err := h.Service.List(r.Context(), userID, filter)
	if err != nil {
		h.HandleServiceError(w, err)
		return
	}

	h.WriteJSON(w, http.StatusOK, ListResponse{
		RawMessages: msgs,
		Limit:       limit,
		Offset:      offset,
	})
}

// Replay puts a Created or RetryableFailed message back on the queue.
func (h *Handler) Replay(w http.ResponseWriter, r *http.Request) {
	userID := internal.UserIDFromContext(r.Context())
	id := chi.URLParam(r, "id")

	msg, err := h.Service.Get(r.Context(), userID, id)
	if err != nil {
		h.HandleServiceError(w, err)
		return
	}

	state := msg.State()
	if state.IsTerminal() {
		h.Logger.Info("Replay: raw message already settled", "raw_message_id", id, "state", state)
		h.WriteAppError(w, internal.ErrAlreadyProcessed)
		return
	}

	if err := h.Requeuer.Requeue(r.Context(), msg.ID); err != nil {
		h.Logger.Error("Replay: failed to requeue raw message", "raw_message_id", id, "error", err)
		h.HandleServiceError(w, err)
		return
	}

	h.Logger.Info("Replay: raw message requeued", "raw_message_id", id, "user_id", userID)
	h.WriteJSON(w, http.StatusAccepted, ReplayResponse{RawMessageID: msg.ID, State: state})
}
