package source

import (
	"context"
	"net/http"

	"github.com/frahmantamala/sms-expense-pipeline/internal/transport"
)

type ServiceAPI interface {
	ListActive(ctx context.Context) ([]SourceResponse, error)
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

func (h *Handler) GetSources(w http.ResponseWriter, r *http.Request) {
	sources, err := h.Service.ListActive(r.Context())
	if err != nil {
		h.Logger.Error("GetSources: failed to get payment sources", "error", err)
		h.WriteError(w, http.StatusInternalServerError, "failed to get payment sources")
		return
	}

	h.WriteJSON(w, http.StatusOK, SourcesResponse{Sources: sources})
}
