package purchases

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"

	"github.com/odyssey-erp/odyssey-retail/internal/platform/httpx"
	"github.com/odyssey-erp/odyssey-retail/internal/shared"
)

// Handler exposes the purchase ledger over JSON.
type Handler struct {
	logger  *slog.Logger
	service *Service
}

// NewHandler constructs Handler.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service}
}

// MountRoutes attaches purchase routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/", h.create)
	r.Get("/{id}", h.get)
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	var req CreatePurchaseRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		h.fail(w, r, "decode purchase", err)
		return
	}
	req.IdempotencyKey = r.Header.Get(shared.IdempotencyHeader)
	res, err := h.service.Create(r.Context(), req)
	if err != nil {
		h.fail(w, r, "create purchase", err)
		return
	}
	httpx.Created(w, res, res.Replayed)
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		httpx.RespondError(w, shared.Invalid("id", "must be a UUID"))
		return
	}
	p, err := h.service.Get(r.Context(), id)
	if err != nil {
		h.fail(w, r, "get purchase", err)
		return
	}
	httpx.JSON(w, http.StatusOK, p)
}

func (h *Handler) fail(w http.ResponseWriter, r *http.Request, msg string, err error) {
	if httpx.StatusOf(err) == http.StatusInternalServerError {
		h.logger.Error(msg, slog.Any("error", err), slog.String("request_id", middleware.GetReqID(r.Context())))
	}
	httpx.RespondError(w, err)
}
