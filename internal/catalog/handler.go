package catalog

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"

	"github.com/odyssey-erp/odyssey-retail/internal/platform/httpx"
	"github.com/odyssey-erp/odyssey-retail/internal/shared"
)

// Handler exposes the product catalog over JSON.
type Handler struct {
	logger  *slog.Logger
	service *Service
}

// NewHandler constructs Handler.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service}
}

// MountRoutes attaches product routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/", h.search)
	r.Post("/", h.create)
	r.Get("/low-stock", h.lowStock)
	r.Get("/{id}", h.get)
	r.Patch("/{id}", h.update)
	r.Delete("/{id}", h.remove)
	r.Post("/{id}/restore", h.restore)
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	var req CreateProductRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		h.fail(w, r, "decode product", err)
		return
	}
	p, err := h.service.Create(r.Context(), req)
	if err != nil {
		h.fail(w, r, "create product", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, p)
}

func (h *Handler) search(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	result, err := h.service.Search(r.Context(), SearchQuery{
		Query:  q.Get("q"),
		Status: Status(q.Get("status")),
		Page:   httpx.QueryInt(r, "page", 1),
		Limit:  httpx.QueryInt(r, "limit", searchDefaultLimit),
	})
	if err != nil {
		h.fail(w, r, "search products", err)
		return
	}
	httpx.JSON(w, http.StatusOK, result)
}

func (h *Handler) lowStock(w http.ResponseWriter, r *http.Request) {
	result, err := h.service.LowStock(r.Context(), httpx.QueryInt(r, "limit", lowStockDefaultLimit))
	if err != nil {
		h.fail(w, r, "low stock", err)
		return
	}
	httpx.JSON(w, http.StatusOK, result)
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	id, ok := h.productID(w, r)
	if !ok {
		return
	}
	p, err := h.service.Get(r.Context(), id)
	if err != nil {
		h.fail(w, r, "get product", err)
		return
	}
	httpx.JSON(w, http.StatusOK, p)
}

func (h *Handler) update(w http.ResponseWriter, r *http.Request) {
	id, ok := h.productID(w, r)
	if !ok {
		return
	}
	var req UpdateProductRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		h.fail(w, r, "decode product patch", err)
		return
	}
	p, err := h.service.Update(r.Context(), id, req)
	if err != nil {
		h.fail(w, r, "update product", err)
		return
	}
	httpx.JSON(w, http.StatusOK, p)
}

func (h *Handler) remove(w http.ResponseWriter, r *http.Request) {
	id, ok := h.productID(w, r)
	if !ok {
		return
	}
	res, err := h.service.SoftDelete(r.Context(), id)
	if err != nil {
		h.fail(w, r, "delete product", err)
		return
	}
	httpx.JSON(w, http.StatusOK, res)
}

func (h *Handler) restore(w http.ResponseWriter, r *http.Request) {
	id, ok := h.productID(w, r)
	if !ok {
		return
	}
	p, err := h.service.Restore(r.Context(), id)
	if err != nil {
		h.fail(w, r, "restore product", err)
		return
	}
	httpx.JSON(w, http.StatusOK, p)
}

func (h *Handler) productID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		httpx.RespondError(w, shared.Invalid("id", "must be a UUID"))
		return uuid.Nil, false
	}
	return id, true
}

func (h *Handler) fail(w http.ResponseWriter, r *http.Request, msg string, err error) {
	if httpx.StatusOf(err) == http.StatusInternalServerError {
		h.logger.Error(msg, slog.Any("error", err), slog.String("request_id", middleware.GetReqID(r.Context())))
	}
	httpx.RespondError(w, err)
}
