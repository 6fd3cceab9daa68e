package purchases

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"
)

func TestHandlerCreateAndGetPurchase(t *testing.T) {
	repo := newMemoryRepo()
	id := repo.addProduct("Cafe", "8.00", 3)
	h := NewHandler(slog.New(slog.NewTextHandler(io.Discard, nil)), NewService(repo, nil, nil, nil))
	r := chi.NewRouter()
	r.Route("/api/purchases", h.MountRoutes)

	body := `{"items":[{"productId":"` + id.String() + `","qty":5,"cost":10}]}`
	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/api/purchases", strings.NewReader(body)))
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())

	var res struct {
		PurchaseID string  `json:"purchaseId"`
		Total      float64 `json:"total"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &res))
	require.Equal(t, 50.0, res.Total)

	rr = httptest.NewRecorder()
	r.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/purchases/"+res.PurchaseID, nil))
	require.Equal(t, http.StatusOK, rr.Code)
	require.Contains(t, rr.Body.String(), id.String())
}

func TestHandlerPurchaseErrors(t *testing.T) {
	h := NewHandler(slog.New(slog.NewTextHandler(io.Discard, nil)), NewService(newMemoryRepo(), nil, nil, nil))
	r := chi.NewRouter()
	r.Route("/api/purchases", h.MountRoutes)

	for _, body := range []string{
		`{"items":[]}`,
		`{"items":[{"productId":"7c0e3c3e-8a3e-4c55-9d43-3f1f0e0c2a11","qty":1}]}`,
		`{"items":[{"productId":"nope","qty":1}]}`,
	} {
		rr := httptest.NewRecorder()
		r.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/api/purchases", strings.NewReader(body)))
		require.Equal(t, http.StatusBadRequest, rr.Code, body)
	}

	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/purchases/7c0e3c3e-8a3e-4c55-9d43-3f1f0e0c2a11", nil))
	require.Equal(t, http.StatusNotFound, rr.Code)
}

func TestHandlerReplaysIdempotentPurchase(t *testing.T) {
	repo := newMemoryRepo()
	id := repo.addProduct("Arroz", "2.00", 0)
	h := NewHandler(slog.New(slog.NewTextHandler(io.Discard, nil)), NewService(repo, nil, nil, nil))
	r := chi.NewRouter()
	r.Route("/api/purchases", h.MountRoutes)
	body := `{"items":[{"productId":"` + id.String() + `","qty":4}]}`

	send := func() *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/api/purchases", strings.NewReader(body))
		req.Header.Set("Idempotency-Key", "remito-77")
		rr := httptest.NewRecorder()
		r.ServeHTTP(rr, req)
		return rr
	}
	require.Equal(t, http.StatusCreated, send().Code)
	rr := send()
	require.Equal(t, http.StatusOK, rr.Code)
	require.Equal(t, "true", rr.Header().Get("Idempotent-Replayed"))
	require.Equal(t, 4, repo.products[id].ref.StockQty)
}
