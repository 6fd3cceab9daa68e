package sales

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

func newTestRouter(repo *memoryRepo) chi.Router {
	svc := NewService(repo, ServiceConfig{}, nil, nil, nil, nil)
	h := NewHandler(slog.New(slog.NewTextHandler(io.Discard, nil)), svc)
	r := chi.NewRouter()
	r.Route("/api/sales", h.MountRoutes)
	return r
}

func TestHandlerCreateAndGetSale(t *testing.T) {
	repo := newMemoryRepo()
	id := repo.addProduct("Cafe", "60.50", 3, 0)
	r := newTestRouter(repo)

	body := `{"items":[{"productId":"` + id.String() + `","qty":2,"price":60.5,"vat":21}],` +
		`"payments":[{"method":"cash","amount":100},{"method":"debit","amount":21}]}`
	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/api/sales", strings.NewReader(body)))
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())

	var res struct {
		SaleID string  `json:"saleId"`
		Total  float64 `json:"total"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &res))
	require.Equal(t, 121.0, res.Total)
	require.Equal(t, 1, repo.stock(id))

	rr = httptest.NewRecorder()
	r.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/sales/"+res.SaleID, nil))
	require.Equal(t, http.StatusOK, rr.Code)
	require.Contains(t, rr.Body.String(), `"method":"debit"`)
}

func TestHandlerSaleErrors(t *testing.T) {
	repo := newMemoryRepo()
	id := repo.addProduct("Te", "121.00", 1, 0)
	r := newTestRouter(repo)

	for _, body := range []string{
		`{"items":[],"payments":[{"method":"cash","amount":1}]}`,
		`{"items":[{"productId":"` + id.String() + `","qty":1,"price":121,"vat":21}],"payments":[]}`,
		`{"items":[{"productId":"` + id.String() + `","qty":1,"price":121,"vat":21}],"payments":[{"method":"cash","amount":120.99}]}`,
		`{"items":[{"productId":"` + id.String() + `","qty":2,"price":121,"vat":21}],"payments":[{"method":"cash","amount":242}]}`,
		`{"items":[{"productId":"7c0e3c3e-8a3e-4c55-9d43-3f1f0e0c2a11","qty":1,"price":1,"vat":21}],"payments":[{"method":"cash","amount":1}]}`,
		`{"items":`,
	} {
		rr := httptest.NewRecorder()
		r.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/api/sales", strings.NewReader(body)))
		require.Equal(t, http.StatusBadRequest, rr.Code, body)
	}
	require.Equal(t, 1, repo.stock(id))

	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/sales/7c0e3c3e-8a3e-4c55-9d43-3f1f0e0c2a11", nil))
	require.Equal(t, http.StatusNotFound, rr.Code)

	rr = httptest.NewRecorder()
	r.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/sales/abc", nil))
	require.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestHandlerReplaysIdempotentSale(t *testing.T) {
	repo := newMemoryRepo()
	id := repo.addProduct("Soda", "2.00", 5, 0)
	r := newTestRouter(repo)
	body := `{"items":[{"productId":"` + id.String() + `","qty":1,"price":2,"vat":21}],"payments":[{"method":"cash","amount":2}]}`

	codes := []int{}
	for i := 0; i < 2; i++ {
		req := httptest.NewRequest(http.MethodPost, "/api/sales", strings.NewReader(body))
		req.Header.Set("Idempotency-Key", "till-3:0001")
		rr := httptest.NewRecorder()
		r.ServeHTTP(rr, req)
		codes = append(codes, rr.Code)
		if i == 1 {
			require.Equal(t, "true", rr.Header().Get("Idempotent-Replayed"))
		}
	}
	require.Equal(t, []int{http.StatusCreated, http.StatusOK}, codes)
	require.Equal(t, 4, repo.stock(id))
}
