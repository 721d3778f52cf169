package orders

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gorilla/mux"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jogardn/dtc-configurator/internal/auth"
	"github.com/jogardn/dtc-configurator/pkg/models"
)

const orderBody = `{
	"product_id": "model-y",
	"selection": {"options": {"drive": "lr-awd", "color": "pearl-white", "wheels": "helix-20", "interior": "all-black", "seats": "five-seat"}},
	"shipping_address": {"street": "1 Tesla Rd", "city": "Austin", "state": "TX", "zip_code": "78725", "country": "US"},
	"total_price": 1
}`

// newTestRouter routes requests as the caller named in the X-Test-User
// header: "admin", a plain user id, or nobody when absent.
func newTestRouter(t *testing.T) (*mux.Router, *fixture) {
	f := newFixture(t)
	logger := logrus.New()
	logger.SetLevel(logrus.ErrorLevel)

	router := mux.NewRouter()
	router.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			switch user := r.Header.Get("X-Test-User"); user {
			case "":
			case "admin":
				r = r.WithContext(auth.WithIdentity(r.Context(), admin))
			default:
				r = r.WithContext(auth.WithIdentity(r.Context(), &models.Identity{UserID: user}))
			}
			next.ServeHTTP(w, r)
		})
	})
	NewHandler(f.svc, logger).Register(router.PathPrefix("/api/orders").Subrouter())
	return router, f
}

func do(router http.Handler, method, path, user, body string, headers ...string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	if user != "" {
		req.Header.Set("X-Test-User", user)
	}
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func decodeOrder(t *testing.T, w *httptest.ResponseRecorder) *models.Order {
	t.Helper()
	var resp models.OrderResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.True(t, resp.Success)
	require.NotNil(t, resp.Order)
	return resp.Order
}

func TestCreateOrderEndpoint(t *testing.T) {
	router, _ := newTestRouter(t)

	w := do(router, http.MethodPost, "/api/orders", "user-alice", orderBody)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	order := decodeOrder(t, w)
	assert.Equal(t, "user-alice", order.UserID)
	assert.Equal(t, models.StatusPending, order.Status)
	assert.True(t, order.TotalPrice.Equal(decimal.NewFromInt(44490)))
}

func TestCreateOrderEndpointErrors(t *testing.T) {
	router, f := newTestRouter(t)

	w := do(router, http.MethodPost, "/api/orders", "", orderBody)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = do(router, http.MethodPost, "/api/orders", "user-alice", `{"product_id":`)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	bad := strings.Replace(orderBody, `"helix-20"`, `"chrome-22"`, 1)
	w = do(router, http.MethodPost, "/api/orders", "user-alice", bad)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), `"kind":"invalid_selection"`)

	noZip := strings.Replace(orderBody, `"zip_code": "78725", `, "", 1)
	w = do(router, http.MethodPost, "/api/orders", "user-alice", noZip)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), `"shipping_address.zip_code"`)

	assert.Zero(t, f.store.OrderCount())
}

func TestCreateOrderEndpointReplay(t *testing.T) {
	router, f := newTestRouter(t)

	first := do(router, http.MethodPost, "/api/orders", "user-alice", orderBody, IdempotencyHeader, "abc")
	require.Equal(t, http.StatusCreated, first.Code)
	second := do(router, http.MethodPost, "/api/orders", "user-alice", orderBody, IdempotencyHeader, "abc")
	require.Equal(t, http.StatusOK, second.Code)

	assert.Equal(t, decodeOrder(t, first).ID, decodeOrder(t, second).ID)
	assert.Equal(t, 1, f.store.OrderCount())
}

func TestOrderReadEndpoints(t *testing.T) {
	router, _ := newTestRouter(t)
	order := decodeOrder(t, do(router, http.MethodPost, "/api/orders", "user-alice", orderBody))

	assert.Equal(t, http.StatusOK, do(router, http.MethodGet, "/api/orders/"+order.ID, "user-alice", "").Code)
	assert.Equal(t, http.StatusOK, do(router, http.MethodGet, "/api/orders/"+order.ID, "admin", "").Code)
	assert.Equal(t, http.StatusForbidden, do(router, http.MethodGet, "/api/orders/"+order.ID, "user-bob", "").Code)
	assert.Equal(t, http.StatusNotFound, do(router, http.MethodGet, "/api/orders/nope", "user-alice", "").Code)

	w := do(router, http.MethodGet, "/api/orders/my-orders", "user-bob", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"success":true,"orders":[],"count":0}`, w.Body.String())

	w = do(router, http.MethodGet, "/api/orders/my-orders", "user-alice", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"count":1`)

	assert.Equal(t, http.StatusForbidden, do(router, http.MethodGet, "/api/orders", "user-alice", "").Code)
	w = do(router, http.MethodGet, "/api/orders", "admin", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"count":1`)
}

func TestUpdateStatusEndpoint(t *testing.T) {
	router, f := newTestRouter(t)
	order := decodeOrder(t, do(router, http.MethodPost, "/api/orders", "user-alice", orderBody))
	path := "/api/orders/" + order.ID + "/status"

	w := do(router, http.MethodPatch, path, "user-alice", `{"status":"delivered"}`)
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = do(router, http.MethodPatch, path, "admin", `{"status":"lost"}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), `"kind":"invalid_status"`)

	w = do(router, http.MethodPatch, "/api/orders/nope/status", "admin", `{"status":"shipped"}`)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = do(router, http.MethodPatch, path, "admin", `{"status":"confirmed"}`)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, models.StatusConfirmed, decodeOrder(t, w).Status)

	stored, err := f.store.GetOrder(context.Background(), order.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusConfirmed, stored.Status)
}
