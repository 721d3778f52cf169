package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestMiddlewareUsesRouteTemplate(t *testing.T) {
	m := New()
	router := mux.NewRouter()
	router.Use(m.Middleware)
	router.HandleFunc("/api/orders/{id}", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})

	for _, id := range []string{"a", "b"} {
		router.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/api/orders/"+id, nil))
	}

	assert.Equal(t, 2.0, testutil.ToFloat64(m.Requests.WithLabelValues("/api/orders/{id}", "GET", "404")))
}

func TestInstancesDoNotCollide(t *testing.T) {
	a, b := New(), New()
	a.OrdersSubmitted.Inc()
	assert.Equal(t, 1.0, testutil.ToFloat64(a.OrdersSubmitted))
	assert.Equal(t, 0.0, testutil.ToFloat64(b.OrdersSubmitted))
}

func TestHandlerExposesCollectors(t *testing.T) {
	m := New()
	m.Quotes.WithLabelValues("ok").Inc()

	w := httptest.NewRecorder()
	m.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.True(t, strings.Contains(w.Body.String(), "configurator_pricing_quotes_total"))
}
