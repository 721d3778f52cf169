// Package server assembles the HTTP surface of the configurator API.
package server

import (
	"context"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"

	"github.com/jogardn/dtc-configurator/internal/auth"
	"github.com/jogardn/dtc-configurator/internal/catalog"
	"github.com/jogardn/dtc-configurator/internal/circuitbreaker"
	"github.com/jogardn/dtc-configurator/internal/httpx"
	"github.com/jogardn/dtc-configurator/internal/metrics"
	"github.com/jogardn/dtc-configurator/internal/orders"
	"github.com/jogardn/dtc-configurator/internal/websocket"
)

const healthTimeout = 3 * time.Second

// Pinger reports whether the backing store is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

type Deps struct {
	Store       Pinger
	StoreDriver string
	Auth        *auth.Service
	Catalog     *catalog.Service
	Orders      *orders.Service
	Hub         *websocket.Hub
	Breakers    *circuitbreaker.Manager
	Metrics     *metrics.Metrics
	CORSOrigins string
	Logger      *logrus.Logger
}

// NewHandler returns the full router wrapped in CORS handling, so preflight
// requests are answered before route matching.
func NewHandler(d Deps) http.Handler {
	router := mux.NewRouter()

	router.HandleFunc("/health", health(d)).Methods(http.MethodGet)
	router.Handle("/metrics", d.Metrics.Handler()).Methods(http.MethodGet)
	router.HandleFunc("/ws/quote", d.Hub.HandleWebSocket).Methods(http.MethodGet)

	api := router.PathPrefix("/api").Subrouter()
	auth.NewHandler(d.Auth, d.Logger).Register(api.PathPrefix("/auth").Subrouter())
	catalog.NewHandler(d.Catalog, d.Logger).Register(api.PathPrefix("/products").Subrouter())
	orders.NewHandler(d.Orders, d.Logger).Register(api.PathPrefix("/orders").Subrouter())

	admin := api.PathPrefix("/admin").Subrouter()
	admin.Use(auth.RequireAdmin(d.Logger))
	admin.HandleFunc("/circuit-breakers", func(w http.ResponseWriter, r *http.Request) {
		httpx.RespondWithJSON(w, http.StatusOK, map[string]interface{}{
			"success":          true,
			"circuit_breakers": d.Breakers.Stats(),
		})
	}).Methods(http.MethodGet)

	router.Use(httpx.RecoverMiddleware(d.Logger))
	router.Use(httpx.LoggingMiddleware(d.Logger))
	router.Use(d.Metrics.Middleware)
	router.Use(d.Auth.Middleware())

	return httpx.CORSMiddleware(d.CORSOrigins)(router)
}

func health(d Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), healthTimeout)
		defer cancel()

		status := map[string]interface{}{
			"service":          "configurator-api",
			"storage":          d.StoreDriver,
			"circuit_breakers": d.Breakers.Stats(),
		}

		if err := d.Store.Ping(ctx); err != nil {
			d.Logger.WithError(err).Warn("Health check: store unreachable")
			status["status"] = "unhealthy"
			status["error"] = "database connection failed"
			httpx.RespondWithJSON(w, http.StatusServiceUnavailable, status)
			return
		}

		status["status"] = "healthy"
		if !d.Breakers.Healthy() {
			status["status"] = "degraded"
		}
		httpx.RespondWithJSON(w, http.StatusOK, status)
	}
}
