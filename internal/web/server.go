// Package web wires the storefront HTTP API: catalog and user CRUD, auth,
// order listing and the checkout reconciliation endpoints.
package web

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/sea021/promptshop-go/internal/auth"
	"github.com/sea021/promptshop-go/internal/checkout"
	"github.com/sea021/promptshop-go/internal/domain"
	"github.com/sea021/promptshop-go/pkg/metrics"
)

const serviceName = "storefront"

type CatalogStore interface {
	ListProducts(ctx context.Context) ([]domain.Product, error)
	GetProduct(ctx context.Context, id string) (*domain.Product, error)
	CreateProduct(ctx context.Context, p domain.Product) error
	UpdateProduct(ctx context.Context, p domain.Product) error
	DeleteProduct(ctx context.Context, id string) error
	CountProducts(ctx context.Context) (int64, error)
}

type UserStore interface {
	ListUsers(ctx context.Context) ([]domain.User, error)
	GetUserByEmail(ctx context.Context, email string) (*domain.User, error)
	CreateUser(ctx context.Context, u domain.User) error
	UpdateUser(ctx context.Context, u domain.User) error
	DeleteUser(ctx context.Context, id string) error
	CountUsers(ctx context.Context) (int64, error)
}

type OrderStore interface {
	ListOrders(ctx context.Context) ([]domain.Order, error)
	ListOrdersByEmail(ctx context.Context, email string) ([]domain.OrderWithProduct, error)
	CountOrders(ctx context.Context) (int64, error)
}

type Checkout interface {
	CreateIntent(ctx context.Context, req checkout.CreateIntentRequest) (*checkout.CreateIntentResponse, error)
	Cancel(ctx context.Context, intentID string) (string, error)
	QueryStatus(ctx context.Context, intentID string) (string, error)
	HandleWebhook(ctx context.Context, payload []byte, signatureHeader string) error
}

type Pinger interface {
	Ping(ctx context.Context) error
}

type Server struct {
	catalog  CatalogStore
	users    UserStore
	orders   OrderStore
	checkout Checkout
	db       Pinger
	auth     *auth.Manager
	metrics  *metrics.ServerMetrics
}

func NewServer(catalog CatalogStore, users UserStore, orders OrderStore, co Checkout, db Pinger, am *auth.Manager, sm *metrics.ServerMetrics) *Server {
	return &Server{
		catalog:  catalog,
		users:    users,
		orders:   orders,
		checkout: co,
		db:       db,
		auth:     am,
		metrics:  sm,
	}
}

func (s *Server) Router() http.Handler {
	r := chi.NewRouter()

	r.Get("/health", s.instrument("health", s.handleHealth))
	r.Handle("/metrics", metrics.Handler())

	r.Route("/api", func(r chi.Router) {
		r.Post("/register", s.instrument("register", s.handleRegister))
		r.Post("/login", s.instrument("login", s.handleLogin))
		r.Get("/products", s.instrument("products_list", s.handleListProducts))

		r.Post("/checkout", s.instrument("checkout", s.handleCreateIntent))
		r.Get("/payment-status", s.instrument("payment_status", s.handlePaymentStatus))
		r.Post("/cancel-payment", s.instrument("cancel_payment", s.handleCancelPayment))
		r.Post("/webhooks/paygate", s.instrument("webhook", s.handleWebhook))

		r.Group(func(r chi.Router) {
			r.Use(s.requireAuth)
			r.Get("/me", s.instrument("me", s.handleMe))
			r.Get("/my-orders", s.instrument("my_orders", s.handleMyOrders))

			r.Group(func(r chi.Router) {
				r.Use(s.requireAdmin)
				r.Post("/products", s.instrument("products_create", s.handleCreateProduct))
				r.Put("/products", s.instrument("products_update", s.handleUpdateProduct))
				r.Delete("/products", s.instrument("products_delete", s.handleDeleteProduct))

				r.Get("/users", s.instrument("users_list", s.handleListUsers))
				r.Post("/users", s.instrument("users_create", s.handleCreateUser))
				r.Put("/users", s.instrument("users_update", s.handleUpdateUser))
				r.Delete("/users", s.instrument("users_delete", s.handleDeleteUser))

				r.Get("/orders", s.instrument("orders_list", s.handleListOrders))
				r.Get("/dashboard/stats", s.instrument("dashboard_stats", s.handleDashboardStats))
			})
		})
	})

	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if err := s.db.Ping(r.Context()); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{"status": "db_error"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "ok"})
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}

func (s *Server) instrument(name string, h http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		h(sw, r)
		if s.metrics != nil {
			s.metrics.Requests.WithLabelValues(name, strconv.Itoa(sw.status)).Inc()
			s.metrics.LatencyMS.WithLabelValues(name).Observe(float64(time.Since(start).Milliseconds()))
		}
	}
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, map[string]any{"error": msg})
}
