package http

import (
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/marcus-menezes/starstore-backend/internal/service"
	"github.com/marcus-menezes/starstore-backend/pkg/health"
	"github.com/marcus-menezes/starstore-backend/pkg/middleware"
)

// RouterConfig bundles the dependencies of the HTTP surface.
type RouterConfig struct {
	CartService   *service.CartService
	OrderService  *service.OrderService
	Syncer        *service.Syncer
	Catalog       Catalog
	HealthHandler *health.Handler
	JWTSecret     []byte
	PprofCIDRs    []string
	Logger        *slog.Logger
}

// NewRouter creates a chi router with all storefront routes registered.
func NewRouter(cfg RouterConfig) http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(middleware.Recovery(cfg.Logger))
	r.Use(middleware.CORS)
	r.Use(chimw.Compress(5))
	r.Use(chimw.Timeout(30 * time.Second))
	r.Use(middleware.RequestLogging(cfg.Logger))
	r.Use(middleware.PrometheusMetrics("storefront"))
	r.Use(middleware.Tracing("storefront"))
	r.Use(middleware.RequestLogger(cfg.Logger))

	// Health check endpoints
	r.Get("/health/live", cfg.HealthHandler.LivenessHandler())
	r.Get("/health/ready", cfg.HealthHandler.ReadinessHandler())
	r.Get("/metrics", func(w http.ResponseWriter, r *http.Request) {
		promhttp.Handler().ServeHTTP(w, r)
	})

	// Pprof debug endpoints with IP allowlist.
	middleware.RegisterPprof(r, cfg.PprofCIDRs, cfg.Logger)

	productHandler := NewProductHandler(cfg.Catalog, cfg.Logger)
	cartHandler := NewCartHandler(cfg.CartService, cfg.Catalog, cfg.Logger)
	orderHandler := NewOrderHandler(cfg.OrderService, cfg.Logger)

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/products", productHandler.ListProducts)
		r.Get("/products/{productId}", productHandler.GetProduct)

		// Cart and order routes are session-scoped: the cart synchronizer
		// runs before every handler so identity transitions swap the cart
		// before it is read or mutated.
		r.Group(func(r chi.Router) {
			r.Use(ContentTypeJSON)
			r.Use(SessionID)
			r.Use(Authenticate(cfg.JWTSecret))
			r.Use(SyncCart(cfg.Syncer))

			r.Route("/cart", func(r chi.Router) {
				r.Get("/", cartHandler.GetCart)
				r.Delete("/", cartHandler.ClearCart)

				r.Post("/items", cartHandler.AddItem)
				r.Put("/items/{productId}", cartHandler.UpdateItemQuantity)
				r.Delete("/items/{productId}", cartHandler.RemoveItem)
			})

			r.Route("/orders", func(r chi.Router) {
				r.Post("/", orderHandler.Checkout)
				r.Get("/", orderHandler.ListOrders)
				r.Get("/{orderId}", orderHandler.GetOrder)
				r.Post("/{orderId}/cancel", orderHandler.CancelOrder)
			})
		})
	})

	return r
}

// ContentTypeJSON enforces that requests with a body have Content-Type: application/json.
func ContentTypeJSON(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.ContentLength > 0 || r.Method == http.MethodPost || r.Method == http.MethodPut || r.Method == http.MethodPatch {
			ct := r.Header.Get("Content-Type")
			if ct != "" && !strings.HasPrefix(ct, "application/json") {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusUnsupportedMediaType)
				_, _ = w.Write([]byte(`{"error":{"code":"UNSUPPORTED_MEDIA_TYPE","message":"Content-Type must be application/json"}}`))
				return
			}
		}
		next.ServeHTTP(w, r)
	})
}
