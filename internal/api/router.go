package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

// RouterConfig holds the HTTP surface options
type RouterConfig struct {
	AllowedOrigins []string
	Metrics        http.Handler
	Hub            *Hub
	RequestTimeout time.Duration
}

// NewRouter wires the reporting API
func NewRouter(h *Handler, cfg RouterConfig) *chi.Mux {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)

	origins := cfg.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	// long-lived, so it stays outside the request timeout
	if cfg.Hub != nil {
		r.Get("/ws", cfg.Hub.ServeHTTP)
	}

	r.Group(func(r chi.Router) {
		if cfg.RequestTimeout > 0 {
			r.Use(middleware.Timeout(cfg.RequestTimeout))
		}
		r.Get("/healthz", h.Healthz)
		if cfg.Metrics != nil {
			r.Handle("/metrics", cfg.Metrics)
		}
		r.Post("/auth/login", h.Login)

		// Protected endpoints (require JWT)
		r.Group(func(r chi.Router) {
			r.Use(h.JWTAuthMiddleware)
			r.Get("/participants", h.GetParticipants)
			r.Get("/participants/{id}", h.GetParticipant)
			r.Get("/orderbook", h.GetOrderBook)
			r.Get("/trades", h.GetTrades)
			r.Get("/history/participants", h.GetStoredReport)
			r.Get("/history/trades", h.GetStoredTrades)
		})
	})
	return r
}
