package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/xtrntr/matchcore/internal/auth"
	"github.com/xtrntr/matchcore/internal/exchange"
	"github.com/xtrntr/matchcore/internal/models"
)

type contextKey string

const operatorKey contextKey = "operator"

// History serves reports and trades persisted by earlier runs
type History interface {
	GetParticipants(ctx context.Context) ([]models.Participant, error)
	GetTrades(ctx context.Context, symbol string) ([]models.Trade, error)
}

// Handler contains dependencies for HTTP handlers
type Handler struct {
	Engine      *exchange.Engine
	AuthService *auth.AuthService
	History     History
	Logger      *zap.Logger
}

// NewHandler creates a new handler. history may be nil.
func NewHandler(engine *exchange.Engine, authService *auth.AuthService, history History, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{Engine: engine, AuthService: authService, History: history, Logger: logger}
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// Login exchanges operator credentials for a token
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Username string `json:"username"`
		Password string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if req.Username == "" || req.Password == "" {
		writeError(w, http.StatusBadRequest, "Username and password required")
		return
	}

	token, err := h.AuthService.Login(r.Context(), req.Username, req.Password)
	if errors.Is(err, auth.ErrInvalidCredentials) {
		writeError(w, http.StatusUnauthorized, "Invalid credentials")
		return
	}
	if err != nil {
		h.Logger.Error("login failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "Failed to issue token")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"token": token})
}

// JWTAuthMiddleware verifies JWT tokens
func (h *Handler) JWTAuthMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		tokenString := r.Header.Get("Authorization")
		if tokenString == "" {
			writeError(w, http.StatusUnauthorized, "Authorization header required")
			return
		}
		tokenString = strings.TrimPrefix(tokenString, "Bearer ")

		claims, err := h.AuthService.ParseToken(tokenString)
		if err != nil {
			writeError(w, http.StatusUnauthorized, "Invalid or expired token")
			return
		}

		ctx := context.WithValue(r.Context(), operatorKey, claims)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// OperatorFromContext returns the claims attached by JWTAuthMiddleware
func OperatorFromContext(ctx context.Context) (auth.Claims, bool) {
	c, ok := ctx.Value(operatorKey).(auth.Claims)
	return c, ok
}

// engineError maps engine failures to a response
func (h *Handler) engineError(w http.ResponseWriter, err error) {
	if errors.Is(err, exchange.ErrStopped) {
		writeError(w, http.StatusServiceUnavailable, "Engine stopped")
		return
	}
	h.Logger.Error("engine request failed", zap.Error(err))
	writeError(w, http.StatusInternalServerError, "Engine request failed")
}

// GetParticipants returns the live report in ascending id order
func (h *Handler) GetParticipants(w http.ResponseWriter, r *http.Request) {
	participants, err := h.Engine.Snapshot(r.Context())
	if err != nil {
		h.engineError(w, err)
		return
	}
	if participants == nil {
		participants = []models.Participant{}
	}
	writeJSON(w, http.StatusOK, participants)
}

// GetParticipant returns one participant's counters
func (h *Handler) GetParticipant(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseUint(chi.URLParam(r, "id"), 10, 32)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid participant ID")
		return
	}
	p, found, err := h.Engine.Participant(r.Context(), uint32(id))
	if err != nil {
		h.engineError(w, err)
		return
	}
	if !found {
		writeError(w, http.StatusNotFound, "Participant not found")
		return
	}
	writeJSON(w, http.StatusOK, p)
}

// OrderBook is the resting book split by side, in book iteration order
type OrderBook struct {
	BuyOrders  []models.Order `json:"buy_orders"`
	SellOrders []models.Order `json:"sell_orders"`
}

// OrderBook snapshots the resting book, optionally for one symbol
func (h *Handler) OrderBook(ctx context.Context, symbol string) (OrderBook, error) {
	orders, err := h.Engine.Orders(ctx)
	if err != nil {
		return OrderBook{}, err
	}
	book := OrderBook{BuyOrders: []models.Order{}, SellOrders: []models.Order{}}
	for _, o := range orders {
		if symbol != "" && o.Symbol != symbol {
			continue
		}
		if o.Side == models.Buy {
			book.BuyOrders = append(book.BuyOrders, o)
		} else {
			book.SellOrders = append(book.SellOrders, o)
		}
	}
	return book, nil
}

// GetOrderBook retrieves the current order book, optionally for one symbol
func (h *Handler) GetOrderBook(w http.ResponseWriter, r *http.Request) {
	book, err := h.OrderBook(r.Context(), r.URL.Query().Get("symbol"))
	if err != nil {
		h.engineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, book)
}

// GetTrades returns recent trades, optionally for one symbol
func (h *Handler) GetTrades(w http.ResponseWriter, r *http.Request) {
	trades, err := h.Engine.RecentTrades(r.Context())
	if err != nil {
		h.engineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, filterTrades(trades, r.URL.Query().Get("symbol")))
}

func filterTrades(trades []models.Trade, symbol string) []models.Trade {
	out := []models.Trade{}
	for _, t := range trades {
		if symbol == "" || t.Symbol == symbol {
			out = append(out, t)
		}
	}
	return out
}

// GetStoredReport returns the report saved by the last run
func (h *Handler) GetStoredReport(w http.ResponseWriter, r *http.Request) {
	if h.History == nil {
		writeError(w, http.StatusNotFound, "No database configured")
		return
	}
	participants, err := h.History.GetParticipants(r.Context())
	if err != nil {
		h.Logger.Error("failed to load stored report", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "Failed to retrieve report")
		return
	}
	if participants == nil {
		participants = []models.Participant{}
	}
	writeJSON(w, http.StatusOK, participants)
}

// GetStoredTrades returns persisted trades
func (h *Handler) GetStoredTrades(w http.ResponseWriter, r *http.Request) {
	if h.History == nil {
		writeError(w, http.StatusNotFound, "No database configured")
		return
	}
	trades, err := h.History.GetTrades(r.Context(), r.URL.Query().Get("symbol"))
	if err != nil {
		h.Logger.Error("failed to load stored trades", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "Failed to retrieve trades")
		return
	}
	writeJSON(w, http.StatusOK, filterTrades(trades, ""))
}

// Healthz reports whether the engine still answers
func (h *Handler) Healthz(w http.ResponseWriter, r *http.Request) {
	if _, err := h.Engine.Orders(r.Context()); err != nil {
		writeError(w, http.StatusServiceUnavailable, "unhealthy")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
