package httpserver

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"duangpay/internal/auth"
	"duangpay/internal/cache"
	"duangpay/internal/catalog"
	"duangpay/internal/credits"
	"duangpay/internal/metrics"
	"duangpay/internal/order"
	"duangpay/internal/repo"
)

// sessionCacheTTL bounds how long a token-to-user mapping may be served
// from redis before hitting the database again.
const sessionCacheTTL = 5 * time.Minute

// API carries the handlers for the public JSON endpoints.
type API struct {
	repo    repo.Repository
	catalog *catalog.Catalog
	orders  *order.Service
	gate    *credits.Gate
	cache   *cache.Redis
	metrics *metrics.Metrics
	logger  *slog.Logger
}

// NewAPI wires the API handlers. cache may be nil; session lookups then
// always hit the store.
func NewAPI(repository repo.Repository, cat *catalog.Catalog, orders *order.Service, gate *credits.Gate, redis *cache.Redis, m *metrics.Metrics, logger *slog.Logger) *API {
	return &API{
		repo:    repository,
		catalog: cat,
		orders:  orders,
		gate:    gate,
		cache:   redis,
		metrics: m,
		logger:  logger.With("component", "api"),
	}
}

// Register mounts the API routes on the mux.
func (a *API) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/packages", a.handlePackages)
	mux.HandleFunc("POST /api/signup", a.handleSignup)
	mux.HandleFunc("POST /api/login", a.handleLogin)
	mux.HandleFunc("GET /api/me", a.authed(a.handleMe))
	mux.HandleFunc("POST /api/orders", a.authed(a.handleCreateOrder))
	mux.HandleFunc("GET /api/orders/{orderId}", a.authed(a.handleGetOrder))
	mux.HandleFunc("POST /api/credits/consume", a.authed(a.handleConsumeCredit))
}

func (a *API) handlePackages(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, a.catalog.List())
}

type signupRequest struct {
	Name     string `json:"name"`
	Phone    string `json:"phone"`
	Password string `json:"password"`
}

func (a *API) handleSignup(w http.ResponseWriter, r *http.Request) {
	var req signupRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json body")
		return
	}
	req.Name = strings.TrimSpace(req.Name)
	req.Phone = strings.TrimSpace(req.Phone)
	if req.Name == "" || req.Phone == "" || req.Password == "" {
		writeError(w, http.StatusBadRequest, "missing fields")
		return
	}

	hash, err := auth.HashPassword(req.Password)
	if err != nil {
		a.serverError(w, "hash password", err)
		return
	}

	user, err := a.repo.CreateUser(r.Context(), repo.NewUser{
		Phone:        req.Phone,
		Name:         req.Name,
		PasswordHash: hash,
	})
	if err != nil {
		if errors.Is(err, repo.ErrPhoneTaken) {
			writeError(w, http.StatusConflict, "phone already registered")
			return
		}
		a.serverError(w, "create user", err)
		return
	}

	token, err := a.newSession(r, user.ID)
	if err != nil {
		a.serverError(w, "create session", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"token": token})
}

type loginRequest struct {
	Phone    string `json:"phone"`
	Password string `json:"password"`
}

func (a *API) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json body")
		return
	}

	user, err := a.repo.GetUserByPhone(r.Context(), strings.TrimSpace(req.Phone))
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			writeError(w, http.StatusUnauthorized, "invalid credentials")
			return
		}
		a.serverError(w, "get user", err)
		return
	}
	if !auth.CheckPassword(user.PasswordHash, req.Password) {
		writeError(w, http.StatusUnauthorized, "invalid credentials")
		return
	}

	token, err := a.newSession(r, user.ID)
	if err != nil {
		a.serverError(w, "create session", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"token": token})
}

func (a *API) handleMe(w http.ResponseWriter, r *http.Request, user *repo.User) {
	writeJSON(w, http.StatusOK, map[string]any{
		"phone":   user.Phone,
		"name":    user.Name,
		"credits": user.Credits,
	})
}

type createOrderRequest struct {
	PackageID string `json:"packageId"`
}

func (a *API) handleCreateOrder(w http.ResponseWriter, r *http.Request, user *repo.User) {
	var req createOrderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json body")
		return
	}

	result, err := a.orders.CreateOrder(r.Context(), user.ID, req.PackageID)
	if err != nil {
		switch {
		case errors.Is(err, catalog.ErrUnknownPackage):
			writeError(w, http.StatusBadRequest, "unknown package")
		case errors.Is(err, order.ErrPaymentSetup):
			writeError(w, http.StatusInternalServerError, "payment setup failed")
		default:
			a.serverError(w, "create order", err)
		}
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (a *API) handleGetOrder(w http.ResponseWriter, r *http.Request, user *repo.User) {
	orderID := r.PathValue("orderId")

	ord, err := a.orders.GetOrderStatus(r.Context(), user.ID, orderID)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			writeError(w, http.StatusNotFound, "order not found")
			return
		}
		a.serverError(w, "get order status", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"orderId":      ord.OrderID,
		"status":       ord.Status,
		"amountSatang": ord.AmountDue,
		"credits":      ord.CreditsOwed,
	})
}

func (a *API) handleConsumeCredit(w http.ResponseWriter, r *http.Request, user *repo.User) {
	remaining, err := a.gate.ConsumeOne(r.Context(), user.ID)
	if err != nil {
		if errors.Is(err, repo.ErrInsufficientCredits) {
			writeError(w, http.StatusPaymentRequired, "insufficient credits")
			return
		}
		a.serverError(w, "consume credit", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int64{"credits": remaining})
}

// authed resolves the bearer token to a user before invoking the handler.
func (a *API) authed(handler func(http.ResponseWriter, *http.Request, *repo.User)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		token := bearerToken(r)
		if token == "" {
			writeError(w, http.StatusUnauthorized, "unauthorized")
			return
		}

		user, err := a.resolveToken(r, token)
		if err != nil {
			if errors.Is(err, repo.ErrNotFound) {
				writeError(w, http.StatusUnauthorized, "invalid token")
				return
			}
			a.serverError(w, "resolve token", err)
			return
		}
		handler(w, r, user)
	}
}

// resolveToken maps a session token to its user, keeping the token-to-id
// mapping in redis so the hot path usually costs one primary-key lookup.
func (a *API) resolveToken(r *http.Request, token string) (*repo.User, error) {
	ctx := r.Context()

	if a.cache != nil {
		var userID string
		if ok, err := a.cache.GetJSON(ctx, "sessions:"+token, &userID); err == nil && ok {
			return a.repo.GetUserByID(ctx, userID)
		}
	}

	user, err := a.repo.GetUserByToken(ctx, token)
	if err != nil {
		return nil, err
	}

	if a.cache != nil {
		if err := a.cache.SetJSON(ctx, "sessions:"+token, user.ID, sessionCacheTTL); err != nil {
			a.logger.Warn("session cache write failed", "error", err)
		}
	}
	return user, nil
}

func (a *API) newSession(r *http.Request, userID string) (string, error) {
	token, err := auth.NewToken()
	if err != nil {
		return "", err
	}
	if err := a.repo.InsertSession(r.Context(), token, userID); err != nil {
		return "", err
	}
	return token, nil
}

func (a *API) serverError(w http.ResponseWriter, verb string, err error) {
	a.metrics.Errors.WithLabelValues("api").Inc()
	a.logger.Error("request failed", "op", verb, "error", err)
	writeError(w, http.StatusInternalServerError, "internal error")
}

func bearerToken(r *http.Request) string {
	header := r.Header.Get("Authorization")
	const prefix = "Bearer "
	if !strings.HasPrefix(header, prefix) {
		return ""
	}
	return strings.TrimSpace(header[len(prefix):])
}
