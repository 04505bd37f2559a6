package api

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/cors"
	"github.com/gorilla/mux"

	"github.com/mcoot/gameauth/internal/api/apierr"
	"github.com/mcoot/gameauth/internal/api/handler"
	"github.com/mcoot/gameauth/internal/api/middleware"
	"github.com/mcoot/gameauth/internal/api/response"
	"github.com/mcoot/gameauth/internal/dependencies/clock"
	"github.com/mcoot/gameauth/internal/metrics"
	"github.com/mcoot/gameauth/internal/services/account"
	"github.com/mcoot/gameauth/internal/services/auth"
)

// RouterConfig holds configuration for the API router
type RouterConfig struct {
	Logger         *slog.Logger
	Clock          clock.Clock
	AuthService    *auth.Service
	AccountService *account.Service
	// Metrics is optional; when set /metrics is served
	Metrics *metrics.Metrics
	// CORSOrigins defaults to allowing any origin
	CORSOrigins []string
}

// NewRouter creates a new API router with all routes configured
func NewRouter(cfg RouterConfig) http.Handler {
	r := mux.NewRouter()
	r.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		apierr.WriteError(w, apierr.NewNotFoundError())
	})

	// Create handlers
	authHandler := handler.NewAuthHandler(cfg.AuthService, cfg.Logger)
	otpHandler := handler.NewOTPHandler(cfg.AuthService, cfg.Logger)
	userHandler := handler.NewUserHandler(cfg.AccountService, cfg.Logger)

	// Create middleware
	authMiddleware := middleware.Auth(cfg.AuthService)
	optionalAuthMiddleware := middleware.OptionalAuth(cfg.AuthService)

	r.Use(middleware.Recovery(cfg.Logger))
	r.Use(middleware.Logging(cfg.Logger))
	r.Use(middleware.Metrics(cfg.Metrics))

	// Health and metrics live outside /api
	r.HandleFunc("/health", healthHandler(cfg.Clock)).Methods(http.MethodGet)
	if cfg.Metrics != nil {
		r.Handle("/metrics", cfg.Metrics.Handler()).Methods(http.MethodGet)
	}

	api := r.PathPrefix("/api").Subrouter()

	// Auth routes (no auth required for signup/login)
	api.HandleFunc("/auth/signup", authHandler.Signup).Methods(http.MethodPost)
	api.HandleFunc("/auth/login", authHandler.Login).Methods(http.MethodPost)

	authProtected := api.PathPrefix("/auth").Subrouter()
	authProtected.Use(authMiddleware)
	authProtected.HandleFunc("/logout", authHandler.Logout).Methods(http.MethodPost)
	authProtected.HandleFunc("/change-password", authHandler.ChangePassword).Methods(http.MethodPost)
	authProtected.HandleFunc("/me", authHandler.Me).Methods(http.MethodGet)
	authProtected.HandleFunc("/refresh", authHandler.Refresh).Methods(http.MethodPost)

	// OTP routes
	api.HandleFunc("/otp/send", otpHandler.Send).Methods(http.MethodPost)
	api.HandleFunc("/otp/verify", otpHandler.Verify).Methods(http.MethodPost)

	// Leaderboard is public, with the caller's rank when a token is sent
	api.Handle("/user/leaderboard", optionalAuthMiddleware(http.HandlerFunc(userHandler.Leaderboard))).Methods(http.MethodGet)

	users := api.PathPrefix("/user").Subrouter()
	users.Use(authMiddleware)
	users.HandleFunc("/profile", userHandler.GetProfile).Methods(http.MethodGet)
	users.HandleFunc("/profile", userHandler.UpdateProfile).Methods(http.MethodPut)
	users.HandleFunc("/profile", userHandler.DeleteProfile).Methods(http.MethodDelete)
	users.HandleFunc("/stats", userHandler.GetStats).Methods(http.MethodGet)
	users.HandleFunc("/stats", userHandler.UpdateStats).Methods(http.MethodPut)
	users.HandleFunc("/session-start", userHandler.StartSession).Methods(http.MethodPost)

	origins := cfg.CORSOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	corsMiddleware := cors.Handler(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions},
		AllowedHeaders: []string{"Authorization", "Content-Type"},
		MaxAge:         300,
	})

	// CORS wraps the router so preflight requests are answered before route matching
	return corsMiddleware(r)
}

func healthHandler(clk clock.Clock) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		response.JSON(w, http.StatusOK, response.HealthResponse{
			Status:    "OK",
			Message:   "Game auth server is running",
			Timestamp: clk.Now().UTC(),
		})
	}
}
