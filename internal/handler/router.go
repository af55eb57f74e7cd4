package handler

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/hitoshi/moneymonitor/internal/metrics"
	"github.com/hitoshi/moneymonitor/internal/middleware"
	"github.com/hitoshi/moneymonitor/internal/ratelimit"
)

// RouterDeps はNewRouterに必要な依存関係をまとめた構造体。
type RouterDeps struct {
	// ミドルウェア依存
	SessionValidator  middleware.SessionValidator
	CORSAllowedOrigin string
	CSRFConfig        middleware.CSRFConfig
	RateLimiter       *middleware.RateLimiter
	AuthLimiter       *ratelimit.Limiter
	Metrics           metrics.MetricsCollector
	// MetricsHandler は /metrics で公開するハンドラー。nilなら公開しない。
	MetricsHandler http.Handler
	HealthChecker  HealthChecker

	// 認証
	AuthService AuthServiceInterface
	AuthConfig  AuthHandlerConfig

	PortfolioService  PortfolioServiceInterface
	InvestmentService InvestmentServiceInterface
	ImportMaxBytes    int64

	UserService UserServiceInterface
}

// NewRouter は全APIエンドポイントのルーティングとミドルウェアチェーンを構成したchi.Routerを返す。
//
// ミドルウェアスタックの実行順序:
//
//	Recovery → RealIP → RequestID → SecurityHeaders → CORS → Logging → CSRF
//	  /auth/signup, /auth/signin: → AuthRateLimit
//	  /api/*:                     → Session → RateLimit(General) [→ RateLimit(Import)]
func NewRouter(deps *RouterDeps) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.NewRecoveryMiddleware(slog.Default()))
	r.Use(chimw.RealIP)
	r.Use(middleware.NewRequestIDMiddleware())
	r.Use(middleware.NewSecurityHeadersMiddleware(deps.CSRFConfig.CookieSecure))
	r.Use(middleware.NewCORSMiddleware(deps.CORSAllowedOrigin))
	r.Use(middleware.NewLoggingMiddleware(slog.Default(), deps.Metrics))

	authHandler := NewAuthHandler(deps.AuthService, deps.AuthConfig, deps.Metrics)
	portfolioHandler := NewPortfolioHandler(deps.PortfolioService)
	investmentHandler := NewInvestmentHandler(deps.InvestmentService, deps.ImportMaxBytes)
	userHandler := NewUserHandler(deps.UserService, authHandler)

	// --- 認証不要のルート ---

	r.Get("/health", NewHealthHandler(deps.HealthChecker))
	if deps.MetricsHandler != nil {
		r.Method(http.MethodGet, "/metrics", deps.MetricsHandler)
	}
	r.Method(http.MethodGet, "/api/csrf-token", middleware.NewCSRFTokenHandler(deps.CSRFConfig))

	r.Route("/auth", func(r chi.Router) {
		r.Use(middleware.NewCSRFMiddleware(deps.CSRFConfig))

		r.Group(func(r chi.Router) {
			if deps.AuthLimiter != nil {
				r.Use(middleware.NewAuthRateLimitMiddleware(deps.AuthLimiter, deps.Metrics))
			}
			r.Post("/signup", authHandler.Signup)
			r.Post("/signin", authHandler.Signin)
		})
		r.Post("/signout", authHandler.Signout)
		r.Get("/me", authHandler.Me)
	})

	// --- 認証が必要なルート ---
	r.Group(func(r chi.Router) {
		r.Use(middleware.NewCSRFMiddleware(deps.CSRFConfig))
		r.Use(middleware.NewSessionMiddleware(deps.SessionValidator))
		r.Use(deps.RateLimiter.GeneralMiddleware())

		r.Route("/api/portfolios", func(r chi.Router) {
			r.Get("/", portfolioHandler.List)
			r.Post("/", portfolioHandler.Create)

			r.Route("/{id}", func(r chi.Router) {
				r.Patch("/", portfolioHandler.Rename)
				r.Delete("/", portfolioHandler.Delete)

				r.Route("/investments", func(r chi.Router) {
					r.Get("/", investmentHandler.List)
					r.Put("/", investmentHandler.Upsert)
					r.Delete("/", investmentHandler.ClearAll)
					r.Delete("/{investmentID}", investmentHandler.Delete)
				})

				r.Get("/chart", investmentHandler.Chart)
				r.Get("/export", investmentHandler.Export)
				// インポート専用のレート制限を追加
				r.With(deps.RateLimiter.ImportMiddleware()).Post("/import", investmentHandler.Import)
			})
		})

		r.Route("/api/users", func(r chi.Router) {
			r.Delete("/me", userHandler.Withdraw)
		})
	})

	return r
}
