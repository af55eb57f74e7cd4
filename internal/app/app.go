// Package app はサブコマンドの解析と依存関係のワイヤリングを行う。
package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/hitoshi/moneymonitor/internal/auth"
	"github.com/hitoshi/moneymonitor/internal/config"
	"github.com/hitoshi/moneymonitor/internal/database"
	"github.com/hitoshi/moneymonitor/internal/handler"
	"github.com/hitoshi/moneymonitor/internal/investment"
	"github.com/hitoshi/moneymonitor/internal/logger"
	"github.com/hitoshi/moneymonitor/internal/metrics"
	"github.com/hitoshi/moneymonitor/internal/middleware"
	"github.com/hitoshi/moneymonitor/internal/portfolio"
	"github.com/hitoshi/moneymonitor/internal/ratelimit"
	"github.com/hitoshi/moneymonitor/internal/repository"
	"github.com/hitoshi/moneymonitor/internal/security"
	"github.com/hitoshi/moneymonitor/internal/user"
	"github.com/hitoshi/moneymonitor/internal/valuecipher"
	"github.com/hitoshi/moneymonitor/internal/worker/cleanup"
)

const shutdownTimeout = 30 * time.Second

// Init はアプリケーションの初期化を行う。
// JSON構造化ログをセットアップし、環境変数からConfigを読み込んでログレベルを反映する。
// writerが指定された場合はログ出力先としてそのwriterを使用する。
func Init(w io.Writer) (*config.Config, error) {
	// 1. ログの初期化（設定読み込み前にログを使えるようにする）
	logger.SetupDefault(w)

	// 2. 環境変数から設定を読み込む
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	if err := logger.SetLevel(cfg.LogLevel); err != nil {
		slog.Warn("invalid LOG_LEVEL, falling back to info", slog.String("log_level", cfg.LogLevel))
	}

	return cfg, nil
}

// Run はアプリケーションのメインエントリーポイント。
// コマンドライン引数からサブコマンドを解析し、対応するモードで起動する。
// argsにはos.Args[1:]を渡す。
func Run(w io.Writer, args []string) error {
	cmd := ParseCommand(args)

	if !cmd.NeedsConfig() {
		port := os.Getenv("SERVER_PORT")
		if port == "" {
			port = "8080"
		}
		return runHealthcheck(port)
	}

	cfg, err := Init(w)
	if err != nil {
		return fmt.Errorf("initialization failed: %w", err)
	}

	slog.Info("starting application",
		slog.String("command", string(cmd)),
		slog.String("app_env", cfg.AppEnv),
		slog.String("port", cfg.ServerPort),
		slog.String("base_url", cfg.BaseURL),
	)

	// SIGINT/SIGTERMでキャンセルされるコンテキスト
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	switch cmd {
	case CommandWorker:
		return runWorker(ctx, cfg)
	case CommandMigrate:
		return runMigrate(cfg)
	default:
		return runServe(ctx, cfg)
	}
}

// openDatabase はプール設定を適用してDBを開き、接続を確認する。
func openDatabase(ctx context.Context, cfg *config.Config) (*sql.DB, error) {
	db, err := database.Open(cfg.DatabaseURL, database.PoolConfig{
		MaxOpenConns:    cfg.DBMaxOpenConns,
		MaxIdleConns:    cfg.DBMaxIdleConns,
		ConnMaxIdleTime: cfg.DBConnMaxIdleTime,
		ConnMaxLifetime: cfg.DBConnMaxLifetime,
	})
	if err != nil {
		return nil, err
	}

	if err := database.Ping(ctx, db, cfg.DBConnectTimeout); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	slog.Info("database connection established",
		slog.String("database_url", maskDatabaseURL(cfg.DatabaseURL)),
	)
	return db, nil
}

// api はserveモードで組み立てたHTTPハンドラーと、停止が必要な部品をまとめたもの。
type api struct {
	handler     http.Handler
	sessions    repository.SessionRepository
	rateLimiter *middleware.RateLimiter
	authStore   *ratelimit.MemoryStore
}

// Close はバックグラウンドのクリーンアップgoroutineを停止する。
func (a *api) Close() {
	a.rateLimiter.Stop()
	a.authStore.Stop()
}

// buildAPI はリポジトリ・サービス・ミドルウェアをワイヤリングしてルーターを構築する。
// DBへの接続は行わない。
func buildAPI(cfg *config.Config, db *sql.DB) (*api, error) {
	// 1. メトリクス
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	collector := metrics.NewCollector(registry)

	// 2. 金額の暗号化
	passphrase, err := valuecipher.ResolvePassphrase(cfg.EncryptionKey, cfg.IsProduction())
	if err != nil {
		return nil, err
	}
	cipher, err := valuecipher.New(passphrase, valuecipher.Options{
		Logger: slog.Default(),
		OnLegacyFallback: func(error) {
			collector.RecordCipherLegacyFallback()
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize value cipher: %w", err)
	}

	// 3. リポジトリの初期化
	userRepo := repository.NewPostgresUserRepo(db)
	sessionRepo := repository.NewPostgresSessionRepo(db)
	portfolioRepo := repository.NewPostgresPortfolioRepo(db)
	investmentRepo := repository.NewPostgresInvestmentRepo(db, cipher)

	// 4. ドメインサービスの初期化
	sanitizer := security.NewTextSanitizer()
	authService := auth.NewService(userRepo, sessionRepo, sanitizer, auth.ServiceConfig{
		SessionMaxAge: cfg.SessionMaxAge,
	})
	portfolioService := portfolio.NewService(portfolioRepo, sanitizer)
	investmentService := investment.NewService(portfolioService, investmentRepo, collector)
	userService := user.NewService(userRepo, sessionRepo, portfolioRepo, investmentRepo)

	// 5. レート制限
	rateLimiter := middleware.NewRateLimiter(
		middleware.PerMinuteRateLimiterConfig(cfg.RateLimitGeneral, cfg.RateLimitImport),
		collector,
	)
	authStore := ratelimit.NewMemoryStore(ratelimit.DefaultSweepInterval)
	authLimiter := ratelimit.NewLimiter(authStore, ratelimit.Config{
		MaxAttempts: cfg.AuthRateLimitMax,
		Window:      cfg.AuthRateLimitWindow,
	})

	// 6. ルーターの構築
	router := handler.NewRouter(&handler.RouterDeps{
		SessionValidator:  authService,
		CORSAllowedOrigin: cfg.CORSAllowedOrigin,
		CSRFConfig: middleware.CSRFConfig{
			CookieSecure: cfg.CookieSecure,
			CookieDomain: cfg.CookieDomain,
		},
		RateLimiter:    rateLimiter,
		AuthLimiter:    authLimiter,
		Metrics:        collector,
		MetricsHandler: metrics.Handler(registry),
		HealthChecker:  db,

		AuthService: authService,
		AuthConfig: handler.AuthHandlerConfig{
			CookieDomain:  cfg.CookieDomain,
			CookieSecure:  cfg.CookieSecure,
			SessionMaxAge: cfg.SessionMaxAge,
		},

		PortfolioService:  portfolioService,
		InvestmentService: investmentService,
		ImportMaxBytes:    cfg.ImportMaxBytes,

		UserService: userService,
	})

	return &api{
		handler:     router,
		sessions:    sessionRepo,
		rateLimiter: rateLimiter,
		authStore:   authStore,
	}, nil
}

// newSessionScheduler は期限切れセッション削除ジョブを登録したスケジューラを返す。
func newSessionScheduler(cfg *config.Config, sessions cleanup.SessionSweeper) (*cleanup.Scheduler, *cleanup.SessionCleanupJob, error) {
	job := cleanup.NewSessionCleanupJob(sessions, slog.Default())
	scheduler := cleanup.NewScheduler(slog.Default())
	if err := scheduler.AddJob(cfg.SessionCleanupSchedule, job); err != nil {
		return nil, nil, err
	}
	return scheduler, job, nil
}

// runServe はAPIサーバーモードで起動する。
// DB接続を開き、全依存関係をワイヤリングし、HTTPサーバーとセッション削除ジョブを起動する。
// ctxがキャンセルされるとグレースフルシャットダウンを行う。
func runServe(ctx context.Context, cfg *config.Config) error {
	db, err := openDatabase(ctx, cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	a, err := buildAPI(cfg, db)
	if err != nil {
		return err
	}
	defer a.Close()

	scheduler, _, err := newSessionScheduler(cfg, a.sessions)
	if err != nil {
		return err
	}
	scheduler.Start()

	server := &http.Server{
		Addr:         ":" + cfg.ServerPort,
		Handler:      a.handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		slog.Info("API server starting", slog.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
		close(serverErr)
	}()

	var listenErr error
	select {
	case listenErr = <-serverErr:
	case <-ctx.Done():
	}
	slog.Info("shutting down API server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	scheduler.Stop(shutdownCtx)

	if listenErr != nil {
		return fmt.Errorf("server listen error: %w", listenErr)
	}
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}

	slog.Info("API server stopped gracefully")
	return nil
}

// runWorker はワーカーモードで起動する。
// 起動直後に1回、その後はSESSION_CLEANUP_SCHEDULEに従って期限切れセッションを削除する。
// ctxがキャンセルされるまでブロックする。
func runWorker(ctx context.Context, cfg *config.Config) error {
	db, err := openDatabase(ctx, cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	scheduler, job, err := newSessionScheduler(cfg, repository.NewPostgresSessionRepo(db))
	if err != nil {
		return err
	}

	slog.Info("worker starting",
		slog.String("session_cleanup_schedule", cfg.SessionCleanupSchedule),
	)

	if err := scheduler.RunNow(job); err != nil {
		slog.Error("session cleanup job failed", slog.String("error", err.Error()))
	}
	scheduler.Start()

	<-ctx.Done()
	slog.Info("shutting down worker...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	scheduler.Stop(shutdownCtx)

	slog.Info("worker stopped gracefully")
	return nil
}

// runMigrate はデータベースマイグレーションを実行する。
// すべての未適用マイグレーションを順番に適用する。
func runMigrate(cfg *config.Config) error {
	slog.Info("running database migrations",
		slog.String("database_url", maskDatabaseURL(cfg.DatabaseURL)),
	)

	if err := database.RunMigrations(cfg.DatabaseURL); err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}

	slog.Info("database migrations completed successfully")
	return nil
}

// runHealthcheck はヘルスチェックを実行する。
// distroless環境でのDockerヘルスチェック用サブコマンド。
// /health エンドポイントにHTTPリクエストを送り、結果を返す。
func runHealthcheck(port string) error {
	target := fmt.Sprintf("http://localhost:%s/health", port)
	client := &http.Client{Timeout: 5 * time.Second}

	resp, err := client.Get(target)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("health check returned status %d", resp.StatusCode)
	}

	return nil
}

// maskDatabaseURL はデータベースURLのパスワードをマスクする。
func maskDatabaseURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return "***"
	}
	return u.Redacted()
}
