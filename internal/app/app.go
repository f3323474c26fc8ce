// Package app はアプリケーションの起動・初期化・サブコマンド分岐を提供する。
package app

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/time/rate"

	"github.com/hitoshi/reqbench/internal/auth"
	"github.com/hitoshi/reqbench/internal/collection"
	"github.com/hitoshi/reqbench/internal/config"
	"github.com/hitoshi/reqbench/internal/database"
	"github.com/hitoshi/reqbench/internal/environment"
	"github.com/hitoshi/reqbench/internal/handler"
	"github.com/hitoshi/reqbench/internal/history"
	"github.com/hitoshi/reqbench/internal/logger"
	"github.com/hitoshi/reqbench/internal/metrics"
	"github.com/hitoshi/reqbench/internal/middleware"
	"github.com/hitoshi/reqbench/internal/proxy"
	"github.com/hitoshi/reqbench/internal/repository"
	"github.com/hitoshi/reqbench/internal/request"
	"github.com/hitoshi/reqbench/internal/security"
	"github.com/hitoshi/reqbench/internal/token"
	"github.com/hitoshi/reqbench/internal/worker/cleanup"
)

// Init はアプリケーションの初期化を行う。
// 環境変数からConfigを読み込み、JSON構造化ログをセットアップする。
// writerが指定された場合はログ出力先としてそのwriterを使用する。
func Init(w io.Writer) (*config.Config, error) {
	// 1. ログの初期化（設定読み込み前にログを使えるようにする）
	logger.SetupDefault(w, "info")

	// 2. 環境変数から設定を読み込む
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	// 3. 設定されたログレベルでロガーを再構成する
	logger.SetupDefault(w, cfg.LogLevel)

	return cfg, nil
}

// Run はアプリケーションのメインエントリーポイント。
// コマンドライン引数からサブコマンドを解析し、対応するモードで起動する。
// argsにはos.Args[1:]を渡す。
func Run(w io.Writer, args []string) error {
	cmd := ParseCommand(args)

	// healthcheck は軽量サブコマンドのため、フル初期化をスキップする
	if cmd == CommandHealthcheck {
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
		slog.String("port", cfg.ServerPort),
	)

	switch cmd {
	case CommandServe:
		return runServe(cfg)
	case CommandWorker:
		return runWorker(cfg)
	case CommandMigrate:
		return runMigrate(cfg)
	default:
		return runServe(cfg)
	}
}

// runServe はAPIサーバーモードで起動する。
// DB接続・失効キャッシュ・全依存関係をワイヤリングし、HTTPサーバーを起動する。
// SIGINTまたはSIGTERMシグナルを受信するとグレースフルシャットダウンを行う。
func runServe(cfg *config.Config) error {
	// 1. DB接続
	db, err := database.Open(cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer db.Close()

	if err := db.Ping(); err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}

	slog.Info("database connection established")

	// 2. 失効キャッシュの初期化
	// REDIS_ADDR未設定の場合はキャッシュなしで起動する（署名検証のみに縮退）。
	// 起動時の疎通失敗は警告に留める。認証の可用性はキャッシュに依存しない。
	var cache token.RevocationCache
	if cfg.RedisAddr != "" {
		redisCache := token.NewRedisCache(cfg.RedisAddr, cfg.RedisPassword)
		defer redisCache.Close()

		pingCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		if err := redisCache.Ping(pingCtx); err != nil {
			slog.Warn("失効キャッシュへの疎通確認に失敗しました",
				slog.String("addr", cfg.RedisAddr),
				slog.String("error", err.Error()),
			)
		}
		cancel()

		cache = redisCache
		slog.Info("revocation cache configured", slog.String("addr", cfg.RedisAddr))
	} else {
		slog.Warn("REDIS_ADDRが未設定のため、アクセストークンの失効は無効です")
	}

	// 3. トークンマネージャの初期化
	tokenManager := token.NewManager(token.Config{
		AccessSecret:  []byte(cfg.JWTAccessSecret),
		RefreshSecret: []byte(cfg.JWTRefreshSecret),
		AccessExpiry:  cfg.AccessTokenExpiry,
		RefreshExpiry: cfg.RefreshTokenExpiry,
	}, cache, slog.Default())

	// 4. リポジトリの初期化
	userRepo := repository.NewPostgresUserRepo(db)
	refreshTokenRepo := repository.NewPostgresRefreshTokenRepo(db)
	collectionRepo := repository.NewPostgresCollectionRepo(db)
	requestRepo := repository.NewPostgresRequestRepo(db)
	environmentRepo := repository.NewPostgresEnvironmentRepo(db)
	historyRepo := repository.NewPostgresHistoryRepo(db)

	// 5. メトリクスの初期化
	registry := prometheus.NewRegistry()
	collector := metrics.NewCollector(registry)

	// 6. ドメインサービスの初期化
	authService := auth.NewService(userRepo, refreshTokenRepo, tokenManager, slog.Default())
	collectionService := collection.NewService(collectionRepo, requestRepo)
	requestService := request.NewService(requestRepo, collectionRepo)
	environmentService := environment.NewService(environmentRepo)
	historyService := history.NewService(historyRepo, slog.Default())

	// 7. 代理実行エグゼキュータの初期化
	guard := security.NewEgressGuard()
	executor := proxy.NewExecutor(proxy.Config{
		TimeoutDefault: cfg.ExecuteTimeoutDefault,
		TimeoutMin:     cfg.ExecuteTimeoutMin,
		TimeoutMax:     cfg.ExecuteTimeoutMax,
		MaxBodySize:    cfg.ExecuteMaxBodySize,
		GuardEnabled:   cfg.EgressGuardEnabled,
	}, historyService, guard, collector, slog.Default())

	// 8. レート制限の初期化（config単位はreq/min、rate.Limitはreq/sec）
	rateLimiter := middleware.NewRateLimiter(middleware.RateLimiterConfig{
		GeneralRate:     rate.Limit(float64(cfg.RateLimitGeneral) / 60.0),
		GeneralBurst:    cfg.RateLimitGeneral,
		ExecuteRate:     rate.Limit(float64(cfg.RateLimitExecute) / 60.0),
		ExecuteBurst:    cfg.RateLimitExecute,
		CleanupInterval: 5 * time.Minute,
	})
	defer rateLimiter.Stop()

	// 9. ルーターの構築
	router := handler.NewRouter(&handler.RouterDeps{
		TokenVerifier:     tokenManager,
		AuthFailures:      collector,
		RateLimiter:       rateLimiter,
		CORSAllowedOrigin: cfg.CORSAllowedOrigin,
		Logger:            slog.Default(),

		AuthService:        authService,
		Executor:           executor,
		CollectionService:  collectionService,
		RequestService:     requestService,
		EnvironmentService: environmentService,
		HistoryService:     historyService,

		DB:       db,
		Gatherer: registry,
	})

	// 10. HTTPサーバーの起動
	server := &http.Server{
		Addr:         ":" + cfg.ServerPort,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 90 * time.Second, // 代理実行の最大タイムアウト（60秒）より長くする
		IdleTimeout:  60 * time.Second,
	}

	// グレースフルシャットダウンのためのシグナルハンドリング
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		slog.Info("API server starting",
			slog.String("addr", server.Addr),
		)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server listen error", slog.String("error", err.Error()))
		}
	}()

	<-stop
	slog.Info("shutting down API server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}

	slog.Info("API server stopped gracefully")
	return nil
}

// runWorker は履歴クリーンアップワーカーモードで起動する。
// 保持期間を超過した実行履歴を起動直後に1回、以降は日次で削除する。
// SIGINTまたはSIGTERMシグナルを受信するとシャットダウンする。
func runWorker(cfg *config.Config) error {
	// 1. DB接続
	db, err := database.Open(cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer db.Close()

	if err := db.Ping(); err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}

	slog.Info("database connection established (worker)")

	// 2. クリーンアップジョブの初期化
	historyRepo := repository.NewPostgresHistoryRepo(db)
	cleanupJob := cleanup.NewCleanupJob(historyRepo, slog.Default())
	if cfg.HistoryRetentionDays > 0 {
		cleanupJob.RetentionDays = cfg.HistoryRetentionDays
	}

	// グレースフルシャットダウンのためのシグナルハンドリング
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-stop
		slog.Info("shutting down worker...")
		cancel()
	}()

	slog.Info("worker starting",
		slog.Int("retention_days", cleanupJob.RetentionDays),
	)

	// 起動直後に1回実行
	if err := cleanupJob.Run(ctx); err != nil {
		slog.Error("cleanup job failed", slog.String("error", err.Error()))
	}

	ticker := time.NewTicker(24 * time.Hour)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			slog.Info("worker stopped gracefully")
			return nil
		case <-ticker.C:
			if err := cleanupJob.Run(ctx); err != nil {
				slog.Error("cleanup job failed", slog.String("error", err.Error()))
			}
		}
	}
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
	url := fmt.Sprintf("http://localhost:%s/health", port)
	client := &http.Client{Timeout: 5 * time.Second}

	resp, err := client.Get(url)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("health check returned status %d", resp.StatusCode)
	}

	return nil
}

// maskDatabaseURL はデータベースURLの認証情報をマスクする。
func maskDatabaseURL(url string) string {
	if len(url) > 20 {
		return url[:12] + "***@..."
	}
	return "***"
}
