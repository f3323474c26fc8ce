package handler

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/hitoshi/reqbench/internal/metrics"
	"github.com/hitoshi/reqbench/internal/middleware"
)

// RouterDeps はNewRouterに必要な依存関係をまとめた構造体。
type RouterDeps struct {
	// ミドルウェア依存
	TokenVerifier     middleware.TokenVerifier
	AuthFailures      middleware.AuthFailureRecorder
	RateLimiter       *middleware.RateLimiter
	CORSAllowedOrigin string
	Logger            *slog.Logger

	// サービス
	AuthService        AuthServiceInterface
	Executor           ExecutorInterface
	CollectionService  CollectionServiceInterface
	RequestService     RequestServiceInterface
	EnvironmentService EnvironmentServiceInterface
	HistoryService     HistoryServiceInterface

	// 運用エンドポイント
	DB       Pinger
	Gatherer prometheus.Gatherer
}

// NewRouter は全APIエンドポイントのルーティングとミドルウェアチェーンを構成したchi.Routerを返す。
//
// ミドルウェアスタックの実行順序:
//
//	Recovery → SecurityHeaders → CORS → Logging → (認証グループ内) Auth → RateLimit(General)
//
// /health と /metrics は認証・レート制限の外に配置する。
func NewRouter(deps *RouterDeps) http.Handler {
	r := chi.NewRouter()

	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}

	r.Use(middleware.NewRecoveryMiddleware())
	r.Use(middleware.NewSecurityHeadersMiddleware())
	r.Use(middleware.NewCORSMiddleware(deps.CORSAllowedOrigin))
	r.Use(middleware.NewLoggingMiddleware(logger))

	authHandler := NewAuthHandler(deps.AuthService)
	executeHandler := NewExecuteHandler(deps.Executor)
	collectionHandler := NewCollectionHandler(deps.CollectionService)
	requestHandler := NewRequestHandler(deps.RequestService)
	environmentHandler := NewEnvironmentHandler(deps.EnvironmentService)
	historyHandler := NewHistoryHandler(deps.HistoryService)

	// --- 運用エンドポイント（認証不要） ---

	healthHandler := NewHealthHandler(deps.DB)
	r.Get("/health", healthHandler.Health)
	if deps.Gatherer != nil {
		r.Handle("/metrics", metrics.Handler(deps.Gatherer))
	}

	r.Route("/api/v1", func(r chi.Router) {
		// --- 認証不要のルート ---
		r.Route("/auth", func(r chi.Router) {
			r.Post("/register", authHandler.Register)
			r.Post("/login", authHandler.Login)
			r.Post("/refresh", authHandler.Refresh)

			// --- 認証が必要な認証系ルート ---
			r.Group(func(r chi.Router) {
				r.Use(middleware.NewAuthMiddleware(deps.TokenVerifier, deps.AuthFailures))
				r.Use(deps.RateLimiter.GeneralMiddleware())

				r.Post("/logout", authHandler.Logout)
				r.Post("/logout-all", authHandler.LogoutAll)
				r.Get("/me", authHandler.Me)
				r.Put("/profile", authHandler.UpdateProfile)
				r.Put("/change-password", authHandler.ChangePassword)
			})
		})

		// --- 認証が必要なルート ---
		// ミドルウェアスタック: Auth → RateLimit(General)
		r.Group(func(r chi.Router) {
			r.Use(middleware.NewAuthMiddleware(deps.TokenVerifier, deps.AuthFailures))
			r.Use(deps.RateLimiter.GeneralMiddleware())

			// リクエスト管理・代理実行
			r.Route("/requests", func(r chi.Router) {
				// POST /api/v1/requests/execute - 代理実行（実行専用レート制限を追加）
				r.With(deps.RateLimiter.ExecuteMiddleware()).Post("/execute", executeHandler.Execute)

				r.Post("/", requestHandler.Create)
				r.Get("/collection/{collectionId}", requestHandler.ListByCollection)

				r.Route("/{id}", func(r chi.Router) {
					r.Get("/", requestHandler.Get)
					r.Put("/", requestHandler.Update)
					r.Delete("/", requestHandler.Delete)
					r.Post("/duplicate", requestHandler.Duplicate)
				})
			})

			// コレクション管理
			r.Route("/collections", func(r chi.Router) {
				r.Post("/", collectionHandler.Create)
				r.Get("/", collectionHandler.List)

				r.Route("/{id}", func(r chi.Router) {
					r.Get("/", collectionHandler.Get)
					r.Put("/", collectionHandler.Update)
					r.Delete("/", collectionHandler.Delete)
					r.Post("/duplicate", collectionHandler.Duplicate)
				})
			})

			// 環境管理
			r.Route("/environments", func(r chi.Router) {
				r.Post("/", environmentHandler.Create)
				r.Get("/", environmentHandler.List)
				r.Get("/active", environmentHandler.GetActive)

				r.Route("/{id}", func(r chi.Router) {
					r.Get("/", environmentHandler.Get)
					r.Put("/", environmentHandler.Update)
					r.Delete("/", environmentHandler.Delete)
					r.Post("/activate", environmentHandler.Activate)
				})
			})

			// 実行履歴
			r.Route("/history", func(r chi.Router) {
				r.Get("/", historyHandler.List)
				r.Delete("/", historyHandler.Clear)
				r.Get("/stats", historyHandler.Stats)

				r.Route("/{id}", func(r chi.Router) {
					r.Get("/", historyHandler.Get)
					r.Delete("/", historyHandler.Delete)
				})
			})
		})
	})

	return r
}
