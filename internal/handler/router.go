package handler

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/storefront/internal/middleware"
)

// RouterDeps はNewRouterに必要な依存関係をまとめた構造体。
type RouterDeps struct {
	// ミドルウェア依存
	Logger            *slog.Logger
	CORSAllowedOrigin string
	CookieSecure      bool
	AdminToken        string
	RateLimiter       *middleware.RateLimiter
	StatusRecorder    middleware.StatusRecorder

	// ヘルスチェック・メトリクス
	HealthChecker  HealthChecker
	MetricsHandler http.Handler

	// ドメイン
	Carts         CartProvider
	LaunchService LaunchServiceInterface
	SignupService SignupServiceInterface
	Catalog       CatalogInterface
	SyncStatus    SyncStatusProvider
}

// NewRouter は全APIエンドポイントのルーティングとミドルウェアチェーンを構成したchi.Routerを返す。
//
// ミドルウェアスタックの実行順序:
//
//	Recovery → Logging → StatusMetrics → SecurityHeaders → CORS → CartSession → RateLimit(General)
//
// /health と /metrics はセッション・レート制限の外に配置する。
func NewRouter(deps *RouterDeps) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.NewRecoveryMiddleware(deps.Logger))
	if deps.Logger != nil {
		r.Use(middleware.NewLoggingMiddleware(deps.Logger))
	}
	if deps.StatusRecorder != nil {
		r.Use(middleware.NewStatusMetricsMiddleware(deps.StatusRecorder))
	}
	r.Use(middleware.NewSecurityHeadersMiddleware())
	r.Use(middleware.NewCORSMiddleware(deps.CORSAllowedOrigin))

	cartHandler := NewCartHandler(deps.Carts)
	launchHandler := NewLaunchHandler(deps.LaunchService)
	signupHandler := NewSignupHandler(deps.SignupService)
	productHandler := NewProductHandler(deps.Catalog, deps.SyncStatus)

	// --- セッション不要のルート ---
	r.Get("/health", newHealthHandler(deps.HealthChecker))
	if deps.MetricsHandler != nil {
		r.Method(http.MethodGet, "/metrics", deps.MetricsHandler)
	}

	// --- APIルート ---
	// ミドルウェアスタック: CartSession → RateLimit(General)
	r.Group(func(r chi.Router) {
		r.Use(middleware.NewCartSessionMiddleware(deps.CookieSecure))
		r.Use(deps.RateLimiter.GeneralMiddleware())

		// カート
		r.Route("/api/cart", func(r chi.Router) {
			r.Get("/", cartHandler.GetCart)
			r.Delete("/", cartHandler.ClearCart)
			r.Get("/summary", cartHandler.Summary)
			r.Get("/categories", cartHandler.Categories)
			r.Post("/checkout", cartHandler.Checkout)
			r.Post("/discount", cartHandler.ApplyDiscount)
			r.Get("/export", cartHandler.Export)
			r.Post("/import", cartHandler.Import)

			r.Post("/items", cartHandler.AddItem)
			r.Route("/items/{id}", func(r chi.Router) {
				r.Put("/", cartHandler.UpdateItem)
				r.Delete("/", cartHandler.RemoveItem)
			})
		})

		// ローンチ
		r.Route("/api/launch", func(r chi.Router) {
			r.Get("/", launchHandler.GetStatus)
			r.Get("/countdown", launchHandler.GetCountdown)
		})

		// メール登録（登録専用レート制限を追加）
		r.With(deps.RateLimiter.SignupMiddleware()).Post("/api/signups", signupHandler.Register)

		// 商品
		r.Route("/api/products", func(r chi.Router) {
			r.Get("/", productHandler.ListProducts)
			r.Get("/search", productHandler.SearchProducts)
			r.Get("/sync-status", productHandler.SyncStatus)
			r.Get("/{id}", productHandler.GetProduct)
		})
		r.Get("/api/collections/{id}/products", productHandler.CollectionProducts)

		// 管理
		r.Route("/api/admin", func(r chi.Router) {
			r.Use(middleware.NewAdminTokenMiddleware(deps.AdminToken))
			r.Post("/launch/schedule", launchHandler.Schedule)
			r.Put("/launch", launchHandler.SetLaunchTime)
			r.Delete("/launch", launchHandler.Reset)
		})
	})

	return r
}
