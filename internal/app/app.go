package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"golang.org/x/time/rate"

	"github.com/hitoshi/storefront/internal/brevo"
	"github.com/hitoshi/storefront/internal/cart"
	"github.com/hitoshi/storefront/internal/config"
	"github.com/hitoshi/storefront/internal/database"
	"github.com/hitoshi/storefront/internal/handler"
	"github.com/hitoshi/storefront/internal/launch"
	"github.com/hitoshi/storefront/internal/logger"
	"github.com/hitoshi/storefront/internal/metrics"
	"github.com/hitoshi/storefront/internal/middleware"
	"github.com/hitoshi/storefront/internal/model"
	"github.com/hitoshi/storefront/internal/repository"
	"github.com/hitoshi/storefront/internal/security"
	"github.com/hitoshi/storefront/internal/shopify"
	"github.com/hitoshi/storefront/internal/signup"
	"github.com/hitoshi/storefront/internal/storage"
	"github.com/hitoshi/storefront/internal/worker/cleanup"
)

// vendorTimeout は外部API呼び出しのタイムアウト。
const vendorTimeout = 10 * time.Second

// cleanupInterval は放置カート削除ジョブの実行間隔。
const cleanupInterval = 24 * time.Hour

// Init はアプリケーションの初期化を行う。
// 本番以外では.envを読み込み、JSON構造化ログをセットアップしてから環境変数のConfigを読み込む。
// writerが指定された場合はログ出力先としてそのwriterを使用する。
func Init(w io.Writer) (*config.Config, error) {
	// 1. ログの初期化（設定読み込み前にログを使えるようにする）
	logger.SetupDefault(w)

	// 2. .envの読み込み（ファイルがなければ環境変数のみを使う）
	loadDotEnv(".env")

	// 3. 環境変数から設定を読み込む
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	return cfg, nil
}

// loadDotEnv は本番以外で.envファイルを読み込む。既存の環境変数は上書きしない。
func loadDotEnv(path string) {
	if os.Getenv("APP_ENV") == "production" {
		return
	}
	if err := godotenv.Load(path); err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			slog.Warn(".envの読み込みに失敗しました", slog.String("path", path), slog.String("error", err.Error()))
		}
		return
	}
	slog.Info(".envを読み込みました", slog.String("path", path))
}

// Run はアプリケーションのメインエントリーポイント。
// コマンドライン引数からサブコマンドを解析し、対応するモードで起動する。
// SIGINTまたはSIGTERMを受信するとコンテキストをキャンセルしてシャットダウンする。
// argsにはos.Args[1:]を渡す。
func Run(w io.Writer, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	return RunContext(ctx, w, args)
}

// RunContext はctxがキャンセルされるまでサブコマンドを実行する。
func RunContext(ctx context.Context, w io.Writer, args []string) error {
	inv, err := ParseCommand(args)
	if err != nil {
		return err
	}

	// healthcheck は軽量サブコマンドのため、フル初期化をスキップする
	if inv.Command == CommandHealthcheck {
		port := os.Getenv("SERVER_PORT")
		if port == "" {
			port = "8080"
		}
		return runHealthcheck(ctx, port)
	}

	cfg, err := Init(w)
	if err != nil {
		return fmt.Errorf("initialization failed: %w", err)
	}

	slog.Info("starting application",
		slog.String("command", string(inv.Command)),
		slog.String("port", cfg.ServerPort),
		slog.String("base_url", cfg.BaseURL),
		slog.String("storage_backend", cfg.StorageBackend),
	)

	switch inv.Command {
	case CommandWorker:
		return runWorker(ctx, cfg)
	case CommandMigrate:
		return runMigrate(cfg, inv)
	case CommandCleanup:
		return runCleanup(ctx, cfg)
	default:
		return runServe(ctx, cfg)
	}
}

// components はserveとworkerで共有する依存関係。
type components struct {
	store    storage.KVStore
	health   handler.HealthChecker
	closeFn  func() error
	db       *sql.DB // postgresバックエンドのみ
	registry *prometheus.Registry
	metrics  *metrics.Collector

	catalog *shopify.Catalog
	syncer  *shopify.Syncer
	signups *signup.Service
	launch  *launch.Service
}

func (c *components) Close() {
	if c.closeFn == nil {
		return
	}
	if err := c.closeFn(); err != nil {
		slog.Warn("ストレージのクローズに失敗しました", slog.String("error", err.Error()))
	}
}

// buildComponents はストレージ、外部APIクライアント、ドメインサービスを組み立てる。
func buildComponents(ctx context.Context, cfg *config.Config) (*components, error) {
	lg := slog.Default()

	// 1. ストレージ
	store, health, closeFn, err := openStorage(ctx, cfg)
	if err != nil {
		return nil, err
	}
	c := &components{store: store, health: health, closeFn: closeFn}
	if db, ok := health.(*sql.DB); ok {
		c.db = db
	}

	// 2. メトリクス
	c.registry = prometheus.NewRegistry()
	c.metrics = metrics.NewCollector(c.registry)
	metrics.RegisterRuntime(c.registry)

	// 3. 外部APIクライアント（内部ネットワーク宛ての接続を拒否する）
	guard := security.NewOutboundGuard()
	vendorHTTP := guard.NewClient(vendorTimeout)

	shopifyClient := shopify.NewClient(vendorHTTP, lg, shopify.Config{
		ShopDomain:  cfg.ShopifyShopDomain,
		AccessToken: cfg.ShopifyAccessToken,
		APIVersion:  cfg.ShopifyAPIVersion,
		PageDelay:   cfg.ShopifyPageDelay,
	})
	if shopifyClient.Configured() {
		if err := guard.ValidateBaseURL(shopifyClient.BaseURL()); err != nil {
			c.Close()
			return nil, fmt.Errorf("invalid SHOPIFY_SHOP_DOMAIN: %w", err)
		}
	} else {
		slog.Warn("Shopifyが未設定のため商品APIは利用できません")
	}
	shopifyClient.SetRecorder(c.metrics)

	brevoClient := brevo.NewClient(vendorHTTP, lg, brevo.Config{
		APIKey:      cfg.BrevoAPIKey,
		ListID:      cfg.BrevoListID,
		SenderName:  cfg.BrevoSenderName,
		SenderEmail: cfg.BrevoSenderEmail,
	})
	if !brevoClient.Configured() {
		slog.Warn("Brevoが未設定のためメール登録はローカルに保存されます")
	}
	brevoClient.SetRecorder(c.metrics)

	// 4. ドメインサービス
	c.catalog = shopify.NewCatalog(shopifyClient, security.NewProductHTML(), lg, cfg.ShopifyCacheTTL)
	c.catalog.SetRecorder(c.metrics)

	c.syncer = shopify.NewSyncer(c.catalog, lg, cfg.ShopifySyncInterval)
	c.syncer.SetRecorder(c.metrics)

	c.signups = signup.NewService(repository.NewKVSignupRepo(store), brevoClient, lg, cfg.StoreURL)
	c.signups.SetRecorder(c.metrics)

	c.launch = launch.NewService(repository.NewKVLaunchRepo(store), c.signups, c.signups, lg, launch.Config{
		CheckInterval:     cfg.LaunchCheckInterval,
		PrelaunchDuration: cfg.LaunchPrelaunchDuration,
		DropDuration:      cfg.LaunchDropDuration,
	})
	c.launch.SetRecorder(c.metrics)

	return c, nil
}

// openStorage は設定されたバックエンドのKVStoreを開く。
func openStorage(ctx context.Context, cfg *config.Config) (storage.KVStore, handler.HealthChecker, func() error, error) {
	switch cfg.StorageBackend {
	case config.BackendPostgres:
		db, err := database.Open(cfg.DatabaseURL)
		if err != nil {
			return nil, nil, nil, fmt.Errorf("failed to open database: %w", err)
		}
		if err := database.Ping(ctx, db, 5*time.Second); err != nil {
			db.Close()
			return nil, nil, nil, fmt.Errorf("failed to connect to database: %w", err)
		}
		slog.Info("database connection established")
		return storage.NewPostgresStore(db), db, db.Close, nil

	case config.BackendRedis:
		client := redis.NewClient(&redis.Options{
			Addr:         cfg.RedisAddr,
			Password:     cfg.RedisPassword,
			DB:           cfg.RedisDB,
			DialTimeout:  5 * time.Second,
			ReadTimeout:  3 * time.Second,
			WriteTimeout: 3 * time.Second,
		})
		pinger := redisPinger{client: client}
		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		if err := pinger.PingContext(pingCtx); err != nil {
			client.Close()
			return nil, nil, nil, fmt.Errorf("failed to connect to redis: %w", err)
		}
		slog.Info("redis connection established", slog.String("addr", cfg.RedisAddr))
		return storage.NewRedisStore(client, slog.Default()), pinger, client.Close, nil

	default:
		slog.Warn("メモリストレージを使用します。再起動でカートとメール登録は失われます")
		return storage.NewMemoryStore(), nil, nil, nil
	}
}

// redisPinger はRedisクライアントをヘルスチェックに適合させる。
type redisPinger struct {
	client *redis.Client
}

func (p redisPinger) PingContext(ctx context.Context) error {
	return p.client.Ping(ctx).Err()
}

// newRouter はserve用のルーターを構成する。
func newRouter(cfg *config.Config, c *components, carts *cart.Registry, rl *middleware.RateLimiter) http.Handler {
	return handler.NewRouter(&handler.RouterDeps{
		Logger:            slog.Default(),
		CORSAllowedOrigin: cfg.CORSAllowedOrigin,
		CookieSecure:      cfg.CookieSecure,
		AdminToken:        cfg.AdminToken,
		RateLimiter:       rl,
		StatusRecorder:    c.metrics,

		HealthChecker:  c.health,
		MetricsHandler: metrics.Handler(c.registry),

		Carts:         carts,
		LaunchService: c.launch,
		SignupService: c.signups,
		Catalog:       c.catalog,
		SyncStatus:    c.syncer,
	})
}

// rateLimiterConfig はreq/min単位の設定をリミッターの設定に変換する。
func rateLimiterConfig(cfg *config.Config) middleware.RateLimiterConfig {
	rlCfg := middleware.DefaultRateLimiterConfig()
	if cfg.RateLimitGeneral > 0 {
		rlCfg.GeneralRate = perMinute(cfg.RateLimitGeneral)
		rlCfg.GeneralBurst = cfg.RateLimitGeneral
	}
	if cfg.RateLimitSignup > 0 {
		rlCfg.SignupRate = perMinute(cfg.RateLimitSignup)
		rlCfg.SignupBurst = cfg.RateLimitSignup
	}
	rlCfg.TrustForwardedFor = cfg.TrustProxy
	return rlCfg
}

func perMinute(n int) rate.Limit {
	return rate.Limit(float64(n) / 60.0)
}

// runServe はAPIサーバーモードで起動する。
// 全依存関係をワイヤリングし、HTTPサーバーと商品同期ジョブを起動する。
// メモリストレージの場合はローンチフェーズチェッカーも同じプロセスで実行する。
// ctxがキャンセルされるとグレースフルシャットダウンを行う。
func runServe(ctx context.Context, cfg *config.Config) error {
	c, err := buildComponents(ctx, cfg)
	if err != nil {
		return err
	}
	defer c.Close()

	carts := cart.NewRegistry(c.store, slog.Default(), c.metrics)
	defer carts.Close()

	rl := middleware.NewRateLimiter(rateLimiterConfig(cfg))
	defer rl.Stop()

	jobCtx, cancelJobs := context.WithCancel(ctx)
	var jobs sync.WaitGroup
	defer func() {
		cancelJobs()
		jobs.Wait()
	}()

	// 商品キャッシュはプロセス内にあるため同期ジョブはAPIサーバーで実行する
	if c.catalog.Configured() {
		jobs.Add(1)
		go func() {
			defer jobs.Done()
			c.syncer.Start(jobCtx)
		}()
	}
	if cfg.StorageBackend == config.BackendMemory {
		jobs.Add(1)
		go func() {
			defer jobs.Done()
			c.launch.Start(jobCtx)
		}()
	}

	server := &http.Server{
		Addr:         ":" + cfg.ServerPort,
		Handler:      newRouter(cfg, c, carts, rl),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	ln, err := net.Listen("tcp", server.Addr)
	if err != nil {
		return fmt.Errorf("failed to listen: %w", err)
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("API server starting", slog.String("addr", ln.Addr().String()))
		if err := server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server listen error: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	slog.Info("shutting down API server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}

	slog.Info("API server stopped gracefully")
	return nil
}

// runWorker はワーカーモードで起動する。
// ローンチフェーズチェッカーを起動し、Shopifyが設定済みであれば同期間隔ごとに在庫をチェックする。
// postgresバックエンドでは放置カートの日次クリーンアップも実行する。
// ctxがキャンセルされるとシャットダウンする。
func runWorker(ctx context.Context, cfg *config.Config) error {
	if cfg.StorageBackend == config.BackendMemory {
		slog.Warn("メモリストレージではAPIサーバーとローンチ時刻を共有できません")
	}

	c, err := buildComponents(ctx, cfg)
	if err != nil {
		return err
	}
	defer c.Close()

	slog.Info("worker starting",
		slog.Duration("launch_check_interval", cfg.LaunchCheckInterval),
		slog.Duration("inventory_interval", cfg.ShopifySyncInterval),
	)

	var wg sync.WaitGroup

	// 他プロセスからのローンチ時刻変更を即座に反映する
	if w, ok := c.store.(storage.Watcher); ok {
		wg.Add(1)
		go func() {
			defer wg.Done()
			c.launch.Watch(ctx, w)
		}()
	}

	if c.catalog.Configured() {
		wg.Add(1)
		go func() {
			defer wg.Done()
			runInventoryCheck(ctx, c.catalog, cfg.ShopifySyncInterval)
		}()
	}

	if c.db != nil {
		job := cleanup.NewCleanupJob(c.db, slog.Default())
		wg.Add(1)
		go func() {
			defer wg.Done()
			job.Start(ctx, cleanupInterval)
		}()
	}

	// フェーズチェッカーをメインgoroutineで実行（ブロッキング）
	c.launch.Start(ctx)

	wg.Wait()
	slog.Info("worker stopped gracefully")
	return nil
}

// inventoryChecker は在庫チェックを行うインターフェース。
type inventoryChecker interface {
	CheckInventory(ctx context.Context) (*model.InventoryReport, error)
}

// runInventoryCheck は起動直後とinterval間隔で在庫チェックを実行する。
func runInventoryCheck(ctx context.Context, checker inventoryChecker, interval time.Duration) {
	check := func() {
		report, err := checker.CheckInventory(ctx)
		if err != nil {
			slog.Error("在庫チェックに失敗しました", slog.String("error", err.Error()))
			return
		}
		slog.Info("在庫チェックが完了しました",
			slog.Int("total", report.Total),
			slog.Int("out_of_stock", len(report.OutOfStock)),
		)
	}

	check()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			check()
		}
	}
}

// runMigrate はデータベースマイグレーションを実行する。
// postgres以外のバックエンドではスキーマが不要なため何もしない。
func runMigrate(cfg *config.Config, inv Invocation) error {
	if cfg.StorageBackend != config.BackendPostgres {
		slog.Info("postgres以外のバックエンドのためマイグレーションをスキップします",
			slog.String("storage_backend", cfg.StorageBackend),
		)
		return nil
	}

	slog.Info("running database migrations",
		slog.String("action", string(inv.Migrate)),
		slog.String("database_url", maskDatabaseURL(cfg.DatabaseURL)),
	)

	switch inv.Migrate {
	case MigrateDown:
		if err := database.RollbackMigrations(cfg.DatabaseURL, inv.Steps); err != nil {
			return fmt.Errorf("migration failed: %w", err)
		}
		slog.Info("database migrations rolled back", slog.Int("steps", inv.Steps))
	case MigrateStatus:
		st, err := database.CurrentStatus(cfg.DatabaseURL)
		if err != nil {
			return fmt.Errorf("migration status failed: %w", err)
		}
		slog.Info("database migration status",
			slog.Uint64("version", uint64(st.Version)),
			slog.Bool("dirty", st.Dirty),
		)
	default:
		if err := database.RunMigrations(cfg.DatabaseURL); err != nil {
			return fmt.Errorf("migration failed: %w", err)
		}
		slog.Info("database migrations completed successfully")
	}
	return nil
}

// runCleanup は放置カートの削除を1回実行する。postgres以外のバックエンドでは何もしない。
func runCleanup(ctx context.Context, cfg *config.Config) error {
	if cfg.StorageBackend != config.BackendPostgres {
		slog.Info("postgres以外のバックエンドのためクリーンアップをスキップします",
			slog.String("storage_backend", cfg.StorageBackend),
		)
		return nil
	}

	db, err := database.Open(cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer db.Close()
	if err := database.Ping(ctx, db, 5*time.Second); err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}

	return cleanup.NewCleanupJob(db, slog.Default()).Run(ctx)
}

// runHealthcheck はヘルスチェックを実行する。
// distroless環境でのDockerヘルスチェック用サブコマンド。
// /health エンドポイントにHTTPリクエストを送り、結果を返す。
func runHealthcheck(ctx context.Context, port string) error {
	url := fmt.Sprintf("http://localhost:%s/health", port)
	client := &http.Client{Timeout: 5 * time.Second}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	resp, err := client.Do(req)
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
