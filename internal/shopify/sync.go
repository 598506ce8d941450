package shopify

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/hitoshi/storefront/internal/model"
)

// DefaultSyncInterval は商品同期のデフォルト間隔。
const DefaultSyncInterval = 30 * time.Minute

// 商品APIの稼働状況
const (
	HealthHealthy   = "healthy"
	HealthHasErrors = "has-errors"
)

// SyncRecorder は同期結果を記録するメトリクスのインターフェース。
type SyncRecorder interface {
	RecordProductsSynced(count int)
}

type nopSyncRecorder struct{}

func (nopSyncRecorder) RecordProductsSynced(int) {}

// Syncer は商品カタログを定期的に同期するジョブ。
// 同期中に次の実行が来た場合はスキップする。
type Syncer struct {
	catalog  *Catalog
	logger   *slog.Logger
	interval time.Duration
	recorder SyncRecorder
	now      func() time.Time

	mu      sync.Mutex
	status  model.SyncStatus
	started bool
}

// NewSyncer はSyncerの新しいインスタンスを生成する。intervalが0以下の場合は30分。
func NewSyncer(catalog *Catalog, logger *slog.Logger, interval time.Duration) *Syncer {
	if interval <= 0 {
		interval = DefaultSyncInterval
	}
	return &Syncer{
		catalog:  catalog,
		logger:   logger,
		interval: interval,
		recorder: nopSyncRecorder{},
		now:      time.Now,
	}
}

// SetRecorder はメトリクスの記録先を設定する。
func (s *Syncer) SetRecorder(r SyncRecorder) {
	if r != nil {
		s.recorder = r
	}
}

// Start は同期間隔のティッカーで同期ジョブを起動する。
// 起動直後に1回実行し、コンテキストがキャンセルされるまで継続する。
func (s *Syncer) Start(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.mu.Lock()
	s.started = true
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		s.started = false
		s.mu.Unlock()
	}()

	s.logger.Info("商品同期ジョブを開始しました", slog.Duration("interval", s.interval))

	s.runLogged(ctx)
	for {
		select {
		case <-ctx.Done():
			s.logger.Info("商品同期ジョブを停止しました")
			return
		case <-ticker.C:
			s.runLogged(ctx)
		}
	}
}

func (s *Syncer) runLogged(ctx context.Context) {
	if err := s.RunOnce(ctx); err != nil {
		s.logger.Error("商品同期に失敗しました", slog.String("error", err.Error()))
	}
}

// RunOnce はキャッシュを使わずに商品一覧を取得し、同期状態を更新する。
// 開始時にAPIエラーの記録をリセットする。既に同期中の場合は何もせずnilを返す。
func (s *Syncer) RunOnce(ctx context.Context) error {
	s.mu.Lock()
	if s.status.IsRunning {
		s.mu.Unlock()
		s.logger.Info("商品同期が実行中のためスキップします")
		return nil
	}
	s.status.IsRunning = true
	s.mu.Unlock()
	s.catalog.client.errors.reset()

	start := time.Now()
	products, err := s.catalog.AllProducts(ctx, ListOptions{ForceRefresh: true})

	s.mu.Lock()
	defer s.mu.Unlock()
	s.status.IsRunning = false

	if err != nil {
		return err
	}

	now := s.now()
	s.status.TotalProducts = len(products)
	s.status.SyncedProducts = len(products)
	s.status.LastSync = &now
	s.recorder.RecordProductsSynced(len(products))

	s.logger.Info("商品同期が完了しました",
		slog.Int("product_count", len(products)),
		slog.Float64("duration_ms", float64(time.Since(start).Milliseconds())),
	)
	return nil
}

// Status は同期状態のスナップショットを返す。
func (s *Syncer) Status() model.SyncStatus {
	s.mu.Lock()
	defer s.mu.Unlock()

	st := s.status
	st.Errors = s.catalog.client.Errors()
	st.CacheSize = s.catalog.CacheSize()
	if s.started {
		next := s.now().Add(s.interval)
		st.NextSync = &next
	}
	return st
}

// HealthCheck は商品APIの稼働状況を返す。
func (s *Syncer) HealthCheck() model.CatalogHealth {
	s.mu.Lock()
	defer s.mu.Unlock()

	health := model.CatalogHealth{
		APIConnected:    s.catalog.Configured(),
		CacheActive:     s.catalog.CacheSize() > 0,
		AutoSyncRunning: s.started,
		LastSync:        s.status.LastSync,
		ErrorCount:      len(s.catalog.client.Errors()),
		Status:          HealthHealthy,
	}
	if health.ErrorCount > 0 {
		health.Status = HealthHasErrors
	}
	return health
}
