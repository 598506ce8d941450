package cart

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/hitoshi/storefront/internal/repository"
	"github.com/hitoshi/storefront/internal/storage"
)

// sessionPrefix はセッションごとの名前空間の接頭辞。
const sessionPrefix = "session"

// DefaultIdleTTL はアクセスのないStoreをメモリから破棄するまでの時間。
// 破棄後のアクセスではストレージから読み直す。
const DefaultIdleTTL = 30 * time.Minute

// RegistryOption はRegistryの設定を変更する。
type RegistryOption func(*Registry)

// WithIdleTTL はStoreの破棄までのアイドル時間を設定する。0以下の場合は破棄しない。
func WithIdleTTL(d time.Duration) RegistryOption {
	return func(r *Registry) { r.idleTTL = d }
}

type registryEntry struct {
	store      *Store
	lastAccess time.Time
}

// Registry はセッションIDごとのStoreを管理する。
// 各Storeは共有KVStoreをセッションIDで名前空間分離したものを使用するため、
// ブラウザ版と同じ固定キーでセッション間の衝突なく保存できる。
// 変更購読は下位ストアに対して1本だけ張り、キーの接頭辞でメモリ上のStoreに振り分ける。
type Registry struct {
	base     storage.KVStore
	logger   *slog.Logger
	recorder MutationRecorder
	idleTTL  time.Duration
	now      func() time.Time

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu      sync.Mutex
	entries map[string]*registryEntry
}

// NewRegistry はRegistryを生成する。recorderがnilの場合は記録しない。
// baseがstorage.Watcherを実装する場合、他プロセスによるカートの変更を反映する。
func NewRegistry(base storage.KVStore, logger *slog.Logger, recorder MutationRecorder, opts ...RegistryOption) *Registry {
	if recorder == nil {
		recorder = nopRecorder{}
	}
	ctx, cancel := context.WithCancel(context.Background())
	r := &Registry{
		base:     base,
		logger:   logger,
		recorder: recorder,
		idleTTL:  DefaultIdleTTL,
		now:      time.Now,
		ctx:      ctx,
		cancel:   cancel,
		entries:  make(map[string]*registryEntry),
	}
	for _, opt := range opts {
		opt(r)
	}

	if w, ok := base.(storage.Watcher); ok {
		changes := w.Watch(ctx)
		r.wg.Add(1)
		go func() {
			defer r.wg.Done()
			r.dispatch(changes)
		}()
	}
	if r.idleTTL > 0 {
		r.wg.Add(1)
		go func() {
			defer r.wg.Done()
			r.evictLoop()
		}()
	}
	return r
}

// Get はセッションIDに対応するStoreを返す。未生成の場合は保存済み状態から生成する。
func (r *Registry) Get(ctx context.Context, sessionID string) *Store {
	r.mu.Lock()
	defer r.mu.Unlock()

	if e, ok := r.entries[sessionID]; ok {
		e.lastAccess = r.now()
		return e.store
	}

	ns := storage.Namespace(r.base, sessionPrefix+":"+sessionID)
	s := NewStore(ctx, repository.NewKVCartRepo(ns), r.logger.With(slog.String("session_id", sessionID)))
	s.recorder = r.recorder
	r.entries[sessionID] = &registryEntry{store: s, lastAccess: r.now()}
	return s
}

// Len はメモリ上に保持しているStore数を返す。
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}

// Close は変更購読と破棄ループを停止する。
func (r *Registry) Close() {
	r.cancel()
	r.wg.Wait()
}

// dispatch は "session:<id>:<key>" の変更を該当セッションのStoreに渡す。
// メモリ上にないセッションは次回のGetで読み直されるため無視する。
func (r *Registry) dispatch(changes <-chan storage.Change) {
	for change := range changes {
		sessionID, key, ok := splitSessionKey(change.Key)
		if !ok {
			continue
		}
		r.mu.Lock()
		e, found := r.entries[sessionID]
		r.mu.Unlock()
		if found {
			e.store.HandleChange(r.ctx, key)
		}
	}
}

func splitSessionKey(full string) (sessionID, key string, ok bool) {
	rest, found := strings.CutPrefix(full, sessionPrefix+":")
	if !found {
		return "", "", false
	}
	return strings.Cut(rest, ":")
}

func (r *Registry) evictLoop() {
	interval := r.idleTTL / 2
	if interval < time.Second {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-r.ctx.Done():
			return
		case <-ticker.C:
			r.evictIdle(r.now())
		}
	}
}

// evictIdle はidleTTLを超えてアクセスのないStoreを破棄し、その数を返す。
func (r *Registry) evictIdle(now time.Time) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	evicted := 0
	for id, e := range r.entries {
		if now.Sub(e.lastAccess) > r.idleTTL {
			delete(r.entries, id)
			evicted++
		}
	}
	if evicted > 0 {
		r.logger.Debug("アイドル状態のカートを破棄しました", slog.Int("evicted", evicted))
	}
	return evicted
}
