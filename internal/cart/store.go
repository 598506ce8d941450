// Package cart はストアフロントのカート状態管理を提供する。
// カートはバリアントID単位の明細行リストで、変更のたびに合計を再計算し、
// リポジトリへ丸ごと保存してから購読者にスナップショットを通知する。
package cart

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/hitoshi/storefront/internal/model"
	"github.com/hitoshi/storefront/internal/repository"
	"github.com/hitoshi/storefront/internal/storage"
)

const defaultVariant = "default"

var whitespaceRun = regexp.MustCompile(`\s+`)

// Subscriber はカート変更の通知を受け取る関数。
// 引数は呼び出しごとに複製されたスナップショット。
type Subscriber func(state model.CartState)

// MutationRecorder はカート操作を記録するメトリクスのインターフェース。
type MutationRecorder interface {
	RecordCartMutation(op string)
}

type nopRecorder struct{}

func (nopRecorder) RecordCartMutation(string) {}

// Store は1ブラウザ（1セッション）分のカート状態を保持する。
// 全メソッドはゴルーチンセーフ。購読者はロック外で呼び出される。
type Store struct {
	repo     repository.CartRepository
	logger   *slog.Logger
	recorder MutationRecorder
	now      func() time.Time

	mu    sync.Mutex
	state model.CartState

	subMu     sync.Mutex
	subs      map[int]Subscriber
	nextSubID int
}

// NewStore はStoreを生成し、リポジトリから保存済みの状態を読み込む。
// 保存データが壊れている場合は空のカートから開始する。
func NewStore(ctx context.Context, repo repository.CartRepository, logger *slog.Logger) *Store {
	s := &Store{
		repo:     repo,
		logger:   logger,
		recorder: nopRecorder{},
		now:      time.Now,
		subs:     make(map[int]Subscriber),
	}
	s.state = s.emptyState()
	s.Reload(ctx)
	return s
}

// VariantID は商品とサイズ・カラーの組み合わせからバリアントIDを導出する。
// 基底IDはproductId、id、商品名（小文字化し空白を"-"に置換）の順に採用する。
func VariantID(p model.ProductInput) string {
	base := p.ProductID
	if base == "" {
		base = p.ID
	}
	if base == "" {
		base = whitespaceRun.ReplaceAllString(strings.ToLower(p.Name), "-")
	}
	size := p.Size
	if size == "" {
		size = defaultVariant
	}
	color := p.Color
	if color == "" {
		color = defaultVariant
	}
	return fmt.Sprintf("%s-%s-%s", base, size, color)
}

// State は現在のカート状態のスナップショットを返す。
func (s *Store) State() model.CartState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.Clone()
}

// Add は商品をカートに追加する。同一バリアントが存在する場合は数量を1増やす。
func (s *Store) Add(ctx context.Context, p model.ProductInput) (model.CartState, error) {
	if p.ProductID == "" && p.ID == "" && strings.TrimSpace(p.Name) == "" {
		return s.State(), model.NewInvalidProductError("productId、id、nameのいずれかが必要です")
	}

	id := VariantID(p)

	s.mu.Lock()
	found := false
	for i := range s.state.Items {
		if s.state.Items[i].ID == id {
			s.state.Items[i].Quantity++
			found = true
			break
		}
	}
	if !found {
		productID := p.ProductID
		if productID == "" {
			productID = p.ID
		}
		s.state.Items = append(s.state.Items, model.CartItem{
			ID:        id,
			ProductID: productID,
			Name:      p.Name,
			Price:     p.Price,
			Size:      p.Size,
			Color:     p.Color,
			Image:     p.Image,
			Quantity:  1,
			AddedAt:   s.now().UTC(),
		})
	}
	snapshot := s.commitLocked(ctx)
	s.mu.Unlock()

	s.recorder.RecordCartMutation("add")
	s.notify(snapshot)
	return snapshot, nil
}

// Remove は指定IDの明細行を削除する。存在しないIDの場合は何もしない。
func (s *Store) Remove(ctx context.Context, itemID string) model.CartState {
	s.mu.Lock()
	idx := s.indexLocked(itemID)
	if idx < 0 {
		snapshot := s.state.Clone()
		s.mu.Unlock()
		return snapshot
	}
	s.state.Items = append(s.state.Items[:idx], s.state.Items[idx+1:]...)
	snapshot := s.commitLocked(ctx)
	s.mu.Unlock()

	s.recorder.RecordCartMutation("remove")
	s.notify(snapshot)
	return snapshot
}

// SetQuantity は指定IDの数量を変更する。0以下を指定した場合は明細行を削除する。
func (s *Store) SetQuantity(ctx context.Context, itemID string, quantity int) model.CartState {
	if quantity <= 0 {
		return s.Remove(ctx, itemID)
	}

	s.mu.Lock()
	idx := s.indexLocked(itemID)
	if idx < 0 {
		snapshot := s.state.Clone()
		s.mu.Unlock()
		return snapshot
	}
	s.state.Items[idx].Quantity = quantity
	snapshot := s.commitLocked(ctx)
	s.mu.Unlock()

	s.recorder.RecordCartMutation("set_quantity")
	s.notify(snapshot)
	return snapshot
}

// Clear はカートを空にする。
func (s *Store) Clear(ctx context.Context) model.CartState {
	s.mu.Lock()
	s.state = s.emptyState()
	snapshot := s.commitLocked(ctx)
	s.mu.Unlock()

	s.recorder.RecordCartMutation("clear")
	s.notify(snapshot)
	return snapshot
}

// Reload はリポジトリから状態を丸ごと読み直す。
// 他タブ（他プロセス）による保存の反映に使用する。
// 保存データが壊れている、またはキーが削除された場合は空のカートにリセットする。
func (s *Store) Reload(ctx context.Context) {
	saved, err := s.repo.Load(ctx)
	if err != nil && !errors.Is(err, repository.ErrMalformed) {
		s.logger.Warn("カートの読み込みに失敗しました",
			slog.String("error", err.Error()),
		)
		return
	}
	if err != nil {
		s.logger.Warn("保存済みカートの読み込みに失敗したため空のカートにリセットします",
			slog.String("error", err.Error()),
		)
		s.reset()
		return
	}
	if saved == nil {
		s.reset()
		return
	}

	s.mu.Lock()
	if !saved.LastUpdated.IsZero() && saved.LastUpdated.Equal(s.state.LastUpdated) {
		// 自身の保存による変更通知
		s.mu.Unlock()
		return
	}
	next := model.CartState{
		Items:       normalizeItems(saved.Items),
		LastUpdated: saved.LastUpdated,
	}
	if next.LastUpdated.IsZero() {
		next.LastUpdated = s.now().UTC()
	}
	recalculate(&next)
	s.state = next
	snapshot := s.state.Clone()
	s.mu.Unlock()

	s.notify(snapshot)
}

// reset はメモリ上の状態を空にして購読者に通知する。ストレージには書き込まない。
// 既に空の場合は何もしない。
func (s *Store) reset() {
	s.mu.Lock()
	if len(s.state.Items) == 0 {
		s.mu.Unlock()
		return
	}
	s.state = s.emptyState()
	snapshot := s.state.Clone()
	s.mu.Unlock()

	s.notify(snapshot)
}

// HandleChange はストレージの変更通知を受け取り、カートキーであればReloadする。
func (s *Store) HandleChange(ctx context.Context, key string) {
	if key == s.repo.Key() {
		s.Reload(ctx)
	}
}

// Watch はストレージの変更通知を購読し、カートキーの変更時にReloadする。
// ctxがキャンセルされるまでブロックする。
func (s *Store) Watch(ctx context.Context, w storage.Watcher) {
	for change := range w.Watch(ctx) {
		s.HandleChange(ctx, change.Key)
	}
}

// normalizeItems は数量1未満の行を除き、バリアントIDを再導出して同一バリアントの行を数量合算で統合する。
// 統合時は先に現れた行の内容を残す。
func normalizeItems(items []model.CartItem) []model.CartItem {
	out := make([]model.CartItem, 0, len(items))
	index := make(map[string]int, len(items))
	for _, item := range items {
		if item.Quantity <= 0 {
			continue
		}
		if item.ProductID != "" || strings.TrimSpace(item.Name) != "" {
			item.ID = VariantID(model.ProductInput{
				ProductID: item.ProductID,
				Name:      item.Name,
				Size:      item.Size,
				Color:     item.Color,
			})
		}
		if item.ID == "" {
			continue
		}
		if i, ok := index[item.ID]; ok {
			out[i].Quantity += item.Quantity
			continue
		}
		index[item.ID] = len(out)
		out = append(out, item)
	}
	return out
}

// Subscribe は購読者を登録し、現在の状態で即座に1回呼び出す。
// 戻り値の関数を呼ぶと購読を解除する。
func (s *Store) Subscribe(fn Subscriber) (unsubscribe func()) {
	s.subMu.Lock()
	id := s.nextSubID
	s.nextSubID++
	s.subs[id] = fn
	s.subMu.Unlock()

	s.call(fn, s.State())

	return func() {
		s.subMu.Lock()
		delete(s.subs, id)
		s.subMu.Unlock()
	}
}

// commitLocked は合計を再計算して保存し、スナップショットを返す。
// 呼び出し時にs.muを保持していること。
func (s *Store) commitLocked(ctx context.Context) model.CartState {
	recalculate(&s.state)
	s.state.LastUpdated = s.now().UTC().Round(0)

	if err := s.repo.Save(ctx, &s.state); err != nil {
		s.logger.Error("カートの保存に失敗しました",
			slog.String("error", err.Error()),
		)
	}
	return s.state.Clone()
}

func (s *Store) indexLocked(itemID string) int {
	for i := range s.state.Items {
		if s.state.Items[i].ID == itemID {
			return i
		}
	}
	return -1
}

func (s *Store) emptyState() model.CartState {
	return model.CartState{
		Items:       []model.CartItem{},
		Total:       decimal.Zero,
		Count:       0,
		LastUpdated: s.now().UTC().Round(0),
	}
}

func (s *Store) notify(snapshot model.CartState) {
	s.subMu.Lock()
	subs := make([]Subscriber, 0, len(s.subs))
	for _, fn := range s.subs {
		subs = append(subs, fn)
	}
	s.subMu.Unlock()

	for _, fn := range subs {
		s.call(fn, snapshot.Clone())
	}
}

// call は購読者を呼び出す。panicは記録して握りつぶし、他の購読者への通知を続ける。
func (s *Store) call(fn Subscriber, snapshot model.CartState) {
	defer func() {
		if rec := recover(); rec != nil {
			s.logger.Error("カート購読者でpanicが発生しました",
				slog.Any("panic", rec),
			)
		}
	}()
	fn(snapshot)
}

// recalculate はTotal = Σ(price×quantity)、Count = Σ(quantity)を再計算する。
func recalculate(state *model.CartState) {
	total := decimal.Zero
	count := 0
	for _, item := range state.Items {
		count += item.Quantity
		total = total.Add(item.Subtotal())
	}
	state.Total = total
	state.Count = count
}
