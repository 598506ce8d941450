package cart

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/hitoshi/storefront/internal/model"
	"github.com/hitoshi/storefront/internal/repository"
	"github.com/hitoshi/storefront/internal/storage"
)

func newTestLogger(buf *bytes.Buffer) *slog.Logger {
	return slog.New(slog.NewJSONHandler(buf, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
}

// mockCartRepo はCartRepositoryのモック。
type mockCartRepo struct {
	loadFunc func(ctx context.Context) (*model.CartState, error)
	saveFunc func(ctx context.Context, state *model.CartState) error
}

func (m *mockCartRepo) Load(ctx context.Context) (*model.CartState, error) {
	if m.loadFunc != nil {
		return m.loadFunc(ctx)
	}
	return nil, nil
}

func (m *mockCartRepo) Save(ctx context.Context, state *model.CartState) error {
	if m.saveFunc != nil {
		return m.saveFunc(ctx, state)
	}
	return nil
}

func (m *mockCartRepo) Key() string { return repository.CartKey }

func newTestStore(t *testing.T) (*Store, *storage.MemoryStore, *bytes.Buffer) {
	t.Helper()
	var buf bytes.Buffer
	kv := storage.NewMemoryStore()
	s := NewStore(context.Background(), repository.NewKVCartRepo(kv), newTestLogger(&buf))
	return s, kv, &buf
}

func hoodie(size, color string) model.ProductInput {
	return model.ProductInput{
		ProductID: "crown-hoodie",
		Name:      "Crown Hoodie",
		Price:     decimal.RequireFromString("89.95"),
		Size:      size,
		Color:     color,
	}
}

func sticker() model.ProductInput {
	return model.ProductInput{
		ID:    "lucy-sticker",
		Name:  "Lucy Sticker",
		Price: decimal.RequireFromString("4.50"),
	}
}

// assertTotals は total == Σ(price×quantity) かつ count == Σ(quantity) を検証する。
func assertTotals(t *testing.T, state model.CartState) {
	t.Helper()
	total := decimal.Zero
	count := 0
	for _, item := range state.Items {
		total = total.Add(item.Price.Mul(decimal.NewFromInt(int64(item.Quantity))))
		count += item.Quantity
	}
	if !state.Total.Equal(total) {
		t.Errorf("Total = %s, want %s", state.Total, total)
	}
	if state.Count != count {
		t.Errorf("Count = %d, want %d", state.Count, count)
	}
}

func TestVariantID(t *testing.T) {
	tests := []struct {
		name string
		in   model.ProductInput
		want string
	}{
		{"productIdとサイズ・カラー", model.ProductInput{ProductID: "tee", Size: "L", Color: "pink"}, "tee-L-pink"},
		{"productIdが優先", model.ProductInput{ProductID: "tee", ID: "other"}, "tee-default-default"},
		{"idにフォールバック", model.ProductInput{ID: "beanie", Color: "gold"}, "beanie-default-gold"},
		{"商品名から生成", model.ProductInput{Name: "Dynasty  Crew\tNeck"}, "dynasty-crew-neck-default-default"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := VariantID(tt.in); got != tt.want {
				t.Errorf("VariantID = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestStore_Add_SameVariantIncrementsQuantity(t *testing.T) {
	s, _, _ := newTestStore(t)
	ctx := context.Background()

	s.Add(ctx, hoodie("M", "black"))
	state, err := s.Add(ctx, hoodie("M", "black"))
	if err != nil {
		t.Fatalf("Add がエラーを返した: %v", err)
	}

	if len(state.Items) != 1 {
		t.Fatalf("明細行数 = %d, want 1（重複してはならない）", len(state.Items))
	}
	if state.Items[0].Quantity != 2 {
		t.Errorf("Quantity = %d, want 2", state.Items[0].Quantity)
	}
	assertTotals(t, state)
	if !state.Total.Equal(decimal.RequireFromString("179.90")) {
		t.Errorf("Total = %s, want 179.90", state.Total)
	}
}

func TestStore_Add_DifferentVariantsAreSeparateLines(t *testing.T) {
	s, _, _ := newTestStore(t)
	ctx := context.Background()

	s.Add(ctx, hoodie("M", "black"))
	s.Add(ctx, hoodie("L", "black"))
	state, _ := s.Add(ctx, sticker())

	if len(state.Items) != 3 {
		t.Fatalf("明細行数 = %d, want 3", len(state.Items))
	}
	if state.Items[2].ProductID != "lucy-sticker" {
		t.Errorf("ProductID = %q, want idから補完された lucy-sticker", state.Items[2].ProductID)
	}
	if state.Items[2].Quantity != 1 || state.Items[2].AddedAt.IsZero() {
		t.Errorf("新規明細行 = %+v", state.Items[2])
	}
	assertTotals(t, state)
}

func TestStore_Add_RequiresIdentity(t *testing.T) {
	s, _, _ := newTestStore(t)

	_, err := s.Add(context.Background(), model.ProductInput{Price: decimal.NewFromInt(10)})
	var apiErr *model.APIError
	if !errors.As(err, &apiErr) || apiErr.Code != model.ErrCodeInvalidProduct {
		t.Errorf("err = %v, want INVALID_PRODUCT", err)
	}
}

func TestStore_TotalsHoldAfterEveryMutation(t *testing.T) {
	s, _, _ := newTestStore(t)
	ctx := context.Background()

	state, _ := s.Add(ctx, hoodie("M", "black"))
	assertTotals(t, state)
	state, _ = s.Add(ctx, sticker())
	assertTotals(t, state)
	state = s.SetQuantity(ctx, "lucy-sticker-default-default", 7)
	assertTotals(t, state)
	state = s.Remove(ctx, "crown-hoodie-M-black")
	assertTotals(t, state)
	state = s.Clear(ctx)
	assertTotals(t, state)

	if len(state.Items) != 0 || !state.Total.IsZero() || state.Count != 0 {
		t.Errorf("Clear後の状態 = %+v", state)
	}
}

func TestStore_SetQuantity_NonPositiveRemoves(t *testing.T) {
	for _, q := range []int{0, -1} {
		s, _, _ := newTestStore(t)
		ctx := context.Background()
		s.Add(ctx, hoodie("M", "black"))
		s.Add(ctx, sticker())

		state := s.SetQuantity(ctx, "crown-hoodie-M-black", q)
		if len(state.Items) != 1 || state.Items[0].ID != "lucy-sticker-default-default" {
			t.Errorf("quantity=%d: 明細行が削除されていない: %+v", q, state.Items)
		}
		assertTotals(t, state)
	}
}

func TestStore_Remove_UnknownIDIsNoop(t *testing.T) {
	s, _, _ := newTestStore(t)
	ctx := context.Background()
	before, _ := s.Add(ctx, sticker())

	after := s.Remove(ctx, "nope")
	if len(after.Items) != 1 || !after.LastUpdated.Equal(before.LastUpdated) {
		t.Errorf("存在しないIDの削除で状態が変わった: %+v", after)
	}
}

func TestStore_PersistsAfterMutation(t *testing.T) {
	s, kv, _ := newTestStore(t)
	ctx := context.Background()
	s.Add(ctx, hoodie("S", "gold"))

	// 同じKVStoreから新しいStoreを作ると状態が復元される
	var buf bytes.Buffer
	restored := NewStore(ctx, repository.NewKVCartRepo(kv), newTestLogger(&buf))
	state := restored.State()
	if len(state.Items) != 1 || state.Items[0].ID != "crown-hoodie-S-gold" || state.Count != 1 {
		t.Errorf("復元された状態 = %+v", state)
	}
}

func TestStore_MalformedStorageResetsToEmpty(t *testing.T) {
	ctx := context.Background()
	kv := storage.NewMemoryStore()
	kv.Set(ctx, repository.CartKey, []byte("][garbage"))

	var buf bytes.Buffer
	s := NewStore(ctx, repository.NewKVCartRepo(kv), newTestLogger(&buf))

	state := s.State()
	if len(state.Items) != 0 || state.Count != 0 {
		t.Errorf("壊れたデータから空のカートにリセットされていない: %+v", state)
	}
	if !strings.Contains(buf.String(), "WARN") {
		t.Error("警告ログが出力されていない")
	}
}

func TestStore_SaveFailureIsLoggedNotReturned(t *testing.T) {
	var buf bytes.Buffer
	repo := &mockCartRepo{
		saveFunc: func(ctx context.Context, state *model.CartState) error {
			return errors.New("quota exceeded")
		},
	}
	s := NewStore(context.Background(), repo, newTestLogger(&buf))

	state, err := s.Add(context.Background(), sticker())
	if err != nil {
		t.Fatalf("保存失敗はエラーとして返さない: %v", err)
	}
	if state.Count != 1 {
		t.Errorf("メモリ上の状態は更新されるべき: %+v", state)
	}
	if !strings.Contains(buf.String(), "quota exceeded") {
		t.Error("保存失敗がログに記録されていない")
	}
}

func TestStore_Subscribe_ImmediateAndOnMutation(t *testing.T) {
	s, _, _ := newTestStore(t)
	ctx := context.Background()

	var mu sync.Mutex
	var got []model.CartState
	unsubscribe := s.Subscribe(func(state model.CartState) {
		mu.Lock()
		got = append(got, state)
		mu.Unlock()
	})

	s.Add(ctx, sticker())
	unsubscribe()
	s.Add(ctx, sticker())

	mu.Lock()
	defer mu.Unlock()
	if len(got) != 2 {
		t.Fatalf("通知回数 = %d, want 2（登録時 + 1回の変更）", len(got))
	}
	if got[0].Count != 0 || got[1].Count != 1 {
		t.Errorf("通知内容 = %d, %d, want 0, 1", got[0].Count, got[1].Count)
	}
}

func TestStore_Subscribe_SnapshotIsCopy(t *testing.T) {
	s, _, _ := newTestStore(t)
	ctx := context.Background()
	s.Add(ctx, sticker())

	s.Subscribe(func(state model.CartState) {
		if len(state.Items) > 0 {
			state.Items[0].Quantity = 99
		}
	})

	if q := s.State().Items[0].Quantity; q != 1 {
		t.Errorf("購読者による変更が内部状態に影響した: quantity=%d", q)
	}
}

func TestStore_PanickingSubscriberDoesNotBlockOthers(t *testing.T) {
	s, _, buf := newTestStore(t)

	s.Subscribe(func(state model.CartState) {
		if state.Count > 0 {
			panic("boom")
		}
	})
	called := 0
	s.Subscribe(func(state model.CartState) { called++ })

	s.Add(context.Background(), sticker())

	if called != 2 {
		t.Errorf("後続の購読者の呼び出し回数 = %d, want 2", called)
	}
	if !strings.Contains(buf.String(), "panic") {
		t.Error("panicがログに記録されていない")
	}
}

func TestStore_Watch_ReloadsOnExternalWrite(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	kv := storage.NewMemoryStore()
	var buf bytes.Buffer
	tabA := NewStore(ctx, repository.NewKVCartRepo(kv), newTestLogger(&buf))
	tabB := NewStore(ctx, repository.NewKVCartRepo(kv), newTestLogger(&buf))

	updated := make(chan model.CartState, 4)
	tabA.Subscribe(func(state model.CartState) {
		if state.Count > 0 {
			updated <- state
		}
	})

	go tabA.Watch(ctx, kv)
	// Watch登録前の書き込みを避けるため少し待つ
	time.Sleep(20 * time.Millisecond)

	tabB.Add(ctx, hoodie("XL", "pink"))

	select {
	case state := <-updated:
		if len(state.Items) != 1 || state.Items[0].ID != "crown-hoodie-XL-pink" {
			t.Errorf("再読み込み後の状態 = %+v", state)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("他タブの変更が反映されなかった")
	}
}

// TestStore_Reload_NormalizesExternalData は外部から書き込まれた不正な数量の行が除外・統合されることを検証する。
func TestStore_Reload_NormalizesExternalData(t *testing.T) {
	ctx := context.Background()
	kv := storage.NewMemoryStore()
	raw := `{"items":[
		{"id":"crown-hoodie-M-black","productId":"crown-hoodie","name":"Crown Hoodie","price":"10","size":"M","color":"black","quantity":1},
		{"id":"crown-hoodie-M-black","productId":"crown-hoodie","name":"Crown Hoodie","price":"10","size":"M","color":"black","quantity":2},
		{"id":"lucy-sticker-default-default","productId":"lucy-sticker","name":"Sticker","price":"5","quantity":0},
		{"id":"neg","productId":"neg","name":"Neg","price":"5","quantity":-3}
	],"lastUpdated":"2026-01-01T00:00:00Z"}`
	kv.Set(ctx, repository.CartKey, []byte(raw))

	var buf bytes.Buffer
	s := NewStore(ctx, repository.NewKVCartRepo(kv), newTestLogger(&buf))

	state := s.State()
	if len(state.Items) != 1 || state.Count != 3 || !state.Total.Equal(decimal.NewFromInt(30)) {
		t.Errorf("読み込み後の状態 = %+v, want 1行 数量3 合計30", state)
	}
	assertTotals(t, state)
}

// TestStore_Reload_ResetNotifiesSubscribers は壊れたデータやキー削除で空にリセットした際に購読者へ通知されることを検証する。
func TestStore_Reload_ResetNotifiesSubscribers(t *testing.T) {
	tests := []struct {
		name    string
		corrupt func(ctx context.Context, kv *storage.MemoryStore)
	}{
		{"壊れたデータ", func(ctx context.Context, kv *storage.MemoryStore) {
			kv.Set(ctx, repository.CartKey, []byte("][garbage"))
		}},
		{"キー削除", func(ctx context.Context, kv *storage.MemoryStore) {
			kv.Delete(ctx, repository.CartKey)
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, kv, _ := newTestStore(t)
			ctx := context.Background()
			s.Add(ctx, hoodie("M", "black"))

			var got []model.CartState
			s.Subscribe(func(state model.CartState) { got = append(got, state) })

			tt.corrupt(ctx, kv)
			s.Reload(ctx)

			if state := s.State(); len(state.Items) != 0 || state.Count != 0 {
				t.Errorf("リセット後の状態 = %+v, want 空", state)
			}
			// 1回目はSubscribe時の即時通知
			if len(got) != 2 || got[1].Count != 0 {
				t.Errorf("通知 = %d回 %+v, want リセットの通知を含む2回", len(got), got)
			}
		})
	}
}
