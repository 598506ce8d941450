package cart

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/hitoshi/storefront/internal/model"
)

func TestStore_ItemCountAndHasProduct(t *testing.T) {
	s, _, _ := newTestStore(t)
	ctx := context.Background()
	s.Add(ctx, hoodie("M", "black"))
	s.Add(ctx, hoodie("M", "black"))
	s.Add(ctx, hoodie("L", "black"))

	// 最初に一致した明細行の数量を返す
	if got := s.ItemCount("crown-hoodie"); got != 2 {
		t.Errorf("ItemCount = %d, want 2", got)
	}
	if got := s.ItemCount("missing"); got != 0 {
		t.Errorf("ItemCount(missing) = %d, want 0", got)
	}
	if !s.HasProduct("crown-hoodie") {
		t.Error("HasProduct(crown-hoodie) = false, want true")
	}
	if s.HasProduct("missing") {
		t.Error("HasProduct(missing) = true, want false")
	}
}

func TestStore_Summary(t *testing.T) {
	s, _, _ := newTestStore(t)
	if sum := s.Summary(); !sum.IsEmpty || sum.ItemCount != 0 || sum.ItemTypes != 0 {
		t.Errorf("空カートのSummary = %+v", sum)
	}

	ctx := context.Background()
	s.Add(ctx, hoodie("M", "black"))
	s.Add(ctx, sticker())
	s.SetQuantity(ctx, "lucy-sticker-default-default", 3)

	sum := s.Summary()
	if sum.IsEmpty || sum.ItemCount != 4 || sum.ItemTypes != 2 {
		t.Errorf("Summary = %+v", sum)
	}
	if !sum.TotalPrice.Equal(decimal.RequireFromString("103.45")) {
		t.Errorf("TotalPrice = %s, want 103.45", sum.TotalPrice)
	}
}

func TestCategoryOf(t *testing.T) {
	tests := map[string]string{
		"crown-hoodie":   "hoodies",
		"dynasty-crew":   "hoodies",
		"lucy-tee":       "tees",
		"queen-shirt":    "tees",
		"gold-beanie":    "accessories",
		"bucket-hat":     "accessories",
		"holo-sticker":   "stickers",
		"mystery-poster": "other",
		"":               "other",
	}
	for id, want := range tests {
		if got := categoryOf(id); got != want {
			t.Errorf("categoryOf(%q) = %q, want %q", id, got, want)
		}
	}
}

func TestStore_ItemsByCategory(t *testing.T) {
	s, _, _ := newTestStore(t)
	ctx := context.Background()
	s.Add(ctx, hoodie("M", "black"))
	s.Add(ctx, hoodie("L", "black"))
	s.Add(ctx, sticker())

	got := s.ItemsByCategory()
	if len(got["hoodies"]) != 2 || len(got["stickers"]) != 1 {
		t.Errorf("ItemsByCategory = %+v", got)
	}
	if _, ok := got["tees"]; ok {
		t.Error("空のカテゴリは含めてはならない")
	}
}

func TestStore_Validate(t *testing.T) {
	s, _, _ := newTestStore(t)
	v := s.Validate()
	if v.IsValid || len(v.Issues) != 1 || v.Issues[0] != "Cart is empty" {
		t.Errorf("空カートのValidate = %+v", v)
	}

	s.Add(context.Background(), sticker())
	if v := s.Validate(); !v.IsValid || len(v.Issues) != 0 {
		t.Errorf("正常なカートのValidate = %+v", v)
	}
}

func TestValidate_InvalidItems(t *testing.T) {
	state := model.CartState{Items: []model.CartItem{
		{ID: "free-default-default", Name: "Freebie", Price: decimal.Zero, Quantity: 1},
		{ID: "neg-default-default", Name: "Negative", Price: decimal.NewFromInt(-5), Quantity: 1},
	}}

	v := validate(state)
	if v.IsValid {
		t.Fatal("不正な明細行を含むカートが有効と判定された")
	}
	want := []string{
		"Invalid item: free-default-default",
		"Invalid price for: Freebie",
		"Invalid price for: Negative",
	}
	if strings.Join(v.Issues, "|") != strings.Join(want, "|") {
		t.Errorf("Issues = %v, want %v", v.Issues, want)
	}
}

func TestTaxAndShipping(t *testing.T) {
	tests := []struct {
		subtotal string
		tax      string
		shipping string
	}{
		{"0", "0", "15"},
		{"44.95", "4", "15"},
		{"99.99", "10", "15"},
		{"100", "10", "0"},
		{"185", "19", "0"},
	}
	for _, tt := range tests {
		sub := decimal.RequireFromString(tt.subtotal)
		if got := Tax(sub); !got.Equal(decimal.RequireFromString(tt.tax)) {
			t.Errorf("Tax(%s) = %s, want %s", tt.subtotal, got, tt.tax)
		}
		if got := Shipping(sub); !got.Equal(decimal.RequireFromString(tt.shipping)) {
			t.Errorf("Shipping(%s) = %s, want %s", tt.subtotal, got, tt.shipping)
		}
	}
}

func TestStore_PrepareCheckout(t *testing.T) {
	s, _, _ := newTestStore(t)
	ctx := context.Background()
	s.Add(ctx, hoodie("M", "black"))
	s.Add(ctx, hoodie("M", "black"))

	data, err := s.PrepareCheckout()
	if err != nil {
		t.Fatalf("PrepareCheckout がエラーを返した: %v", err)
	}

	if len(data.Items) != 1 || data.Items[0].Quantity != 2 {
		t.Fatalf("Items = %+v", data.Items)
	}
	if !data.Items[0].Subtotal.Equal(decimal.RequireFromString("179.90")) {
		t.Errorf("明細の小計 = %s, want 179.90", data.Items[0].Subtotal)
	}
	sum := data.Summary
	if !sum.Tax.Equal(decimal.NewFromInt(18)) || !sum.Shipping.IsZero() {
		t.Errorf("税額・送料 = %s, %s, want 18, 0", sum.Tax, sum.Shipping)
	}
	if !sum.Total.Equal(sum.Subtotal.Add(sum.Tax).Add(sum.Shipping)) {
		t.Errorf("Total = %s, want subtotal+tax+shipping", sum.Total)
	}
	if !strings.HasPrefix(data.Metadata.CartID, "cart_") || data.Metadata.ItemCount != 2 {
		t.Errorf("Metadata = %+v", data.Metadata)
	}
}

func TestStore_PrepareCheckout_EmptyCart(t *testing.T) {
	s, _, _ := newTestStore(t)

	data, err := s.PrepareCheckout()
	if data != nil {
		t.Error("検証失敗時はnilを返すべき")
	}
	var apiErr *model.APIError
	if !errors.As(err, &apiErr) || apiErr.Code != model.ErrCodeCartInvalid {
		t.Errorf("err = %v, want CART_INVALID", err)
	}
}

func TestStore_ApplyDiscount_AlwaysFails(t *testing.T) {
	s, _, buf := newTestStore(t)

	res := s.ApplyDiscount("QUEEN10")
	if res.Success || res.Message != "Discount system not implemented yet" {
		t.Errorf("ApplyDiscount = %+v", res)
	}
	if !strings.Contains(buf.String(), "QUEEN10") {
		t.Error("割引コードがログに記録されていない")
	}
}

func TestStore_ExportImport(t *testing.T) {
	src, _, _ := newTestStore(t)
	ctx := context.Background()
	src.Add(ctx, hoodie("M", "black"))
	src.Add(ctx, sticker())
	src.SetQuantity(ctx, "lucy-sticker-default-default", 4)

	exported := src.Export()
	if exported.Version != "1.0" || exported.Cart == nil {
		t.Fatalf("Export = %+v", exported)
	}

	dst, _, _ := newTestStore(t)
	state, err := dst.Import(ctx, exported)
	if err != nil {
		t.Fatalf("Import がエラーを返した: %v", err)
	}
	if state.Count != 5 || len(state.Items) != 2 {
		t.Errorf("Import後の状態 = %+v", state)
	}
	assertTotals(t, state)
}

func TestStore_Import_RecalculatesAndDropsEmptyLines(t *testing.T) {
	s, _, _ := newTestStore(t)

	// 合計値が改ざんされたデータでも再計算される
	data := model.CartExport{
		Version:    "1.0",
		ExportedAt: time.Now(),
		Cart: &model.CartState{
			Items: []model.CartItem{
				{ID: "a-default-default", ProductID: "a", Name: "A", Price: decimal.NewFromInt(10), Quantity: 2},
				{ID: "b-default-default", ProductID: "b", Name: "B", Price: decimal.NewFromInt(10), Quantity: 0},
			},
			Total: decimal.NewFromInt(9999),
			Count: 42,
		},
	}

	state, err := s.Import(context.Background(), data)
	if err != nil {
		t.Fatalf("Import がエラーを返した: %v", err)
	}
	if len(state.Items) != 1 || state.Count != 2 || !state.Total.Equal(decimal.NewFromInt(20)) {
		t.Errorf("Import後の状態 = %+v", state)
	}
}

func TestStore_Import_RejectsBadInput(t *testing.T) {
	tests := []struct {
		name string
		data model.CartExport
	}{
		{"バージョン違い", model.CartExport{Version: "2.0", Cart: &model.CartState{}}},
		{"カートなし", model.CartExport{Version: "1.0"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, _, _ := newTestStore(t)
			s.Add(context.Background(), sticker())

			state, err := s.Import(context.Background(), tt.data)
			var apiErr *model.APIError
			if !errors.As(err, &apiErr) || apiErr.Code != model.ErrCodeInvalidCartImport {
				t.Errorf("err = %v, want INVALID_CART_IMPORT", err)
			}
			if state.Count != 1 {
				t.Error("インポート失敗時に状態が変わってはならない")
			}
		})
	}
}

// TestStore_Import_MergesDuplicateVariants は同一バリアントの行が1行に統合され、IDが再導出されることを検証する。
func TestStore_Import_MergesDuplicateVariants(t *testing.T) {
	s, _, _ := newTestStore(t)
	ctx := context.Background()
	price := decimal.RequireFromString("89.95")

	data := model.CartExport{
		Version: "1.0",
		Cart: &model.CartState{
			Items: []model.CartItem{
				{ID: "crown-hoodie-M-black", ProductID: "crown-hoodie", Name: "Crown Hoodie", Price: price, Size: "M", Color: "black", Quantity: 1},
				{ID: "crown-hoodie-M-black", ProductID: "crown-hoodie", Name: "Crown Hoodie", Price: price, Size: "M", Color: "black", Quantity: 2},
				// IDとバリアントが食い違う行
				{ID: "tampered", ProductID: "crown-hoodie", Name: "Crown Hoodie", Price: price, Size: "M", Color: "black", Quantity: 1},
			},
		},
	}

	state, err := s.Import(ctx, data)
	if err != nil {
		t.Fatalf("Import がエラーを返した: %v", err)
	}
	if len(state.Items) != 1 || state.Items[0].ID != "crown-hoodie-M-black" || state.Count != 4 {
		t.Fatalf("Import後の状態 = %+v, want 1行 数量4", state)
	}

	// 統合後は1回の削除でバリアントがカートから消える
	state = s.Remove(ctx, "crown-hoodie-M-black")
	if len(state.Items) != 0 || state.Count != 0 {
		t.Errorf("Remove後の状態 = %+v, want 空", state)
	}
}

func TestNormalizeItems(t *testing.T) {
	items := normalizeItems([]model.CartItem{
		{ProductID: "lucy-sticker", Name: "Sticker", Quantity: -1},
		{Name: "Queen Tee", Size: "S", Quantity: 1},
		{ID: "legacy-id", Quantity: 2},
		{Quantity: 3},
	})

	wantIDs := []string{"queen-tee-S-default", "legacy-id"}
	if len(items) != len(wantIDs) {
		t.Fatalf("items = %+v, want %v", items, wantIDs)
	}
	for i, id := range wantIDs {
		if items[i].ID != id {
			t.Errorf("items[%d].ID = %q, want %q", i, items[i].ID, id)
		}
	}
}
