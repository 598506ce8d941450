package cart

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/hitoshi/storefront/internal/model"
)

var (
	// taxRate は税率（10%）。
	taxRate = decimal.RequireFromString("0.10")
	// freeShippingThreshold はこの金額以上で送料無料になる閾値。
	freeShippingThreshold = decimal.NewFromInt(100)
	// flatShipping は閾値未満の場合の送料。
	flatShipping = decimal.NewFromInt(15)
)

// ItemCount は指定商品IDの数量を返す。最初に一致した明細行の数量を採用する。
func (s *Store) ItemCount(productID string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, item := range s.state.Items {
		if item.ProductID == productID {
			return item.Quantity
		}
	}
	return 0
}

// HasProduct は指定商品IDがカートに含まれるかを返す。
func (s *Store) HasProduct(productID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, item := range s.state.Items {
		if item.ProductID == productID {
			return true
		}
	}
	return false
}

// Summary はカートの概要を返す。
func (s *Store) Summary() model.CartSummary {
	s.mu.Lock()
	defer s.mu.Unlock()
	return model.CartSummary{
		ItemCount:   s.state.Count,
		TotalPrice:  s.state.Total,
		ItemTypes:   len(s.state.Items),
		IsEmpty:     len(s.state.Items) == 0,
		LastUpdated: s.state.LastUpdated,
	}
}

// ItemsByCategory は明細行を商品IDから推定したカテゴリごとに分類する。
func (s *Store) ItemsByCategory() map[string][]model.CartItem {
	s.mu.Lock()
	defer s.mu.Unlock()

	categories := make(map[string][]model.CartItem)
	for _, item := range s.state.Items {
		c := categoryOf(item.ProductID)
		categories[c] = append(categories[c], item)
	}
	return categories
}

func categoryOf(productID string) string {
	switch {
	case strings.Contains(productID, "hoodie") || strings.Contains(productID, "crew"):
		return "hoodies"
	case strings.Contains(productID, "tee") || strings.Contains(productID, "shirt"):
		return "tees"
	case strings.Contains(productID, "beanie") || strings.Contains(productID, "hat"):
		return "accessories"
	case strings.Contains(productID, "sticker"):
		return "stickers"
	default:
		return "other"
	}
}

// Validate はチェックアウト前にカートを検証する。
func (s *Store) Validate() model.CartValidation {
	s.mu.Lock()
	defer s.mu.Unlock()
	return validate(s.state)
}

func validate(state model.CartState) model.CartValidation {
	issues := []string{}
	if len(state.Items) == 0 {
		issues = append(issues, "Cart is empty")
	}
	for _, item := range state.Items {
		if item.Name == "" || item.Price.IsZero() || item.Quantity == 0 {
			issues = append(issues, fmt.Sprintf("Invalid item: %s", item.ID))
		}
		if item.Quantity <= 0 {
			issues = append(issues, fmt.Sprintf("Invalid quantity for: %s", item.Name))
		}
		if !item.Price.IsPositive() {
			issues = append(issues, fmt.Sprintf("Invalid price for: %s", item.Name))
		}
	}
	return model.CartValidation{IsValid: len(issues) == 0, Issues: issues}
}

// Tax は小計の10%を整数に丸めた税額を返す。
func Tax(subtotal decimal.Decimal) decimal.Decimal {
	return subtotal.Mul(taxRate).Round(0)
}

// Shipping は小計が100以上なら0、それ未満なら15を返す。
func Shipping(subtotal decimal.Decimal) decimal.Decimal {
	if subtotal.GreaterThanOrEqual(freeShippingThreshold) {
		return decimal.Zero
	}
	return flatShipping
}

// PrepareCheckout はチェックアウト用のデータを生成する。
// 検証に失敗した場合はCART_INVALIDエラーを返す。
func (s *Store) PrepareCheckout() (*model.CheckoutData, error) {
	s.mu.Lock()
	state := s.state.Clone()
	s.mu.Unlock()

	v := validate(state)
	if !v.IsValid {
		return nil, model.NewCartInvalidError(v.Issues)
	}

	items := make([]model.CheckoutItem, 0, len(state.Items))
	for _, item := range state.Items {
		items = append(items, model.CheckoutItem{
			ProductID: item.ProductID,
			Name:      item.Name,
			Price:     item.Price,
			Quantity:  item.Quantity,
			Size:      item.Size,
			Color:     item.Color,
			Subtotal:  item.Subtotal(),
		})
	}

	tax := Tax(state.Total)
	shipping := Shipping(state.Total)

	return &model.CheckoutData{
		Items: items,
		Summary: model.CheckoutSummary{
			Subtotal: state.Total,
			Tax:      tax,
			Shipping: shipping,
			Total:    state.Total.Add(tax).Add(shipping),
		},
		Metadata: model.CheckoutMetadata{
			ItemCount: state.Count,
			CartID:    "cart_" + uuid.NewString(),
			Timestamp: s.now().UTC(),
		},
	}, nil
}

// ApplyDiscount は割引コードを受け付ける。割引機能は未提供のため常に失敗を返す。
func (s *Store) ApplyDiscount(code string) model.DiscountResult {
	s.logger.Info("割引コードを受け付けました", slog.String("code", code))
	return model.DiscountResult{
		Success: false,
		Message: "Discount system not implemented yet",
	}
}

// Export はカートをバージョン付きの形式でエクスポートする。
func (s *Store) Export() model.CartExport {
	state := s.State()
	return model.CartExport{
		Version:    model.CartExportVersion,
		ExportedAt: s.now().UTC(),
		Cart:       &state,
	}
}

// Import はエクスポート形式のカートを取り込み、合計を再計算して保存する。
// 明細行のIDはバリアントから再導出し、同一バリアントの行は数量を合算する。
// バージョンが1.0でない、またはカートが含まれない場合はエラーを返す。
func (s *Store) Import(ctx context.Context, data model.CartExport) (model.CartState, error) {
	if data.Version != model.CartExportVersion || data.Cart == nil {
		return s.State(), model.NewInvalidCartImportError()
	}

	items := normalizeItems(data.Cart.Items)

	s.mu.Lock()
	s.state = model.CartState{Items: items}
	snapshot := s.commitLocked(ctx)
	s.mu.Unlock()

	s.recorder.RecordCartMutation("import")
	s.notify(snapshot)
	return snapshot, nil
}
