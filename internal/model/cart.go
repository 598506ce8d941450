// Package model はドメインモデルを定義する。
package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// CartItem はカート内の1行（商品 + サイズ + カラーの組み合わせ）を表す。
// IDはバリアントIDで、同一バリアントはカート内に1行しか存在しない。
type CartItem struct {
	ID        string          `json:"id"`
	ProductID string          `json:"productId"`
	Name      string          `json:"name"`
	Price     decimal.Decimal `json:"price"`
	Size      string          `json:"size,omitempty"`
	Color     string          `json:"color,omitempty"`
	Image     string          `json:"image,omitempty"`
	Quantity  int             `json:"quantity"`
	AddedAt   time.Time       `json:"addedAt"`
}

// Subtotal は単価×数量を返す。
func (i CartItem) Subtotal() decimal.Decimal {
	return i.Price.Mul(decimal.NewFromInt(int64(i.Quantity)))
}

// CartState はカート全体の状態を表す。
// TotalとCountはItemsから常に導出可能で、変更のたびに再計算される。
type CartState struct {
	Items       []CartItem      `json:"items"`
	Total       decimal.Decimal `json:"total"`
	Count       int             `json:"count"`
	LastUpdated time.Time       `json:"lastUpdated"`
}

// Clone はItemsスライスを複製したスナップショットを返す。
func (s CartState) Clone() CartState {
	items := make([]CartItem, len(s.Items))
	copy(items, s.Items)
	s.Items = items
	return s
}

// ProductInput はカート追加時に受け取る商品情報。
type ProductInput struct {
	ID        string          `json:"id"`
	ProductID string          `json:"productId"`
	Name      string          `json:"name" validate:"required_without_all=ID ProductID"`
	Price     decimal.Decimal `json:"price"`
	Size      string          `json:"size"`
	Color     string          `json:"color"`
	Image     string          `json:"image"`
}

// CartSummary はカートの概要を表す。
type CartSummary struct {
	ItemCount   int             `json:"itemCount"`
	TotalPrice  decimal.Decimal `json:"totalPrice"`
	ItemTypes   int             `json:"itemTypes"`
	IsEmpty     bool            `json:"isEmpty"`
	LastUpdated time.Time       `json:"lastUpdated"`
}

// CartValidation はチェックアウト前のカート検証結果。
type CartValidation struct {
	IsValid bool     `json:"isValid"`
	Issues  []string `json:"issues"`
}

// CheckoutItem はチェックアウトデータの明細行。
type CheckoutItem struct {
	ProductID string          `json:"productId"`
	Name      string          `json:"name"`
	Price     decimal.Decimal `json:"price"`
	Quantity  int             `json:"quantity"`
	Size      string          `json:"size,omitempty"`
	Color     string          `json:"color,omitempty"`
	Subtotal  decimal.Decimal `json:"subtotal"`
}

// CheckoutSummary はチェックアウト金額の内訳。
type CheckoutSummary struct {
	Subtotal decimal.Decimal `json:"subtotal"`
	Tax      decimal.Decimal `json:"tax"`
	Shipping decimal.Decimal `json:"shipping"`
	Total    decimal.Decimal `json:"total"`
}

// CheckoutMetadata はチェックアウトデータの付帯情報。
type CheckoutMetadata struct {
	ItemCount int       `json:"itemCount"`
	CartID    string    `json:"cartId"`
	Timestamp time.Time `json:"timestamp"`
}

// CheckoutData はチェックアウトに渡すカートデータ。
type CheckoutData struct {
	Items    []CheckoutItem   `json:"items"`
	Summary  CheckoutSummary  `json:"summary"`
	Metadata CheckoutMetadata `json:"metadata"`
}

// CartExportVersion はエクスポート形式のバージョン。
const CartExportVersion = "1.0"

// CartExport はカートのエクスポート形式。
type CartExport struct {
	Version    string     `json:"version"`
	ExportedAt time.Time  `json:"exportedAt"`
	Cart       *CartState `json:"cart"`
}

// DiscountResult は割引コード適用結果。
type DiscountResult struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}
