package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// Product はストアフロント表示用に変換済みの商品。
type Product struct {
	ID              string           `json:"id"`
	Handle          string           `json:"handle"`
	Name            string           `json:"name"`
	Description     string           `json:"description"`
	DescriptionHTML string           `json:"descriptionHtml"`
	Price           decimal.Decimal  `json:"price"`
	CompareAtPrice  decimal.Decimal  `json:"compareAtPrice"`
	Currency        string           `json:"currency"`
	Images          []ProductImage   `json:"images"`
	Variants        []ProductVariant `json:"variants"`
	Tags            []string         `json:"tags"`
	Category        string           `json:"category"`
	Vendor          string           `json:"vendor"`
	Available       bool             `json:"available"`
	Inventory       int              `json:"inventory"`
	SKU             string           `json:"sku"`
	Weight          float64          `json:"weight"`
	CreatedAt       *time.Time       `json:"createdAt"`
	UpdatedAt       *time.Time       `json:"updatedAt"`
	SEO             ProductSEO       `json:"seo"`
	Badge           string           `json:"badge,omitempty"`
	IsNew           bool             `json:"isNew"`
	IsLimited       bool             `json:"isLimited"`
	StoreCategory   string           `json:"storeCategory"`
}

// ProductImage は商品画像。
type ProductImage struct {
	Src    string `json:"src"`
	Alt    string `json:"alt"`
	Width  int    `json:"width"`
	Height int    `json:"height"`
}

// ProductVariant は商品バリアント。
type ProductVariant struct {
	ID             string          `json:"id"`
	Title          string          `json:"title"`
	Price          decimal.Decimal `json:"price"`
	CompareAtPrice decimal.Decimal `json:"compareAtPrice"`
	Available      bool            `json:"available"`
	Inventory      int             `json:"inventory"`
	SKU            string          `json:"sku"`
	Weight         float64         `json:"weight"`
	Options        VariantOptions  `json:"options"`
}

// VariantOptions はバリアントのオプション値（option1〜3）。
type VariantOptions struct {
	Size     string `json:"size"`
	Color    string `json:"color"`
	Material string `json:"material"`
}

// ProductSEO はSEO用のタイトルと説明文。
type ProductSEO struct {
	Title       string `json:"title"`
	Description string `json:"description"`
}

// SyncError は商品同期で発生したエラーの記録。
type SyncError struct {
	Message   string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
}

// SyncStatus は商品同期ジョブの状態。
type SyncStatus struct {
	LastSync       *time.Time  `json:"lastSync"`
	IsRunning      bool        `json:"isRunning"`
	Errors         []SyncError `json:"errors"`
	TotalProducts  int         `json:"totalProducts"`
	SyncedProducts int         `json:"syncedProducts"`
	CacheSize      int         `json:"cacheSize"`
	NextSync       *time.Time  `json:"nextSync"`
}

// CatalogHealth は商品APIの稼働状況。
type CatalogHealth struct {
	APIConnected    bool       `json:"apiConnected"`
	CacheActive     bool       `json:"cacheActive"`
	AutoSyncRunning bool       `json:"autoSyncRunning"`
	LastSync        *time.Time `json:"lastSync"`
	ErrorCount      int        `json:"errorCount"`
	Status          string     `json:"status"`
}

// InventoryReport は在庫チェックの結果。
type InventoryReport struct {
	Total      int       `json:"total"`
	OutOfStock []Product `json:"outOfStock"`
}
