package shopify

import (
	"context"
	"errors"
	"log/slog"
	"strconv"
	"time"

	"github.com/hitoshi/storefront/internal/cache"
	"github.com/hitoshi/storefront/internal/model"
	"github.com/hitoshi/storefront/internal/security"
)

// DefaultCacheTTL は商品キャッシュのデフォルト有効期間。
const DefaultCacheTTL = time.Hour

const allProductsKey = "all_products"

// CacheRecorder はキャッシュのヒット・ミスを記録するメトリクスのインターフェース。
type CacheRecorder interface {
	RecordCacheResult(hit bool)
}

type nopCacheRecorder struct{}

func (nopCacheRecorder) RecordCacheResult(bool) {}

// Catalog はストアフロント向けの商品カタログ。
// APIから取得した商品を変換してTTLキャッシュに保持し、
// API呼び出しが失敗した場合は有効期限内のキャッシュを返す。
type Catalog struct {
	client    *Client
	transform *transformer
	logger    *slog.Logger
	lists     *cache.TTL[[]model.Product]
	items     *cache.TTL[model.Product]
	recorder  CacheRecorder
}

// NewCatalog はCatalogの新しいインスタンスを生成する。cacheTTLが0以下の場合は1時間。
func NewCatalog(client *Client, html security.ProductHTML, logger *slog.Logger, cacheTTL time.Duration) *Catalog {
	if cacheTTL <= 0 {
		cacheTTL = DefaultCacheTTL
	}
	return &Catalog{
		client:    client,
		transform: newTransformer(html),
		logger:    logger,
		lists:     cache.NewTTL[[]model.Product](cacheTTL),
		items:     cache.NewTTL[model.Product](cacheTTL),
		recorder:  nopCacheRecorder{},
	}
}

// SetRecorder はメトリクスの記録先を設定する。
func (c *Catalog) SetRecorder(r CacheRecorder) {
	if r != nil {
		c.recorder = r
	}
}

// Configured はAPIの認証情報が設定済みかを返す。
func (c *Catalog) Configured() bool {
	return c.client.Configured()
}

// AllProducts は商品一覧を返す。ForceRefreshでない場合は有効なキャッシュを優先する。
func (c *Catalog) AllProducts(ctx context.Context, opts ListOptions) ([]model.Product, error) {
	key := listKey(opts)

	if !opts.ForceRefresh {
		if products, ok := c.cachedList(key); ok {
			return products, nil
		}
	}

	raw, err := c.client.Products(ctx, opts)
	if err != nil {
		if products, ok := c.lists.Get(key); ok {
			c.logger.Warn("商品一覧の取得に失敗したためキャッシュを返します",
				slog.String("cache_key", key),
				slog.String("error", err.Error()),
			)
			return products, nil
		}
		return nil, err
	}

	products := c.transform.products(raw)
	c.lists.Set(key, products)
	return products, nil
}

// ProductByID は商品を1件返す。キャッシュキーは "product_{id}"。
func (c *Catalog) ProductByID(ctx context.Context, id string, forceRefresh bool) (*model.Product, error) {
	key := "product_" + id

	if !forceRefresh {
		p, ok := c.items.Get(key)
		c.recorder.RecordCacheResult(ok)
		if ok {
			return &p, nil
		}
	}

	raw, err := c.client.Product(ctx, id)
	if err != nil {
		// 存在しない商品はキャッシュで補わない
		if !errors.Is(err, ErrNotFound) {
			if p, ok := c.items.Get(key); ok {
				c.logger.Warn("商品の取得に失敗したためキャッシュを返します",
					slog.String("product_id", id),
					slog.String("error", err.Error()),
				)
				return &p, nil
			}
		}
		return nil, err
	}

	p := c.transform.product(raw)
	c.items.Set(key, p)
	return &p, nil
}

// ProductsByCollection はコレクションに含まれる商品を返す。キャッシュは使用しない。
func (c *Catalog) ProductsByCollection(ctx context.Context, collectionID string) ([]model.Product, error) {
	raw, err := c.client.CollectionProducts(ctx, collectionID)
	if err != nil {
		return nil, err
	}
	return c.transform.products(raw), nil
}

// SearchProducts はタイトルで商品を検索する。
func (c *Catalog) SearchProducts(ctx context.Context, query string, limit int) ([]model.Product, error) {
	raw, err := c.client.Search(ctx, query, limit)
	if err != nil {
		return nil, err
	}
	return c.transform.products(raw), nil
}

// TestConnection はAPIへの接続を確認する。
func (c *Catalog) TestConnection(ctx context.Context) bool {
	if err := c.client.Shop(ctx); err != nil {
		c.logger.Warn("Shopifyへの接続確認に失敗しました", slog.String("error", err.Error()))
		return false
	}
	return true
}

// CheckInventory は最新の商品一覧を取得し、在庫切れの商品を返す。
func (c *Catalog) CheckInventory(ctx context.Context) (*model.InventoryReport, error) {
	products, err := c.AllProducts(ctx, ListOptions{ForceRefresh: true})
	if err != nil {
		return nil, err
	}

	report := &model.InventoryReport{Total: len(products), OutOfStock: []model.Product{}}
	for _, p := range products {
		if !p.Available || p.Inventory <= 0 {
			report.OutOfStock = append(report.OutOfStock, p)
		}
	}
	if len(report.OutOfStock) > 0 {
		names := make([]string, 0, len(report.OutOfStock))
		for _, p := range report.OutOfStock {
			names = append(names, p.Name)
		}
		c.logger.Warn("在庫切れの商品があります",
			slog.Int("out_of_stock", len(report.OutOfStock)),
			slog.Any("products", names),
		)
	}
	return report, nil
}

// ClearCache はキャッシュを全て削除する。
func (c *Catalog) ClearCache() {
	c.lists.Clear()
	c.items.Clear()
	c.logger.Info("商品キャッシュを削除しました")
}

// CacheSize はキャッシュのエントリ数を返す。
func (c *Catalog) CacheSize() int {
	return c.lists.Len() + c.items.Len()
}

func (c *Catalog) cachedList(key string) ([]model.Product, bool) {
	products, ok := c.lists.Get(key)
	c.recorder.RecordCacheResult(ok)
	return products, ok
}

// listKey は絞り込み条件ごとのキャッシュキーを返す。条件なしは "all_products"。
func listKey(opts ListOptions) string {
	key := allProductsKey
	if opts.CollectionID != "" {
		key += ":collection=" + opts.CollectionID
	}
	if opts.ProductType != "" {
		key += ":type=" + opts.ProductType
	}
	if opts.Limit > 0 {
		key += ":limit=" + strconv.Itoa(opts.Limit)
	}
	return key
}
