package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/storefront/internal/middleware"
	"github.com/hitoshi/storefront/internal/model"
	"github.com/hitoshi/storefront/internal/shopify"
)

// CatalogInterface は商品ハンドラーが必要とするカタログのインターフェース。
type CatalogInterface interface {
	AllProducts(ctx context.Context, opts shopify.ListOptions) ([]model.Product, error)
	ProductByID(ctx context.Context, id string, forceRefresh bool) (*model.Product, error)
	SearchProducts(ctx context.Context, query string, limit int) ([]model.Product, error)
	ProductsByCollection(ctx context.Context, collectionID string) ([]model.Product, error)
}

// SyncStatusProvider は商品同期の状態を返すインターフェース。
type SyncStatusProvider interface {
	Status() model.SyncStatus
	HealthCheck() model.CatalogHealth
}

// ProductHandler は商品カタログのHTTPハンドラー。
type ProductHandler struct {
	catalog CatalogInterface
	syncer  SyncStatusProvider
}

// NewProductHandler はProductHandlerを生成する。
func NewProductHandler(catalog CatalogInterface, syncer SyncStatusProvider) *ProductHandler {
	return &ProductHandler{catalog: catalog, syncer: syncer}
}

// productsResponse は商品一覧のAPIレスポンス。
type productsResponse struct {
	Products []model.Product `json:"products"`
	Count    int             `json:"count"`
}

// syncStatusResponse は同期状態のAPIレスポンス。
type syncStatusResponse struct {
	Sync   model.SyncStatus    `json:"sync"`
	Health model.CatalogHealth `json:"health"`
}

// ListProducts は商品一覧を返す。
// GET /api/products?collection_id=&product_type=&limit=&refresh=true
func (h *ProductHandler) ListProducts(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	opts := shopify.ListOptions{
		ForceRefresh: q.Get("refresh") == "true",
		CollectionID: q.Get("collection_id"),
		ProductType:  q.Get("product_type"),
		Limit:        parseLimit(q.Get("limit")),
	}

	products, err := h.catalog.AllProducts(r.Context(), opts)
	if err != nil {
		handleCatalogError(w, err, "")
		return
	}
	writeJSON(w, http.StatusOK, productsResponse{Products: products, Count: len(products)})
}

// GetProduct は商品を1件返す。
// GET /api/products/{id}
func (h *ProductHandler) GetProduct(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	product, err := h.catalog.ProductByID(r.Context(), id, r.URL.Query().Get("refresh") == "true")
	if err != nil {
		handleCatalogError(w, err, id)
		return
	}
	writeJSON(w, http.StatusOK, product)
}

// SearchProducts はタイトルで商品を検索する。
// GET /api/products/search?q=&limit=
func (h *ProductHandler) SearchProducts(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	products, err := h.catalog.SearchProducts(r.Context(), q.Get("q"), parseLimit(q.Get("limit")))
	if err != nil {
		handleCatalogError(w, err, "")
		return
	}
	writeJSON(w, http.StatusOK, productsResponse{Products: products, Count: len(products)})
}

// CollectionProducts はコレクションに含まれる商品を返す。
// GET /api/collections/{id}/products
func (h *ProductHandler) CollectionProducts(w http.ResponseWriter, r *http.Request) {
	products, err := h.catalog.ProductsByCollection(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		handleCatalogError(w, err, "")
		return
	}
	writeJSON(w, http.StatusOK, productsResponse{Products: products, Count: len(products)})
}

// SyncStatus は商品同期の状態と稼働状況を返す。
// GET /api/products/sync-status
func (h *ProductHandler) SyncStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, syncStatusResponse{
		Sync:   h.syncer.Status(),
		Health: h.syncer.HealthCheck(),
	})
}

// handleCatalogError はカタログのエラーを変換する。
// 存在しない商品は404、それ以外の取得失敗は503として返す。
func handleCatalogError(w http.ResponseWriter, err error, productID string) {
	if errors.Is(err, shopify.ErrNotFound) {
		middleware.WriteErrorResponse(w, http.StatusNotFound, model.NewProductNotFoundError(productID))
		return
	}
	var apiErr *model.APIError
	if errors.As(err, &apiErr) {
		handleServiceError(w, err)
		return
	}
	slog.Warn("catalog request failed", slog.String("error", err.Error()))
	middleware.WriteErrorResponse(w, http.StatusServiceUnavailable, model.NewVendorUnavailableError("shopify"))
}

// parseLimit は件数指定を解析する。不正な値や範囲外は0（デフォルト）として扱う。
func parseLimit(s string) int {
	n, err := strconv.Atoi(s)
	if err != nil || n <= 0 || n > 250 {
		return 0
	}
	return n
}
