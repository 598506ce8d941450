package handler

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/storefront/internal/cart"
	"github.com/hitoshi/storefront/internal/middleware"
	"github.com/hitoshi/storefront/internal/model"
)

// CartProvider はセッションIDに対応するカートを返すインターフェース。
type CartProvider interface {
	Get(ctx context.Context, sessionID string) *cart.Store
}

// CartHandler はカートのHTTPハンドラー。
// すべての操作はカートセッションミドルウェアを通過した後に実行される。
type CartHandler struct {
	carts CartProvider
}

// NewCartHandler はCartHandlerを生成する。
func NewCartHandler(carts CartProvider) *CartHandler {
	return &CartHandler{carts: carts}
}

// updateQuantityRequest は数量変更リクエストのボディ。
type updateQuantityRequest struct {
	Quantity *int `json:"quantity"`
}

// discountRequest は割引コード適用リクエストのボディ。
type discountRequest struct {
	Code string `json:"code"`
}

// categoriesResponse はカテゴリ別の明細のAPIレスポンス。
type categoriesResponse struct {
	Categories map[string][]model.CartItem `json:"categories"`
}

// validatedCartResponse はカート状態と検証結果を合わせたAPIレスポンス。
type validatedCartResponse struct {
	model.CartState
	Validation model.CartValidation `json:"validation"`
}

// store はリクエストのセッションに対応するカートを返す。セッションがない場合は401を書き込む。
func (h *CartHandler) store(w http.ResponseWriter, r *http.Request) (*cart.Store, bool) {
	sessionID, err := middleware.SessionIDFromContext(r.Context())
	if err != nil {
		middleware.WriteErrorResponse(w, http.StatusUnauthorized, model.NewSessionRequiredError())
		return nil, false
	}
	return h.carts.Get(r.Context(), sessionID), true
}

// GetCart はカートの状態と検証結果を返す。
// GET /api/cart
func (h *CartHandler) GetCart(w http.ResponseWriter, r *http.Request) {
	s, ok := h.store(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, validatedCartResponse{CartState: s.State(), Validation: s.Validate()})
}

// AddItem は商品をカートに追加する。
// POST /api/cart/items
func (h *CartHandler) AddItem(w http.ResponseWriter, r *http.Request) {
	s, ok := h.store(w, r)
	if !ok {
		return
	}

	var req model.ProductInput
	if !decodeJSON(w, r, &req) {
		return
	}

	state, err := s.Add(r.Context(), req)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, state)
}

// UpdateItem は明細行の数量を変更する。0以下の数量は削除として扱う。
// PUT /api/cart/items/{id}
func (h *CartHandler) UpdateItem(w http.ResponseWriter, r *http.Request) {
	s, ok := h.store(w, r)
	if !ok {
		return
	}

	var req updateQuantityRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.Quantity == nil {
		middleware.WriteErrorResponse(w, http.StatusBadRequest, errInvalidRequest)
		return
	}

	itemID := chi.URLParam(r, "id")
	if !hasItem(s, itemID) {
		handleServiceError(w, model.NewCartItemNotFoundError(itemID))
		return
	}
	writeJSON(w, http.StatusOK, s.SetQuantity(r.Context(), itemID, *req.Quantity))
}

// RemoveItem は明細行を削除する。
// DELETE /api/cart/items/{id}
func (h *CartHandler) RemoveItem(w http.ResponseWriter, r *http.Request) {
	s, ok := h.store(w, r)
	if !ok {
		return
	}

	itemID := chi.URLParam(r, "id")
	if !hasItem(s, itemID) {
		handleServiceError(w, model.NewCartItemNotFoundError(itemID))
		return
	}
	writeJSON(w, http.StatusOK, s.Remove(r.Context(), itemID))
}

// ClearCart はカートを空にする。
// DELETE /api/cart
func (h *CartHandler) ClearCart(w http.ResponseWriter, r *http.Request) {
	s, ok := h.store(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, s.Clear(r.Context()))
}

// Summary はカートの概要を返す。
// GET /api/cart/summary
func (h *CartHandler) Summary(w http.ResponseWriter, r *http.Request) {
	s, ok := h.store(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, s.Summary())
}

// Categories はカテゴリ別に明細を返す。
// GET /api/cart/categories
func (h *CartHandler) Categories(w http.ResponseWriter, r *http.Request) {
	s, ok := h.store(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, categoriesResponse{Categories: s.ItemsByCategory()})
}

// Checkout はチェックアウト用のデータを返す。
// POST /api/cart/checkout
func (h *CartHandler) Checkout(w http.ResponseWriter, r *http.Request) {
	s, ok := h.store(w, r)
	if !ok {
		return
	}

	data, err := s.PrepareCheckout()
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, data)
}

// ApplyDiscount は割引コードを適用する。
// POST /api/cart/discount
func (h *CartHandler) ApplyDiscount(w http.ResponseWriter, r *http.Request) {
	s, ok := h.store(w, r)
	if !ok {
		return
	}

	var req discountRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	writeJSON(w, http.StatusOK, s.ApplyDiscount(req.Code))
}

// Export はカートをエクスポート形式で返す。
// GET /api/cart/export
func (h *CartHandler) Export(w http.ResponseWriter, r *http.Request) {
	s, ok := h.store(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, s.Export())
}

// Import はエクスポート形式のカートを取り込む。
// POST /api/cart/import
func (h *CartHandler) Import(w http.ResponseWriter, r *http.Request) {
	s, ok := h.store(w, r)
	if !ok {
		return
	}

	var req model.CartExport
	if !decodeJSON(w, r, &req) {
		return
	}

	state, err := s.Import(r.Context(), req)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, state)
}

func hasItem(s *cart.Store, itemID string) bool {
	for _, item := range s.State().Items {
		if item.ID == itemID {
			return true
		}
	}
	return false
}
