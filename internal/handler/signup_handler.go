package handler

import (
	"context"
	"net/http"

	"github.com/hitoshi/storefront/internal/model"
)

// SignupServiceInterface はメール登録ハンドラーが必要とするサービスインターフェース。
type SignupServiceInterface interface {
	Add(ctx context.Context, email, source string) (*model.EmailSignup, error)
	Count(ctx context.Context) (int, error)
}

// SignupHandler はローンチ通知のメール登録のHTTPハンドラー。
type SignupHandler struct {
	service SignupServiceInterface
}

// NewSignupHandler はSignupHandlerを生成する。
func NewSignupHandler(service SignupServiceInterface) *SignupHandler {
	return &SignupHandler{service: service}
}

// signupRequest はメール登録リクエストのボディ。
type signupRequest struct {
	Email  string `json:"email"`
	Source string `json:"source"`
}

// signupResponse はメール登録のAPIレスポンス。
type signupResponse struct {
	Email   string `json:"email"`
	Service string `json:"service"`
	Total   int    `json:"total"`
}

// Register はメールアドレスを登録する。
// POST /api/signups
func (h *SignupHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req signupRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	signup, err := h.service.Add(r.Context(), req.Email, req.Source)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	// 件数の取得失敗は登録結果に影響させない
	total, _ := h.service.Count(r.Context())

	writeJSON(w, http.StatusCreated, signupResponse{
		Email:   signup.Email,
		Service: signup.Service,
		Total:   total,
	})
}
