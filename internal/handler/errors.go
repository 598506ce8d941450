package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/hitoshi/storefront/internal/brevo"
	"github.com/hitoshi/storefront/internal/middleware"
	"github.com/hitoshi/storefront/internal/model"
	"github.com/hitoshi/storefront/internal/shopify"
)

// errInvalidRequest はリクエストボディの解析に失敗した場合のエラー。
var errInvalidRequest = &model.APIError{
	Code:     "INVALID_REQUEST",
	Message:  "リクエストボディの解析に失敗しました。",
	Category: "validation",
	Action:   "正しいJSON形式でリクエストしてください。",
}

// writeJSON はJSONレスポンスを書き込む。
func writeJSON(w http.ResponseWriter, statusCode int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("failed to encode response", slog.String("error", err.Error()))
	}
}

// decodeJSON はリクエストボディをデコードする。失敗した場合は400を書き込みfalseを返す。
func decodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		middleware.WriteErrorResponse(w, http.StatusBadRequest, errInvalidRequest)
		return false
	}
	return true
}

// handleServiceError はサービス層から返されたエラーを適切なHTTPステータスコードに変換する。
func handleServiceError(w http.ResponseWriter, err error) {
	var apiErr *model.APIError
	if errors.As(err, &apiErr) {
		middleware.WriteErrorResponse(w, mapAPIErrorToHTTPStatus(apiErr), apiErr)
		return
	}

	// 外部APIのエラーはベンダー単位でまとめて返す
	var shopifyStatus *shopify.StatusError
	var brevoStatus *brevo.ResponseError
	switch {
	case errors.Is(err, shopify.ErrNotFound):
		middleware.WriteErrorResponse(w, http.StatusNotFound, model.NewProductNotFoundError(""))
		return
	case errors.Is(err, shopify.ErrNotConfigured), errors.As(err, &shopifyStatus):
		slog.Warn("shopify unavailable", slog.String("error", err.Error()))
		middleware.WriteErrorResponse(w, http.StatusServiceUnavailable, model.NewVendorUnavailableError("shopify"))
		return
	case errors.Is(err, brevo.ErrNotConfigured), errors.As(err, &brevoStatus):
		slog.Warn("brevo unavailable", slog.String("error", err.Error()))
		middleware.WriteErrorResponse(w, http.StatusServiceUnavailable, model.NewVendorUnavailableError("brevo"))
		return
	}

	// それ以外は内部サーバーエラーとして扱う
	slog.Error("internal server error", slog.String("error", err.Error()))
	middleware.WriteInternalServerError(w)
}

// mapAPIErrorToHTTPStatus はAPIErrorコードからHTTPステータスコードにマッピングする。
func mapAPIErrorToHTTPStatus(apiErr *model.APIError) int {
	switch apiErr.Code {
	case model.ErrCodeInvalidEmail, model.ErrCodeInvalidProduct,
		model.ErrCodeInvalidCartImport, model.ErrCodeInvalidLaunchTime, errInvalidRequest.Code:
		return http.StatusBadRequest
	case model.ErrCodeEmailAlreadyRegistered:
		return http.StatusConflict
	case model.ErrCodeCartItemNotFound, model.ErrCodeProductNotFound:
		return http.StatusNotFound
	case model.ErrCodeCartInvalid:
		return http.StatusUnprocessableEntity
	case model.ErrCodeVendorUnavailable:
		return http.StatusServiceUnavailable
	case model.ErrCodeSessionRequired:
		return http.StatusUnauthorized
	case model.ErrCodeAdminRequired:
		return http.StatusForbidden
	default:
		return http.StatusInternalServerError
	}
}
