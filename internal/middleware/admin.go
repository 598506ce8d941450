package middleware

import (
	"crypto/subtle"
	"log/slog"
	"net/http"

	"github.com/hitoshi/storefront/internal/model"
)

// AdminTokenHeader は管理APIの認証トークンを送るヘッダー名。
const AdminTokenHeader = "X-Admin-Token"

// NewAdminTokenMiddleware はX-Admin-Tokenヘッダーを検証するミドルウェアを返す。
// トークンが未設定の場合、管理APIは常に拒否される。
func NewAdminTokenMiddleware(token string) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			got := r.Header.Get(AdminTokenHeader)
			if token == "" || subtle.ConstantTimeCompare([]byte(got), []byte(token)) != 1 {
				slog.Warn("admin token rejected",
					slog.String("method", r.Method),
					slog.String("path", r.URL.Path),
				)
				WriteErrorResponse(w, http.StatusForbidden, model.NewAdminRequiredError())
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
