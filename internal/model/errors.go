// Package model はドメインモデルを定義する。
package model

import "fmt"

// APIError は統一エラーフォーマットを表す。
// UIに表示する原因カテゴリと対処方法を含む。
type APIError struct {
	Code     string // エラーコード
	Message  string // エラーメッセージ
	Category string // カテゴリ: session, validation, cart, launch, catalog, system
	Action   string // ユーザー向け対処方法
	Issues   []string
}

// Error はerrorインターフェースを実装する。
func (e *APIError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// 定義済みエラーコード
const (
	ErrCodeInvalidEmail           = "INVALID_EMAIL"
	ErrCodeEmailAlreadyRegistered = "EMAIL_ALREADY_REGISTERED"
	ErrCodeCartItemNotFound       = "CART_ITEM_NOT_FOUND"
	ErrCodeCartInvalid            = "CART_INVALID"
	ErrCodeInvalidCartImport      = "INVALID_CART_IMPORT"
	ErrCodeInvalidProduct         = "INVALID_PRODUCT"
	ErrCodeProductNotFound        = "PRODUCT_NOT_FOUND"
	ErrCodeVendorUnavailable      = "VENDOR_UNAVAILABLE"
	ErrCodeInvalidLaunchTime      = "INVALID_LAUNCH_TIME"
	ErrCodeSessionRequired        = "SESSION_REQUIRED"
	ErrCodeAdminRequired          = "ADMIN_REQUIRED"
)

// NewInvalidEmailError は無効なメールアドレスエラーを生成する。
func NewInvalidEmailError(email string) *APIError {
	return &APIError{
		Code:     ErrCodeInvalidEmail,
		Message:  fmt.Sprintf("無効なメールアドレスです: %s", email),
		Category: "validation",
		Action:   "正しいメールアドレスを入力してください。",
	}
}

// NewEmailAlreadyRegisteredError は登録済みメールアドレスのエラーを生成する。
func NewEmailAlreadyRegisteredError() *APIError {
	return &APIError{
		Code:     ErrCodeEmailAlreadyRegistered,
		Message:  "このメールアドレスは既に登録されています。",
		Category: "validation",
		Action:   "ドロップ開始時に登録済みのアドレスへ通知が届きます。",
	}
}

// NewCartItemNotFoundError はカート内に指定の行が存在しない場合のエラーを生成する。
func NewCartItemNotFoundError(itemID string) *APIError {
	return &APIError{
		Code:     ErrCodeCartItemNotFound,
		Message:  fmt.Sprintf("カートに指定の商品がありません: %s", itemID),
		Category: "cart",
		Action:   "カートを再読み込みしてください。",
	}
}

// NewCartInvalidError はチェックアウト前検証の失敗エラーを生成する。
func NewCartInvalidError(issues []string) *APIError {
	return &APIError{
		Code:     ErrCodeCartInvalid,
		Message:  fmt.Sprintf("カートの検証に失敗しました: %v", issues),
		Category: "cart",
		Action:   "カートの内容を確認してください。",
		Issues:   issues,
	}
}

// NewInvalidCartImportError はインポートデータの形式が不正な場合のエラーを生成する。
func NewInvalidCartImportError() *APIError {
	return &APIError{
		Code:     ErrCodeInvalidCartImport,
		Message:  "カートデータの形式が不正です。",
		Category: "validation",
		Action:   "バージョン1.0でエクスポートされたカートデータを指定してください。",
	}
}

// NewInvalidProductError は商品情報が不足している場合のエラーを生成する。
func NewInvalidProductError(reason string) *APIError {
	return &APIError{
		Code:     ErrCodeInvalidProduct,
		Message:  fmt.Sprintf("商品情報が不正です: %s", reason),
		Category: "validation",
		Action:   "商品ID、商品名、価格を確認してください。",
	}
}

// NewProductNotFoundError は商品が見つからない場合のエラーを生成する。
func NewProductNotFoundError(productID string) *APIError {
	return &APIError{
		Code:     ErrCodeProductNotFound,
		Message:  fmt.Sprintf("指定された商品が見つかりません: %s", productID),
		Category: "catalog",
		Action:   "商品IDを確認してください。",
	}
}

// NewVendorUnavailableError は外部APIが利用できずキャッシュもない場合のエラーを生成する。
func NewVendorUnavailableError(vendor string) *APIError {
	return &APIError{
		Code:     ErrCodeVendorUnavailable,
		Message:  fmt.Sprintf("%s APIに接続できません。", vendor),
		Category: "system",
		Action:   "しばらく待ってから再度お試しください。",
	}
}

// NewInvalidLaunchTimeError は不正なローンチ時刻指定のエラーを生成する。
func NewInvalidLaunchTimeError(reason string) *APIError {
	return &APIError{
		Code:     ErrCodeInvalidLaunchTime,
		Message:  fmt.Sprintf("無効なローンチ時刻です: %s", reason),
		Category: "launch",
		Action:   "RFC3339形式の時刻を指定してください。",
	}
}

// NewSessionRequiredError はカートセッションがない場合のエラーを生成する。
func NewSessionRequiredError() *APIError {
	return &APIError{
		Code:     ErrCodeSessionRequired,
		Message:  "カートセッションがありません。",
		Category: "session",
		Action:   "ページを再読み込みしてください。",
	}
}

// NewAdminRequiredError は管理者トークンが不正な場合のエラーを生成する。
func NewAdminRequiredError() *APIError {
	return &APIError{
		Code:     ErrCodeAdminRequired,
		Message:  "管理者権限が必要です。",
		Category: "session",
		Action:   "管理者トークンを指定してください。",
	}
}
