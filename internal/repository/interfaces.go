// Package repository はデータ永続化のインターフェースを定義する。
// 実装はstorage.KVStore上に固定キーでJSONを保存する。
package repository

import (
	"context"
	"errors"
	"time"

	"github.com/hitoshi/storefront/internal/model"
)

// 保存キー（ブラウザ版のlocalStorageキーと同一）
const (
	CartKey              = "queenLucyCart"
	SignupsKey           = "queenLucyEmailSignups"
	LaunchTimeKey        = "queenLucyLaunchTime"
	DropEndTimeKey       = "queenLucyDropEndTime"
	NotificationsSentKey = "queenLucyNotificationsSent"
)

// ErrMalformed は保存データのデコードに失敗した場合に返される。
var ErrMalformed = errors.New("repository: malformed stored data")

// CartRepository はカート状態の永続化インターフェース。
type CartRepository interface {
	// Load は保存済みのカート状態を取得する。未保存の場合はnilを返す。
	// デコードできない場合はErrMalformedをラップしたエラーを返す。
	Load(ctx context.Context) (*model.CartState, error)

	// Save はカート状態を丸ごと保存する。
	Save(ctx context.Context, state *model.CartState) error

	// Key はカート状態の保存キーを返す。変更通知の判定に使用する。
	Key() string
}

// SignupRepository はメール登録の永続化インターフェース。
type SignupRepository interface {
	// List は全登録を取得する。未保存の場合は空スライスを返す。
	List(ctx context.Context) ([]model.EmailSignup, error)

	// SaveAll は登録一覧を丸ごと保存する。
	SaveAll(ctx context.Context, signups []model.EmailSignup) error
}

// LaunchRepository はローンチ時刻の永続化インターフェース。
type LaunchRepository interface {
	// Times は保存済みのローンチ時刻とドロップ終了時刻を取得する。
	Times(ctx context.Context) (model.LaunchTimes, error)

	// SetTimes はローンチ時刻とドロップ終了時刻を保存する。
	SetTimes(ctx context.Context, launchTime, dropEndTime time.Time) error

	// Clear はローンチ時刻、ドロップ終了時刻、通知送信済みマーカーを削除する。
	Clear(ctx context.Context) error

	// NotificationsSentFor は通知を送信済みのローンチ時刻を返す。未送信の場合はnil。
	NotificationsSentFor(ctx context.Context) (*time.Time, error)

	// MarkNotificationsSent は指定ローンチ時刻の通知を送信済みとして記録する。
	MarkNotificationsSent(ctx context.Context, launchTime time.Time) error
}
