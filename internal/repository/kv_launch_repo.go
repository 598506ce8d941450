package repository

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/hitoshi/storefront/internal/model"
	"github.com/hitoshi/storefront/internal/storage"
)

// KVLaunchRepo はKVStoreを使用したローンチ時刻リポジトリ。
// 時刻はUnixミリ秒の10進文字列で保存する。
type KVLaunchRepo struct {
	store storage.KVStore
}

// NewKVLaunchRepo はKVLaunchRepoを生成する。
func NewKVLaunchRepo(store storage.KVStore) *KVLaunchRepo {
	return &KVLaunchRepo{store: store}
}

// Times はローンチ時刻とドロップ終了時刻を取得する。
func (r *KVLaunchRepo) Times(ctx context.Context) (model.LaunchTimes, error) {
	launch, err := r.getMillis(ctx, LaunchTimeKey)
	if err != nil {
		return model.LaunchTimes{}, err
	}
	dropEnd, err := r.getMillis(ctx, DropEndTimeKey)
	if err != nil {
		return model.LaunchTimes{}, err
	}
	return model.LaunchTimes{LaunchTime: launch, DropEndTime: dropEnd}, nil
}

// SetTimes はローンチ時刻とドロップ終了時刻を保存する。
func (r *KVLaunchRepo) SetTimes(ctx context.Context, launchTime, dropEndTime time.Time) error {
	if err := r.setMillis(ctx, LaunchTimeKey, launchTime); err != nil {
		return err
	}
	return r.setMillis(ctx, DropEndTimeKey, dropEndTime)
}

// Clear はローンチ関連のキーをすべて削除する。
func (r *KVLaunchRepo) Clear(ctx context.Context) error {
	for _, key := range []string{LaunchTimeKey, DropEndTimeKey, NotificationsSentKey} {
		if err := r.store.Delete(ctx, key); err != nil {
			return fmt.Errorf("ローンチ情報の削除に失敗しました (%s): %w", key, err)
		}
	}
	return nil
}

// NotificationsSentFor は通知送信済みのローンチ時刻を返す。
func (r *KVLaunchRepo) NotificationsSentFor(ctx context.Context) (*time.Time, error) {
	return r.getMillis(ctx, NotificationsSentKey)
}

// MarkNotificationsSent は通知送信済みマーカーを保存する。
func (r *KVLaunchRepo) MarkNotificationsSent(ctx context.Context, launchTime time.Time) error {
	return r.setMillis(ctx, NotificationsSentKey, launchTime)
}

func (r *KVLaunchRepo) getMillis(ctx context.Context, key string) (*time.Time, error) {
	data, ok, err := r.store.Get(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("ローンチ情報の取得に失敗しました (%s): %w", key, err)
	}
	if !ok || len(data) == 0 {
		return nil, nil
	}

	ms, err := strconv.ParseInt(string(data), 10, 64)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrMalformed, key, err)
	}
	t := time.UnixMilli(ms).UTC()
	return &t, nil
}

func (r *KVLaunchRepo) setMillis(ctx context.Context, key string, t time.Time) error {
	v := strconv.FormatInt(t.UnixMilli(), 10)
	if err := r.store.Set(ctx, key, []byte(v)); err != nil {
		return fmt.Errorf("ローンチ情報の保存に失敗しました (%s): %w", key, err)
	}
	return nil
}
