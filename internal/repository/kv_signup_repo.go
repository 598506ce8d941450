package repository

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/hitoshi/storefront/internal/model"
	"github.com/hitoshi/storefront/internal/storage"
)

// KVSignupRepo はKVStoreを使用したメール登録リポジトリ。
type KVSignupRepo struct {
	store storage.KVStore
}

// NewKVSignupRepo はKVSignupRepoを生成する。
func NewKVSignupRepo(store storage.KVStore) *KVSignupRepo {
	return &KVSignupRepo{store: store}
}

// List は全登録を取得する。
func (r *KVSignupRepo) List(ctx context.Context) ([]model.EmailSignup, error) {
	data, ok, err := r.store.Get(ctx, SignupsKey)
	if err != nil {
		return nil, fmt.Errorf("メール登録の取得に失敗しました: %w", err)
	}
	if !ok {
		return []model.EmailSignup{}, nil
	}

	var signups []model.EmailSignup
	if err := json.Unmarshal(data, &signups); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if signups == nil {
		signups = []model.EmailSignup{}
	}
	return signups, nil
}

// SaveAll は登録一覧を保存する。
func (r *KVSignupRepo) SaveAll(ctx context.Context, signups []model.EmailSignup) error {
	data, err := json.Marshal(signups)
	if err != nil {
		return fmt.Errorf("メール登録のエンコードに失敗しました: %w", err)
	}
	if err := r.store.Set(ctx, SignupsKey, data); err != nil {
		return fmt.Errorf("メール登録の保存に失敗しました: %w", err)
	}
	return nil
}
