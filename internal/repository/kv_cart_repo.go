package repository

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/hitoshi/storefront/internal/model"
	"github.com/hitoshi/storefront/internal/storage"
)

// KVCartRepo はKVStoreを使用したカートリポジトリ。
type KVCartRepo struct {
	store storage.KVStore
}

// NewKVCartRepo はKVCartRepoを生成する。
func NewKVCartRepo(store storage.KVStore) *KVCartRepo {
	return &KVCartRepo{store: store}
}

// Load は保存済みのカート状態を取得する。
func (r *KVCartRepo) Load(ctx context.Context) (*model.CartState, error) {
	data, ok, err := r.store.Get(ctx, CartKey)
	if err != nil {
		return nil, fmt.Errorf("カートの取得に失敗しました: %w", err)
	}
	if !ok {
		return nil, nil
	}

	var state model.CartState
	if err := json.Unmarshal(data, &state); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	return &state, nil
}

// Save はカート状態を保存する。
func (r *KVCartRepo) Save(ctx context.Context, state *model.CartState) error {
	data, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("カートのエンコードに失敗しました: %w", err)
	}
	if err := r.store.Set(ctx, CartKey, data); err != nil {
		return fmt.Errorf("カートの保存に失敗しました: %w", err)
	}
	return nil
}

// Key はカート状態の保存キーを返す。
func (r *KVCartRepo) Key() string {
	return CartKey
}
