// Package storage はブラウザのlocalStorageに相当するキー・バリュー永続化層を提供する。
// バックエンドはメモリ、PostgreSQL、Redisから選択でき、
// Namespaceでブラウザセッションごとにキー空間を分離する。
package storage

import (
	"context"
	"errors"
	"strings"
)

// ErrClosed はクローズ済みのストアに対する操作で返される。
var ErrClosed = errors.New("storage: store is closed")

// KVStore はキー・バリュー永続化のインターフェース。
// 値は呼び出し側でJSONエンコードしたバイト列として扱う。
type KVStore interface {
	// Get は指定キーの値を取得する。キーが存在しない場合はokがfalseになる。
	Get(ctx context.Context, key string) (value []byte, ok bool, err error)
	// Set は指定キーに値を保存する。既存の値は上書きされる（後勝ち）。
	Set(ctx context.Context, key string, value []byte) error
	// Delete は指定キーを削除する。存在しないキーの削除はエラーにならない。
	Delete(ctx context.Context, key string) error
}

// Change はキーの変更通知。localStorageのstorageイベントに相当する。
type Change struct {
	Key string
}

// Watcher は変更通知を購読できるストアが実装するインターフェース。
type Watcher interface {
	// Watch は変更通知チャネルを返す。ctxがキャンセルされるとチャネルはクローズされる。
	Watch(ctx context.Context) <-chan Change
}

// namespaced はキーに接頭辞を付与してキー空間を分離するKVStore。
type namespaced struct {
	store  KVStore
	prefix string
}

// Namespace はprefixで分離されたKVStoreを返す。
// 各セッションは同じ固定キーを使いつつ、他セッションのデータとは衝突しない。
func Namespace(store KVStore, prefix string) KVStore {
	if prefix == "" {
		return store
	}
	return &namespaced{store: store, prefix: prefix + ":"}
}

func (n *namespaced) Get(ctx context.Context, key string) ([]byte, bool, error) {
	return n.store.Get(ctx, n.prefix+key)
}

func (n *namespaced) Set(ctx context.Context, key string, value []byte) error {
	return n.store.Set(ctx, n.prefix+key, value)
}

func (n *namespaced) Delete(ctx context.Context, key string) error {
	return n.store.Delete(ctx, n.prefix+key)
}

// Watch は下位ストアの変更通知のうち、この名前空間のキーのみを接頭辞を外して中継する。
// 下位ストアがWatcherでない場合はctx終了時にクローズされるだけのチャネルを返す。
func (n *namespaced) Watch(ctx context.Context) <-chan Change {
	out := make(chan Change, 16)
	w, ok := n.store.(Watcher)
	if !ok {
		go func() {
			<-ctx.Done()
			close(out)
		}()
		return out
	}

	in := w.Watch(ctx)
	go func() {
		defer close(out)
		for c := range in {
			if !strings.HasPrefix(c.Key, n.prefix) {
				continue
			}
			select {
			case out <- Change{Key: strings.TrimPrefix(c.Key, n.prefix)}:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out
}
