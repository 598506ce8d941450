package storage

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/redis/go-redis/v9"
)

// changeChannel は変更通知をPublishするRedisチャネル名。
const changeChannel = "storefront:kv:changed"

// RedisStore はRedisを使用したKVStore。
// Set/Delete後にキー名をPublishし、他プロセスのWatchへ変更を伝える。
type RedisStore struct {
	client *redis.Client
	logger *slog.Logger
}

// NewRedisStore はRedisStoreを生成する。クライアントの所有権は呼び出し元が持つ。
func NewRedisStore(client *redis.Client, logger *slog.Logger) *RedisStore {
	return &RedisStore{client: client, logger: logger}
}

// Get は指定キーの値を取得する。
func (s *RedisStore) Get(ctx context.Context, key string) ([]byte, bool, error) {
	data, err := s.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("Redisからの取得に失敗しました: %w", err)
	}
	return data, true, nil
}

// Set は値を有効期限なしで保存する。
func (s *RedisStore) Set(ctx context.Context, key string, value []byte) error {
	if err := s.client.Set(ctx, key, value, 0).Err(); err != nil {
		return fmt.Errorf("Redisへの保存に失敗しました: %w", err)
	}
	s.publish(ctx, key)
	return nil
}

// Delete は指定キーを削除する。
func (s *RedisStore) Delete(ctx context.Context, key string) error {
	if err := s.client.Del(ctx, key).Err(); err != nil {
		return fmt.Errorf("Redisからの削除に失敗しました: %w", err)
	}
	s.publish(ctx, key)
	return nil
}

// Watch はRedisのPub/Subで変更通知を購読する。
func (s *RedisStore) Watch(ctx context.Context) <-chan Change {
	out := make(chan Change, 16)
	sub := s.client.Subscribe(ctx, changeChannel)

	go func() {
		defer close(out)
		defer sub.Close()

		msgs := sub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-msgs:
				if !ok {
					return
				}
				select {
				case out <- Change{Key: msg.Payload}:
				default:
				}
			}
		}
	}()

	return out
}

// publish は変更通知を送信する。失敗しても保存自体は成功として扱う。
func (s *RedisStore) publish(ctx context.Context, key string) {
	if err := s.client.Publish(ctx, changeChannel, key).Err(); err != nil {
		s.logger.Warn("変更通知のPublishに失敗しました",
			slog.String("key", key),
			slog.String("error", err.Error()),
		)
	}
}
