package storage

import (
	"context"
	"sync"
)

// MemoryStore はプロセス内メモリに値を保持するKVStore。
// テストと単一プロセス運用で使用する。
type MemoryStore struct {
	mu       sync.RWMutex
	data     map[string][]byte
	watchers map[chan Change]struct{}
}

// NewMemoryStore はMemoryStoreを生成する。
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		data:     make(map[string][]byte),
		watchers: make(map[chan Change]struct{}),
	}
}

// Get は指定キーの値のコピーを返す。
func (s *MemoryStore) Get(_ context.Context, key string) ([]byte, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	v, ok := s.data[key]
	if !ok {
		return nil, false, nil
	}
	out := make([]byte, len(v))
	copy(out, v)
	return out, true, nil
}

// Set は値を保存し、購読者に変更を通知する。
func (s *MemoryStore) Set(_ context.Context, key string, value []byte) error {
	v := make([]byte, len(value))
	copy(v, value)

	s.mu.Lock()
	s.data[key] = v
	s.mu.Unlock()

	s.broadcast(key)
	return nil
}

// Delete はキーを削除し、購読者に変更を通知する。
func (s *MemoryStore) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	_, existed := s.data[key]
	delete(s.data, key)
	s.mu.Unlock()

	if existed {
		s.broadcast(key)
	}
	return nil
}

// Watch は変更通知チャネルを返す。
// 受信側が詰まっている場合、その購読者への通知は破棄される。
func (s *MemoryStore) Watch(ctx context.Context) <-chan Change {
	ch := make(chan Change, 16)

	s.mu.Lock()
	s.watchers[ch] = struct{}{}
	s.mu.Unlock()

	go func() {
		<-ctx.Done()
		s.mu.Lock()
		delete(s.watchers, ch)
		s.mu.Unlock()
		close(ch)
	}()

	return ch
}

// Len は保存されているキー数を返す。
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.data)
}

func (s *MemoryStore) broadcast(key string) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for ch := range s.watchers {
		select {
		case ch <- Change{Key: key}:
		default:
		}
	}
}
