// Package cache はプロセス内のTTL付きキャッシュを提供する。
package cache

import (
	"sync"
	"time"
)

// entry は有効期限付きのキャッシュ値。
type entry[V any] struct {
	value     V
	expiresAt time.Time
}

// TTL はキー単位で有効期限を持つキャッシュ。
// 期限切れのエントリは読み取り時に削除される。ゴルーチンセーフ。
type TTL[V any] struct {
	ttl time.Duration
	now func() time.Time

	mu      sync.Mutex
	entries map[string]entry[V]
	hits    int64
	misses  int64
}

// NewTTL は指定の有効期間でキャッシュを生成する。
func NewTTL[V any](ttl time.Duration) *TTL[V] {
	return &TTL[V]{
		ttl:     ttl,
		now:     time.Now,
		entries: make(map[string]entry[V]),
	}
}

// Get は有効期限内の値を返す。期限切れの場合はエントリを削除してfalseを返す。
func (c *TTL[V]) Get(key string) (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key]
	if ok && c.now().Before(e.expiresAt) {
		c.hits++
		return e.value, true
	}
	if ok {
		delete(c.entries, key)
	}
	c.misses++
	var zero V
	return zero, false
}

// Set は値を保存し、有効期限を現在時刻 + TTLに設定する。
func (c *TTL[V]) Set(key string, value V) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = entry[V]{value: value, expiresAt: c.now().Add(c.ttl)}
}

// Delete はエントリを削除する。
func (c *TTL[V]) Delete(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, key)
}

// Clear は全エントリを削除する。
func (c *TTL[V]) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[string]entry[V])
}

// Len は保持しているエントリ数を返す（期限切れで未削除のものを含む）。
func (c *TTL[V]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// Stats はヒット数とミス数を返す。
func (c *TTL[V]) Stats() (hits, misses int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.hits, c.misses
}
