package storage

import (
	"context"
	"testing"
	"time"
)

func TestMemoryStore_ImplementsInterfaces(t *testing.T) {
	var _ KVStore = (*MemoryStore)(nil)
	var _ Watcher = (*MemoryStore)(nil)
}

func TestMemoryStore_SetGetDelete(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	if _, ok, err := s.Get(ctx, "missing"); err != nil || ok {
		t.Fatalf("未登録キーのGet: ok=%v err=%v, want ok=false err=nil", ok, err)
	}

	if err := s.Set(ctx, "k", []byte("v1")); err != nil {
		t.Fatalf("Set がエラーを返した: %v", err)
	}
	got, ok, err := s.Get(ctx, "k")
	if err != nil || !ok || string(got) != "v1" {
		t.Fatalf("Get = %q, %v, %v, want v1, true, nil", got, ok, err)
	}

	// 後勝ち
	s.Set(ctx, "k", []byte("v2"))
	got, _, _ = s.Get(ctx, "k")
	if string(got) != "v2" {
		t.Errorf("上書き後の値 = %q, want v2", got)
	}

	if err := s.Delete(ctx, "k"); err != nil {
		t.Fatalf("Delete がエラーを返した: %v", err)
	}
	if _, ok, _ := s.Get(ctx, "k"); ok {
		t.Error("削除後もキーが残っている")
	}
	if err := s.Delete(ctx, "k"); err != nil {
		t.Errorf("存在しないキーの削除でエラー: %v", err)
	}
}

func TestMemoryStore_GetReturnsCopy(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	s.Set(ctx, "k", []byte("abc"))

	got, _, _ := s.Get(ctx, "k")
	got[0] = 'x'

	again, _, _ := s.Get(ctx, "k")
	if string(again) != "abc" {
		t.Errorf("Getの戻り値の変更が内部状態に影響した: %q", again)
	}
}

func TestMemoryStore_WatchReceivesChanges(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	s := NewMemoryStore()
	ch := s.Watch(ctx)

	s.Set(ctx, "queenLucyCart", []byte("{}"))

	select {
	case c := <-ch:
		if c.Key != "queenLucyCart" {
			t.Errorf("Change.Key = %q, want queenLucyCart", c.Key)
		}
	case <-time.After(time.Second):
		t.Fatal("変更通知を受信できなかった")
	}

	cancel()
	deadline := time.After(time.Second)
	for {
		select {
		case _, ok := <-ch:
			if !ok {
				return
			}
		case <-deadline:
			t.Fatal("ctxキャンセル後にチャネルがクローズされない")
		}
	}
}

func TestNamespace_IsolatesKeys(t *testing.T) {
	ctx := context.Background()
	base := NewMemoryStore()
	a := Namespace(base, "session:a")
	b := Namespace(base, "session:b")

	a.Set(ctx, "queenLucyCart", []byte("A"))
	b.Set(ctx, "queenLucyCart", []byte("B"))

	gotA, _, _ := a.Get(ctx, "queenLucyCart")
	gotB, _, _ := b.Get(ctx, "queenLucyCart")
	if string(gotA) != "A" || string(gotB) != "B" {
		t.Errorf("名前空間が分離されていない: a=%q b=%q", gotA, gotB)
	}

	raw, ok, _ := base.Get(ctx, "session:a:queenLucyCart")
	if !ok || string(raw) != "A" {
		t.Errorf("下位ストアのキー = %q, %v, want A, true", raw, ok)
	}

	if base.Len() != 2 {
		t.Errorf("下位ストアのキー数 = %d, want 2", base.Len())
	}
}

func TestNamespace_EmptyPrefixReturnsStore(t *testing.T) {
	base := NewMemoryStore()
	if got := Namespace(base, ""); got != KVStore(base) {
		t.Error("空の接頭辞では元のストアを返すべき")
	}
}

func TestNamespace_WatchFiltersAndStripsPrefix(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	base := NewMemoryStore()
	a := Namespace(base, "session:a").(Watcher)
	ch := a.Watch(ctx)

	base.Set(ctx, "session:b:queenLucyCart", []byte("B"))
	base.Set(ctx, "session:a:queenLucyCart", []byte("A"))

	select {
	case c := <-ch:
		if c.Key != "queenLucyCart" {
			t.Errorf("Change.Key = %q, want queenLucyCart", c.Key)
		}
	case <-time.After(time.Second):
		t.Fatal("名前空間内の変更通知を受信できなかった")
	}
}
