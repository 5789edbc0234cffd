package service

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func TestInMemoryMethodsCacheStoreExpiresEntries(t *testing.T) {
	store := NewInMemoryMethodsCacheStore()
	ctx := context.Background()

	if err := store.Set(ctx, "k", []byte("v"), 20*time.Millisecond); err != nil {
		t.Fatalf("set: %v", err)
	}
	got, ok, err := store.Get(ctx, "k")
	if err != nil || !ok || string(got) != "v" {
		t.Fatalf("expected hit, got %q %v %v", got, ok, err)
	}
	time.Sleep(30 * time.Millisecond)
	if _, ok, _ := store.Get(ctx, "k"); ok {
		t.Fatal("expected entry expired")
	}

	_ = store.Set(ctx, "zero", []byte("v"), 0)
	if _, ok, _ := store.Get(ctx, "zero"); ok {
		t.Fatal("expected zero ttl not cached")
	}
}

func TestRedisMethodsCacheStoreSetGetInvalidate(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()
	store := NewRedisMethodsCacheStore(client, "test")
	ctx := context.Background()

	if _, ok, err := store.Get(ctx, "a"); err != nil || ok {
		t.Fatalf("expected miss, got %v %v", ok, err)
	}
	if err := store.Set(ctx, "a", []byte(`[{"id":"ideal"}]`), time.Minute); err != nil {
		t.Fatalf("set: %v", err)
	}
	got, ok, err := store.Get(ctx, "a")
	if err != nil || !ok || !strings.Contains(string(got), "ideal") {
		t.Fatalf("expected hit, got %q %v %v", got, ok, err)
	}
	if err := store.InvalidateAll(ctx); err != nil {
		t.Fatalf("invalidate: %v", err)
	}
	if _, ok, _ := store.Get(ctx, "a"); ok {
		t.Fatal("expected miss after invalidate")
	}
}

func TestMethodsCacheKeyHidesAPIKey(t *testing.T) {
	key := methodsCacheKey("live_secret")
	if strings.Contains(key, "live_secret") {
		t.Fatalf("cache key leaks api key: %s", key)
	}
	if key != methodsCacheKey("live_secret") || key == methodsCacheKey("test_secret") {
		t.Fatal("expected stable, distinct keys")
	}
}
