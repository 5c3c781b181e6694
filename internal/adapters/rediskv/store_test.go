package rediskv

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newTestStore(t *testing.T) (*Store, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return New(client), mr
}

// TestStore_Incr tests that INCR starts at one and is shared across callers.
func TestStore_Incr(t *testing.T) {
	store, mr := newTestStore(t)
	ctx := context.Background()

	for want := int64(1); want <= 3; want++ {
		got, err := store.Incr(ctx, "pageview:articles9")
		if err != nil {
			t.Fatalf("Incr: %v", err)
		}
		if got != want {
			t.Errorf("Incr = %d, want %d", got, want)
		}
	}
	if v, _ := mr.Get("pageview:articles9"); v != "3" {
		t.Errorf("stored value = %q, want 3", v)
	}
}

// TestStore_Incr_WrongType tests that a non-integer value surfaces an error.
func TestStore_Incr_WrongType(t *testing.T) {
	store, mr := newTestStore(t)
	mr.Set("pageview:articles1", "not-a-number")

	if _, err := store.Incr(context.Background(), "pageview:articles1"); err == nil {
		t.Error("expected error for non-integer value")
	}
}

// TestStore_SetGet_TTL tests the expiry of cached entries.
func TestStore_SetGet_TTL(t *testing.T) {
	store, mr := newTestStore(t)
	ctx := context.Background()

	if err := store.Set(ctx, "articles:all", []byte(`[{"id":1}]`), 60*time.Second); err != nil {
		t.Fatalf("Set: %v", err)
	}
	if ttl := mr.TTL("articles:all"); ttl != 60*time.Second {
		t.Errorf("TTL = %v, want 60s", ttl)
	}

	got, found, err := store.Get(ctx, "articles:all")
	if err != nil || !found || string(got) != `[{"id":1}]` {
		t.Fatalf("Get: %q found=%v err=%v", got, found, err)
	}

	mr.FastForward(61 * time.Second)
	if _, found, err := store.Get(ctx, "articles:all"); err != nil || found {
		t.Errorf("after expiry: found=%v err=%v", found, err)
	}
}

// TestStore_GetMissingAndDel tests misses and deletion.
func TestStore_GetMissingAndDel(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	if _, found, err := store.Get(ctx, "absent"); err != nil || found {
		t.Errorf("absent key: found=%v err=%v", found, err)
	}

	store.Set(ctx, "k", []byte("v"), 0)
	if err := store.Del(ctx, "k"); err != nil {
		t.Fatalf("Del: %v", err)
	}
	if _, found, _ := store.Get(ctx, "k"); found {
		t.Error("expected key to be deleted")
	}
}

// TestStore_ServerDown tests that connection failures are returned, not swallowed.
func TestStore_ServerDown(t *testing.T) {
	store, mr := newTestStore(t)
	mr.Close()

	ctx := context.Background()
	if _, err := store.Incr(ctx, "k"); err == nil {
		t.Error("expected Incr error with server down")
	}
	if _, _, err := store.Get(ctx, "k"); err == nil {
		t.Error("expected Get error with server down")
	}
}

// TestOpen tests URL parsing and the initial PING.
func TestOpen(t *testing.T) {
	mr := miniredis.RunT(t)
	store, err := Open(context.Background(), "redis://"+mr.Addr()+"/0")
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer store.Close()
	if err := store.Ping(context.Background()); err != nil {
		t.Errorf("Ping: %v", err)
	}

	if _, err := Open(context.Background(), "://bad"); err == nil {
		t.Error("expected error for invalid url")
	}
}
