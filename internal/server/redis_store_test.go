package server

import (
	"context"
	"testing"
	"time"

	"github.com/Abhisheksantra28/Streamfinity/internal/testsupport/redisstub"
)

func TestRedisLoginStoreCountsAttempts(t *testing.T) {
	stub, err := redisstub.Start(redisstub.Options{})
	if err != nil {
		t.Fatalf("start redis stub: %v", err)
	}
	defer stub.Close()

	store := newRedisLoginStore(stub.Addr(), "", time.Second)
	ctx := context.Background()

	if err := store.Ping(ctx); err != nil {
		t.Fatalf("Ping: %v", err)
	}

	for i := 0; i < 3; i++ {
		allowed, _, err := store.Allow(ctx, "streamfinity:login:203.0.113.9", 3, time.Minute)
		if err != nil {
			t.Fatalf("Allow attempt %d: %v", i+1, err)
		}
		if !allowed {
			t.Fatalf("attempt %d should be allowed", i+1)
		}
	}

	allowed, retryAfter, err := store.Allow(ctx, "streamfinity:login:203.0.113.9", 3, time.Minute)
	if err != nil {
		t.Fatalf("Allow over limit: %v", err)
	}
	if allowed {
		t.Fatal("fourth attempt should be throttled")
	}
	if retryAfter <= 0 {
		t.Fatalf("expected a positive retry hint, got %v", retryAfter)
	}

	// A different client IP keeps its own budget.
	allowed, _, err = store.Allow(ctx, "streamfinity:login:198.51.100.7", 3, time.Minute)
	if err != nil || !allowed {
		t.Fatalf("other key should be allowed: allowed=%v err=%v", allowed, err)
	}
}

func TestRedisLoginStoreAuthenticates(t *testing.T) {
	stub, err := redisstub.Start(redisstub.Options{Password: "sekret"})
	if err != nil {
		t.Fatalf("start redis stub: %v", err)
	}
	defer stub.Close()

	store := newRedisLoginStore(stub.Addr(), "sekret", time.Second)
	if err := store.Ping(context.Background()); err != nil {
		t.Fatalf("Ping with password: %v", err)
	}

	wrong := newRedisLoginStore(stub.Addr(), "nope", time.Second)
	if err := wrong.Ping(context.Background()); err == nil {
		t.Fatal("expected an authentication failure")
	}
}
