package ratelimit

import (
	"context"
	"testing"
	"time"
)

func TestSlidingWindowAdmitsUpToLimit(t *testing.T) {
	base := time.Now()
	clock := base
	l := NewSlidingWindow(5, time.Second)
	l.now = func() time.Time { return clock }

	ctx := context.Background()
	for i := 0; i < 5; i++ {
		ok, err := l.Allow(ctx, "user-1")
		if err != nil {
			t.Fatalf("allow %d: %v", i, err)
		}
		if !ok {
			t.Fatalf("request %d should be admitted", i+1)
		}
		clock = clock.Add(10 * time.Millisecond)
	}

	ok, err := l.Allow(ctx, "user-1")
	if err != nil {
		t.Fatalf("sixth allow: %v", err)
	}
	if ok {
		t.Fatal("sixth request within the window should be rejected")
	}
}

func TestSlidingWindowRecoversAfterWindow(t *testing.T) {
	base := time.Now()
	clock := base
	l := NewSlidingWindow(5, time.Second)
	l.now = func() time.Time { return clock }

	ctx := context.Background()
	for i := 0; i < 5; i++ {
		if ok, _ := l.Allow(ctx, "user-1"); !ok {
			t.Fatalf("request %d should be admitted", i+1)
		}
	}
	if ok, _ := l.Allow(ctx, "user-1"); ok {
		t.Fatal("over-limit request should be rejected")
	}

	clock = clock.Add(1100 * time.Millisecond)

	if ok, _ := l.Allow(ctx, "user-1"); !ok {
		t.Fatal("request after the window elapsed should be admitted")
	}
}

func TestSlidingWindowIsolatesActors(t *testing.T) {
	l := NewSlidingWindow(1, time.Second)
	ctx := context.Background()

	if ok, _ := l.Allow(ctx, "a"); !ok {
		t.Fatal("first actor should be admitted")
	}
	if ok, _ := l.Allow(ctx, "b"); !ok {
		t.Fatal("second actor must not share the first actor's window")
	}
	if ok, _ := l.Allow(ctx, "a"); ok {
		t.Fatal("first actor should now be over limit")
	}
}

func TestSlidingWindowReclaimsIdleActors(t *testing.T) {
	base := time.Now()
	clock := base
	l := NewSlidingWindow(5, time.Second)
	l.now = func() time.Time { return clock }

	ctx := context.Background()
	l.Allow(ctx, "idle")
	clock = clock.Add(3 * time.Second)
	l.Allow(ctx, "active")

	l.mu.Lock()
	_, exists := l.actors["idle"]
	l.mu.Unlock()
	if exists {
		t.Fatal("idle actor state should be reclaimed after 2x window")
	}
}
