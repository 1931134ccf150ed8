package redis

import (
	"context"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
)

func TestChannelLocksSetAndClearKeys(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("run miniredis: %v", err)
	}
	defer mr.Close()

	locks := NewChannelLocks(newClient(mr), time.Minute)
	ctx := context.Background()

	release, ok, err := locks.Acquire(ctx, "chan-1")
	if err != nil || !ok {
		t.Fatalf("expected acquire, ok=%v err=%v", ok, err)
	}
	if !mr.Exists("quiz:channel:chan-1") {
		t.Fatalf("expected redis key to be set")
	}
	if _, ok, _ := locks.Acquire(ctx, "chan-1"); ok {
		t.Fatalf("expected channel to be busy")
	}

	release()
	if mr.Exists("quiz:channel:chan-1") {
		t.Fatalf("expected redis key to be removed")
	}
}

func TestChannelLocksExpire(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("run miniredis: %v", err)
	}
	defer mr.Close()

	locks := NewChannelLocks(newClient(mr), time.Minute)
	ctx := context.Background()

	stale, ok, _ := locks.Acquire(ctx, "chan-1")
	if !ok {
		t.Fatalf("expected acquire")
	}
	mr.FastForward(2 * time.Minute)

	fresh, ok, _ := locks.Acquire(ctx, "chan-1")
	if !ok {
		t.Fatalf("expected acquire after expiry")
	}
	defer fresh()

	// The expired holder must not release the new holder's lock.
	stale()
	if !mr.Exists("quiz:channel:chan-1") {
		t.Fatalf("stale release removed the new lock")
	}
}

func TestChannelLocksRefreshWhileHeld(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("run miniredis: %v", err)
	}
	defer mr.Close()

	const ttl = 300 * time.Millisecond
	locks := NewChannelLocks(newClient(mr), ttl)
	release, ok, err := locks.Acquire(context.Background(), "chan-1")
	if err != nil || !ok {
		t.Fatalf("expected acquire, ok=%v err=%v", ok, err)
	}

	mr.FastForward(250 * time.Millisecond)
	deadline := time.Now().Add(2 * time.Second)
	for mr.TTL("quiz:channel:chan-1") < 200*time.Millisecond {
		if time.Now().After(deadline) {
			t.Fatalf("lease was not refreshed, ttl=%s", mr.TTL("quiz:channel:chan-1"))
		}
		time.Sleep(10 * time.Millisecond)
	}
	mr.FastForward(250 * time.Millisecond)
	if !mr.Exists("quiz:channel:chan-1") {
		t.Fatalf("expected the refreshed lock to outlive its first TTL")
	}

	release()
	if mr.Exists("quiz:channel:chan-1") {
		t.Fatalf("expected release to remove the lock")
	}
	time.Sleep(150 * time.Millisecond)
	if mr.Exists("quiz:channel:chan-1") {
		t.Fatalf("released lock came back")
	}
}
