package memory

import (
	"context"
	"testing"
)

func TestChannelLocksLifecycle(t *testing.T) {
	locks := NewChannelLocks()
	ctx := context.Background()

	release, ok, err := locks.Acquire(ctx, "chan-1")
	if err != nil || !ok {
		t.Fatalf("expected first acquire to succeed, ok=%v err=%v", ok, err)
	}
	if _, ok, _ := locks.Acquire(ctx, "chan-1"); ok {
		t.Fatalf("expected second acquire on same channel to fail")
	}
	other, ok, _ := locks.Acquire(ctx, "chan-2")
	if !ok {
		t.Fatalf("expected other channel to be free")
	}
	defer other()

	release()
	release()
	if locks.Held("chan-1") {
		t.Fatalf("expected chan-1 released")
	}
	again, ok, _ := locks.Acquire(ctx, "chan-1")
	if !ok {
		t.Fatalf("expected reacquire after release")
	}
	// A stale release must not free the new holder.
	release()
	if !locks.Held("chan-1") {
		t.Fatalf("stale release freed the channel")
	}
	again()
}
