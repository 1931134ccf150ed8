package sqlite

import (
	"context"
	"errors"
	"testing"

	"guild-quiz-bot/internal/domain"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := Open(":memory:")
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestStoreQuestions(t *testing.T) {
	ctx := context.Background()
	store := openTestStore(t)

	q := domain.Question{
		ID:           "q1",
		Theme:        "Math",
		Prompt:       "What is 2 + 2?",
		Propositions: []string{"A) 3", "B) 4", "C) 5"},
		Answer:       "B",
		Author:       "Alice",
	}
	if err := store.InsertQuestion(ctx, q); err != nil {
		t.Fatalf("insert: %v", err)
	}

	loaded, err := store.LoadQuestions(ctx)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(loaded) != 1 {
		t.Fatalf("expected 1 question, got %d", len(loaded))
	}
	got := loaded[0]
	if got.Answer != "B" || len(got.Propositions) != 3 || got.Propositions[1] != "B) 4" || got.Author != "Alice" {
		t.Fatalf("unexpected question %+v", got)
	}
}

func TestStoreMembers(t *testing.T) {
	ctx := context.Background()
	store := openTestStore(t)

	if ok, err := store.Exists(ctx, "u1"); err != nil || ok {
		t.Fatalf("expected unknown member, ok=%v err=%v", ok, err)
	}
	if err := store.ApplyXPDelta(ctx, "u1", 25); !errors.Is(err, domain.ErrMemberNotFound) {
		t.Fatalf("expected ErrMemberNotFound, got %v", err)
	}

	if err := store.Register(ctx, domain.Member{ID: "u1", Name: "Alice"}); err != nil {
		t.Fatalf("register: %v", err)
	}
	if err := store.ApplyXPDelta(ctx, "u1", 120); err != nil {
		t.Fatalf("apply xp: %v", err)
	}
	if err := store.ApplyXPDelta(ctx, "u1", -20); err != nil {
		t.Fatalf("apply negative xp: %v", err)
	}

	m, err := store.Member(ctx, "u1")
	if err != nil {
		t.Fatalf("member: %v", err)
	}
	if m.Name != "Alice" || m.XP != 100 || m.Level != 2 {
		t.Fatalf("unexpected member %+v", m)
	}
	level, err := store.Level(ctx, "u1")
	if err != nil || level != 2 {
		t.Fatalf("expected level 2, got %d err=%v", level, err)
	}
}
