package app

import (
	"context"
	"sync"
	"time"

	"guild-quiz-bot/internal/domain"
)

// Inbox hands the next message of an author in a channel to a waiting flow.
type Inbox struct {
	mu      sync.Mutex
	waiters map[string]chan domain.ChatMessage
}

func NewInbox() *Inbox {
	return &Inbox{waiters: make(map[string]chan domain.ChatMessage)}
}

func inboxKey(channelID, authorID string) string {
	return channelID + "/" + authorID
}

// Deliver reports whether a waiter consumed the message.
func (i *Inbox) Deliver(msg domain.ChatMessage) bool {
	i.mu.Lock()
	defer i.mu.Unlock()
	key := inboxKey(msg.ChannelID, msg.AuthorID)
	ch, ok := i.waiters[key]
	if !ok {
		return false
	}
	delete(i.waiters, key)
	ch <- msg
	return true
}

// Waiting reports whether a flow waits on the author in the channel.
func (i *Inbox) Waiting(channelID, authorID string) bool {
	i.mu.Lock()
	defer i.mu.Unlock()
	_, ok := i.waiters[inboxKey(channelID, authorID)]
	return ok
}

// Await blocks for the author's next message in the channel. It returns
// domain.ErrAuthoringTimeout when the clock fires first.
func (i *Inbox) Await(ctx context.Context, clock Clock, channelID, authorID string, timeout time.Duration) (domain.ChatMessage, error) {
	return i.Expect(channelID, authorID).Wait(ctx, clock, timeout)
}

// Expect registers a waiter for the author's next message in the channel
// right away, so a reply racing the prompt that asks for it is kept.
// The caller must Wait or Cancel.
func (i *Inbox) Expect(channelID, authorID string) *Reply {
	r := &Reply{
		inbox: i,
		key:   inboxKey(channelID, authorID),
		ch:    make(chan domain.ChatMessage, 1),
	}
	i.mu.Lock()
	i.waiters[r.key] = r.ch
	i.mu.Unlock()
	return r
}

// Reply is a pending expectation registered with an Inbox.
type Reply struct {
	inbox *Inbox
	key   string
	ch    chan domain.ChatMessage
}

// Cancel unregisters the waiter.
func (r *Reply) Cancel() {
	r.inbox.mu.Lock()
	if r.inbox.waiters[r.key] == r.ch {
		delete(r.inbox.waiters, r.key)
	}
	r.inbox.mu.Unlock()
}

// Wait blocks until the reply arrives, the clock fires or ctx ends, then
// unregisters the waiter.
func (r *Reply) Wait(ctx context.Context, clock Clock, timeout time.Duration) (domain.ChatMessage, error) {
	defer r.Cancel()

	timer := clock.After(timeout)
	select {
	case msg := <-r.ch:
		return msg, nil
	case <-timer:
	case <-ctx.Done():
		return domain.ChatMessage{}, ctx.Err()
	}
	// A reply delivered together with the timeout still counts.
	select {
	case msg := <-r.ch:
		return msg, nil
	default:
		return domain.ChatMessage{}, domain.ErrAuthoringTimeout
	}
}
