package memory

import (
	"context"
	"sync"
)

// ChannelLocks is an in-process implementation of app.ChannelLocks.
type ChannelLocks struct {
	mu    sync.Mutex
	held  map[string]uint64
	epoch uint64
}

func NewChannelLocks() *ChannelLocks {
	return &ChannelLocks{held: make(map[string]uint64)}
}

func (l *ChannelLocks) Acquire(_ context.Context, channelID string) (func(), bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, busy := l.held[channelID]; busy {
		return nil, false, nil
	}
	l.epoch++
	token := l.epoch
	l.held[channelID] = token

	var once sync.Once
	release := func() {
		once.Do(func() {
			l.mu.Lock()
			defer l.mu.Unlock()
			if l.held[channelID] == token {
				delete(l.held, channelID)
			}
		})
	}
	return release, true, nil
}

// Held reports whether channelID is currently locked.
func (l *ChannelLocks) Held(channelID string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	_, ok := l.held[channelID]
	return ok
}
