package redis

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// releaseScript deletes the lock only while it still carries the holder's token.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// refreshScript extends the lease only while the holder still owns it.
var refreshScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("PEXPIRE", KEYS[1], ARGV[2])
end
return 0
`)

// ChannelLocks is a Redis implementation of app.ChannelLocks, so that
// several bot instances never run two quiz rounds in one channel.
// A held lock is refreshed every third of its TTL, so the TTL only bounds
// how long a crashed holder keeps a channel busy.
type ChannelLocks struct {
	client *redis.Client
	ttl    time.Duration
}

func NewChannelLocks(client *redis.Client, ttl time.Duration) *ChannelLocks {
	return &ChannelLocks{client: client, ttl: ttl}
}

func (l *ChannelLocks) Acquire(ctx context.Context, channelID string) (func(), bool, error) {
	key := l.key(channelID)
	token := uuid.NewString()
	ok, err := l.client.SetNX(ctx, key, token, l.ttl).Result()
	if err != nil {
		return nil, false, err
	}
	if !ok {
		return nil, false, nil
	}

	stop := make(chan struct{})
	if l.ttl > 0 {
		go l.keepAlive(key, token, stop)
	}

	var once sync.Once
	release := func() {
		once.Do(func() {
			close(stop)
			// best-effort; the TTL reclaims the key otherwise
			_ = releaseScript.Run(context.Background(), l.client, []string{key}, token).Err()
		})
	}
	return release, true, nil
}

// keepAlive extends the lease until stop is closed or the lock is lost.
func (l *ChannelLocks) keepAlive(key, token string, stop <-chan struct{}) {
	ticker := time.NewTicker(l.ttl / 3)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), l.ttl/3)
			held, err := refreshScript.Run(ctx, l.client, []string{key}, token, l.ttl.Milliseconds()).Int()
			cancel()
			if err == nil && held == 0 {
				return
			}
		}
	}
}

func (l *ChannelLocks) key(channelID string) string {
	return "quiz:channel:" + channelID
}
