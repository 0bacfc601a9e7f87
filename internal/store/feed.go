package store

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/nimasrn/congregation-messenger/pkg/logger"
	goredis "github.com/redis/go-redis/v9"
)

// Feed fans record changes out to subscribers.
type Feed interface {
	Publish(ctx context.Context, collection string, change Change) error
	Subscribe(ctx context.Context, collection string, onChange func(Change)) (func(), error)
}

// LocalFeed delivers changes to subscribers of this process, synchronously.
type LocalFeed struct {
	mu     sync.RWMutex
	nextID int
	subs   map[string]map[int]func(Change)
}

func NewLocalFeed() *LocalFeed {
	return &LocalFeed{subs: make(map[string]map[int]func(Change))}
}

func (f *LocalFeed) Publish(_ context.Context, collection string, change Change) error {
	f.mu.RLock()
	handlers := make([]func(Change), 0, len(f.subs[collection]))
	for _, fn := range f.subs[collection] {
		handlers = append(handlers, fn)
	}
	f.mu.RUnlock()

	for _, fn := range handlers {
		fn(change)
	}
	return nil
}

func (f *LocalFeed) Subscribe(_ context.Context, collection string, onChange func(Change)) (func(), error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	id := f.nextID
	f.nextID++
	if f.subs[collection] == nil {
		f.subs[collection] = make(map[int]func(Change))
	}
	f.subs[collection][id] = onChange

	var once sync.Once
	return func() {
		once.Do(func() {
			f.mu.Lock()
			delete(f.subs[collection], id)
			f.mu.Unlock()
		})
	}, nil
}

// RedisFeed publishes changes on a pub/sub channel per collection so every
// replica sharing the database sees them.
type RedisFeed struct {
	client goredis.UniversalClient
	prefix string
}

func NewRedisFeed(client goredis.UniversalClient, prefix string) *RedisFeed {
	if prefix == "" {
		prefix = "store:changes:"
	}
	return &RedisFeed{client: client, prefix: prefix}
}

func (f *RedisFeed) channel(collection string) string {
	return f.prefix + collection
}

func (f *RedisFeed) Publish(ctx context.Context, collection string, change Change) error {
	payload, err := json.Marshal(change)
	if err != nil {
		return fmt.Errorf("failed to marshal change: %w", err)
	}
	if err := f.client.Publish(ctx, f.channel(collection), payload).Err(); err != nil {
		return fmt.Errorf("failed to publish change: %w", err)
	}
	return nil
}

// Subscribe returns once the subscription is confirmed by redis.
func (f *RedisFeed) Subscribe(ctx context.Context, collection string, onChange func(Change)) (func(), error) {
	ps := f.client.Subscribe(ctx, f.channel(collection))
	if _, err := ps.Receive(ctx); err != nil {
		_ = ps.Close()
		return nil, fmt.Errorf("failed to subscribe to %s: %w", collection, err)
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		for msg := range ps.Channel() {
			var change Change
			if err := json.Unmarshal([]byte(msg.Payload), &change); err != nil {
				logger.Warn("dropping malformed change", "collection", collection, "error", err)
				continue
			}
			onChange(change)
		}
	}()

	var once sync.Once
	return func() {
		once.Do(func() {
			_ = ps.Close()
			<-done
		})
	}, nil
}
