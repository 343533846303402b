package api

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	redis "github.com/redis/go-redis/v9"

	"techroute/internal/model"
)

type EventBroker interface {
	Subscribe(solutionID string) chan model.Event
	Unsubscribe(solutionID string, ch chan model.Event)
	Publish(solutionID string, evt model.Event)
	Close() error
}

// RedisBroker implements EventBroker over Redis Pub/Sub so every API replica
// sees the events of every solution.
type RedisBroker struct {
	rdb *redis.Client

	mu   sync.Mutex
	subs map[chan model.Event]*redis.PubSub
}

func NewRedisBroker(url string) (*RedisBroker, error) {
	opt, err := redis.ParseURL(url)
	if err != nil {
		return nil, err
	}
	rdb := redis.NewClient(opt)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, err
	}
	return &RedisBroker{rdb: rdb, subs: map[chan model.Event]*redis.PubSub{}}, nil
}

// Subscribe returns a channel closed once Unsubscribe is called or the
// connection drops.
func (b *RedisBroker) Subscribe(solutionID string) chan model.Event {
	ch := make(chan model.Event, 16)
	ctx := context.Background()
	ps := b.rdb.Subscribe(ctx, chanName(solutionID))
	// initial consume to ensure subscription
	_, _ = ps.Receive(ctx)
	b.mu.Lock()
	b.subs[ch] = ps
	b.mu.Unlock()
	go func() {
		defer close(ch)
		for msg := range ps.Channel() {
			var evt model.Event
			if err := json.Unmarshal([]byte(msg.Payload), &evt); err == nil {
				select {
				case ch <- evt:
				default:
				}
			}
		}
	}()
	return ch
}

func (b *RedisBroker) Unsubscribe(solutionID string, ch chan model.Event) {
	b.mu.Lock()
	ps, ok := b.subs[ch]
	delete(b.subs, ch)
	b.mu.Unlock()
	if ok {
		_ = ps.Close()
	}
}

func (b *RedisBroker) Publish(solutionID string, evt model.Event) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	data, _ := json.Marshal(evt)
	_ = b.rdb.Publish(ctx, chanName(solutionID), data).Err()
}

func (b *RedisBroker) Close() error { return b.rdb.Close() }

func chanName(solutionID string) string { return "solution:" + solutionID }
