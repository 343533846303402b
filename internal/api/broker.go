package api

import (
	"sync"

	"techroute/internal/model"
)

// Broker fans solution events out to in-process subscribers.
type Broker struct {
	mu   sync.Mutex
	subs map[string]map[chan model.Event]struct{} // solutionId -> set of channels
}

func NewBroker() *Broker {
	return &Broker{subs: map[string]map[chan model.Event]struct{}{}}
}

func (b *Broker) Subscribe(solutionID string) chan model.Event {
	ch := make(chan model.Event, 8)
	b.mu.Lock()
	if b.subs[solutionID] == nil {
		b.subs[solutionID] = map[chan model.Event]struct{}{}
	}
	b.subs[solutionID][ch] = struct{}{}
	b.mu.Unlock()
	return ch
}

func (b *Broker) Unsubscribe(solutionID string, ch chan model.Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	m := b.subs[solutionID]
	if _, ok := m[ch]; !ok {
		return
	}
	delete(m, ch)
	if len(m) == 0 {
		delete(b.subs, solutionID)
	}
	close(ch)
}

// Publish never blocks; slow subscribers miss events.
func (b *Broker) Publish(solutionID string, evt model.Event) {
	b.mu.Lock()
	for ch := range b.subs[solutionID] {
		select {
		case ch <- evt:
		default:
		}
	}
	b.mu.Unlock()
}

func (b *Broker) Close() error { return nil }
