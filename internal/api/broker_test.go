package api

import (
	"testing"
	"time"

	"techroute/internal/model"
)

func TestBrokerPublishSubscribe(t *testing.T) {
	b := NewBroker()
	sid := "s1"
	ch := b.Subscribe(sid)
	other := b.Subscribe("s2")

	evt := model.Event{Type: "test.event", SolutionID: sid, Data: map[string]any{"x": 1}}
	b.Publish(sid, evt)

	select {
	case got := <-ch:
		if got.Type != evt.Type {
			t.Fatalf("got type %s, want %s", got.Type, evt.Type)
		}
		if got.Data["x"].(int) != 1 {
			t.Fatalf("bad payload: %+v", got.Data)
		}
	case <-time.After(200 * time.Millisecond):
		t.Fatal("timeout waiting for event")
	}
	select {
	case got := <-other:
		t.Fatalf("event leaked to another solution: %+v", got)
	default:
	}

	b.Unsubscribe(sid, ch)
	if _, ok := <-ch; ok {
		t.Fatal("channel should be closed after unsubscribe")
	}
	// a second unsubscribe is a no-op
	b.Unsubscribe(sid, ch)
	b.Publish(sid, evt)
}

func TestBrokerDropsWhenFull(t *testing.T) {
	b := NewBroker()
	ch := b.Subscribe("s")
	for i := 0; i < cap(ch)+5; i++ {
		b.Publish("s", model.Event{Type: "tick"})
	}
	if len(ch) != cap(ch) {
		t.Fatalf("want a full buffer, got %d/%d", len(ch), cap(ch))
	}
	b.Unsubscribe("s", ch)
}

func TestRedisBrokerBadURL(t *testing.T) {
	if _, err := NewRedisBroker("not-a-url"); err == nil {
		t.Fatal("want a parse error")
	}
}
