package events

import (
	"context"
	"testing"
)

func TestMemoryBusRoutesBySession(t *testing.T) {
	ctx := context.Background()
	bus := NewMemoryBus()
	a, _ := bus.Subscribe(ctx, "a")
	b, _ := bus.Subscribe(ctx, "b")
	defer b.Close()

	_ = bus.Publish(ctx, Event{Type: TypeStage, SessionID: "a", Stage: "ingesting"})

	select {
	case e := <-a.Events():
		if e.Stage != "ingesting" {
			t.Fatalf("got %+v", e)
		}
	default:
		t.Fatal("subscriber a got nothing")
	}
	select {
	case e := <-b.Events():
		t.Fatalf("subscriber b got %+v", e)
	default:
	}

	_ = a.Close()
	_ = a.Close()
	if _, ok := <-a.Events(); ok {
		t.Fatal("channel open after Close")
	}
	// publishing to a closed subscriber must not panic
	_ = bus.Publish(ctx, Event{SessionID: "a"})
}

func TestMemoryBusSlowSubscriber(t *testing.T) {
	ctx := context.Background()
	bus := NewMemoryBus()
	s, _ := bus.Subscribe(ctx, "a")
	defer s.Close()
	for i := 0; i < subscriberBuffer*2; i++ {
		_ = bus.Publish(ctx, Event{SessionID: "a"})
	}
	if n := len(s.Events()); n != subscriberBuffer {
		t.Fatalf("buffered %d", n)
	}
}
