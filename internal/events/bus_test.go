package events

import (
	"testing"
	"time"
)

func TestPublishReachesAllSubscribers(t *testing.T) {
	bus := NewBus()
	first := bus.Subscribe("deposit:activated", 1)
	second := bus.Subscribe("deposit:activated", 1)
	other := bus.Subscribe("deposit:timeout", 1)

	bus.Publish("deposit:activated", "payload")

	for _, ch := range []<-chan Event{first, second} {
		select {
		case ev := <-ch:
			if ev.Topic != "deposit:activated" || ev.Payload != "payload" {
				t.Errorf("unexpected event %+v", ev)
			}
		case <-time.After(time.Second):
			t.Fatal("subscriber did not receive event")
		}
	}

	select {
	case ev := <-other:
		t.Errorf("subscriber of another topic received %+v", ev)
	default:
	}
}

func TestPublishNeverBlocks(t *testing.T) {
	bus := NewBus()
	bus.Subscribe("deposit:timeout", 1)

	done := make(chan struct{})
	go func() {
		// Second publish overflows the buffer of the idle subscriber;
		// it must be dropped, not block.
		bus.Publish("deposit:timeout", 1)
		bus.Publish("deposit:timeout", 2)
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Publish blocked on a slow subscriber")
	}
}

func TestPublishWithoutSubscribers(t *testing.T) {
	bus := NewBus()
	bus.Publish("deposit:completed", nil) // must not panic
}
