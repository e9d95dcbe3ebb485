package events

import (
	"sync"

	"go.uber.org/zap"
)

// Event is one published domain event.
type Event struct {
	Topic   string
	Payload any
}

// Bus is a small in-process topic fan-out for domain events. Publish
// never blocks: a subscriber that stops draining its channel loses
// events (with a warning) rather than stalling a watch task.
type Bus struct {
	mutex sync.RWMutex
	subs  map[string][]chan Event
}

func NewBus() *Bus {
	return &Bus{subs: make(map[string][]chan Event)}
}

// Subscribe returns a buffered channel receiving events for the topic.
func (b *Bus) Subscribe(topic string, buffer int) <-chan Event {
	if buffer <= 0 {
		buffer = 16
	}
	ch := make(chan Event, buffer)

	b.mutex.Lock()
	defer b.mutex.Unlock()
	b.subs[topic] = append(b.subs[topic], ch)
	return ch
}

// Publish delivers the event to all current subscribers of the topic.
func (b *Bus) Publish(topic string, payload any) {
	b.mutex.RLock()
	subscribers := b.subs[topic]
	b.mutex.RUnlock()

	event := Event{Topic: topic, Payload: payload}
	for _, ch := range subscribers {
		select {
		case ch <- event:
		default:
			zap.L().Warn("Dropping domain event for slow subscriber",
				zap.String("topic", topic))
		}
	}
}
