package pubsub

import (
	"encoding/json"
	"sync"

	"go.uber.org/zap"
)

// Broker is a simple in-memory pub/sub system carrying live battle events
// (status changes, newly ingested submissions) to websocket subscribers.
type Broker struct {
	mu          sync.RWMutex
	subscribers map[string][]chan []byte // topic -> list of subscriber channels
}

// Event is the envelope pushed to websocket clients.
type Event struct {
	Type string      `json:"type"`
	Data interface{} `json:"data"`
}

func NewBroker() *Broker {
	return &Broker{
		subscribers: make(map[string][]chan []byte),
	}
}

// Subscribe registers for live messages on a topic. The returned function
// removes the subscription and closes the channel.
func (b *Broker) Subscribe(topic string) (<-chan []byte, func()) {
	b.mu.Lock()
	ch := make(chan []byte, 128)
	b.subscribers[topic] = append(b.subscribers[topic], ch)
	b.mu.Unlock()

	unsubscribe := func() {
		b.mu.Lock()
		defer b.mu.Unlock()

		subscribers := b.subscribers[topic]
		for i, sub := range subscribers {
			if sub == ch {
				b.subscribers[topic] = append(subscribers[:i], subscribers[i+1:]...)
				close(ch)
				break
			}
		}
		zap.S().Debugf("unsubscribed from topic %s", topic)
	}

	zap.S().Debugf("new subscription to topic %s", topic)
	return ch, unsubscribe
}

// Publish broadcasts an event to all subscribers of a topic.
func (b *Broker) Publish(topic string, event Event) {
	msg, err := json.Marshal(event)
	if err != nil {
		zap.S().Errorf("failed to marshal %s event for topic %s: %v", event.Type, topic, err)
		return
	}

	b.mu.RLock()
	defer b.mu.RUnlock()

	for _, ch := range b.subscribers[topic] {
		select {
		case ch <- msg:
		default:
			// If a subscriber's channel is full, drop the message for them.
			// This prevents a slow client from blocking the publisher.
		}
	}
}

// CloseTopic closes all subscriber channels for a topic. Called when a
// battle completes or is cancelled.
func (b *Broker) CloseTopic(topic string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if subscribers, ok := b.subscribers[topic]; ok {
		for _, ch := range subscribers {
			close(ch)
		}
		delete(b.subscribers, topic)
		zap.S().Infof("closed pubsub topic %s", topic)
	}
}

// BattleTopic names the per-battle event stream.
func BattleTopic(battleID string) string {
	return "battle:" + battleID
}
