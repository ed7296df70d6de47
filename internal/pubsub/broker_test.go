package pubsub

import (
	"encoding/json"
	"testing"
	"time"
)

func recv(t *testing.T, ch <-chan []byte) []byte {
	t.Helper()
	select {
	case msg := <-ch:
		return msg
	case <-time.After(time.Second):
		t.Fatal("no message arrived")
		return nil
	}
}

func TestPublishReachesEverySubscriber(t *testing.T) {
	b := NewBroker()
	topic := BattleTopic("b1")

	ch1, unsub1 := b.Subscribe(topic)
	defer unsub1()
	ch2, unsub2 := b.Subscribe(topic)
	defer unsub2()

	b.Publish(topic, Event{Type: "status", Data: "in_progress"})

	for _, ch := range []<-chan []byte{ch1, ch2} {
		var event Event
		if err := json.Unmarshal(recv(t, ch), &event); err != nil {
			t.Fatalf("unmarshal: %v", err)
		}
		if event.Type != "status" || event.Data != "in_progress" {
			t.Errorf("bad event: %+v", event)
		}
	}
}

func TestPublishSkipsOtherTopics(t *testing.T) {
	b := NewBroker()
	ch, unsub := b.Subscribe(BattleTopic("b1"))
	defer unsub()

	b.Publish(BattleTopic("b2"), Event{Type: "status"})

	select {
	case msg := <-ch:
		t.Fatalf("received a message for another battle: %s", msg)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestUnsubscribeStopsDelivery(t *testing.T) {
	b := NewBroker()
	topic := BattleTopic("b1")
	ch, unsub := b.Subscribe(topic)
	unsub()

	b.Publish(topic, Event{Type: "status"})

	select {
	case _, ok := <-ch:
		if ok {
			t.Fatal("received after unsubscribe")
		}
	case <-time.After(50 * time.Millisecond):
	}
}

func TestCloseTopicThenUnsubscribeIsSafe(t *testing.T) {
	b := NewBroker()
	topic := BattleTopic("b1")
	_, unsub := b.Subscribe(topic)

	b.CloseTopic(topic)
	unsub() // must not panic after the topic is gone

	b.Publish(topic, Event{Type: "status"}) // no subscribers left, no-op
}

func TestSlowSubscriberDoesNotBlockPublish(t *testing.T) {
	b := NewBroker()
	topic := BattleTopic("b1")
	_, unsub := b.Subscribe(topic)
	defer unsub()

	done := make(chan struct{})
	go func() {
		// Nobody drains the channel; publishing past its buffer must still
		// return.
		for i := 0; i < 500; i++ {
			b.Publish(topic, Event{Type: "tick"})
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("publish blocked on a slow subscriber")
	}
}
