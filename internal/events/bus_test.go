package events

import (
	"testing"
	"time"
)

func TestSubscribePublish(t *testing.T) {
	bus := NewBus()

	ch, unsub := bus.Subscribe(EventOrderPlaced, 4)
	defer unsub()

	bus.Publish(EventOrderPlaced, "payload")
	bus.Publish(EventOrderRejected, "other topic")

	select {
	case env := <-ch:
		if env.Event != EventOrderPlaced || env.Payload != "payload" {
			t.Fatalf("got %+v", env)
		}
	case <-time.After(time.Second):
		t.Fatal("no event delivered")
	}

	select {
	case env := <-ch:
		t.Fatalf("unexpected second event: %+v", env)
	default:
	}
}

func TestSubscribeAllSeesEveryTopic(t *testing.T) {
	bus := NewBus()

	ch, unsub := bus.SubscribeAll(4)
	defer unsub()

	bus.Publish(EventSignalReceived, 1)
	bus.Publish(EventRiskAlert, 2)

	for i := 0; i < 2; i++ {
		select {
		case <-ch:
		case <-time.After(time.Second):
			t.Fatalf("event %d not delivered", i)
		}
	}
}

func TestSlowSubscriberDoesNotBlockPublish(t *testing.T) {
	bus := NewBus()

	ch, unsub := bus.Subscribe(EventRiskAlert, 1)
	defer unsub()

	done := make(chan struct{})
	go func() {
		for i := 0; i < 100; i++ {
			bus.Publish(EventRiskAlert, i)
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("publish blocked on full subscriber")
	}
	<-ch
}

func TestUnsubscribeClosesChannel(t *testing.T) {
	bus := NewBus()

	ch, unsub := bus.Subscribe(EventTradeClosed, 1)
	if bus.Subscribers() != 1 {
		t.Fatalf("subscribers=%d, expected 1", bus.Subscribers())
	}
	unsub()

	if _, ok := <-ch; ok {
		t.Fatal("channel should be closed after unsubscribe")
	}
	if bus.Subscribers() != 0 {
		t.Fatalf("subscribers=%d after unsubscribe, expected 0", bus.Subscribers())
	}
	// Publishing after unsubscribe must not panic.
	bus.Publish(EventTradeClosed, nil)
}
