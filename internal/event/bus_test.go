package event

import (
	"sync"
	"testing"
	"time"
)

func TestBus_PublishReachesAllSubscribers(t *testing.T) {
	bus := NewBus()
	defer bus.Close()

	a := bus.Subscribe()
	b := bus.Subscribe()

	bus.Publish(Event{Kind: KindDeviceOnline, Hostname: "front-door"})

	for _, ch := range []<-chan Event{a, b} {
		select {
		case ev := <-ch:
			if ev.Kind != KindDeviceOnline {
				t.Errorf("Kind = %q, want %q", ev.Kind, KindDeviceOnline)
			}
			if ev.Hostname != "front-door" {
				t.Errorf("Hostname = %q, want %q", ev.Hostname, "front-door")
			}
			if ev.Timestamp.IsZero() {
				t.Error("Timestamp not filled in")
			}
		case <-time.After(time.Second):
			t.Fatal("timed out waiting for event")
		}
	}
}

func TestBus_SlowSubscriberNeverBlocksPublish(t *testing.T) {
	bus := NewBus()
	defer bus.Close()

	slow := bus.Subscribe()
	fast := bus.Subscribe()

	// Overfill the slow subscriber's buffer without draining it.
	for i := 0; i < subscriberBufferSize*2; i++ {
		bus.Publish(Event{Kind: KindAccess, Hostname: "lab-door"})
	}

	// The fast subscriber still has a full buffer of events to drain.
	drained := 0
	for {
		select {
		case <-fast:
			drained++
			continue
		default:
		}
		break
	}
	if drained != subscriberBufferSize {
		t.Errorf("fast subscriber drained %d events, want %d", drained, subscriberBufferSize)
	}

	if len(slow) != subscriberBufferSize {
		t.Errorf("slow subscriber buffered %d events, want %d", len(slow), subscriberBufferSize)
	}
}

func TestBus_UnsubscribeClosesChannel(t *testing.T) {
	bus := NewBus()
	defer bus.Close()

	ch := bus.Subscribe()
	if got := bus.SubscriberCount(); got != 1 {
		t.Fatalf("SubscriberCount() = %d, want 1", got)
	}

	bus.Unsubscribe(ch)

	if _, open := <-ch; open {
		t.Error("channel still open after Unsubscribe")
	}
	if got := bus.SubscriberCount(); got != 0 {
		t.Errorf("SubscriberCount() = %d, want 0", got)
	}

	// Removing an already-removed subscriber must not panic.
	bus.Unsubscribe(ch)
}

func TestBus_PublishRacesSubscriberTeardown(t *testing.T) {
	bus := NewBus()
	defer bus.Close()

	done := make(chan struct{})

	// Publishers hammer the bus while subscribers churn. A send on a
	// channel closed by Unsubscribe would panic the publisher goroutine
	// and fail the test.
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-done:
					return
				default:
					bus.Publish(Event{Kind: KindDeviceOnline, Hostname: "front-door"})
				}
			}
		}()
	}

	for i := 0; i < 200; i++ {
		ch := bus.Subscribe()
		bus.Unsubscribe(ch)
	}

	close(done)
	wg.Wait()
}

func TestBus_CloseIsIdempotent(t *testing.T) {
	bus := NewBus()
	ch := bus.Subscribe()

	bus.Close()
	bus.Close()

	if _, open := <-ch; open {
		t.Error("channel still open after Close")
	}

	// Post-close operations are no-ops.
	bus.Publish(Event{Kind: KindAccess})
	dead := bus.Subscribe()
	if _, open := <-dead; open {
		t.Error("Subscribe after Close returned an open channel")
	}
}
