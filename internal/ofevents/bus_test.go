package ofevents

import "testing"

func TestNilBusPublishIsNoOp(t *testing.T) {
	var b *Bus
	b.Publish(Event{Kind: KindPhaseTransition})
}

func TestSubscribePublishUnsubscribe(t *testing.T) {
	b := NewBus()
	sub := b.Subscribe(4)

	b.Publish(Event{Source: SourceController, Kind: KindPhaseTransition})

	select {
	case ev := <-sub:
		if ev.Kind != KindPhaseTransition {
			t.Fatalf("got %v", ev.Kind)
		}
	default:
		t.Fatalf("expected buffered event to be available")
	}

	b.Unsubscribe(sub)
	if _, ok := <-sub; ok {
		t.Fatalf("expected channel to be closed after unsubscribe")
	}
}

func TestPublishDoesNotBlockOnFullSubscriber(t *testing.T) {
	b := NewBus()
	sub := b.Subscribe(1)
	b.Publish(Event{Kind: KindReplyTimeout})
	b.Publish(Event{Kind: KindReplyTimeout}) // should be dropped, not block

	if len(sub) != 1 {
		t.Fatalf("expected exactly one buffered event, got %d", len(sub))
	}
}
