package notify

import "testing"

func TestBus_PublishDeliversToSubscriber(t *testing.T) {
	b := NewBus()
	ch, unsubscribe := b.Subscribe(4)
	defer unsubscribe()

	b.Publish(Event{Kind: ChildFaulted, Nexus: "nexus-0", ChildURI: "aio:///tmp/c0"})

	select {
	case ev := <-ch:
		if ev.Kind != ChildFaulted || ev.Nexus != "nexus-0" {
			t.Fatalf("unexpected event: %+v", ev)
		}
	default:
		t.Fatal("expected event to be delivered")
	}
}

func TestBus_UnsubscribeStopsDelivery(t *testing.T) {
	b := NewBus()
	ch, unsubscribe := b.Subscribe(4)
	unsubscribe()

	b.Publish(Event{Kind: RebuildComplete})

	if _, ok := <-ch; ok {
		t.Fatal("expected channel to be closed after unsubscribe")
	}
	if b.SubscriberCount() != 0 {
		t.Fatal("expected no subscribers after unsubscribe")
	}
}

func TestBus_FullBufferDropsRatherThanBlocks(t *testing.T) {
	b := NewBus()
	ch, unsubscribe := b.Subscribe(1)
	defer unsubscribe()

	b.Publish(Event{Kind: ChildOnline})
	b.Publish(Event{Kind: ChildOnline})

	if len(ch) != 1 {
		t.Fatalf("expected buffer to hold exactly 1 event, got %d", len(ch))
	}
}

func TestBus_MultipleSubscribersEachGetEvent(t *testing.T) {
	b := NewBus()
	ch1, unsub1 := b.Subscribe(4)
	ch2, unsub2 := b.Subscribe(4)
	defer unsub1()
	defer unsub2()

	b.Publish(Event{Kind: NexusStateChanged})

	for _, ch := range []<-chan Event{ch1, ch2} {
		select {
		case <-ch:
		default:
			t.Fatal("expected every subscriber to receive the event")
		}
	}
}
