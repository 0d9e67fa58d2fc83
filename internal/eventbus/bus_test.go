package eventbus

import "testing"

func TestSubscribeFiltersTypes(t *testing.T) {
	b := New()
	all, unsubAll := b.Subscribe(4)
	defer unsubAll()
	only, unsubOnly := b.Subscribe(4, "order.completed")
	defer unsubOnly()

	b.Publish(Event{Type: "order.submitted"})
	b.Publish(Event{Type: "order.completed"})

	if len(all) != 2 {
		t.Fatalf("unfiltered subscriber got %d events, want 2", len(all))
	}
	if len(only) != 1 {
		t.Fatalf("filtered subscriber got %d events, want 1", len(only))
	}
	if e := <-only; e.Type != "order.completed" || e.Time.IsZero() {
		t.Fatalf("unexpected event %+v", e)
	}
}

func TestPublishDropsWhenFull(t *testing.T) {
	b := New()
	_, unsub := b.Subscribe(1)
	defer unsub()

	b.Publish(Event{Type: "a"})
	b.Publish(Event{Type: "b"})
	if d := b.Dropped(); d != 1 {
		t.Fatalf("dropped = %d, want 1", d)
	}
}

func TestUnsubscribeClosesAndIsIdempotent(t *testing.T) {
	b := New()
	ch, unsub := b.Subscribe(1)
	unsub()
	unsub()
	if _, ok := <-ch; ok {
		t.Fatal("channel should be closed")
	}
	b.Publish(Event{Type: "a"})
}
