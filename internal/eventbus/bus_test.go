package eventbus

import (
	"testing"
	"time"
)

func TestPublishFiltersByType(t *testing.T) {
	t.Parallel()
	b := New()
	all, unsubAll := b.Subscribe(4)
	defer unsubAll()
	pub, unsubPub := b.Subscribe(4, PostPublished)
	defer unsubPub()

	b.Publish(Event{Type: PostCreated, PostID: "p1"})
	b.Publish(Event{Type: PostPublished, PostID: "p1", Results: map[string]bool{"twitter": true, "linkedin": false}})

	if got := len(all); got != 2 {
		t.Fatalf("unfiltered listener got %d events, want 2", got)
	}
	if got := len(pub); got != 1 {
		t.Fatalf("filtered listener got %d events, want 1", got)
	}
	e := <-pub
	if e.Type != PostPublished || e.Succeeded() != 1 {
		t.Fatalf("unexpected event %+v", e)
	}
	if e.Time.IsZero() {
		t.Fatal("Publish should stamp the event time")
	}
}

func TestPublishDropsWhenFull(t *testing.T) {
	t.Parallel()
	b := New()
	_, unsub := b.Subscribe(1)
	defer unsub()

	done := make(chan struct{})
	go func() {
		for i := 0; i < 3; i++ {
			b.Publish(Event{Type: PostCreated})
		}
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Publish blocked on a full listener")
	}
	if got := b.Dropped(); got != 2 {
		t.Fatalf("Dropped() = %d, want 2", got)
	}
}

func TestUnsubscribeClosesChannel(t *testing.T) {
	t.Parallel()
	b := New()
	ch, unsub := b.Subscribe(1)
	unsub()
	unsub()
	if _, ok := <-ch; ok {
		t.Fatal("channel should be closed")
	}
	b.Publish(Event{Type: PostCancelled})
}
