package eventbus

import (
	"testing"
	"time"
)

func TestPublishFanout(t *testing.T) {
	t.Parallel()
	b := New()
	a, unsubA := b.Subscribe(4)
	defer unsubA()
	c, unsubC := b.Subscribe(4)
	defer unsubC()

	b.Publish(Event{Type: TypeJobDue})
	for _, ch := range []<-chan Event{a, c} {
		select {
		case e := <-ch:
			if e.Type != TypeJobDue || e.Time.IsZero() {
				t.Fatalf("event = %+v", e)
			}
		case <-time.After(time.Second):
			t.Fatal("event not delivered")
		}
	}
}

func TestSubscribeFiltersTypes(t *testing.T) {
	t.Parallel()
	b := New()
	ch, unsub := b.Subscribe(4, TypeSyncCompleted)
	defer unsub()

	b.Publish(Event{Type: TypeJobDue})
	b.Publish(Event{Type: TypeSyncCompleted, Data: SyncCompleted{SourceID: "s1"}})

	e := <-ch
	if e.Type != TypeSyncCompleted {
		t.Fatalf("got %s, want %s", e.Type, TypeSyncCompleted)
	}
	select {
	case extra := <-ch:
		t.Fatalf("unexpected event %+v", extra)
	default:
	}
}

func TestPublishDropsWhenFull(t *testing.T) {
	t.Parallel()
	b := New()
	_, unsub := b.Subscribe(1)
	b.Publish(Event{Type: "x"})
	b.Publish(Event{Type: "x"})
	if b.Dropped() != 1 {
		t.Fatalf("dropped = %d, want 1", b.Dropped())
	}
	unsub()
	unsub()
	b.Publish(Event{Type: "x"})
}
