package eventbus

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPublishFansOut(t *testing.T) {
	t.Parallel()
	b := New()
	ch1, unsub1 := b.Subscribe(4)
	defer unsub1()
	ch2, unsub2 := b.Subscribe(4)
	defer unsub2()

	b.Publish(Event{Type: JobStarted, Job: "backup"})

	for _, ch := range []<-chan Event{ch1, ch2} {
		select {
		case ev := <-ch:
			assert.Equal(t, JobStarted, ev.Type)
			assert.Equal(t, "backup", ev.Job)
			assert.False(t, ev.Time.IsZero(), "Publish stamps the time when unset")
		case <-time.After(time.Second):
			t.Fatal("event not delivered")
		}
	}
}

func TestPublishNeverBlocks(t *testing.T) {
	t.Parallel()
	b := New()
	ch, unsub := b.Subscribe(1)
	defer unsub()

	// Nobody drains ch; the second publish must drop, not hang.
	done := make(chan struct{})
	go func() {
		b.Publish(Event{Type: JobArmed, Job: "a"})
		b.Publish(Event{Type: JobDisarmed, Job: "a"})
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Publish blocked on a full subscriber")
	}

	ev := <-ch
	assert.Equal(t, JobArmed, ev.Type)
	select {
	case extra := <-ch:
		t.Fatalf("overflow event %q should have been dropped", extra.Type)
	default:
	}
}

func TestUnsubscribeClosesChannel(t *testing.T) {
	t.Parallel()
	b := New()
	ch, unsub := b.Subscribe(1)
	unsub()
	unsub() // idempotent

	_, ok := <-ch
	require.False(t, ok, "unsubscribe closes the channel")

	// Publishing after unsubscribe reaches no one and must not panic.
	b.Publish(Event{Type: JobExited, Job: "gone"})
}

func TestPublishKeepsExplicitTime(t *testing.T) {
	t.Parallel()
	b := New()
	ch, unsub := b.Subscribe(1)
	defer unsub()

	when := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	b.Publish(Event{Type: JobMessage, Job: "m", Time: when})
	assert.True(t, (<-ch).Time.Equal(when))
}
