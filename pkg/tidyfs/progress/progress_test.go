package progress

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSubscribe(t *testing.T) {
	b := New()
	defer b.Close()

	sub := b.Subscribe("/data/photos", 0)
	require.NotNil(t, sub)
	assert.NotEmpty(t, sub.ID)
	assert.Equal(t, "/data/photos", sub.Root)
	assert.Equal(t, 1, b.SubscriberCount())
}

func TestNotifyMatchingRoot(t *testing.T) {
	b := New()
	defer b.Close()

	sub := b.Subscribe("/data/photos", 0)
	b.Notify(Event{Type: EventCreated, Path: "/data/photos/cat.jpg", Size: 2048})

	select {
	case ev := <-sub.Events():
		assert.Equal(t, EventCreated, ev.Type)
		assert.Equal(t, "/data/photos/cat.jpg", ev.Path)
		assert.Equal(t, int64(2048), ev.Size)
	case <-time.After(100 * time.Millisecond):
		t.Fatal("expected event not received")
	}
}

func TestNotifyOutsideRootFiltered(t *testing.T) {
	b := New()
	defer b.Close()

	sub := b.Subscribe("/data/photos", 0)

	// A sibling sharing the root as a string prefix must not match.
	b.Notify(Event{Type: EventCreated, Path: "/data/photos-old/cat.jpg"})
	b.Notify(Event{Type: EventCreated, Path: "/other/cat.jpg"})

	select {
	case ev := <-sub.Events():
		t.Fatalf("unexpected event for %s", ev.Path)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestNotifyEmptyRootSeesAll(t *testing.T) {
	b := New()
	defer b.Close()

	sub := b.Subscribe("", 0)
	b.Notify(Event{Type: EventModified, Path: "/anywhere/at/all.txt"})

	select {
	case ev := <-sub.Events():
		assert.Equal(t, "/anywhere/at/all.txt", ev.Path)
	case <-time.After(100 * time.Millisecond):
		t.Fatal("expected event not received")
	}
}

func TestDropOldestWhenFull(t *testing.T) {
	b := New()
	defer b.Close()

	sub := b.Subscribe("", 2)
	for i := int64(1); i <= 5; i++ {
		b.NotifyScan(i, "/scan")
	}

	// The buffer holds the most recent window; the stale prefix was
	// evicted and counted.
	first := <-sub.Events()
	second := <-sub.Events()
	assert.Equal(t, int64(4), first.Count)
	assert.Equal(t, int64(5), second.Count)
	assert.Equal(t, int64(3), sub.Dropped())
}

func TestNotifyScan(t *testing.T) {
	b := New()
	defer b.Close()

	sub := b.Subscribe("", 0)
	b.NotifyScan(42, "/data/docs/report.pdf")

	ev := <-sub.Events()
	assert.Equal(t, EventScanProgress, ev.Type)
	assert.Equal(t, int64(42), ev.Count)
	assert.Equal(t, "/data/docs/report.pdf", ev.Path)
}

func TestUnsubscribeClosesChannel(t *testing.T) {
	b := New()
	defer b.Close()

	sub := b.Subscribe("", 0)
	b.Unsubscribe(sub.ID)

	_, ok := <-sub.Events()
	assert.False(t, ok, "channel should be closed after unsubscribe")
	assert.Zero(t, b.SubscriberCount())
}

func TestCloseClosesAll(t *testing.T) {
	b := New()

	sub := b.Subscribe("", 0)
	b.Close()

	_, ok := <-sub.Events()
	assert.False(t, ok, "channel should be closed after Close")

	// A closed broadcaster refuses new subscribers and drops events.
	assert.Nil(t, b.Subscribe("", 0))
	b.Notify(Event{Type: EventCreated, Path: "/late.txt"})
}
