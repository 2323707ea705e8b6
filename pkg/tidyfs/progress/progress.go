// Package progress fans scan progress and file change events out to
// subscribers. Delivery is lossy by design: each subscriber owns a
// bounded buffer, and when it falls behind the oldest undelivered
// event is evicted and counted instead of blocking the producer.
package progress

import (
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

// EventType names the kind of event being broadcast.
type EventType int

const (
	EventScanProgress EventType = iota
	EventCreated
	EventModified
	EventRemoved
	EventRenamed
)

func (t EventType) String() string {
	switch t {
	case EventScanProgress:
		return "progress"
	case EventCreated:
		return "created"
	case EventModified:
		return "modified"
	case EventRemoved:
		return "removed"
	case EventRenamed:
		return "renamed"
	default:
		return "unknown"
	}
}

// Event is one broadcast item. Count is set for scan progress; Size,
// ModTime, and IsDir are set for file events where the path was
// statable.
type Event struct {
	Type    EventType
	Path    string
	Count   int64
	Size    int64
	ModTime time.Time
	IsDir   bool
}

// DefaultBuffer is the per-subscriber buffer size when the caller
// passes zero.
const DefaultBuffer = 100

// Subscriber receives matching events on a bounded channel.
type Subscriber struct {
	ID   string
	Root string

	events  chan Event
	dropped atomic.Int64
}

// Events returns the receive side of the subscriber's buffer. The
// channel closes on Unsubscribe or Close.
func (s *Subscriber) Events() <-chan Event { return s.events }

// Dropped reports how many events were evicted because this
// subscriber fell behind.
func (s *Subscriber) Dropped() int64 { return s.dropped.Load() }

// Broadcaster distributes events to subscribers.
type Broadcaster struct {
	mu     sync.RWMutex
	subs   map[string]*Subscriber
	closed bool
}

// New creates an empty broadcaster.
func New() *Broadcaster {
	return &Broadcaster{subs: make(map[string]*Subscriber)}
}

// Subscribe registers a subscriber scoped to root; an empty root
// matches every event. A buffer of zero or less selects
// DefaultBuffer. Returns nil after Close.
func (b *Broadcaster) Subscribe(root string, buffer int) *Subscriber {
	if buffer <= 0 {
		buffer = DefaultBuffer
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return nil
	}
	sub := &Subscriber{
		ID:     uuid.NewString(),
		Root:   root,
		events: make(chan Event, buffer),
	}
	b.subs[sub.ID] = sub
	return sub
}

// Unsubscribe removes a subscriber and closes its channel.
func (b *Broadcaster) Unsubscribe(id string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if sub, ok := b.subs[id]; ok {
		close(sub.events)
		delete(b.subs, id)
	}
}

// Notify delivers an event to every subscriber whose root covers its
// path.
func (b *Broadcaster) Notify(ev Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return
	}
	for _, sub := range b.subs {
		if covers(sub.Root, ev.Path) {
			deliver(sub, ev)
		}
	}
}

// NotifyScan publishes one scanner progress tick.
func (b *Broadcaster) NotifyScan(count int64, path string) {
	b.Notify(Event{Type: EventScanProgress, Path: path, Count: count})
}

// SubscriberCount returns the number of active subscribers.
func (b *Broadcaster) SubscriberCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}

// Close closes the broadcaster and every subscriber channel. Further
// Notify and Subscribe calls are no-ops.
func (b *Broadcaster) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return
	}
	b.closed = true
	for _, sub := range b.subs {
		close(sub.events)
	}
	b.subs = make(map[string]*Subscriber)
}

// deliver enqueues one event. A full buffer evicts the oldest
// undelivered event first, so a stalled subscriber sees the most
// recent window rather than a stale prefix.
func deliver(sub *Subscriber, ev Event) {
	for {
		select {
		case sub.events <- ev:
			return
		default:
		}
		select {
		case <-sub.events:
			sub.dropped.Add(1)
		default:
		}
	}
}

// covers reports whether path lies at or under root. An empty root
// covers everything.
func covers(root, path string) bool {
	if root == "" || path == root {
		return true
	}
	if !strings.HasPrefix(path, root) {
		return false
	}
	return len(path) > len(root) && path[len(root)] == filepath.Separator
}
