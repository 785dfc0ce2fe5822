package observer

import (
	"strconv"
	"sync"
	"time"
)

// Entry is one applied event re-published on the local debug stream.
type Entry struct {
	EventID  string `json:"event_id"`
	Event    string `json:"event"`
	ServerTS int64  `json:"server_ts"`
	Data     any    `json:"data"`
}

// Rebroadcast is a bounded ring of applied events with Last-Event-ID
// replay, feeding the local /api/events stream. It is the only
// observer surface safe to touch from other goroutines.
type Rebroadcast struct {
	mu       sync.Mutex
	nextID   int64
	max      int
	entries  []Entry
	watchers map[chan Entry]struct{}
	closed   bool
}

func NewRebroadcast(max int) *Rebroadcast {
	if max <= 0 {
		max = 256
	}
	return &Rebroadcast{
		max:      max,
		watchers: map[chan Entry]struct{}{},
	}
}

func (b *Rebroadcast) Append(event string, data any) Entry {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return Entry{}
	}
	b.nextID++
	e := Entry{
		EventID:  strconv.FormatInt(b.nextID, 10),
		Event:    event,
		ServerTS: time.Now().UnixMilli(),
		Data:     data,
	}
	b.entries = append(b.entries, e)
	if len(b.entries) > b.max {
		b.entries = b.entries[len(b.entries)-b.max:]
	}
	for ch := range b.watchers {
		select {
		case ch <- e:
		default: // slow watcher loses the event; replay covers it
		}
	}
	return e
}

// ReplayAfter returns buffered entries newer than lastEventID, or
// everything still buffered when the id is absent or unparseable.
func (b *Rebroadcast) ReplayAfter(lastEventID string) []Entry {
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.entries) == 0 {
		return nil
	}
	last, err := strconv.ParseInt(lastEventID, 10, 64)
	if lastEventID == "" || err != nil {
		out := make([]Entry, len(b.entries))
		copy(out, b.entries)
		return out
	}
	out := make([]Entry, 0, len(b.entries))
	for _, e := range b.entries {
		if id, _ := strconv.ParseInt(e.EventID, 10, 64); id > last {
			out = append(out, e)
		}
	}
	return out
}

func (b *Rebroadcast) Subscribe() chan Entry {
	ch := make(chan Entry, 32)
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		close(ch)
		return ch
	}
	b.watchers[ch] = struct{}{}
	return ch
}

func (b *Rebroadcast) Unsubscribe(ch chan Entry) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.watchers[ch]; ok {
		delete(b.watchers, ch)
		close(ch)
	}
}

func (b *Rebroadcast) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	for ch := range b.watchers {
		close(ch)
		delete(b.watchers, ch)
	}
}
