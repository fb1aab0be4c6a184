// Package events carries "cash entries changed" notifications from the
// write path to whoever must refresh: the reconciliation view, the AMQP
// publisher, the sheet exporter.
package events

import (
	"context"
	"sort"
	"sync"
	"time"

	"caisse/internal/core"
)

// Op is the kind of change.
type Op string

const (
	OpCreated Op = "created"
	OpUpdated Op = "updated"
	OpDeleted Op = "deleted"
)

// Change describes one successful write. Date is empty for deletes when
// the deleted entry's date is unknown.
type Change struct {
	Op   Op        `json:"op"`
	ID   string    `json:"id"`
	Date string    `json:"date,omitempty"`
	At   time.Time `json:"at"`
}

// Day returns the calendar day the change affects, if known.
func (c Change) Day() (core.Date, bool) {
	return core.ParseDay(c.Date)
}

// Listener reacts to a change. It must not block for long.
type Listener func(ctx context.Context, c Change)

// Bus is a synchronous observer registry. Listeners run in subscription
// order on the notifying goroutine.
type Bus struct {
	mu        sync.RWMutex
	next      int
	listeners map[int]Listener
}

func NewBus() *Bus {
	return &Bus{listeners: map[int]Listener{}}
}

// Subscribe registers l and returns a function that unregisters it.
func (b *Bus) Subscribe(l Listener) (unsubscribe func()) {
	b.mu.Lock()
	id := b.next
	b.next++
	b.listeners[id] = l
	b.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.listeners, id)
			b.mu.Unlock()
		})
	}
}

// Notify delivers c to every listener. A zero At is set to now.
func (b *Bus) Notify(ctx context.Context, c Change) {
	if c.At.IsZero() {
		c.At = time.Now().UTC()
	}
	b.mu.RLock()
	ids := make([]int, 0, len(b.listeners))
	for id := range b.listeners {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	ls := make([]Listener, len(ids))
	for i, id := range ids {
		ls[i] = b.listeners[id]
	}
	b.mu.RUnlock()

	for _, l := range ls {
		l(ctx, c)
	}
}

// Len returns the number of registered listeners.
func (b *Bus) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.listeners)
}
