package database

import (
	"context"
	"sync"

	"docsign/internal/docsign"
)

const subscriberBuffer = 64

type subscriber struct {
	ctx context.Context
	ch  chan docsign.Event
}

// feed fans committed changes out to subscribers. A slow subscriber delays
// writers until it catches up or its context ends.
type feed struct {
	mu      sync.RWMutex
	subs    map[int]*subscriber
	nextID  int
	closing chan struct{}
	closed  bool
}

func newFeed() *feed {
	return &feed{
		subs:    make(map[int]*subscriber),
		closing: make(chan struct{}),
	}
}

func (f *feed) subscribe(ctx context.Context) <-chan docsign.Event {
	f.mu.Lock()
	defer f.mu.Unlock()

	ch := make(chan docsign.Event, subscriberBuffer)
	if f.closed {
		close(ch)
		return ch
	}

	id := f.nextID
	f.nextID++
	f.subs[id] = &subscriber{ctx: ctx, ch: ch}

	go func() {
		select {
		case <-ctx.Done():
		case <-f.closing:
		}
		f.remove(id)
	}()
	return ch
}

func (f *feed) remove(id int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if sub, ok := f.subs[id]; ok {
		delete(f.subs, id)
		close(sub.ch)
	}
}

func (f *feed) publish(ev docsign.Event) {
	f.mu.RLock()
	defer f.mu.RUnlock()

	for _, sub := range f.subs {
		out := docsign.Event{Type: ev.Type, Table: ev.Table}
		if ev.Document != nil {
			out.Document = ev.Document.Clone()
		}
		if ev.Notification != nil {
			out.Notification = ev.Notification.Clone()
		}
		select {
		case sub.ch <- out:
		case <-sub.ctx.Done():
		case <-f.closing:
		}
	}
}

// close ends every subscription. Channels are closed by their watcher
// goroutines.
func (f *feed) close() {
	f.mu.Lock()
	if f.closed {
		f.mu.Unlock()
		return
	}
	f.closed = true
	close(f.closing)
	f.mu.Unlock()
}
