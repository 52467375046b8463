package feed

import (
	"sync"
	"sync/atomic"

	"github.com/rwandadisasteralert/alert-engine/internal/models"
)

// Broadcaster fans published alerts out to connected web-feed listeners
// (the SSE stream). Slow listeners are skipped rather than back-pressuring
// dispatch.
type Broadcaster struct {
	listeners map[uint64]chan *models.Alert
	nextID    atomic.Uint64
	mu        sync.RWMutex
}

func NewBroadcaster() *Broadcaster {
	return &Broadcaster{
		listeners: make(map[uint64]chan *models.Alert),
	}
}

func (b *Broadcaster) Subscribe() (uint64, chan *models.Alert) {
	id := b.nextID.Add(1)
	ch := make(chan *models.Alert, 16)

	b.mu.Lock()
	b.listeners[id] = ch
	b.mu.Unlock()

	return id, ch
}

func (b *Broadcaster) Unsubscribe(id uint64) {
	b.mu.Lock()
	if ch, ok := b.listeners[id]; ok {
		close(ch)
		delete(b.listeners, id)
	}
	b.mu.Unlock()
}

func (b *Broadcaster) Publish(a *models.Alert) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	for _, ch := range b.listeners {
		select {
		case ch <- a:
		default:
			// Skip slow listeners
		}
	}
}

func (b *Broadcaster) ListenerCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.listeners)
}

// Close closes all listener channels, causing streams to exit gracefully.
func (b *Broadcaster) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	for id, ch := range b.listeners {
		close(ch)
		delete(b.listeners, id)
	}
}
