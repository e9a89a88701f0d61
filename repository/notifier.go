package repository

import (
	"slices"
	"sync"
)

// Notifier fans content events out to subscribers. Implementations embed it.
type Notifier struct {
	mu   sync.RWMutex
	subs []func(Event)
}

func (n *Notifier) Subscribe(fn func(Event)) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.subs = append(n.subs, fn)
}

// Publish calls every subscriber synchronously.
func (n *Notifier) Publish(ev Event) {
	n.mu.RLock()
	subs := slices.Clone(n.subs)
	n.mu.RUnlock()
	for _, fn := range subs {
		fn(ev)
	}
}
