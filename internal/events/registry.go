package events

import (
	"context"
	"sort"
	"sync"
)

// Registry hands out one isolated Notifier per name. Tests and tools that run several
// engines in one process use it so their subscribers never see each other's events.
type Registry struct {
	mu        sync.Mutex
	opts      []Option
	notifiers map[string]*Notifier
}

// NewRegistry creates an empty registry; opts are applied to every notifier it builds.
func NewRegistry(opts ...Option) *Registry {
	return &Registry{opts: opts, notifiers: make(map[string]*Notifier)}
}

// Get returns the notifier registered under name, creating it on first use.
func (r *Registry) Get(name string) *Notifier {
	r.mu.Lock()
	defer r.mu.Unlock()
	n, ok := r.notifiers[name]
	if !ok {
		n = New(r.opts...)
		r.notifiers[name] = n
	}
	return n
}

// Drop forgets the notifier under name. Later Gets build a fresh one.
func (r *Registry) Drop(name string) {
	r.mu.Lock()
	delete(r.notifiers, name)
	r.mu.Unlock()
}

// Names lists the registered names in sorted order.
func (r *Registry) Names() []string {
	r.mu.Lock()
	names := make([]string, 0, len(r.notifiers))
	for name := range r.notifiers {
		names = append(names, name)
	}
	r.mu.Unlock()
	sort.Strings(names)
	return names
}

type notifierKey struct{}

// WithNotifier returns a copy of ctx carrying n.
func WithNotifier(ctx context.Context, n *Notifier) context.Context {
	return context.WithValue(ctx, notifierKey{}, n)
}

// FromContext returns the notifier stored by WithNotifier.
func FromContext(ctx context.Context) (*Notifier, bool) {
	n, ok := ctx.Value(notifierKey{}).(*Notifier)
	return n, ok && n != nil
}
