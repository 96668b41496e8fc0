// Package hook maps message-type labels to the callbacks that handle them.
//
// Labels are case-insensitive: "Research", "RESEARCH" and "research" all
// name the same hook. Handlers are append-only and are invoked in the order
// they were registered.
package hook

import (
	"sort"
	"sync"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// Handler receives the payload of a dispatched message.
type Handler func(payload any)

// Registry holds the handler lists keyed by normalized label.
type Registry struct {
	mu    sync.RWMutex
	hooks map[string][]Handler
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		hooks: make(map[string][]Handler),
	}
}

// Register appends h to the handler list of every label given. A label that
// already has handlers keeps them; h is added after them.
func (r *Registry) Register(h Handler, labels ...string) {
	if h == nil || len(labels) == 0 {
		return
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	for _, label := range labels {
		key := normalize(label)
		r.hooks[key] = append(r.hooks[key], h)
	}
}

// RegisterOne is Register for a single label.
func (r *Registry) RegisterOne(label string, h Handler) {
	r.Register(h, label)
}

// Dispatch invokes every handler registered for label, in registration
// order, and returns how many ran. Unknown labels are a no-op.
func (r *Registry) Dispatch(label string, payload any) int {
	r.mu.RLock()
	handlers := r.hooks[normalize(label)]
	r.mu.RUnlock()

	// handlers is append-only, so the slice header captured above stays valid
	// even if Register runs concurrently.
	for _, h := range handlers {
		h(payload)
	}
	return len(handlers)
}

// Handlers returns the number of handlers registered for label.
func (r *Registry) Handlers(label string) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.hooks[normalize(label)])
}

// Labels returns the registered labels in sorted order.
func (r *Registry) Labels() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	labels := make([]string, 0, len(r.hooks))
	for label := range r.hooks {
		labels = append(labels, label)
	}
	sort.Strings(labels)
	return labels
}

func normalize(label string) string {
	// A Caser keeps state between calls, so one is built per call.
	return cases.Lower(language.Und).String(label)
}
