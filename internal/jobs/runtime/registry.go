package runtime

import (
	"fmt"
	"sync"
)

// Handler consumes one tube's messages. Each Run call owns its task fully: a
// task is either processed to completion (enqueueing at most one follow-up
// task) or its error is surfaced and the broker's redelivery policy decides
// what happens next.
type Handler interface {
	Tube() string
	Run(jc *Context) error
}

type Registry struct {
	mu       sync.RWMutex
	handlers map[string]Handler
}

func NewRegistry() *Registry {
	return &Registry{handlers: make(map[string]Handler)}
}

func (r *Registry) Register(h Handler) error {
	if h == nil {
		return fmt.Errorf("nil handler")
	}
	t := h.Tube()
	if t == "" {
		return fmt.Errorf("handler Tube() is empty")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.handlers[t]; exists {
		return fmt.Errorf("handler already registered for tube=%s", t)
	}
	r.handlers[t] = h
	return nil
}

func (r *Registry) Get(tube string) (Handler, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	h, ok := r.handlers[tube]
	return h, ok
}

func (r *Registry) Tubes() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.handlers))
	for t := range r.handlers {
		out = append(out, t)
	}
	return out
}
