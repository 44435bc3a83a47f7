package runtime

import (
	"errors"
	"fmt"
	"sort"
	"sync"
)

var ErrDuplicateHandler = errors.New("job handler already registered")

// Handler runs one job type. Run returning nil marks the job succeeded
// unless the handler already moved it to another state through the Context.
type Handler interface {
	Type() string
	Run(ctx *Context) error
}

// Registry maps job types to handlers. It is filled at startup and read by
// every worker goroutine.
type Registry struct {
	mu       sync.RWMutex
	handlers map[string]Handler
}

func NewRegistry() *Registry {
	return &Registry{handlers: map[string]Handler{}}
}

// Register adds handlers in order and stops at the first invalid or
// duplicate one; handlers before it stay registered.
func (r *Registry) Register(hs ...Handler) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, h := range hs {
		if h == nil {
			return errors.New("register: nil handler")
		}
		jobType := h.Type()
		if jobType == "" {
			return fmt.Errorf("register %T: empty job type", h)
		}
		if _, dup := r.handlers[jobType]; dup {
			return fmt.Errorf("register %s: %w", jobType, ErrDuplicateHandler)
		}
		r.handlers[jobType] = h
	}
	return nil
}

func (r *Registry) Get(jobType string) (Handler, bool) {
	r.mu.RLock()
	h, ok := r.handlers[jobType]
	r.mu.RUnlock()
	return h, ok
}

// Types lists registered job types, sorted.
func (r *Registry) Types() []string {
	r.mu.RLock()
	out := make([]string, 0, len(r.handlers))
	for jobType := range r.handlers {
		out = append(out, jobType)
	}
	r.mu.RUnlock()
	sort.Strings(out)
	return out
}
