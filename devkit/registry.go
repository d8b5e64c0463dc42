package devkit

import (
	"sort"
	"sync"

	"github.com/briangreenhill/devkit/hal"
)

// Handler turns a decoded resource into an entity of one kind.
type Handler interface {
	// Kind returns the entity kind the handler produces.
	Kind() Kind

	// Parse builds an entity from r.
	Parse(r *hal.Resource) (*Entity, error)
}

type kindHandler struct {
	kind    Kind
	actions bool
}

func (h kindHandler) Kind() Kind { return h.kind }

func (h kindHandler) Parse(r *hal.Resource) (*Entity, error) {
	return parseEntity(h.kind, r, h.actions)
}

// customerHandler reads the customer out of the API root document, where
// it is embedded under "customer".
type customerHandler struct{}

func (customerHandler) Kind() Kind { return KindCustomer }

func (customerHandler) Parse(r *hal.Resource) (*Entity, error) {
	if c := r.First(string(KindCustomer)); c != nil {
		r = c
	}
	return parseEntity(KindCustomer, r, true)
}

// Registry manages the entity handlers a session parses with
type Registry struct {
	mu       sync.RWMutex
	handlers map[Kind]Handler
}

// NewRegistry creates an empty registry
func NewRegistry() *Registry {
	return &Registry{
		handlers: make(map[Kind]Handler),
	}
}

// DefaultRegistry returns a registry with a handler for every kind.
func DefaultRegistry() *Registry {
	r := NewRegistry()
	r.Register(customerHandler{})
	r.Register(kindHandler{kind: KindMedia, actions: true})
	r.Register(kindHandler{kind: KindUser, actions: true})
	r.Register(kindHandler{kind: KindStream})
	r.Register(kindHandler{kind: KindCategory})
	r.Register(kindHandler{kind: KindWidget})
	return r
}

// Register adds h, replacing any handler of the same kind
func (r *Registry) Register(h Handler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handlers[h.Kind()] = h
}

// Handler retrieves the handler for kind
func (r *Registry) Handler(kind Kind) (Handler, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	h, ok := r.handlers[kind]
	return h, ok
}

// List returns the registered kinds in sorted order
func (r *Registry) List() []Kind {
	r.mu.RLock()
	defer r.mu.RUnlock()
	kinds := make([]Kind, 0, len(r.handlers))
	for k := range r.handlers {
		kinds = append(kinds, k)
	}
	sort.Slice(kinds, func(i, j int) bool { return kinds[i] < kinds[j] })
	return kinds
}
