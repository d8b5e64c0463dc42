package cache

import "github.com/briangreenhill/devkit/hal"

// Scanner walks response bodies and captures eligible embedded children.
type Scanner struct {
	Rules Rules
}

// Scan walks body, the data of the response to origin, and records every
// eligible fixed child in s. meta is attached to entries created by this
// pass. It returns the number of embeddings recorded.
//
// Eligibility is always judged against origin, however deep the child sits.
func (sc Scanner) Scan(s *Store, body *hal.Resource, origin string, meta hal.Metadata) int {
	if !body.HasEmbedded() {
		return 0
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	w := walker{store: s, rules: sc.Rules, origin: origin, meta: meta}
	w.walk(body)
	return w.added
}

type walker struct {
	store  *Store
	rules  Rules
	origin string
	meta   hal.Metadata
	added  int
}

func (w *walker) walk(r *hal.Resource) {
	if !r.HasEmbedded() {
		return
	}

	for _, name := range r.Names() {
		child := r.Child(name)
		if child == nil {
			continue
		}

		switch {
		case r.HasSelf():
			switch child.Kind {
			case hal.Single, hal.ArrayWrapped:
				if w.rules.Allows(name, w.origin) && w.store.put(name, child.Resource, w.meta) {
					w.added++
				}
				if child.Kind == hal.ArrayWrapped {
					w.walkAll(child.Items)
				} else {
					w.walk(child.Resource)
				}
			case hal.Bare:
				w.walkAll(child.Items)
			}

		// list endpoints: entries without links of their own can still hold
		// addressable descendants
		case r.LinksWithoutSelf() && child.Kind == hal.Bare:
			w.walkAll(child.Items)
		}
	}
}

func (w *walker) walkAll(items []*hal.Resource) {
	for _, item := range items {
		w.walk(item)
	}
}
