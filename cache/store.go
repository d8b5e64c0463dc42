package cache

import (
	"sort"
	"sync"

	"github.com/briangreenhill/devkit/hal"
	"github.com/rs/zerolog"
)

// Store maps canonical URLs to pre-cached entries.
//
// All access goes through one mutex. A scan pass holds it for its whole
// duration, so the Needed counts of one response are applied atomically
// with respect to concurrent Get calls and other scans.
type Store struct {
	mu      sync.Mutex
	entries map[string]*Entry
	canon   Canonicalizer
	log     zerolog.Logger
}

// NewStore creates an empty store.
func NewStore(canon Canonicalizer, log zerolog.Logger) *Store {
	return &Store{
		entries: make(map[string]*Entry),
		canon:   canon,
		log:     log,
	}
}

// SetCanonicalizer replaces the key function. Existing keys are kept as is.
func (s *Store) SetCanonicalizer(c Canonicalizer) {
	s.mu.Lock()
	s.canon = c
	s.mu.Unlock()
}

// SetLogger replaces the logger used for lifecycle events.
func (s *Store) SetLogger(l zerolog.Logger) {
	s.mu.Lock()
	s.log = l
	s.mu.Unlock()
}

// Key returns the canonical form of u.
func (s *Store) Key(u string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.canon.Canonical(u)
}

// Put records one embedding of payload under its self link. It reports
// false when payload has no self link.
func (s *Store) Put(entity string, payload *hal.Resource, meta hal.Metadata) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.put(entity, payload, meta)
}

func (s *Store) put(entity string, payload *hal.Resource, meta hal.Metadata) bool {
	self := payload.Self()
	if self == "" {
		return false
	}
	key := s.canon.Canonical(self)

	if e, ok := s.entries[key]; ok {
		e.Needed++
		s.log.Debug().
			Str("entity", entity).
			Str("url", key).
			Int("needed", e.Needed).
			Int("used", e.Used).
			Msg("increment resource counter")
		return true
	}

	s.entries[key] = &Entry{
		Key:         key,
		OriginalURL: self,
		Entity:      entity,
		Payload:     payload,
		Metadata:    meta,
		Needed:      1,
	}
	s.log.Debug().Str("entity", entity).Str("url", key).Msg("add resource")
	return true
}

// Get consumes one use of the entry for u. The returned value is a copy;
// the stored entry is removed once its uses are exhausted.
func (s *Store) Get(u string) (Entry, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := s.canon.Canonical(u)
	e, ok := s.entries[key]
	if !ok {
		return Entry{}, false
	}
	e.Used++
	out := *e
	if e.Used >= e.Needed {
		delete(s.entries, key)
		s.log.Debug().
			Str("entity", e.Entity).
			Str("url", key).
			Int("needed", e.Needed).
			Int("used", e.Used).
			Msg("remove resource")
	}
	return out, true
}

// Has reports whether Get would hit, consuming a use exactly like Get.
func (s *Store) Has(u string) bool {
	_, ok := s.Get(u)
	return ok
}

// Peek returns the entry for u without consuming it.
func (s *Store) Peek(u string) (Entry, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[s.canon.Canonical(u)]
	if !ok {
		return Entry{}, false
	}
	return *e, true
}

// Clear drops every entry and returns the removed keys in sorted order.
func (s *Store) Clear() []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	keys := make([]string, 0, len(s.entries))
	for k := range s.entries {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	s.entries = make(map[string]*Entry)
	return keys
}

// Len returns the number of live entries.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

// Snapshot copies the store contents.
func (s *Store) Snapshot() map[string]Entry {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make(map[string]Entry, len(s.entries))
	for k, e := range s.entries {
		out[k] = *e
	}
	return out
}
