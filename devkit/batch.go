package devkit

import (
	"context"
	"fmt"
	"strconv"
	"sync"
)

// MediaBatch pages through the media of a stream, category or customer.
type MediaBatch struct {
	s          *Session
	limit      int
	rightsOnly bool

	mu       sync.Mutex
	fetching bool
	current  string
	prev     string
	next     string
}

// NewMediaBatch pages through e's media list for sorting ("recent" when
// empty), limit items at a time (20 when not positive). With rightsOnly
// only media whose rights were granted is returned.
func NewMediaBatch(s *Session, e *Entity, sorting string, limit int, rightsOnly bool) *MediaBatch {
	if sorting == "" {
		sorting = "recent"
	}
	if limit <= 0 {
		limit = 20
	}
	return &MediaBatch{
		s:          s,
		limit:      limit,
		rightsOnly: rightsOnly,
		current:    e.Text("resources/media/" + sorting + "/link"),
	}
}

// Fetch loads the current page.
func (b *MediaBatch) Fetch(ctx context.Context) ([]*Media, error) {
	b.mu.Lock()
	if b.fetching {
		b.mu.Unlock()
		return nil, ErrAlreadyFetching
	}
	if b.current == "" {
		b.mu.Unlock()
		return nil, ErrNoResource
	}
	b.fetching = true
	u := b.current
	b.mu.Unlock()

	page, err := b.fetch(ctx, u)

	b.mu.Lock()
	defer b.mu.Unlock()
	b.fetching = false
	if err != nil {
		return nil, err
	}
	b.prev = page.Links["prev"]
	b.next = page.Links["next"]
	return page.Media, nil
}

func (b *MediaBatch) fetch(ctx context.Context, u string) (*Page, error) {
	query := map[string]string{"count": strconv.Itoa(b.limit)}
	if b.rightsOnly {
		query["rights_given"] = "1"
	}
	resp, err := b.s.get(ctx, u, query)
	if err != nil {
		return nil, fmt.Errorf("media batch: %w", err)
	}
	return extractMedia(b.s, resp.Data)
}

// Next moves to the next page and fetches it.
func (b *MediaBatch) Next(ctx context.Context) ([]*Media, error) {
	if err := b.move(func() string { return b.next }); err != nil {
		return nil, err
	}
	return b.Fetch(ctx)
}

// Prev moves to the previous page and fetches it.
func (b *MediaBatch) Prev(ctx context.Context) ([]*Media, error) {
	if err := b.move(func() string { return b.prev }); err != nil {
		return nil, err
	}
	return b.Fetch(ctx)
}

func (b *MediaBatch) move(target func() string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.fetching {
		return ErrAlreadyFetching
	}
	u := target()
	if u == "" {
		return ErrNoResource
	}
	b.current = u
	return nil
}

func (b *MediaBatch) HasNext() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.next != ""
}

func (b *MediaBatch) HasPrev() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.prev != ""
}
