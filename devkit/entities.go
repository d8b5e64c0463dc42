package devkit

import (
	"context"
	"fmt"
	"sync"

	"github.com/briangreenhill/devkit/hal"
	"github.com/briangreenhill/devkit/rest"
	"golang.org/x/sync/errgroup"
)

// Media is a photo or video.
type Media struct {
	*Entity
	s *Session

	mu   sync.Mutex
	user *User
}

// User returns the uploader. The result is kept after the first call.
func (m *Media) User(ctx context.Context) (*User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.user != nil {
		return m.user, nil
	}
	u, err := m.s.UserByURL(ctx, m.Text("resources/uploader/link"))
	if err != nil {
		return nil, fmt.Errorf("media %s uploader: %w", m.Text("id"), err)
	}
	m.user = u
	return u, nil
}

// Report asks for the media to be taken down.
func (m *Media) Report(ctx context.Context, email, reason string) (*rest.Response, error) {
	href := m.Text("actions/report/action/href")
	if href == "" {
		return nil, fmt.Errorf("media %s report: %w", m.Text("id"), ErrNoResource)
	}
	return m.s.rest.Post(ctx, href, map[string]string{
		"email":  email,
		"reason": reason,
	}, nil, nil)
}

func (m *Media) RelatedStreams(ctx context.Context) ([]*Stream, error) {
	resp, err := m.s.get(ctx, m.Text("resources/streams/all/link"), nil)
	if err != nil {
		return nil, fmt.Errorf("media %s streams: %w", m.Text("id"), err)
	}
	return extractStreams(m.s, resp.Data)
}

func (m *Media) RelatedCategories(ctx context.Context) ([]*Category, error) {
	resp, err := m.s.get(ctx, m.Text("resources/categories/all/link"), nil)
	if err != nil {
		return nil, fmt.Errorf("media %s categories: %w", m.Text("id"), err)
	}
	return extractCategories(m.s, resp.Data)
}

// Related fetches the related streams and categories concurrently.
func (m *Media) Related(ctx context.Context) ([]*Stream, []*Category, error) {
	var (
		streams    []*Stream
		categories []*Category
	)
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		streams, err = m.RelatedStreams(ctx)
		return err
	})
	g.Go(func() error {
		var err error
		categories, err = m.RelatedCategories(ctx)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, nil, err
	}
	return streams, categories, nil
}

// Stream is a curated collection of media.
type Stream struct {
	*Entity
	s *Session
}

func (st *Stream) BaseImage(ctx context.Context) (*Media, error) {
	return st.image(ctx, "base_image")
}

func (st *Stream) CoverImage(ctx context.Context) (*Media, error) {
	return st.image(ctx, "cover_media")
}

func (st *Stream) image(ctx context.Context, name string) (*Media, error) {
	e, err := st.s.Entity(ctx, st.Text("resources/"+name+"/link"), KindMedia)
	if err != nil {
		return nil, fmt.Errorf("stream %s %s: %w", st.Text("id"), name, err)
	}
	return &Media{Entity: e, s: st.s}, nil
}

// Category groups streams.
type Category struct {
	*Entity
	s *Session
}

type User struct {
	*Entity
	s *Session
}

// UploadURL is the address media for this user is posted to, with the
// session credentials attached.
func (u *User) UploadURL() string {
	href := u.Text("actions/media/upload/action/href")
	if href == "" {
		return ""
	}
	return href + "?auth_token=" + u.s.APIKey() + "&version=" + u.s.APIVersion()
}

// Customer is the account the API key belongs to.
type Customer struct {
	*Entity
	s *Session

	mu   sync.Mutex
	user *User
}

// User returns the customer's upload user. The result is kept after the
// first call.
func (c *Customer) User(ctx context.Context) (*User, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.user != nil {
		return c.user, nil
	}
	u, err := c.s.UserByURL(ctx, c.Text("resources/user/link"))
	if err != nil {
		return nil, fmt.Errorf("customer %s user: %w", c.Text("id"), err)
	}
	c.user = u
	return u, nil
}

// CreateUser registers a new uploader for the customer.
func (c *Customer) CreateUser(ctx context.Context, name, email string) (*User, error) {
	href := c.Text("actions/users/create/action/href")
	if href == "" {
		return nil, fmt.Errorf("customer %s create user: %w", c.Text("id"), ErrNoResource)
	}
	resp, err := c.s.rest.Post(ctx, href, map[string]string{
		"screen_name": name,
		"email":       email,
	}, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("customer %s create user: %w", c.Text("id"), err)
	}
	e, err := c.s.parse(KindUser, resp.Data)
	if err != nil {
		return nil, err
	}
	return &User{Entity: e, s: c.s}, nil
}

// SearchStream finds the customer stream with the given tag.
func (c *Customer) SearchStream(ctx context.Context, tag string) (*Stream, error) {
	e, err := c.search(ctx, "streams", tag, KindStream)
	if err != nil {
		return nil, err
	}
	return &Stream{Entity: e, s: c.s}, nil
}

// SearchCategory finds the customer category with the given tag.
func (c *Customer) SearchCategory(ctx context.Context, tag string) (*Category, error) {
	e, err := c.search(ctx, "categories", tag, KindCategory)
	if err != nil {
		return nil, err
	}
	return &Category{Entity: e, s: c.s}, nil
}

func (c *Customer) search(ctx context.Context, group, tag string, kind Kind) (*Entity, error) {
	resp, err := c.s.get(ctx, c.Text("actions/"+group+"/search/action/href"), map[string]string{"tag_key": tag})
	if err != nil {
		return nil, fmt.Errorf("search %s %q: %w", group, tag, err)
	}
	data := resp.Data
	if data.Unlinked() {
		if data = data.First(string(kind)); data == nil {
			return nil, fmt.Errorf("search %s %q: %w", group, tag, ErrNoResource)
		}
	}
	return c.s.parse(kind, data)
}

// Widget is a configured widget instance.
type Widget struct {
	*Entity
	s *Session

	mu       sync.Mutex
	settings map[string]any
}

// Settings returns the widget settings. The result is kept after the first
// call.
func (w *Widget) Settings(ctx context.Context) (map[string]any, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.settings != nil {
		return w.settings, nil
	}
	settings, err := w.s.WidgetSettingsByURL(ctx, w.Text("resources/setting/link"))
	if err != nil {
		return nil, fmt.Errorf("widget %s settings: %w", w.Text("id"), err)
	}
	w.settings = settings
	return settings, nil
}

func (w *Widget) Stream(ctx context.Context) (*Stream, error) {
	u := w.Text("resources/stream/link")
	if u == "" {
		return nil, fmt.Errorf("widget %s stream: %w", w.Text("id"), ErrNoResource)
	}
	return w.s.StreamByURL(ctx, u)
}

func (w *Widget) Category(ctx context.Context) (*Category, error) {
	u := w.Text("resources/category/link")
	if u == "" {
		return nil, fmt.Errorf("widget %s category: %w", w.Text("id"), ErrNoResource)
	}
	return w.s.CategoryByURL(ctx, u)
}

func normalizeSettings(r *hal.Resource) (map[string]any, error) {
	settings, err := decodeMap(r.Raw())
	if err != nil {
		return nil, fmt.Errorf("settings: %w", err)
	}
	for _, k := range []string{"_analytics", "_fixed", "_links"} {
		delete(settings, k)
	}
	return settings, nil
}

// Page is one page of media and the navigation links that came with it.
type Page struct {
	Media []*Media
	Links map[string]string
}

func extractMedia(s *Session, r *hal.Resource) (*Page, error) {
	p := &Page{Links: map[string]string{}}
	for name, l := range r.Links {
		p.Links[name] = l.Href
	}
	for _, item := range childItems(r, string(KindMedia)) {
		e, err := s.parse(KindMedia, item)
		if err != nil {
			return nil, err
		}
		p.Media = append(p.Media, &Media{Entity: e, s: s})
	}
	return p, nil
}

func extractStreams(s *Session, r *hal.Resource) ([]*Stream, error) {
	var out []*Stream
	for _, item := range childItems(r, string(KindStream)) {
		e, err := s.parse(KindStream, item)
		if err != nil {
			return nil, err
		}
		out = append(out, &Stream{Entity: e, s: s})
	}
	return out, nil
}

func extractCategories(s *Session, r *hal.Resource) ([]*Category, error) {
	var out []*Category
	for _, item := range childItems(r, string(KindCategory)) {
		e, err := s.parse(KindCategory, item)
		if err != nil {
			return nil, err
		}
		out = append(out, &Category{Entity: e, s: s})
	}
	return out, nil
}
