// Package devkit is the entity layer of the SDK. A Session owns a rest
// client configured with the customer's API key and turns API responses
// into customers, media, streams, categories, users and widgets.
package devkit

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/briangreenhill/devkit/hal"
	"github.com/briangreenhill/devkit/rest"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

const (
	DefaultAPIURL     = "https://photorankapi-a.akamaihd.net"
	DefaultAPIVersion = "v2.2"
)

var endpoints = map[string]string{
	"categoryByID":             "/category/{ID}",
	"widgetByHash":             "/widgets/{hash}",
	"widgetSettingsByID":       "/widgets/settings/{ID}",
	"customerByID":             "/customers/{ID}",
	"mediaByID":                "/media/{ID}",
	"streamByID":               "/streams/{ID}",
	"userByID":                 "/users/{ID}",
	"instagramUserForCustomer": "/customers/{ID}/instagram_users/{username}",
}

// Session is a connection to the API on behalf of one customer.
type Session struct {
	ID uuid.UUID

	log      zerolog.Logger
	apiURL   string
	rest     *rest.Client
	registry *Registry

	mu         sync.RWMutex
	apiKey     string
	apiVersion string
	connected  bool
	customer   *Customer
}

type Option func(*Session)

func WithAPIURL(u string) Option {
	return func(s *Session) { s.apiURL = strings.TrimRight(u, "/") }
}
func WithAPIVersion(v string) Option {
	return func(s *Session) { s.apiVersion = v }
}

// WithRestClient uses c instead of a client built by New. Its base query
// is overwritten with the session credentials.
func WithRestClient(c *rest.Client) Option {
	return func(s *Session) { s.rest = c }
}
func WithLogger(l zerolog.Logger) Option {
	return func(s *Session) { s.log = l }
}
func WithRegistry(r *Registry) Option {
	return func(s *Session) { s.registry = r }
}

// New creates a session for apiKey.
func New(apiKey string, opts ...Option) (*Session, error) {
	if apiKey == "" {
		return nil, errors.New("devkit: apiKey required")
	}

	s := &Session{
		ID:         uuid.New(),
		log:        zerolog.Nop(),
		apiURL:     DefaultAPIURL,
		apiKey:     apiKey,
		apiVersion: DefaultAPIVersion,
	}
	for _, o := range opts {
		o(s)
	}
	s.log = s.log.With().Str("session", s.ID.String()).Logger()
	if s.rest == nil {
		s.rest = rest.New(rest.WithLogger(s.log))
	}
	if s.registry == nil {
		s.registry = DefaultRegistry()
	}
	s.setBaseQuery()

	s.log.Debug().Str("api_url", s.apiURL).Str("version", s.apiVersion).Msg("session created")
	return s, nil
}

// setBaseQuery rewrites the query every request carries. The caller holds
// s.mu or owns s exclusively.
func (s *Session) setBaseQuery() {
	s.rest.SetBaseQuery(map[string]string{
		"auth_token":     s.apiKey,
		"version":        s.apiVersion,
		"wrap_responses": "1",
	})
}

func (s *Session) SetAPIKey(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.apiKey = key
	s.setBaseQuery()
}

func (s *Session) APIKey() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.apiKey
}

func (s *Session) SetAPIVersion(v string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.apiVersion = v
	s.setBaseQuery()
}

func (s *Session) APIVersion() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.apiVersion
}

func (s *Session) APIURL() string { return s.apiURL }

// Rest exposes the underlying client, e.g. to change pre-cache options.
func (s *Session) Rest() *rest.Client { return s.rest }

func (s *Session) Registry() *Registry { return s.registry }

// Endpoint builds the URL of a known endpoint, replacing each {key} in its
// template with params[key].
func (s *Session) Endpoint(name string, params map[string]string) (string, bool) {
	tmpl, ok := endpoints[name]
	if !ok {
		return "", false
	}
	pairs := make([]string, 0, 2*len(params))
	for k, v := range params {
		pairs = append(pairs, "{"+k+"}", v)
	}
	return s.apiURL + strings.NewReplacer(pairs...).Replace(tmpl), true
}

func (s *Session) endpoint(name string, params map[string]string) string {
	u, _ := s.Endpoint(name, params)
	return u
}

// Connect fetches the customer the API key belongs to. With a widget
// instance the widget is fetched too and the customer is read from it.
// Once connected the stored customer is reused.
func (s *Session) Connect(ctx context.Context, instance string) (*Customer, *Widget, error) {
	s.mu.RLock()
	customer := s.customer
	s.mu.RUnlock()

	if customer != nil {
		if instance == "" {
			return customer, nil, nil
		}
		w, err := s.WidgetByHash(ctx, instance)
		if err != nil {
			return nil, nil, err
		}
		return customer, w, nil
	}

	u := s.apiURL
	if instance != "" {
		u = s.endpoint("widgetByHash", map[string]string{"hash": instance})
	}
	resp, err := s.rest.Get(ctx, u, nil, nil)
	if err != nil {
		return nil, nil, fmt.Errorf("connect: %w", err)
	}

	c, err := s.parse(KindCustomer, resp.Data)
	if err != nil {
		return nil, nil, fmt.Errorf("connect: %w", err)
	}
	customer = &Customer{Entity: c, s: s}

	var widget *Widget
	if instance != "" {
		w, err := s.parse(KindWidget, resp.Data)
		if err != nil {
			return nil, nil, fmt.Errorf("connect: %w", err)
		}
		widget = &Widget{Entity: w, s: s}
	}

	s.mu.Lock()
	s.connected = true
	s.customer = customer
	s.mu.Unlock()

	s.log.Info().Str("customer", customer.Text("id")).Msg("connected")
	return customer, widget, nil
}

// Disconnect forgets the stored customer.
func (s *Session) Disconnect() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.connected = false
	s.customer = nil
}

func (s *Session) Connected() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.connected
}

// Customer returns the customer stored by Connect.
func (s *Session) Customer() (*Customer, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.connected || s.customer == nil {
		return nil, ErrNotConnected
	}
	return s.customer, nil
}

func (s *Session) parse(kind Kind, r *hal.Resource) (*Entity, error) {
	h, ok := s.registry.Handler(kind)
	if !ok {
		return nil, fmt.Errorf("devkit: no handler for %q", kind)
	}
	return h.Parse(r)
}

func (s *Session) get(ctx context.Context, u string, query map[string]string) (*rest.Response, error) {
	if u == "" {
		return nil, ErrNoResource
	}
	return s.rest.Get(ctx, u, query, nil)
}

// Entity fetches u and parses it with the handler named by the pre-cache
// entity the response was captured under, or with fallback when there is
// no such handler.
func (s *Session) Entity(ctx context.Context, u string, fallback Kind) (*Entity, error) {
	resp, err := s.get(ctx, u, nil)
	if err != nil {
		return nil, err
	}
	kind := fallback
	if resp.Entity != "" {
		if _, ok := s.registry.Handler(Kind(resp.Entity)); ok {
			kind = Kind(resp.Entity)
		}
	}
	return s.parse(kind, resp.Data)
}

// lookup fetches u and parses it as kind. List responses with an empty
// _links array hold the entity as their first embedded item.
func (s *Session) lookup(ctx context.Context, u string, kind Kind) (*Entity, error) {
	resp, err := s.get(ctx, u, nil)
	if err != nil {
		return nil, err
	}
	data := resp.Data
	if data.Unlinked() {
		if data = data.First(string(kind)); data == nil {
			return nil, fmt.Errorf("%s: %w", u, ErrNoResource)
		}
	}
	return s.parse(kind, data)
}

func (s *Session) MediaByURL(ctx context.Context, u string) (*Media, error) {
	e, err := s.lookup(ctx, u, KindMedia)
	if err != nil {
		return nil, err
	}
	return &Media{Entity: e, s: s}, nil
}

func (s *Session) MediaByID(ctx context.Context, id string) (*Media, error) {
	return s.MediaByURL(ctx, s.endpoint("mediaByID", map[string]string{"ID": id}))
}

func (s *Session) StreamByURL(ctx context.Context, u string) (*Stream, error) {
	e, err := s.lookup(ctx, u, KindStream)
	if err != nil {
		return nil, err
	}
	return &Stream{Entity: e, s: s}, nil
}

func (s *Session) StreamByID(ctx context.Context, id string) (*Stream, error) {
	return s.StreamByURL(ctx, s.endpoint("streamByID", map[string]string{"ID": id}))
}

func (s *Session) CategoryByURL(ctx context.Context, u string) (*Category, error) {
	e, err := s.lookup(ctx, u, KindCategory)
	if err != nil {
		return nil, err
	}
	return &Category{Entity: e, s: s}, nil
}

func (s *Session) CategoryByID(ctx context.Context, id string) (*Category, error) {
	return s.CategoryByURL(ctx, s.endpoint("categoryByID", map[string]string{"ID": id}))
}

func (s *Session) UserByURL(ctx context.Context, u string) (*User, error) {
	e, err := s.lookup(ctx, u, KindUser)
	if err != nil {
		return nil, err
	}
	return &User{Entity: e, s: s}, nil
}

func (s *Session) UserByID(ctx context.Context, id string) (*User, error) {
	return s.UserByURL(ctx, s.endpoint("userByID", map[string]string{"ID": id}))
}

// InstagramUser looks up the user a customer knows by an Instagram handle.
func (s *Session) InstagramUser(ctx context.Context, c *Customer, username string) (*User, error) {
	return s.UserByURL(ctx, s.endpoint("instagramUserForCustomer", map[string]string{
		"ID":       c.Text("id"),
		"username": username,
	}))
}

func (s *Session) CustomerByURL(ctx context.Context, u string) (*Customer, error) {
	e, err := s.lookup(ctx, u, KindCustomer)
	if err != nil {
		return nil, err
	}
	return &Customer{Entity: e, s: s}, nil
}

func (s *Session) CustomerByID(ctx context.Context, id string) (*Customer, error) {
	return s.CustomerByURL(ctx, s.endpoint("customerByID", map[string]string{"ID": id}))
}

func (s *Session) WidgetByURL(ctx context.Context, u string) (*Widget, error) {
	e, err := s.lookup(ctx, u, KindWidget)
	if err != nil {
		return nil, err
	}
	return &Widget{Entity: e, s: s}, nil
}

func (s *Session) WidgetByHash(ctx context.Context, hash string) (*Widget, error) {
	return s.WidgetByURL(ctx, s.endpoint("widgetByHash", map[string]string{"hash": hash}))
}

// WidgetSettingsByURL returns the plain settings of a widget instance.
func (s *Session) WidgetSettingsByURL(ctx context.Context, u string) (map[string]any, error) {
	resp, err := s.get(ctx, u, nil)
	if err != nil {
		return nil, err
	}
	return normalizeSettings(resp.Data)
}

func (s *Session) WidgetSettingsByID(ctx context.Context, id string) (map[string]any, error) {
	return s.WidgetSettingsByURL(ctx, s.endpoint("widgetSettingsByID", map[string]string{"ID": id}))
}
