// Package rest is the request layer of the SDK. It builds request URLs from
// a session-wide base query, serves sub-resources captured by the
// pre-cache, and feeds fresh responses back into it.
package rest

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"

	"github.com/briangreenhill/devkit/cache"
	"github.com/briangreenhill/devkit/hal"
	"github.com/rs/zerolog"
)

// Doer sends a request. *http.Client implements it.
type Doer interface {
	Do(req *http.Request) (*http.Response, error)
}

// DoerFunc adapts a function to Doer.
type DoerFunc func(req *http.Request) (*http.Response, error)

func (f DoerFunc) Do(req *http.Request) (*http.Response, error) { return f(req) }

// Client issues API requests through the pre-cache.
type Client struct {
	http  Doer
	log   zerolog.Logger
	store *cache.Store

	mu          sync.RWMutex
	opts        Options
	baseQuery   map[string]string
	baseHeaders http.Header
}

type Option func(*Client)

func WithHTTPClient(h Doer) Option {
	return func(c *Client) { c.http = h }
}
func WithLogger(l zerolog.Logger) Option {
	return func(c *Client) { c.log = l }
}
func WithOptions(o Options) Option {
	return func(c *Client) { c.opts = o.Clone() }
}
func WithBaseQuery(q map[string]string) Option {
	return func(c *Client) { c.baseQuery = cloneQuery(q) }
}
func WithBaseHeaders(h http.Header) Option {
	return func(c *Client) { c.baseHeaders = h.Clone() }
}

// New creates a client with DefaultOptions.
func New(opts ...Option) *Client {
	c := &Client{
		http:        http.DefaultClient,
		log:         zerolog.Nop(),
		opts:        DefaultOptions(),
		baseQuery:   map[string]string{},
		baseHeaders: http.Header{},
	}
	for _, o := range opts {
		o(c)
	}
	c.store = cache.NewStore(c.opts.canonicalizer(), c.logger(c.opts))
	return c
}

// logger returns the client logger at the level the debug flag asks for.
func (c *Client) logger(o Options) zerolog.Logger {
	if o.Debug {
		return c.log.Level(zerolog.DebugLevel)
	}
	if c.log.GetLevel() < zerolog.InfoLevel {
		return c.log.Level(zerolog.InfoLevel)
	}
	return c.log
}

// apply installs o and pushes the derived settings into the store. The
// caller holds c.mu.
func (c *Client) apply(o Options) {
	c.opts = o
	c.store.SetCanonicalizer(o.canonicalizer())
	c.store.SetLogger(c.logger(o))
}

// Configure edits the options in place.
func (c *Client) Configure(fn func(*Options)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	o := c.opts.Clone()
	fn(&o)
	c.apply(o)
}

// Options returns a copy of the current options.
func (c *Client) Options() Options {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.opts.Clone()
}

// SetBaseQuery replaces the parameters added to every request.
func (c *Client) SetBaseQuery(q map[string]string) {
	c.mu.Lock()
	c.baseQuery = cloneQuery(q)
	c.mu.Unlock()
}

func (c *Client) BaseQuery() map[string]string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return cloneQuery(c.baseQuery)
}

// SetBaseHeaders replaces the headers added to every request.
func (c *Client) SetBaseHeaders(h http.Header) {
	c.mu.Lock()
	c.baseHeaders = h.Clone()
	c.mu.Unlock()
}

func (c *Client) BaseHeaders() http.Header {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.baseHeaders.Clone()
}

// Store exposes the pre-cache.
func (c *Client) Store() *cache.Store { return c.store }

// UseCache consumes one use of the entry for url, for callers that read an
// embedded resource straight from a parent response.
func (c *Client) UseCache(url string) bool {
	return c.store.Has(url)
}

// CleanCache empties the pre-cache and returns the removed keys.
func (c *Client) CleanCache() []string {
	return c.store.Clear()
}

// Response is a decoded API response.
type Response struct {
	Metadata hal.Metadata
	Data     *hal.Resource
	// Entity is the embedded name a pre-cached resource was captured under,
	// after renaming. Empty for network responses.
	Entity string
	// Entry is the consumed pre-cache entry on a hit.
	Entry *cache.Entry
	// Header is nil on a hit.
	Header http.Header
}

// Cached reports whether the response came from the pre-cache.
func (r *Response) Cached() bool { return r.Metadata.Cached }

type request struct {
	url    string
	header http.Header
	opts   Options
	log    zerolog.Logger
}

func (c *Client) prepare(rawURL string, query map[string]string, header http.Header) request {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return request{
		url:    buildURL(rawURL, c.baseQuery, query),
		header: mergeHeaders(c.baseHeaders, header),
		opts:   c.opts,
		log:    c.logger(c.opts),
	}
}

// Get fetches url. A pre-cache hit is returned without touching the
// network. A fresh response is scanned for embedded children when
// capturing is enabled.
func (c *Client) Get(ctx context.Context, url string, query map[string]string, header http.Header) (*Response, error) {
	req := c.prepare(url, query, header)

	if e, ok := c.store.Get(req.url); ok {
		entity := req.opts.Rename(e.Entity)
		req.log.Debug().Str("url", req.url).Str("entity", entity).Msg("retrieve resource")
		meta := e.Metadata
		meta.Cached = true
		return &Response{Metadata: meta, Data: e.Payload, Entity: entity, Entry: &e}, nil
	}

	doc, resp, err := c.do(ctx, http.MethodGet, req, nil)
	if err != nil {
		return nil, err
	}
	if doc.Metadata.Code == http.StatusNotFound || (doc.Metadata.Code == 0 && resp.StatusCode == http.StatusNotFound) {
		return nil, &NotFoundError{URL: req.url, Document: doc}
	}

	if req.opts.PreCacheEnabled && doc.Data.HasEmbedded() {
		meta := doc.Metadata
		meta.Cached = true
		if n := req.opts.scanner().Scan(c.store, doc.Data, req.url, meta); n > 0 {
			req.log.Debug().Str("url", req.url).Int("captured", n).Msg("scanned response")
		}
	}

	return &Response{Metadata: doc.Metadata, Data: doc.Data, Header: resp.Header}, nil
}

// Post sends body as JSON. The pre-cache is neither read nor written.
func (c *Client) Post(ctx context.Context, url string, body any, query map[string]string, header http.Header) (*Response, error) {
	req := c.prepare(url, query, header)

	var payload io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("POST %s: encode body: %w", req.url, err)
		}
		if s := string(b); s != "{}" && s != "null" {
			payload = bytes.NewReader(b)
			req.header.Set("Content-Type", "application/json")
		}
	}

	doc, resp, err := c.do(ctx, http.MethodPost, req, payload)
	if err != nil {
		return nil, err
	}
	return &Response{Metadata: doc.Metadata, Data: doc.Data, Header: resp.Header}, nil
}

func (c *Client) do(ctx context.Context, method string, r request, body io.Reader) (*hal.Document, *http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, method, r.url, body)
	if err != nil {
		return nil, nil, err
	}
	req.Header = r.header
	if req.Header.Get("Accept") == "" {
		req.Header.Set("Accept", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, nil, err
	}
	defer resp.Body.Close()

	b, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, nil, fmt.Errorf("%s %s: read body: %w", method, r.url, err)
	}

	doc, err := hal.Parse(b)
	if err != nil {
		if resp.StatusCode >= http.StatusBadRequest {
			return nil, nil, fmt.Errorf("%s %s: %s: %s", method, r.url, resp.Status, string(b))
		}
		return nil, nil, fmt.Errorf("%s %s: decode response: %w", method, r.url, err)
	}
	return doc, resp, nil
}
