package rest

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeAPI answers requests from canned bodies keyed by path.
type fakeAPI struct {
	mu       sync.Mutex
	bodies   map[string]string
	status   map[string]int
	hits     map[string]int
	lastReq  *http.Request
	lastBody string
}

func newFakeAPI(bodies map[string]string) *fakeAPI {
	return &fakeAPI{bodies: bodies, status: map[string]int{}, hits: map[string]int{}}
}

func (f *fakeAPI) Do(req *http.Request) (*http.Response, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.hits[req.URL.Path]++
	f.lastReq = req
	f.lastBody = ""
	if req.Body != nil {
		b, _ := io.ReadAll(req.Body)
		f.lastBody = string(b)
	}

	status := http.StatusOK
	body, ok := f.bodies[req.URL.Path]
	if !ok {
		status = http.StatusNotFound
		body = `{"metadata": {"code": 404, "message": "Not Found"}, "data": null}`
	}
	if s, ok := f.status[req.URL.Path]; ok {
		status = s
	}
	return &http.Response{
		StatusCode: status,
		Status:     fmt.Sprintf("%d %s", status, http.StatusText(status)),
		Header:     http.Header{"Content-Type": {"application/json"}},
		Body:       io.NopCloser(strings.NewReader(body)),
		Request:    req,
	}, nil
}

func (f *fakeAPI) Hits(path string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.hits[path]
}

const apiURL = "https://photorankapi-a.akamaihd.net"

const mediaBody = `{
	"metadata": {"code": 200, "message": "OK", "version": "v2.2"},
	"data": {
		"id": "42",
		"_fixed": true,
		"_links": {"self": {"href": "https://photorankapi-a.akamaihd.net/media/42?auth_token=k"}},
		"_embedded": {
			"uploader": {
				"id": "7",
				"screen_name": "pier_fan",
				"_fixed": true,
				"_links": {"self": {"href": "https://z3photorankapi-a.akamaihd.net/users/7?auth_token=k"}}
			}
		}
	}
}`

const userBody = `{
	"metadata": {"code": 200, "message": "OK"},
	"data": {"id": "7", "screen_name": "pier_fan", "_links": {"self": {"href": "https://photorankapi-a.akamaihd.net/users/7?auth_token=k"}}}
}`

const recentBody = `{
	"metadata": {"code": 200},
	"data": {
		"_links": {"self": {"href": "https://photorankapi-a.akamaihd.net/streams/5/media/recent?auth_token=k"}},
		"_embedded": {"media": [
			{"id": "50", "_links": {"self": {"href": "https://photorankapi-a.akamaihd.net/media/50"}},
			 "_embedded": {"uploader": {"_fixed": true, "_links": {"self": {"href": "https://photorankapi-a.akamaihd.net/users/7?auth_token=k"}}}}},
			{"id": "51", "_links": {"self": {"href": "https://photorankapi-a.akamaihd.net/media/51"}},
			 "_embedded": {"uploader": {"_fixed": true, "_links": {"self": {"href": "https://z2photorankapi-a.akamaihd.net/users/7?auth_token=k"}}}}}
		]}
	}
}`

const streamBody = `{
	"metadata": {"code": 200},
	"data": {
		"id": "5",
		"_links": {"self": {"href": "https://photorankapi-a.akamaihd.net/stream/5?auth_token=k"}},
		"_embedded": {
			"cover_media": {"id": "43", "_fixed": true, "_links": {"self": {"href": "https://photorankapi-a.akamaihd.net/media/43?auth_token=k"}}}
		}
	}
}`

func newTestClient(api Doer, edit func(*Options)) *Client {
	o := DefaultOptions()
	o.PreCacheEnabled = true
	o.EmbeddedProperties = append(o.EmbeddedProperties, "uploader")
	if edit != nil {
		edit(&o)
	}
	return New(
		WithHTTPClient(api),
		WithOptions(o),
		WithBaseQuery(map[string]string{"auth_token": "k"}),
	)
}

func TestGetServesEmbeddedFromCache(t *testing.T) {
	api := newFakeAPI(map[string]string{"/media/42": mediaBody, "/users/7": userBody})
	c := newTestClient(api, nil)
	ctx := context.Background()

	resp, err := c.Get(ctx, apiURL+"/media/42", nil, nil)
	require.NoError(t, err)
	assert.False(t, resp.Cached())
	assert.Equal(t, 1, api.Hits("/media/42"))
	assert.Equal(t, 1, c.Store().Len())

	// a differently sharded host resolves to the same entry
	hit, err := c.Get(ctx, "https://z9photorankapi-a.akamaihd.net/users/7", nil, nil)
	require.NoError(t, err)
	assert.True(t, hit.Cached())
	assert.Equal(t, 0, api.Hits("/users/7"))
	assert.Equal(t, "uploader", hit.Entity)
	assert.Equal(t, 200, hit.Metadata.Code)
	require.NotNil(t, hit.Entry)
	assert.Equal(t, 1, hit.Entry.Needed)
	assert.Equal(t, 1, hit.Entry.Used)

	var name string
	require.NoError(t, hit.Data.Field("screen_name", &name))
	assert.Equal(t, "pier_fan", name)

	again, err := c.Get(ctx, apiURL+"/users/7", nil, nil)
	require.NoError(t, err)
	assert.False(t, again.Cached())
	assert.Equal(t, 1, api.Hits("/users/7"))
}

func TestGetEachEmbeddingServedOnce(t *testing.T) {
	api := newFakeAPI(map[string]string{"/streams/5/media/recent": recentBody, "/users/7": userBody})
	c := newTestClient(api, nil)
	ctx := context.Background()

	_, err := c.Get(ctx, apiURL+"/streams/5/media/recent", nil, nil)
	require.NoError(t, err)

	e, ok := c.Store().Peek(apiURL + "/users/7?auth_token=k")
	require.True(t, ok)
	assert.Equal(t, 2, e.Needed)

	for i := 0; i < 2; i++ {
		resp, err := c.Get(ctx, apiURL+"/users/7", nil, nil)
		require.NoError(t, err)
		assert.True(t, resp.Cached(), "get %d", i+1)
	}
	assert.Equal(t, 0, api.Hits("/users/7"))

	resp, err := c.Get(ctx, apiURL+"/users/7", nil, nil)
	require.NoError(t, err)
	assert.False(t, resp.Cached())
	assert.Equal(t, 1, api.Hits("/users/7"))
}

func TestGetRenamesCachedEntity(t *testing.T) {
	api := newFakeAPI(map[string]string{"/stream/5": streamBody})
	c := newTestClient(api, nil)
	ctx := context.Background()

	_, err := c.Get(ctx, apiURL+"/stream/5", nil, nil)
	require.NoError(t, err)

	hit, err := c.Get(ctx, apiURL+"/media/43", nil, nil)
	require.NoError(t, err)
	assert.True(t, hit.Cached())
	assert.Equal(t, "media", hit.Entity)
	assert.Equal(t, "cover_media", hit.Entry.Entity)
}

func TestGetNotFoundIsNeverCached(t *testing.T) {
	body := `{
		"metadata": {"code": 404, "message": "Media not found"},
		"data": {
			"_links": {"self": {"href": "https://photorankapi-a.akamaihd.net/media/99?auth_token=k"}},
			"_embedded": {"uploader": {"_fixed": true, "_links": {"self": {"href": "https://photorankapi-a.akamaihd.net/users/7?auth_token=k"}}}}
		}
	}`
	api := newFakeAPI(map[string]string{"/media/99": body})
	c := newTestClient(api, nil)

	_, err := c.Get(context.Background(), apiURL+"/media/99", nil, nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrNotFound)
	assert.Contains(t, err.Error(), "Media not found")

	var nf *NotFoundError
	require.True(t, errors.As(err, &nf))
	assert.Equal(t, apiURL+"/media/99?auth_token=k", nf.URL)
	require.NotNil(t, nf.Document)
	assert.Equal(t, 404, nf.Document.Metadata.Code)
	assert.NotNil(t, nf.Document.Data)

	assert.Equal(t, 0, c.Store().Len())
}

func TestGetHTTPNotFoundWithoutCode(t *testing.T) {
	api := newFakeAPI(map[string]string{"/media/98": `{"data": null}`})
	api.status["/media/98"] = http.StatusNotFound
	c := newTestClient(api, nil)

	_, err := c.Get(context.Background(), apiURL+"/media/98", nil, nil)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestGetWithCachingDisabled(t *testing.T) {
	api := newFakeAPI(map[string]string{"/media/42": mediaBody, "/users/7": userBody})
	c := newTestClient(api, func(o *Options) { o.PreCacheEnabled = false })
	ctx := context.Background()

	_, err := c.Get(ctx, apiURL+"/media/42", nil, nil)
	require.NoError(t, err)
	assert.Equal(t, 0, c.Store().Len())

	for i := 0; i < 3; i++ {
		resp, err := c.Get(ctx, apiURL+"/users/7", nil, nil)
		require.NoError(t, err)
		assert.False(t, resp.Cached())
	}
	assert.Equal(t, 3, api.Hits("/users/7"))
}

func TestDisablingKeepsCapturedEntries(t *testing.T) {
	api := newFakeAPI(map[string]string{"/media/42": mediaBody})
	c := newTestClient(api, nil)
	ctx := context.Background()

	_, err := c.Get(ctx, apiURL+"/media/42", nil, nil)
	require.NoError(t, err)

	c.Configure(func(o *Options) { o.PreCacheEnabled = false })
	resp, err := c.Get(ctx, apiURL+"/users/7", nil, nil)
	require.NoError(t, err)
	assert.True(t, resp.Cached())
}

func TestGetEndpointGate(t *testing.T) {
	api := newFakeAPI(map[string]string{"/media/42": mediaBody})
	c := New(WithHTTPClient(api), WithOptions(func() Options {
		o := DefaultOptions()
		o.PreCacheEnabled = true
		o.EmbeddedProperties = []string{"uploader"}
		return o
	}()))

	// no query string, so the default endpoint pattern does not match
	_, err := c.Get(context.Background(), apiURL+"/media/42", nil, nil)
	require.NoError(t, err)
	assert.Equal(t, 0, c.Store().Len())

	c.SetOption(OptPropertiesPerEndpoint, map[string]string{"uploader": `/streams/`}, false)
	_, err = c.Get(context.Background(), apiURL+"/media/42", map[string]string{"x": "1"}, nil)
	require.NoError(t, err)
	assert.Equal(t, 0, c.Store().Len())

	c.SetOption(OptPropertiesPerEndpoint, map[string]string{"uploader": `/media/42`}, false)
	_, err = c.Get(context.Background(), apiURL+"/media/42", map[string]string{"x": "1"}, nil)
	require.NoError(t, err)
	assert.Equal(t, 1, c.Store().Len())
}

func TestGetSendsMergedQueryAndHeaders(t *testing.T) {
	api := newFakeAPI(map[string]string{"/users/7": userBody})
	c := New(
		WithHTTPClient(api),
		WithBaseQuery(map[string]string{"auth_token": "k", "version": "v2.2"}),
		WithBaseHeaders(http.Header{"X-Client": {"devkit"}, "X-Trace": {"base"}}),
	)

	_, err := c.Get(context.Background(), apiURL+"/users/7?version=v1", map[string]string{"count": "20"}, http.Header{"X-Trace": {"call"}})
	require.NoError(t, err)

	require.NotNil(t, api.lastReq)
	assert.Equal(t, apiURL+"/users/7?version=v1&auth_token=k&count=20", api.lastReq.URL.String())
	assert.Equal(t, "devkit", api.lastReq.Header.Get("X-Client"))
	assert.Equal(t, "call", api.lastReq.Header.Get("X-Trace"))
	assert.Equal(t, "application/json", api.lastReq.Header.Get("Accept"))

	assert.Equal(t, map[string]string{"auth_token": "k", "version": "v2.2"}, c.BaseQuery())
	assert.Equal(t, "base", c.BaseHeaders().Get("X-Trace"))
}

func TestPost(t *testing.T) {
	api := newFakeAPI(map[string]string{
		"/media/42/report": `{"metadata": {"code": 200}, "data": {"status": "reported"}}`,
		"/media/42":        mediaBody,
	})
	c := newTestClient(api, nil)
	ctx := context.Background()

	resp, err := c.Post(ctx, apiURL+"/media/42/report", map[string]string{"email": "a@b.c", "reason": "spam"}, nil, nil)
	require.NoError(t, err)
	assert.False(t, resp.Cached())
	assert.Equal(t, http.MethodPost, api.lastReq.Method)
	assert.JSONEq(t, `{"email": "a@b.c", "reason": "spam"}`, api.lastBody)
	assert.Equal(t, "application/json", api.lastReq.Header.Get("Content-Type"))
	assert.Equal(t, apiURL+"/media/42/report?auth_token=k", api.lastReq.URL.String())

	_, err = c.Post(ctx, apiURL+"/media/42/report", map[string]string{}, nil, nil)
	require.NoError(t, err)
	assert.Empty(t, api.lastBody)

	// posts never feed the pre-cache
	_, err = c.Post(ctx, apiURL+"/media/42", nil, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, 0, c.Store().Len())
}

func TestPostNotFoundIsNotAnError(t *testing.T) {
	api := newFakeAPI(map[string]string{})
	c := newTestClient(api, nil)

	resp, err := c.Post(context.Background(), apiURL+"/nowhere", nil, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, 404, resp.Metadata.Code)
}

func TestTransportErrorIsReturnedUnchanged(t *testing.T) {
	boom := errors.New("connection reset")
	c := New(WithHTTPClient(DoerFunc(func(*http.Request) (*http.Response, error) {
		return nil, boom
	})))

	_, err := c.Get(context.Background(), apiURL+"/media/42", nil, nil)
	assert.Same(t, boom, err)

	_, err = c.Post(context.Background(), apiURL+"/media/42", nil, nil, nil)
	assert.Same(t, boom, err)
}

func TestUndecodableBodies(t *testing.T) {
	api := newFakeAPI(map[string]string{
		"/broken": `<html>oops</html>`,
		"/fail":   `upstream timeout`,
	})
	api.status["/fail"] = http.StatusBadGateway
	c := New(WithHTTPClient(api))

	_, err := c.Get(context.Background(), apiURL+"/broken", nil, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "decode response")

	_, err = c.Get(context.Background(), apiURL+"/fail", nil, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "502 Bad Gateway")
	assert.Contains(t, err.Error(), "upstream timeout")
}

func TestUseCacheAndCleanCache(t *testing.T) {
	api := newFakeAPI(map[string]string{"/streams/5/media/recent": recentBody, "/media/42": mediaBody})
	c := newTestClient(api, nil)
	ctx := context.Background()

	_, err := c.Get(ctx, apiURL+"/streams/5/media/recent", nil, nil)
	require.NoError(t, err)

	assert.True(t, c.UseCache(apiURL+"/users/7?auth_token=k"))
	e, ok := c.Store().Peek(apiURL + "/users/7?auth_token=k")
	require.True(t, ok)
	assert.Equal(t, 1, e.Used)

	assert.Equal(t, []string{"https://akamaihd.net/users/7?auth_token=k"}, c.CleanCache())
	assert.False(t, c.UseCache(apiURL+"/users/7?auth_token=k"))
}

func TestConcurrentHitsNeverExceedNeeded(t *testing.T) {
	api := newFakeAPI(map[string]string{"/streams/5/media/recent": recentBody, "/users/7": userBody})
	c := newTestClient(api, nil)
	ctx := context.Background()

	_, err := c.Get(ctx, apiURL+"/streams/5/media/recent", nil, nil)
	require.NoError(t, err)

	var cached atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			resp, err := c.Get(ctx, apiURL+"/users/7", nil, nil)
			if err == nil && resp.Cached() {
				cached.Add(1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(2), cached.Load())
	assert.Equal(t, 8, api.Hits("/users/7"))
}

func TestDebugLogging(t *testing.T) {
	var buf bytes.Buffer
	api := newFakeAPI(map[string]string{"/media/42": mediaBody})
	c := New(
		WithHTTPClient(api),
		WithLogger(zerolog.New(&buf)),
		WithBaseQuery(map[string]string{"auth_token": "k"}),
		WithOptions(func() Options {
			o := DefaultOptions()
			o.PreCacheEnabled = true
			o.EmbeddedProperties = []string{"uploader"}
			return o
		}()),
	)
	ctx := context.Background()

	_, err := c.Get(ctx, apiURL+"/media/42", nil, nil)
	require.NoError(t, err)
	assert.NotContains(t, buf.String(), "add resource")

	c.CleanCache()
	c.SetOption(OptDebug, true, false)
	_, err = c.Get(ctx, apiURL+"/media/42", nil, nil)
	require.NoError(t, err)
	_, err = c.Get(ctx, apiURL+"/users/7", nil, nil)
	require.NoError(t, err)

	out := buf.String()
	assert.Contains(t, out, `"message":"add resource"`)
	assert.Contains(t, out, `"message":"retrieve resource"`)
	assert.Contains(t, out, `"message":"remove resource"`)
}
