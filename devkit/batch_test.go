package devkit

import (
	"context"
	"io"
	"net/http"
	"strings"
	"testing"

	"github.com/briangreenhill/devkit/rest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMediaBatchPages(t *testing.T) {
	s, api := newSession(t, nil)
	ctx := context.Background()

	st, err := s.StreamByID(ctx, "5")
	require.NoError(t, err)

	b := NewMediaBatch(s, st.Entity, "", 0, false)
	assert.False(t, b.HasNext())
	assert.False(t, b.HasPrev())

	media, err := b.Fetch(ctx)
	require.NoError(t, err)
	require.Len(t, media, 2)
	assert.Equal(t, "50", media[0].Text("id"))
	assert.True(t, b.HasNext())
	assert.False(t, b.HasPrev())

	// both media embed the same uploader
	e, ok := s.Rest().Store().Peek(api.Link("/users/7"))
	require.True(t, ok)
	assert.Equal(t, 2, e.Needed)

	for _, m := range media {
		u, err := m.User(ctx)
		require.NoError(t, err)
		assert.Equal(t, "7", u.Text("id"))
	}
	assert.Equal(t, 0, api.Hits("/users/7"))
	assert.Equal(t, 0, s.Rest().Store().Len())

	media, err = b.Next(ctx)
	require.NoError(t, err)
	require.Len(t, media, 1)
	assert.Equal(t, "52", media[0].Text("id"))
	assert.False(t, b.HasNext())
	assert.True(t, b.HasPrev())

	_, err = b.Next(ctx)
	assert.ErrorIs(t, err, ErrNoResource)

	media, err = b.Prev(ctx)
	require.NoError(t, err)
	assert.Len(t, media, 2)
	assert.Equal(t, 2, api.Hits("/streams/5/media/recent"))
}

func TestMediaBatchWithoutLink(t *testing.T) {
	s, err := New("k")
	require.NoError(t, err)

	b := NewMediaBatch(s, &Entity{Kind: KindStream, Data: map[string]any{}}, "popular", 10, false)
	_, err = b.Fetch(context.Background())
	assert.ErrorIs(t, err, ErrNoResource)
	_, err = b.Prev(context.Background())
	assert.ErrorIs(t, err, ErrNoResource)
}

const pageBody = `{
	"metadata": {"code": 200},
	"data": {
		"_links": {"self": {"href": "http://api.test/streams/5/media/photorank"}},
		"_embedded": {"media": [{"id": "1", "_links": {"self": {"href": "http://api.test/media/1"}}}]}
	}
}`

func TestMediaBatchAlreadyFetching(t *testing.T) {
	entered := make(chan struct{})
	release := make(chan struct{})
	var requested string

	doer := rest.DoerFunc(func(req *http.Request) (*http.Response, error) {
		requested = req.URL.String()
		close(entered)
		<-release
		return &http.Response{
			StatusCode: http.StatusOK,
			Status:     "200 OK",
			Header:     http.Header{},
			Body:       io.NopCloser(strings.NewReader(pageBody)),
		}, nil
	})
	s, err := New("k",
		WithAPIURL("http://api.test"),
		WithRestClient(rest.New(rest.WithHTTPClient(doer))),
	)
	require.NoError(t, err)

	e := &Entity{Kind: KindStream, Data: map[string]any{
		"resources": map[string]any{
			"media": map[string]any{
				"photorank": map[string]any{"link": "http://api.test/streams/5/media/photorank"},
			},
		},
	}}
	b := NewMediaBatch(s, e, "photorank", 5, true)

	type result struct {
		media []*Media
		err   error
	}
	done := make(chan result, 1)
	go func() {
		media, err := b.Fetch(context.Background())
		done <- result{media, err}
	}()

	<-entered
	_, err = b.Fetch(context.Background())
	assert.ErrorIs(t, err, ErrAlreadyFetching)
	_, err = b.Next(context.Background())
	assert.ErrorIs(t, err, ErrAlreadyFetching)

	close(release)
	res := <-done
	require.NoError(t, res.err)
	assert.Len(t, res.media, 1)
	assert.Equal(t, "http://api.test/streams/5/media/photorank?auth_token=k&count=5&rights_given=1&version=v2.2&wrap_responses=1", requested)
}
