// Package apitest serves a small fake of the photorank API for tests.
//
// Responses are JSON fixtures. Links inside them point back at the test
// server and carry the same query string a session adds to every request,
// so following a link produces exactly the URL the pre-cache stored.
package apitest

import (
	"embed"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

//go:embed fixtures/*.json
var fixtures embed.FS

const (
	APIKey     = "test-key"
	APIVersion = "v2.2"
	// Query is the base query a session built with APIKey and APIVersion
	// appends to every request.
	Query = "?auth_token=" + APIKey + "&version=" + APIVersion + "&wrap_responses=1"
)

// Server is a running fake API.
type Server struct {
	*httptest.Server

	mu    sync.Mutex
	hits  map[string]int
	posts map[string]json.RawMessage
}

// New starts a server that is closed when the test ends.
func New(t testing.TB) *Server {
	t.Helper()
	s := &Server{
		hits:  make(map[string]int),
		posts: make(map[string]json.RawMessage),
	}
	s.Server = httptest.NewServer(s.routes())
	t.Cleanup(s.Close)
	return s
}

// Link returns the absolute URL of path as it appears in fixture links.
func (s *Server) Link(path string) string {
	return s.URL + path + Query
}

// Hits returns how many requests reached path.
func (s *Server) Hits(path string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.hits[path]
}

// Posted returns the last JSON body posted to path.
func (s *Server) Posted(path string) json.RawMessage {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.posts[path]
}

func (s *Server) routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(s.count)
	r.Use(requireKey)

	r.Get("/", s.fixture("root", http.StatusOK))
	r.Get("/customers/{id}", s.fixture("root", http.StatusOK))
	r.Post("/customers/{customer}/users", s.post("user", "9"))
	r.Get("/customers/{id}/streams/search", s.fixture("stream", http.StatusOK))
	r.Get("/customers/{id}/categories/search", s.fixture("category_search", http.StatusOK))
	r.Get("/customers/{customer}/instagram_users/{id}", s.fixture("user", http.StatusOK))

	r.Get("/widgets/settings/{id}", s.fixture("settings", http.StatusOK))
	r.Get("/widgets/{id}", func(w http.ResponseWriter, r *http.Request) {
		if chi.URLParam(r, "id") == "empty" {
			s.fixture("widget_empty", http.StatusOK)(w, r)
			return
		}
		s.fixture("widget", http.StatusOK)(w, r)
	})

	r.Get("/media/{id}", func(w http.ResponseWriter, r *http.Request) {
		switch chi.URLParam(r, "id") {
		case "42":
			s.fixture("media", http.StatusOK)(w, r)
		case "43", "44", "50", "51", "52":
			s.fixture("media_item", http.StatusOK)(w, r)
		default:
			s.fixture("notfound", http.StatusNotFound)(w, r)
		}
	})
	r.Get("/media/{id}/streams", s.fixture("media_streams", http.StatusOK))
	r.Get("/media/{id}/categories", s.fixture("media_categories", http.StatusOK))
	r.Post("/media/{id}/report", s.post("report", ""))

	r.Get("/users/{id}", s.fixture("user", http.StatusOK))

	r.Get("/streams/{id}", s.fixture("stream", http.StatusOK))
	r.Get("/streams/{id}/media/recent", s.fixture("media_recent", http.StatusOK))
	r.Get("/streams/{id}/media/recent/2", s.fixture("media_recent_2", http.StatusOK))

	r.Get("/category/{id}", s.fixture("category", http.StatusOK))

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusNotFound, `{"metadata": {"code": 404, "message": "Not Found"}, "data": null}`)
	})
	return r
}

func (s *Server) count(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.mu.Lock()
		s.hits[r.URL.Path]++
		s.mu.Unlock()
		next.ServeHTTP(w, r)
	})
}

func requireKey(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("auth_token") != APIKey {
			writeJSON(w, http.StatusUnauthorized, `{"metadata": {"code": 401, "message": "Invalid auth_token"}, "data": null}`)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// fixture renders a fixture file. {{base}} and {{q}} become the server URL
// and Query; every other {{name}} is replaced by the chi URL param of that
// name.
func (s *Server) fixture(name string, status int) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		b, err := fixtures.ReadFile("fixtures/" + name + ".json")
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}

		pairs := []string{"{{base}}", s.URL, "{{q}}", Query}
		if rc := chi.RouteContext(r.Context()); rc != nil {
			for i, key := range rc.URLParams.Keys {
				pairs = append(pairs, "{{"+key+"}}", rc.URLParams.Values[i])
			}
		}
		writeJSON(w, status, strings.NewReplacer(pairs...).Replace(string(b)))
	}
}

// post records the request body and answers with a fixture. A non-empty id
// overrides the {{id}} placeholder.
func (s *Server) post(name, id string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		s.mu.Lock()
		s.posts[r.URL.Path] = json.RawMessage(body)
		s.mu.Unlock()

		if id != "" {
			chi.RouteContext(r.Context()).URLParams.Add("id", id)
		}
		s.fixture(name, http.StatusOK)(w, r)
	}
}

func writeJSON(w http.ResponseWriter, status int, body string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = io.WriteString(w, body)
}
