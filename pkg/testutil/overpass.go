package testutil

import (
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync"
)

// FakeOverpass is an httptest server standing in for an Overpass interpreter.
// Respond receives the decoded query text and returns a status and body.
type FakeOverpass struct {
	*httptest.Server

	mu      sync.Mutex
	queries []string
}

// NewFakeOverpass starts a fake interpreter. Close it when done.
func NewFakeOverpass(respond func(query string) (int, string)) *FakeOverpass {
	f := &FakeOverpass{}
	f.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw, _ := io.ReadAll(r.Body)
		form, _ := url.ParseQuery(string(raw))
		q := form.Get("data")

		f.mu.Lock()
		f.queries = append(f.queries, q)
		f.mu.Unlock()

		status, body := respond(q)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = io.WriteString(w, body)
	}))
	return f
}

// Queries returns every query received so far, in arrival order.
func (f *FakeOverpass) Queries() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.queries...)
}

// QueryCount returns how many queries were received.
func (f *FakeOverpass) QueryCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.queries)
}
