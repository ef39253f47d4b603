// Package boxtest runs a fake API server for tests.
package boxtest

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"

	"github.com/jdollar/box-go/pkg/box"
)

const (
	APIPrefix    = "/2.0"
	UploadPrefix = "/upload/2.0"
)

// Request is a request the server received.
type Request struct {
	Method string
	Path   string
	Query  url.Values
	Header http.Header
	Body   []byte
}

// Decode unmarshals the recorded JSON body into v.
func (r Request) Decode(v interface{}) error {
	return json.Unmarshal(r.Body, v)
}

// Server is an httptest server routing with a gorilla/mux Router. Every
// request is recorded before it is routed; unrouted requests get a 404.
type Server struct {
	*httptest.Server
	Router *mux.Router

	mu       sync.Mutex
	requests []Request
}

// NewServer starts a Server that is closed when the test ends.
func NewServer(t testing.TB) *Server {
	s := &Server{Router: mux.NewRouter()}
	s.Server = httptest.NewServer(http.HandlerFunc(s.serve))
	t.Cleanup(s.Close)
	return s
}

func (s *Server) serve(w http.ResponseWriter, r *http.Request) {
	body, _ := io.ReadAll(r.Body)
	r.Body = io.NopCloser(bytes.NewReader(body))

	s.mu.Lock()
	s.requests = append(s.requests, Request{
		Method: r.Method,
		Path:   r.URL.Path,
		Query:  r.URL.Query(),
		Header: r.Header.Clone(),
		Body:   body,
	})
	s.mu.Unlock()

	s.Router.ServeHTTP(w, r)
}

// Handle routes method requests for path (relative to the server root) to h.
func (s *Server) Handle(method, path string, h http.HandlerFunc) *mux.Route {
	return s.Router.Methods(method).Path(path).HandlerFunc(h)
}

// API routes an API endpoint, path being relative to the API root.
func (s *Server) API(method, path string, h http.HandlerFunc) *mux.Route {
	return s.Handle(method, APIPrefix+path, h)
}

// Upload routes an upload endpoint, path being relative to the upload root.
func (s *Server) Upload(method, path string, h http.HandlerFunc) *mux.Route {
	return s.Handle(method, UploadPrefix+path, h)
}

// Requests returns every request received so far.
func (s *Server) Requests() []Request {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Request(nil), s.requests...)
}

// RequestsTo returns the requests received for method and the full path.
func (s *Server) RequestsTo(method, path string) []Request {
	var out []Request
	for _, r := range s.Requests() {
		if r.Method == method && r.Path == path {
			out = append(out, r)
		}
	}
	return out
}

// ClientOpts returns options for a client talking to the server with a
// static token, short retry delays and a private metrics registry.
func (s *Server) ClientOpts() box.ClientOpts {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return box.ClientOpts{
		AccessToken:    "test-token",
		APIURL:         s.URL + APIPrefix,
		UploadURL:      s.URL + UploadPrefix,
		HTTPClient:     s.Client(),
		RetryBaseDelay: time.Millisecond,
		Logger:         log,
		Registerer:     prometheus.NewRegistry(),
	}
}

// JSON writes v as a JSON response with status.
func JSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// Error writes an API error body.
func Error(w http.ResponseWriter, status int, code, message string) {
	JSON(w, status, box.ClientError{
		Type:    "error",
		Status:  status,
		Code:    code,
		Message: message,
	})
}
