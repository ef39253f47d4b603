package box

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Request describes an API call independently of any connection. Requests are
// values: the With* helpers return modified copies and never touch the
// receiver, so a Request can be kept around and replayed (the paging iterator
// does exactly that with the request that produced its first page).
type Request struct {
	Method string
	// URL is the absolute endpoint URL without a query string.
	URL    string
	Header http.Header
	Query  url.Values

	// Body is encoded as JSON when non-nil.
	Body interface{}
	// Content is sent verbatim when Body is nil. The Content-Type header
	// should be set alongside it.
	Content []byte

	// Timeout bounds this request, overriding the client's default.
	Timeout time.Duration
}

// NewRequest builds a Request for method and rawURL. A query string on rawURL
// is moved into Query.
func NewRequest(method, rawURL string) Request {
	r := Request{
		Method: method,
		URL:    rawURL,
		Header: http.Header{},
		Query:  url.Values{},
	}
	if i := strings.IndexByte(rawURL, '?'); i >= 0 {
		r.URL = rawURL[:i]
		if q, err := url.ParseQuery(rawURL[i+1:]); err == nil {
			r.Query = q
		}
	}
	return r
}

func (r Request) clone() Request {
	out := r
	out.Header = r.Header.Clone()
	if out.Header == nil {
		out.Header = http.Header{}
	}
	out.Query = url.Values{}
	for k, v := range r.Query {
		out.Query[k] = append([]string(nil), v...)
	}
	if m, ok := r.Body.(map[string]interface{}); ok {
		body := make(map[string]interface{}, len(m))
		for k, v := range m {
			body[k] = v
		}
		out.Body = body
	}
	if r.Content != nil {
		out.Content = append([]byte(nil), r.Content...)
	}
	return out
}

// WithQuery returns a copy of r with the query parameter key set to value.
func (r Request) WithQuery(key, value string) Request {
	out := r.clone()
	out.Query.Set(key, value)
	return out
}

// WithHeader returns a copy of r with the header key set to value.
func (r Request) WithHeader(key, value string) Request {
	out := r.clone()
	out.Header.Set(key, value)
	return out
}

// WithBodyField returns a copy of r whose JSON body has key set to value. The
// body must be nil, a map or something that encodes to a JSON object.
func (r Request) WithBodyField(key string, value interface{}) (Request, error) {
	out := r.clone()
	body, err := bodyMap(out.Body)
	if err != nil {
		return r, err
	}
	body[key] = value
	out.Body = body
	return out, nil
}

// withoutAuth drops the credential so that replaying the request lets the
// transport authenticate again.
func (r Request) withoutAuth() Request {
	out := r.clone()
	out.Header.Del("Authorization")
	return out
}

func bodyMap(body interface{}) (map[string]interface{}, error) {
	switch b := body.(type) {
	case nil:
		return map[string]interface{}{}, nil
	case map[string]interface{}:
		return b, nil
	}
	buf, err := json.Marshal(body)
	if err != nil {
		return nil, err
	}
	m := map[string]interface{}{}
	if err := json.Unmarshal(buf, &m); err != nil {
		return nil, fmt.Errorf("request body is not a JSON object: %w", err)
	}
	return m, nil
}

func (r Request) String() string {
	return r.Method + " " + r.URL
}

func (r Request) build(ctx context.Context) (*http.Request, error) {
	var body io.Reader
	switch {
	case r.Body != nil:
		buf, err := json.Marshal(r.Body)
		if err != nil {
			return nil, fmt.Errorf("marshal request failed: %w", err)
		}
		body = bytes.NewReader(buf)
	case r.Content != nil:
		body = bytes.NewReader(r.Content)
	}

	u := r.URL
	if len(r.Query) > 0 {
		u += "?" + r.Query.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, r.Method, u, body)
	if err != nil {
		return nil, fmt.Errorf("create request failed: %w", err)
	}
	for k, v := range r.Header {
		req.Header[k] = append([]string(nil), v...)
	}
	if r.Body != nil && req.Header.Get("Content-Type") == "" {
		req.Header.Set("Content-Type", "application/json")
	}
	return req, nil
}

// Response is a fully read API response together with the request that
// produced it.
type Response struct {
	StatusCode int
	Header     http.Header
	Body       []byte
	Request    Request
}

// Decode unmarshals the JSON body into v.
func (r *Response) Decode(v interface{}) error {
	if err := json.Unmarshal(r.Body, v); err != nil {
		return fmt.Errorf("decode response failed: %w", err)
	}
	return nil
}
