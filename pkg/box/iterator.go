package box

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"sync"
)

// Done is returned by Iterator.Next once the collection is exhausted.
var Done = errors.New("box: no more items in iterator")

// PagingMode is how a collection endpoint continues from one page to the
// next. It is decided once, from the first page.
type PagingMode int

const (
	OffsetPaging PagingMode = iota
	MarkerPaging
)

func (m PagingMode) String() string {
	if m == OffsetPaging {
		return "offset"
	}
	return "marker"
}

// Cursor is the position of the next page an Iterator will request. It can be
// stored and handed back to a list call (as Offset or Marker) to resume.
type Cursor struct {
	Mode   PagingMode
	Offset int64
	Marker string
}

// Fetcher issues requests; *Client is the usual implementation.
type Fetcher interface {
	Do(ctx context.Context, req Request) (*Response, error)
}

// page holds the paging fields of a collection response.
type page struct {
	Entries    *[]json.RawMessage `json:"entries"`
	Offset     *int64             `json:"offset"`
	Limit      *int64             `json:"limit"`
	TotalCount *int64             `json:"total_count"`
	NextMarker *string            `json:"next_marker"`
}

func (p page) entries() []json.RawMessage {
	if p.Entries == nil {
		return nil
	}
	return *p.Entries
}

// Iterator walks a paged collection, requesting pages lazily as entries are
// consumed. Next may be called from several goroutines: calls are served one
// at a time, so at most one page request is in flight and entries come out
// in server order exactly once. An Iterator cannot be rewound.
type Iterator[T any] struct {
	mu      sync.Mutex
	fetcher Fetcher
	tmpl    Request
	mode    PagingMode
	limit   int64
	offset  int64
	marker  string
	buf     []json.RawMessage
	done    bool
}

// NewIterator builds an Iterator from the first page of a collection. resp
// must be the successful response to the list request; the request is
// replayed, with the paging parameter changed, to fetch later pages.
func NewIterator[T any](fetcher Fetcher, resp *Response) (*Iterator[T], error) {
	var p page
	if err := json.Unmarshal(resp.Body, &p); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNotPageable, err)
	}
	if p.Entries == nil {
		return nil, fmt.Errorf("%w: no entries in response to %s", ErrNotPageable, resp.Request)
	}

	it := &Iterator[T]{
		fetcher: fetcher,
		tmpl:    resp.Request.withoutAuth(),
	}

	if p.Limit != nil && *p.Limit > 0 {
		it.limit = *p.Limit
	} else {
		it.limit = int64(len(*p.Entries))
	}

	if p.Offset != nil {
		it.mode = OffsetPaging
		it.offset = *p.Offset
	} else {
		it.mode = MarkerPaging
	}

	if it.tmpl.Method != http.MethodGet && it.tmpl.Body != nil {
		body, err := bodyMap(it.tmpl.Body)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrNotPageable, err)
		}
		it.tmpl.Body = body
	}

	it.update(p)
	return it, nil
}

// Next returns the next entry, fetching a page if none is buffered. It
// returns Done when the collection is exhausted, and keeps returning Done on
// later calls.
func (it *Iterator[T]) Next(ctx context.Context) (T, error) {
	var zero T

	it.mu.Lock()
	defer it.mu.Unlock()

	// A page can come back empty without being the last one; keep going
	// until something is buffered or paging says we are finished.
	for len(it.buf) == 0 {
		if it.done {
			return zero, Done
		}
		if err := it.fetch(ctx); err != nil {
			return zero, err
		}
	}

	raw := it.buf[0]
	it.buf[0] = nil
	it.buf = it.buf[1:]

	var v T
	if err := json.Unmarshal(raw, &v); err != nil {
		return zero, fmt.Errorf("box: decode entry: %w", err)
	}
	return v, nil
}

// All drains the iterator.
func (it *Iterator[T]) All(ctx context.Context) ([]T, error) {
	var out []T
	for {
		v, err := it.Next(ctx)
		if errors.Is(err, Done) {
			return out, nil
		}
		if err != nil {
			return out, err
		}
		out = append(out, v)
	}
}

// Cursor returns the position of the next page request.
func (it *Iterator[T]) Cursor() Cursor {
	it.mu.Lock()
	defer it.mu.Unlock()
	return Cursor{Mode: it.mode, Offset: it.offset, Marker: it.marker}
}

// Mode reports the paging mode detected from the first page.
func (it *Iterator[T]) Mode() PagingMode {
	return it.mode
}

func (it *Iterator[T]) fetch(ctx context.Context) error {
	req, err := it.nextRequest()
	if err != nil {
		return err
	}

	resp, err := it.fetcher.Do(ctx, req)
	if err != nil {
		return err
	}
	if resp.StatusCode != http.StatusOK {
		return newUnexpectedResponseError(resp)
	}

	var p page
	if err := json.Unmarshal(resp.Body, &p); err != nil {
		return fmt.Errorf("box: decode page from %s: %w", req, err)
	}
	it.update(p)
	return nil
}

// nextRequest is the captured request with the paging field moved to the
// current cursor. GET endpoints page through the query string, the others
// through the JSON body.
func (it *Iterator[T]) nextRequest() (Request, error) {
	var (
		field string
		value interface{}
	)
	if it.mode == OffsetPaging {
		field, value = "offset", it.offset
	} else {
		field, value = "marker", it.marker
	}

	if it.tmpl.Method == http.MethodGet {
		var s string
		switch v := value.(type) {
		case int64:
			s = strconv.FormatInt(v, 10)
		case string:
			s = v
		}
		return it.tmpl.WithQuery(field, s), nil
	}
	return it.tmpl.WithBodyField(field, value)
}

// update merges a page into the iterator state.
func (it *Iterator[T]) update(p page) {
	entries := p.entries()

	switch it.mode {
	case OffsetPaging:
		offset := it.offset
		if p.Offset != nil {
			offset = *p.Offset
		}
		step := it.limit
		if step == 0 {
			step = int64(len(entries))
		}
		it.offset = offset + step
		switch {
		case step == 0:
			it.done = true
		case p.TotalCount != nil:
			it.done = offset+step >= *p.TotalCount
		default:
			it.done = len(entries) == 0
		}

	case MarkerPaging:
		// A page without a marker ends the collection, even if it
		// also lacks entries; there is nothing left to ask for.
		if p.NextMarker != nil && *p.NextMarker != "" {
			it.marker = *p.NextMarker
		} else {
			it.marker = ""
			it.done = true
		}
	}

	it.buf = append(it.buf, entries...)
}
