package box

import (
	"context"
	"net/http"
	"strconv"
)

type SearchManager struct {
	client *Client
}

// SearchOptions narrows a search.
type SearchOptions struct {
	// Type is "file", "folder" or "web_link".
	Type  string
	Limit int
}

// Query runs a full text search.
func (m *SearchManager) Query(ctx context.Context, query string, opts SearchOptions) (*Iterator[Item], error) {
	req := NewRequest(http.MethodGet, m.client.api("/search", nil))
	req.Query.Set("query", query)
	if opts.Type != "" {
		req.Query.Set("type", opts.Type)
	}
	if opts.Limit > 0 {
		req.Query.Set("limit", strconv.Itoa(opts.Limit))
	}

	resp, err := m.client.call(ctx, req, nil, http.StatusOK)
	if err != nil {
		return nil, err
	}
	return NewIterator[Item](m.client, resp)
}

// FindFolder returns the first folder named exactly name, or nil when there
// is none. Search matches loosely, so results are filtered by name.
func (m *SearchManager) FindFolder(ctx context.Context, name string) (*Item, error) {
	it, err := m.Query(ctx, name, SearchOptions{Type: "folder"})
	if err != nil {
		return nil, err
	}
	for {
		item, err := it.Next(ctx)
		if err == Done {
			return nil, nil
		}
		if err != nil {
			return nil, err
		}
		if item.Type == "folder" && item.Name == name {
			return &item, nil
		}
	}
}
