package box

import (
	"context"
	"net/http"
	"strconv"
	"strings"
)

// RootFolderID is the ID of a user's root folder.
const RootFolderID = "0"

type FoldersManager struct {
	client *Client
}

func (m *FoldersManager) Get(ctx context.Context, folderID string) (*Folder, error) {
	req := NewRequest(http.MethodGet, m.client.api("/folders/{id}", map[string]interface{}{"id": folderID}))

	var folder Folder
	if _, err := m.client.call(ctx, req, &folder, http.StatusOK); err != nil {
		return nil, err
	}
	return &folder, nil
}

// Create creates a folder called name inside parentID.
func (m *FoldersManager) Create(ctx context.Context, parentID, name string) (*Folder, error) {
	type parent struct {
		ID string `json:"id"`
	}
	req := NewRequest(http.MethodPost, m.client.api("/folders", nil))
	req.Body = struct {
		Name   string `json:"name"`
		Parent parent `json:"parent"`
	}{name, parent{parentID}}

	var folder Folder
	if _, err := m.client.call(ctx, req, &folder, http.StatusCreated); err != nil {
		return nil, err
	}
	return &folder, nil
}

// Delete deletes a folder. A folder that is not empty is only deleted when
// recursive is set.
func (m *FoldersManager) Delete(ctx context.Context, folderID string, recursive bool) error {
	req := NewRequest(http.MethodDelete, m.client.api("/folders/{id}", map[string]interface{}{"id": folderID}))
	if recursive {
		req.Query.Set("recursive", "true")
	}
	_, err := m.client.call(ctx, req, nil, http.StatusNoContent)
	return err
}

// ItemsOptions selects the page and order of a folder listing.
type ItemsOptions struct {
	Limit int
	// Offset starts an offset paged listing part way through.
	Offset int64
	// UseMarker switches to marker paging, optionally resuming at Marker.
	UseMarker bool
	Marker    string
	Sort      string
	Direction string
	Fields    []string
}

// GetItems lists the items of a folder.
func (m *FoldersManager) GetItems(ctx context.Context, folderID string, opts ItemsOptions) (*Iterator[Item], error) {
	req := NewRequest(http.MethodGet, m.client.api("/folders/{id}/items", map[string]interface{}{"id": folderID}))
	if opts.Limit > 0 {
		req.Query.Set("limit", strconv.Itoa(opts.Limit))
	}
	if opts.UseMarker {
		req.Query.Set("usemarker", "true")
		if opts.Marker != "" {
			req.Query.Set("marker", opts.Marker)
		}
	} else if opts.Offset > 0 {
		req.Query.Set("offset", strconv.FormatInt(opts.Offset, 10))
	}
	if opts.Sort != "" {
		req.Query.Set("sort", opts.Sort)
	}
	if opts.Direction != "" {
		req.Query.Set("direction", opts.Direction)
	}
	if len(opts.Fields) > 0 {
		req.Query.Set("fields", strings.Join(opts.Fields, ","))
	}

	resp, err := m.client.call(ctx, req, nil, http.StatusOK)
	if err != nil {
		return nil, err
	}
	return NewIterator[Item](m.client, resp)
}
