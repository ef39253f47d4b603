package box

import (
	"context"
	"encoding/json"
	"net/http"
)

type MetadataManager struct {
	client *Client
}

// MetadataQuery is the body of a metadata query. Marker resumes a previous
// query.
type MetadataQuery struct {
	From             string                 `json:"from"`
	AncestorFolderID string                 `json:"ancestor_folder_id"`
	Query            string                 `json:"query,omitempty"`
	QueryParams      map[string]interface{} `json:"query_params,omitempty"`
	Fields           []string               `json:"fields,omitempty"`
	Limit            int                    `json:"limit,omitempty"`
	Marker           string                 `json:"marker,omitempty"`
}

// Query executes a metadata query. The endpoint is a POST, so following pages
// are requested by replaying the body with the marker set.
func (m *MetadataManager) Query(ctx context.Context, q MetadataQuery) (*Iterator[json.RawMessage], error) {
	req := NewRequest(http.MethodPost, m.client.api("/metadata_queries/execute_read", nil))
	req.Body = q

	resp, err := m.client.call(ctx, req, nil, http.StatusOK)
	if err != nil {
		return nil, err
	}
	return NewIterator[json.RawMessage](m.client, resp)
}
