package box

import (
	"context"
	"net/http"
	"strconv"
	"strings"
	"time"
)

const (
	StreamTypeAll     = "all"
	StreamTypeChanges = "changes"
	StreamTypeSync    = "sync"

	StreamTypeAdminLogs          = "admin_logs"
	StreamTypeAdminLogsStreaming = "admin_logs_streaming"
)

type EventsManager struct {
	client *Client
}

// EventsQuery selects a page of user events.
type EventsQuery struct {
	StreamPosition StreamPosition
	StreamType     string
	Limit          int
}

// EnterpriseEventsQuery selects a page of enterprise (admin log) events.
type EnterpriseEventsQuery struct {
	StreamPosition StreamPosition
	StreamType     string
	Limit          int
	CreatedAfter   time.Time
	CreatedBefore  time.Time
	EventTypes     []string
}

// GetLongPollInfo asks which real-time server to long poll.
func (m *EventsManager) GetLongPollInfo(ctx context.Context) (*LongPollInfo, error) {
	var resp struct {
		ChunkSize int            `json:"chunk_size"`
		Entries   []LongPollInfo `json:"entries"`
	}
	req := NewRequest(http.MethodOptions, m.client.api("/events", nil))
	raw, err := m.client.call(ctx, req, &resp, http.StatusOK)
	if err != nil {
		return nil, err
	}

	for i := range resp.Entries {
		if resp.Entries[i].Type == "realtime_server" {
			return &resp.Entries[i], nil
		}
	}
	if len(resp.Entries) > 0 && resp.Entries[0].URL != "" {
		return &resp.Entries[0], nil
	}
	return nil, &ResponseError{
		Code:     "no_realtime_server",
		Message:  "long poll info has no real-time server",
		Response: raw,
	}
}

// Get fetches one page of user events.
func (m *EventsManager) Get(ctx context.Context, q EventsQuery) (*EventCollection, error) {
	req := NewRequest(http.MethodGet, m.client.api("/events", nil))
	if q.StreamPosition != "" {
		req.Query.Set("stream_position", string(q.StreamPosition))
	}
	if q.StreamType != "" {
		req.Query.Set("stream_type", q.StreamType)
	}
	if q.Limit > 0 {
		req.Query.Set("limit", strconv.Itoa(q.Limit))
	}

	var coll EventCollection
	if _, err := m.client.call(ctx, req, &coll, http.StatusOK); err != nil {
		return nil, err
	}
	return &coll, nil
}

// GetCurrentStreamPosition returns the position of the newest event.
func (m *EventsManager) GetCurrentStreamPosition(ctx context.Context) (StreamPosition, error) {
	coll, err := m.Get(ctx, EventsQuery{StreamPosition: StreamPositionNow})
	if err != nil {
		return "", err
	}
	return coll.NextStreamPosition, nil
}

// GetEnterpriseEvents fetches one page of enterprise events.
func (m *EventsManager) GetEnterpriseEvents(ctx context.Context, q EnterpriseEventsQuery) (*EventCollection, error) {
	if q.StreamType == "" {
		q.StreamType = StreamTypeAdminLogs
	}
	req := NewRequest(http.MethodGet, m.client.api("/events", nil))
	req.Query.Set("stream_type", q.StreamType)
	if q.StreamPosition != "" {
		req.Query.Set("stream_position", string(q.StreamPosition))
	}
	if q.Limit > 0 {
		req.Query.Set("limit", strconv.Itoa(q.Limit))
	}
	if !q.CreatedAfter.IsZero() {
		req.Query.Set("created_after", q.CreatedAfter.UTC().Format(time.RFC3339))
	}
	if !q.CreatedBefore.IsZero() {
		req.Query.Set("created_before", q.CreatedBefore.UTC().Format(time.RFC3339))
	}
	if len(q.EventTypes) > 0 {
		req.Query.Set("event_type", strings.Join(q.EventTypes, ","))
	}

	var coll EventCollection
	if _, err := m.client.call(ctx, req, &coll, http.StatusOK); err != nil {
		return nil, err
	}
	return &coll, nil
}

// longPoll blocks on the real-time server until it reports a change or asks
// to reconnect, and returns its message.
func (m *EventsManager) longPoll(ctx context.Context, info *LongPollInfo, pos StreamPosition) (string, error) {
	req := NewRequest(http.MethodGet, info.URL).WithQuery("stream_position", string(pos))
	if info.RetryTimeout > 0 {
		req.Timeout = time.Duration(info.RetryTimeout) * time.Second
	}

	var resp struct {
		Message string `json:"message"`
	}
	if _, err := m.client.call(ctx, req, &resp, http.StatusOK); err != nil {
		return "", err
	}
	return resp.Message, nil
}
