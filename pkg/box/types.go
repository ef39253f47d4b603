package box

import (
	"bytes"
	"encoding/json"
	"math/big"
	"strconv"
	"time"
)

// Folder is a folder object as returned by the folders endpoints.
type Folder struct {
	ID         string    `json:"id"`
	Type       string    `json:"type"`
	Name       string    `json:"name"`
	ETag       string    `json:"etag,omitempty"`
	SequenceID string    `json:"sequence_id,omitempty"`
	Size       int64     `json:"size,omitempty"`
	CreatedAt  time.Time `json:"created_at,omitempty"`
	ModifiedAt time.Time `json:"modified_at,omitempty"`
	Parent     *Folder   `json:"parent,omitempty"`
}

// File is a file object.
type File struct {
	ID         string    `json:"id"`
	Type       string    `json:"type"`
	Name       string    `json:"name"`
	ETag       string    `json:"etag,omitempty"`
	SequenceID string    `json:"sequence_id,omitempty"`
	SHA1       string    `json:"sha1,omitempty"`
	Size       int64     `json:"size,omitempty"`
	CreatedAt  time.Time `json:"created_at,omitempty"`
	ModifiedAt time.Time `json:"modified_at,omitempty"`
	Parent     *Folder   `json:"parent,omitempty"`
}

// Item is an entry of a folder listing or search result: a file, folder or
// web link.
type Item struct {
	ID         string    `json:"id"`
	Type       string    `json:"type"`
	Name       string    `json:"name"`
	ETag       string    `json:"etag,omitempty"`
	SHA1       string    `json:"sha1,omitempty"`
	Size       int64     `json:"size,omitempty"`
	ModifiedAt time.Time `json:"modified_at,omitempty"`
}

type User struct {
	ID    string `json:"id"`
	Type  string `json:"type"`
	Name  string `json:"name"`
	Login string `json:"login,omitempty"`
}

type SessionEndpoints struct {
	Abort      string `json:"abort"`
	Commit     string `json:"commit"`
	ListParts  string `json:"list_parts"`
	LogEvent   string `json:"log_event"`
	Status     string `json:"status"`
	UploadPart string `json:"upload_part"`
}

// UploadSession is a server side chunked upload in progress.
type UploadSession struct {
	ID                string           `json:"id"`
	Type              string           `json:"type"`
	NumPartsProcessed int              `json:"num_parts_processed"`
	PartSize          int64            `json:"part_size"`
	SessionEndpoints  SessionEndpoints `json:"session_endpoints"`
	SessionExpiresAt  string           `json:"session_expires_at"`
	TotalParts        int              `json:"total_parts"`
}

// UploadPart is a part acknowledged by the server.
type UploadPart struct {
	PartID string `json:"part_id"`
	Offset int64  `json:"offset"`
	Size   int64  `json:"size"`
	SHA1   string `json:"sha1"`
}

// Event is an entry of the user or enterprise event stream. Source and
// AdditionalDetails depend on the event type and are left undecoded.
type Event struct {
	Type              string          `json:"type"`
	ID                string          `json:"event_id"`
	EventType         string          `json:"event_type"`
	CreatedAt         string          `json:"created_at,omitempty"`
	RecordedAt        string          `json:"recorded_at,omitempty"`
	SessionID         string          `json:"session_id,omitempty"`
	CreatedBy         *User           `json:"created_by,omitempty"`
	Source            json.RawMessage `json:"source,omitempty"`
	AdditionalDetails json.RawMessage `json:"additional_details,omitempty"`
}

// EventCollection is one page of events.
type EventCollection struct {
	ChunkSize          int            `json:"chunk_size"`
	NextStreamPosition StreamPosition `json:"next_stream_position"`
	Entries            []Event        `json:"entries"`
}

// LongPollInfo describes the real-time server to long poll for changes.
type LongPollInfo struct {
	Type         string   `json:"type"`
	URL          string   `json:"url"`
	TTL          looseInt `json:"ttl"`
	MaxRetries   looseInt `json:"max_retries"`
	RetryTimeout looseInt `json:"retry_timeout"`
}

// StreamPosition is an opaque event stream cursor. The API sends it as a
// number for user events and as a string for enterprise events. The empty
// value means "unset"; "0" means the start of the available history.
type StreamPosition string

const (
	StreamPositionNow   StreamPosition = "now"
	StreamPositionStart StreamPosition = "0"
)

func (p *StreamPosition) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if bytes.Equal(b, []byte("null")) {
		*p = ""
		return nil
	}
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*p = StreamPosition(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return err
	}
	*p = StreamPosition(n.String())
	return nil
}

// before reports whether p is numerically smaller than q. Positions that are
// not both numbers are never ordered.
func (p StreamPosition) before(q StreamPosition) bool {
	a, ok1 := new(big.Int).SetString(string(p), 10)
	b, ok2 := new(big.Int).SetString(string(q), 10)
	return ok1 && ok2 && a.Cmp(b) < 0
}

// looseInt accepts both 10 and "10".
type looseInt int64

func (i *looseInt) UnmarshalJSON(b []byte) error {
	b = bytes.Trim(bytes.TrimSpace(b), `"`)
	if len(b) == 0 || bytes.Equal(b, []byte("null")) {
		*i = 0
		return nil
	}
	n, err := strconv.ParseInt(string(b), 10, 64)
	if err != nil {
		return err
	}
	*i = looseInt(n)
	return nil
}
