package box

import (
	"context"
	"crypto/sha1"
	"encoding/base64"
	"fmt"
	"net/http"
	"sort"
	"strconv"
	"time"

	"github.com/sirupsen/logrus"
)

// defaultCommitRetryAfter is the wait before retrying a commit the server
// accepted but has not finished, when it does not say how long to wait.
const defaultCommitRetryAfter = time.Second

type UploadSessionsManager struct {
	client *Client
}

// Create opens an upload session for a new file of size bytes in folderID.
func (m *UploadSessionsManager) Create(ctx context.Context, folderID string, size int64, name string) (*UploadSession, error) {
	req := NewRequest(http.MethodPost, m.client.upload("/files/upload_sessions", nil))
	req.Body = struct {
		FolderID string `json:"folder_id"`
		FileSize int64  `json:"file_size"`
		FileName string `json:"file_name"`
	}{folderID, size, name}

	var session UploadSession
	if _, err := m.client.call(ctx, req, &session, http.StatusCreated); err != nil {
		return nil, err
	}
	return &session, nil
}

// CreateForVersion opens an upload session for a new version of fileID. name
// is optional and renames the file.
func (m *UploadSessionsManager) CreateForVersion(ctx context.Context, fileID string, size int64, name string) (*UploadSession, error) {
	req := NewRequest(http.MethodPost, m.client.upload("/files/{id}/upload_sessions", map[string]interface{}{"id": fileID}))
	req.Body = struct {
		FileSize int64  `json:"file_size"`
		FileName string `json:"file_name,omitempty"`
	}{size, name}

	var session UploadSession
	if _, err := m.client.call(ctx, req, &session, http.StatusCreated); err != nil {
		return nil, err
	}
	return &session, nil
}

func (m *UploadSessionsManager) Get(ctx context.Context, sessionID string) (*UploadSession, error) {
	req := NewRequest(http.MethodGet, m.client.upload("/files/upload_sessions/{id}", map[string]interface{}{"id": sessionID}))

	var session UploadSession
	if _, err := m.client.call(ctx, req, &session, http.StatusOK); err != nil {
		return nil, err
	}
	return &session, nil
}

// UploadPart uploads data as the part starting at offset of a total byte
// file.
func (m *UploadSessionsManager) UploadPart(ctx context.Context, sessionID string, data []byte, offset, total int64) (*UploadPart, error) {
	digest := sha1.Sum(data)
	return m.uploadPart(ctx, sessionID, data, digest[:], offset, total)
}

func (m *UploadSessionsManager) uploadPart(ctx context.Context, sessionID string, data, digest []byte, offset, total int64) (*UploadPart, error) {
	req := NewRequest(http.MethodPut, m.client.upload("/files/upload_sessions/{id}", map[string]interface{}{"id": sessionID}))
	req.Content = data
	req.Header.Set("Content-Type", "application/octet-stream")
	req.Header.Set("Content-Range", fmt.Sprintf("bytes %d-%d/%d", offset, offset+int64(len(data))-1, total))
	req.Header.Set("Digest", "SHA="+base64.StdEncoding.EncodeToString(digest))

	var resp struct {
		Part UploadPart `json:"part"`
	}
	if _, err := m.client.call(ctx, req, &resp, http.StatusOK); err != nil {
		return nil, err
	}
	return &resp.Part, nil
}

// ListParts lists the parts the server holds for a session.
func (m *UploadSessionsManager) ListParts(ctx context.Context, sessionID string, limit int) (*Iterator[UploadPart], error) {
	req := NewRequest(http.MethodGet, m.client.upload("/files/upload_sessions/{id}/parts", map[string]interface{}{"id": sessionID}))
	if limit > 0 {
		req.Query.Set("limit", strconv.Itoa(limit))
	}

	resp, err := m.client.call(ctx, req, nil, http.StatusOK)
	if err != nil {
		return nil, err
	}
	return NewIterator[UploadPart](m.client, resp)
}

type byOffset []UploadPart

func (a byOffset) Len() int           { return len(a) }
func (a byOffset) Swap(i, j int)      { a[i], a[j] = a[j], a[i] }
func (a byOffset) Less(i, j int) bool { return a[i].Offset < a[j].Offset }

// Commit turns the uploaded parts into a file. digest is the SHA-1 of the
// whole file. When parts is nil they are listed from the server. While the
// server answers 202 (still processing) the commit is repeated after its
// Retry-After delay with the same parts.
func (m *UploadSessionsManager) Commit(ctx context.Context, sessionID string, digest []byte, parts []UploadPart, attributes map[string]interface{}) (*File, error) {
	if parts == nil {
		it, err := m.ListParts(ctx, sessionID, 1000)
		if err != nil {
			return nil, err
		}
		if parts, err = it.All(ctx); err != nil {
			return nil, err
		}
	}
	parts = append([]UploadPart(nil), parts...)
	sort.Sort(byOffset(parts))

	body := map[string]interface{}{"parts": parts}
	if len(attributes) > 0 {
		body["attributes"] = attributes
	}
	req := NewRequest(http.MethodPost, m.client.upload("/files/upload_sessions/{id}/commit", map[string]interface{}{"id": sessionID}))
	req.Body = body
	req.Header.Set("Digest", "SHA="+base64.StdEncoding.EncodeToString(digest))

	log := m.client.log.WithField("session_id", sessionID)
	for {
		resp, err := m.client.Do(ctx, req)
		if err != nil {
			return nil, err
		}

		switch resp.StatusCode {
		case http.StatusCreated:
			var files struct {
				Entries []File `json:"entries"`
			}
			if err := resp.Decode(&files); err != nil {
				return nil, err
			}
			if len(files.Entries) == 0 {
				return nil, &ResponseError{Code: "no_entries", Message: "commit returned no file", Response: resp}
			}
			return &files.Entries[0], nil

		case http.StatusAccepted:
			delay := retryAfter(resp.Header, defaultCommitRetryAfter)
			log.WithFields(logrus.Fields{
				"delay": delay,
				"parts": len(parts),
			}).Info("Commit accepted but not finished, retrying")
			if err := sleep(ctx, m.client.clock, delay); err != nil {
				return nil, err
			}

		default:
			return nil, newUnexpectedResponseError(resp)
		}
	}
}

// Abort deletes the session and the parts uploaded to it.
func (m *UploadSessionsManager) Abort(ctx context.Context, sessionID string) error {
	req := NewRequest(http.MethodDelete, m.client.upload("/files/upload_sessions/{id}", map[string]interface{}{"id": sessionID}))
	_, err := m.client.call(ctx, req, nil, http.StatusNoContent)
	return err
}
