package box

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"time"
)

// MinChunkedUploadSize is the smallest file the server accepts through an
// upload session. Smaller files go up in a single request.
const MinChunkedUploadSize = 20 << 20

type FilesManager struct {
	client *Client
}

func (m *FilesManager) Get(ctx context.Context, fileID string) (*File, error) {
	req := NewRequest(http.MethodGet, m.client.api("/files/{id}", map[string]interface{}{"id": fileID}))

	var file File
	if _, err := m.client.call(ctx, req, &file, http.StatusOK); err != nil {
		return nil, err
	}
	return &file, nil
}

func (m *FilesManager) Delete(ctx context.Context, fileID string) error {
	req := NewRequest(http.MethodDelete, m.client.api("/files/{id}", map[string]interface{}{"id": fileID}))
	_, err := m.client.call(ctx, req, nil, http.StatusNoContent)
	return err
}

// NewChunkedUploader opens an upload session for a new file and returns an
// uploader for it. Nothing is uploaded until Start.
func (m *FilesManager) NewChunkedUploader(ctx context.Context, folderID, name string, content io.ReaderAt, size int64, opts UploaderOptions) (*ChunkedUploader, error) {
	session, err := m.client.UploadSessions.Create(ctx, folderID, size, name)
	if err != nil {
		return nil, err
	}
	return m.client.UploadSessions.Uploader(session, content, size, opts)
}

// NewVersionChunkedUploader is NewChunkedUploader for a new version of an
// existing file.
func (m *FilesManager) NewVersionChunkedUploader(ctx context.Context, fileID string, content io.ReaderAt, size int64, opts UploaderOptions) (*ChunkedUploader, error) {
	session, err := m.client.UploadSessions.CreateForVersion(ctx, fileID, size, "")
	if err != nil {
		return nil, err
	}
	return m.client.UploadSessions.Uploader(session, content, size, opts)
}

// Upload uploads content as a new file in folderID, through an upload
// session when it is at least MinChunkedUploadSize bytes.
func (m *FilesManager) Upload(ctx context.Context, folderID, name string, content io.ReaderAt, size int64, opts UploaderOptions) (*File, error) {
	if size >= MinChunkedUploadSize {
		u, err := m.NewChunkedUploader(ctx, folderID, name, content, size, opts)
		if err != nil {
			return nil, err
		}
		return u.Start(ctx)
	}

	attrs := map[string]interface{}{
		"name":   name,
		"parent": map[string]string{"id": folderID},
	}
	return m.singleUpload(ctx, m.client.upload("/files/content", nil), attrs, name, content, size, opts)
}

// UploadNewVersion uploads content as a new version of fileID.
func (m *FilesManager) UploadNewVersion(ctx context.Context, fileID, name string, content io.ReaderAt, size int64, opts UploaderOptions) (*File, error) {
	if size >= MinChunkedUploadSize {
		u, err := m.NewVersionChunkedUploader(ctx, fileID, content, size, opts)
		if err != nil {
			return nil, err
		}
		return u.Start(ctx)
	}

	attrs := map[string]interface{}{}
	if name != "" {
		attrs["name"] = name
	}
	return m.singleUpload(ctx, m.client.upload("/files/{id}/content", map[string]interface{}{"id": fileID}), attrs, name, content, size, opts)
}

func (m *FilesManager) singleUpload(ctx context.Context, url string, attrs map[string]interface{}, name string, content io.ReaderAt, size int64, opts UploaderOptions) (*File, error) {
	for k, v := range opts.Attributes {
		attrs[k] = v
	}
	if _, ok := attrs["content_modified_at"]; !ok {
		attrs["content_modified_at"] = m.client.clock.Now().UTC().Format(time.RFC3339)
	}
	jsonAttrs, err := json.Marshal(attrs)
	if err != nil {
		return nil, err
	}

	body := &bytes.Buffer{}
	w := multipart.NewWriter(body)
	if err := w.WriteField("attributes", string(jsonAttrs)); err != nil {
		return nil, err
	}
	fw, err := w.CreateFormFile("file", name)
	if err != nil {
		return nil, err
	}
	if _, err := io.Copy(fw, io.NewSectionReader(content, 0, size)); err != nil {
		return nil, fmt.Errorf("box: read upload content: %w", err)
	}
	if err := w.Close(); err != nil {
		return nil, err
	}

	req := NewRequest(http.MethodPost, url)
	req.Content = body.Bytes()
	req.Header.Set("Content-Type", w.FormDataContentType())

	var resp struct {
		Entries []File `json:"entries"`
	}
	// new files answer 201, new versions 200
	raw, err := m.client.call(ctx, req, &resp, http.StatusOK, http.StatusCreated)
	if err != nil {
		return nil, err
	}
	if len(resp.Entries) == 0 {
		return nil, &ResponseError{Code: "no_entries", Message: "upload returned no file", Response: raw}
	}

	file := resp.Entries[0]
	if opts.Progress != nil {
		opts.Progress(Progress{
			PartsUploaded: 1,
			TotalParts:    1,
			BytesUploaded: size,
			TotalBytes:    size,
		})
	}
	return &file, nil
}
