package box_test

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jdollar/box-go/internal/boxtest"
	"github.com/jdollar/box-go/pkg/box"
)

func TestFoldersGetItemsMarkerPaging(t *testing.T) {
	client, srv := newTestClient(t)
	srv.API(http.MethodGet, "/folders/{id}/items", func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		assert.Equal(t, "true", q.Get("usemarker"))
		assert.Equal(t, "name", q.Get("sort"))
		assert.Equal(t, "DESC", q.Get("direction"))
		if q.Get("marker") == "" {
			boxtest.JSON(w, http.StatusOK, map[string]interface{}{
				"entries":     []box.Item{{ID: "1", Type: "file", Name: "b"}},
				"limit":       1,
				"next_marker": "m1",
			})
			return
		}
		boxtest.JSON(w, http.StatusOK, map[string]interface{}{
			"entries": []box.Item{{ID: "2", Type: "folder", Name: "a"}},
			"limit":   1,
		})
	})

	it, err := client.Folders.GetItems(context.Background(), box.RootFolderID, box.ItemsOptions{
		Limit:     1,
		UseMarker: true,
		Sort:      "name",
		Direction: "DESC",
	})
	require.NoError(t, err)
	items, err := it.All(context.Background())
	require.NoError(t, err)
	require.Len(t, items, 2)
	assert.Equal(t, "b", items[0].Name)
	assert.Equal(t, "a", items[1].Name)
}

func TestFoldersCreateAndDelete(t *testing.T) {
	client, srv := newTestClient(t)
	srv.API(http.MethodPost, "/folders", func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			Name   string `json:"name"`
			Parent struct {
				ID string `json:"id"`
			} `json:"parent"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "backups", body.Name)
		assert.Equal(t, "0", body.Parent.ID)
		boxtest.JSON(w, http.StatusCreated, box.Folder{ID: "11", Type: "folder", Name: body.Name})
	})
	srv.API(http.MethodDelete, "/folders/{id}", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "true", r.URL.Query().Get("recursive"))
		w.WriteHeader(http.StatusNoContent)
	})

	folder, err := client.Folders.Create(context.Background(), "0", "backups")
	require.NoError(t, err)
	assert.Equal(t, "11", folder.ID)
	require.NoError(t, client.Folders.Delete(context.Background(), folder.ID, true))
	assert.Len(t, srv.RequestsTo(http.MethodDelete, boxtest.APIPrefix+"/folders/11"), 1)
}

func TestSearchFindFolder(t *testing.T) {
	client, srv := newTestClient(t)
	srv.API(http.MethodGet, "/search", func(w http.ResponseWriter, r *http.Request) {
		assert.NotEmpty(t, r.URL.Query().Get("query"))
		assert.Equal(t, "folder", r.URL.Query().Get("type"))
		if r.URL.Query().Get("offset") == "" {
			boxtest.JSON(w, http.StatusOK, map[string]interface{}{
				"entries":     []box.Item{{ID: "3", Type: "folder", Name: "old backups"}},
				"offset":      0,
				"limit":       1,
				"total_count": 2,
			})
			return
		}
		boxtest.JSON(w, http.StatusOK, map[string]interface{}{
			"entries":     []box.Item{{ID: "4", Type: "folder", Name: "backups"}},
			"offset":      1,
			"limit":       1,
			"total_count": 2,
		})
	})

	item, err := client.Search.FindFolder(context.Background(), "backups")
	require.NoError(t, err)
	require.NotNil(t, item)
	assert.Equal(t, "4", item.ID)

	none, err := client.Search.FindFolder(context.Background(), "backups2")
	require.NoError(t, err)
	assert.Nil(t, none)
}

func TestMetadataQueryPagesThroughBody(t *testing.T) {
	client, srv := newTestClient(t)
	srv.API(http.MethodPost, "/metadata_queries/execute_read", func(w http.ResponseWriter, r *http.Request) {
		var body map[string]interface{}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "enterprise_1.contract", body["from"])
		if body["marker"] == nil {
			boxtest.JSON(w, http.StatusOK, map[string]interface{}{
				"entries":     []map[string]string{{"id": "1"}},
				"limit":       1,
				"next_marker": "abc",
			})
			return
		}
		assert.Equal(t, "abc", body["marker"])
		boxtest.JSON(w, http.StatusOK, map[string]interface{}{
			"entries":     []map[string]string{{"id": "2"}},
			"limit":       1,
			"next_marker": nil,
		})
	})

	it, err := client.Metadata.Query(context.Background(), box.MetadataQuery{
		From:             "enterprise_1.contract",
		AncestorFolderID: "0",
		Limit:            1,
	})
	require.NoError(t, err)
	rows, err := it.All(context.Background())
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.JSONEq(t, `{"id":"2"}`, string(rows[1]))
	assert.Len(t, srv.Requests(), 2)
}

func TestUsersListUsesMarker(t *testing.T) {
	client, srv := newTestClient(t)
	srv.API(http.MethodGet, "/users", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "true", r.URL.Query().Get("usemarker"))
		boxtest.JSON(w, http.StatusOK, map[string]interface{}{
			"entries": []box.User{{ID: "u1", Type: "user", Name: "Ann"}},
			"limit":   100,
		})
	})

	it, err := client.Users.List(context.Background(), 100)
	require.NoError(t, err)
	assert.Equal(t, box.MarkerPaging, it.Mode())
	users, err := it.All(context.Background())
	require.NoError(t, err)
	require.Len(t, users, 1)
	assert.Equal(t, "Ann", users[0].Name)
}

func TestFilesSingleUpload(t *testing.T) {
	client, srv := newTestClient(t)
	content := []byte("hello, world")
	srv.Upload(http.MethodPost, "/files/content", func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseMultipartForm(1<<20))

		var attrs struct {
			Name   string `json:"name"`
			Parent struct {
				ID string `json:"id"`
			} `json:"parent"`
			ContentModifiedAt string `json:"content_modified_at"`
		}
		require.NoError(t, json.Unmarshal([]byte(r.FormValue("attributes")), &attrs))
		assert.Equal(t, "hello.txt", attrs.Name)
		assert.Equal(t, "5", attrs.Parent.ID)
		assert.NotEmpty(t, attrs.ContentModifiedAt)

		f, header, err := r.FormFile("file")
		require.NoError(t, err)
		defer f.Close()
		assert.Equal(t, "hello.txt", header.Filename)
		data, err := io.ReadAll(f)
		require.NoError(t, err)
		assert.Equal(t, content, data)

		boxtest.JSON(w, http.StatusCreated, map[string]interface{}{
			"total_count": 1,
			"entries":     []box.File{{ID: "f9", Type: "file", Name: "hello.txt"}},
		})
	})

	var progressed bool
	file, err := client.Files.Upload(context.Background(), "5", "hello.txt",
		bytes.NewReader(content), int64(len(content)), box.UploaderOptions{
			Progress: func(p box.Progress) { progressed = p.BytesUploaded == int64(len(content)) },
		})
	require.NoError(t, err)
	assert.Equal(t, "f9", file.ID)
	assert.True(t, progressed)
	assert.Empty(t, srv.RequestsTo(http.MethodPost, boxtest.UploadPrefix+"/files/upload_sessions"))
}

func TestFilesUploadNewVersion(t *testing.T) {
	client, srv := newTestClient(t)
	content := []byte("second draft")
	srv.Upload(http.MethodPost, "/files/{id}/content", func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseMultipartForm(1<<20))
		var attrs map[string]interface{}
		require.NoError(t, json.Unmarshal([]byte(r.FormValue("attributes")), &attrs))
		assert.Equal(t, "draft.txt", attrs["name"])
		assert.NotContains(t, attrs, "parent")

		boxtest.JSON(w, http.StatusOK, map[string]interface{}{
			"total_count": 1,
			"entries":     []box.File{{ID: "f1", Type: "file", Name: "draft.txt"}},
		})
	})

	file, err := client.Files.UploadNewVersion(context.Background(), "f1", "draft.txt",
		bytes.NewReader(content), int64(len(content)), box.UploaderOptions{})
	require.NoError(t, err)
	assert.Equal(t, "f1", file.ID)
	assert.Len(t, srv.RequestsTo(http.MethodPost, boxtest.UploadPrefix+"/files/f1/content"), 1)
}

func TestFilesDelete(t *testing.T) {
	client, srv := newTestClient(t)
	srv.API(http.MethodDelete, "/files/{id}", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})
	require.NoError(t, client.Files.Delete(context.Background(), "12"))
	assert.Len(t, srv.RequestsTo(http.MethodDelete, boxtest.APIPrefix+"/files/12"), 1)
}

func TestGetLongPollInfoWithoutServer(t *testing.T) {
	client, srv := newTestClient(t)
	srv.API(http.MethodOptions, "/events", func(w http.ResponseWriter, r *http.Request) {
		boxtest.JSON(w, http.StatusOK, map[string]interface{}{"chunk_size": 0, "entries": []interface{}{}})
	})

	_, err := client.Events.GetLongPollInfo(context.Background())
	var rerr *box.ResponseError
	require.ErrorAs(t, err, &rerr)
	assert.Equal(t, "no_realtime_server", rerr.Code)
}
