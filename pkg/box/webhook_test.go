package box_test

import (
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/assert"

	"github.com/jdollar/box-go/pkg/box"
)

func signedHeaders(body []byte, timestamp, primary, secondary string) http.Header {
	h := http.Header{}
	h.Set("Box-Signature-Version", "1")
	h.Set("Box-Signature-Algorithm", "HmacSHA256")
	h.Set("Box-Delivery-Timestamp", timestamp)
	if primary != "" {
		h.Set("Box-Signature-Primary", box.SignWebhook(primary, body, timestamp))
	}
	if secondary != "" {
		h.Set("Box-Signature-Secondary", box.SignWebhook(secondary, body, timestamp))
	}
	return h
}

func TestWebhookVerifier(t *testing.T) {
	body := []byte(`{"type":"webhook_event","trigger":"FILE.UPLOADED"}`)
	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	mock := clock.NewMock()
	mock.Set(now)
	ts := now.Add(-time.Minute).Format(time.RFC3339)

	v := &box.WebhookVerifier{PrimaryKey: "primary", SecondaryKey: "secondary", Clock: mock}

	assert.NoError(t, v.Verify(body, signedHeaders(body, ts, "primary", "")))
	// rotated primary key, secondary still valid
	assert.NoError(t, v.Verify(body, signedHeaders(body, ts, "old", "secondary")))

	tbl := []struct {
		name   string
		header http.Header
		body   []byte
	}{
		{"wrong key", signedHeaders(body, ts, "nope", "nope"), body},
		{"tampered body", signedHeaders(body, ts, "primary", ""), []byte(`{}`)},
		{"stale", signedHeaders(body, now.Add(-11*time.Minute).Format(time.RFC3339), "primary", ""), body},
		{"bad timestamp", signedHeaders(body, "yesterday", "primary", ""), body},
	}
	for _, tc := range tbl {
		err := v.Verify(tc.body, tc.header)
		assert.True(t, errors.Is(err, box.ErrInvalidSignature), tc.name)
	}

	h := signedHeaders(body, ts, "primary", "")
	h.Set("Box-Signature-Version", "2")
	assert.True(t, errors.Is(v.Verify(body, h), box.ErrInvalidSignature))

	h = signedHeaders(body, ts, "primary", "")
	h.Set("Box-Signature-Algorithm", "HmacSHA1")
	assert.True(t, errors.Is(v.Verify(body, h), box.ErrInvalidSignature))
}
