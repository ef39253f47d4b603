package box

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"net/http"
	"time"

	"github.com/benbjohnson/clock"
)

const (
	defaultWebhookMaxAge = 10 * time.Minute

	webhookSignatureVersion   = "1"
	webhookSignatureAlgorithm = "HmacSHA256"
)

// WebhookVerifier checks that a webhook delivery was signed with one of the
// application's signature keys and is recent.
type WebhookVerifier struct {
	PrimaryKey   string
	SecondaryKey string
	// MaxAge rejects deliveries timestamped further in the past. Defaults
	// to 10 minutes.
	MaxAge time.Duration
	Clock  clock.Clock
}

// Verify returns nil when body and headers form a valid delivery, and an
// error wrapping ErrInvalidSignature otherwise.
func (v *WebhookVerifier) Verify(body []byte, headers http.Header) error {
	if got := headers.Get("Box-Signature-Version"); got != webhookSignatureVersion {
		return fmt.Errorf("%w: unsupported signature version %q", ErrInvalidSignature, got)
	}
	if got := headers.Get("Box-Signature-Algorithm"); got != webhookSignatureAlgorithm {
		return fmt.Errorf("%w: unsupported signature algorithm %q", ErrInvalidSignature, got)
	}

	timestamp := headers.Get("Box-Delivery-Timestamp")
	delivered, err := time.Parse(time.RFC3339, timestamp)
	if err != nil {
		return fmt.Errorf("%w: bad delivery timestamp %q", ErrInvalidSignature, timestamp)
	}
	maxAge := v.MaxAge
	if maxAge == 0 {
		maxAge = defaultWebhookMaxAge
	}
	clk := v.Clock
	if clk == nil {
		clk = clock.New()
	}
	if age := clk.Now().Sub(delivered); age > maxAge {
		return fmt.Errorf("%w: delivery is %s old", ErrInvalidSignature, age)
	}

	if v.PrimaryKey != "" && signatureMatches(v.PrimaryKey, body, timestamp, headers.Get("Box-Signature-Primary")) {
		return nil
	}
	if v.SecondaryKey != "" && signatureMatches(v.SecondaryKey, body, timestamp, headers.Get("Box-Signature-Secondary")) {
		return nil
	}
	return fmt.Errorf("%w: no key matches", ErrInvalidSignature)
}

// SignWebhook computes the signature of a delivery, as sent in the
// Box-Signature-Primary and Box-Signature-Secondary headers.
func SignWebhook(key string, body []byte, timestamp string) string {
	mac := hmac.New(sha256.New, []byte(key))
	mac.Write(body)
	mac.Write([]byte(timestamp))
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}

func signatureMatches(key string, body []byte, timestamp, signature string) bool {
	if signature == "" {
		return false
	}
	return hmac.Equal([]byte(SignWebhook(key, body, timestamp)), []byte(signature))
}
