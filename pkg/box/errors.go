package box

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"golang.org/x/oauth2"
)

var (
	ErrNotPageable      = errors.New("box: response is not pageable")
	ErrIncompleteUpload = errors.New("box: uploaded parts do not cover the file")
	ErrInvalidState     = errors.New("box: operation not allowed in current state")
	ErrUploadAborted    = errors.New("box: upload aborted")
	ErrInvalidSignature = errors.New("box: invalid webhook signature")
)

// ClientError is the error body returned by the API.
type ClientError struct {
	Type        string          `json:"type"`
	Status      int             `json:"status"`
	Code        string          `json:"code"`
	ContextInfo json.RawMessage `json:"context_info,omitempty"`
	HelpURL     string          `json:"help_url"`
	Message     string          `json:"message"`
	RequestID   string          `json:"request_id"`
}

// UnexpectedResponseError is returned when an endpoint answers with a status
// code the operation does not expect.
type UnexpectedResponseError struct {
	Method     string
	URL        string
	StatusCode int
	// APIError holds the decoded error body, if there was one.
	APIError ClientError
	Response *Response
}

func newUnexpectedResponseError(resp *Response) *UnexpectedResponseError {
	e := &UnexpectedResponseError{
		Method:     resp.Request.Method,
		URL:        resp.Request.URL,
		StatusCode: resp.StatusCode,
		Response:   resp,
	}
	// The body is not always JSON; a failed decode just leaves APIError empty.
	_ = json.Unmarshal(resp.Body, &e.APIError)
	return e
}

func (e *UnexpectedResponseError) Error() string {
	if e.APIError.Message != "" {
		return fmt.Sprintf("box: unexpected response %d from %s %s: %s (code %q, request %s)",
			e.StatusCode, e.Method, e.URL, e.APIError.Message, e.APIError.Code, e.APIError.RequestID)
	}
	return fmt.Sprintf("box: unexpected response %d (%s) from %s %s",
		e.StatusCode, http.StatusText(e.StatusCode), e.Method, e.URL)
}

// ResponseError is a successful HTTP exchange whose body carries an error code
// the caller cannot act on.
type ResponseError struct {
	Code     string
	Message  string
	Response *Response
}

func (e *ResponseError) Error() string {
	return fmt.Sprintf("box: %s: %s", e.Code, e.Message)
}

// PartError reports a chunk that could not be uploaded. The session is left
// open so the part can be retried or the upload aborted.
type PartError struct {
	Index int
	Begin int64
	End   int64
	Err   error
}

func (e *PartError) Error() string {
	return fmt.Sprintf("box: upload part %d (bytes %d-%d): %v", e.Index, e.Begin, e.End, e.Err)
}

func (e *PartError) Unwrap() error {
	return e.Err
}

// StatusCode returns the HTTP status carried by err, or 0.
func StatusCode(err error) int {
	var ure *UnexpectedResponseError
	if errors.As(err, &ure) {
		return ure.StatusCode
	}
	return 0
}

// isFatal reports whether retrying the request that produced err is
// pointless: client errors other than timeouts and rate limiting, and
// failures to obtain a token.
func isFatal(err error) bool {
	var re *oauth2.RetrieveError
	if errors.As(err, &re) {
		return true
	}
	var rerr *ResponseError
	if errors.As(err, &rerr) {
		return true
	}
	code := StatusCode(err)
	if code >= 400 && code < 500 {
		return code != http.StatusRequestTimeout && code != http.StatusTooManyRequests
	}
	return false
}
