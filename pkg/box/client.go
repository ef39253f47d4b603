package box

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/jtacoma/uritemplates"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"
)

const (
	DefaultAPIURL    = "https://api.box.com/2.0"
	DefaultUploadURL = "https://upload.box.com/api/2.0"
	DefaultTokenURL  = "https://api.box.com/oauth2/token"

	defaultMaxRetries     = 5
	defaultRetryBaseDelay = time.Second
)

// ClientOpts configures a Client. With ClientID and ClientSecret set, the
// client authenticates with the client credentials grant for the given
// subject; AccessToken, when set, is used as-is instead.
type ClientOpts struct {
	SubjectType  string
	SubjectId    string
	ClientID     string
	ClientSecret string
	AccessToken  string

	APIURL    string
	UploadURL string
	TokenURL  string

	// HTTPClient provides the underlying transport. Defaults to
	// http.DefaultClient.
	HTTPClient *http.Client

	// Timeout bounds each request unless the request sets its own.
	// Zero means no limit.
	Timeout time.Duration

	// MaxRetries is how many times a request failing with a network
	// error, 429 or 5xx is retried. Zero means 5, negative disables
	// retries.
	MaxRetries     int
	RetryBaseDelay time.Duration

	Logger logrus.FieldLogger
	// Registerer receives the client's metrics. Metrics are still
	// collected when nil, just not exported.
	Registerer prometheus.Registerer
	// Clock is only set by tests.
	Clock clock.Clock
}

func (o *ClientOpts) setDefaults() {
	if o.APIURL == "" {
		o.APIURL = DefaultAPIURL
	}
	if o.UploadURL == "" {
		o.UploadURL = DefaultUploadURL
	}
	if o.TokenURL == "" {
		o.TokenURL = DefaultTokenURL
	}
	if o.HTTPClient == nil {
		o.HTTPClient = http.DefaultClient
	}
	if o.MaxRetries == 0 {
		o.MaxRetries = defaultMaxRetries
	}
	if o.MaxRetries < 0 {
		o.MaxRetries = 0
	}
	if o.RetryBaseDelay == 0 {
		o.RetryBaseDelay = defaultRetryBaseDelay
	}
	if o.Logger == nil {
		o.Logger = logrus.StandardLogger()
	}
	if o.Clock == nil {
		o.Clock = clock.New()
	}
}

// Client talks to the API. It is safe for concurrent use; all state it
// keeps is configuration.
type Client struct {
	httpClient *http.Client
	apiURL     string
	uploadURL  string
	timeout    time.Duration
	maxRetries int
	retryBase  time.Duration
	log        logrus.FieldLogger
	clock      clock.Clock
	metrics    *metrics

	Folders        *FoldersManager
	Files          *FilesManager
	UploadSessions *UploadSessionsManager
	Events         *EventsManager
	Search         *SearchManager
	Metadata       *MetadataManager
	Users          *UsersManager
}

func NewClient(ctx context.Context, copts ClientOpts) *Client {
	copts.setDefaults()

	// oauth2 picks the base transport up from the context.
	ctx = context.WithValue(ctx, oauth2.HTTPClient, copts.HTTPClient)

	var httpClient *http.Client
	switch {
	case copts.AccessToken != "":
		httpClient = oauth2.NewClient(ctx, oauth2.StaticTokenSource(&oauth2.Token{
			AccessToken: copts.AccessToken,
		}))
	case copts.ClientID != "":
		tokenParams := url.Values{}
		tokenParams.Set("box_subject_type", copts.SubjectType)
		tokenParams.Set("box_subject_id", copts.SubjectId)

		conf := clientcredentials.Config{
			ClientID:       copts.ClientID,
			ClientSecret:   copts.ClientSecret,
			EndpointParams: tokenParams,
			TokenURL:       copts.TokenURL,
			AuthStyle:      oauth2.AuthStyleInParams,
		}
		httpClient = conf.Client(ctx)
	default:
		httpClient = copts.HTTPClient
	}

	c := &Client{
		httpClient: httpClient,
		apiURL:     copts.APIURL,
		uploadURL:  copts.UploadURL,
		timeout:    copts.Timeout,
		maxRetries: copts.MaxRetries,
		retryBase:  copts.RetryBaseDelay,
		log:        copts.Logger,
		clock:      copts.Clock,
		metrics:    newMetrics(copts.Registerer),
	}
	c.Folders = &FoldersManager{client: c}
	c.Files = &FilesManager{client: c}
	c.UploadSessions = &UploadSessionsManager{client: c}
	c.Events = &EventsManager{client: c}
	c.Search = &SearchManager{client: c}
	c.Metadata = &MetadataManager{client: c}
	c.Users = &UsersManager{client: c}
	return c
}

// Do sends req and returns the response whatever its status. Network errors,
// 429 and 5xx responses are retried up to the configured limit, waiting for
// Retry-After when the server sends one and RetryDelay otherwise.
func (c *Client) Do(ctx context.Context, req Request) (*Response, error) {
	for attempt := 1; ; attempt++ {
		start := c.clock.Now()
		resp, err := c.roundTrip(ctx, req)
		c.metrics.observe(req.Method, resp, c.clock.Now().Sub(start))

		if !c.retryable(ctx, resp, err) || attempt > c.maxRetries {
			if err != nil {
				return nil, fmt.Errorf("%s %s: %w", req.Method, req.URL, err)
			}
			return resp, nil
		}

		delay := RetryDelay(attempt, c.retryBase)
		if resp != nil {
			delay = retryAfter(resp.Header, delay)
		}
		fields := logrus.Fields{
			"method":  req.Method,
			"url":     req.URL,
			"attempt": attempt,
			"delay":   delay,
		}
		if resp != nil {
			fields["status"] = resp.StatusCode
		} else {
			fields["err"] = err
		}
		c.log.WithFields(fields).Warn("Retrying request")
		c.metrics.retries.WithLabelValues(req.Method).Inc()

		if err := sleep(ctx, c.clock, delay); err != nil {
			return nil, fmt.Errorf("%s %s: %w", req.Method, req.URL, err)
		}
	}
}

func (c *Client) roundTrip(ctx context.Context, req Request) (*Response, error) {
	timeout := req.Timeout
	if timeout == 0 {
		timeout = c.timeout
	}
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	httpReq, err := req.build(ctx)
	if err != nil {
		return nil, err
	}

	c.log.WithFields(logrus.Fields{
		"method": req.Method,
		"url":    req.URL,
	}).Debug("Sending request")

	rawResp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, err
	}
	defer rawResp.Body.Close()

	body, err := io.ReadAll(rawResp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response failed: %w", err)
	}

	return &Response{
		StatusCode: rawResp.StatusCode,
		Header:     rawResp.Header,
		Body:       body,
		Request:    req,
	}, nil
}

func (c *Client) retryable(ctx context.Context, resp *Response, err error) bool {
	if ctx.Err() != nil {
		return false
	}
	if err != nil {
		var re *oauth2.RetrieveError
		return !errors.As(err, &re)
	}
	return resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500
}

// call sends req, checks the status against expected and decodes the body
// into out when both are present.
func (c *Client) call(ctx context.Context, req Request, out interface{}, expected ...int) (*Response, error) {
	resp, err := c.Do(ctx, req)
	if err != nil {
		return nil, err
	}

	ok := false
	for _, code := range expected {
		if resp.StatusCode == code {
			ok = true
			break
		}
	}
	if !ok {
		return resp, newUnexpectedResponseError(resp)
	}

	if out != nil && len(resp.Body) > 0 {
		if err := resp.Decode(out); err != nil {
			return resp, fmt.Errorf("%s %s: %w", req.Method, req.URL, err)
		}
	}
	return resp, nil
}

// endpoint expands template (an RFC 6570 URI template) against vars and
// prefixes it with base.
func (c *Client) endpoint(base, template string, vars map[string]interface{}) string {
	tmpl, err := uritemplates.Parse(template)
	if err != nil {
		panic(err)
	}
	expanded, err := tmpl.Expand(vars)
	if err != nil {
		panic(err)
	}
	return base + expanded
}

func (c *Client) api(template string, vars map[string]interface{}) string {
	return c.endpoint(c.apiURL, template, vars)
}

func (c *Client) upload(template string, vars map[string]interface{}) string {
	return c.endpoint(c.uploadURL, template, vars)
}

// retryAfter parses a Retry-After header given in seconds.
func retryAfter(h http.Header, fallback time.Duration) time.Duration {
	v := h.Get("Retry-After")
	if v == "" {
		return fallback
	}
	secs, err := strconv.ParseFloat(v, 64)
	if err != nil || secs < 0 {
		return fallback
	}
	return time.Duration(secs * float64(time.Second))
}

// sleep waits for d on clk, returning early with the context's error.
func sleep(ctx context.Context, clk clock.Clock, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := clk.Timer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
