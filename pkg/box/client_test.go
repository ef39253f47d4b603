package box_test

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jdollar/box-go/internal/boxtest"
	"github.com/jdollar/box-go/pkg/box"
)

type transport func(*http.Request) (*http.Response, error)

func (t transport) RoundTrip(req *http.Request) (*http.Response, error) {
	return t(req)
}

func quietLogger() logrus.FieldLogger {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return log
}

func newTestClient(t *testing.T) (*box.Client, *boxtest.Server) {
	srv := boxtest.NewServer(t)
	return box.NewClient(context.Background(), srv.ClientOpts()), srv
}

func counterValue(t *testing.T, reg *prometheus.Registry, name string, labels map[string]string) float64 {
	families, err := reg.Gather()
	require.NoError(t, err)
	total := 0.0
	for _, mf := range families {
		if mf.GetName() != name {
			continue
		}
	metric:
		for _, m := range mf.GetMetric() {
			for _, lp := range m.GetLabel() {
				if want, ok := labels[lp.GetName()]; ok && want != lp.GetValue() {
					continue metric
				}
			}
			total += m.GetCounter().GetValue()
		}
	}
	return total
}

func TestClientRetriesRateLimitAndServerErrors(t *testing.T) {
	srv := boxtest.NewServer(t)
	var calls int32
	srv.API(http.MethodGet, "/folders/{id}", func(w http.ResponseWriter, r *http.Request) {
		switch atomic.AddInt32(&calls, 1) {
		case 1:
			w.Header().Set("Retry-After", "0")
			boxtest.Error(w, http.StatusTooManyRequests, "rate_limit_exceeded", "slow down")
		case 2:
			boxtest.Error(w, http.StatusServiceUnavailable, "unavailable", "try later")
		default:
			boxtest.JSON(w, http.StatusOK, box.Folder{ID: "7", Type: "folder", Name: "docs"})
		}
	})

	reg := prometheus.NewRegistry()
	opts := srv.ClientOpts()
	opts.Registerer = reg
	client := box.NewClient(context.Background(), opts)

	folder, err := client.Folders.Get(context.Background(), "7")
	require.NoError(t, err)
	assert.Equal(t, "docs", folder.Name)
	assert.EqualValues(t, 3, atomic.LoadInt32(&calls))

	for _, r := range srv.Requests() {
		assert.Equal(t, "Bearer test-token", r.Header.Get("Authorization"))
	}

	assert.Equal(t, 2.0, counterValue(t, reg, "box_client_retries_total", map[string]string{"method": "GET"}))
	assert.Equal(t, 1.0, counterValue(t, reg, "box_client_requests_total", map[string]string{"code": "429"}))
	assert.Equal(t, 1.0, counterValue(t, reg, "box_client_requests_total", map[string]string{"code": "200"}))
}

func TestClientDoesNotRetryClientErrors(t *testing.T) {
	client, srv := newTestClient(t)
	srv.API(http.MethodGet, "/files/{id}", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		_, _ = io.WriteString(w, `{"type":"error","status":404,"code":"not_found","message":"Not Found","request_id":"abc"}`)
	})

	_, err := client.Files.Get(context.Background(), "42")
	require.Error(t, err)

	var ure *box.UnexpectedResponseError
	require.True(t, errors.As(err, &ure))
	assert.Equal(t, http.StatusNotFound, ure.StatusCode)
	assert.Equal(t, http.MethodGet, ure.Method)
	assert.True(t, strings.HasSuffix(ure.URL, "/2.0/files/42"))
	assert.Equal(t, "not_found", ure.APIError.Code)
	assert.Equal(t, "abc", ure.APIError.RequestID)
	assert.Contains(t, err.Error(), "Not Found")

	assert.Len(t, srv.Requests(), 1)
}

func TestClientGivesUpAfterMaxRetries(t *testing.T) {
	client, srv := newTestClient(t)
	srv.API(http.MethodGet, "/users/me", func(w http.ResponseWriter, r *http.Request) {
		boxtest.Error(w, http.StatusBadGateway, "bad_gateway", "upstream")
	})

	_, err := client.Users.Me(context.Background())
	assert.Equal(t, http.StatusBadGateway, box.StatusCode(err))
	// first attempt plus five retries
	assert.Len(t, srv.Requests(), 6)
}

func TestClientRetriesNetworkErrors(t *testing.T) {
	errReset := errors.New("connection reset by peer")
	var calls int32
	rt := transport(func(req *http.Request) (*http.Response, error) {
		atomic.AddInt32(&calls, 1)
		assert.Equal(t, "Bearer tok", req.Header.Get("Authorization"))
		return nil, errReset
	})

	client := box.NewClient(context.Background(), box.ClientOpts{
		AccessToken:    "tok",
		APIURL:         "https://api.example.com/2.0",
		HTTPClient:     &http.Client{Transport: rt},
		MaxRetries:     2,
		RetryBaseDelay: time.Millisecond,
		Logger:         quietLogger(),
		Registerer:     prometheus.NewRegistry(),
	})

	_, err := client.Folders.Get(context.Background(), "0")
	require.Error(t, err)
	assert.True(t, errors.Is(err, errReset))
	assert.Contains(t, err.Error(), "GET https://api.example.com/2.0/folders/0")
	assert.EqualValues(t, 3, atomic.LoadInt32(&calls))
}

func TestClientRetriesDisabled(t *testing.T) {
	var calls int32
	rt := transport(func(req *http.Request) (*http.Response, error) {
		atomic.AddInt32(&calls, 1)
		return nil, errors.New("boom")
	})
	client := box.NewClient(context.Background(), box.ClientOpts{
		APIURL:     "https://api.example.com/2.0",
		HTTPClient: &http.Client{Transport: rt},
		MaxRetries: -1,
		Logger:     quietLogger(),
	})

	_, err := client.Folders.Get(context.Background(), "0")
	require.Error(t, err)
	assert.EqualValues(t, 1, atomic.LoadInt32(&calls))
}

func TestClientRetryWaitHonoursContext(t *testing.T) {
	client, srv := newTestClient(t)
	srv.API(http.MethodGet, "/folders/{id}", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Retry-After", "60")
		boxtest.Error(w, http.StatusTooManyRequests, "rate_limit_exceeded", "slow down")
	})

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	start := time.Now()
	_, err := client.Folders.Get(ctx, "0")
	assert.True(t, errors.Is(err, context.DeadlineExceeded))
	assert.Less(t, time.Since(start), 10*time.Second)
}

func TestClientCredentialsGrant(t *testing.T) {
	srv := boxtest.NewServer(t)
	srv.Handle(http.MethodPost, "/oauth2/token", func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		assert.Equal(t, "client_credentials", r.Form.Get("grant_type"))
		assert.Equal(t, "id", r.Form.Get("client_id"))
		assert.Equal(t, "secret", r.Form.Get("client_secret"))
		assert.Equal(t, "enterprise", r.Form.Get("box_subject_type"))
		assert.Equal(t, "123", r.Form.Get("box_subject_id"))
		boxtest.JSON(w, http.StatusOK, map[string]interface{}{
			"access_token": "granted",
			"token_type":   "bearer",
			"expires_in":   3600,
		})
	})
	srv.API(http.MethodGet, "/users/me", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer granted", r.Header.Get("Authorization"))
		boxtest.JSON(w, http.StatusOK, box.User{ID: "1", Type: "user", Name: "Service"})
	})

	opts := srv.ClientOpts()
	opts.AccessToken = ""
	opts.ClientID = "id"
	opts.ClientSecret = "secret"
	opts.SubjectType = "enterprise"
	opts.SubjectId = "123"
	opts.TokenURL = srv.URL + "/oauth2/token"
	client := box.NewClient(context.Background(), opts)

	me, err := client.Users.Me(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "Service", me.Name)
}

func TestClientTokenFailureIsNotRetried(t *testing.T) {
	srv := boxtest.NewServer(t)
	srv.Handle(http.MethodPost, "/oauth2/token", func(w http.ResponseWriter, r *http.Request) {
		boxtest.JSON(w, http.StatusBadRequest, map[string]string{"error": "invalid_client"})
	})

	opts := srv.ClientOpts()
	opts.AccessToken = ""
	opts.ClientID = "id"
	opts.ClientSecret = "wrong"
	opts.TokenURL = srv.URL + "/oauth2/token"
	client := box.NewClient(context.Background(), opts)

	_, err := client.Users.Me(context.Background())
	require.Error(t, err)
	assert.Len(t, srv.RequestsTo(http.MethodPost, "/oauth2/token"), 1)
}
