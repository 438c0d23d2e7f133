/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package httpclient

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/acronis/go-validatorkit/log"
	"github.com/acronis/go-validatorkit/log/logtest"
	"github.com/acronis/go-validatorkit/retry"
)

type reqInfo struct {
	method             string
	body               []byte
	retryAttemptHeader string
}

type testResp struct {
	code       int
	retryAfter string
}

type testServerForRetryableRoundTripper struct {
	*httptest.Server
	sync.RWMutex
	reqInfos []reqInfo
	resps    []testResp
}

func (s *testServerForRetryableRoundTripper) ReqInfos() []reqInfo {
	s.RLock()
	defer s.RUnlock()
	res := make([]reqInfo, len(s.reqInfos))
	copy(res, s.reqInfos)
	return res
}

// newTestServerForRetryableRoundTripper creates a server that responds with resps in order and with 200 after them.
func newTestServerForRetryableRoundTripper(resps ...testResp) *testServerForRetryableRoundTripper {
	srv := &testServerForRetryableRoundTripper{resps: resps}
	srv.Server = httptest.NewServer(http.HandlerFunc(func(rw http.ResponseWriter, r *http.Request) {
		reqBody, _ := io.ReadAll(r.Body)

		srv.Lock()
		srv.reqInfos = append(srv.reqInfos, reqInfo{
			method:             r.Method,
			body:               reqBody,
			retryAttemptHeader: r.Header.Get(RetryAttemptNumberHeader),
		})
		resp := testResp{code: http.StatusOK}
		if len(srv.resps) > 0 {
			resp, srv.resps = srv.resps[0], srv.resps[1:]
		}
		srv.Unlock()

		if resp.retryAfter != "" {
			rw.Header().Set("Retry-After", resp.retryAfter)
		}
		rw.WriteHeader(resp.code)
		_, _ = rw.Write([]byte("response body"))
	}))
	return srv
}

func newTestRetryableRoundTripper(t *testing.T, opts RetryableRoundTripperOpts) *RetryableRoundTripper {
	t.Helper()
	if opts.BackoffPolicy == nil {
		opts.BackoffPolicy = retry.NewConstantBackoffPolicy(time.Millisecond*10, 0)
	}
	rt, err := NewRetryableRoundTripperWithOpts(http.DefaultTransport, opts)
	require.NoError(t, err)
	return rt
}

func doPost(t *testing.T, ctx context.Context, rt http.RoundTripper, url string, body string) (*http.Response, error) {
	t.Helper()
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewBufferString(body))
	require.NoError(t, err)
	resp, err := rt.RoundTrip(req)
	if resp != nil {
		t.Cleanup(func() { _ = resp.Body.Close() })
	}
	return resp, err
}

func TestNewRetryableRoundTripperWithOpts(t *testing.T) {
	_, err := NewRetryableRoundTripperWithOpts(http.DefaultTransport, RetryableRoundTripperOpts{MaxRetryAttempts: -2})
	require.EqualError(t, err, "incorrect max retry attempts")

	_, err = NewRetryableRoundTripperWithOpts(http.DefaultTransport, RetryableRoundTripperOpts{MaxRetryAfter: -time.Second})
	require.EqualError(t, err, "max retry after cannot be negative")

	rt, err := NewRetryableRoundTripper(http.DefaultTransport)
	require.NoError(t, err)
	require.Equal(t, DefaultMaxRetryAttempts, rt.MaxRetryAttempts)
	require.NotNil(t, rt.CheckRetry)
	require.NotNil(t, rt.BackoffPolicy)
}

func TestRetryableRoundTripper_RetriesRateLimitRejections(t *testing.T) {
	srv := newTestServerForRetryableRoundTripper(
		testResp{code: http.StatusTooManyRequests, retryAfter: "0"},
		testResp{code: http.StatusServiceUnavailable},
	)
	defer srv.Close()

	rt := newTestRetryableRoundTripper(t, RetryableRoundTripperOpts{})
	resp, err := doPost(t, context.Background(), rt, srv.URL, "<doc/>")
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	reqInfos := srv.ReqInfos()
	require.Len(t, reqInfos, 3)
	for i, wantHeader := range []string{"", "1", "2"} {
		require.Equal(t, http.MethodPost, reqInfos[i].method)
		require.Equal(t, "<doc/>", string(reqInfos[i].body))
		require.Equal(t, wantHeader, reqInfos[i].retryAttemptHeader)
	}
}

func TestRetryableRoundTripper_HonorsRetryAfter(t *testing.T) {
	srv := newTestServerForRetryableRoundTripper(testResp{code: http.StatusTooManyRequests, retryAfter: "1"})
	defer srv.Close()

	rt := newTestRetryableRoundTripper(t, RetryableRoundTripperOpts{})
	start := time.Now()
	resp, err := doPost(t, context.Background(), rt, srv.URL, "<doc/>")
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.GreaterOrEqual(t, time.Since(start), time.Second)
	require.Len(t, srv.ReqInfos(), 2)
}

func TestRetryableRoundTripper_IgnoreRetryAfter(t *testing.T) {
	srv := newTestServerForRetryableRoundTripper(testResp{code: http.StatusTooManyRequests, retryAfter: "10"})
	defer srv.Close()

	rt := newTestRetryableRoundTripper(t, RetryableRoundTripperOpts{IgnoreRetryAfter: true})
	start := time.Now()
	resp, err := doPost(t, context.Background(), rt, srv.URL, "<doc/>")
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Less(t, time.Since(start), time.Second*5)
}

func TestRetryableRoundTripper_MaxRetryAfterExceeded(t *testing.T) {
	srv := newTestServerForRetryableRoundTripper(testResp{code: http.StatusTooManyRequests, retryAfter: "120"})
	defer srv.Close()

	logger := logtest.NewRecorder()
	rt := newTestRetryableRoundTripper(t, RetryableRoundTripperOpts{Logger: logger, MaxRetryAfter: time.Second})
	resp, err := doPost(t, context.Background(), rt, srv.URL, "<doc/>")
	require.NoError(t, err)
	require.Equal(t, http.StatusTooManyRequests, resp.StatusCode)
	require.Equal(t, "120", resp.Header.Get("Retry-After"))
	respBody, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	require.Equal(t, "response body", string(respBody))
	require.Len(t, srv.ReqInfos(), 1)

	logEntry, found := logger.FindEntry("requested retry wait is too long, giving up")
	require.True(t, found)
	require.Equal(t, log.LevelWarn, logEntry.Level)
}

func TestRetryableRoundTripper_MaxRetryAttempts(t *testing.T) {
	srv := newTestServerForRetryableRoundTripper(
		testResp{code: http.StatusServiceUnavailable},
		testResp{code: http.StatusServiceUnavailable},
		testResp{code: http.StatusServiceUnavailable},
		testResp{code: http.StatusServiceUnavailable},
	)
	defer srv.Close()

	logger := logtest.NewRecorder()
	rt := newTestRetryableRoundTripper(t, RetryableRoundTripperOpts{Logger: logger, MaxRetryAttempts: 2})
	resp, err := doPost(t, context.Background(), rt, srv.URL, "<doc/>")
	require.NoError(t, err)
	require.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
	require.Len(t, srv.ReqInfos(), 3)

	_, found := logger.FindEntry("max retry attempts exceeded")
	require.True(t, found)
}

func TestRetryableRoundTripper_BackoffPolicyStops(t *testing.T) {
	srv := newTestServerForRetryableRoundTripper(
		testResp{code: http.StatusTooManyRequests},
		testResp{code: http.StatusTooManyRequests},
		testResp{code: http.StatusTooManyRequests},
	)
	defer srv.Close()

	rt := newTestRetryableRoundTripper(t, RetryableRoundTripperOpts{
		MaxRetryAttempts: UnlimitedRetryAttempts,
		BackoffPolicy:    retry.NewConstantBackoffPolicy(time.Millisecond, 1),
	})
	resp, err := doPost(t, context.Background(), rt, srv.URL, "<doc/>")
	require.NoError(t, err)
	require.Equal(t, http.StatusTooManyRequests, resp.StatusCode)
	require.Len(t, srv.ReqInfos(), 2)
}

func TestRetryableRoundTripper_ServerErrors(t *testing.T) {
	t.Run("non-idempotent request is not retried", func(t *testing.T) {
		srv := newTestServerForRetryableRoundTripper(testResp{code: http.StatusInternalServerError})
		defer srv.Close()

		rt := newTestRetryableRoundTripper(t, RetryableRoundTripperOpts{})
		resp, err := doPost(t, context.Background(), rt, srv.URL, "<doc/>")
		require.NoError(t, err)
		require.Equal(t, http.StatusInternalServerError, resp.StatusCode)
		require.Len(t, srv.ReqInfos(), 1)
	})

	t.Run("request with idempotent hint is retried", func(t *testing.T) {
		srv := newTestServerForRetryableRoundTripper(testResp{code: http.StatusBadGateway})
		defer srv.Close()

		rt := newTestRetryableRoundTripper(t, RetryableRoundTripperOpts{})
		ctx := NewContextWithIdempotentHint(context.Background(), true)
		resp, err := doPost(t, ctx, rt, srv.URL, "<doc/>")
		require.NoError(t, err)
		require.Equal(t, http.StatusOK, resp.StatusCode)
		require.Len(t, srv.ReqInfos(), 2)
	})

	t.Run("client errors are not retried", func(t *testing.T) {
		srv := newTestServerForRetryableRoundTripper(testResp{code: http.StatusBadRequest})
		defer srv.Close()

		rt := newTestRetryableRoundTripper(t, RetryableRoundTripperOpts{})
		ctx := NewContextWithIdempotentHint(context.Background(), true)
		resp, err := doPost(t, ctx, rt, srv.URL, "<doc/>")
		require.NoError(t, err)
		require.Equal(t, http.StatusBadRequest, resp.StatusCode)
		require.Len(t, srv.ReqInfos(), 1)
	})
}

func TestRetryableRoundTripper_ContextCanceledWhileWaiting(t *testing.T) {
	srv := newTestServerForRetryableRoundTripper(testResp{code: http.StatusTooManyRequests, retryAfter: "10"})
	defer srv.Close()

	rt := newTestRetryableRoundTripper(t, RetryableRoundTripperOpts{})
	ctx, cancel := context.WithTimeout(context.Background(), time.Millisecond*200)
	defer cancel()

	resp, err := doPost(t, ctx, rt, srv.URL, "<doc/>")
	require.Nil(t, resp)
	require.True(t, errors.Is(err, context.DeadlineExceeded))
	require.Len(t, srv.ReqInfos(), 1)
}

func TestDefaultCheckRetry(t *testing.T) {
	postReq := httptest.NewRequest(http.MethodPost, "/api/validate", nil)
	getReq := httptest.NewRequest(http.MethodGet, "/api/version", nil)

	tests := []struct {
		name      string
		req       *http.Request
		respCode  int
		err       error
		wantRetry bool
	}{
		{name: "429", req: postReq, respCode: http.StatusTooManyRequests, wantRetry: true},
		{name: "503", req: postReq, respCode: http.StatusServiceUnavailable, wantRetry: true},
		{name: "500 for POST", req: postReq, respCode: http.StatusInternalServerError, wantRetry: false},
		{name: "500 for GET", req: getReq, respCode: http.StatusInternalServerError, wantRetry: true},
		{name: "200", req: getReq, respCode: http.StatusOK, wantRetry: false},
		{name: "EOF for GET", req: getReq, err: io.EOF, wantRetry: true},
		{name: "EOF for POST", req: postReq, err: io.EOF, wantRetry: false},
		{name: "non-temporary error", req: getReq, err: errors.New("boom"), wantRetry: false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var resp *http.Response
			if tt.err == nil {
				resp = &http.Response{StatusCode: tt.respCode}
			}
			needRetry, err := DefaultCheckRetry(tt.req, resp, tt.err, 0)
			require.NoError(t, err)
			require.Equal(t, tt.wantRetry, needRetry)
		})
	}

	_, err := DefaultCheckRetry(postReq, nil, nil, 0)
	require.Error(t, err)
}

func TestParseRetryAfterFromResponse(t *testing.T) {
	makeResp := func(val string) *http.Response {
		resp := &http.Response{Header: make(http.Header)}
		if val != "" {
			resp.Header.Set("Retry-After", val)
		}
		return resp
	}

	_, ok := parseRetryAfterFromResponse(makeResp(""))
	require.False(t, ok)

	_, ok = parseRetryAfterFromResponse(makeResp("-1"))
	require.False(t, ok)

	_, ok = parseRetryAfterFromResponse(makeResp("soon"))
	require.False(t, ok)

	wait, ok := parseRetryAfterFromResponse(makeResp("7"))
	require.True(t, ok)
	require.Equal(t, 7*time.Second, wait)

	wait, ok = parseRetryAfterFromResponse(makeResp(time.Now().Add(-time.Hour).UTC().Format(http.TimeFormat)))
	require.True(t, ok)
	require.Equal(t, time.Duration(0), wait)

	wait, ok = parseRetryAfterFromResponse(makeResp(time.Now().Add(time.Hour).UTC().Format(http.TimeFormat)))
	require.True(t, ok)
	require.InDelta(t, time.Hour.Seconds(), wait.Seconds(), 5)
}
