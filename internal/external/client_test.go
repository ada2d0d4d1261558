package external

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"shakerisk/internal/types"
)

func noSleep(time.Duration) {}

func newTestBaseClient(t *testing.T) *BaseClient {
	t.Helper()
	return NewBaseClient(
		&http.Client{Timeout: 5 * time.Second},
		"test-breaker-"+t.Name(),
		RetryPolicy{MaxRetries: 2, MinWait: time.Millisecond, MaxWait: 10 * time.Millisecond},
		"shakerisk-test/1.0",
		WithSleepFunc(noSleep),
	)
}

func TestBaseClientSuccessPassesThrough(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "shakerisk-test/1.0", r.Header.Get("User-Agent"))
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	req, err := http.NewRequest(http.MethodGet, srv.URL, nil)
	require.NoError(t, err)

	resp, err := newTestBaseClient(t).Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestBaseClientInjectsTraceID(t *testing.T) {
	var gotTrace atomic.Value
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotTrace.Store(r.Header.Get("X-B3-TraceId"))
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	ctx := types.WithRequestID(context.Background(), "req-123")
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL, nil)
	require.NoError(t, err)

	resp, err := newTestBaseClient(t).Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, "req-123", gotTrace.Load())
}

func TestBaseClientRetriesServerErrors(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) < 3 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	req, err := http.NewRequest(http.MethodGet, srv.URL, nil)
	require.NoError(t, err)

	resp, err := newTestBaseClient(t).Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, int32(3), atomic.LoadInt32(&calls))
}

func TestBaseClientExhaustedRetriesMapsToUpstreamError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	req, err := http.NewRequest(http.MethodGet, srv.URL, nil)
	require.NoError(t, err)

	_, err = newTestBaseClient(t).Do(req)
	require.Error(t, err)

	appErr, ok := err.(*types.AppError)
	require.True(t, ok)
	assert.Equal(t, types.ErrCodeUpstreamHazard, appErr.Code)
}

func TestBaseClientRateLimitMapsToRateLimited(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	req, err := http.NewRequest(http.MethodGet, srv.URL, nil)
	require.NoError(t, err)

	_, err = newTestBaseClient(t).Do(req)
	require.Error(t, err)

	appErr, ok := err.(*types.AppError)
	require.True(t, ok)
	assert.Equal(t, types.ErrCodeUpstreamRateLimit, appErr.Code)
}

func TestBaseClientDoesNotRetryClientErrors(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusUnprocessableEntity)
	}))
	defer srv.Close()

	req, err := http.NewRequest(http.MethodGet, srv.URL, nil)
	require.NoError(t, err)

	resp, err := newTestBaseClient(t).Do(req)
	require.NoError(t, err, "non-429 4xx responses are returned as-is")
	resp.Body.Close()
	assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestBaseClientReplaysBodyOnRetry(t *testing.T) {
	var calls int32
	var lastBody atomic.Value
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		b, _ := io.ReadAll(r.Body)
		lastBody.Store(string(b))
		if atomic.AddInt32(&calls, 1) < 2 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	// The body must survive the first failed attempt.
	req, err := http.NewRequest(http.MethodPost, srv.URL, strings.NewReader(`{"imt":"PGA"}`))
	require.NoError(t, err)

	resp, err := newTestBaseClient(t).Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, `{"imt":"PGA"}`, lastBody.Load())
}

func TestComputeBackoffRespectsRetryAfter(t *testing.T) {
	c := newTestBaseClient(t)
	resp := &http.Response{Header: http.Header{"Retry-After": []string{"1"}}}

	wait := c.computeBackoff(0, resp)
	assert.Equal(t, 10*time.Millisecond, wait, "Retry-After is clamped to MaxWait")
}

func TestComputeBackoffClampsToMaxWait(t *testing.T) {
	c := newTestBaseClient(t)
	for attempt := 0; attempt < 20; attempt++ {
		wait := c.computeBackoff(attempt, nil)
		assert.GreaterOrEqual(t, wait, time.Millisecond)
		assert.LessOrEqual(t, wait, 10*time.Millisecond)
	}
}
