package jina

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/market-intel/internal/resilience"
)

func fastRetry() Option {
	return WithRetry(resilience.RetryConfig{MaxAttempts: 3, InitialBackoff: time.Millisecond, MaxBackoff: time.Millisecond})
}

func TestRead(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, "/https://acmeplumbing.com", r.URL.Path)
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))
		assert.Equal(t, "application/json", r.Header.Get("Accept"))
		assert.Equal(t, "markdown", r.Header.Get("X-Return-Format"))
		assert.Equal(t, "true", r.Header.Get("X-With-Links-Summary"))
		assert.Equal(t, "main", r.Header.Get("X-Target-Selector"))
		assert.Equal(t, "true", r.Header.Get("X-No-Cache"))
		assert.Equal(t, "20", r.Header.Get("X-Timeout"))

		_, _ = w.Write([]byte(`{"code":200,"data":{
			"title":"Acme Plumbing",
			"description":"Emergency repairs",
			"url":"https://acmeplumbing.com",
			"content":"# Acme Plumbing\n\nEmergency repairs in Austin.",
			"links":{"Facebook":"https://facebook.com/acmeplumbing"},
			"usage":{"tokens":2150}}}`))
	}))
	defer srv.Close()

	client := NewClient("test-key", WithBaseURL(srv.URL+"/"))
	got, err := client.Read(context.Background(), "https://acmeplumbing.com",
		WithLinks(), WithTargetSelector("main"), WithNoCache(), WithPageTimeout(20*time.Second))
	require.NoError(t, err)

	assert.Equal(t, "Acme Plumbing", got.Data.Title)
	assert.Equal(t, "Emergency repairs", got.Data.Description)
	assert.Equal(t, map[string]string{"Facebook": "https://facebook.com/acmeplumbing"}, got.Data.Links)
	assert.Equal(t, 2150, got.Data.Usage.Tokens)
}

func TestRead_RetriesTransientStatus(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write([]byte(`{"code":200,"data":{"title":"ok"}}`))
	}))
	defer srv.Close()

	got, err := NewClient("k", WithBaseURL(srv.URL), fastRetry()).Read(context.Background(), "https://x.com")
	require.NoError(t, err)
	assert.Equal(t, "ok", got.Data.Title)
	assert.Equal(t, int32(3), calls.Load())
}

func TestRead_Errors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		status    int
		body      string
		calls     int32
		transient bool
	}{
		{name: "rate limited", status: http.StatusTooManyRequests, body: `{"error":"rate limit exceeded"}`, calls: 3, transient: true},
		{name: "forbidden", status: http.StatusForbidden, body: "blocked", calls: 1},
		{name: "no content", status: http.StatusUnprocessableEntity, calls: 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			var calls atomic.Int32
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				calls.Add(1)
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			_, err := NewClient("k", WithBaseURL(srv.URL), fastRetry()).Read(context.Background(), "https://x.com")
			require.Error(t, err)
			assert.Equal(t, tt.calls, calls.Load())
			assert.Equal(t, tt.transient, resilience.IsTransient(err))

			var apiErr *APIError
			require.True(t, errors.As(err, &apiErr))
			assert.Equal(t, tt.status, apiErr.StatusCode)
			assert.Equal(t, tt.body, apiErr.Body)
		})
	}
}

func TestRead_InvalidJSON(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`not json`))
	}))
	defer srv.Close()

	_, err := NewClient("k", WithBaseURL(srv.URL)).Read(context.Background(), "https://x.com")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "decode response")
}

func TestSearch(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/plumber austin", r.URL.Path)
		assert.Equal(t, "yelp.com", r.URL.Query().Get("site"))
		assert.Equal(t, "us", r.URL.Query().Get("gl"))
		assert.Empty(t, r.Header.Get("X-Return-Format"))
		_, _ = w.Write([]byte(`{"code":200,"data":[
			{"title":"Best Plumbers","url":"https://yelp.com/a","description":"Top rated"},
			{"title":"Acme","url":"https://acme.com","content":"body"}]}`))
	}))
	defer srv.Close()

	client := NewClient("k", WithSearchBaseURL(srv.URL))
	got, err := client.Search(context.Background(), "plumber austin", WithSiteFilter("yelp.com"), WithCountry("us"))
	require.NoError(t, err)
	require.Len(t, got.Data, 2)
	assert.Equal(t, "Top rated", got.Data[0].Description)
	assert.Equal(t, "https://acme.com", got.Data[1].URL)
}

func TestSearch_NoResults422(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusUnprocessableEntity)
	}))
	defer srv.Close()

	got, err := NewClient("k", WithSearchBaseURL(srv.URL)).Search(context.Background(), "nothing")
	require.NoError(t, err)
	assert.Equal(t, http.StatusUnprocessableEntity, got.Code)
	assert.Empty(t, got.Data)
}

func TestSearch_AnonymousOmitsAuthorization(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Empty(t, r.Header.Get("Authorization"))
		_, _ = w.Write([]byte(`{"code":200,"data":[]}`))
	}))
	defer srv.Close()

	_, err := NewClient("", WithSearchBaseURL(srv.URL)).Search(context.Background(), "q")
	require.NoError(t, err)
}

func TestSearch_ContextCancelled(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{}`))
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewClient("k", WithSearchBaseURL(srv.URL), fastRetry()).Search(ctx, "q")
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
}
