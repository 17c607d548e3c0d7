package pagespeed

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

const sampleResponse = `{
  "lighthouseResult": {
    "categories": {
      "performance": {"score": 0.87},
      "seo": {"score": 0.92}
    },
    "audits": {
      "largest-contentful-paint": {"numericValue": 2140.5},
      "cumulative-layout-shift": {"numericValue": 0.04}
    }
  }
}`

func TestMetricsNormalizesScores(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "https://example.com/", r.URL.Query().Get("url"))
		require.Equal(t, "test-key", r.URL.Query().Get("key"))
		_, _ = w.Write([]byte(sampleResponse))
	}))
	defer srv.Close()

	c := New(Config{APIKey: "test-key", Endpoint: srv.URL}, nil)
	ps, err := c.Metrics(context.Background(), "https://example.com/")
	require.NoError(t, err)
	require.True(t, ps.Available)
	require.NotNil(t, ps.Performance)
	require.Equal(t, 87, *ps.Performance)
	require.NotNil(t, ps.SEO)
	require.Equal(t, 92, *ps.SEO)
	require.NotNil(t, ps.LCPMillis)
	require.Equal(t, 2140, *ps.LCPMillis)
	require.NotNil(t, ps.CLS)
	require.InDelta(t, 0.04, *ps.CLS, 0.001)
}

func TestMetricsRetriesServerErrors(t *testing.T) {
	attempts := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		attempts++
		if attempts < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write([]byte(sampleResponse))
	}))
	defer srv.Close()

	c := New(Config{Endpoint: srv.URL, MaxRetries: 3}, nil)
	ps, err := c.Metrics(context.Background(), "https://example.com/")
	require.NoError(t, err)
	require.True(t, ps.Available)
	require.Equal(t, 3, attempts)
}

func TestMetricsReturnsErrorOnPersistentFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	c := New(Config{Endpoint: srv.URL, MaxRetries: 1}, nil)
	ps, err := c.Metrics(context.Background(), "https://example.com/")
	require.Error(t, err)
	require.False(t, ps.Available)
	require.Nil(t, ps.Performance)
}

func TestMetricsDoesNotRetryClientErrors(t *testing.T) {
	attempts := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		attempts++
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer srv.Close()

	c := New(Config{Endpoint: srv.URL, MaxRetries: 5}, nil)
	ps, err := c.Metrics(context.Background(), "not-a-url")
	require.Error(t, err)
	require.False(t, ps.Available)
	require.Equal(t, 1, attempts)
}

func TestMetricsRespectsContext(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	}))
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	c := New(Config{Endpoint: srv.URL}, nil)
	ps, err := c.Metrics(ctx, "https://example.com/")
	require.Error(t, err)
	require.False(t, ps.Available)
}

func TestNoopAlwaysUnavailable(t *testing.T) {
	ps, err := Noop{}.Metrics(context.Background(), "https://example.com/")
	require.NoError(t, err)
	require.False(t, ps.Available)
}
