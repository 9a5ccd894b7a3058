package backlog

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestHTTPFetcher_ParsesResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "jobs", r.URL.Query().Get("queue"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"size":42.5,"oldest_age_s":12.0}`))
	}))
	defer srv.Close()

	f := NewHTTPFetcher(srv.URL, 2*time.Second, zap.NewNop())
	size, age, err := f.Fetch(context.Background(), "jobs")

	require.NoError(t, err)
	assert.Equal(t, 42.5, size)
	assert.Equal(t, 12.0, age)
}

func TestHTTPFetcher_NonOKStatusReturnsError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	f := NewHTTPFetcher(srv.URL, 2*time.Second, zap.NewNop())
	_, _, err := f.Fetch(context.Background(), "jobs")

	assert.Error(t, err)
}

func TestHTTPFetcher_MalformedJSONReturnsError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`not json`))
	}))
	defer srv.Close()

	f := NewHTTPFetcher(srv.URL, 2*time.Second, zap.NewNop())
	_, _, err := f.Fetch(context.Background(), "jobs")

	assert.Error(t, err)
}
