package fetcher

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestFetcher(t *testing.T, retries int) *HTTPFetcher {
	t.Helper()
	f, err := New(Options{Retries: retries})
	require.NoError(t, err)
	return f
}

func TestFetchHTTP(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, USER_AGENT, r.Header.Get("User-Agent"))
		w.Header().Set("Content-Type", "text/plain")
		w.Write([]byte("DOMAIN,a.com\n"))
	}))
	defer srv.Close()

	body, err := newTestFetcher(t, 0).Fetch(context.Background(), srv.URL+"/list/a.list")
	require.NoError(t, err)
	assert.Equal(t, "DOMAIN,a.com\n", string(body))
}

func TestFetchStatusError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.WriteHeader(http.StatusNotFound)
		w.Write([]byte("<html><head><title>\n  Page not found\n</title></head><body></body></html>"))
	}))
	defer srv.Close()

	_, err := newTestFetcher(t, 0).Fetch(context.Background(), srv.URL+"/missing.list")
	require.Error(t, err)

	var statusErr *StatusError
	require.True(t, errors.As(err, &statusErr))
	assert.Equal(t, http.StatusNotFound, statusErr.StatusCode)
	assert.Equal(t, "Page not found", statusErr.Title)
}

func TestFetchRejectsHTMLPage(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		w.Write([]byte("<html><head><title>Sign in</title></head></html>"))
	}))
	defer srv.Close()

	_, err := newTestFetcher(t, 0).Fetch(context.Background(), srv.URL+"/a.yaml")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Sign in")
}

func TestFetchRetriesServerErrors(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) == 1 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.Write([]byte("payload:\n  - a.com\n"))
	}))
	defer srv.Close()

	body, err := newTestFetcher(t, 2).Fetch(context.Background(), srv.URL+"/a.yaml")
	require.NoError(t, err)
	assert.Equal(t, "payload:\n  - a.com\n", string(body))
	assert.Equal(t, int32(2), atomic.LoadInt32(&calls))
}

func TestFetchCancelledContext(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("x"))
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := newTestFetcher(t, 0).Fetch(ctx, srv.URL+"/a.list")
	assert.Error(t, err)
}

func TestFetchLocalFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "local.list")
	require.NoError(t, os.WriteFile(path, []byte("DOMAIN-SUFFIX,lan\n"), 0o644))

	f := newTestFetcher(t, 0)

	body, err := f.Fetch(context.Background(), path)
	require.NoError(t, err)
	assert.Equal(t, "DOMAIN-SUFFIX,lan\n", string(body))

	body, err = f.Fetch(context.Background(), "file://"+path)
	require.NoError(t, err)
	assert.Equal(t, "DOMAIN-SUFFIX,lan\n", string(body))

	_, err = f.Fetch(context.Background(), filepath.Join(t.TempDir(), "nope.list"))
	assert.Error(t, err)
}

func TestFetchUnsupportedScheme(t *testing.T) {
	_, err := newTestFetcher(t, 0).Fetch(context.Background(), "ftp://example.com/a.list")
	assert.Error(t, err)
}

func TestFetchRejectsWhitespaceInIdentifier(t *testing.T) {
	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		w.Write([]byte("DOMAIN,a.com\n"))
	}))
	defer srv.Close()

	_, err := newTestFetcher(t, 0).Fetch(context.Background(), srv.URL+"/a.list # old mirror")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "whitespace")
	assert.Zero(t, atomic.LoadInt32(&hits))
}

func TestNewRejectsBadProxy(t *testing.T) {
	_, err := New(Options{Proxy: "://bad"})
	assert.Error(t, err)
}
