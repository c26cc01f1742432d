package client

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// sessionServer issues 401 until the refresh endpoint has stamped the jar
// with a fresh access cookie.
func newSessionServer(t *testing.T, refreshDelay time.Duration, refreshFails bool) (*httptest.Server, *int64) {
	t.Helper()

	refreshCalls := new(int64)
	mux := http.NewServeMux()

	mux.HandleFunc("/api/auth/refresh-token", func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt64(refreshCalls, 1)
		time.Sleep(refreshDelay)
		if refreshFails {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		http.SetCookie(w, &http.Cookie{Name: "accessToken", Value: "fresh", Path: "/"})
		_ = json.NewEncoder(w).Encode(map[string]string{"message": "access token refreshed successfully"})
	})

	mux.HandleFunc("/api/data", func(w http.ResponseWriter, r *http.Request) {
		ck, err := r.Cookie("accessToken")
		if err != nil || ck.Value != "fresh" {
			w.WriteHeader(http.StatusUnauthorized)
			_ = json.NewEncoder(w).Encode(map[string]string{"message": "missing access token"})
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]bool{"ok": true})
	})

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv, refreshCalls
}

func TestRefreshTransport_Concurrent401sShareOneRefresh(t *testing.T) {
	srv, refreshCalls := newSessionServer(t, 200*time.Millisecond, false)

	c, err := New(srv.URL)
	require.NoError(t, err)

	const workers = 8
	var wg sync.WaitGroup
	errs := make([]error, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			var out map[string]bool
			errs[i] = c.do(context.Background(), http.MethodGet, "/api/data", nil, &out)
		}(i)
	}
	wg.Wait()

	for i, err := range errs {
		assert.NoError(t, err, "request %d", i)
	}
	assert.EqualValues(t, 1, atomic.LoadInt64(refreshCalls))
}

func TestRefreshTransport_ReplaysRequestBody(t *testing.T) {
	refreshCalls := new(int64)
	mux := http.NewServeMux()
	mux.HandleFunc("/api/auth/refresh-token", func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt64(refreshCalls, 1)
		http.SetCookie(w, &http.Cookie{Name: "accessToken", Value: "fresh", Path: "/"})
		w.WriteHeader(http.StatusOK)
	})
	var replayedHeaders http.Header
	mux.HandleFunc("/api/echo", func(w http.ResponseWriter, r *http.Request) {
		ck, err := r.Cookie("accessToken")
		if err != nil || ck.Value != "fresh" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		replayedHeaders = r.Header.Clone()
		var body map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		_ = json.NewEncoder(w).Encode(body)
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	c, err := New(srv.URL)
	require.NoError(t, err)

	var out map[string]string
	err = c.do(context.Background(), http.MethodPost, "/api/echo", map[string]string{"hello": "world"}, &out)
	require.NoError(t, err)
	assert.Equal(t, "world", out["hello"])
	assert.EqualValues(t, 1, atomic.LoadInt64(refreshCalls))

	// Retry bookkeeping stays client-side; the replay carries only the
	// headers the caller set.
	require.NotNil(t, replayedHeaders)
	for name := range replayedHeaders {
		assert.NotContains(t, strings.ToLower(name), "retr", "no retry marker may reach the wire")
		assert.NotContains(t, strings.ToLower(name), "session", "no session marker may reach the wire")
	}
}

func TestRefreshTransport_FailedRefreshForcesLogout(t *testing.T) {
	srv, refreshCalls := newSessionServer(t, 0, true)

	c, err := New(srv.URL)
	require.NoError(t, err)

	users := NewUserStore(c)

	var out map[string]bool
	err = c.do(context.Background(), http.MethodGet, "/api/data", nil, &out)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "401")
	assert.EqualValues(t, 1, atomic.LoadInt64(refreshCalls))

	assert.Nil(t, users.Current())
	notes := users.Drain()
	require.Len(t, notes, 1)
	assert.Equal(t, "error", notes[0].Level)
}

func TestRefreshTransport_DoesNotRetryTwice(t *testing.T) {
	// Refresh "succeeds" but never yields a usable cookie, so the replay
	// 401s again and must be returned as-is instead of looping.
	refreshCalls := new(int64)
	mux := http.NewServeMux()
	mux.HandleFunc("/api/auth/refresh-token", func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt64(refreshCalls, 1)
		w.WriteHeader(http.StatusOK)
	})
	dataCalls := new(int64)
	mux.HandleFunc("/api/data", func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt64(dataCalls, 1)
		w.WriteHeader(http.StatusUnauthorized)
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	c, err := New(srv.URL)
	require.NoError(t, err)

	err = c.do(context.Background(), http.MethodGet, "/api/data", nil, nil)
	require.Error(t, err)
	assert.EqualValues(t, 1, atomic.LoadInt64(refreshCalls))
	assert.EqualValues(t, 2, atomic.LoadInt64(dataCalls))
}
