package engine

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStartSendsBothTaskKeys(t *testing.T) {
	var got StartRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/start-session", r.URL.Path)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, time.Second, nil)
	err := c.Start(context.Background(), "sess-1", "book a flight", "default")
	require.NoError(t, err)

	assert.Equal(t, "sess-1", got.SessionID)
	assert.Equal(t, "book a flight", got.TaskDescription)
	assert.Equal(t, "book a flight", got.Task)
	assert.Equal(t, "default", got.Model)
}

func TestUpdateStatus(t *testing.T) {
	var got UpdateRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/update-session", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, time.Second, nil)
	require.NoError(t, c.UpdateStatus(context.Background(), "sess-1", "paused"))

	assert.Equal(t, "sess-1", got.SessionID)
	assert.Equal(t, "paused", got.Status)
}

func TestUpstreamErrorSurfaced(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "engine busy", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, time.Second, nil)
	err := c.Start(context.Background(), "sess-1", "task", "")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "HTTP 503")
}

func TestUnreachableEngine(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	srv.Close()

	c := NewClient(srv.URL, time.Second, nil)
	err := c.UpdateStatus(context.Background(), "sess-1", "completed")
	require.Error(t, err)
}
