package net

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetHTTPClient(t *testing.T) {
	client, err := GetHTTPClient()
	require.NoError(t, err)
	assert.NotNil(t, client)
	assert.NotNil(t, client.Jar)
}

func TestGetOAuthClient(t *testing.T) {
	ctx := context.Background()
	client := GetOAuthClient(ctx, "test-token")
	assert.NotNil(t, client)
}

func TestPrintHTTPResponse_Nil(t *testing.T) {
	// should not panic
	PrintHTTPResponse(nil)
}

func TestPrintHTTPResponse_WithResponse(t *testing.T) {
	resp := &http.Response{
		StatusCode: 200,
		Header:     http.Header{},
		Body:       http.NoBody,
	}
	// should not panic
	PrintHTTPResponse(resp)
}

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("GET /meta.json", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"version":"2025.08.1","threshold":0.5}`)) //nolint:errcheck
	})
	mux.HandleFunc("GET /private.json", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer secret" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		w.Write([]byte(`{"ok":true}`)) //nolint:errcheck
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func TestDownload(t *testing.T) {
	srv := newTestServer(t)
	dir := t.TempDir()
	path := filepath.Join(dir, "meta.json")

	require.NoError(t, Download(context.Background(), nil, srv.URL+"/meta.json", path))
	b, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(b), "2025.08.1")

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestDownload_NotFound(t *testing.T) {
	srv := newTestServer(t)
	path := filepath.Join(t.TempDir(), "missing.json")

	err := Download(context.Background(), nil, srv.URL+"/missing.json", path)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrorURLNotFound))
	assert.NoFileExists(t, path)
}

func TestDownload_Authenticated(t *testing.T) {
	srv := newTestServer(t)
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "private.json")

	err := Download(ctx, nil, srv.URL+"/private.json", path)
	require.Error(t, err)
	assert.True(t, strings.Contains(err.Error(), "401"))

	c, err := GetClient(ctx, "secret")
	require.NoError(t, err)
	require.NoError(t, Download(ctx, c, srv.URL+"/private.json", path))
	assert.FileExists(t, path)
}

func TestGetJSON(t *testing.T) {
	srv := newTestServer(t)

	var v struct {
		Version   string  `json:"version"`
		Threshold float64 `json:"threshold"`
	}
	require.NoError(t, GetJSON(context.Background(), nil, srv.URL+"/meta.json", &v))
	assert.Equal(t, "2025.08.1", v.Version)
	assert.Equal(t, 0.5, v.Threshold)
}
