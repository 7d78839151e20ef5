package vaultsdk

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestSDK(t *testing.T, handler http.Handler) *VaultSDK {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	sdk, err := New(srv.URL)
	require.NoError(t, err)
	return sdk
}

func TestNewRequiresURL(t *testing.T) {
	_, err := New("")
	assert.ErrorIs(t, err, ErrNoServerURL)
}

func TestGetChecksums(t *testing.T) {
	sdk := newTestSDK(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, v1Checksums, r.URL.Path)
		fmt.Fprint(w, `{"files":{"a.md":"h1","notes/b.md":"h2"},"count":2}`)
	}))

	files, err := sdk.GetChecksums(context.Background())
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"a.md": "h1", "notes/b.md": "h2"}, files)
}

func TestGetChecksumsCountMismatch(t *testing.T) {
	sdk := newTestSDK(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"files":{"a.md":"h1"},"count":5}`)
	}))

	_, err := sdk.GetChecksums(context.Background())
	assert.ErrorIs(t, err, ErrChecksumCount)
}

func TestGetFile(t *testing.T) {
	sdk := newTestSDK(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "a.md", r.URL.Query().Get("path"))
		w.Write([]byte("hello"))
	}))

	body, err := sdk.GetFile(context.Background(), "a.md")
	require.NoError(t, err)
	assert.Equal(t, []byte("hello"), body)
}

func TestGetFileNotFound(t *testing.T) {
	sdk := newTestSDK(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))

	_, err := sdk.GetFile(context.Background(), "gone.md")
	assert.ErrorIs(t, err, ErrFileNotFound)
}

func TestPutFile(t *testing.T) {
	var gotPath string
	sdk := newTestSDK(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Query().Get("path")
		assert.Equal(t, http.MethodPut, r.Method)
		w.WriteHeader(http.StatusCreated)
	}))

	require.NoError(t, sdk.PutFile(context.Background(), "notes/a.md", []byte("x")))
	assert.Equal(t, "notes/a.md", gotPath)
}

func TestDeleteFileStatusCodes(t *testing.T) {
	cases := []struct {
		status int
		body   string
		wantOK bool
	}{
		{http.StatusOK, "", true},
		{http.StatusCreated, "", true},
		{http.StatusNoContent, "", true},
		// already-absent files succeed, with or without an error body
		{http.StatusNotFound, "", true},
		{http.StatusNotFound, `{"code":"E_FILE_NOT_FOUND","error":"no such file"}`, true},
		{http.StatusForbidden, "", false},
		{http.StatusInternalServerError, "", false},
	}

	for _, c := range cases {
		t.Run(fmt.Sprintf("status %d body %d", c.status, len(c.body)), func(t *testing.T) {
			sdk := newTestSDK(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(c.status)
				if c.body != "" {
					fmt.Fprint(w, c.body)
				}
			}))

			err := sdk.DeleteFile(context.Background(), "a.md")
			if c.wantOK {
				assert.NoError(t, err)
			} else {
				assert.Error(t, err)
			}
		})
	}
}

func TestGetStatus(t *testing.T) {
	sdk := newTestSDK(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"online":true,"version":"1.0"}`)
	}))
	assert.NoError(t, sdk.GetStatus(context.Background()))
}

func TestGetStatusOffline(t *testing.T) {
	sdk := newTestSDK(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"online":false}`)
	}))

	err := sdk.GetStatus(context.Background())
	assert.ErrorIs(t, err, ErrRemoteOffline)
	assert.True(t, IsConnectivityErr(err))
}

func TestIsConnectivityErr(t *testing.T) {
	// unreachable server
	sdk, err := New("http://127.0.0.1:1")
	require.NoError(t, err)
	connErr := sdk.GetStatus(context.Background())
	require.Error(t, connErr)
	assert.True(t, IsConnectivityErr(connErr))

	// structured API error with 5xx
	assert.True(t, IsConnectivityErr(&APIError{Code: CodeInternalError, StatusCode: 503}))

	// client-side rejection is not a connectivity problem
	assert.False(t, IsConnectivityErr(&APIError{Code: CodeAccessDenied, StatusCode: 403}))
	assert.False(t, IsConnectivityErr(errors.New("boom")))
	assert.False(t, IsConnectivityErr(nil))
}
