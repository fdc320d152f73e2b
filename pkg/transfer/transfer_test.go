package transfer

import (
	"bytes"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "multitalk-worker/pkg/errors"
)

func newTestClient(t *testing.T) *Client {
	t.Helper()
	return NewClient(filepath.Join(t.TempDir(), "input"), 5*time.Second, 5*time.Second)
}

func TestDownload_Success(t *testing.T) {
	payload := bytes.Repeat([]byte{0xAB}, 2048)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/octet-stream")
		w.Write(payload)
	}))
	defer srv.Close()

	c := newTestClient(t)
	path, err := c.Download(srv.URL, "input_image_abc.png")
	require.NoError(t, err)

	got, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, payload, got)
	assert.Equal(t, "input_image_abc.png", filepath.Base(path))
}

func TestDownload_HTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "no such key", http.StatusForbidden)
	}))
	defer srv.Close()

	c := newTestClient(t)
	_, err := c.Download(srv.URL, "x.png")
	require.Error(t, err)
	assert.True(t, apperrors.Is(err, apperrors.CodeDownloadFailed))
	assert.Contains(t, apperrors.GetMessage(err), "403")
	assert.Contains(t, apperrors.GetMessage(err), "no such key")
}

func TestDownload_ErrorPageDetected(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		io.WriteString(w, "<html><body>Access Denied: token expired</body></html>")
	}))
	defer srv.Close()

	c := newTestClient(t)
	_, err := c.Download(srv.URL, "x.png")
	require.Error(t, err)
	assert.True(t, apperrors.Is(err, apperrors.CodeErrorPage))
	assert.Contains(t, apperrors.GetMessage(err), "error page")
}

func TestDownload_ContentTooSmall(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/octet-stream")
		w.Write([]byte("tiny"))
	}))
	defer srv.Close()

	c := newTestClient(t)
	_, err := c.Download(srv.URL, "x.png")
	require.Error(t, err)
	assert.True(t, apperrors.Is(err, apperrors.CodeContentTooSmall))
}

func TestDownload_Timeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(300 * time.Millisecond)
	}))
	defer srv.Close()

	c := NewClient(t.TempDir(), 50*time.Millisecond, time.Second)
	_, err := c.Download(srv.URL, "x.png")
	require.Error(t, err)
	assert.True(t, apperrors.Is(err, apperrors.CodeTransferTimeout))
	assert.Contains(t, apperrors.GetMessage(err), "timed out")
}

func TestUpload_Success(t *testing.T) {
	var received []byte
	var contentType string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPut, r.Method)
		contentType = r.Header.Get("Content-Type")
		received, _ = io.ReadAll(r.Body)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	artifact := filepath.Join(t.TempDir(), "result.mp4")
	require.NoError(t, os.WriteFile(artifact, []byte("mp4-bytes"), 0o644))

	c := newTestClient(t)
	require.NoError(t, c.Upload(artifact, srv.URL))
	assert.Equal(t, []byte("mp4-bytes"), received)
	assert.Equal(t, "application/octet-stream", contentType)
}

func TestUpload_MissingFile(t *testing.T) {
	c := newTestClient(t)
	err := c.Upload(filepath.Join(t.TempDir(), "gone.mp4"), "http://unused.invalid")
	require.Error(t, err)
	assert.True(t, apperrors.Is(err, apperrors.CodeUploadFailed))
	assert.Contains(t, apperrors.GetMessage(err), "File not found")
}

func TestUpload_Non200(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "signature mismatch", http.StatusBadRequest)
	}))
	defer srv.Close()

	artifact := filepath.Join(t.TempDir(), "result.mp4")
	require.NoError(t, os.WriteFile(artifact, []byte("mp4-bytes"), 0o644))

	c := newTestClient(t)
	err := c.Upload(artifact, srv.URL)
	require.Error(t, err)
	assert.True(t, apperrors.Is(err, apperrors.CodeUploadFailed))
	assert.Contains(t, apperrors.GetMessage(err), "400")
	assert.Contains(t, apperrors.GetMessage(err), "signature mismatch")
}
