// Package transfer performs the presigned-URL HTTP transfers for one job:
// bounded-timeout downloads into the staging directory and a single PUT of the
// finished artifact. Both directions sanity-check content instead of trusting
// the URL, since an expired presigned URL still answers 200-shaped garbage
// often enough to matter.
package transfer

import (
	"context"
	"errors"
	"net"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"

	"multitalk-worker/log"
	apperrors "multitalk-worker/pkg/errors"
)

const (
	// Payloads below this are implausible as media and rejected outright.
	minContentSize = 100

	// Bodies smaller than this with a markup/JSON content type get scanned
	// for error-page indicators before being accepted.
	errorPageScanLimit = 10000
)

// Client performs presigned-URL downloads and uploads with bounded timeouts.
type Client struct {
	http            *resty.Client
	inputDir        string
	downloadTimeout time.Duration
	uploadTimeout   time.Duration
}

// NewClient creates a transfer client staging downloads under inputDir.
func NewClient(inputDir string, downloadTimeout, uploadTimeout time.Duration) *Client {
	return &Client{
		http:            resty.New(),
		inputDir:        inputDir,
		downloadTimeout: downloadTimeout,
		uploadTimeout:   uploadTimeout,
	}
}

// Download fetches url and persists the body under the staging directory as
// saveName. It returns the local path on success.
func (c *Client) Download(url, saveName string) (string, error) {
	log.GetLogger().Info("downloading asset",
		zap.String("url", truncate(url, 100)),
		zap.String("save_name", saveName))

	ctx, cancel := context.WithTimeout(context.Background(), c.downloadTimeout)
	defer cancel()

	resp, err := c.http.R().SetContext(ctx).Get(url)
	if err != nil {
		if isTimeout(err) {
			return "", apperrors.Newf(apperrors.CodeTransferTimeout,
				"Download timed out after %d seconds", int(c.downloadTimeout.Seconds()))
		}
		return "", apperrors.Wrap(apperrors.CodeDownloadFailed, "Download request error", err)
	}

	body := resp.Body()
	if resp.StatusCode() != 200 {
		return "", apperrors.Newf(apperrors.CodeDownloadFailed,
			"Download failed with HTTP %d: %s", resp.StatusCode(), truncate(string(body), 200))
	}

	// A markup or JSON content type on a small body is usually an error page
	// hiding behind a 200.
	contentType := resp.Header().Get("Content-Type")
	if (strings.Contains(contentType, "text/html") || strings.Contains(contentType, "application/json")) &&
		len(body) < errorPageScanLimit {
		lowered := strings.ToLower(string(body))
		if strings.Contains(lowered, "error") || strings.Contains(lowered, "denied") {
			return "", apperrors.Newf(apperrors.CodeErrorPage,
				"URL returned error page: %s", truncate(string(body), 200))
		}
	}

	if len(body) < minContentSize {
		return "", apperrors.Newf(apperrors.CodeContentTooSmall,
			"Downloaded content too small (%d bytes)", len(body))
	}

	if err = os.MkdirAll(c.inputDir, 0o755); err != nil {
		return "", apperrors.Wrap(apperrors.CodeDownloadFailed, "Cannot create staging directory", err)
	}

	savePath := filepath.Join(c.inputDir, saveName)
	if err = os.WriteFile(savePath, body, 0o644); err != nil {
		return "", apperrors.Wrap(apperrors.CodeDownloadFailed, "Cannot persist download", err)
	}

	log.GetLogger().Info("asset saved",
		zap.String("path", savePath),
		zap.Int("bytes", len(body)))
	return savePath, nil
}

// Upload sends the file at localPath to uploadURL with a single PUT.
// Success is exactly HTTP 200.
func (c *Client) Upload(localPath, uploadURL string) error {
	info, err := os.Stat(localPath)
	if err != nil {
		return apperrors.Newf(apperrors.CodeUploadFailed, "File not found: %s", localPath)
	}

	log.GetLogger().Info("uploading artifact",
		zap.String("path", localPath),
		zap.Int64("bytes", info.Size()))

	f, err := os.Open(localPath)
	if err != nil {
		return apperrors.Wrap(apperrors.CodeUploadFailed, "Cannot open artifact", err)
	}
	defer f.Close()

	ctx, cancel := context.WithTimeout(context.Background(), c.uploadTimeout)
	defer cancel()

	resp, err := c.http.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/octet-stream").
		SetBody(f).
		Put(uploadURL)
	if err != nil {
		if isTimeout(err) {
			return apperrors.Newf(apperrors.CodeTransferTimeout,
				"Upload timed out after %d seconds", int(c.uploadTimeout.Seconds()))
		}
		return apperrors.Wrap(apperrors.CodeUploadFailed, "Upload transport error", err)
	}

	if resp.StatusCode() != 200 {
		return apperrors.Newf(apperrors.CodeUploadFailed,
			"Upload failed with status %d: %s", resp.StatusCode(), truncate(string(resp.Body()), 500))
	}

	log.GetLogger().Info("upload successful", zap.String("path", localPath))
	return nil
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
