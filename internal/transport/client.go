// Package transport talks to the laughter analysis API: pre-flight file
// validation, multipart upload with progress, and status/result reads.
package transport

import (
	"fmt"
	"log/slog"
	"mime"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"time"

	"github.com/wailsapp/mimetype"

	"laughtrackr/internal/domain"
	"laughtrackr/internal/logging"
)

// MaxUploadBytes is the largest recording accepted for analysis (500 MiB).
const MaxUploadBytes int64 = 500 * 1024 * 1024

// Client performs the analysis API calls for one base URL.
type Client struct {
	baseURL        string
	httpClient     *http.Client
	maxUploadBytes int64
	requestTimeout time.Duration
	logger         *slog.Logger
	stat           func(string) (os.FileInfo, error)
	detect         func(string) (string, error)

	uploading atomic.Bool
}

// Option customizes a Client.
type Option func(*Client)

// WithHTTPClient replaces the default HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.httpClient = hc
		}
	}
}

// WithMaxUploadBytes overrides the pre-flight size limit.
func WithMaxUploadBytes(limit int64) Option {
	return func(c *Client) {
		if limit > 0 {
			c.maxUploadBytes = limit
		}
	}
}

// WithRequestTimeout bounds each status and result read.
func WithRequestTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.requestTimeout = d
		}
	}
}

// WithLogger sets the logger used for request tracing.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) {
		c.logger = logger
	}
}

// NewClient creates a client for the API rooted at baseURL.
func NewClient(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL:        strings.TrimRight(baseURL, "/"),
		httpClient:     &http.Client{},
		maxUploadBytes: MaxUploadBytes,
		requestTimeout: 15 * time.Second,
		stat:           os.Stat,
		detect:         detectMIME,
	}
	for _, opt := range opts {
		opt(c)
	}
	c.logger = logging.OrDefault(c.logger)
	return c
}

// BaseURL returns the API root the client talks to.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// SelectFile validates a candidate recording without touching the network.
// Oversized files fail with *SizeError, non-audio content with *MediaTypeError.
func (c *Client) SelectFile(path string) (domain.SourceFile, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return domain.SourceFile{}, fmt.Errorf("file path is required")
	}

	info, err := c.stat(path)
	if err != nil {
		return domain.SourceFile{}, fmt.Errorf("cannot access %s: %w", path, err)
	}
	if info.IsDir() {
		return domain.SourceFile{}, fmt.Errorf("%s is a directory", path)
	}
	if info.Size() > c.maxUploadBytes {
		return domain.SourceFile{}, &SizeError{Size: info.Size(), Limit: c.maxUploadBytes}
	}

	mimeType, err := c.detect(path)
	if err != nil {
		return domain.SourceFile{}, fmt.Errorf("detect media type of %s: %w", path, err)
	}
	if !isAudio(mimeType) {
		if byExt := mime.TypeByExtension(strings.ToLower(filepath.Ext(path))); isAudio(byExt) {
			mimeType = byExt
		} else {
			return domain.SourceFile{}, &MediaTypeError{Path: path, MIMEType: mimeType}
		}
	}

	return domain.SourceFile{
		Path:     path,
		Name:     filepath.Base(path),
		Size:     info.Size(),
		MIMEType: mimeType,
	}, nil
}

// detectMIME sniffs the file header and reports the first audio type in the
// detected type's ancestry, or the detected type itself.
func detectMIME(path string) (string, error) {
	mt, err := mimetype.DetectFile(path)
	if err != nil {
		return "", err
	}
	for m := mt; m != nil; m = m.Parent() {
		if isAudio(m.String()) {
			return m.String(), nil
		}
	}
	return mt.String(), nil
}

func isAudio(mimeType string) bool {
	return strings.HasPrefix(strings.ToLower(mimeType), "audio/")
}

func (c *Client) endpoint(parts ...string) string {
	return c.baseURL + "/" + strings.Join(parts, "/")
}
