package transport

import (
	"errors"
	"fmt"

	"github.com/dustin/go-humanize"
)

// ErrUploadInFlight is returned when a second upload starts before the first settles.
var ErrUploadInFlight = errors.New("upload already in flight")

// SizeError rejects a candidate file before any network I/O.
type SizeError struct {
	Size  int64
	Limit int64
}

// Error formats the size rejection for the error slot.
func (e *SizeError) Error() string {
	return fmt.Sprintf("file is %s, exceeds the %s limit", humanize.IBytes(uint64(e.Size)), humanize.IBytes(uint64(e.Limit)))
}

// MediaTypeError rejects a candidate whose content is not audio.
type MediaTypeError struct {
	Path     string
	MIMEType string
}

// Error formats the media type rejection.
func (e *MediaTypeError) Error() string {
	return fmt.Sprintf("%s is %s, expected an audio file", e.Path, e.MIMEType)
}

// UploadError is a non-2xx answer to the upload request.
type UploadError struct {
	StatusCode int
	Body       string
}

// Error includes the HTTP status code so it reaches the user verbatim.
func (e *UploadError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("upload failed (HTTP %d)", e.StatusCode)
	}
	return fmt.Sprintf("upload failed (HTTP %d): %s", e.StatusCode, e.Body)
}

// TransportError covers network, HTTP and decode failures of one request.
type TransportError struct {
	Op         string
	StatusCode int
	Err        error
}

// Error formats the failed operation with optional status code.
func (e *TransportError) Error() string {
	if e == nil {
		return ""
	}
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s: HTTP %d: %v", e.Op, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

// Unwrap exposes underlying error for errors.Is / errors.As.
func (e *TransportError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// MalformedResultError describes one result segment that was dropped.
type MalformedResultError struct {
	Index  int
	Reason string
}

// Error formats the rejected segment position and reason.
func (e *MalformedResultError) Error() string {
	return fmt.Sprintf("segment %d dropped: %s", e.Index, e.Reason)
}
