package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"os"
	"strings"

	"laughtrackr/internal/domain"
)

// uploadResponse is the body of a successful upload.
type uploadResponse struct {
	FileID string `json:"fileId"`
}

// Upload sends the file as multipart field "file" and returns the server job id.
// onProgress receives non-decreasing fractions and ends at exactly 1.0 on success.
// Only one upload may be in flight per client.
func (c *Client) Upload(ctx context.Context, file domain.SourceFile, onProgress func(float64)) (string, error) {
	if !c.uploading.CompareAndSwap(false, true) {
		return "", ErrUploadInFlight
	}
	defer c.uploading.Store(false)

	f, err := os.Open(file.Path)
	if err != nil {
		return "", &TransportError{Op: "upload", Err: fmt.Errorf("open %s: %w", file.Path, err)}
	}
	defer f.Close()

	head, tail, contentType, err := multipartEnvelope(file)
	if err != nil {
		return "", &TransportError{Op: "upload", Err: err}
	}

	progress := &progressReader{r: f, total: file.Size, report: onProgress}
	body := io.MultiReader(bytes.NewReader(head), progress, bytes.NewReader(tail))

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint("api", "upload"), body)
	if err != nil {
		return "", &TransportError{Op: "upload", Err: err}
	}
	req.ContentLength = int64(len(head)) + file.Size + int64(len(tail))
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("Accept", "application/json")

	c.logger.Debug("upload started", "file", file.Name, "bytes", file.Size, "url", req.URL.String())

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", &TransportError{Op: "upload", Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", &UploadError{StatusCode: resp.StatusCode, Body: readErrorBody(resp.Body)}
	}

	var payload uploadResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return "", &TransportError{Op: "upload", StatusCode: resp.StatusCode, Err: fmt.Errorf("decode response: %w", err)}
	}
	if strings.TrimSpace(payload.FileID) == "" {
		return "", &TransportError{Op: "upload", StatusCode: resp.StatusCode, Err: errors.New("response has no fileId")}
	}

	progress.finish()
	c.logger.Debug("upload finished", "file", file.Name, "job_id", payload.FileID)
	return payload.FileID, nil
}

// multipartEnvelope renders the multipart bytes around the file content so the
// request can carry an exact Content-Length while streaming the file itself.
func multipartEnvelope(file domain.SourceFile) (head, tail []byte, contentType string, err error) {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)

	hdr := make(textproto.MIMEHeader)
	hdr.Set("Content-Disposition", fmt.Sprintf(`form-data; name="file"; filename="%s"`, escapeQuotes(file.Name)))
	mimeType := file.MIMEType
	if mimeType == "" {
		mimeType = "application/octet-stream"
	}
	hdr.Set("Content-Type", mimeType)
	if _, err := mw.CreatePart(hdr); err != nil {
		return nil, nil, "", fmt.Errorf("build multipart header: %w", err)
	}
	head = append([]byte(nil), buf.Bytes()...)
	buf.Reset()

	if err := mw.Close(); err != nil {
		return nil, nil, "", fmt.Errorf("build multipart trailer: %w", err)
	}
	tail = append([]byte(nil), buf.Bytes()...)
	return head, tail, mw.FormDataContentType(), nil
}

var quoteEscaper = strings.NewReplacer("\\", "\\\\", `"`, "\\\"")

func escapeQuotes(s string) string {
	return quoteEscaper.Replace(s)
}

// progressReader reports the fraction of file bytes consumed by the transport.
type progressReader struct {
	r      io.Reader
	total  int64
	read   int64
	last   float64
	report func(float64)
}

func (p *progressReader) Read(b []byte) (int, error) {
	n, err := p.r.Read(b)
	if n > 0 && p.total > 0 {
		p.read += int64(n)
		fraction := float64(p.read) / float64(p.total)
		if fraction > 1 {
			fraction = 1
		}
		if fraction-p.last >= 0.01 || (fraction == 1 && p.last < 1) {
			p.emit(fraction)
		}
	}
	return n, err
}

// finish reports completion once the server accepted the upload.
func (p *progressReader) finish() {
	if p.last < 1 {
		p.emit(1)
	}
}

func (p *progressReader) emit(fraction float64) {
	if fraction < p.last {
		return
	}
	p.last = fraction
	if p.report != nil {
		p.report(fraction)
	}
}

func readErrorBody(r io.Reader) string {
	data, _ := io.ReadAll(io.LimitReader(r, 4096))
	return strings.TrimSpace(string(data))
}
