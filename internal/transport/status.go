package transport

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"

	"laughtrackr/internal/domain"
)

// Result is a validated result payload.
type Result struct {
	Segments domain.SegmentSet
	Rejected []*MalformedResultError
}

// FetchStatus performs one idempotent status read for jobID.
func (c *Client) FetchStatus(ctx context.Context, jobID string) (domain.StatusSnapshot, error) {
	var payload struct {
		Status   string   `json:"status"`
		Message  string   `json:"message"`
		Progress *float64 `json:"progress"`
	}
	if err := c.getJSON(ctx, "status", jobID, &payload); err != nil {
		return domain.StatusSnapshot{}, err
	}

	status := domain.AnalysisStatus(payload.Status)
	if !status.Valid() {
		return domain.StatusSnapshot{}, &TransportError{
			Op:  "status",
			Err: fmt.Errorf("unrecognized status %q: %s", payload.Status, payload.Message),
		}
	}

	snap := domain.StatusSnapshot{Status: status, Message: payload.Message}
	if payload.Progress != nil {
		p := clampFraction(*payload.Progress)
		snap.Progress = &p
	}
	return snap, nil
}

// FetchResult reads the segments of a finished job. Segments that fail
// validation are dropped individually and listed in Result.Rejected.
func (c *Client) FetchResult(ctx context.Context, jobID string) (Result, error) {
	var payload struct {
		Segments []json.RawMessage `json:"segments"`
	}
	if err := c.getJSON(ctx, "result", jobID, &payload); err != nil {
		return Result{}, err
	}

	segments, rejected := normalizeSegments(payload.Segments)
	for _, r := range rejected {
		c.logger.Warn("result segment dropped", "job_id", jobID, "index", r.Index, "reason", r.Reason)
	}
	return Result{Segments: segments, Rejected: rejected}, nil
}

func (c *Client) getJSON(ctx context.Context, op, jobID string, out any) error {
	if jobID == "" {
		return &TransportError{Op: op, Err: errors.New("job id is required")}
	}

	ctx, cancel := context.WithTimeout(ctx, c.requestTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.endpoint("api", op, url.PathEscape(jobID)), nil)
	if err != nil {
		return &TransportError{Op: op, Err: err}
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return &TransportError{Op: op, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &TransportError{Op: op, StatusCode: resp.StatusCode, Err: errors.New(readErrorBody(resp.Body))}
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return &TransportError{Op: op, StatusCode: resp.StatusCode, Err: fmt.Errorf("decode response: %w", err)}
	}
	return nil
}

func clampFraction(v float64) float64 {
	switch {
	case v < 0:
		return 0
	case v > 1:
		return 1
	default:
		return v
	}
}
