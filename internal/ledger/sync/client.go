package sync

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/vertexads/ledger/internal/ledger/schema"
)

// maxBodySize caps how much of a response body is read.
const maxBodySize = 64 << 20

// syncURL returns {base}/sync, with ?since=<cursor> when cursor is set.
func syncURL(base, cursor string) string {
	u := base + "/sync"
	if cursor != "" {
		u += "?since=" + url.QueryEscape(cursor)
	}
	return u
}

// fetch issues GET {base}/sync and decodes the snapshot.
func (e *Engine) fetch(ctx context.Context, op Op, base, cursor, token string, timeout time.Duration) (Snapshot, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, syncURL(base, cursor), nil)
	if err != nil {
		return Snapshot{}, fmt.Errorf("failed to build %s request: %w", op, err)
	}
	setHeaders(req, token)

	body, err := e.roundTrip(req, op)
	if err != nil {
		return Snapshot{}, err
	}

	v, err := schema.ParseValue(body)
	if err != nil {
		return Snapshot{}, fmt.Errorf("failed to decode %s response: %w", op, err)
	}
	return SnapshotFromValue(v), nil
}

// send POSTs payload to {base}/sync.
func (e *Engine) send(ctx context.Context, base, token string, payload []byte) error {
	ctx, cancel := context.WithTimeout(ctx, e.pushTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, syncURL(base, ""), bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("failed to build push request: %w", err)
	}
	setHeaders(req, token)
	req.Header.Set("Content-Type", "application/json")

	_, err = e.roundTrip(req, OpPush)
	return err
}

// roundTrip executes req and returns the body of a 2xx response.
func (e *Engine) roundTrip(req *http.Request, op Op) ([]byte, error) {
	resp, err := e.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s request failed: %w", op.label(), err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxBodySize))
		return nil, &StatusError{Op: op, Code: resp.StatusCode, Status: resp.Status}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		return nil, fmt.Errorf("failed to read %s response: %w", op, err)
	}
	return body, nil
}

func setHeaders(req *http.Request, token string) {
	req.Header.Set("Accept", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
}
