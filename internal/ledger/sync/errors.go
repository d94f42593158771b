package sync

import (
	"errors"
	"fmt"
)

// ErrRemoteNotConfigured is returned by Restore when no base URL is set.
var ErrRemoteNotConfigured = errors.New("remote API URL not configured; set api_url or TAURI_APP_CLOUD_API_URL")

// Op names a sync flow.
type Op string

const (
	OpPull    Op = "pull"
	OpPush    Op = "push"
	OpRestore Op = "restore"
)

func (op Op) label() string {
	if op == OpRestore {
		return "restore"
	}
	return "sync " + string(op)
}

// StatusError is returned when the remote answers with a non-2xx status.
type StatusError struct {
	Op     Op
	Code   int
	Status string
}

func (e *StatusError) Error() string {
	status := e.Status
	if status == "" {
		status = fmt.Sprintf("%d", e.Code)
	}
	return fmt.Sprintf("%s failed: %s", e.Op.label(), status)
}
