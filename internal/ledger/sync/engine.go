package sync

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/vertexads/ledger/internal/ledger/db"
	"github.com/vertexads/ledger/internal/ledger/schema"
)

// Default request timeouts per flow.
const (
	DefaultPullTimeout    = 15 * time.Second
	DefaultPushTimeout    = 15 * time.Second
	DefaultRestoreTimeout = 30 * time.Second
)

// Options configures an Engine.
type Options struct {
	// BaseURL of the remote service. Empty means local-only.
	BaseURL string

	// HTTPClient used for requests (default: a new http.Client).
	// Per-flow deadlines are applied through the request context.
	HTTPClient *http.Client

	// Logger for sync activity (default: logrus standard logger).
	Logger logrus.FieldLogger

	PullTimeout    time.Duration
	PushTimeout    time.Duration
	RestoreTimeout time.Duration
}

// Result reports what a flow did.
type Result struct {
	Op           Op
	Transactions db.BatchResult
	Recurring    db.BatchResult
	ConfigKeys   int
	// Cursor is the stamped lastSyncedAt, empty when the flow was a no-op.
	Cursor string
}

// Skipped returns the number of entities that failed to apply.
func (r Result) Skipped() int {
	return r.Transactions.Skipped + r.Recurring.Skipped
}

// Engine implements Syncer over a db.DB and an HTTP client.
//
// A flow that holds the guard runs to completion: the caller's context can
// stop it from starting but not interrupt it. The per-flow HTTP timeout is
// the only bound.
type Engine struct {
	db      *db.DB
	client  *http.Client
	logger  logrus.FieldLogger
	baseURL atomic.Pointer[string]

	pullTimeout    time.Duration
	pushTimeout    time.Duration
	restoreTimeout time.Duration
}

var _ Syncer = (*Engine)(nil)

// New creates an Engine for database.
//
// The database must have its schema initialized.
//
// Example:
//
//	engine := sync.New(database, sync.Options{BaseURL: os.Getenv("TAURI_APP_CLOUD_API_URL")})
func New(database *db.DB, opts Options) *Engine {
	if opts.HTTPClient == nil {
		opts.HTTPClient = &http.Client{}
	}
	if opts.Logger == nil {
		opts.Logger = logrus.StandardLogger()
	}
	if opts.PullTimeout <= 0 {
		opts.PullTimeout = DefaultPullTimeout
	}
	if opts.PushTimeout <= 0 {
		opts.PushTimeout = DefaultPushTimeout
	}
	if opts.RestoreTimeout <= 0 {
		opts.RestoreTimeout = DefaultRestoreTimeout
	}

	e := &Engine{
		db:             database,
		client:         opts.HTTPClient,
		logger:         opts.Logger.WithField("component", "sync"),
		pullTimeout:    opts.PullTimeout,
		pushTimeout:    opts.PushTimeout,
		restoreTimeout: opts.RestoreTimeout,
	}
	e.SetBaseURL(opts.BaseURL)
	return e
}

// SetBaseURL replaces the remote base URL. Trailing slashes are trimmed.
// Flows already running keep the URL they started with.
func (e *Engine) SetBaseURL(url string) {
	url = strings.TrimRight(strings.TrimSpace(url), "/")
	e.baseURL.Store(&url)
}

// BaseURL returns the configured remote base URL, or "".
func (e *Engine) BaseURL() string {
	if p := e.baseURL.Load(); p != nil {
		return *p
	}
	return ""
}

// Pull implements Syncer.Pull.
func (e *Engine) Pull(ctx context.Context) (Result, error) {
	res := Result{Op: OpPull}
	base := e.BaseURL()
	if base == "" {
		return res, nil
	}

	err := e.db.Do(ctx, func(s *db.Session) error {
		flow := context.WithoutCancel(ctx)
		cursor, err := s.ConfigValue(flow, schema.ConfigLastSyncedAt)
		if err != nil {
			return err
		}
		since := ""
		if cursor != nil {
			since = *cursor
		}

		token, err := s.AuthToken(flow)
		if err != nil {
			return err
		}

		body, err := e.fetch(flow, OpPull, base, since, token, e.pullTimeout)
		if err != nil {
			return err
		}

		e.apply(flow, s, body, &res)
		return e.stamp(flow, s, &res)
	})
	if err != nil {
		return res, err
	}

	e.logResult(res)
	return res, nil
}

// Push implements Syncer.Push.
func (e *Engine) Push(ctx context.Context) (Result, error) {
	res := Result{Op: OpPush}
	base := e.BaseURL()
	if base == "" {
		return res, nil
	}

	err := e.db.Do(ctx, func(s *db.Session) error {
		flow := context.WithoutCancel(ctx)
		snap, err := e.snapshot(flow, s)
		if err != nil {
			return err
		}

		token, err := s.AuthToken(flow)
		if err != nil {
			return err
		}

		payload, err := json.Marshal(snap)
		if err != nil {
			return fmt.Errorf("failed to encode push body: %w", err)
		}

		if err := e.send(flow, base, token, payload); err != nil {
			return err
		}

		res.Transactions.Applied = len(snap.Transacoes)
		res.Recurring.Applied = len(snap.Recorrentes)
		res.ConfigKeys = len(snap.Config)
		return e.stamp(flow, s, &res)
	})
	if err != nil {
		return res, err
	}

	e.logResult(res)
	return res, nil
}

// Restore implements Syncer.Restore.
func (e *Engine) Restore(ctx context.Context) (Result, error) {
	res := Result{Op: OpRestore}
	base := e.BaseURL()
	if base == "" {
		return res, ErrRemoteNotConfigured
	}

	err := e.db.Do(ctx, func(s *db.Session) error {
		flow := context.WithoutCancel(ctx)
		token, err := s.AuthToken(flow)
		if err != nil {
			return err
		}

		body, err := e.fetch(flow, OpRestore, base, "", token, e.restoreTimeout)
		if err != nil {
			return err
		}

		// Not transactional: a failure below leaves the tables cleared.
		if err := s.ClearTransactions(flow); err != nil {
			return err
		}
		if err := s.ClearRecurring(flow); err != nil {
			return err
		}

		e.apply(flow, s, body, &res)
		return e.stamp(flow, s, &res)
	})
	if err != nil {
		return res, err
	}

	e.logResult(res)
	return res, nil
}

// apply upserts every entity in snap and overwrites the config lists it
// carries. Failures are logged and counted, never returned.
func (e *Engine) apply(ctx context.Context, s *db.Session, snap Snapshot, res *Result) {
	e.logger.WithField("entities", snap.Len()).Debug("Applying remote snapshot")
	res.Transactions.Add(s.UpsertTransactions(ctx, snap.Transacoes))
	res.Recurring.Add(s.UpsertRecurringBatch(ctx, snap.Recorrentes))

	for _, key := range schema.ConfigLists {
		v, ok := snap.Config[key]
		if !ok {
			continue
		}
		encoded, err := schema.EncodeValue(v)
		if err != nil {
			e.logger.WithError(err).WithField("key", key).Warn("Failed to encode config list")
			continue
		}
		if err := s.SetConfig(ctx, key, encoded); err != nil {
			e.logger.WithError(err).WithField("key", key).Warn("Failed to store config list")
			continue
		}
		res.ConfigKeys++
	}
}

// snapshot reads the full local dataset in the pull response shape.
func (e *Engine) snapshot(ctx context.Context, s *db.Session) (Snapshot, error) {
	txs, err := s.ListTransactions(ctx)
	if err != nil {
		return Snapshot{}, err
	}
	recs, err := s.ListRecurring(ctx)
	if err != nil {
		return Snapshot{}, err
	}
	cfg, err := s.GetConfig(ctx)
	if err != nil {
		return Snapshot{}, err
	}

	lists := make(schema.Object, len(schema.ConfigLists))
	for _, key := range schema.ConfigLists {
		lists[key] = cfg.Get(key)
	}

	return Snapshot{
		Transacoes:  documentsToValues(txs),
		Recorrentes: documentsToValues(recs),
		Config:      lists,
	}, nil
}

// stamp records the cursor after a successful network exchange.
func (e *Engine) stamp(ctx context.Context, s *db.Session, res *Result) error {
	cursor, err := s.StampCursor(ctx)
	if err != nil {
		return fmt.Errorf("failed to stamp sync cursor: %w", err)
	}
	res.Cursor = cursor
	return nil
}

func (e *Engine) logResult(res Result) {
	entry := e.logger.WithFields(logrus.Fields{
		"op":                   string(res.Op),
		"transactions":         res.Transactions.Applied,
		"transactions_skipped": res.Transactions.Skipped,
		"recurring":            res.Recurring.Applied,
		"recurring_skipped":    res.Recurring.Skipped,
		"config_keys":          res.ConfigKeys,
		"cursor":               res.Cursor,
	})
	if res.Skipped() > 0 {
		entry.Warn("Sync completed with skipped entities")
		return
	}
	entry.Info("Sync complete")
}
