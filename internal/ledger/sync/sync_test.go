package sync

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sebdah/goldie/v2"
	"github.com/sirupsen/logrus"
	logtest "github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vertexads/ledger/internal/ledger/db"
	"github.com/vertexads/ledger/internal/ledger/schema"
)

const stamp = "1700000000"

// setupTestDB creates a temporary database with a fixed clock.
func setupTestDB(t *testing.T) *db.DB {
	t.Helper()

	database, err := db.Open(filepath.Join(t.TempDir(), "test.db"),
		db.WithClock(func() time.Time { return time.Unix(1700000000, 0) }))
	require.NoError(t, err)
	t.Cleanup(func() { _ = database.Close() })

	require.NoError(t, database.InitSchema())
	return database
}

// remote records requests and answers with a fixed status and body.
type remote struct {
	status   int
	body     string
	requests []*http.Request
	bodies   [][]byte
}

func (r *remote) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	data, _ := io.ReadAll(req.Body)
	r.requests = append(r.requests, req)
	r.bodies = append(r.bodies, data)

	w.Header().Set("Content-Type", "application/json")
	status := r.status
	if status == 0 {
		status = http.StatusOK
	}
	w.WriteHeader(status)
	_, _ = io.WriteString(w, r.body)
}

func newRemote(t *testing.T, status int, body string) (*remote, *httptest.Server) {
	t.Helper()
	r := &remote{status: status, body: body}
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return r, srv
}

func cursorOf(t *testing.T, database *db.DB) *string {
	t.Helper()
	v, err := database.ConfigValue(context.Background(), schema.ConfigLastSyncedAt)
	require.NoError(t, err)
	return v
}

func put(t *testing.T, database *db.DB, raw string) {
	t.Helper()
	v, err := schema.ParseValue([]byte(raw))
	require.NoError(t, err)
	require.NoError(t, database.UpsertTransaction(context.Background(), v))
}

func TestPull_NoRemoteIsNoop(t *testing.T) {
	database := setupTestDB(t)
	engine := New(database, Options{})

	res, err := engine.Pull(context.Background())
	require.NoError(t, err)
	assert.Empty(t, res.Cursor)
	assert.Nil(t, cursorOf(t, database))

	_, err = engine.Push(context.Background())
	require.NoError(t, err)
	assert.Nil(t, cursorOf(t, database))
}

func TestPull_AppliesRemoteAndStampsCursor(t *testing.T) {
	database := setupTestDB(t)
	r, srv := newRemote(t, http.StatusOK, `{
		"transacoes": [{"id":"t1","date":"2024-01-01","value":10}],
		"recorrentes": [],
		"config": {}
	}`)
	engine := New(database, Options{BaseURL: srv.URL})

	res, err := engine.Pull(context.Background())
	require.NoError(t, err)

	require.Len(t, r.requests, 1)
	assert.Equal(t, http.MethodGet, r.requests[0].Method)
	assert.Equal(t, "/sync", r.requests[0].URL.Path)
	assert.Empty(t, r.requests[0].URL.RawQuery, "first pull carries no cursor")

	docs, err := database.ListTransactions(context.Background())
	require.NoError(t, err)
	require.Len(t, docs, 1)
	assert.Equal(t, schema.String("t1"), docs[0]["id"])
	assert.Equal(t, schema.Float(10), docs[0]["value"])

	assert.Equal(t, 1, res.Transactions.Applied)
	assert.Equal(t, stamp, res.Cursor)
	require.NotNil(t, cursorOf(t, database))
	assert.Equal(t, stamp, *cursorOf(t, database))
}

func TestPull_SendsEncodedCursor(t *testing.T) {
	database := setupTestDB(t)
	require.NoError(t, database.SetConfig(context.Background(), schema.ConfigLastSyncedAt, "2024-01-01 10:00&x"))

	r, srv := newRemote(t, http.StatusOK, `{}`)
	engine := New(database, Options{BaseURL: srv.URL + "/"})

	_, err := engine.Pull(context.Background())
	require.NoError(t, err)

	require.Len(t, r.requests, 1)
	assert.Equal(t, "/sync", r.requests[0].URL.Path, "trailing slash on base URL is trimmed")
	assert.Equal(t, "2024-01-01 10:00&x", r.requests[0].URL.Query().Get("since"))
	assert.Equal(t, stamp, *cursorOf(t, database), "cursor stamped even when nothing applied")
}

func TestPull_RemoteWins(t *testing.T) {
	database := setupTestDB(t)
	put(t, database, `{"id":"t1","date":"2024-01-01","value":1,"category":"Local"}`)

	_, srv := newRemote(t, http.StatusOK, `{"transacoes":[{"id":"t1","date":"2024-01-01","value":2}]}`)
	engine := New(database, Options{BaseURL: srv.URL})

	_, err := engine.Pull(context.Background())
	require.NoError(t, err)

	doc, err := database.GetTransaction(context.Background(), "t1")
	require.NoError(t, err)
	assert.Equal(t, schema.Float(2), doc["value"])
	assert.Equal(t, schema.Null{}, doc["category"])
}

func TestPull_SkipsBadEntities(t *testing.T) {
	database := setupTestDB(t)
	_, srv := newRemote(t, http.StatusOK, `{
		"transacoes": [{"id":"t1","date":"2024-01-01"}, "garbage", {"id":"t2","date":"2024-01-02"}],
		"recorrentes": [42, {"id":"r1","titulo":"Luz"}]
	}`)
	engine := New(database, Options{BaseURL: srv.URL})

	res, err := engine.Pull(context.Background())
	require.NoError(t, err)

	assert.Equal(t, db.BatchResult{Applied: 2, Skipped: 1}, res.Transactions)
	assert.Equal(t, db.BatchResult{Applied: 1, Skipped: 1}, res.Recurring)
	assert.Equal(t, 2, res.Skipped())
	assert.Equal(t, stamp, *cursorOf(t, database))
}

func TestPull_OverwritesPresentConfigLists(t *testing.T) {
	database := setupTestDB(t)
	ctx := context.Background()
	require.NoError(t, database.SetConfig(ctx, schema.ConfigCategorias, `["Old"]`))
	require.NoError(t, database.SetConfig(ctx, schema.ConfigContas, `["Keep"]`))

	_, srv := newRemote(t, http.StatusOK, `{"config":{"categorias":["Casa","Lazer"],"other":[1]}}`)
	engine := New(database, Options{BaseURL: srv.URL})

	res, err := engine.Pull(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, res.ConfigKeys)

	cfg, err := database.GetConfig(ctx)
	require.NoError(t, err)
	assert.Equal(t, schema.ListOf("Casa", "Lazer"), cfg["categorias"])
	assert.Equal(t, schema.ListOf("Keep"), cfg["contas"])

	other, err := database.ConfigValue(ctx, "other")
	require.NoError(t, err)
	assert.Nil(t, other, "unknown config keys are ignored")
}

func TestPull_StatusError(t *testing.T) {
	database := setupTestDB(t)
	put(t, database, `{"id":"t1","date":"2024-01-01"}`)

	_, srv := newRemote(t, http.StatusInternalServerError, `oops`)
	engine := New(database, Options{BaseURL: srv.URL})

	_, err := engine.Pull(context.Background())
	require.Error(t, err)

	var se *StatusError
	require.True(t, errors.As(err, &se))
	assert.Equal(t, 500, se.Code)
	assert.Equal(t, OpPull, se.Op)
	assert.Contains(t, err.Error(), "sync pull failed")
	assert.Contains(t, err.Error(), "500")

	assert.Nil(t, cursorOf(t, database))
	docs, _ := database.ListTransactions(context.Background())
	assert.Len(t, docs, 1)
}

func TestPull_MalformedBody(t *testing.T) {
	database := setupTestDB(t)
	_, srv := newRemote(t, http.StatusOK, `{"transacoes": [`)
	engine := New(database, Options{BaseURL: srv.URL})

	_, err := engine.Pull(context.Background())
	require.Error(t, err)
	assert.Nil(t, cursorOf(t, database))
}

func TestPull_Timeout(t *testing.T) {
	database := setupTestDB(t)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}))
	t.Cleanup(srv.Close)

	engine := New(database, Options{BaseURL: srv.URL, PullTimeout: 50 * time.Millisecond})

	_, err := engine.Pull(context.Background())
	require.Error(t, err)
	assert.True(t, errors.Is(err, context.DeadlineExceeded), "got %v", err)
	assert.Nil(t, cursorOf(t, database))
}

func TestPush_FullSnapshot(t *testing.T) {
	database := setupTestDB(t)
	ctx := context.Background()

	put(t, database, `{"id":"t1","date":"2024-03-01","description":"Mercado","value":-50.5,"type":"saida","category":"Casa","deleted":true}`)
	rec, _ := schema.ParseValue([]byte(`{"id":"r1","titulo":"Aluguel","valor":1500,"diaVencimento":5}`))
	require.NoError(t, database.UpsertRecurring(ctx, rec))
	require.NoError(t, database.SetConfig(ctx, schema.ConfigCategorias, `["Casa","Lazer"]`))
	token := "tok"
	require.NoError(t, database.SetAuthToken(ctx, &token))

	r, srv := newRemote(t, http.StatusOK, ``)
	engine := New(database, Options{BaseURL: srv.URL})

	res, err := engine.Push(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Transactions.Applied)
	assert.Equal(t, 1, res.Recurring.Applied)
	assert.Equal(t, stamp, *cursorOf(t, database))

	require.Len(t, r.requests, 1)
	req := r.requests[0]
	assert.Equal(t, http.MethodPost, req.Method)
	assert.Equal(t, "/sync", req.URL.Path)
	assert.Equal(t, "application/json", req.Header.Get("Content-Type"))
	assert.Equal(t, "Bearer tok", req.Header.Get("Authorization"))

	var pretty bytes.Buffer
	require.NoError(t, json.Indent(&pretty, r.bodies[0], "", "  "))
	pretty.WriteString("\n")

	g := goldie.New(t,
		goldie.WithFixtureDir("testdata"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, "push_body", pretty.Bytes())
}

func TestPush_EmptyStoreSendsEmptyLists(t *testing.T) {
	database := setupTestDB(t)
	r, srv := newRemote(t, http.StatusOK, ``)
	engine := New(database, Options{BaseURL: srv.URL})

	_, err := engine.Push(context.Background())
	require.NoError(t, err)

	require.Len(t, r.bodies, 1)
	assert.JSONEq(t,
		`{"transacoes":[],"recorrentes":[],"config":{"categorias":[],"contas":[],"contasInvestimento":[]}}`,
		string(r.bodies[0]))
	assert.Empty(t, r.requests[0].Header.Get("Authorization"))
}

func TestPush_StatusError(t *testing.T) {
	database := setupTestDB(t)
	_, srv := newRemote(t, http.StatusUnauthorized, ``)
	engine := New(database, Options{BaseURL: srv.URL})

	_, err := engine.Push(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "sync push failed")
	assert.Contains(t, err.Error(), "401")
	assert.Nil(t, cursorOf(t, database))
}

func TestRestore_RequiresRemote(t *testing.T) {
	database := setupTestDB(t)
	put(t, database, `{"id":"t1","date":"2024-01-01"}`)

	engine := New(database, Options{})
	_, err := engine.Restore(context.Background())
	require.ErrorIs(t, err, ErrRemoteNotConfigured)

	docs, _ := database.ListTransactions(context.Background())
	assert.Len(t, docs, 1)
	assert.Nil(t, cursorOf(t, database))
}

func TestRestore_EmptyRemoteTruncates(t *testing.T) {
	database := setupTestDB(t)
	ctx := context.Background()
	put(t, database, `{"id":"t1","date":"2024-01-01"}`)
	put(t, database, `{"id":"t2","date":"2024-01-02"}`)
	rec, _ := schema.ParseValue([]byte(`{"id":"r1"}`))
	require.NoError(t, database.UpsertRecurring(ctx, rec))
	require.NoError(t, database.SetConfig(ctx, schema.ConfigLastSyncedAt, "123"))

	r, srv := newRemote(t, http.StatusOK, `{"transacoes":[],"recorrentes":[]}`)
	engine := New(database, Options{BaseURL: srv.URL})

	_, err := engine.Restore(ctx)
	require.NoError(t, err)

	require.Len(t, r.requests, 1)
	assert.Empty(t, r.requests[0].URL.RawQuery, "restore ignores the cursor")

	txs, _ := database.ListTransactions(ctx)
	recs, _ := database.ListRecurring(ctx)
	assert.Empty(t, txs)
	assert.Empty(t, recs)
	assert.Equal(t, stamp, *cursorOf(t, database))
}

func TestRestore_ReplacesLocalState(t *testing.T) {
	database := setupTestDB(t)
	ctx := context.Background()
	put(t, database, `{"id":"local","date":"2024-01-01"}`)

	_, srv := newRemote(t, http.StatusOK, `{
		"transacoes": [{"id":"remote","date":"2024-05-01","value":3.5}],
		"recorrentes": [{"id":"r1","titulo":"Internet"}],
		"config": {"contas":["Nubank"]}
	}`)
	engine := New(database, Options{BaseURL: srv.URL})

	res, err := engine.Restore(ctx)
	require.NoError(t, err)
	assert.Equal(t, OpRestore, res.Op)

	txs, _ := database.ListTransactions(ctx)
	require.Len(t, txs, 1)
	assert.Equal(t, schema.String("remote"), txs[0]["id"])

	cfg, _ := database.GetConfig(ctx)
	assert.Equal(t, schema.ListOf("Nubank"), cfg["contas"])
}

func TestRestore_FailureLeavesStore(t *testing.T) {
	database := setupTestDB(t)
	put(t, database, `{"id":"t1","date":"2024-01-01"}`)

	_, srv := newRemote(t, http.StatusBadGateway, ``)
	engine := New(database, Options{BaseURL: srv.URL})

	_, err := engine.Restore(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "restore failed")

	docs, _ := database.ListTransactions(context.Background())
	assert.Len(t, docs, 1)
}

func TestSetBaseURL(t *testing.T) {
	engine := New(setupTestDB(t), Options{BaseURL: "https://api.example.com///"})
	assert.Equal(t, "https://api.example.com", engine.BaseURL())

	engine.SetBaseURL("")
	assert.Equal(t, "", engine.BaseURL())
}

func TestStatusError_Message(t *testing.T) {
	err := &StatusError{Op: OpRestore, Code: 404}
	assert.Equal(t, "restore failed: 404", err.Error())

	err = &StatusError{Op: OpPush, Code: 500, Status: "500 Internal Server Error"}
	assert.Equal(t, "sync push failed: 500 Internal Server Error", err.Error())
}

// cancellingDB returns a store whose clock cancels the returned context the
// first time it is read after arm is called. Every upsert reads the clock,
// so arming just before a flow cancels the caller mid-apply.
func cancellingDB(t *testing.T) (database *db.DB, ctx context.Context, arm func()) {
	t.Helper()

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	var armed atomic.Bool
	database, err := db.Open(filepath.Join(t.TempDir(), "test.db"),
		db.WithClock(func() time.Time {
			if armed.CompareAndSwap(true, false) {
				cancel()
			}
			return time.Unix(1700000000, 0)
		}))
	require.NoError(t, err)
	t.Cleanup(func() { _ = database.Close() })
	require.NoError(t, database.InitSchema())

	return database, ctx, func() { armed.Store(true) }
}

func TestRestore_CallerCancelDoesNotInterrupt(t *testing.T) {
	database, ctx, arm := cancellingDB(t)
	for _, id := range []string{"a", "b", "c"} {
		put(t, database, `{"id":"`+id+`","date":"2024-01-01"}`)
	}

	_, srv := newRemote(t, http.StatusOK, `{"transacoes":[
		{"id":"r1","date":"2024-02-01"},
		{"id":"r2","date":"2024-02-02"},
		{"id":"r3","date":"2024-02-03"}
	]}`)
	engine := New(database, Options{BaseURL: srv.URL})

	arm()
	res, err := engine.Restore(ctx)
	require.NoError(t, err)
	require.Error(t, ctx.Err(), "context should have been cancelled during apply")

	assert.Equal(t, db.BatchResult{Applied: 3}, res.Transactions)
	assert.Equal(t, stamp, res.Cursor)

	docs, err := database.ListTransactions(context.Background())
	require.NoError(t, err)
	var ids []string
	for _, d := range docs {
		id, _ := d.Str("id")
		ids = append(ids, id)
	}
	assert.Equal(t, []string{"r3", "r2", "r1"}, ids)
	assert.Equal(t, stamp, *cursorOf(t, database))
}

func TestPull_CallerCancelDuringRequest(t *testing.T) {
	database := setupTestDB(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		cancel()
		_, _ = io.WriteString(w, `{"transacoes":[{"id":"t1","date":"2024-01-01"}]}`)
	}))
	t.Cleanup(srv.Close)
	engine := New(database, Options{BaseURL: srv.URL})

	res, err := engine.Pull(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Transactions.Applied)
	assert.Equal(t, stamp, *cursorOf(t, database))
}

func TestPull_CancelledBeforeStart(t *testing.T) {
	database := setupTestDB(t)
	r, srv := newRemote(t, http.StatusOK, `{}`)
	engine := New(database, Options{BaseURL: srv.URL})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := engine.Pull(ctx)
	require.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, r.requests)
	assert.Nil(t, cursorOf(t, database))
}

func TestPull_HoldsGuardAcrossRequest(t *testing.T) {
	database := setupTestDB(t)

	entered := make(chan struct{})
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		close(entered)
		<-release
		_, _ = io.WriteString(w, `{"transacoes":[{"id":"t1","date":"2024-01-01"}]}`)
	}))
	t.Cleanup(srv.Close)
	engine := New(database, Options{BaseURL: srv.URL})

	pullDone := make(chan error, 1)
	go func() {
		_, err := engine.Pull(context.Background())
		pullDone <- err
	}()

	select {
	case <-entered:
	case <-time.After(5 * time.Second):
		t.Fatal("pull never reached the remote")
	}

	type listing struct {
		docs []schema.Document
		err  error
	}
	listDone := make(chan listing, 1)
	go func() {
		docs, err := database.ListTransactions(context.Background())
		listDone <- listing{docs, err}
	}()

	select {
	case <-listDone:
		t.Fatal("read completed while the pull held the store")
	case <-time.After(150 * time.Millisecond):
	}

	close(release)
	require.NoError(t, <-pullDone)

	select {
	case got := <-listDone:
		require.NoError(t, got.err)
		assert.Len(t, got.docs, 1, "read should observe the pulled row")
	case <-time.After(5 * time.Second):
		t.Fatal("read never completed")
	}
}

func TestPull_LogsSnapshotSize(t *testing.T) {
	database := setupTestDB(t)
	_, srv := newRemote(t, http.StatusOK, `{
		"transacoes": [{"id":"t1","date":"2024-01-01","value":1},{"id":"t2","date":"2024-01-02","value":2}],
		"recorrentes": [{"id":"r1","titulo":"Luz"}]
	}`)
	logger, hook := logtest.NewNullLogger()
	logger.SetLevel(logrus.DebugLevel)
	engine := New(database, Options{BaseURL: srv.URL, Logger: logger})

	_, err := engine.Pull(context.Background())
	require.NoError(t, err)

	var sizes []interface{}
	for _, e := range hook.AllEntries() {
		if e.Message == "Applying remote snapshot" {
			sizes = append(sizes, e.Data["entities"])
		}
	}
	assert.Equal(t, []interface{}{3}, sizes)
	assert.Equal(t, 3, Snapshot{
		Transacoes:  []schema.Value{schema.Object{}, schema.Object{}},
		Recorrentes: []schema.Value{schema.Object{}},
	}.Len())
}
