package bridge

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vertexads/ledger/internal/ledger/db"
	"github.com/vertexads/ledger/internal/ledger/schema"
	ledgersync "github.com/vertexads/ledger/internal/ledger/sync"
	"github.com/vertexads/ledger/internal/logging"
)

type envelope struct {
	OK    bool            `json:"ok"`
	Data  json.RawMessage `json:"data"`
	Error string          `json:"error"`
}

func startServer(t *testing.T, remoteURL string) (*Server, *db.DB) {
	t.Helper()

	database, err := db.Open(filepath.Join(t.TempDir(), "ledger.db"))
	require.NoError(t, err)
	require.NoError(t, database.InitSchema())

	engine := ledgersync.New(database, ledgersync.Options{BaseURL: remoteURL, Logger: logging.Discard()})
	server := NewServer(&Config{Addr: "127.0.0.1:0", Logger: logging.Discard()}, database, engine)
	require.NoError(t, server.Start())

	t.Cleanup(func() {
		_ = server.Stop()
		_ = database.Close()
	})
	return server, database
}

func invoke(t *testing.T, s *Server, command, body string) (int, envelope) {
	t.Helper()

	resp, err := http.Post("http://"+s.GetAddr()+"/invoke/"+command, "application/json", strings.NewReader(body))
	require.NoError(t, err)
	defer resp.Body.Close()

	var env envelope
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&env))
	return resp.StatusCode, env
}

func dial(t *testing.T, s *Server) *websocket.Conn {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn, _, err := websocket.Dial(ctx, "ws://"+s.GetAddr()+"/ws", nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close(websocket.StatusNormalClosure, "") })

	msg := readMessage(t, conn)
	require.Equal(t, MessageTypeHello, msg.Type)
	require.Eventually(t, func() bool { return s.ClientCount() == 1 }, 2*time.Second, 10*time.Millisecond)
	return conn
}

func readMessage(t *testing.T, conn *websocket.Conn) Message {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	_, data, err := conn.Read(ctx)
	require.NoError(t, err)

	var msg Message
	require.NoError(t, json.Unmarshal(data, &msg))
	return msg
}

func TestInvoke_TransactionRoundTrip(t *testing.T) {
	s, _ := startServer(t, "")

	code, env := invoke(t, s, "put_transacao", `{"tx":{"id":"t1","date":"2024-01-01","value":-50.5,"type":"saida"}}`)
	require.Equal(t, http.StatusOK, code, env.Error)
	assert.True(t, env.OK)

	code, env = invoke(t, s, "get_transacoes", "")
	require.Equal(t, http.StatusOK, code)

	var docs []map[string]interface{}
	require.NoError(t, json.Unmarshal(env.Data, &docs))
	require.Len(t, docs, 1)
	assert.Equal(t, "t1", docs[0]["id"])
	assert.Equal(t, -50.5, docs[0]["value"])
	assert.Equal(t, false, docs[0]["deleted"])
}

func TestInvoke_EmptyListIsArray(t *testing.T) {
	s, _ := startServer(t, "")

	_, env := invoke(t, s, "get_recorrentes", "{}")
	assert.JSONEq(t, `[]`, string(env.Data))
}

func TestInvoke_Batch(t *testing.T) {
	s, _ := startServer(t, "")

	code, env := invoke(t, s, "put_recorrentes", `{"items":[{"id":"r1","titulo":"Aluguel","valor":1500},"bad",{"id":"r2","titulo":"Luz"}]}`)
	require.Equal(t, http.StatusOK, code, env.Error)
	assert.JSONEq(t, `{"applied":2,"skipped":1}`, string(env.Data))
}

func TestInvoke_Errors(t *testing.T) {
	s, _ := startServer(t, "")

	tests := []struct {
		name    string
		command string
		body    string
		code    int
		message string
	}{
		{"unknown command", "nope", "", http.StatusNotFound, "unknown command: nope"},
		{"array arguments", "get_config", "[]", http.StatusBadRequest, "arguments must be a JSON object"},
		{"malformed json", "get_config", "{", http.StatusBadRequest, "invalid arguments"},
		{"missing id", "delete_transacao", "{}", http.StatusBadRequest, "missing argument: id"},
		{"missing document", "put_transacao", `{"tx":null}`, http.StatusBadRequest, "missing argument: tx"},
		{"document not object", "put_transacao", `{"tx":5}`, http.StatusBadRequest, "expected object"},
		{"items not list", "put_transacoes", `{"items":{}}`, http.StatusBadRequest, "argument items must be a list"},
		{"trash unknown id", "trash_transacao", `{"id":"missing"}`, http.StatusNotFound, "transaction missing: not found"},
		{"restore without remote", "restore_from_cloud", "", http.StatusInternalServerError, ledgersync.ErrRemoteNotConfigured.Error()},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			code, env := invoke(t, s, tt.command, tt.body)
			assert.Equal(t, tt.code, code)
			assert.False(t, env.OK)
			assert.Contains(t, env.Error, tt.message)
		})
	}
}

func TestInvoke_Config(t *testing.T) {
	s, _ := startServer(t, "")

	code, env := invoke(t, s, "set_config", `{"payload":{"key":"categorias","value":"[\"Casa\"]"}}`)
	require.Equal(t, http.StatusOK, code, env.Error)

	code, env = invoke(t, s, "set_config", `{"key":"contas","value":["Banco"]}`)
	require.Equal(t, http.StatusOK, code, env.Error)

	_, env = invoke(t, s, "get_config", "")
	assert.JSONEq(t, `{"categorias":["Casa"],"contas":["Banco"],"contasInvestimento":[],"lastSyncedAt":null}`, string(env.Data))
}

func TestInvoke_SyncWithoutRemote(t *testing.T) {
	s, _ := startServer(t, "")

	code, env := invoke(t, s, "sync_pull", "")
	require.Equal(t, http.StatusOK, code, env.Error)
	assert.True(t, env.OK)

	var data SyncData
	require.NoError(t, json.Unmarshal(env.Data, &data))
	assert.Equal(t, "pull", data.Op)
	assert.Empty(t, data.Cursor)
}

func TestInvoke_SyncPullStoresToken(t *testing.T) {
	auth := make(chan string, 1)
	remote := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		auth <- r.Header.Get("Authorization")
		_, _ = w.Write([]byte(`{"transacoes":[{"id":"t1","date":"2024-02-01","value":10,"type":"entrada"}]}`))
	}))
	defer remote.Close()

	s, database := startServer(t, remote.URL)
	conn := dial(t, s)

	code, env := invoke(t, s, "sync_pull", `{"token":"abc"}`)
	require.Equal(t, http.StatusOK, code, env.Error)
	assert.Equal(t, "Bearer abc", <-auth)

	var data SyncData
	require.NoError(t, json.Unmarshal(env.Data, &data))
	assert.Equal(t, 1, data.Transactions)
	assert.NotEmpty(t, data.Cursor)

	msg := readMessage(t, conn)
	assert.Equal(t, MessageTypeSyncComplete, msg.Type)

	doc, err := database.GetTransaction(context.Background(), "t1")
	require.NoError(t, err)
	assert.Equal(t, schema.String("2024-02-01"), doc["date"])
}

func TestInvoke_SyncFailureBroadcast(t *testing.T) {
	remote := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer remote.Close()

	s, _ := startServer(t, remote.URL)
	conn := dial(t, s)

	code, env := invoke(t, s, "sync_push", "")
	assert.Equal(t, http.StatusInternalServerError, code)
	assert.Equal(t, "sync push failed: 502 Bad Gateway", env.Error)

	msg := readMessage(t, conn)
	require.Equal(t, MessageTypeSyncFailed, msg.Type)

	var data SyncData
	require.NoError(t, json.Unmarshal(msg.Data, &data))
	assert.Equal(t, "push", data.Op)
	assert.Equal(t, "sync push failed: 502 Bad Gateway", data.Error)
}

func TestWebSocket_DataChanged(t *testing.T) {
	s, _ := startServer(t, "")
	conn := dial(t, s)

	code, env := invoke(t, s, "delete_recorrencia", `{"id":"r9"}`)
	require.Equal(t, http.StatusOK, code, env.Error)

	msg := readMessage(t, conn)
	require.Equal(t, MessageTypeDataChanged, msg.Type)
	assert.False(t, msg.Timestamp.IsZero())

	var data DataChangedData
	require.NoError(t, json.Unmarshal(msg.Data, &data))
	assert.Equal(t, DataChangedData{Entity: EntityRecurring, Action: ActionDelete, ID: "r9", Count: 1}, data)
}

func TestHealth(t *testing.T) {
	s, database := startServer(t, "")

	resp, err := http.Get("http://" + s.GetAddr() + "/health")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var body map[string]interface{}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, "ok", body["status"])

	require.NoError(t, database.Close())

	resp2, err := http.Get("http://" + s.GetAddr() + "/health")
	require.NoError(t, err)
	defer resp2.Body.Close()
	assert.Equal(t, http.StatusServiceUnavailable, resp2.StatusCode)
}

func TestInvoke_ClosedStore(t *testing.T) {
	s, database := startServer(t, "")
	require.NoError(t, database.Close())

	code, env := invoke(t, s, "get_transacoes", "")
	assert.Equal(t, http.StatusInternalServerError, code)
	assert.Contains(t, env.Error, db.ErrNotOpen.Error())
}

func TestCommands(t *testing.T) {
	s := NewServer(&Config{Logger: logging.Discard()}, nil, nil)
	names := s.Commands()
	for _, want := range []string{
		"get_transacoes", "put_transacao", "put_transacoes", "delete_transacao",
		"get_recorrentes", "put_recorrencia", "put_recorrentes", "delete_recorrencia",
		"get_config", "set_config", "set_auth_token",
		"sync_pull", "sync_push", "restore_from_cloud",
	} {
		assert.Contains(t, names, want)
	}
}
