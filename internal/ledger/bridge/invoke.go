package bridge

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/vertexads/ledger/internal/ledger/db"
	"github.com/vertexads/ledger/internal/ledger/schema"
	ledgersync "github.com/vertexads/ledger/internal/ledger/sync"
	"github.com/vertexads/ledger/internal/logging"
)

const maxArgsSize = 32 << 20

// command runs one invoke call. args is never nil.
type command func(ctx context.Context, args schema.Object) (interface{}, error)

// argError marks a malformed argument object.
type argError struct{ msg string }

func (e *argError) Error() string { return e.msg }

func missing(name string) error {
	return &argError{msg: fmt.Sprintf("missing argument: %s", name)}
}

// response is the envelope returned for every invoke call.
type response struct {
	OK    bool        `json:"ok"`
	Data  interface{} `json:"data,omitempty"`
	Error string      `json:"error,omitempty"`
}

// Commands returns the names accepted by /invoke.
func (s *Server) Commands() []string {
	names := make([]string, 0, len(s.commands))
	for name := range s.commands {
		names = append(names, name)
	}
	return names
}

func (s *Server) commandTable() map[string]command {
	return map[string]command{
		"get_transacoes":     s.getTransacoes,
		"put_transacao":      s.putTransacao,
		"put_transacoes":     s.putTransacoes,
		"delete_transacao":   s.deleteTransacao,
		"trash_transacao":    s.trashTransacao,
		"get_recorrentes":    s.getRecorrentes,
		"put_recorrencia":    s.putRecorrencia,
		"put_recorrentes":    s.putRecorrentes,
		"delete_recorrencia": s.deleteRecorrencia,
		"get_config":         s.getConfig,
		"set_config":         s.setConfig,
		"set_auth_token":     s.setAuthToken,
		"sync_pull":          s.syncPull,
		"sync_push":          s.syncPush,
		"restore_from_cloud": s.restoreFromCloud,
	}
}

func (s *Server) handleInvoke(w http.ResponseWriter, r *http.Request, data *logging.LogData) error {
	name := r.PathValue("command")
	data.AddData("command", name)

	cmd, ok := s.commands[name]
	if !ok {
		writeResponse(w, http.StatusNotFound, response{Error: fmt.Sprintf("unknown command: %s", name)})
		return nil
	}

	args, err := readArgs(r)
	if err != nil {
		writeResponse(w, http.StatusBadRequest, response{Error: err.Error()})
		return err
	}

	result, err := cmd(r.Context(), args)
	if err != nil {
		status := http.StatusInternalServerError
		var ae *argError
		switch {
		case errors.As(err, &ae) || errors.Is(err, schema.ErrNotObject):
			status = http.StatusBadRequest
		case errors.Is(err, db.ErrNotFound):
			status = http.StatusNotFound
		}
		writeResponse(w, status, response{Error: err.Error()})
		return err
	}

	writeResponse(w, http.StatusOK, response{OK: true, Data: result})
	return nil
}

// readArgs decodes the request body as an argument object. An empty body
// is an empty object.
func readArgs(r *http.Request) (schema.Object, error) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxArgsSize))
	if err != nil {
		return nil, fmt.Errorf("failed to read arguments: %w", err)
	}
	if len(body) == 0 {
		return schema.Object{}, nil
	}

	v, err := schema.ParseValue(body)
	if err != nil {
		return nil, &argError{msg: fmt.Sprintf("invalid arguments: %v", err)}
	}
	obj, ok := v.(schema.Object)
	if !ok {
		return nil, &argError{msg: "arguments must be a JSON object"}
	}
	return obj, nil
}

func writeResponse(w http.ResponseWriter, status int, resp response) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(resp)
}

// arg returns the first present argument among names.
func arg(args schema.Object, names ...string) (schema.Value, bool) {
	for _, n := range names {
		if v, ok := args[n]; ok && !schema.IsNull(v) {
			return v, true
		}
	}
	return nil, false
}

func idArg(args schema.Object) (string, error) {
	id, ok := args.Str("id")
	if !ok || id == "" {
		return "", missing("id")
	}
	return id, nil
}

func itemsArg(args schema.Object, names ...string) ([]schema.Value, error) {
	v, ok := arg(args, names...)
	if !ok {
		return nil, missing(names[0])
	}
	list, ok := v.(schema.List)
	if !ok {
		return nil, &argError{msg: fmt.Sprintf("argument %s must be a list", names[0])}
	}
	return list, nil
}

func docID(v schema.Value) string {
	if obj, ok := v.(schema.Object); ok {
		id, _ := obj.Str("id")
		return id
	}
	return ""
}

func (s *Server) getTransacoes(ctx context.Context, _ schema.Object) (interface{}, error) {
	return s.db.ListTransactions(ctx)
}

func (s *Server) putTransacao(ctx context.Context, args schema.Object) (interface{}, error) {
	doc, ok := arg(args, "tx", "transacao")
	if !ok {
		return nil, missing("tx")
	}
	if err := s.db.UpsertTransaction(ctx, doc); err != nil {
		return nil, err
	}
	s.events.OnDataChanged(EntityTransaction, ActionPut, docID(doc), 1)
	return nil, nil
}

func (s *Server) putTransacoes(ctx context.Context, args schema.Object) (interface{}, error) {
	items, err := itemsArg(args, "items", "transacoes")
	if err != nil {
		return nil, err
	}
	res, err := s.db.UpsertTransactions(ctx, items)
	if err != nil {
		return nil, err
	}
	s.events.OnDataChanged(EntityTransaction, ActionPut, "", res.Applied)
	return res, nil
}

func (s *Server) deleteTransacao(ctx context.Context, args schema.Object) (interface{}, error) {
	id, err := idArg(args)
	if err != nil {
		return nil, err
	}
	if err := s.db.DeleteTransaction(ctx, id); err != nil {
		return nil, err
	}
	s.events.OnDataChanged(EntityTransaction, ActionDelete, id, 1)
	return nil, nil
}

func (s *Server) trashTransacao(ctx context.Context, args schema.Object) (interface{}, error) {
	id, err := idArg(args)
	if err != nil {
		return nil, err
	}
	if err := s.db.TrashTransaction(ctx, id); err != nil {
		return nil, err
	}
	s.events.OnDataChanged(EntityTransaction, ActionTrash, id, 1)
	return nil, nil
}

func (s *Server) getRecorrentes(ctx context.Context, _ schema.Object) (interface{}, error) {
	return s.db.ListRecurring(ctx)
}

func (s *Server) putRecorrencia(ctx context.Context, args schema.Object) (interface{}, error) {
	doc, ok := arg(args, "r", "recorrencia")
	if !ok {
		return nil, missing("r")
	}
	if err := s.db.UpsertRecurring(ctx, doc); err != nil {
		return nil, err
	}
	s.events.OnDataChanged(EntityRecurring, ActionPut, docID(doc), 1)
	return nil, nil
}

func (s *Server) putRecorrentes(ctx context.Context, args schema.Object) (interface{}, error) {
	items, err := itemsArg(args, "items", "recorrentes")
	if err != nil {
		return nil, err
	}
	res, err := s.db.UpsertRecurringBatch(ctx, items)
	if err != nil {
		return nil, err
	}
	s.events.OnDataChanged(EntityRecurring, ActionPut, "", res.Applied)
	return res, nil
}

func (s *Server) deleteRecorrencia(ctx context.Context, args schema.Object) (interface{}, error) {
	id, err := idArg(args)
	if err != nil {
		return nil, err
	}
	if err := s.db.DeleteRecurring(ctx, id); err != nil {
		return nil, err
	}
	s.events.OnDataChanged(EntityRecurring, ActionDelete, id, 1)
	return nil, nil
}

func (s *Server) getConfig(ctx context.Context, _ schema.Object) (interface{}, error) {
	return s.db.GetConfig(ctx)
}

// setConfig accepts {"payload":{"key","value"}} or a flat {"key","value"}.
// A non-string value is stored as its JSON text.
func (s *Server) setConfig(ctx context.Context, args schema.Object) (interface{}, error) {
	payload := args
	if p, ok := args.Get("payload").(schema.Object); ok {
		payload = p
	}

	key, ok := payload.Str("key")
	if !ok || key == "" {
		return nil, missing("key")
	}

	var value string
	switch v := payload.Get("value").(type) {
	case schema.String:
		value = string(v)
	case schema.Null:
		return nil, missing("value")
	default:
		encoded, err := schema.EncodeValue(v)
		if err != nil {
			return nil, &argError{msg: fmt.Sprintf("invalid value: %v", err)}
		}
		value = encoded
	}

	if err := s.db.SetConfig(ctx, key, value); err != nil {
		return nil, err
	}
	s.events.OnDataChanged(EntityConfig, ActionPut, key, 1)
	return nil, nil
}

func (s *Server) setAuthToken(ctx context.Context, args schema.Object) (interface{}, error) {
	return nil, s.db.SetAuthToken(ctx, args.OptStr("token"))
}

// syncPull stores a token passed along with the call before pulling.
func (s *Server) syncPull(ctx context.Context, args schema.Object) (interface{}, error) {
	if token := args.OptStr("token"); token != nil && *token != "" {
		if err := s.db.SetAuthToken(ctx, token); err != nil {
			return nil, err
		}
	}
	return s.runSync(ctx, s.engine.Pull)
}

func (s *Server) syncPush(ctx context.Context, _ schema.Object) (interface{}, error) {
	return s.runSync(ctx, s.engine.Push)
}

func (s *Server) restoreFromCloud(ctx context.Context, _ schema.Object) (interface{}, error) {
	return s.runSync(ctx, s.engine.Restore)
}

func (s *Server) runSync(ctx context.Context, flow func(context.Context) (ledgersync.Result, error)) (interface{}, error) {
	res, err := flow(ctx)
	s.events.OnSync(res, err)
	if err != nil {
		return nil, err
	}
	return syncData(res), nil
}

func syncData(res ledgersync.Result) SyncData {
	return SyncData{
		Op:           string(res.Op),
		Transactions: res.Transactions.Applied,
		Recurring:    res.Recurring.Applied,
		ConfigKeys:   res.ConfigKeys,
		Skipped:      res.Skipped(),
		Cursor:       res.Cursor,
	}
}
