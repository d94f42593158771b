package bridge

import (
	"encoding/json"
	"time"

	"github.com/sirupsen/logrus"

	ledgersync "github.com/vertexads/ledger/internal/ledger/sync"
)

// Entities named in data_changed events.
const (
	EntityTransaction = "transacao"
	EntityRecurring   = "recorrencia"
	EntityConfig      = "config"
)

// Actions named in data_changed events.
const (
	ActionPut    = "put"
	ActionDelete = "delete"
	ActionTrash  = "trash"
)

// DataChangedData describes a local write.
type DataChangedData struct {
	Entity string `json:"entity"`
	Action string `json:"action"`
	ID     string `json:"id,omitempty"`
	Count  int    `json:"count"`
}

// SyncData describes a finished sync flow.
type SyncData struct {
	Op           string `json:"op"`
	Transactions int    `json:"transactions"`
	Recurring    int    `json:"recurring"`
	ConfigKeys   int    `json:"configKeys"`
	Skipped      int    `json:"skipped"`
	Cursor       string `json:"cursor,omitempty"`
	Error        string `json:"error,omitempty"`
}

// Handler formats ledger events as messages and broadcasts them.
type Handler struct {
	server *Server
	logger logrus.FieldLogger
}

// NewHandler creates an event handler that broadcasts through server.
func NewHandler(server *Server, logger logrus.FieldLogger) *Handler {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Handler{server: server, logger: logger}
}

// OnDataChanged reports count rows of entity written or removed. id is set
// for single-row changes.
func (h *Handler) OnDataChanged(entity, action, id string, count int) {
	h.send(MessageTypeDataChanged, DataChangedData{
		Entity: entity,
		Action: action,
		ID:     id,
		Count:  count,
	})
}

// OnSync reports the outcome of a sync flow. Its signature matches
// daemon.Config.OnSync.
func (h *Handler) OnSync(res ledgersync.Result, err error) {
	data := syncData(res)
	if err != nil {
		data.Error = err.Error()
		h.send(MessageTypeSyncFailed, data)
		return
	}
	if res.Cursor == "" {
		// No remote configured: nothing happened.
		return
	}
	h.send(MessageTypeSyncComplete, data)
}

func (h *Handler) send(typ MessageType, data interface{}) {
	raw, err := json.Marshal(data)
	if err != nil {
		h.logger.WithError(err).WithField("type", string(typ)).Warn("Failed to marshal event")
		return
	}
	h.server.Broadcast(Message{
		Type:      typ,
		Timestamp: time.Now(),
		Data:      raw,
	})
}
