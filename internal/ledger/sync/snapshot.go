package sync

import (
	"github.com/vertexads/ledger/internal/ledger/schema"
)

// Snapshot is the body exchanged with the remote /sync endpoint.
type Snapshot struct {
	Transacoes  []schema.Value `json:"transacoes"`
	Recorrentes []schema.Value `json:"recorrentes"`
	Config      schema.Object  `json:"config"`
}

// SnapshotFromValue extracts a snapshot from a decoded response body.
//
// Missing or mistyped sections are treated as absent, so a body of {}
// applies nothing.
func SnapshotFromValue(v schema.Value) Snapshot {
	var snap Snapshot

	obj, ok := v.(schema.Object)
	if !ok {
		return snap
	}

	if list, ok := obj.List("transacoes"); ok {
		snap.Transacoes = list
	}
	if list, ok := obj.List("recorrentes"); ok {
		snap.Recorrentes = list
	}
	if cfg, ok := obj.Get("config").(schema.Object); ok {
		snap.Config = cfg
	}

	return snap
}

// Len returns the number of entities in the snapshot.
func (s Snapshot) Len() int {
	return len(s.Transacoes) + len(s.Recorrentes)
}

func documentsToValues(docs []schema.Document) []schema.Value {
	vals := make([]schema.Value, len(docs))
	for i, d := range docs {
		vals[i] = d
	}
	return vals
}
