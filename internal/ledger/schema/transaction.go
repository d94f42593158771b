package schema

import (
	"errors"
	"strconv"
	"time"
)

// Transaction types. The column is free text; these are the values the
// application writes.
const (
	TypeInflow  = "entrada"
	TypeOutflow = "saida"
)

// ErrNotObject is returned when a document is not a structured object.
var ErrNotObject = errors.New("expected object")

// Transaction is a single ledger entry.
type Transaction struct {
	ID              string
	Date            string
	Description     *string
	Client          *string
	Value           float64 // signed amount
	Type            string  // TypeInflow or TypeOutflow
	Contexto        *string
	Contraparte     *string
	Category        *string
	Account         *string
	MetodoPagamento *string
	Status          *string
	Deleted         bool // soft-delete flag
	RecorrenciaID   *string
	UpdatedAt       *string // epoch seconds
}

// TransactionFromDocument decodes a caller or remote document.
//
// Missing or mistyped fields take their defaults. The only error is
// ErrNotObject.
func TransactionFromDocument(v Value) (*Transaction, error) {
	doc, ok := v.(Object)
	if !ok {
		return nil, ErrNotObject
	}

	t := &Transaction{
		Type: TypeOutflow,
	}
	t.ID, _ = doc.Str("id")
	t.Date, _ = doc.Str("date")
	t.Description = doc.OptStr("description")
	t.Client = doc.OptStr("client")
	t.Value, _ = doc.Number("value")
	if typ, ok := doc.Str("type"); ok {
		t.Type = typ
	}
	t.Contexto = doc.OptStr("contexto")
	t.Contraparte = doc.OptStr("contraparte")
	t.Category = doc.OptStr("category")
	t.Account = doc.OptStr("account")
	t.MetodoPagamento = doc.OptStr(doc.first("metodoPagamento", "metodo_pagamento"))
	t.Status = doc.OptStr("status")
	t.Deleted, _ = doc.Flag("deleted")
	t.RecorrenciaID = doc.OptStr(doc.first("recorrenciaId", "recorrencia_id"))
	t.UpdatedAt = doc.OptStr(doc.first("updatedAt", "updated_at"))

	return t, nil
}

// Stamp sets UpdatedAt to now in whole epoch seconds.
func (t *Transaction) Stamp(now time.Time) {
	ts := EpochSeconds(now)
	t.UpdatedAt = &ts
}

// IsInflow reports whether the transaction adds to the balance.
func (t *Transaction) IsInflow() bool {
	return t.Type == TypeInflow
}

// Args returns the insert arguments in TransactionColumns order.
func (t *Transaction) Args() []interface{} {
	deleted := 0
	if t.Deleted {
		deleted = 1
	}
	return []interface{}{
		t.ID,
		t.Date,
		nullable(t.Description),
		nullable(t.Client),
		t.Value,
		t.Type,
		nullable(t.Contexto),
		nullable(t.Contraparte),
		nullable(t.Category),
		nullable(t.Account),
		nullable(t.MetodoPagamento),
		nullable(t.Status),
		deleted,
		nullable(t.RecorrenciaID),
		nullable(t.UpdatedAt),
	}
}

// Document returns the canonical document form.
func (t *Transaction) Document() Document {
	return Document{
		"id":              String(t.ID),
		"date":            String(t.Date),
		"description":     optString(t.Description),
		"client":          optString(t.Client),
		"value":           Float(t.Value),
		"type":            String(t.Type),
		"contexto":        optString(t.Contexto),
		"contraparte":     optString(t.Contraparte),
		"category":        optString(t.Category),
		"account":         optString(t.Account),
		"metodoPagamento": optString(t.MetodoPagamento),
		"status":          optString(t.Status),
		"deleted":         Bool(t.Deleted),
		"recorrenciaId":   optString(t.RecorrenciaID),
		"updatedAt":       optString(t.UpdatedAt),
	}
}

// EpochSeconds formats t as whole seconds since the Unix epoch.
func EpochSeconds(t time.Time) string {
	return strconv.FormatInt(t.Unix(), 10)
}
