// Package schema defines the ledger's document model and its mapping to
// storage rows.
//
// # Documents
//
// Callers and the remote service exchange records as JSON-like documents.
// A document is an Object whose values are one of the Value variants:
//
//	Null, Bool, Int, Float, String, List, Object
//
// # Entities
//
// Two entity kinds are persisted:
//
//   - Transaction, stored in the transacoes table
//   - Recurring (a recurring-payment template), stored in the recorrentes table
//
// Storage column names and document field names differ for a few fields:
//
//	transacoes.data             <-> date
//	transacoes.metodo_pagamento <-> metodoPagamento
//	transacoes.recorrencia_id   <-> recorrenciaId
//	recorrentes.dia_vencimento  <-> diaVencimento
//	*.updated_at                <-> updatedAt
//
// TransactionColumns and RecurringColumns hold the full tables so the
// store's SELECT lists and the mapper cannot drift apart.
//
// # Defaults
//
// Decoding a document never fails on field content. Missing or mistyped
// fields fall back to defaults (empty id, value 0, kind "saida",
// deleted false, ativo true). The only rejected input is a document that
// is not an object.
//
// # Usage
//
//	doc, _ := schema.ParseValue([]byte(`{"id":"t1","date":"2024-01-01","value":12.5}`))
//	tx, err := schema.TransactionFromDocument(doc)
//	if err != nil {
//	    return err
//	}
//	tx.Stamp(time.Now())
//	out := tx.Document()
package schema
