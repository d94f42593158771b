package schema

import "strings"

// Column maps a storage column to its document field.
type Column struct {
	Name  string // storage column
	Field string // document field
	Flag  bool   // stored as 0/1, exposed as Bool
}

// Columns is an ordered column table for one entity.
type Columns []Column

// TransactionColumns lists the transacoes table in insert order.
var TransactionColumns = Columns{
	{Name: "id", Field: "id"},
	{Name: "data", Field: "date"},
	{Name: "description", Field: "description"},
	{Name: "client", Field: "client"},
	{Name: "value", Field: "value"},
	{Name: "type", Field: "type"},
	{Name: "contexto", Field: "contexto"},
	{Name: "contraparte", Field: "contraparte"},
	{Name: "category", Field: "category"},
	{Name: "account", Field: "account"},
	{Name: "metodo_pagamento", Field: "metodoPagamento"},
	{Name: "status", Field: "status"},
	{Name: "deleted", Field: "deleted", Flag: true},
	{Name: "recorrencia_id", Field: "recorrenciaId"},
	{Name: "updated_at", Field: "updatedAt"},
}

// RecurringColumns lists the recorrentes table in insert order.
var RecurringColumns = Columns{
	{Name: "id", Field: "id"},
	{Name: "titulo", Field: "titulo"},
	{Name: "valor", Field: "valor"},
	{Name: "tipo", Field: "tipo"},
	{Name: "categoria", Field: "categoria"},
	{Name: "conta", Field: "conta"},
	{Name: "metodo_pagamento", Field: "metodoPagamento"},
	{Name: "dia_vencimento", Field: "diaVencimento"},
	{Name: "ativo", Field: "ativo", Flag: true},
	{Name: "updated_at", Field: "updatedAt"},
}

// Names returns the storage column names joined for a SELECT or INSERT list.
func (cs Columns) Names() string {
	names := make([]string, len(cs))
	for i, c := range cs {
		names[i] = c.Name
	}
	return strings.Join(names, ", ")
}

// Placeholders returns "?, ?, ..." with one marker per column.
func (cs Columns) Placeholders() string {
	return strings.TrimSuffix(strings.Repeat("?, ", len(cs)), ", ")
}

// Document builds a document from one scanned row. vals must be in
// column order; flag columns are converted from 0/1 to Bool.
func (cs Columns) Document(vals []interface{}) Document {
	doc := make(Document, len(cs))
	for i, c := range cs {
		v := FromSQL(vals[i])
		if c.Flag {
			if n, ok := v.(Int); ok {
				v = Bool(n != 0)
			}
		}
		doc[c.Field] = v
	}
	return doc
}
