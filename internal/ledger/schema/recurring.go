package schema

import "time"

// Recurring is a recurring-payment template. Transactions may point at
// one through RecorrenciaID; the reference is not enforced.
type Recurring struct {
	ID              string
	Titulo          *string
	Valor           float64
	Tipo            *string
	Categoria       *string
	Conta           *string
	MetodoPagamento *string
	DiaVencimento   *int64 // due day of month
	Ativo           bool
	UpdatedAt       *string
}

// RecurringFromDocument decodes a recurring template document. Storage
// spellings (metodo_pagamento, dia_vencimento, updated_at) are accepted
// as aliases of the document fields.
func RecurringFromDocument(v Value) (*Recurring, error) {
	doc, ok := v.(Object)
	if !ok {
		return nil, ErrNotObject
	}

	r := &Recurring{
		Ativo: true,
	}
	r.ID, _ = doc.Str("id")
	r.Titulo = doc.OptStr("titulo")
	r.Valor, _ = doc.Number("valor")
	r.Tipo = doc.OptStr("tipo")
	r.Categoria = doc.OptStr("categoria")
	r.Conta = doc.OptStr("conta")
	r.MetodoPagamento = doc.OptStr(doc.first("metodoPagamento", "metodo_pagamento"))
	if day, ok := doc.Integer(doc.first("diaVencimento", "dia_vencimento")); ok {
		r.DiaVencimento = &day
	}
	if ativo, ok := doc.Flag("ativo"); ok {
		r.Ativo = ativo
	}
	r.UpdatedAt = doc.OptStr(doc.first("updatedAt", "updated_at"))

	return r, nil
}

// Stamp sets UpdatedAt to now in whole epoch seconds.
func (r *Recurring) Stamp(now time.Time) {
	ts := EpochSeconds(now)
	r.UpdatedAt = &ts
}

// Args returns the insert arguments in RecurringColumns order.
func (r *Recurring) Args() []interface{} {
	ativo := 0
	if r.Ativo {
		ativo = 1
	}
	return []interface{}{
		r.ID,
		nullable(r.Titulo),
		r.Valor,
		nullable(r.Tipo),
		nullable(r.Categoria),
		nullable(r.Conta),
		nullable(r.MetodoPagamento),
		nullableInt(r.DiaVencimento),
		ativo,
		nullable(r.UpdatedAt),
	}
}

// Document returns the canonical document form.
func (r *Recurring) Document() Document {
	return Document{
		"id":              String(r.ID),
		"titulo":          optString(r.Titulo),
		"valor":           Float(r.Valor),
		"tipo":            optString(r.Tipo),
		"categoria":       optString(r.Categoria),
		"conta":           optString(r.Conta),
		"metodoPagamento": optString(r.MetodoPagamento),
		"diaVencimento":   optInt(r.DiaVencimento),
		"ativo":           Bool(r.Ativo),
		"updatedAt":       optString(r.UpdatedAt),
	}
}
