package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/vertexads/ledger/internal/ledger/schema"
)

// BatchResult counts the outcome of a best-effort batch.
type BatchResult struct {
	Applied int `json:"applied" yaml:"applied"`
	Skipped int `json:"skipped" yaml:"skipped"`
}

// Add accumulates another batch into r.
func (r *BatchResult) Add(o BatchResult) {
	r.Applied += o.Applied
	r.Skipped += o.Skipped
}

var (
	selectTransactions = `SELECT ` + schema.TransactionColumns.Names() + ` FROM transacoes`
	upsertTransaction  = `INSERT OR REPLACE INTO transacoes (` + schema.TransactionColumns.Names() +
		`) VALUES (` + schema.TransactionColumns.Placeholders() + `)`
)

// ListTransactions returns every transaction ordered by date descending.
// Soft-deleted rows are included.
func (db *DB) ListTransactions(ctx context.Context) ([]schema.Document, error) {
	var docs []schema.Document
	err := db.Do(ctx, func(s *Session) error {
		var err error
		docs, err = s.ListTransactions(ctx)
		return err
	})
	return docs, err
}

// GetTransaction returns one transaction document or ErrNotFound.
func (db *DB) GetTransaction(ctx context.Context, id string) (schema.Document, error) {
	var doc schema.Document
	err := db.Do(ctx, func(s *Session) error {
		var err error
		doc, err = s.GetTransaction(ctx, id)
		return err
	})
	return doc, err
}

// UpsertTransaction inserts or fully replaces a transaction.
func (db *DB) UpsertTransaction(ctx context.Context, doc schema.Value) error {
	return db.Do(ctx, func(s *Session) error {
		return s.UpsertTransaction(ctx, doc)
	})
}

// UpsertTransactions upserts each document in order. Individual failures
// are logged and skipped.
func (db *DB) UpsertTransactions(ctx context.Context, docs []schema.Value) (BatchResult, error) {
	var res BatchResult
	err := db.Do(ctx, func(s *Session) error {
		res = s.UpsertTransactions(ctx, docs)
		return nil
	})
	return res, err
}

// skipFields identifies a skipped batch entry by position and, when the
// entry is an object with a string id, by id.
func skipFields(i int, doc schema.Value) logrus.Fields {
	fields := logrus.Fields{"index": i}
	if obj, ok := doc.(schema.Object); ok {
		if id, ok := obj.Str("id"); ok {
			fields["id"] = id
		}
	}
	return fields
}

// DeleteTransaction physically removes a transaction. Deleting a missing
// id is not an error.
func (db *DB) DeleteTransaction(ctx context.Context, id string) error {
	return db.Do(ctx, func(s *Session) error {
		return s.DeleteTransaction(ctx, id)
	})
}

// TrashTransaction sets the soft-delete flag and restamps the row.
func (db *DB) TrashTransaction(ctx context.Context, id string) error {
	return db.Do(ctx, func(s *Session) error {
		return s.TrashTransaction(ctx, id)
	})
}

// ListTransactions returns every transaction ordered by date descending.
func (s *Session) ListTransactions(ctx context.Context) ([]schema.Document, error) {
	docs, err := s.queryDocuments(ctx, schema.TransactionColumns, selectTransactions+` ORDER BY data DESC`)
	if err != nil {
		return nil, fmt.Errorf("failed to list transactions: %w", err)
	}
	return docs, nil
}

// GetTransaction returns one transaction document or ErrNotFound.
func (s *Session) GetTransaction(ctx context.Context, id string) (schema.Document, error) {
	docs, err := s.queryDocuments(ctx, schema.TransactionColumns, selectTransactions+` WHERE id = ?`, id)
	if err != nil {
		return nil, fmt.Errorf("failed to get transaction %s: %w", id, err)
	}
	if len(docs) == 0 {
		return nil, fmt.Errorf("transaction %s: %w", id, ErrNotFound)
	}
	return docs[0], nil
}

// UpsertTransaction maps doc to a row, stamps updated_at and replaces any
// existing row with the same id.
func (s *Session) UpsertTransaction(ctx context.Context, doc schema.Value) error {
	tx, err := schema.TransactionFromDocument(doc)
	if err != nil {
		return err
	}
	return s.putTransaction(ctx, tx)
}

func (s *Session) putTransaction(ctx context.Context, tx *schema.Transaction) error {
	tx.Stamp(s.now())
	if _, err := s.conn.ExecContext(ctx, upsertTransaction, tx.Args()...); err != nil {
		return fmt.Errorf("failed to upsert transaction %s: %w", tx.ID, err)
	}
	return nil
}

// UpsertTransactions upserts each document in order, skipping failures.
func (s *Session) UpsertTransactions(ctx context.Context, docs []schema.Value) BatchResult {
	var res BatchResult
	for i, doc := range docs {
		if err := s.UpsertTransaction(ctx, doc); err != nil {
			s.logger.WithError(err).WithFields(skipFields(i, doc)).Warn("skipping transaction")
			res.Skipped++
			continue
		}
		res.Applied++
	}
	return res
}

// DeleteTransaction physically removes a transaction.
func (s *Session) DeleteTransaction(ctx context.Context, id string) error {
	if _, err := s.conn.ExecContext(ctx, `DELETE FROM transacoes WHERE id = ?`, id); err != nil {
		return fmt.Errorf("failed to delete transaction %s: %w", id, err)
	}
	return nil
}

// TrashTransaction marks a transaction deleted without removing the row.
func (s *Session) TrashTransaction(ctx context.Context, id string) error {
	doc, err := s.GetTransaction(ctx, id)
	if err != nil {
		return err
	}
	tx, err := schema.TransactionFromDocument(doc)
	if err != nil {
		return err
	}
	tx.Deleted = true
	return s.putTransaction(ctx, tx)
}

// ClearTransactions deletes every transaction row.
func (s *Session) ClearTransactions(ctx context.Context) error {
	if _, err := s.conn.ExecContext(ctx, `DELETE FROM transacoes`); err != nil {
		return fmt.Errorf("failed to clear transactions: %w", err)
	}
	return nil
}

// queryDocuments runs query and maps each row through cols.
func (s *Session) queryDocuments(ctx context.Context, cols schema.Columns, query string, args ...interface{}) ([]schema.Document, error) {
	rows, err := s.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	docs := []schema.Document{}
	vals := make([]interface{}, len(cols))
	ptrs := make([]interface{}, len(cols))
	for i := range vals {
		ptrs[i] = &vals[i]
	}

	for rows.Next() {
		if err := rows.Scan(ptrs...); err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		docs = append(docs, cols.Document(vals))
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}

	return docs, nil
}

// count returns SELECT COUNT(*) for query.
func (s *Session) count(ctx context.Context, query string) (int, error) {
	var n int
	if err := s.conn.QueryRowContext(ctx, query).Scan(&n); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, nil
		}
		return 0, err
	}
	return n, nil
}
