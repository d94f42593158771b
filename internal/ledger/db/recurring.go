package db

import (
	"context"
	"fmt"

	"github.com/vertexads/ledger/internal/ledger/schema"
)

var (
	selectRecurring = `SELECT ` + schema.RecurringColumns.Names() + ` FROM recorrentes`
	upsertRecurring = `INSERT OR REPLACE INTO recorrentes (` + schema.RecurringColumns.Names() +
		`) VALUES (` + schema.RecurringColumns.Placeholders() + `)`
)

// ListRecurring returns every recurring template ordered by title.
func (db *DB) ListRecurring(ctx context.Context) ([]schema.Document, error) {
	var docs []schema.Document
	err := db.Do(ctx, func(s *Session) error {
		var err error
		docs, err = s.ListRecurring(ctx)
		return err
	})
	return docs, err
}

// UpsertRecurring inserts or fully replaces a recurring template.
func (db *DB) UpsertRecurring(ctx context.Context, doc schema.Value) error {
	return db.Do(ctx, func(s *Session) error {
		return s.UpsertRecurring(ctx, doc)
	})
}

// UpsertRecurringBatch upserts each template in order. Individual
// failures are logged and skipped.
func (db *DB) UpsertRecurringBatch(ctx context.Context, docs []schema.Value) (BatchResult, error) {
	var res BatchResult
	err := db.Do(ctx, func(s *Session) error {
		res = s.UpsertRecurringBatch(ctx, docs)
		return nil
	})
	return res, err
}

// DeleteRecurring removes a recurring template. Transactions that point
// at it keep their recorrenciaId.
func (db *DB) DeleteRecurring(ctx context.Context, id string) error {
	return db.Do(ctx, func(s *Session) error {
		return s.DeleteRecurring(ctx, id)
	})
}

// ListRecurring returns every recurring template ordered by title.
func (s *Session) ListRecurring(ctx context.Context) ([]schema.Document, error) {
	docs, err := s.queryDocuments(ctx, schema.RecurringColumns, selectRecurring+` ORDER BY titulo, id`)
	if err != nil {
		return nil, fmt.Errorf("failed to list recurring templates: %w", err)
	}
	return docs, nil
}

// UpsertRecurring maps doc to a row, stamps updated_at and replaces any
// existing row with the same id.
func (s *Session) UpsertRecurring(ctx context.Context, doc schema.Value) error {
	r, err := schema.RecurringFromDocument(doc)
	if err != nil {
		return err
	}
	r.Stamp(s.now())
	if _, err := s.conn.ExecContext(ctx, upsertRecurring, r.Args()...); err != nil {
		return fmt.Errorf("failed to upsert recurring template %s: %w", r.ID, err)
	}
	return nil
}

// UpsertRecurringBatch upserts each template in order, skipping failures.
func (s *Session) UpsertRecurringBatch(ctx context.Context, docs []schema.Value) BatchResult {
	var res BatchResult
	for i, doc := range docs {
		if err := s.UpsertRecurring(ctx, doc); err != nil {
			s.logger.WithError(err).WithFields(skipFields(i, doc)).Warn("skipping recurring template")
			res.Skipped++
			continue
		}
		res.Applied++
	}
	return res
}

// DeleteRecurring removes a recurring template by id.
func (s *Session) DeleteRecurring(ctx context.Context, id string) error {
	if _, err := s.conn.ExecContext(ctx, `DELETE FROM recorrentes WHERE id = ?`, id); err != nil {
		return fmt.Errorf("failed to delete recurring template %s: %w", id, err)
	}
	return nil
}

// ClearRecurring deletes every recurring template row.
func (s *Session) ClearRecurring(ctx context.Context) error {
	if _, err := s.conn.ExecContext(ctx, `DELETE FROM recorrentes`); err != nil {
		return fmt.Errorf("failed to clear recurring templates: %w", err)
	}
	return nil
}
