package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/vertexads/ledger/internal/ledger/schema"
)

// Counts summarizes table sizes.
type Counts struct {
	Transactions int `json:"transactions" yaml:"transactions"`
	Trashed      int `json:"trashed" yaml:"trashed"`
	Recurring    int `json:"recurring" yaml:"recurring"`
	ConfigKeys   int `json:"configKeys" yaml:"config_keys"`
}

// GetConfig returns the config document: the three list keys (empty when
// absent or unparsable) and lastSyncedAt (String or Null).
func (db *DB) GetConfig(ctx context.Context) (schema.Document, error) {
	var doc schema.Document
	err := db.Do(ctx, func(s *Session) error {
		var err error
		doc, err = s.GetConfig(ctx)
		return err
	})
	return doc, err
}

// SetConfig stores value under key, replacing any previous entry.
func (db *DB) SetConfig(ctx context.Context, key, value string) error {
	return db.Do(ctx, func(s *Session) error {
		return s.SetConfig(ctx, key, value)
	})
}

// ConfigValue returns the raw stored value for key, or nil if unset.
func (db *DB) ConfigValue(ctx context.Context, key string) (*string, error) {
	var v *string
	err := db.Do(ctx, func(s *Session) error {
		var err error
		v, err = s.ConfigValue(ctx, key)
		return err
	})
	return v, err
}

// SetAuthToken stores the remote auth token. A nil or empty token clears it.
func (db *DB) SetAuthToken(ctx context.Context, token *string) error {
	return db.Do(ctx, func(s *Session) error {
		return s.SetAuthToken(ctx, token)
	})
}

// Counts returns row counts for status reporting.
func (db *DB) Counts(ctx context.Context) (Counts, error) {
	var c Counts
	err := db.Do(ctx, func(s *Session) error {
		var err error
		c, err = s.Counts(ctx)
		return err
	})
	return c, err
}

// GetConfig returns the config document.
func (s *Session) GetConfig(ctx context.Context) (schema.Document, error) {
	doc := make(schema.Document, len(schema.ConfigLists)+1)
	for _, key := range schema.ConfigLists {
		raw, err := s.ConfigValue(ctx, key)
		if err != nil {
			return nil, err
		}
		doc[key] = schema.ParseList(raw)
	}

	cursor, err := s.ConfigValue(ctx, schema.ConfigLastSyncedAt)
	if err != nil {
		return nil, err
	}
	doc[schema.ConfigLastSyncedAt] = schema.Null{}
	if cursor != nil {
		doc[schema.ConfigLastSyncedAt] = schema.String(*cursor)
	}

	return doc, nil
}

// ConfigValue returns the raw stored value for key, or nil if unset.
func (s *Session) ConfigValue(ctx context.Context, key string) (*string, error) {
	var v sql.NullString
	err := s.conn.QueryRowContext(ctx, `SELECT value FROM config WHERE key = ?`, key).Scan(&v)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read config %s: %w", key, err)
	}
	if !v.Valid {
		return nil, nil
	}
	return &v.String, nil
}

// SetConfig stores value under key with a fresh updated_at.
func (s *Session) SetConfig(ctx context.Context, key, value string) error {
	_, err := s.conn.ExecContext(ctx,
		`INSERT OR REPLACE INTO config (key, value, updated_at) VALUES (?, ?, ?)`,
		key, value, schema.EpochSeconds(s.now()))
	if err != nil {
		return fmt.Errorf("failed to set config %s: %w", key, err)
	}
	return nil
}

// DeleteConfig removes key. Missing keys are ignored.
func (s *Session) DeleteConfig(ctx context.Context, key string) error {
	if _, err := s.conn.ExecContext(ctx, `DELETE FROM config WHERE key = ?`, key); err != nil {
		return fmt.Errorf("failed to delete config %s: %w", key, err)
	}
	return nil
}

// SetAuthToken stores or clears the remote auth token.
func (s *Session) SetAuthToken(ctx context.Context, token *string) error {
	if token == nil || *token == "" {
		return s.DeleteConfig(ctx, schema.ConfigAuthToken)
	}
	return s.SetConfig(ctx, schema.ConfigAuthToken, *token)
}

// AuthToken returns the stored auth token or "".
func (s *Session) AuthToken(ctx context.Context) (string, error) {
	v, err := s.ConfigValue(ctx, schema.ConfigAuthToken)
	if err != nil || v == nil {
		return "", err
	}
	return *v, nil
}

// StampCursor records now as the last successful sync time and returns
// the stored value.
func (s *Session) StampCursor(ctx context.Context) (string, error) {
	cursor := schema.EpochSeconds(s.now())
	if err := s.SetConfig(ctx, schema.ConfigLastSyncedAt, cursor); err != nil {
		return "", err
	}
	return cursor, nil
}

// Counts returns row counts for status reporting.
func (s *Session) Counts(ctx context.Context) (Counts, error) {
	var c Counts
	var err error
	if c.Transactions, err = s.count(ctx, `SELECT COUNT(*) FROM transacoes`); err != nil {
		return c, fmt.Errorf("failed to count transactions: %w", err)
	}
	if c.Trashed, err = s.count(ctx, `SELECT COUNT(*) FROM transacoes WHERE deleted != 0`); err != nil {
		return c, fmt.Errorf("failed to count trashed transactions: %w", err)
	}
	if c.Recurring, err = s.count(ctx, `SELECT COUNT(*) FROM recorrentes`); err != nil {
		return c, fmt.Errorf("failed to count recurring templates: %w", err)
	}
	if c.ConfigKeys, err = s.count(ctx, `SELECT COUNT(*) FROM config`); err != nil {
		return c, fmt.Errorf("failed to count config keys: %w", err)
	}
	return c, nil
}
