// Package backup exports and imports the whole ledger as JSONL.
//
// The first line is a header; every following line is one record:
//
//	{"kind":"header","version":1,"exportedAt":"1700000000"}
//	{"kind":"transacao","doc":{...}}
//	{"kind":"recorrencia","doc":{...}}
//	{"kind":"config","key":"categorias","value":["Casa"]}
//
// Documents use the same field names as the sync wire format, so a backup
// line can be pasted into a sync body and vice versa.
package backup

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/vertexads/ledger/internal/ledger/db"
	"github.com/vertexads/ledger/internal/ledger/schema"
)

// Version is the backup format version written to the header.
const Version = 1

// Record kinds.
const (
	KindHeader      = "header"
	KindTransaction = "transacao"
	KindRecurring   = "recorrencia"
	KindConfig      = "config"
)

// maxLineSize bounds a single JSONL line.
const maxLineSize = 8 << 20

// Result contains statistics about an export or import.
type Result struct {
	Transactions  int    `json:"transactions" yaml:"transactions"`
	Recurring     int    `json:"recurring" yaml:"recurring"`
	ConfigKeys    int    `json:"configKeys" yaml:"config_keys"`
	Skipped       int    `json:"skipped" yaml:"skipped"`
	BackupCreated string `json:"backupCreated,omitempty" yaml:"backup_created,omitempty"`
}

// ExportOptions configures Export.
type ExportOptions struct {
	// Backup renames an existing file at the target path before writing.
	Backup bool
}

// ImportOptions configures Import.
type ImportOptions struct {
	// Replace clears transactions and recurring templates before applying.
	Replace bool
	// DryRun parses and counts without writing.
	DryRun bool
}

// Write streams the ledger to w. The read happens under a single guard
// acquisition, so the output is a consistent snapshot.
func Write(ctx context.Context, database *db.DB, w io.Writer, now time.Time) (*Result, error) {
	var txs, recs []schema.Document
	var cfg schema.Document
	err := database.Do(ctx, func(s *db.Session) error {
		var err error
		if txs, err = s.ListTransactions(ctx); err != nil {
			return err
		}
		if recs, err = s.ListRecurring(ctx); err != nil {
			return err
		}
		cfg, err = s.GetConfig(ctx)
		return err
	})
	if err != nil {
		return nil, err
	}

	bw := bufio.NewWriter(w)
	result := &Result{}

	header := schema.Object{
		"kind":       schema.String(KindHeader),
		"version":    schema.Int(Version),
		"exportedAt": schema.String(schema.EpochSeconds(now)),
	}
	if err := writeLine(bw, header); err != nil {
		return nil, err
	}

	for _, doc := range txs {
		if err := writeLine(bw, schema.Object{"kind": schema.String(KindTransaction), "doc": doc}); err != nil {
			return nil, err
		}
		result.Transactions++
	}
	for _, doc := range recs {
		if err := writeLine(bw, schema.Object{"kind": schema.String(KindRecurring), "doc": doc}); err != nil {
			return nil, err
		}
		result.Recurring++
	}
	for _, key := range schema.ConfigLists {
		line := schema.Object{
			"kind":  schema.String(KindConfig),
			"key":   schema.String(key),
			"value": cfg.Get(key),
		}
		if err := writeLine(bw, line); err != nil {
			return nil, err
		}
		result.ConfigKeys++
	}

	if err := bw.Flush(); err != nil {
		return nil, fmt.Errorf("failed to flush backup: %w", err)
	}
	return result, nil
}

func writeLine(w *bufio.Writer, obj schema.Object) error {
	data, err := schema.MarshalValue(obj)
	if err != nil {
		return fmt.Errorf("failed to marshal backup record: %w", err)
	}
	if _, err := w.Write(data); err != nil {
		return fmt.Errorf("failed to write backup record: %w", err)
	}
	return w.WriteByte('\n')
}

// Export writes the ledger to path atomically via a temp file.
func Export(ctx context.Context, database *db.DB, path string, opts ExportOptions) (*Result, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create backup directory: %w", err)
	}

	tmpPath := path + ".tmp"
	// #nosec G304 - controlled path from CLI
	f, err := os.OpenFile(tmpPath, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0600)
	if err != nil {
		return nil, fmt.Errorf("failed to create temp file: %w", err)
	}

	now := time.Now()
	result, err := Write(ctx, database, f, now)
	if cerr := f.Close(); err == nil && cerr != nil {
		err = fmt.Errorf("failed to close temp file: %w", cerr)
	}
	if err != nil {
		_ = os.Remove(tmpPath)
		return nil, err
	}

	if opts.Backup {
		if _, err := os.Stat(path); err == nil {
			backupPath := path + ".backup." + now.Format("20060102-150405")
			if err := os.Rename(path, backupPath); err != nil {
				_ = os.Remove(tmpPath)
				return nil, fmt.Errorf("failed to create backup: %w", err)
			}
			result.BackupCreated = backupPath
		}
	}

	if err := os.Rename(tmpPath, path); err != nil {
		_ = os.Remove(tmpPath)
		return nil, fmt.Errorf("failed to rename temp file: %w", err)
	}
	return result, nil
}

// snapshot is the parsed content of a backup.
type snapshot struct {
	transactions []schema.Value
	recurring    []schema.Value
	config       map[string]schema.Value
}

// read parses a backup stream. A line that is not valid JSON, not an
// object, or of an unknown kind fails the whole read with its line number.
func read(r io.Reader) (*snapshot, error) {
	snap := &snapshot{config: make(map[string]schema.Value)}

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), maxLineSize)

	lineNum := 0
	for scanner.Scan() {
		lineNum++
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}

		v, err := schema.ParseValue(line)
		if err != nil {
			return nil, fmt.Errorf("invalid JSON at line %d: %w", lineNum, err)
		}
		obj, ok := v.(schema.Object)
		if !ok {
			return nil, fmt.Errorf("line %d: %w", lineNum, schema.ErrNotObject)
		}

		kind, _ := obj.Str("kind")
		switch kind {
		case KindHeader:
			if version, ok := obj.Integer("version"); ok && version > Version {
				return nil, fmt.Errorf("line %d: unsupported backup version %d", lineNum, version)
			}
		case KindTransaction:
			snap.transactions = append(snap.transactions, obj.Get("doc"))
		case KindRecurring:
			snap.recurring = append(snap.recurring, obj.Get("doc"))
		case KindConfig:
			key, ok := obj.Str("key")
			if !ok || key == "" {
				return nil, fmt.Errorf("line %d: config record without key", lineNum)
			}
			snap.config[key] = obj.Get("value")
		default:
			return nil, fmt.Errorf("line %d: unknown record kind %q", lineNum, kind)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read backup: %w", err)
	}
	return snap, nil
}

// Load applies a backup stream to database. Parsing completes before any
// write, so a malformed stream changes nothing. Individual documents that
// fail to map are skipped and counted. Only the list config keys are
// restored; the sync cursor and auth token are left alone.
func Load(ctx context.Context, database *db.DB, r io.Reader, opts ImportOptions) (*Result, error) {
	snap, err := read(r)
	if err != nil {
		return nil, err
	}

	result := &Result{}
	if opts.DryRun {
		result.Transactions = len(snap.transactions)
		result.Recurring = len(snap.recurring)
		result.ConfigKeys = len(snap.config)
		return result, nil
	}

	err = database.Do(ctx, func(s *db.Session) error {
		if opts.Replace {
			if err := s.ClearTransactions(ctx); err != nil {
				return err
			}
			if err := s.ClearRecurring(ctx); err != nil {
				return err
			}
		}

		txs := s.UpsertTransactions(ctx, snap.transactions)
		recs := s.UpsertRecurringBatch(ctx, snap.recurring)
		result.Transactions = txs.Applied
		result.Recurring = recs.Applied
		result.Skipped = txs.Skipped + recs.Skipped

		for _, key := range schema.ConfigLists {
			v, ok := snap.config[key]
			if !ok || schema.IsNull(v) {
				continue
			}
			encoded, err := schema.EncodeValue(v)
			if err != nil {
				result.Skipped++
				continue
			}
			if err := s.SetConfig(ctx, key, encoded); err != nil {
				return err
			}
			result.ConfigKeys++
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// Import applies the backup file at path.
func Import(ctx context.Context, database *db.DB, path string, opts ImportOptions) (*Result, error) {
	// #nosec G304 - controlled path from CLI
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open backup file: %w", err)
	}
	defer f.Close()

	return Load(ctx, database, f, opts)
}
