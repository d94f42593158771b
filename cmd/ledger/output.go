package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"

	"github.com/vertexads/ledger/internal/ledger/schema"
)

// Output formats accepted by --format.
const (
	formatTable = "table"
	formatJSON  = "json"
	formatYAML  = "yaml"
)

func validateFormat(format string) error {
	switch format {
	case formatTable, formatJSON, formatYAML:
		return nil
	}
	return fmt.Errorf("unknown format %q (want table, json or yaml)", format)
}

// writeStructured writes v as indented JSON or YAML.
//
// Values are round-tripped through JSON first so document nulls and
// numbers come out the same in both formats.
func writeStructured(w io.Writer, format string, v interface{}) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to encode output: %w", err)
	}

	if format == formatJSON {
		var buf bytes.Buffer
		if err := json.Indent(&buf, data, "", "  "); err != nil {
			return err
		}
		buf.WriteByte('\n')
		_, err = w.Write(buf.Bytes())
		return err
	}

	var plain interface{}
	if err := yaml.Unmarshal(data, &plain); err != nil {
		return fmt.Errorf("failed to convert output: %w", err)
	}
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(plain); err != nil {
		return fmt.Errorf("failed to encode yaml: %w", err)
	}
	return enc.Close()
}

// cell renders a document field for a table.
func cell(doc schema.Document, key string) string {
	switch v := doc.Get(key).(type) {
	case schema.String:
		return string(v)
	case schema.Int:
		return fmt.Sprintf("%d", int64(v))
	case schema.Float:
		return money(float64(v)).StringFixed(2)
	case schema.Bool:
		if v {
			return "yes"
		}
		return "no"
	default:
		return ""
	}
}

// money converts a stored amount to a decimal rounded to cents.
func money(f float64) decimal.Decimal {
	return decimal.NewFromFloat(f).Round(2)
}
