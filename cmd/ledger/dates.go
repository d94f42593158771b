package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/olebedev/when"
	"github.com/olebedev/when/rules/common"
	"github.com/olebedev/when/rules/en"
	"github.com/shopspring/decimal"
)

const dateLayout = "2006-01-02"

var dateParser = func() *when.Parser {
	w := when.New(nil)
	w.Add(en.All...)
	w.Add(common.All...)
	return w
}()

// parseDate accepts YYYY-MM-DD or a natural-language expression such as
// "yesterday" or "last friday", resolved against now.
func parseDate(s string, now time.Time) (string, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return now.Format(dateLayout), nil
	}
	if t, err := time.Parse(dateLayout, s); err == nil {
		return t.Format(dateLayout), nil
	}

	r, err := dateParser.Parse(s, now)
	if err != nil {
		return "", fmt.Errorf("failed to parse date %q: %w", s, err)
	}
	if r == nil {
		return "", fmt.Errorf("unrecognized date %q (use YYYY-MM-DD or e.g. \"yesterday\")", s)
	}
	return r.Time.Format(dateLayout), nil
}

// parseMonth accepts YYYY-MM and returns the prefix dates in that month
// share.
func parseMonth(s string) (string, error) {
	t, err := time.Parse("2006-01", strings.TrimSpace(s))
	if err != nil {
		return "", fmt.Errorf("invalid month %q (want YYYY-MM)", s)
	}
	return t.Format("2006-01"), nil
}

// parseAmount parses a decimal amount and returns it rounded to cents.
func parseAmount(s string) (float64, error) {
	d, err := decimal.NewFromString(strings.TrimSpace(s))
	if err != nil {
		return 0, fmt.Errorf("invalid amount %q: %w", s, err)
	}
	return d.Round(2).InexactFloat64(), nil
}
