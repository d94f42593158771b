package ui

import (
	"errors"
	"fmt"
	"os"

	"github.com/charmbracelet/huh"
)

// ErrNotInteractive is returned by Confirm when stdin is not a terminal.
var ErrNotInteractive = errors.New("confirmation required but stdin is not a terminal; pass --yes")

// Confirm asks a yes/no question on the terminal. An aborted prompt
// (Ctrl+C, Esc) counts as no.
func Confirm(title, description string) (bool, error) {
	if !IsTerminal(os.Stdin) {
		return false, ErrNotInteractive
	}

	var ok bool
	err := huh.NewConfirm().
		Title(title).
		Description(description).
		Affirmative("Yes").
		Negative("No").
		Value(&ok).
		Run()
	if errors.Is(err, huh.ErrUserAborted) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to read confirmation: %w", err)
	}
	return ok, nil
}
