package main

import (
	"fmt"
	"strconv"

	"github.com/charmbracelet/lipgloss"
	"github.com/fwojciec/relay"
)

// theme maps semantic roles to ANSI color indices (0-15). The user's
// terminal theme determines the actual RGB values.
type theme struct {
	Success int // completed streams, valid documents
	Error   int // failed streams, violations
	Warning int // refused and cancelled streams
	Call    int // tool call names
	Muted   int // ids, counts, paths
}

func defaultTheme() theme {
	return theme{
		Success: 2,
		Error:   1,
		Warning: 3,
		Call:    5,
		Muted:   8,
	}
}

type styles struct {
	success lipgloss.Style
	failure lipgloss.Style
	warning lipgloss.Style
	call    lipgloss.Style
	muted   lipgloss.Style
	bold    lipgloss.Style
}

func newStyles(t theme) styles {
	return styles{
		success: lipgloss.NewStyle().Foreground(ansiColor(t.Success)).Bold(true),
		failure: lipgloss.NewStyle().Foreground(ansiColor(t.Error)).Bold(true),
		warning: lipgloss.NewStyle().Foreground(ansiColor(t.Warning)),
		call:    lipgloss.NewStyle().Foreground(ansiColor(t.Call)),
		muted:   lipgloss.NewStyle().Foreground(ansiColor(t.Muted)).Faint(true),
		bold:    lipgloss.NewStyle().Bold(true),
	}
}

func ansiColor(index int) lipgloss.TerminalColor {
	if index < 0 {
		return lipgloss.NoColor{}
	}
	return lipgloss.Color(strconv.Itoa(index))
}

// status renders a status word with its marker.
func (s styles) status(st relay.Status) string {
	switch st {
	case relay.StatusCompleted:
		return s.success.Render("✓ " + string(st))
	case relay.StatusFailed:
		return s.failure.Render("✗ " + string(st))
	default:
		return s.warning.Render("! " + string(st))
	}
}

func plural(n int, word string) string {
	if n == 1 {
		return "1 " + word
	}
	return fmt.Sprintf("%d %ss", n, word)
}
