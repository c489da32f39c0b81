package main

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/mattn/go-isatty"
)

type statusKind int

const (
	statusInfo statusKind = iota
	statusOK
	statusWarn
	statusError
)

var statusStyles = map[statusKind]struct {
	label string
	color text.Color
}{
	statusInfo:  {"INFO", text.FgBlue},
	statusOK:    {"OK", text.FgGreen},
	statusWarn:  {"WARN", text.FgYellow},
	statusError: {"ERROR", text.FgRed},
}

// renderStatusLine formats "  Label:   [KIND] message" with the label padded
// so that a block of lines lines up.
func renderStatusLine(label string, kind statusKind, message string, colorize bool) string {
	style := statusStyles[kind]
	line := fmt.Sprintf("  %-20s [%s]", label+":", style.label)
	if message != "" {
		line += " " + message
	}
	if colorize {
		return style.color.Sprint(line)
	}
	return line
}

func renderSectionHeader(title string, colorize bool) []string {
	title = "== " + strings.TrimSpace(title) + " =="
	lines := []string{title, strings.Repeat("-", len(title))}
	if colorize {
		for i := range lines {
			lines[i] = text.FgBlue.Sprint(lines[i])
		}
	}
	return lines
}

func readinessKind(ready bool) statusKind {
	if ready {
		return statusOK
	}
	return statusError
}

// stateKind maps a capsule state onto a status colour.
func stateKind(state string) statusKind {
	switch state {
	case "unlocked":
		return statusOK
	case "failed":
		return statusError
	case "unlocking":
		return statusWarn
	}
	return statusInfo
}

func shouldColorize(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}
