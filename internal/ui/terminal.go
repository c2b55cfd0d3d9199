package ui

import (
	"os"
	"strings"

	"golang.org/x/term"
)

// ShouldUseColor reports whether ANSI colors should be written to stdout.
// NO_COLOR (any value) turns them off, CLICOLOR_FORCE=1 turns them on even
// without a terminal, and CLICOLOR=0 turns them off. Otherwise color follows
// whether stdout is a terminal.
func ShouldUseColor() bool {
	return colorFromEnv(os.Getenv, func() bool {
		return term.IsTerminal(int(os.Stdout.Fd()))
	})
}

func colorFromEnv(getenv func(string) string, isTTY func() bool) bool {
	switch {
	case getenv("NO_COLOR") != "":
		return false
	case strings.TrimSpace(getenv("CLICOLOR_FORCE")) == "1":
		return true
	case strings.TrimSpace(getenv("CLICOLOR")) == "0":
		return false
	}
	return isTTY()
}
