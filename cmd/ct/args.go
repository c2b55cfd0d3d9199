package main

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"
)

// exitUsage is the process status for a malformed invocation.
const exitUsage = 4

// usageError marks an error caused by how ct was invoked rather than by
// what it tried to do.
type usageError struct {
	msg string
}

func (e *usageError) Error() string { return e.msg }

func usageErrorf(format string, args ...any) error {
	return &usageError{msg: fmt.Sprintf(format, args...)}
}

// errHelpShown ends a run that printed help instead of doing anything.
var errHelpShown = &usageError{msg: "help shown"}

// isUsageError reports whether err should exit with exitUsage. Cobra's own
// "unknown command" error is not typed, so it is matched by prefix.
func isUsageError(err error) bool {
	var ue *usageError
	if errors.As(err, &ue) {
		return true
	}
	return strings.HasPrefix(err.Error(), "unknown command")
}

// argsBetween accepts lo to hi positional arguments.
func argsBetween(lo, hi int) cobra.PositionalArgs {
	return func(cmd *cobra.Command, args []string) error {
		if len(args) < lo || len(args) > hi {
			return usageErrorf("usage: %s", cmd.UseLine())
		}
		return nil
	}
}

func exactArgs(n int) cobra.PositionalArgs {
	return argsBetween(n, n)
}

// parseCount parses a positive count argument.
func parseCount(name, s string) (int, error) {
	n, err := strconv.Atoi(s)
	if err != nil || n <= 0 {
		return 0, usageErrorf("%s must be a positive integer, got %q", name, s)
	}
	return n, nil
}
