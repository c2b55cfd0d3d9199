package main

import (
	"fmt"
	"strings"
	"unicode"

	"github.com/alfredjeanlab/contokens/internal/ui"
	"github.com/spf13/cobra"
)

// colorizedHelpFunc returns a Cobra help function that prints the command's
// description and usage, coloring the usage when the terminal supports it.
func colorizedHelpFunc() func(*cobra.Command, []string) {
	return func(cmd *cobra.Command, args []string) {
		var b strings.Builder
		if desc := cmd.Long; desc != "" {
			b.WriteString(strings.TrimSpace(desc) + "\n\n")
		} else if cmd.Short != "" {
			b.WriteString(cmd.Short + "\n\n")
		}

		usage := cmd.UsageString()
		if ui.ShouldUseColor() {
			usage = colorizeHelpOutput(usage)
		}
		b.WriteString(usage)
		fmt.Fprint(cmd.OutOrStdout(), b.String())
	}
}

type helpSection int

const (
	sectionPlain helpSection = iota
	sectionCommands
	sectionFlags
)

// colorizeHelpOutput styles Cobra's usage text one line at a time: section
// headers, command names in command groups, and flag types and defaults.
func colorizeHelpOutput(s string) string {
	lines := strings.Split(s, "\n")
	section := sectionPlain
	for i, line := range lines {
		switch {
		case isHelpHeader(line):
			section = sectionOf(line)
			lines[i] = ui.RenderAccent(strings.TrimSpace(line))
		case section == sectionCommands:
			lines[i] = colorizeCommandLine(line)
		case section == sectionFlags:
			lines[i] = colorizeFlagLine(line)
		}
	}
	return strings.Join(lines, "\n")
}

func isHelpHeader(line string) bool {
	line = strings.TrimRight(line, " ")
	return line != "" && unicode.IsUpper(rune(line[0])) && strings.HasSuffix(line, ":")
}

func sectionOf(header string) helpSection {
	switch h := strings.TrimSpace(header); {
	case strings.HasSuffix(h, "Flags:"):
		return sectionFlags
	case h == "Usage:", h == "Aliases:", h == "Examples:":
		return sectionPlain
	}
	return sectionCommands
}

// colorizeCommandLine styles "  name  description".
func colorizeCommandLine(line string) string {
	if len(line) < 3 || !strings.HasPrefix(line, "  ") || line[2] == ' ' {
		return line
	}
	name, rest, ok := strings.Cut(line[2:], "  ")
	if !ok {
		return line
	}
	return "  " + ui.RenderCommand(name) + "  " + rest
}

// colorizeFlagLine mutes the value type after a flag name and a trailing
// (default ...) annotation. pflag separates the two columns with at least
// two spaces and never puts two spaces inside the flag column.
func colorizeFlagLine(line string) string {
	flags := strings.TrimLeft(line, " ")
	if !strings.HasPrefix(flags, "-") {
		return line
	}
	indent := line[:len(line)-len(flags)]
	flags, desc, ok := strings.Cut(flags, "  ")
	if !ok {
		return line
	}

	if i := strings.LastIndexByte(flags, ' '); i >= 0 && !strings.HasPrefix(flags[i+1:], "-") {
		flags = flags[:i+1] + ui.RenderMuted(flags[i+1:])
	}
	if i := strings.LastIndex(desc, "(default "); i >= 0 && strings.HasSuffix(desc, ")") {
		desc = desc[:i] + ui.RenderMuted(desc[i:])
	}
	return indent + flags + "  " + desc
}
