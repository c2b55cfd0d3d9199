package main

import (
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/alfredjeanlab/contokens/internal/model"
	"github.com/alfredjeanlab/contokens/internal/ui"
)

// tokenList is the JSON shape of issue, find, send and resend.
type tokenList struct {
	Type      string   `json:"token_type"`
	Recipient string   `json:"email"`
	Tokens    []string `json:"tokens"`
}

func printJSON(w io.Writer, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling JSON: %w", err)
	}
	_, err = fmt.Fprintln(w, string(data))
	return err
}

// printTokens prints a heading followed by one token per line, or the list
// as JSON with --json.
func printTokens(w io.Writer, heading string, list tokenList) error {
	if list.Tokens == nil {
		list.Tokens = []string{}
	}
	if jsonOutput {
		return printJSON(w, list)
	}
	fmt.Fprintln(w, ui.RenderAccent(heading))
	for _, t := range list.Tokens {
		fmt.Fprintln(w, t)
	}
	return nil
}

// printMessage prints a one-line summary, or v as JSON with --json.
func printMessage(w io.Writer, v any, format string, args ...any) error {
	if jsonOutput {
		return printJSON(w, v)
	}
	_, err := fmt.Fprintf(w, format+"\n", args...)
	return err
}

func printStats(w io.Writer, stats []model.Stat) error {
	if jsonOutput {
		if stats == nil {
			stats = []model.Stat{}
		}
		return printJSON(w, stats)
	}
	if len(stats) == 0 {
		fmt.Fprintln(w, ui.RenderMuted("no tokens"))
		return nil
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	for _, s := range stats {
		count := ui.RenderOK(fmt.Sprint(s.Count))
		if !s.Exported {
			count = ui.RenderWarn(fmt.Sprint(s.Count))
		}
		fmt.Fprintf(tw, "%s:\t%s\n", s.Label(), count)
	}
	return tw.Flush()
}

func plural(n int, word string) string {
	if n == 1 {
		return fmt.Sprintf("%d %s", n, word)
	}
	return fmt.Sprintf("%d %ss", n, word)
}
