package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var initCmd = &cobra.Command{
	Use:         "init",
	Short:       "Create the token database",
	GroupID:     "system",
	Args:        exactArgs(0),
	Annotations: map[string]string{annotationMutating: "true"},
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := svc.Init(cmd.Context()); err != nil {
			return err
		}
		return printMessage(cmd.OutOrStdout(), map[string]bool{"initialized": true},
			"Initialized token database")
	},
}

var gentokensCmd = &cobra.Command{
	Use:         "gentokens TYPE COUNT",
	Short:       "Generate COUNT unissued tokens of TYPE",
	GroupID:     "tokens",
	Args:        exactArgs(2),
	Annotations: map[string]string{annotationMutating: "true"},
	RunE: func(cmd *cobra.Command, args []string) error {
		tokenType := args[0]
		count, err := parseCount("COUNT", args[1])
		if err != nil {
			return err
		}

		n, err := svc.Generate(cmd.Context(), tokenType, count)
		if err != nil {
			return err
		}
		return printMessage(cmd.OutOrStdout(),
			map[string]any{"token_type": tokenType, "count": n},
			"Generated %s", plural(n, tokenType+" token"))
	},
}

var issueCmd = &cobra.Command{
	Use:   "issue TYPE EMAIL [COUNT]",
	Short: "Issue COUNT (default 1) tokens of TYPE to EMAIL without sending them",
	Long: `Issue COUNT (default 1) tokens of TYPE to EMAIL and print them.

Nothing is emailed. Use send to issue and email in one step.`,
	GroupID:     "tokens",
	Args:        argsBetween(2, 3),
	Annotations: map[string]string{annotationMutating: "true"},
	RunE: func(cmd *cobra.Command, args []string) error {
		tokenType, recipient := args[0], args[1]
		count := 1
		if len(args) == 3 {
			n, err := parseCount("COUNT", args[2])
			if err != nil {
				return err
			}
			count = n
		}

		tokens, err := svc.Issue(cmd.Context(), tokenType, recipient, count)
		if err != nil {
			return err
		}
		return printTokens(cmd.OutOrStdout(),
			fmt.Sprintf("Issued %s to %s:", plural(len(tokens), tokenType+" token"), recipient),
			tokenList{Type: tokenType, Recipient: recipient, Tokens: tokens})
	},
}

var findCmd = &cobra.Command{
	Use:     "find TYPE EMAIL",
	Short:   "List the TYPE tokens issued to EMAIL",
	GroupID: "tokens",
	Args:    exactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		tokenType, recipient := args[0], args[1]
		tokens, err := svc.Find(cmd.Context(), tokenType, recipient)
		if err != nil {
			return err
		}
		return printTokens(cmd.OutOrStdout(),
			fmt.Sprintf("Found %s for %s:", plural(len(tokens), tokenType+" token"), recipient),
			tokenList{Type: tokenType, Recipient: recipient, Tokens: tokens})
	},
}

var statsCmd = &cobra.Command{
	Use:     "stats",
	Short:   "Count tokens by type and state",
	GroupID: "tokens",
	Args:    exactArgs(0),
	RunE: func(cmd *cobra.Command, args []string) error {
		stats, err := svc.Stats(cmd.Context())
		if err != nil {
			return err
		}
		return printStats(cmd.OutOrStdout(), stats)
	},
}
