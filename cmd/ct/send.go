package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/alfredjeanlab/contokens/internal/service"
	"github.com/spf13/cobra"
)

var sendCmd = &cobra.Command{
	Use:   "send TYPE EMAIL COUNT",
	Short: "Issue COUNT tokens of TYPE to EMAIL and email them",
	Long: `Issue COUNT tokens of TYPE to EMAIL and email them using the TYPE message
template.

If the email cannot be sent the tokens stay issued and are printed; deliver
them later with resend.`,
	GroupID:     "delivery",
	Args:        exactArgs(3),
	Annotations: map[string]string{annotationMutating: "true"},
	RunE: func(cmd *cobra.Command, args []string) error {
		tokenType, recipient := args[0], args[1]
		count, err := parseCount("COUNT", args[2])
		if err != nil {
			return err
		}

		tokens, err := svc.Send(cmd.Context(), tokenType, recipient, count)
		var undelivered *service.UndeliveredError
		if errors.As(err, &undelivered) {
			printTokens(cmd.OutOrStdout(),
				fmt.Sprintf("Issued %s to %s (not sent):", plural(len(tokens), tokenType+" token"), recipient),
				tokenList{Type: tokenType, Recipient: recipient, Tokens: tokens})
			return err
		}
		if err != nil {
			return err
		}
		return printTokens(cmd.OutOrStdout(),
			fmt.Sprintf("Sent %s to %s:", plural(len(tokens), tokenType+" token"), recipient),
			tokenList{Type: tokenType, Recipient: recipient, Tokens: tokens})
	},
}

var sendcsvCmd = &cobra.Command{
	Use:   "sendcsv TYPE FILE",
	Short: "Send TYPE tokens to every recipient listed in FILE",
	Long: `Send TYPE tokens to every recipient listed in FILE, a CSV manifest of
"email,count" lines.

The whole manifest is checked before the first email goes out. Sending stops
at the first failure; recipients before it have been served.`,
	GroupID:     "delivery",
	Args:        exactArgs(2),
	Annotations: map[string]string{annotationMutating: "true"},
	RunE: func(cmd *cobra.Command, args []string) error {
		tokenType, path := args[0], args[1]
		f, err := os.Open(path)
		if err != nil {
			return fmt.Errorf("opening manifest: %w", err)
		}
		defer f.Close()

		n, err := svc.SendManifest(cmd.Context(), tokenType, f)
		if err != nil {
			if n > 0 {
				logger.Warn("manifest partially sent", "sent", n, "file", path)
			}
			return err
		}
		return printMessage(cmd.OutOrStdout(),
			map[string]any{"token_type": tokenType, "recipients": n},
			"Sent %s tokens to %s", tokenType, plural(n, "recipient"))
	},
}

var resendCmd = &cobra.Command{
	Use:     "resend TYPE EMAIL",
	Short:   "Email EMAIL the TYPE tokens already issued to them",
	GroupID: "delivery",
	Args:    exactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		tokenType, recipient := args[0], args[1]
		tokens, err := svc.Resend(cmd.Context(), tokenType, recipient)
		if err != nil {
			return err
		}
		return printTokens(cmd.OutOrStdout(),
			fmt.Sprintf("Resent %s to %s:", plural(len(tokens), tokenType+" token"), recipient),
			tokenList{Type: tokenType, Recipient: recipient, Tokens: tokens})
	},
}
