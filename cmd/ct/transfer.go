package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var noMarkExported bool

var importCmd = &cobra.Command{
	Use:   "import TYPE FILE",
	Short: "Import externally sold TYPE tokens from a CSV file",
	Long: `Import TYPE tokens sold through another channel from FILE, a CSV file of
"email,token" lines. The tokens are stored as issued to that email.

Imported tokens are marked exported unless --no-mark-exported is given. An
import is all or nothing: a malformed line or a token that already exists
leaves the database unchanged.`,
	GroupID:     "transfer",
	Args:        exactArgs(2),
	Annotations: map[string]string{annotationMutating: "true"},
	RunE: func(cmd *cobra.Command, args []string) error {
		tokenType, path := args[0], args[1]
		f, err := os.Open(path)
		if err != nil {
			return fmt.Errorf("opening import file: %w", err)
		}
		defer f.Close()

		n, err := svc.Import(cmd.Context(), tokenType, f, !noMarkExported)
		if err != nil {
			return err
		}
		return printMessage(cmd.OutOrStdout(),
			map[string]any{"token_type": tokenType, "count": n, "exported": !noMarkExported},
			"Imported %s from %s", plural(n, tokenType+" token"), path)
	},
}

var exportCmd = &cobra.Command{
	Use:   "export TYPE [FILE]",
	Short: "Export unexported TYPE tokens to CSV",
	Long: `Export every unexported TYPE token to FILE and a hashed copy beside it,
then mark them exported.

FILE defaults to a timestamped name in the working directory. The hashed
copy holds the SHA-256 of each token in place of the token itself and is
written to FILE with "-hashed" before its extension.`,
	GroupID:     "transfer",
	Args:        argsBetween(1, 2),
	Annotations: map[string]string{annotationMutating: "true"},
	RunE: func(cmd *cobra.Command, args []string) error {
		tokenType := args[0]
		path := ""
		if len(args) == 2 {
			path = args[1]
		}

		res, err := svc.Export(cmd.Context(), tokenType, path)
		if res == nil {
			return err
		}
		if perr := printMessage(cmd.OutOrStdout(), res,
			"Exported %s to %s (hashed: %s)", plural(res.Count, tokenType+" token"), res.Path, res.HashedPath); perr != nil {
			return perr
		}
		return err
	},
}

func init() {
	importCmd.Flags().BoolVar(&noMarkExported, "no-mark-exported", false, "leave imported tokens unexported")
}
