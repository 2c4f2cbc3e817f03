package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

// AuditOptions holds flags for the audit command.
type AuditOptions struct {
	*RootOptions
	Verify bool
}

// NewAuditCommand creates the audit command.
func NewAuditCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &AuditOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "audit <return-id>",
		Short: "List a return's audit entries and verify the hash chain",
		Long: `List a return's audit entries and verify the hash chain.

With --verify, only the chain verification result is printed, and a
broken chain exits non-zero.

Example:
  taxline audit 0191-... --verify`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAudit(opts, args[0], cmd)
		},
	}

	cmd.Flags().BoolVar(&opts.Verify, "verify", false, "verify the hash chain only")

	return cmd
}

func runAudit(opts *AuditOptions, returnID string, cmd *cobra.Command) error {
	e, err := openEnv(opts.RootOptions)
	if err != nil {
		return err
	}
	defer e.Close()

	out := &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   opts.Verbose,
	}

	rows, verification, err := e.engine.VerifyAudit(cmd.Context(), returnID)
	if err != nil {
		out.Error(ErrCodeDatabase, err.Error(), nil)
		return NewExitError(ExitCommandError, "audit failed")
	}

	if opts.Format == "json" {
		data := map[string]any{
			"return_id":    returnID,
			"verification": verification,
		}
		if !opts.Verify {
			data["entries"] = rows
		}
		if err := out.Success(data); err != nil {
			return err
		}
		if !verification.Valid {
			return NewExitError(ExitFailure, verification.Message)
		}
		return nil
	}

	w := cmd.OutOrStdout()
	if !opts.Verify {
		fmt.Fprintf(w, "Audit entries (%d):\n", len(rows))
		for _, r := range rows {
			target := "-"
			if r.FieldID != "" {
				target = r.FormID + "." + r.FieldID
			}
			fmt.Fprintf(w, "  seq=%-4d %-12s %-22s by %-12s %s -> %s\n",
				r.Seq, r.Action, target, r.UserID, r.PrevValue, r.NewValue)
		}
	}

	if verification.Valid {
		fmt.Fprintln(w, "Audit chain: intact")
		return nil
	}
	fmt.Fprintf(w, "Audit chain: BROKEN - %s\n", verification.Message)
	return NewExitError(ExitFailure, verification.Message)
}
