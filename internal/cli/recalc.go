package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/taxline/taxline/internal/engine"
)

// NewRecalcCommand creates the recalc command.
func NewRecalcCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "recalc <return-id>",
		Short: "Run a full recalculation pass over a return",
		Long: `Run a full recalculation pass over a return.

Recomputes every calculated field, refreshes diagnostics, and updates
the refund and liability aggregates. Overridden fields keep their
values.

Example:
  taxline recalc 0191-...`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRecalc(rootOpts, args[0], cmd)
		},
	}

	return cmd
}

func runRecalc(rootOpts *RootOptions, returnID string, cmd *cobra.Command) error {
	e, err := openEnv(rootOpts)
	if err != nil {
		return err
	}
	defer e.Close()

	out := &OutputFormatter{
		Format:    rootOpts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   rootOpts.Verbose,
	}

	res, err := e.engine.Recalculate(cmd.Context(), returnID)
	if err != nil {
		out.Error(errorCode(err), err.Error(), nil)
		return NewExitError(ExitFailure, "recalculation failed")
	}

	return printRecalc(out, cmd, res)
}

// printRecalc renders a recalculation result in the configured format.
func printRecalc(out *OutputFormatter, cmd *cobra.Command, res engine.RecalcResult) error {
	if out.Format == "json" {
		return out.Success(map[string]any{
			"refund":             res.Refund,
			"tax_liability":      res.TaxLiability,
			"diagnostics":        res.Diagnostics,
			"applied":            res.Applied,
			"skipped_overridden": res.SkippedOverridden,
		})
	}

	w := cmd.OutOrStdout()
	fmt.Fprintf(w, "Tax liability: %s\n", res.TaxLiability)
	fmt.Fprintf(w, "Refund:        %s\n", res.Refund)
	if len(res.SkippedOverridden) > 0 {
		fmt.Fprintf(w, "Overridden (kept): %v\n", res.SkippedOverridden)
	}
	if len(res.Diagnostics) == 0 {
		fmt.Fprintln(w, "No diagnostics.")
		return nil
	}
	fmt.Fprintf(w, "Diagnostics (%d):\n", len(res.Diagnostics))
	for _, d := range res.Diagnostics {
		fmt.Fprintf(w, "  [%s] %s: %s\n", d.Severity, d.FieldID, d.Message)
	}
	return nil
}
