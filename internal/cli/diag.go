package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

// NewDiagCommand creates the diag command.
func NewDiagCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "diag <return-id>",
		Short: "Show the diagnostics from the last recalculation",
		Long: `Show the diagnostics from the last recalculation.

Diagnostics are refreshed by every recalculation pass; this command
reads the stored findings without recomputing anything.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDiag(rootOpts, args[0], cmd)
		},
	}

	return cmd
}

func runDiag(rootOpts *RootOptions, returnID string, cmd *cobra.Command) error {
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

	ret, err := e.store.GetReturn(cmd.Context(), returnID)
	if err != nil {
		out.Error(ErrCodeReturnNotFound, fmt.Sprintf("return %s not found", returnID), nil)
		return NewExitError(ExitFailure, "diag failed")
	}

	if rootOpts.Format == "json" {
		return out.Success(map[string]any{
			"return_id":   ret.ID,
			"diagnostics": ret.Diagnostics,
		})
	}

	w := cmd.OutOrStdout()
	if len(ret.Diagnostics) == 0 {
		fmt.Fprintln(w, "No diagnostics.")
		return nil
	}
	fmt.Fprintf(w, "Diagnostics (%d):\n", len(ret.Diagnostics))
	for _, d := range ret.Diagnostics {
		fmt.Fprintf(w, "  [%s] %s: %s\n", d.Severity, d.FieldID, d.Message)
	}
	return nil
}
