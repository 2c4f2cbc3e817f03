package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

// InitOptions holds flags for the init command.
type InitOptions struct {
	*RootOptions
	TaxpayerID string
	Year       int
}

// NewInitCommand creates the init command.
func NewInitCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &InitOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Create a new return with the standard field set",
		Long: `Create a new return with the standard field set.

Example:
  taxline init --taxpayer tp-100 --year 2024`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runInit(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.TaxpayerID, "taxpayer", "", "taxpayer identifier (required)")
	cmd.Flags().IntVar(&opts.Year, "year", 0, "tax year (required)")
	cmd.MarkFlagRequired("taxpayer")
	cmd.MarkFlagRequired("year")

	return cmd
}

func runInit(opts *InitOptions, cmd *cobra.Command) error {
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

	id, err := e.engine.SeedReturn(cmd.Context(), opts.TaxpayerID, opts.Year)
	if err != nil {
		out.Error(errorCode(err), err.Error(), nil)
		return NewExitError(ExitFailure, "init failed")
	}

	if opts.Format == "json" {
		return out.Success(map[string]any{
			"return_id": id,
			"taxpayer":  opts.TaxpayerID,
			"year":      opts.Year,
		})
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Created return %s (taxpayer %s, year %d)\n", id, opts.TaxpayerID, opts.Year)
	return nil
}
