package cli

import (
	"fmt"
	"sort"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/taxline/taxline/internal/fieldval"
)

// NewCascadeCommand creates the cascade command.
func NewCascadeCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cascade <year> <field-key>",
		Short: "Show which fields a raw-value cascade from a key would touch",
		Long: `Show which fields a raw-value cascade from a key would touch.

This is a dry run over the year's cascade edge table: no return is
read or written. The primary recalculation path does not use this
table; it exists for producers that mirror values without a full
recompute.

Example:
  taxline cascade 2024 SchC.netProfit`,
		Args:          cobra.ExactArgs(2),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCascade(rootOpts, args[0], args[1], cmd)
		},
	}

	return cmd
}

func runCascade(rootOpts *RootOptions, yearArg, fieldKey string, cmd *cobra.Command) error {
	year, err := strconv.Atoi(yearArg)
	if err != nil {
		return NewExitError(ExitCommandError, fmt.Sprintf("invalid year %q", yearArg))
	}

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

	cfg, err := e.years.ForYear(year)
	if err != nil {
		out.Error(ErrCodeUnknownYear, err.Error(), nil)
		return NewExitError(ExitFailure, "cascade failed")
	}

	touched := make(map[string]fieldval.Value)
	if err := cfg.Cascade.Cascade(touched, fieldKey, fieldval.Null{}); err != nil {
		out.Error(ErrCodeGeneric, err.Error(), nil)
		return NewExitError(ExitFailure, "cascade failed")
	}

	keys := make([]string, 0, len(touched))
	for k := range touched {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	if rootOpts.Format == "json" {
		return out.Success(map[string]any{
			"year":    year,
			"source":  fieldKey,
			"touched": keys,
		})
	}

	w := cmd.OutOrStdout()
	fmt.Fprintf(w, "Cascade from %s (year %d) touches %d field(s):\n", fieldKey, year, len(keys))
	for _, k := range keys {
		fmt.Fprintf(w, "  %s\n", k)
	}
	return nil
}
