package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/taxline/taxline/internal/engine"
	"github.com/taxline/taxline/internal/fieldval"
)

// UpdateOptions holds flags for the update command.
type UpdateOptions struct {
	*RootOptions
	Actor     string
	Override  bool
	Estimated bool
	File      string
}

// batchFile is the YAML shape accepted by --file.
type batchFile struct {
	Actor   string        `yaml:"actor"`
	Updates []batchUpdate `yaml:"updates"`
}

type batchUpdate struct {
	Field     string `yaml:"field"`
	Value     string `yaml:"value"`
	Override  *bool  `yaml:"override"`
	Estimated *bool  `yaml:"estimated"`
}

// NewUpdateCommand creates the update command.
func NewUpdateCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &UpdateOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "update <return-id> [<field-key> <value>]",
		Short: "Write field values and recalculate the return",
		Long: `Write field values and recalculate the return.

Values parse as JSON literals where possible: 50000 is a number,
true a boolean, single a plain string. Field keys accept any
separator dialect (W2.wages, W2_wages, W2:wages).

A batch of updates can be supplied from a YAML file:

  taxline update <return-id> --file updates.yaml

Example:
  taxline update 0191-... W2.wages 50000 --actor preparer-1
  taxline update 0191-... 1040.agi 99999 --override`,
		Args:          cobra.RangeArgs(1, 3),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runUpdate(opts, args, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Actor, "actor", "cli", "user recorded in the audit log")
	cmd.Flags().BoolVar(&opts.Override, "override", false, "mark the field as overridden (protects it from recalculation)")
	cmd.Flags().BoolVar(&opts.Estimated, "estimated", false, "mark the value as estimated")
	cmd.Flags().StringVar(&opts.File, "file", "", "YAML file with a batch of updates")

	return cmd
}

func runUpdate(opts *UpdateOptions, args []string, cmd *cobra.Command) error {
	returnID := args[0]

	updates, err := collectUpdates(opts, args, cmd)
	if err != nil {
		return err
	}

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

	for _, req := range updates {
		req.ReturnID = returnID
		field, err := e.engine.ApplyFieldUpdate(cmd.Context(), req)
		if err != nil {
			out.Error(errorCode(err), err.Error(), nil)
			return NewExitError(ExitFailure, "update failed")
		}
		out.VerboseLog("updated %s.%s (seq %d)", field.FormID, field.FieldID, field.UpdatedSeq)
	}

	res, err := e.engine.Recalculate(cmd.Context(), returnID)
	if err != nil {
		out.Error(errorCode(err), err.Error(), nil)
		return NewExitError(ExitFailure, "recalculation failed")
	}

	return printRecalc(out, cmd, res)
}

// collectUpdates assembles the update list from positional args or
// the batch file. The two sources are mutually exclusive.
func collectUpdates(opts *UpdateOptions, args []string, cmd *cobra.Command) ([]engine.UpdateRequest, error) {
	if opts.File != "" {
		if len(args) > 1 {
			return nil, NewExitError(ExitCommandError, "--file cannot be combined with a positional field/value pair")
		}
		return loadBatch(opts)
	}

	if len(args) != 3 {
		return nil, NewExitError(ExitCommandError, "expected <return-id> <field-key> <value> (or --file)")
	}

	meta := engine.UpdateMeta{}
	if cmd.Flags().Changed("override") {
		meta.Override = &opts.Override
	}
	if cmd.Flags().Changed("estimated") {
		meta.Estimated = &opts.Estimated
	}

	return []engine.UpdateRequest{{
		FieldKey: args[1],
		Value:    fieldval.Parse(args[2]),
		Actor:    opts.Actor,
		Meta:     meta,
	}}, nil
}

// loadBatch reads the YAML batch file into update requests.
func loadBatch(opts *UpdateOptions) ([]engine.UpdateRequest, error) {
	data, err := os.ReadFile(opts.File)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, fmt.Sprintf("read batch file %s", opts.File), err)
	}

	var batch batchFile
	if err := yaml.Unmarshal(data, &batch); err != nil {
		return nil, WrapExitError(ExitCommandError, fmt.Sprintf("parse batch file %s", opts.File), err)
	}
	if len(batch.Updates) == 0 {
		return nil, NewExitError(ExitCommandError, "batch file contains no updates")
	}

	actor := batch.Actor
	if actor == "" {
		actor = opts.Actor
	}

	reqs := make([]engine.UpdateRequest, 0, len(batch.Updates))
	for i, u := range batch.Updates {
		if u.Field == "" {
			return nil, NewExitError(ExitCommandError, fmt.Sprintf("batch update %d: field is required", i+1))
		}
		reqs = append(reqs, engine.UpdateRequest{
			FieldKey: u.Field,
			Value:    fieldval.Parse(u.Value),
			Actor:    actor,
			Meta: engine.UpdateMeta{
				Override:  u.Override,
				Estimated: u.Estimated,
			},
		})
	}
	return reqs, nil
}
