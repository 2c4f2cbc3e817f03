package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/taxline/taxline/internal/fieldid"
	"github.com/taxline/taxline/internal/fieldval"
)

// NewShowCommand creates the show command.
func NewShowCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:           "show <return-id>",
		Short:         "Show a return's fields and aggregates",
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runShow(rootOpts, args[0], cmd)
		},
	}

	return cmd
}

func runShow(rootOpts *RootOptions, returnID string, cmd *cobra.Command) error {
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
		return NewExitError(ExitFailure, "show failed")
	}

	fields, err := e.store.GetFields(cmd.Context(), returnID)
	if err != nil {
		out.Error(ErrCodeDatabase, err.Error(), nil)
		return NewExitError(ExitCommandError, "show failed")
	}

	if rootOpts.Format == "json" {
		type jsonField struct {
			Key        string `json:"key"`
			Value      string `json:"value"`
			Calculated bool   `json:"calculated"`
			Overridden bool   `json:"overridden"`
			Estimated  bool   `json:"estimated"`
			Sensitive  bool   `json:"sensitive"`
		}
		jf := make([]jsonField, 0, len(fields))
		for _, f := range fields {
			rendered, err := fieldval.CanonicalString(f.Value)
			if err != nil {
				rendered = "<unrenderable>"
			}
			jf = append(jf, jsonField{
				Key:        fieldid.Join(f.FormID, f.FieldID),
				Value:      rendered,
				Calculated: f.Calculated,
				Overridden: f.Overridden,
				Estimated:  f.Estimated,
				Sensitive:  f.Sensitive,
			})
		}
		return out.Success(map[string]any{
			"return_id":     ret.ID,
			"taxpayer":      ret.TaxpayerID,
			"year":          ret.Year,
			"locked":        ret.IsLocked,
			"refund":        ret.Refund,
			"tax_liability": ret.TaxLiability,
			"fields":        jf,
		})
	}

	w := cmd.OutOrStdout()
	fmt.Fprintf(w, "Return %s (taxpayer %s, year %d)\n", ret.ID, ret.TaxpayerID, ret.Year)
	if ret.IsLocked {
		fmt.Fprintln(w, "Status: LOCKED")
	}
	fmt.Fprintf(w, "Tax liability: %s\n", ret.TaxLiability)
	fmt.Fprintf(w, "Refund:        %s\n", ret.Refund)
	fmt.Fprintln(w, "Fields:")
	for _, f := range fields {
		rendered, err := fieldval.CanonicalString(f.Value)
		if err != nil {
			rendered = "<unrenderable>"
		}
		fmt.Fprintf(w, "  %-22s %s%s\n", fieldid.Join(f.FormID, f.FieldID), rendered, flagSuffix(f.Calculated, f.Overridden, f.Estimated, f.Sensitive))
	}
	return nil
}

// flagSuffix renders field flags as a compact bracket list.
func flagSuffix(calculated, overridden, estimated, sensitive bool) string {
	var flags []string
	if calculated {
		flags = append(flags, "calc")
	}
	if overridden {
		flags = append(flags, "override")
	}
	if estimated {
		flags = append(flags, "est")
	}
	if sensitive {
		flags = append(flags, "pii")
	}
	if len(flags) == 0 {
		return ""
	}
	return "  [" + strings.Join(flags, ",") + "]"
}
