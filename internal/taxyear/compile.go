package taxyear

import (
	"fmt"
	"strconv"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"github.com/cockroachdb/apd/v3"

	"github.com/taxline/taxline/internal/depgraph"
)

// CompileError reports a problem in the year configuration.
type CompileError struct {
	Year    string
	Field   string
	Message string
}

func (e *CompileError) Error() string {
	if e.Year != "" {
		return fmt.Sprintf("year %s: %s: %s", e.Year, e.Field, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// LoadFrom compiles a CUE source into a Registry.
//
// Validation happens here, once, at load: decimal figures must parse,
// every year needs a complete constant set, and the cascade edge table
// must be acyclic (depgraph.Validate). A configuration that compiles
// is safe to use without further checks.
func LoadFrom(src string) (*Registry, error) {
	ctx := cuecontext.New()
	root := ctx.CompileString(src)
	if err := root.Err(); err != nil {
		return nil, fmt.Errorf("compile year configuration: %w", err)
	}

	yearsVal := root.LookupPath(cue.ParsePath("years"))
	if !yearsVal.Exists() {
		return nil, &CompileError{Field: "years", Message: "years struct is required"}
	}

	iter, err := yearsVal.Fields()
	if err != nil {
		return nil, fmt.Errorf("iterate years: %w", err)
	}

	reg := &Registry{years: make(map[int]Config)}
	for iter.Next() {
		label := iter.Label()
		year, err := strconv.Atoi(label)
		if err != nil {
			return nil, &CompileError{Year: label, Field: "years", Message: "year label must be an integer"}
		}

		cfg, err := compileYear(label, iter.Value())
		if err != nil {
			return nil, err
		}
		cfg.Year = year
		reg.years[year] = cfg
	}

	if len(reg.years) == 0 {
		return nil, &CompileError{Field: "years", Message: "at least one year is required"}
	}
	return reg, nil
}

// compileYear parses one year's struct.
func compileYear(label string, v cue.Value) (Config, error) {
	cfg := Config{}

	deductions, err := compileDeductions(label, v.LookupPath(cue.ParsePath("standard_deduction")))
	if err != nil {
		return Config{}, err
	}
	cfg.StandardDeduction = deductions

	for _, rate := range []struct {
		field string
		dst   **apd.Decimal
	}{
		{"se_tax_rate", &cfg.SETaxRate},
		{"marginal_rate", &cfg.MarginalRate},
		{"ctc_agi_threshold", &cfg.CTCAGIThreshold},
	} {
		d, err := compileDecimal(label, rate.field, v.LookupPath(cue.ParsePath(rate.field)))
		if err != nil {
			return Config{}, err
		}
		*rate.dst = d
	}

	ageVal := v.LookupPath(cue.ParsePath("dependent_age_limit"))
	if !ageVal.Exists() {
		return Config{}, &CompileError{Year: label, Field: "dependent_age_limit", Message: "required"}
	}
	age, err := ageVal.Int64()
	if err != nil {
		return Config{}, &CompileError{Year: label, Field: "dependent_age_limit", Message: err.Error()}
	}
	cfg.DependentAgeLimit = age

	graph, err := compileCascade(label, v.LookupPath(cue.ParsePath("cascade")))
	if err != nil {
		return Config{}, err
	}
	cfg.Cascade = graph

	return cfg, nil
}

// compileDeductions parses the per-filing-status deduction table.
func compileDeductions(label string, v cue.Value) (map[string]*apd.Decimal, error) {
	if !v.Exists() {
		return nil, &CompileError{Year: label, Field: "standard_deduction", Message: "required"}
	}

	iter, err := v.Fields()
	if err != nil {
		return nil, &CompileError{Year: label, Field: "standard_deduction", Message: err.Error()}
	}

	table := make(map[string]*apd.Decimal)
	for iter.Next() {
		status := iter.Label()
		d, err := compileDecimal(label, "standard_deduction."+status, iter.Value())
		if err != nil {
			return nil, err
		}
		table[status] = d
	}
	if len(table) == 0 {
		return nil, &CompileError{Year: label, Field: "standard_deduction", Message: "at least one filing status is required"}
	}
	return table, nil
}

// compileDecimal parses a string-typed figure into an exact decimal.
// Figures are strings in CUE so they never pass through a binary float.
func compileDecimal(label, field string, v cue.Value) (*apd.Decimal, error) {
	if !v.Exists() {
		return nil, &CompileError{Year: label, Field: field, Message: "required"}
	}
	s, err := v.String()
	if err != nil {
		return nil, &CompileError{Year: label, Field: field, Message: "must be a string-typed decimal: " + err.Error()}
	}
	d, _, err := apd.NewFromString(s)
	if err != nil {
		return nil, &CompileError{Year: label, Field: field, Message: "invalid decimal: " + err.Error()}
	}
	return d, nil
}

// compileCascade parses the edge table and rejects cycles.
func compileCascade(label string, v cue.Value) (*depgraph.Graph, error) {
	edges := make(map[string][]string)
	if v.Exists() {
		iter, err := v.Fields()
		if err != nil {
			return nil, &CompileError{Year: label, Field: "cascade", Message: err.Error()}
		}
		for iter.Next() {
			source := iter.Label()
			listIter, err := iter.Value().List()
			if err != nil {
				return nil, &CompileError{Year: label, Field: "cascade." + source, Message: "targets must be a list: " + err.Error()}
			}
			var targets []string
			for listIter.Next() {
				t, err := listIter.Value().String()
				if err != nil {
					return nil, &CompileError{Year: label, Field: "cascade." + source, Message: err.Error()}
				}
				targets = append(targets, t)
			}
			edges[source] = targets
		}
	}

	graph := depgraph.New(edges)
	if err := graph.Validate(); err != nil {
		return nil, &CompileError{Year: label, Field: "cascade", Message: err.Error()}
	}
	return graph, nil
}
