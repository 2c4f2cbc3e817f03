// Package taxyear provides year-versioned tax constants and the
// cascade edge table, compiled from CUE configuration.
//
// Nothing in the calculation engine carries an inline tax figure: the
// standard deduction table, SE tax rate, marginal rate, and credit
// thresholds are all injected through a Config for one year. The
// embedded configuration ships the supported years; LoadFrom accepts
// alternative CUE sources for testing and future years.
package taxyear

import (
	_ "embed"
	"errors"
	"fmt"
	"sort"

	"github.com/cockroachdb/apd/v3"

	"github.com/taxline/taxline/internal/depgraph"
)

//go:embed years.cue
var yearsCUE string

// ErrUnknownYear is returned when no configuration exists for a year.
var ErrUnknownYear = errors.New("unknown tax year")

// ErrUnknownFilingStatus is returned when a deduction lookup misses.
var ErrUnknownFilingStatus = errors.New("unknown filing status")

// Config holds one tax year's constants. All decimals are exact.
type Config struct {
	Year              int
	StandardDeduction map[string]*apd.Decimal // by filing status
	SETaxRate         *apd.Decimal
	MarginalRate      *apd.Decimal
	CTCAGIThreshold   *apd.Decimal
	DependentAgeLimit int64
	Cascade           *depgraph.Graph
}

// DeductionFor looks up the standard deduction for a filing status.
// A lookup miss is ErrUnknownFilingStatus, a distinct catchable
// condition - never silently substituted.
func (c Config) DeductionFor(status string) (*apd.Decimal, error) {
	d, ok := c.StandardDeduction[status]
	if !ok {
		return nil, fmt.Errorf("%w: %q (year %d)", ErrUnknownFilingStatus, status, c.Year)
	}
	return d, nil
}

// FilingStatuses returns the configured statuses in sorted order.
func (c Config) FilingStatuses() []string {
	out := make([]string, 0, len(c.StandardDeduction))
	for s := range c.StandardDeduction {
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}

// Registry holds the compiled configuration for every supported year.
type Registry struct {
	years map[int]Config
}

// Load compiles the embedded year configuration.
func Load() (*Registry, error) {
	return LoadFrom(yearsCUE)
}

// ForYear returns the configuration for one year.
func (r *Registry) ForYear(year int) (Config, error) {
	cfg, ok := r.years[year]
	if !ok {
		return Config{}, fmt.Errorf("%w: %d", ErrUnknownYear, year)
	}
	return cfg, nil
}

// Years returns the configured years in ascending order.
func (r *Registry) Years() []int {
	out := make([]int, 0, len(r.years))
	for y := range r.years {
		out = append(out, y)
	}
	sort.Ints(out)
	return out
}
