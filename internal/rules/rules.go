// Package rules compiles declarative quality rules into executable
// verification checks.
//
// Compilation is a pure translation step: each supported rule maps to
// one check, and an unsupported rule or threshold fails the whole
// compilation before anything touches the catalog. Checks carry both a
// serializable spec (written into the pipeline project as the
// verification artifact) and a predicate evaluated directly against
// materialized table data, so no source code is ever generated from
// contract input.
package rules

import (
	"fmt"
	"time"

	"github.com/lakewright/product-publisher/internal/contract"
)

// Dataset is a materialized view of the product's output table, as the
// executor exposes it to verification checks. Column values are plain
// decoded scalars (string, float64, bool) or nil for SQL NULL.
type Dataset interface {
	NumRows() int
	Column(name string) ([]any, error)
}

// Params carries the attempt-specific inputs a check may consume.
type Params struct {
	// AsOf is the date-like run parameter used by freshness checks,
	// formatted DD/MM/YYYY.
	AsOf string

	// Now is the evaluation instant. Zero means time.Now().UTC();
	// tests pin it.
	Now time.Time
}

// Predicate evaluates one check against the materialized data. A nil
// return means the check passed.
type Predicate func(ds Dataset, p Params) error

// CheckKind identifies a compiled check variant.
type CheckKind string

const (
	CheckColumnAllUnique CheckKind = "column_all_unique"
	CheckColumnNoNulls   CheckKind = "column_no_nulls"
	CheckFreshnessDays   CheckKind = "freshness_within_days"
)

// CheckSpec is the serializable form of a compiled check. It is what
// the artifact writer materializes into the pipeline project.
type CheckSpec struct {
	Kind   CheckKind `json:"kind"`
	Column string    `json:"column,omitempty"`
	Days   int       `json:"days,omitempty"`
}

// Check pairs a spec with its executable predicate.
type Check struct {
	Spec CheckSpec
	Eval Predicate
}

// Verification is the compiled, runnable verification for one product:
// an ordered list of checks bound to the product's output table and to
// the freshness parameter name. One Verification per contract.
type Verification struct {
	Product   string
	Parameter string
	Checks    []Check
}

// Specs returns the ordered serializable specs of all checks.
func (v *Verification) Specs() []CheckSpec {
	specs := make([]CheckSpec, len(v.Checks))
	for i, c := range v.Checks {
		specs[i] = c.Spec
	}
	return specs
}

// Evaluate runs every check in order against ds and returns the first
// failure, if any.
func (v *Verification) Evaluate(ds Dataset, p Params) error {
	for _, c := range v.Checks {
		if err := c.Eval(ds, p); err != nil {
			return fmt.Errorf("check %s: %w", c.Spec.Kind, err)
		}
	}
	return nil
}

// UnsupportedTableRuleError reports a table-level rule this compiler
// cannot translate.
type UnsupportedTableRuleError struct {
	Rule contract.TableRule
}

func (e *UnsupportedTableRuleError) Error() string {
	return fmt.Sprintf("unsupported table quality rule: %s (unit=%q, mustBeLessThan=%d)",
		e.Rule.Rule, e.Rule.Unit, e.Rule.MustBeLessThan)
}

// UnsupportedColumnRuleError reports a column-level rule or threshold
// this compiler cannot translate.
type UnsupportedColumnRuleError struct {
	Column string
	Rule   contract.ColumnRule
}

func (e *UnsupportedColumnRuleError) Error() string {
	return fmt.Sprintf("unsupported column quality rule on %s: %s (mustBeEqualTo=%d)",
		e.Column, e.Rule.Rule, e.Rule.MustBeEqualTo)
}
