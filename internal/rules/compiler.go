package rules

import (
	"fmt"

	"github.com/lakewright/product-publisher/internal/contract"
)

// Rule and unit names as they appear in contract descriptors.
const (
	ruleDuplicateCount = "duplicateCount"
	ruleNull           = "null"
	ruleFreshness      = "freshness"
	unitDay            = "day"
)

// Compile translates the contract's quality rules into a Verification.
//
// Table-level rules compile first, then column-level rules in declared
// column order. Compilation is all-or-nothing: the first unsupported
// rule or threshold aborts with a typed error and no partial
// verification is ever returned.
func Compile(p *contract.Product, parameter string) (*Verification, error) {
	v := &Verification{
		Product:   p.Name,
		Parameter: parameter,
	}

	// At most one table-level rule (the freshness check) is supported.
	for i, tr := range p.TableRules {
		if i > 0 {
			return nil, &UnsupportedTableRuleError{Rule: tr}
		}
		if tr.Rule != ruleFreshness || tr.Unit != unitDay || tr.MustBeLessThan <= 0 {
			return nil, &UnsupportedTableRuleError{Rule: tr}
		}
		check, err := FromSpec(CheckSpec{Kind: CheckFreshnessDays, Days: tr.MustBeLessThan})
		if err != nil {
			return nil, err
		}
		v.Checks = append(v.Checks, check)
	}

	for _, col := range p.ColumnRules {
		for _, cr := range col.Rules {
			var kind CheckKind
			switch {
			case cr.Rule == ruleDuplicateCount && cr.MustBeEqualTo == 0:
				kind = CheckColumnAllUnique
			case cr.Rule == ruleNull && cr.MustBeEqualTo == 0:
				kind = CheckColumnNoNulls
			default:
				return nil, &UnsupportedColumnRuleError{Column: col.Column, Rule: cr}
			}
			check, err := FromSpec(CheckSpec{Kind: kind, Column: col.Column})
			if err != nil {
				return nil, err
			}
			v.Checks = append(v.Checks, check)
		}
	}

	return v, nil
}

// FromSpec rebuilds the executable check for a serialized spec. It is
// used both by Compile and by executors that load a verification
// artifact back from the pipeline project.
func FromSpec(spec CheckSpec) (Check, error) {
	switch spec.Kind {
	case CheckColumnAllUnique:
		if spec.Column == "" {
			return Check{}, fmt.Errorf("check %s: missing column", spec.Kind)
		}
		return Check{Spec: spec, Eval: columnAllUnique(spec.Column)}, nil
	case CheckColumnNoNulls:
		if spec.Column == "" {
			return Check{}, fmt.Errorf("check %s: missing column", spec.Kind)
		}
		return Check{Spec: spec, Eval: columnNoNulls(spec.Column)}, nil
	case CheckFreshnessDays:
		if spec.Days <= 0 {
			return Check{}, fmt.Errorf("check %s: days must be positive, got %d", spec.Kind, spec.Days)
		}
		return Check{Spec: spec, Eval: freshnessWithinDays(spec.Days)}, nil
	default:
		return Check{}, fmt.Errorf("unknown check kind %q", spec.Kind)
	}
}
