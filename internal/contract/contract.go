// Package contract loads and parses data product contract descriptors.
package contract

import (
	"fmt"
)

// Product is a parsed data product contract. It identifies the output
// table, its serving location in the versioned catalog, the pipeline
// project implementing the transform, and the declared quality rules.
// Immutable once loaded; one Product per publish attempt.
type Product struct {
	// Name is the product (and output table) name, from
	// schema.databaseName in the descriptor.
	Name string

	// Namespace and Branch locate the output port in the catalog.
	Namespace string
	Branch    string

	// ProjectDir is the path of the pipeline project that implements
	// the transform, relative to the checkout root.
	ProjectDir string

	// TableRules are table-level quality rules, in declaration order.
	TableRules []TableRule

	// ColumnRules are column-level quality rules grouped by column,
	// in the order columns are declared in the descriptor.
	ColumnRules []ColumnRules
}

// TableRule is a quality rule applying to the whole output table.
type TableRule struct {
	Rule           string `json:"rule"`
	Unit           string `json:"unit,omitempty"`
	MustBeLessThan int    `json:"mustBeLessThan,omitempty"`
}

// ColumnRule is a quality rule applying to a single column.
type ColumnRule struct {
	Rule          string `json:"rule"`
	MustBeEqualTo int    `json:"mustBeEqualTo"`
}

// ColumnRules groups the rules declared for one column.
type ColumnRules struct {
	Column string
	Rules  []ColumnRule
}

// ParseError reports a malformed or incomplete contract descriptor.
// The attempt never starts when parsing fails.
type ParseError struct {
	Field  string
	Reason string
}

func (e *ParseError) Error() string {
	if e.Reason != "" {
		return fmt.Sprintf("contract parse: %s: %s", e.Field, e.Reason)
	}
	return fmt.Sprintf("contract parse: missing required field %s", e.Field)
}

// NamespaceMismatchError reports a contract whose input and output
// namespaces differ. Cross-namespace products are unsupported.
type NamespaceMismatchError struct {
	Input  string
	Output string
}

func (e *NamespaceMismatchError) Error() string {
	return fmt.Sprintf("contract namespace mismatch: input %q != output %q", e.Input, e.Output)
}
