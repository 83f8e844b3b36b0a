package rules

import (
	"errors"
	"testing"

	"github.com/lakewright/product-publisher/internal/contract"
)

func supportedProduct() *contract.Product {
	return &contract.Product{
		Name:      "taxi_trips",
		Namespace: "tlc_trip_record",
		Branch:    "main",
		TableRules: []contract.TableRule{
			{Rule: "freshness", Unit: "day", MustBeLessThan: 3},
		},
		ColumnRules: []contract.ColumnRules{
			{Column: "trip_id", Rules: []contract.ColumnRule{
				{Rule: "duplicateCount", MustBeEqualTo: 0},
			}},
			{Column: "on_scene_datetime", Rules: []contract.ColumnRule{
				{Rule: "null", MustBeEqualTo: 0},
			}},
		},
	}
}

func TestCompile_SupportedRules(t *testing.T) {
	v, err := Compile(supportedProduct(), "as_of_date")
	if err != nil {
		t.Fatalf("Compile failed: %v", err)
	}

	if v.Product != "taxi_trips" {
		t.Errorf("product = %s, want taxi_trips", v.Product)
	}
	if v.Parameter != "as_of_date" {
		t.Errorf("parameter = %s, want as_of_date", v.Parameter)
	}

	// One check per rule, table rules first, then columns in declared order.
	want := []CheckSpec{
		{Kind: CheckFreshnessDays, Days: 3},
		{Kind: CheckColumnAllUnique, Column: "trip_id"},
		{Kind: CheckColumnNoNulls, Column: "on_scene_datetime"},
	}
	got := v.Specs()
	if len(got) != len(want) {
		t.Fatalf("got %d checks, want %d: %+v", len(got), len(want), got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("check %d = %+v, want %+v", i, got[i], want[i])
		}
	}
}

func TestCompile_UnsupportedColumnThreshold(t *testing.T) {
	tests := []struct {
		name string
		rule contract.ColumnRule
	}{
		{"duplicateCount nonzero", contract.ColumnRule{Rule: "duplicateCount", MustBeEqualTo: 1}},
		{"null nonzero", contract.ColumnRule{Rule: "null", MustBeEqualTo: 2}},
		{"unknown rule", contract.ColumnRule{Rule: "pattern", MustBeEqualTo: 0}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := supportedProduct()
			p.ColumnRules = append(p.ColumnRules, contract.ColumnRules{
				Column: "fare_amount",
				Rules:  []contract.ColumnRule{tt.rule},
			})

			v, err := Compile(p, "as_of_date")
			if v != nil {
				t.Fatal("expected no verification on unsupported rule")
			}
			var colErr *UnsupportedColumnRuleError
			if !errors.As(err, &colErr) {
				t.Fatalf("expected UnsupportedColumnRuleError, got %v", err)
			}
			if colErr.Column != "fare_amount" {
				t.Errorf("error names column %s, want fare_amount", colErr.Column)
			}
			if colErr.Rule.Rule != tt.rule.Rule {
				t.Errorf("error names rule %s, want %s", colErr.Rule.Rule, tt.rule.Rule)
			}
		})
	}
}

func TestCompile_UnsupportedTableRule(t *testing.T) {
	tests := []struct {
		name string
		rule contract.TableRule
	}{
		{"unknown rule", contract.TableRule{Rule: "rowCount", MustBeLessThan: 100}},
		{"unsupported unit", contract.TableRule{Rule: "freshness", Unit: "hour", MustBeLessThan: 6}},
		{"zero threshold", contract.TableRule{Rule: "freshness", Unit: "day", MustBeLessThan: 0}},
		{"negative threshold", contract.TableRule{Rule: "freshness", Unit: "day", MustBeLessThan: -2}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := supportedProduct()
			p.TableRules = []contract.TableRule{tt.rule}

			_, err := Compile(p, "as_of_date")
			var tblErr *UnsupportedTableRuleError
			if !errors.As(err, &tblErr) {
				t.Fatalf("expected UnsupportedTableRuleError, got %v", err)
			}
			if tblErr.Rule.Rule != tt.rule.Rule {
				t.Errorf("error names rule %s, want %s", tblErr.Rule.Rule, tt.rule.Rule)
			}
		})
	}
}

func TestCompile_SecondTableRuleRejected(t *testing.T) {
	p := supportedProduct()
	p.TableRules = append(p.TableRules, contract.TableRule{Rule: "freshness", Unit: "day", MustBeLessThan: 7})

	_, err := Compile(p, "as_of_date")
	var tblErr *UnsupportedTableRuleError
	if !errors.As(err, &tblErr) {
		t.Fatalf("expected UnsupportedTableRuleError for second table rule, got %v", err)
	}
}

func TestCompile_NoRules(t *testing.T) {
	p := &contract.Product{Name: "empty", Namespace: "ns", Branch: "main"}

	v, err := Compile(p, "as_of_date")
	if err != nil {
		t.Fatalf("Compile failed: %v", err)
	}
	if len(v.Checks) != 0 {
		t.Errorf("expected no checks, got %d", len(v.Checks))
	}
}

func TestFromSpec_Invalid(t *testing.T) {
	invalid := []CheckSpec{
		{Kind: "bogus"},
		{Kind: CheckColumnAllUnique},         // missing column
		{Kind: CheckColumnNoNulls},           // missing column
		{Kind: CheckFreshnessDays, Days: 0},  // non-positive window
		{Kind: CheckFreshnessDays, Days: -1}, // non-positive window
	}

	for _, spec := range invalid {
		if _, err := FromSpec(spec); err == nil {
			t.Errorf("FromSpec(%+v) succeeded, want error", spec)
		}
	}
}
