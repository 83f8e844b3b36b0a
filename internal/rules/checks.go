package rules

import (
	"fmt"
	"time"
)

// AsOfLayout is the wire format of the freshness run parameter.
const AsOfLayout = "02/01/2006"

// columnAllUnique asserts that every value in the column occurs once.
// Values are keyed by a canonical string form because decoded JSON may
// hold unhashable composites (arrays, objects).
func columnAllUnique(column string) Predicate {
	return func(ds Dataset, _ Params) error {
		vals, err := ds.Column(column)
		if err != nil {
			return err
		}
		seen := make(map[string]struct{}, len(vals))
		for i, v := range vals {
			key := fmt.Sprintf("%#v", v)
			if _, dup := seen[key]; dup {
				return fmt.Errorf("column %s: duplicate value %v at row %d", column, v, i)
			}
			seen[key] = struct{}{}
		}
		return nil
	}
}

// columnNoNulls asserts that the column contains no null values.
func columnNoNulls(column string) Predicate {
	return func(ds Dataset, _ Params) error {
		vals, err := ds.Column(column)
		if err != nil {
			return err
		}
		nulls := 0
		for _, v := range vals {
			if v == nil {
				nulls++
			}
		}
		if nulls > 0 {
			return fmt.Errorf("column %s: %d null values (expected 0)", column, nulls)
		}
		return nil
	}
}

// freshnessWithinDays asserts that the as-of run parameter, once
// parsed, falls within the last `days` days: strictly newer than
// now-days, no newer than now. A value exactly `days` old fails.
func freshnessWithinDays(days int) Predicate {
	return func(_ Dataset, p Params) error {
		now := p.Now
		if now.IsZero() {
			now = time.Now().UTC()
		}

		parsed, err := time.ParseInLocation(AsOfLayout, p.AsOf, time.UTC)
		if err != nil {
			return fmt.Errorf("parse as-of date %q: %w", p.AsOf, err)
		}

		lower := now.AddDate(0, 0, -days)
		if !parsed.After(lower) {
			return fmt.Errorf("as-of date %s is older than %d days (cutoff %s)",
				parsed.Format(AsOfLayout), days, lower.Format(time.RFC3339))
		}
		if parsed.After(now) {
			return fmt.Errorf("as-of date %s is in the future", parsed.Format(AsOfLayout))
		}
		return nil
	}
}
