package extractor

import (
	"fmt"
	"math"
	"sort"
	"strings"

	"finstat/internal"
)

const (
	MetricTotalAssets      = "total_assets"
	MetricTotalLiabilities = "total_liabilities"
	MetricTotalEquity      = "total_equity"
	MetricCustomerDeposits = "customer_deposits"
	MetricLoansAdvances    = "loans_and_advances"
	MetricTotalLoans       = "total_loans"
)

// exactTolerance is the relative gap below which the balance identity is
// treated as holding exactly (rounding in printed statements).
const exactTolerance = 0.005

// ratioBounds are plausible ranges for well-known percentage metrics.
var ratioBounds = map[string][2]float64{
	"cet1_ratio":          {0, 100},
	"return_on_equity":    {-100, 100},
	"return_on_assets":    {-20, 20},
	"net_interest_margin": {-5, 20},
}

// CrossChecker runs accounting identities over the selected records of one
// document. Tolerance is the relative gap allowed for
// assets = liabilities + equity.
type CrossChecker struct {
	Tolerance float64
}

// Check flags the offending records in place and returns the report.
func (c CrossChecker) Check(items []internal.ExtractedMetric, schema []internal.MetricDefinition) internal.SanityReport {
	tol := c.Tolerance
	if tol <= 0 {
		tol = 0.05
	}
	report := internal.SanityReport{}
	selected := map[string]*internal.ExtractedMetric{}
	for i := range items {
		if items[i].Selected {
			selected[items[i].MetricName] = &items[i]
		}
	}

	assets, liabilities, equity := selected[MetricTotalAssets], selected[MetricTotalLiabilities], selected[MetricTotalEquity]
	if assets != nil && equity != nil && assets.Value < equity.Value {
		report = append(report, internal.SanityEntry{
			Level:   internal.SanityError,
			Message: fmt.Sprintf("total_assets (%s) is smaller than total_equity (%s)", formatValue(assets.Value), formatValue(equity.Value)),
		})
		assets.AddFlag(internal.FlagCrossCheckFailed)
		equity.AddFlag(internal.FlagCrossCheckFailed)
	}

	if assets != nil && liabilities != nil && equity != nil {
		sum := liabilities.Value + equity.Value
		gap := relativeGap(assets.Value, sum)
		switch {
		case gap > tol:
			report = append(report, internal.SanityEntry{
				Level: internal.SanityError,
				Message: fmt.Sprintf("total_assets (%s) differs from total_liabilities + total_equity (%s) by %.1f%%",
					formatValue(assets.Value), formatValue(sum), gap*100),
			})
			assets.AddFlag(internal.FlagCrossCheckFailed)
			liabilities.AddFlag(internal.FlagCrossCheckFailed)
			equity.AddFlag(internal.FlagCrossCheckFailed)
		case gap > exactTolerance:
			report = append(report, internal.SanityEntry{
				Level: internal.SanityWarning,
				Message: fmt.Sprintf("total_assets (%s) is within %.0f%% of total_liabilities + total_equity (%s) but off by %.2f%%",
					formatValue(assets.Value), tol*100, formatValue(sum), gap*100),
			})
		}
	}

	loans := selected[MetricLoansAdvances]
	if loans == nil {
		loans = selected[MetricTotalLoans]
	}
	if deposits := selected[MetricCustomerDeposits]; loans != nil && deposits != nil && deposits.Value != 0 {
		ratio := loans.Value / deposits.Value
		if ratio < 0.2 || ratio > 5 {
			report = append(report, internal.SanityEntry{
				Level:   internal.SanityWarning,
				Message: fmt.Sprintf("%s to customer_deposits ratio %.2f is implausible", loans.MetricName, ratio),
			})
		}
	}

	names := make([]string, 0, len(ratioBounds))
	for name := range ratioBounds {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		m := selected[name]
		if m == nil {
			continue
		}
		bounds := ratioBounds[name]
		if m.Value < bounds[0] || m.Value > bounds[1] {
			report = append(report, internal.SanityEntry{
				Level:   internal.SanityWarning,
				Message: fmt.Sprintf("%s value %s is outside the plausible range [%g, %g]", name, formatValue(m.Value), bounds[0], bounds[1]),
			})
			m.AddFlag(internal.FlagOutOfRange)
		}
	}

	if currencies := amountCurrencies(schema, selected); len(currencies) > 1 {
		report = append(report, internal.SanityEntry{
			Level:   internal.SanityWarning,
			Message: "amounts reported in mixed currencies: " + strings.Join(currencies, ", "),
		})
	}

	for _, def := range schema {
		if selected[def.StandardName] == nil {
			report = append(report, internal.SanityEntry{
				Level:   internal.SanityInfo,
				Message: def.StandardName + " not found",
			})
		}
	}
	return report
}

func amountCurrencies(schema []internal.MetricDefinition, selected map[string]*internal.ExtractedMetric) []string {
	seen := map[string]struct{}{}
	var out []string
	for _, def := range schema {
		m := selected[def.StandardName]
		if def.ValueKind != internal.KindAmount || m == nil || m.Currency == nil {
			continue
		}
		if _, ok := seen[*m.Currency]; ok {
			continue
		}
		seen[*m.Currency] = struct{}{}
		out = append(out, *m.Currency)
	}
	return out
}

func relativeGap(a, b float64) float64 {
	denom := math.Max(math.Abs(a), math.Abs(b))
	if denom == 0 {
		return 0
	}
	return math.Abs(a-b) / denom
}

func formatValue(v float64) string {
	return fmt.Sprintf("%.10g", v)
}
