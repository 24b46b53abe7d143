package extractor

import (
	"strings"
	"testing"

	"finstat/internal"
)

func unitPtr(u internal.Unit) *internal.Unit { return &u }

func strPtr(s string) *string { return &s }

func TestScore(t *testing.T) {
	cases := []struct {
		name  string
		in    ScoreInput
		want  internal.Confidence
		flags []string
	}{
		{
			name: "clean amount",
			in:   ScoreInput{Value: 1080248e6, Unit: unitPtr(internal.UnitMillions), Currency: strPtr("USD"), Kind: internal.KindAmount, TokenCount: 2},
			want: internal.ConfidenceHigh,
		},
		{
			name:  "no unit no currency",
			in:    ScoreInput{Value: 16757, Kind: internal.KindAmount, TokenCount: 1},
			want:  internal.ConfidenceLow,
			flags: []string{internal.FlagUnitAmbiguous, internal.FlagCurrencyAmbig},
		},
		{
			name:  "multi column ratio",
			in:    ScoreInput{Value: 12.8, Unit: unitPtr(internal.UnitPercent), Kind: internal.KindRatio, TokenCount: 3},
			want:  internal.ConfidenceMedium,
			flags: []string{internal.FlagMultiToken},
		},
		{
			name:  "implausible ratio",
			in:    ScoreInput{Value: 2024, Unit: unitPtr(internal.UnitPercent), Kind: internal.KindRatio, TokenCount: 1},
			want:  internal.ConfidenceMedium,
			flags: []string{internal.FlagOutOfRange},
		},
		{
			name:  "ratio scaled by millions",
			in:    ScoreInput{Value: 2024e6, Unit: unitPtr(internal.UnitMillions), Currency: strPtr("USD"), Kind: internal.KindRatio, TokenCount: 1},
			want:  internal.ConfidenceLow,
			flags: []string{internal.FlagUnitKindMismatch, internal.FlagOutOfRange},
		},
		{
			name:  "count under a scale word",
			in:    ScoreInput{Value: 38000, Unit: unitPtr(internal.UnitMillions), Kind: internal.KindCount, TokenCount: 1},
			want:  internal.ConfidenceMedium,
			flags: []string{internal.FlagUnitKindMismatch},
		},
		{
			name:  "fuzzy label",
			in:    ScoreInput{Match: internal.RawMatch{Fuzzy: true}, Value: 5, Unit: unitPtr(internal.UnitMillions), Currency: strPtr("USD"), Kind: internal.KindAmount, TokenCount: 1},
			want:  internal.ConfidenceMedium,
			flags: []string{internal.FlagFuzzyLabel},
		},
		{
			name:  "negative count",
			in:    ScoreInput{Value: -3, Unit: unitPtr(internal.UnitNone), Kind: internal.KindCount, TokenCount: 1},
			want:  internal.ConfidenceMedium,
			flags: []string{internal.FlagOutOfRange},
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, flags := Score(tc.in)
			if got != tc.want {
				t.Fatalf("confidence=%s want %s flags=%v", got, tc.want, flags)
			}
			if strings.Join(flags, ",") != strings.Join(tc.flags, ",") {
				t.Fatalf("flags=%v want %v", flags, tc.flags)
			}
			if flags == nil {
				t.Fatalf("flags must never be nil")
			}
		})
	}
}

func TestCrossCheckAssetsBelowEquity(t *testing.T) {
	items := []internal.ExtractedMetric{
		{MetricName: MetricTotalAssets, Value: 1000, Selected: true, Flags: []string{}},
		{MetricName: MetricTotalEquity, Value: 1200, Selected: true, Flags: []string{}},
	}
	report := CrossChecker{Tolerance: 0.05}.Check(items, testSchema(MetricTotalAssets, MetricTotalEquity))

	if !hasLevel(report, internal.SanityError) {
		t.Fatalf("expected error entry, got %+v", report)
	}
	for _, it := range items {
		if !it.HasFlag(internal.FlagCrossCheckFailed) {
			t.Fatalf("%s missing cross_check_failed", it.MetricName)
		}
	}
}

func TestCrossCheckBalanceIdentity(t *testing.T) {
	cases := []struct {
		name        string
		liabilities float64
		level       internal.SanityLevel
		flagged     bool
	}{
		{name: "holds exactly", liabilities: 900, level: "", flagged: false},
		{name: "near violation", liabilities: 880, level: internal.SanityWarning, flagged: false},
		{name: "violation", liabilities: 700, level: internal.SanityError, flagged: true},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			items := []internal.ExtractedMetric{
				{MetricName: MetricTotalAssets, Value: 1000, Selected: true, Flags: []string{}},
				{MetricName: MetricTotalLiabilities, Value: tc.liabilities, Selected: true, Flags: []string{}},
				{MetricName: MetricTotalEquity, Value: 100, Selected: true, Flags: []string{}},
			}
			report := CrossChecker{Tolerance: 0.05}.Check(items, testSchema(MetricTotalAssets, MetricTotalLiabilities, MetricTotalEquity))
			if tc.level == "" && len(report) != 0 {
				t.Fatalf("unexpected report %+v", report)
			}
			if tc.level != "" && !hasLevel(report, tc.level) {
				t.Fatalf("want %s entry, got %+v", tc.level, report)
			}
			for _, it := range items {
				if it.HasFlag(internal.FlagCrossCheckFailed) != tc.flagged {
					t.Fatalf("%s flags=%v", it.MetricName, it.Flags)
				}
			}
		})
	}
}

func TestCrossCheckIgnoresAlternates(t *testing.T) {
	items := []internal.ExtractedMetric{
		{MetricName: MetricTotalAssets, Value: 1000, Selected: true, Flags: []string{}},
		{MetricName: MetricTotalEquity, Value: 100, Selected: true, Flags: []string{}},
		{MetricName: MetricTotalEquity, Value: 5000, Selected: false, Flags: []string{}},
	}
	report := CrossChecker{}.Check(items, testSchema(MetricTotalAssets, MetricTotalEquity))
	if hasLevel(report, internal.SanityError) {
		t.Fatalf("alternate leaked into cross check: %+v", report)
	}
}

func TestCrossCheckReportsMissingMetrics(t *testing.T) {
	report := CrossChecker{}.Check(nil, testSchema(MetricTotalAssets))
	if len(report) != 1 || report[0].Level != internal.SanityInfo || report[0].Message != "total_assets not found" {
		t.Fatalf("report=%+v", report)
	}
}

func testSchema(names ...string) []internal.MetricDefinition {
	out := make([]internal.MetricDefinition, 0, len(names))
	for _, n := range names {
		out = append(out, internal.MetricDefinition{StandardName: n, CandidateLabels: []string{strings.ReplaceAll(n, "_", " ")}, ValueKind: internal.KindAmount})
	}
	return out
}

func hasLevel(report internal.SanityReport, level internal.SanityLevel) bool {
	for _, e := range report {
		if e.Level == level {
			return true
		}
	}
	return false
}
