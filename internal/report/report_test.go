package report

import (
	"strings"
	"testing"

	"finstat/internal"
	"finstat/internal/util"
)

func stored(name string, value float64, unit internal.Unit, currency string, conf internal.Confidence) internal.StoredMetric {
	m := internal.StoredMetric{ExtractedMetric: internal.ExtractedMetric{
		MetricName: name,
		Value:      value,
		Unit:       &unit,
		Confidence: conf,
		Selected:   true,
	}}
	if currency != "" {
		m.Currency = util.StringPtr(currency)
	}
	return m
}

func TestBuild(t *testing.T) {
	schema := []internal.MetricDefinition{
		{StandardName: "total_assets", ValueKind: internal.KindAmount},
		{StandardName: "cet1_ratio", ValueKind: internal.KindRatio},
	}
	entries := []Entry{
		{
			Document: internal.Document{Name: "a.pdf", Bank: util.StringPtr("Bank A"), Period: util.StringPtr("FY2024")},
			Result: internal.StoredResult{
				Items: []internal.StoredMetric{
					stored("total_assets", 1080248e6, internal.UnitMillions, "USD", internal.ConfidenceHigh),
					stored("cet1_ratio", 12.8, internal.UnitPercent, "", internal.ConfidenceLow),
				},
				Sanity: internal.SanityReport{{Level: internal.SanityWarning, Message: "balance identity off by 2%"}},
			},
		},
		{Document: internal.Document{Name: "b|c.pdf"}},
	}

	md := Build(entries, schema)
	for _, want := range []string{
		"| Metric | Bank A FY2024 | b\\|c.pdf |",
		"| total_assets | USD 1,080,248,000,000 | n/a |",
		"| cet1_ratio | 12.8% (low) | n/a |",
		"**Bank A FY2024** warning: balance identity off by 2%",
	} {
		if !strings.Contains(md, want) {
			t.Fatalf("missing %q in\n%s", want, md)
		}
	}
}

func TestBuildEmpty(t *testing.T) {
	if md := Build(nil, nil); !strings.Contains(md, "No documents.") {
		t.Fatalf("md=%q", md)
	}
}

func TestRenderHTML(t *testing.T) {
	md := Build([]Entry{{Document: internal.Document{Name: "a.pdf"}}}, []internal.MetricDefinition{{StandardName: "total_assets", ValueKind: internal.KindAmount}})
	out, err := RenderHTML(md)
	if err != nil {
		t.Fatal(err)
	}
	html := string(out)
	if !strings.Contains(html, "<table>") || !strings.Contains(html, "<td") || !strings.Contains(html, "total_assets") {
		t.Fatalf("html=%s", html)
	}
}
