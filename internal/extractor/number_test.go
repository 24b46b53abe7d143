package extractor

import (
	"strings"
	"testing"
)

func TestExtractNumber(t *testing.T) {
	cases := []struct {
		name   string
		line   string
		label  string
		want   float64
		text   string
		tokens int
	}{
		{name: "first column after label", line: "Net interest income 16,757 15,200", label: "Net interest income", want: 16757, text: "16,757", tokens: 2},
		{name: "fallback before label", line: "16,757 Net interest income", label: "Net interest income", want: 16757, text: "16,757", tokens: 1},
		{name: "label digits ignored", line: "Tier 1 capital ratio 14.1%", label: "Tier 1 capital ratio", want: 14.1, text: "14.1%", tokens: 1},
		{name: "year columns skipped", line: "Total assets 2024 2023 1,080,248", label: "Total assets", want: 1080248, text: "1,080,248", tokens: 1},
		{name: "parenthesized negative", line: "Net profit after tax (1,234)", label: "Net profit after tax", want: -1234, text: "(1,234)", tokens: 1},
		{name: "unicode minus", line: "Net profit after tax − 512", label: "Net profit after tax", want: -512, text: "− 512", tokens: 1},
		{name: "only a year", line: "Total assets 2024", label: "Total assets", want: 2024, text: "2024", tokens: 1},
		{name: "note column skipped", line: "Total assets 2 1,080,248", label: "Total assets", want: 1080248, text: "1,080,248", tokens: 1},
		{name: "note column with comparatives", line: "Total assets 2 1,080,248 1,050,000", label: "Total assets", want: 1080248, text: "1,080,248", tokens: 2},
		{name: "lone digit kept before plain number", line: "Branches 5 12", label: "Branches", want: 5, text: "5", tokens: 2},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			start := strings.Index(tc.line, tc.label)
			got, ok := ExtractNumber(tc.line, start, start+len(tc.label))
			if !ok {
				t.Fatalf("not found")
			}
			if got.Value != tc.want || got.Text != tc.text || got.TokenCount != tc.tokens {
				t.Fatalf("got %+v", got)
			}
		})
	}
}

func TestExtractNumberNotFound(t *testing.T) {
	line := "Net interest income"
	if _, ok := ExtractNumber(line, 0, len(line)); ok {
		t.Fatalf("expected not found")
	}
}

func TestExtractFromValueLine(t *testing.T) {
	if got, ok := extractFromValueLine("16,757 15,200"); !ok || got.Value != 16757 {
		t.Fatalf("got %+v ok=%v", got, ok)
	}
	if _, ok := extractFromValueLine("Other operating income 345"); ok {
		t.Fatalf("a labelled line is not a value line")
	}
	if _, ok := extractFromValueLine(""); ok {
		t.Fatalf("empty line")
	}
}
