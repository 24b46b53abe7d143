package extractor

import "testing"

func TestLocate(t *testing.T) {
	page := "Income statement\nInterest income, net 16,757 15,200\nNet interest income 16,757\nOther income 345"
	matches := Locate(2, page, []string{"net interest income", "interest income, net"})
	if len(matches) != 2 {
		t.Fatalf("len=%d %+v", len(matches), matches)
	}
	first := matches[0]
	if first.MatchedLabel != "net interest income" || first.LineIndex != 2 || first.PageIndex != 2 {
		t.Fatalf("first match %+v", first)
	}
	if first.LineText[first.LabelStart:first.LabelEnd] != "Net interest income" {
		t.Fatalf("span=%q", first.LineText[first.LabelStart:first.LabelEnd])
	}
	if first.PrevLineText != "Interest income, net 16,757 15,200" || first.NextLineText != "Other income 345" {
		t.Fatalf("context %+v", first)
	}
	second := matches[1]
	if second.LineIndex != 1 || second.LineText[:second.LabelEnd] != "Interest income, net" {
		t.Fatalf("second match %+v", second)
	}
	if first.Fuzzy || second.Fuzzy {
		t.Fatalf("phrase matches must not be fuzzy")
	}
}

func TestLocatePunctuationVariance(t *testing.T) {
	cases := []struct {
		name  string
		line  string
		label string
	}{
		{name: "hyphens", line: "Cost-to-income ratio 45.2%", label: "cost to income ratio"},
		{name: "slash", line: "Cost / income ratio 45.2%", label: "cost/income ratio"},
		{name: "ampersand", line: "Loans & advances to customers 700,000", label: "loans and advances"},
		{name: "apostrophe", line: "Total shareholders' equity 78,000", label: "shareholders equity"},
		{name: "colon and case", line: "TOTAL ASSETS: 1,080,248", label: "total assets"},
		{name: "extra spaces", line: "Net   interest   margin 1.9%", label: "net interest margin"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			matches := Locate(0, tc.line, []string{tc.label})
			if len(matches) != 1 {
				t.Fatalf("len=%d", len(matches))
			}
		})
	}
}

func TestLocateWordBoundaries(t *testing.T) {
	if matches := Locate(0, "Nimble growth 12%", []string{"nim"}); len(matches) != 0 {
		t.Fatalf("matched inside a word: %+v", matches)
	}
	if matches := Locate(0, "ROE 11.2%", []string{"roe"}); len(matches) != 1 {
		t.Fatalf("standalone abbreviation not matched")
	}
	matches := Locate(0, "Net interest income16,757", []string{"net interest income"})
	if len(matches) != 1 {
		t.Fatalf("label running into its value not matched")
	}
	if m := matches[0]; m.LineText[m.LabelStart:m.LabelEnd] != "Net interest income" {
		t.Fatalf("span=%q", m.LineText[m.LabelStart:m.LabelEnd])
	}
}

func TestLocateMultiLineLabelNotMatched(t *testing.T) {
	matches := Locate(0, "Net interest\nincome 16,757", []string{"net interest income"})
	if len(matches) != 0 {
		t.Fatalf("label split across lines must not match: %+v", matches)
	}
}

func TestLocateFuzzyFallback(t *testing.T) {
	page := "Totl assets 1,080,248"
	if matches := Locate(0, page, []string{"total assets"}); len(matches) != 0 {
		t.Fatalf("strict locator matched a misspelling")
	}
	matches := Locator{FuzzyThreshold: 0.8}.Locate(0, page, []string{"total assets"})
	if len(matches) != 1 || !matches[0].Fuzzy {
		t.Fatalf("fuzzy fallback: %+v", matches)
	}
	if matches[0].LineText[:matches[0].LabelEnd] != "Totl assets" {
		t.Fatalf("span=%q", matches[0].LineText[:matches[0].LabelEnd])
	}
}
