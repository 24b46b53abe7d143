package extractor

import (
	"regexp"
	"strings"

	"finstat/internal/util"
)

var wordPattern = regexp.MustCompile(`[A-Za-z]{3,}`)

// RawNumber is the numeric token chosen for a label line. TokenCount is the
// number of value tokens on the line outside the label, used to spot
// multi-column ambiguity.
type RawNumber struct {
	Text       string
	Value      float64
	Percent    bool
	Currency   string
	TokenCount int
}

// ExtractNumber picks the first token after the label end. When nothing
// follows the label it falls back to the first token elsewhere on the line.
// Year-like tokens (column headers) are only used when nothing else exists,
// and a lone note digit ahead of a grouped value is skipped.
func ExtractNumber(line string, labelStart, labelEnd int) (RawNumber, bool) {
	var after, before, years []util.NumberToken
	for _, tok := range util.FindNumberTokens(line) {
		if tok.End > labelStart && tok.Start < labelEnd {
			continue
		}
		switch {
		case tok.Year:
			years = append(years, tok)
		case tok.Start >= labelEnd:
			after = append(after, tok)
		default:
			before = append(before, tok)
		}
	}

	if len(after) > 1 && isNoteNumber(after[0]) && strings.Contains(after[1].Text, ",") {
		after = after[1:]
	}

	count := len(after) + len(before)
	var chosen util.NumberToken
	switch {
	case len(after) > 0:
		chosen = after[0]
	case len(before) > 0:
		chosen = before[0]
	case len(years) > 0:
		chosen = years[0]
		count = len(years)
	default:
		return RawNumber{}, false
	}

	return RawNumber{
		Text:       chosen.Text,
		Value:      chosen.Value,
		Percent:    chosen.Percent,
		Currency:   chosen.Currency,
		TokenCount: count,
	}, true
}

// isNoteNumber reports a lone digit such as the note column in
// "Total assets 2 1,080,248".
func isNoteNumber(tok util.NumberToken) bool {
	return len(tok.Text) == 1 && tok.Text[0] >= '0' && tok.Text[0] <= '9'
}

// extractFromValueLine reads a value printed on its own line below a label.
// Lines carrying words are other labels and are rejected.
func extractFromValueLine(line string) (RawNumber, bool) {
	if line == "" {
		return RawNumber{}, false
	}
	stripped := line
	for _, tok := range util.FindNumberTokens(line) {
		stripped = stripped[:tok.Start] + strings.Repeat(" ", tok.End-tok.Start) + stripped[tok.End:]
	}
	if wordPattern.MatchString(stripped) {
		return RawNumber{}, false
	}
	return ExtractNumber(line, 0, 0)
}
