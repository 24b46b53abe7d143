package extractor

import (
	"strings"

	"finstat/internal"
	"finstat/internal/util"
)

// Locator finds candidate label lines on a page. A zero FuzzyThreshold
// disables the similarity fallback.
type Locator struct {
	FuzzyThreshold float64
}

type preparedLabel struct {
	raw    string
	folded string
	words  int
}

func prepareLabels(labels []string) []preparedLabel {
	out := make([]preparedLabel, 0, len(labels))
	for _, l := range labels {
		folded := util.FoldString(l)
		if folded == "" {
			continue
		}
		out = append(out, preparedLabel{
			raw:    l,
			folded: folded,
			words:  len(strings.Fields(folded)),
		})
	}
	return out
}

// Locate returns label occurrences on one page, in label priority order then
// top to bottom. Labels must sit on a single line. Case, spacing and
// punctuation differences ("Cost-to-income", "Loans & advances") still count
// as an exact phrase match.
func Locate(pageIndex int, pageText string, labels []string) []internal.RawMatch {
	return Locator{}.Locate(pageIndex, pageText, labels)
}

func (l Locator) Locate(pageIndex int, pageText string, labels []string) []internal.RawMatch {
	return l.locateLines(pageIndex, util.SplitLines(pageText), prepareLabels(labels))
}

func (l Locator) locateLines(pageIndex int, lines []string, labels []preparedLabel) []internal.RawMatch {
	folded := make([]util.FoldedText, len(lines))
	for i, line := range lines {
		folded[i] = util.Fold(line)
	}

	var out []internal.RawMatch
	for _, label := range labels {
		for i, f := range folded {
			start, end, ok := findPhrase(f, label.folded)
			if !ok {
				continue
			}
			out = append(out, newMatch(pageIndex, lines, i, label.raw, start, end))
		}
	}
	if len(out) > 0 || l.FuzzyThreshold <= 0 {
		return out
	}

	for _, label := range labels {
		for i, f := range folded {
			if !util.HasDigit(lines[i]) {
				continue
			}
			start, end, ok := fuzzyPrefix(f, label, l.FuzzyThreshold)
			if !ok {
				continue
			}
			m := newMatch(pageIndex, lines, i, label.raw, start, end)
			m.Fuzzy = true
			out = append(out, m)
		}
	}
	return out
}

// findPhrase finds phrase in the folded line on word boundaries and maps the
// hit back to byte offsets of the original line.
func findPhrase(f util.FoldedText, phrase string) (int, int, bool) {
	from := 0
	for from <= len(f.Text) {
		idx := strings.Index(f.Text[from:], phrase)
		if idx < 0 {
			return 0, 0, false
		}
		idx += from
		end := idx + len(phrase)
		if util.IsWordBoundary(f.Text, idx) && util.IsLabelEnd(f.Text, end) {
			return f.Starts[idx], f.Ends[end-1], true
		}
		from = idx + 1
	}
	return 0, 0, false
}

// fuzzyPrefix compares the leading words of a line with a label.
func fuzzyPrefix(f util.FoldedText, label preparedLabel, threshold float64) (int, int, bool) {
	words := strings.Fields(f.Text)
	if len(words) < label.words {
		return 0, 0, false
	}
	prefix := strings.Join(words[:label.words], " ")
	if util.DiceCoefficient(prefix, label.folded) < threshold {
		return 0, 0, false
	}
	if !strings.HasPrefix(f.Text, prefix) {
		return 0, 0, false
	}
	return f.Starts[0], f.Ends[len(prefix)-1], true
}

func newMatch(pageIndex int, lines []string, i int, label string, start, end int) internal.RawMatch {
	m := internal.RawMatch{
		PageIndex:    pageIndex,
		LineIndex:    i,
		MatchedLabel: label,
		LineText:     lines[i],
		LabelStart:   start,
		LabelEnd:     end,
	}
	if i > 0 {
		m.PrevLineText = lines[i-1]
	}
	if i+1 < len(lines) {
		m.NextLineText = lines[i+1]
	}
	return m
}
