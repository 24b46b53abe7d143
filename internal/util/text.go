package util

import (
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"
)

var (
	reSpaces    = regexp.MustCompile(`\s+`)
	spaceRepl   = strings.NewReplacer("\u00a0", " ", "\u2007", " ", "\u2009", " ", "\u202f", " ", "\t", " ", "\r", "")
	foldDropped = "'’`"
	foldBreaks  = "-–—/\\:;,.()[]{}\"“”*|"
)

// CleanLine replaces non-breaking and thin spaces with plain spaces and trims
// the result.
func CleanLine(input string) string {
	return strings.TrimSpace(spaceRepl.Replace(input))
}

// SplitLines splits page text into trimmed, non-empty lines.
func SplitLines(text string) []string {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	parts := strings.Split(text, "\n")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = CleanLine(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

func NormalizeSpaces(input string) string {
	return strings.TrimSpace(reSpaces.ReplaceAllString(spaceRepl.Replace(input), " "))
}

// FoldedText is a lowercase rendition of a string with punctuation turned into
// single spaces, "&" spelled "and" and apostrophes removed. Starts and Ends map
// every byte of Text back to the byte range of the source rune it came from.
type FoldedText struct {
	Text   string
	Starts []int
	Ends   []int
}

func Fold(input string) FoldedText {
	var b strings.Builder
	starts := make([]int, 0, len(input))
	ends := make([]int, 0, len(input))
	lastSpace := true

	emit := func(s string, from, to int) {
		for i := 0; i < len(s); i++ {
			starts = append(starts, from)
			ends = append(ends, to)
		}
		b.WriteString(s)
	}
	space := func(from, to int) {
		if lastSpace {
			return
		}
		emit(" ", from, to)
		lastSpace = true
	}

	for i, r := range input {
		size := utf8.RuneLen(r)
		switch {
		case strings.ContainsRune(foldDropped, r):
		case unicode.IsSpace(r) || strings.ContainsRune(foldBreaks, r):
			space(i, i+size)
		case r == '&':
			space(i, i+size)
			emit("and", i, i+size)
			lastSpace = false
			space(i, i+size)
		default:
			emit(string(unicode.ToLower(r)), i, i+size)
			lastSpace = false
		}
	}

	text := b.String()
	if strings.HasSuffix(text, " ") {
		text = text[:len(text)-1]
		starts = starts[:len(text)]
		ends = ends[:len(text)]
	}
	return FoldedText{Text: text, Starts: starts, Ends: ends}
}

// FoldString folds input without keeping the offset map.
func FoldString(input string) string {
	return Fold(input).Text
}

// CollapseLower lowercases input and collapses whitespace, keeping punctuation.
func CollapseLower(input string) string {
	return strings.ToLower(NormalizeSpaces(input))
}

func Words(input string) []string {
	return strings.Fields(FoldString(input))
}

// IsWordBoundary reports whether the byte at idx of s starts or ends a word,
// treating letters and digits as word characters.
func IsWordBoundary(s string, idx int) bool {
	if idx <= 0 || idx >= len(s) {
		return true
	}
	before, _ := utf8.DecodeLastRuneInString(s[:idx])
	after, _ := utf8.DecodeRuneInString(s[idx:])
	return !isWordRune(before) || !isWordRune(after)
}

// IsLabelEnd reports whether a label may end at idx: on a word boundary, or
// where a letter runs straight into a digit as in "income16,757".
func IsLabelEnd(s string, idx int) bool {
	if IsWordBoundary(s, idx) {
		return true
	}
	before, _ := utf8.DecodeLastRuneInString(s[:idx])
	after, _ := utf8.DecodeRuneInString(s[idx:])
	return unicode.IsLetter(before) && unicode.IsDigit(after)
}

func isWordRune(r rune) bool {
	return unicode.IsLetter(r) || unicode.IsDigit(r)
}

func HasDigit(input string) bool {
	for _, r := range input {
		if unicode.IsDigit(r) {
			return true
		}
	}
	return false
}

func DiceCoefficient(a, b string) float64 {
	if a == "" || b == "" {
		return 0
	}
	if a == b {
		return 1
	}

	pairs := func(s string) []string {
		r := []rune(s)
		if len(r) < 2 {
			return nil
		}
		out := make([]string, 0, len(r)-1)
		for i := 0; i < len(r)-1; i++ {
			out = append(out, string(r[i:i+2]))
		}
		return out
	}

	aPairs := pairs(a)
	bPairs := pairs(b)
	if len(aPairs) == 0 || len(bPairs) == 0 {
		return 0
	}

	bCount := map[string]int{}
	for _, p := range bPairs {
		bCount[p]++
	}
	inter := 0
	for _, p := range aPairs {
		if bCount[p] > 0 {
			inter++
			bCount[p]--
		}
	}

	return float64(2*inter) / float64(len(aPairs)+len(bPairs))
}

func StringPtr(v string) *string { return &v }

func FloatPtr(v float64) *float64 { return &v }

func DerefString(v *string) string {
	if v == nil {
		return ""
	}
	return *v
}
