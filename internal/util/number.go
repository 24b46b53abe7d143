package util

import (
	"regexp"
	"strconv"
	"strings"
	"unicode"
	"unicode/utf8"
)

const currencySymbols = `US\$|AU\$|A\$|CA\$|C\$|NZ\$|HK\$|S\$|\$|€|£|¥`

var (
	numberPattern = regexp.MustCompile(
		`(` + currencySymbols + `)?\s?(\()?\s?([-−])?\s?(` + currencySymbols + `)?\s?` +
			`(\d{1,3}(?:,\d{3})+(?:\.\d+)?|\d+(?:\.\d+)?)(\))?(\s?%)?`)
	noteRefPattern = regexp.MustCompile(`(?i)\bnotes?\s*$`)
	unitSuffixes   = []string{"bn", "mn", "m", "b", "k"}
)

// NumberToken is one numeric literal found on a line. Start and End are byte
// offsets into the scanned line.
type NumberToken struct {
	Text     string
	Start    int
	End      int
	Value    float64
	Negative bool
	Percent  bool
	Currency string
	Year     bool
}

// FindNumberTokens returns the numeric tokens of a line in reading order.
// Footnote markers glued to a word ("income1", "CET1") and note references
// ("note 12") are not tokens; longer runs glued to a word still are.
func FindNumberTokens(line string) []NumberToken {
	matches := numberPattern.FindAllStringSubmatchIndex(line, -1)
	out := make([]NumberToken, 0, len(matches))
	for _, m := range matches {
		start := m[0]
		for start < m[1] && isSpaceByte(line[start]) {
			start++
		}
		digitsStart, digitsEnd := m[10], m[11]

		if isFootnoteMarker(line, start, digitsStart, digitsEnd) {
			continue
		}
		if noteRefPattern.MatchString(line[:start]) {
			continue
		}

		open := m[4] >= 0
		closed := m[12] >= 0
		minus := m[6] >= 0
		if minus && m[6] == start && start > 0 {
			r, _ := utf8.DecodeLastRuneInString(line[:start])
			if unicode.IsLetter(r) || unicode.IsDigit(r) {
				// range like 2023-24, not a sign
				minus = false
				start = m[7]
			}
		}
		if open && !closed {
			start = skipOpenParen(line, start, m[5])
			open = false
		}
		if closed && !open {
			closed = false
		}

		currency := ""
		if m[2] >= 0 {
			currency = line[m[2]:m[3]]
		} else if m[8] >= 0 {
			currency = line[m[8]:m[9]]
		}

		digits := line[digitsStart:digitsEnd]
		value, err := strconv.ParseFloat(normalizeNumericToken(digits), 64)
		if err != nil {
			continue
		}
		negative := (open && closed) || minus
		if negative {
			value = -value
		}
		percent := m[14] >= 0
		var end int
		switch {
		case percent:
			end = m[15]
		case closed:
			end = m[13]
		default:
			end = digitsEnd
		}

		out = append(out, NumberToken{
			Text:     strings.TrimSpace(line[start:end]),
			Start:    start,
			End:      end,
			Value:    value,
			Negative: negative,
			Percent:  percent,
			Currency: currency,
			Year:     isYear(digits) && currency == "" && !percent && !negative,
		})
	}
	return out
}

// ParseNumber parses the first numeric token of s.
func ParseNumber(s string) (float64, bool) {
	tokens := FindNumberTokens(s)
	if len(tokens) == 0 {
		return 0, false
	}
	return tokens[0].Value, true
}

func normalizeNumericToken(token string) string {
	compact := strings.ReplaceAll(token, " ", "")
	return strings.ReplaceAll(compact, ",", "")
}

// isFootnoteMarker reports digits that annotate a word rather than state a
// value. Only a short plain run glued to a letter counts ("income1", "CET1");
// "income16,757" is a value printed without a space.
func isFootnoteMarker(line string, start, digitsStart, digitsEnd int) bool {
	if start > 0 {
		r, _ := utf8.DecodeLastRuneInString(line[:start])
		if unicode.IsLetter(r) {
			digits := line[digitsStart:digitsEnd]
			return len(digits) <= 2 && !strings.ContainsAny(digits, ",.")
		}
	}
	rest := line[digitsEnd:]
	if rest == "" {
		return false
	}
	r, _ := utf8.DecodeRuneInString(rest)
	if !unicode.IsLetter(r) {
		return false
	}
	lower := strings.ToLower(rest)
	for _, suffix := range unitSuffixes {
		if strings.HasPrefix(lower, suffix) {
			after, _ := utf8.DecodeRuneInString(rest[len(suffix):])
			if len(rest) == len(suffix) || !unicode.IsLetter(after) {
				return false
			}
		}
	}
	return true
}

func skipOpenParen(line string, start, limit int) int {
	idx := strings.IndexByte(line[start:limit], '(')
	if idx < 0 {
		return start
	}
	start += idx + 1
	for start < len(line) && isSpaceByte(line[start]) {
		start++
	}
	return start
}

func isYear(digits string) bool {
	if len(digits) != 4 {
		return false
	}
	n, err := strconv.Atoi(digits)
	if err != nil {
		return false
	}
	return n >= 1900 && n <= 2099
}

func isSpaceByte(b byte) bool {
	return b == ' ' || b == '\t'
}
