package extractor

import (
	"regexp"
	"strings"

	"finstat/internal"
)

type UnitRule struct {
	Pattern *regexp.Regexp
	Unit    internal.Unit
}

// CurrencyRule maps a marker to a currency code. An empty Code stands for the
// configured default of a bare dollar sign.
type CurrencyRule struct {
	Pattern *regexp.Regexp
	Code    string
}

// DefaultUnitRules are evaluated in order; the first hit wins.
var DefaultUnitRules = []UnitRule{
	{regexp.MustCompile(`(?i)\bthousands?\b`), internal.UnitThousands},
	{regexp.MustCompile(`['’]000s?\b`), internal.UnitThousands},
	{regexp.MustCompile(`\b000s\b`), internal.UnitThousands},
	{regexp.MustCompile(`(?i)[$€£¥]\s?k\b`), internal.UnitThousands},
	{regexp.MustCompile(`(?i)\bmillions?\b`), internal.UnitMillions},
	{regexp.MustCompile(`(?i)[$€£¥]\s?m\b`), internal.UnitMillions},
	{regexp.MustCompile(`(?i)\b(?:mn|mln)\b`), internal.UnitMillions},
	{regexp.MustCompile(`(?i)\(m\)`), internal.UnitMillions},
	{regexp.MustCompile(`(?i)\bbillions?\b`), internal.UnitBillions},
	{regexp.MustCompile(`(?i)[$€£¥]\s?bn?\b`), internal.UnitBillions},
	{regexp.MustCompile(`(?i)\d\s?bn\b|\bbn\b`), internal.UnitBillions},
	{regexp.MustCompile(`%|(?i)\bper ?cent\b`), internal.UnitPercent},
}

var DefaultCurrencyRules = []CurrencyRule{
	{regexp.MustCompile(`\bAUD\b|\bAU?\$`), "AUD"},
	{regexp.MustCompile(`\bCAD\b|\bCA?\$`), "CAD"},
	{regexp.MustCompile(`\bUSD\b|\bUS\$`), "USD"},
	{regexp.MustCompile(`\bEUR\b|€`), "EUR"},
	{regexp.MustCompile(`\bGBP\b|£`), "GBP"},
	{regexp.MustCompile(`\bJPY\b|¥`), "JPY"},
	{regexp.MustCompile(`\bCNY\b|\bRMB\b`), "CNY"},
	{regexp.MustCompile(`\bSGD\b|\bS\$`), "SGD"},
	{regexp.MustCompile(`\bNZD\b|\bNZ\$`), "NZD"},
	{regexp.MustCompile(`\bHKD\b|\bHK\$`), "HKD"},
	{regexp.MustCompile(`\$`), ""},
}

// Inferencer reads the unit scale and currency from a window of text.
type Inferencer struct {
	UnitRules     []UnitRule
	CurrencyRules []CurrencyRule
	DefaultDollar string
}

func NewInferencer(defaultDollar string) *Inferencer {
	defaultDollar = strings.ToUpper(strings.TrimSpace(defaultDollar))
	if defaultDollar == "" {
		defaultDollar = "USD"
	}
	return &Inferencer{
		UnitRules:     DefaultUnitRules,
		CurrencyRules: DefaultCurrencyRules,
		DefaultDollar: defaultDollar,
	}
}

// InferUnitsAndCurrency returns nil for anything it cannot determine. It
// never assumes a scale.
func (in *Inferencer) InferUnitsAndCurrency(window string) (*internal.Unit, *string) {
	var unit *internal.Unit
	for _, rule := range in.UnitRules {
		if rule.Pattern.MatchString(window) {
			u := rule.Unit
			unit = &u
			break
		}
	}

	var currency *string
	for _, rule := range in.CurrencyRules {
		if rule.Pattern.MatchString(window) {
			code := rule.Code
			if code == "" {
				code = in.DefaultDollar
			}
			currency = &code
			break
		}
	}
	return unit, currency
}

func contextWindow(m internal.RawMatch) string {
	return strings.Join([]string{m.PrevLineText, m.LineText, m.NextLineText}, "\n")
}
