package extractor

import (
	"regexp"
	"testing"

	"finstat/internal"
)

func TestInferUnitsAndCurrency(t *testing.T) {
	cases := []struct {
		name     string
		window   string
		unit     internal.Unit
		currency string
	}{
		{name: "millions header", window: "Total Assets ($ millions)\n1,080,248", unit: internal.UnitMillions, currency: "USD"},
		{name: "thousands outrank millions", window: "$'000\nin millions", unit: internal.UnitThousands, currency: "USD"},
		{name: "millions outrank billions", window: "A$m\n3.4bn", unit: internal.UnitMillions, currency: "AUD"},
		{name: "billions", window: "Total equity €78.1bn", unit: internal.UnitBillions, currency: "EUR"},
		{name: "bare percent", window: "CET1 ratio 12.8%", unit: internal.UnitPercent},
		{name: "prefixed dollar beats bare", window: "C$ millions\nTotal $ 1,234", unit: internal.UnitMillions, currency: "CAD"},
		{name: "us dollar prefix", window: "US$m 1,234", unit: internal.UnitMillions, currency: "USD"},
		{name: "sterling", window: "£m 345", unit: internal.UnitMillions, currency: "GBP"},
		{name: "renminbi", window: "RMB million 88", unit: internal.UnitMillions, currency: "CNY"},
		{name: "singapore", window: "S$ thousands 12", unit: internal.UnitThousands, currency: "SGD"},
		{name: "iso code", window: "JPY billion 9", unit: internal.UnitBillions, currency: "JPY"},
	}

	in := NewInferencer("USD")
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			unit, currency := in.InferUnitsAndCurrency(tc.window)
			if unit == nil || *unit != tc.unit {
				t.Fatalf("unit=%v want %s", unit, tc.unit)
			}
			if tc.currency == "" {
				if currency != nil {
					t.Fatalf("currency=%s want nil", *currency)
				}
				return
			}
			if currency == nil || *currency != tc.currency {
				t.Fatalf("currency=%v want %s", currency, tc.currency)
			}
		})
	}
}

func TestInferUnitsAmbiguous(t *testing.T) {
	unit, currency := NewInferencer("USD").InferUnitsAndCurrency("Net interest income\n16,757")
	if unit != nil {
		t.Fatalf("unit must stay undetermined, got %s", *unit)
	}
	if currency != nil {
		t.Fatalf("currency must stay undetermined, got %s", *currency)
	}
}

func TestInferDefaultDollarConfigurable(t *testing.T) {
	_, currency := NewInferencer("aud").InferUnitsAndCurrency("$m 1,234")
	if currency == nil || *currency != "AUD" {
		t.Fatalf("currency=%v", currency)
	}
}

func TestInferencerRulesAreAdditive(t *testing.T) {
	in := NewInferencer("USD")
	in.CurrencyRules = append([]CurrencyRule{{Pattern: regexp.MustCompile(`\bCHF\b`), Code: "CHF"}}, in.CurrencyRules...)
	_, currency := in.InferUnitsAndCurrency("CHF millions 12")
	if currency == nil || *currency != "CHF" {
		t.Fatalf("currency=%v", currency)
	}
}

func TestNormalize(t *testing.T) {
	millions := internal.UnitMillions
	percent := internal.UnitPercent
	thousands := internal.UnitThousands
	billions := internal.UnitBillions
	none := internal.UnitNone

	for _, v := range []float64{0, 1, 12.8, -1234, 1080248} {
		if got := Normalize(v, &percent, internal.KindAmount); got != v {
			t.Fatalf("percent must be identity: %v -> %v", v, got)
		}
		if got := Normalize(v, &millions, internal.KindAmount); got != v*1_000_000 {
			t.Fatalf("millions: %v -> %v", v, got)
		}
		if got := Normalize(v, nil, internal.KindAmount); got != v {
			t.Fatalf("nil unit must pass through: %v -> %v", v, got)
		}
		if got := Normalize(v, &none, internal.KindAmount); got != v {
			t.Fatalf("none: %v -> %v", v, got)
		}
	}
	if got := Normalize(2, &thousands, internal.KindAmount); got != 2000 {
		t.Fatalf("thousands got %v", got)
	}
	if got := Normalize(3, &billions, internal.KindAmount); got != 3e9 {
		t.Fatalf("billions got %v", got)
	}
	for _, kind := range []internal.ValueKind{internal.KindRatio, internal.KindCount} {
		for _, unit := range []*internal.Unit{&thousands, &millions, &billions} {
			if got := Normalize(38000, unit, kind); got != 38000 {
				t.Fatalf("%s scaled by %s: %v", kind, *unit, got)
			}
		}
	}
}
