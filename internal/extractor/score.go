package extractor

import (
	"math"

	"finstat/internal"
)

// ScoreInput carries what the scorer needs about one candidate.
type ScoreInput struct {
	Match      internal.RawMatch
	Value      float64
	Unit       *internal.Unit
	Currency   *string
	Kind       internal.ValueKind
	TokenCount int
	NextLine   bool
}

var penalties = map[string]int{
	internal.FlagUnitAmbiguous:    2,
	internal.FlagCurrencyAmbig:    1,
	internal.FlagMultiToken:       1,
	internal.FlagFuzzyLabel:       2,
	internal.FlagOutOfRange:       2,
	internal.FlagUnitKindMismatch: 2,
	internal.FlagNextLineValue:    0,
}

// Score starts every candidate at high and lowers it per flag raised. It
// never fails; the flags explain every downgrade.
func Score(in ScoreInput) (internal.Confidence, []string) {
	flags := []string{}
	if in.Match.Fuzzy {
		flags = append(flags, internal.FlagFuzzyLabel)
	}
	if in.Unit == nil {
		flags = append(flags, internal.FlagUnitAmbiguous)
	}
	if in.Currency == nil && in.Kind == internal.KindAmount {
		flags = append(flags, internal.FlagCurrencyAmbig)
	}
	if in.TokenCount >= 3 {
		flags = append(flags, internal.FlagMultiToken)
	}
	if in.NextLine {
		flags = append(flags, internal.FlagNextLineValue)
	}
	if unitKindMismatch(in.Kind, in.Unit) {
		flags = append(flags, internal.FlagUnitKindMismatch)
	}
	if outOfRange(in.Kind, in.Value) {
		flags = append(flags, internal.FlagOutOfRange)
	}

	points := 0
	for _, f := range flags {
		points += penalties[f]
	}
	switch {
	case points == 0:
		return internal.ConfidenceHigh, flags
	case points <= 2:
		return internal.ConfidenceMedium, flags
	default:
		return internal.ConfidenceLow, flags
	}
}

func outOfRange(kind internal.ValueKind, v float64) bool {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return true
	}
	switch kind {
	case internal.KindRatio:
		return v > 1000 || v < -100
	case internal.KindCount:
		return v < 0 || v != math.Trunc(v)
	default:
		return false
	}
}

func unitKindMismatch(kind internal.ValueKind, unit *internal.Unit) bool {
	if unit == nil {
		return false
	}
	scaled := *unit == internal.UnitThousands || *unit == internal.UnitMillions || *unit == internal.UnitBillions
	switch kind {
	case internal.KindAmount:
		return *unit == internal.UnitPercent
	case internal.KindRatio:
		return scaled
	default:
		return scaled || *unit == internal.UnitPercent
	}
}
