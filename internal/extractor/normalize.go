package extractor

import "finstat/internal"

var unitMultipliers = map[internal.Unit]float64{
	internal.UnitNone:      1,
	internal.UnitThousands: 1e3,
	internal.UnitMillions:  1e6,
	internal.UnitBillions:  1e9,
	internal.UnitPercent:   1,
}

// Normalize scales an amount to base units. Ratios and counts keep their
// literal number whatever scale word surrounds them, as do percentages and
// unknown units.
func Normalize(raw float64, unit *internal.Unit, kind internal.ValueKind) float64 {
	if unit == nil || kind != internal.KindAmount {
		return raw
	}
	mult, ok := unitMultipliers[*unit]
	if !ok {
		return raw
	}
	return raw * mult
}
