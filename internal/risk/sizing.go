package risk

import (
	"math"

	"fxgate/pkg/instruments"
)

// Position sizing is pure and deterministic: no I/O, no shared state. Unit
// counts come back clamped to the instrument's [min, max] trade size, and a
// zero stop distance yields the minimum size rather than a division fault.

// SizeByDistance computes units from the absolute entry/stop price
// distance: floor(balance * riskFraction / |entry - stop|).
func SizeByDistance(balance, riskFraction, entryPrice, stopLoss float64, inst instruments.Instrument) int {
	distance := math.Abs(entryPrice - stopLoss)
	if distance == 0 {
		return inst.MinSize
	}
	riskAmount := balance * riskFraction
	return clampSize(floorUnits(riskAmount/distance), inst)
}

// SizeByPips computes units from a stop distance expressed in pips:
// floor(balance * riskFraction / (stopPips * pipSize)).
func SizeByPips(balance, riskFraction, stopPips, pipSize float64, inst instruments.Instrument) int {
	if stopPips == 0 {
		return inst.MinSize
	}
	riskAmount := balance * riskFraction
	return clampSize(floorUnits(riskAmount/(stopPips*pipSize)), inst)
}

// floorUnits truncates a unit quotient with a small tolerance: price
// distances like 1.1000-1.0980 carry float64 representation error that can
// land the quotient a hair under the exact integer, and a plain cast would
// drop a whole unit.
func floorUnits(q float64) int {
	return int(math.Floor(q + 1e-9))
}

func clampSize(size int, inst instruments.Instrument) int {
	if size < inst.MinSize {
		return inst.MinSize
	}
	if size > inst.MaxSize {
		return inst.MaxSize
	}
	return size
}
