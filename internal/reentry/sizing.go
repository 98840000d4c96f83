package reentry

import (
	"math"

	"github.com/shopspring/decimal"
)

// Instrument describes one symbol's lot constraints.
type Instrument struct {
	LotStep float64 `mapstructure:"lot_step" json:"lot_step"`
	MinLot  float64 `mapstructure:"min_lot" json:"min_lot"`
	MaxLot  float64 `mapstructure:"max_lot" json:"max_lot"`
}

// DefaultInstrument matches the common retail forex contract.
func DefaultInstrument() Instrument {
	return Instrument{LotStep: 0.01, MinLot: 0.01, MaxLot: 100}
}

// InstrumentBook resolves per-symbol lot constraints.
type InstrumentBook interface {
	Lookup(symbol string) Instrument
}

// StaticBook is an InstrumentBook backed by a fixed table with a fallback
// for symbols the table does not name.
type StaticBook struct {
	Fallback Instrument
	BySymbol map[string]Instrument
}

func (b StaticBook) Lookup(symbol string) Instrument {
	if inst, ok := b.BySymbol[symbol]; ok {
		return inst
	}
	if b.Fallback.LotStep > 0 {
		return b.Fallback
	}
	return DefaultInstrument()
}

func decFromFloat(val float64) decimal.Decimal {
	if math.IsNaN(val) || math.IsInf(val, 0) {
		return decimal.Zero
	}
	return decimal.NewFromFloat(val)
}

func decToFloat(val decimal.Decimal) float64 {
	f, _ := val.Float64()
	return f
}

// sizeLot scales the closed position's lot by the resolved multiplier,
// truncates to the instrument's lot step and clamps into [MinLot, MaxLot].
// A non-positive multiplier sizes to zero rather than clamping up to the
// instrument minimum.
func sizeLot(current, multiplier float64, inst Instrument) float64 {
	if current <= 0 || multiplier <= 0 {
		return 0
	}
	lot := decFromFloat(current).Mul(decFromFloat(multiplier))
	if step := decFromFloat(inst.LotStep); step.IsPositive() {
		lot = lot.Div(step).Floor().Mul(step)
	}
	if floor := decFromFloat(inst.MinLot); floor.IsPositive() && lot.LessThan(floor) {
		lot = floor
	}
	if ceil := decFromFloat(inst.MaxLot); ceil.IsPositive() && lot.GreaterThan(ceil) {
		lot = ceil
	}
	return decToFloat(lot)
}
