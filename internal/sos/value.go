package sos

import (
	"math"

	"github.com/specialistvlad/sosappend/internal/module"
)

// Fill sentinels used by the upstream stages for missing data.
const (
	FillFloat64 float64 = -999999999999
	FillInt32   int32   = -999
	FillChar    string  = "x"
)

// Value is one cell of a variable. Num carries f8 and i4 data, Text carries S1
// data.
type Value struct {
	Set  bool
	Num  float64
	Text string
}

// Missing returns the missing marker.
func Missing() Value { return Value{} }

// Number returns a set numeric value.
func Number(f float64) Value { return Value{Set: true, Num: f} }

// Text returns a set character value.
func Text(s string) Value { return Value{Set: true, Text: s} }

// Fill returns the sentinel an external writer should emit for a missing
// value of type t.
func Fill(t module.DataType) Value {
	switch t {
	case module.Int32:
		return Number(float64(FillInt32))
	case module.Char:
		return Text(FillChar)
	default:
		return Number(FillFloat64)
	}
}

// Normalize turns NaN and fill sentinels of type t into the missing marker.
func Normalize(t module.DataType, v Value) Value {
	if !v.Set {
		return Missing()
	}
	switch t {
	case module.Char:
		if v.Text == FillChar {
			return Missing()
		}
	case module.Int32:
		if math.IsNaN(v.Num) || v.Num == float64(FillInt32) {
			return Missing()
		}
	default:
		if math.IsNaN(v.Num) || v.Num == FillFloat64 {
			return Missing()
		}
	}
	return v
}

// Export returns v with missing replaced by the type's fill sentinel.
func Export(t module.DataType, v Value) Value {
	if !v.Set {
		return Fill(t)
	}
	return v
}
