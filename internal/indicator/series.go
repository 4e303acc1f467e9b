package indicator

import (
	"bytes"
	"math"
	"strconv"

	"github.com/moznion/go-optional"
	"github.com/shopspring/decimal"
)

// Series is an indicator output aligned index-for-index with the candles it
// was computed from. Positions without enough history hold NaN.
type Series []float64

// NewSeries returns a series of n undefined values.
func NewSeries(n int) Series {
	s := make(Series, n)
	for i := range s {
		s[i] = math.NaN()
	}
	return s
}

// At returns the value at i, or None when i is out of range or undefined.
func (s Series) At(i int) optional.Option[float64] {
	if i < 0 || i >= len(s) || math.IsNaN(s[i]) {
		return optional.None[float64]()
	}
	return optional.Some(s[i])
}

// Defined reports whether the value at i exists.
func (s Series) Defined(i int) bool {
	return s.At(i).IsSome()
}

// Last returns the newest defined value.
func (s Series) Last() optional.Option[float64] {
	for i := len(s) - 1; i >= 0; i-- {
		if !math.IsNaN(s[i]) {
			return optional.Some(s[i])
		}
	}
	return optional.None[float64]()
}

// MarshalJSON encodes undefined positions as null.
func (s Series) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('[')
	for i, v := range s {
		if i > 0 {
			buf.WriteByte(',')
		}
		if math.IsNaN(v) || math.IsInf(v, 0) {
			buf.WriteString("null")
			continue
		}
		buf.WriteString(strconv.FormatFloat(v, 'f', -1, 64))
	}
	buf.WriteByte(']')
	return buf.Bytes(), nil
}

// Round2 rounds v to two decimal places. NaN and infinities pass through.
func Round2(v float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return v
	}
	return decimal.NewFromFloat(v).Round(2).InexactFloat64()
}

// rounded returns a copy of s with every defined value rounded for output.
func rounded(s Series) Series {
	out := make(Series, len(s))
	for i, v := range s {
		out[i] = Round2(v)
	}
	return out
}
