package aggregation

import "github.com/shopspring/decimal"

// Round rounds half away from zero to the given number of decimal places.
// Goes through decimal so 58.45 rounds to 58.5 rather than the float artefact 58.4.
func Round(v float64, places int32) float64 {
	f, _ := decimal.NewFromFloat(v).Round(places).Float64()
	return f
}

// Percent returns part/whole*100 rounded to one decimal place, or 0 when whole is 0.
func Percent(part, whole float64) float64 {
	if whole == 0 {
		return 0
	}
	ratio := decimal.NewFromFloat(part).
		Mul(decimal.NewFromInt(100)).
		Div(decimal.NewFromFloat(whole))
	f, _ := ratio.Round(1).Float64()
	return f
}

// Mean returns the arithmetic mean of values, or 0 for an empty slice.
func Mean(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	sum := decimal.Zero
	for _, v := range values {
		sum = sum.Add(decimal.NewFromFloat(v))
	}
	f, _ := sum.Div(decimal.NewFromInt(int64(len(values)))).Float64()
	return f
}
