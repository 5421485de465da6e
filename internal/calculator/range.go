package calculator

import (
	"errors"
	"math"

	"TickerLens/internal/model"
)

// Autoscale padding applied to the price axis.
const (
	lowerPad = 0.95
	upperPad = 1.05
)

var errNoBars = errors.New("no bars provided")

// CalculateRange returns the highest high and lowest low of bars. Bars
// without High/Low fall back to the close.
func CalculateRange(bars model.Series) (high, low float64, err error) {
	if len(bars) == 0 {
		return 0, 0, errNoBars
	}
	high = math.Inf(-1)
	low = math.Inf(1)
	for _, b := range bars {
		h, l := b.High, b.Low
		if h == 0 && l == 0 {
			h, l = b.Close, b.Close
		}
		high = math.Max(high, h)
		low = math.Min(low, l)
	}
	return high, low, nil
}

// CalculatePosition returns where current sits within [low, high] (0.0~1.0).
func CalculatePosition(current, high, low float64) (float64, error) {
	if high == low {
		return 0.5, nil
	}
	if high < low {
		return 0, errors.New("high must be >= low")
	}
	pos := (current - low) / (high - low)
	return math.Min(math.Max(pos, 0), 1), nil
}

// Autoscale returns the price axis bounds for bars: the lowest price less 5%
// and the highest price plus 5%, over open, high, low and close.
func Autoscale(bars model.Series) (lo, hi float64, err error) {
	if len(bars) == 0 {
		return 0, 0, errNoBars
	}
	lo, hi = math.Inf(1), math.Inf(-1)
	for _, b := range bars {
		for _, v := range [...]float64{b.Open, b.High, b.Low, b.Close} {
			if v == 0 {
				continue
			}
			lo = math.Min(lo, v)
			hi = math.Max(hi, v)
		}
	}
	if math.IsInf(lo, 1) {
		return 0, 0, errors.New("bars carry no prices")
	}
	return lo * lowerPad, hi * upperPad, nil
}

// CalculateVolume returns the mean, minimum and maximum volume of bars.
func CalculateVolume(bars model.Series) (model.VolumeStats, error) {
	if len(bars) == 0 {
		return model.VolumeStats{}, errNoBars
	}
	v := model.VolumeStats{Min: math.Inf(1), Max: math.Inf(-1)}
	sum := 0.0
	for _, b := range bars {
		sum += b.Volume
		v.Min = math.Min(v.Min, b.Volume)
		v.Max = math.Max(v.Max, b.Volume)
	}
	v.Mean = sum / float64(len(bars))
	return v, nil
}
