package calculator

import (
	"errors"

	"TickerLens/internal/model"
)

// CalculateSMA computes the simple moving average of the last period prices.
func CalculateSMA(prices []float64, period int) (float64, error) {
	if period <= 0 {
		return 0, errors.New("period must be positive")
	}
	if len(prices) < period {
		return 0, errors.New("not enough data for SMA calculation")
	}
	sum := 0.0
	for i := len(prices) - period; i < len(prices); i++ {
		sum += prices[i]
	}
	return sum / float64(period), nil
}

// RollingMean returns the trailing mean of every point over at most period
// values. Until period values are available it is the mean of all values so
// far, so the result has the same length as prices.
func RollingMean(prices []float64, period int) ([]float64, error) {
	if period <= 0 {
		return nil, errors.New("period must be positive")
	}
	out := make([]float64, len(prices))
	sum := 0.0
	for i, p := range prices {
		sum += p
		n := i + 1
		if n > period {
			sum -= prices[i-period]
			n = period
		}
		out[i] = sum / float64(n)
	}
	return out, nil
}

// CalculateMA50 returns the 50-bar rolling mean of the closes.
func CalculateMA50(s model.Series) []float64 {
	ma, _ := RollingMean(s.Closes(), 50)
	return ma
}

// CalculateMA200 returns the 200-bar rolling mean of the closes.
func CalculateMA200(s model.Series) []float64 {
	ma, _ := RollingMean(s.Closes(), 200)
	return ma
}
