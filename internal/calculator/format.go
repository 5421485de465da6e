package calculator

import (
	"math"
	"strings"

	"github.com/shopspring/decimal"
)

var magnitudes = []string{"", "K", "M", "B", "T"}

// FormatCompact rounds num to three significant digits and abbreviates
// thousands: 1234567 -> "1.23M", 999.5 -> "1K", 0.01234 -> "0.0123".
func FormatCompact(num float64) string {
	if num == 0 || math.IsNaN(num) || math.IsInf(num, 0) {
		return "0"
	}
	exp := int32(math.Floor(math.Log10(math.Abs(num))))
	d := decimal.NewFromFloat(num).Round(2 - exp)

	thousand := decimal.NewFromInt(1000)
	mag := 0
	for d.Abs().GreaterThanOrEqual(thousand) && mag < len(magnitudes)-1 {
		d = d.Div(thousand)
		mag++
	}
	return d.String() + magnitudes[mag]
}

// FormatMoney renders v as dollars with thousands separators and two
// decimals: 1234.5 -> "$1,234.50".
func FormatMoney(v float64) string {
	d := decimal.NewFromFloat(v).Round(2)
	sign := ""
	if d.IsNegative() {
		sign = "-"
		d = d.Neg()
	}
	s := d.StringFixed(2)
	whole, frac, _ := strings.Cut(s, ".")
	return sign + "$" + groupThousands(whole) + "." + frac
}

// FormatDelta renders a fractional change with its direction marker:
// 0.01234 -> "▲ 1.23%".
func FormatDelta(delta float64) string {
	marker := "▲"
	if delta < 0 {
		marker = "▼"
	}
	pct := decimal.NewFromFloat(math.Abs(delta)).Mul(decimal.NewFromInt(100)).StringFixed(2)
	return marker + " " + pct + "%"
}

func groupThousands(digits string) string {
	if len(digits) <= 3 {
		return digits
	}
	var b strings.Builder
	lead := len(digits) % 3
	if lead > 0 {
		b.WriteString(digits[:lead])
	}
	for i := lead; i < len(digits); i += 3 {
		if b.Len() > 0 {
			b.WriteByte(',')
		}
		b.WriteString(digits[i : i+3])
	}
	return b.String()
}
