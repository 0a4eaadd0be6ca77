package bot

import (
	"math"

	"github.com/shopspring/decimal"
)

// DefaultQuantityPrecision son los decimales a los que se trunca la cantidad comprada.
const DefaultQuantityPrecision int32 = 6

// SizeBuy calcula floor(portfolioValue × fraction / price) a precision decimales.
// Devuelve 0 si alguna entrada no es positiva y finita.
func SizeBuy(portfolioValue, fraction, price float64, precision int32) float64 {
	if !positive(portfolioValue) || !positive(fraction) || !positive(price) {
		return 0
	}
	qty := decimal.NewFromFloat(portfolioValue).
		Mul(decimal.NewFromFloat(fraction)).
		Div(decimal.NewFromFloat(price)).
		Truncate(precision)
	return qty.InexactFloat64()
}

func positive(v float64) bool {
	return v > 0 && !math.IsInf(v, 0)
}
