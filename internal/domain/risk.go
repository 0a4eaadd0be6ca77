package domain

// Drawdown devuelve la pérdida no realizada agregada como fracción del coste de entrada:
// Σ(PnL negativo) / Σ(coste). Las posiciones en ganancia solo suman al denominador.
func Drawdown(positions []Position) float64 {
	var loss, cost float64
	for _, p := range positions {
		cost += p.Cost()
		if p.PnL < 0 {
			loss -= p.PnL
		}
	}
	if cost <= 0 {
		return 0
	}
	return loss / cost
}

// DrawdownExceeded indica si el drawdown actual alcanza el máximo tolerado.
// Un máximo <= 0 desactiva el límite.
func DrawdownExceeded(positions []Position, maxDrawdown float64) bool {
	if maxDrawdown <= 0 {
		return false
	}
	return Drawdown(positions) >= maxDrawdown
}
