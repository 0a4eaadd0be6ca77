// Package indicator implementa los indicadores técnicos sobre series de precios.
// Todas las funciones son puras: misma entrada, misma salida.
package indicator

import "github.com/alejandrodnm/paperbot/internal/domain"

const (
	macdFast   = 12
	macdSlow   = 26
	macdSignal = 9

	// RSINeutral se devuelve cuando no hay suficientes deltas.
	RSINeutral = 50.0
)

// MACDValue agrupa línea, señal e histograma.
type MACDValue struct {
	Line      float64
	Signal    float64
	Histogram float64
}

// SMA es la media de los últimos period valores.
// ok es false si la serie tiene menos de period valores.
func SMA(values []float64, period int) (value float64, ok bool) {
	if period <= 0 || len(values) < period {
		return 0, false
	}
	sum := 0.0
	for _, v := range values[len(values)-period:] {
		sum += v
	}
	return sum / float64(period), true
}

// EMA con multiplicador 2/(period+1), sembrada con el PRIMER valor de la serie e
// iterada sobre la serie completa. El resultado depende de la longitud total del
// histórico, no solo de la ventana; se conserva así por paridad con resultados previos.
//
// Con menos de period valores devuelve el último valor (0 si la serie está vacía).
func EMA(values []float64, period int) float64 {
	if len(values) == 0 {
		return 0
	}
	if len(values) < period {
		return values[len(values)-1]
	}
	k := 2 / float64(period+1)
	ema := values[0]
	for _, v := range values[1:] {
		ema = (v-ema)*k + ema
	}
	return ema
}

// RSI sobre los últimos period deltas con medias simples de ganancias y pérdidas.
// Devuelve 100 si no hubo pérdidas y RSINeutral si faltan datos.
func RSI(values []float64, period int) float64 {
	if period <= 0 || len(values) < period+1 {
		return RSINeutral
	}
	var gains, losses float64
	n := len(values)
	for i := 1; i <= period; i++ {
		diff := values[n-i] - values[n-i-1]
		if diff >= 0 {
			gains += diff
		} else {
			losses -= diff
		}
	}
	if losses == 0 {
		return 100
	}
	rs := gains / losses
	return 100 - 100/(1+rs)
}

// MACD = EMA12 − EMA26. La señal es la EMA9 de los últimos 9 valores de la línea,
// cada uno recalculado sobre el prefijo de la serie que termina en ese punto
// (índices < 25 cuentan como 0). Es O(n²) sobre la ventana pero acotado por el
// tamaño del histórico. Con menos de 26 valores devuelve ceros.
//
// TODO: un EMA incremental evitaría recalcular prefijos sin cambiar resultados.
func MACD(values []float64) MACDValue {
	if len(values) < macdSlow {
		return MACDValue{}
	}
	line := macdLine(values)

	start := len(values) - macdSignal
	if start < 0 {
		start = 0
	}
	history := make([]float64, 0, len(values)-start)
	for i := start; i < len(values); i++ {
		if i < macdSlow-1 {
			history = append(history, 0)
			continue
		}
		history = append(history, macdLine(values[:i+1]))
	}

	signal := EMA(history, macdSignal)
	return MACDValue{Line: line, Signal: signal, Histogram: line - signal}
}

func macdLine(values []float64) float64 {
	return EMA(values, macdFast) - EMA(values, macdSlow)
}

// VolumeAverage es la SMA de los volúmenes de los últimos period puntos.
func VolumeAverage(points []domain.PricePoint, period int) (float64, bool) {
	return SMA(domain.Volumes(points), period)
}
