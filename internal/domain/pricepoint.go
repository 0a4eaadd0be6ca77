package domain

import "time"

// Timeframe es la ventana de histórico que se pide al proveedor.
type Timeframe string

const (
	Timeframe1H Timeframe = "1h"
	Timeframe1D Timeframe = "1d"
	Timeframe1W Timeframe = "1w"
	Timeframe1M Timeframe = "1m"
	Timeframe1Y Timeframe = "1y"
)

// Valid reports whether tf is one of the supported timeframes.
func (tf Timeframe) Valid() bool {
	switch tf {
	case Timeframe1H, Timeframe1D, Timeframe1W, Timeframe1M, Timeframe1Y:
		return true
	}
	return false
}

// Span es el rango de tiempo que cubre el timeframe, terminando ahora.
func (tf Timeframe) Span() time.Duration {
	const day = 24 * time.Hour
	switch tf {
	case Timeframe1H:
		return time.Hour
	case Timeframe1W:
		return 7 * day
	case Timeframe1M:
		return 30 * day
	case Timeframe1Y:
		return 365 * day
	}
	return day
}

// PricePoint es un punto de la serie histórica. Las series van en orden ascendente por Time.
type PricePoint struct {
	Time   time.Time
	Price  float64
	Volume float64 // 0 si el proveedor no lo informa
}

// Closes extrae los precios de una serie.
func Closes(points []PricePoint) []float64 {
	out := make([]float64, len(points))
	for i, p := range points {
		out[i] = p.Price
	}
	return out
}

// Volumes extrae los volúmenes de una serie.
func Volumes(points []PricePoint) []float64 {
	out := make([]float64, len(points))
	for i, p := range points {
		out[i] = p.Volume
	}
	return out
}
