package ports

import (
	"context"

	"github.com/alejandrodnm/paperbot/internal/domain"
)

// PriceOracle devuelve el precio actual de un símbolo.
// Los errores envuelven domain.ErrSymbolNotFound, domain.ErrNetwork o domain.ErrTimeout.
type PriceOracle interface {
	GetPrice(ctx context.Context, symbol string) (float64, error)
}

// HistoryProvider devuelve la serie histórica de un símbolo en orden ascendente por tiempo.
// Una serie vacía se interpreta como "datos insuficientes", nunca como precio cero.
type HistoryProvider interface {
	GetHistory(ctx context.Context, symbol string, tf domain.Timeframe) ([]domain.PricePoint, error)
}
