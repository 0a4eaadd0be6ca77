package indicator_test

import (
	"testing"
	"time"

	"github.com/alejandrodnm/paperbot/internal/domain"
	"github.com/alejandrodnm/paperbot/internal/indicator"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/thrasher-corp/gct-ta/indicators"
)

func ramp(n int, start, step float64) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = start + float64(i)*step
	}
	return out
}

// --- SMA ---

func TestSMA_TrailingWindow(t *testing.T) {
	v, ok := indicator.SMA([]float64{1, 2, 3, 4, 5}, 3)
	require.True(t, ok)
	assert.InDelta(t, 4.0, v, 1e-12)
}

func TestSMA_InsufficientData(t *testing.T) {
	v, ok := indicator.SMA([]float64{1, 2}, 3)
	assert.False(t, ok)
	assert.Equal(t, 0.0, v)

	_, ok = indicator.SMA([]float64{1, 2}, 0)
	assert.False(t, ok)
}

func TestSMA_MatchesGCTTA(t *testing.T) {
	values := []float64{10, 11, 12.5, 11.7, 13, 14.2, 13.8, 15, 16.1, 15.4, 17}
	for _, period := range []int{2, 5, 9} {
		ref := indicators.SMA(values, period)
		got, ok := indicator.SMA(values, period)
		require.True(t, ok)
		assert.InDelta(t, ref[len(ref)-1], got, 1e-9, "period %d", period)
	}
}

// --- EMA ---

func TestEMA_SeededWithFirstValue(t *testing.T) {
	// k = 2/3: 1 → 1.6667 → 2.5556
	assert.InDelta(t, 2.5555556, indicator.EMA([]float64{1, 2, 3}, 2), 1e-6)
}

func TestEMA_DependsOnFullHistory(t *testing.T) {
	short := []float64{5, 6, 7, 8}
	long := append([]float64{100, 100, 100}, short...)
	assert.NotEqual(t, indicator.EMA(short, 3), indicator.EMA(long, 3),
		"la semilla es el primer punto de toda la serie, no de la ventana")
}

func TestEMA_ShortSeriesReturnsLast(t *testing.T) {
	assert.Equal(t, 7.0, indicator.EMA([]float64{5, 7}, 12))
	assert.Equal(t, 0.0, indicator.EMA(nil, 12))
}

// --- RSI ---

func TestRSI_Neutral(t *testing.T) {
	assert.Equal(t, indicator.RSINeutral, indicator.RSI([]float64{1, 2, 3}, 14))
}

func TestRSI_NoLosses(t *testing.T) {
	assert.Equal(t, 100.0, indicator.RSI(ramp(20, 1, 1), 14))
}

func TestRSI_Mixed(t *testing.T) {
	// últimos 3 deltas: +1, -1, +1 → RS = 2 → 66.67
	assert.InDelta(t, 66.6667, indicator.RSI([]float64{1, 2, 1, 2}, 3), 1e-3)
}

func TestRSI_Bounded(t *testing.T) {
	rsi := indicator.RSI(ramp(20, 100, -2), 14)
	assert.GreaterOrEqual(t, rsi, 0.0)
	assert.LessOrEqual(t, rsi, 100.0)
	assert.InDelta(t, 0.0, rsi, 1e-9)
}

// --- MACD ---

func TestMACD_InsufficientData(t *testing.T) {
	assert.Equal(t, indicator.MACDValue{}, indicator.MACD(ramp(25, 1, 1)))
}

func TestMACD_FlatSeriesIsZero(t *testing.T) {
	flat := make([]float64, 40)
	for i := range flat {
		flat[i] = 50
	}
	m := indicator.MACD(flat)
	assert.InDelta(t, 0.0, m.Line, 1e-12)
	assert.InDelta(t, 0.0, m.Signal, 1e-12)
	assert.InDelta(t, 0.0, m.Histogram, 1e-12)
}

func TestMACD_SignalFromPrefixRecomputation(t *testing.T) {
	values := ramp(30, 100, 1.5)
	m := indicator.MACD(values)

	line := func(v []float64) float64 { return indicator.EMA(v, 12) - indicator.EMA(v, 26) }

	// n=30 → ventana de índices 21..29; 21..24 cuentan como 0
	history := []float64{0, 0, 0, 0}
	for i := 25; i < 30; i++ {
		history = append(history, line(values[:i+1]))
	}

	assert.InDelta(t, line(values), m.Line, 1e-12)
	assert.InDelta(t, indicator.EMA(history, 9), m.Signal, 1e-12)
	assert.InDelta(t, m.Line-m.Signal, m.Histogram, 1e-12)
	assert.Greater(t, m.Line, 0.0, "tendencia alcista → EMA rápida por encima de la lenta")
}

// --- Volume ---

func TestVolumeAverage(t *testing.T) {
	now := time.Now()
	points := []domain.PricePoint{
		{Time: now, Price: 1, Volume: 10},
		{Time: now.Add(time.Hour), Price: 1, Volume: 20},
		{Time: now.Add(2 * time.Hour), Price: 1, Volume: 30},
	}
	avg, ok := indicator.VolumeAverage(points, 2)
	require.True(t, ok)
	assert.InDelta(t, 25.0, avg, 1e-12)

	_, ok = indicator.VolumeAverage(points, 5)
	assert.False(t, ok)
}

// --- purity ---

func TestIndicators_Pure(t *testing.T) {
	values := []float64{3, 1, 4, 1, 5, 9, 2, 6, 5, 3, 5, 8, 9, 7, 9, 3, 2, 3, 8, 4, 6, 2, 6, 4, 3, 3, 8, 3}
	orig := append([]float64(nil), values...)

	for _, period := range []int{3, 14, 40} {
		a, okA := indicator.SMA(values, period)
		b, okB := indicator.SMA(values, period)
		assert.Equal(t, a, b)
		assert.Equal(t, okA, okB)
		assert.Equal(t, indicator.EMA(values, period), indicator.EMA(values, period))
		assert.Equal(t, indicator.RSI(values, period), indicator.RSI(values, period))
	}
	assert.Equal(t, indicator.MACD(values), indicator.MACD(values))
	assert.Equal(t, orig, values, "la entrada no se modifica")
}
