package strategy_test

import (
	"context"
	"errors"
	"math"
	"math/rand"
	"testing"
	"time"

	"github.com/alejandrodnm/paperbot/internal/domain"
	"github.com/alejandrodnm/paperbot/internal/indicator"
	"github.com/alejandrodnm/paperbot/internal/strategy"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// --- mocks ---

type mockHistory struct {
	points []domain.PricePoint
	err    error
	calls  int
	tf     domain.Timeframe
}

func (m *mockHistory) GetHistory(_ context.Context, _ string, tf domain.Timeframe) ([]domain.PricePoint, error) {
	m.calls++
	m.tf = tf
	return m.points, m.err
}

// --- helpers ---

func series(prices []float64, lastVolume float64) []domain.PricePoint {
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	out := make([]domain.PricePoint, len(prices))
	for i, p := range prices {
		out[i] = domain.PricePoint{Time: start.Add(time.Duration(i) * time.Hour), Price: p, Volume: 100}
	}
	out[len(out)-1].Volume = lastVolume
	return out
}

// zigzag alterna even/odd durante n-1 puntos y termina en last.
func zigzag(n int, even, odd, last float64) []float64 {
	out := make([]float64, n)
	for i := 0; i < n-1; i++ {
		if i%2 == 0 {
			out[i] = even
		} else {
			out[i] = odd
		}
	}
	out[n-1] = last
	return out
}

// --- tests ---

func TestAnalyze_InsufficientHistory(t *testing.T) {
	h := &mockHistory{points: series(zigzag(15, 99, 100, 101), 100)}
	ev := strategy.NewEvaluator(h, strategy.DefaultParams())

	res, err := ev.Analyze(context.Background(), "ETH")
	require.NoError(t, err)
	assert.Equal(t, domain.ActionHold, res.Action)
	assert.Equal(t, 0.0, res.Confidence)
	assert.Equal(t, 0.0, res.SuggestedPosition)
	assert.Equal(t, "insufficient data", res.Reason)
}

func TestAnalyze_EmptyHistoryIsHold(t *testing.T) {
	ev := strategy.NewEvaluator(&mockHistory{}, strategy.DefaultParams())

	res, err := ev.Analyze(context.Background(), "ETH")
	require.NoError(t, err)
	assert.Equal(t, domain.ActionHold, res.Action)
}

func TestAnalyze_ProviderErrorPropagates(t *testing.T) {
	h := &mockHistory{err: domain.ErrNetwork}
	ev := strategy.NewEvaluator(h, strategy.DefaultParams())

	_, err := ev.Analyze(context.Background(), "BTC")
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrNetwork))
}

func TestAnalyze_BuyOnCrossoverUp(t *testing.T) {
	// zigzag 99/100 deja la SMA9 justo por debajo de la SMA21; el salto a 101 la cruza.
	// RSI sobre 14 deltas = 53.3
	h := &mockHistory{points: series(zigzag(30, 99, 100, 101), 500)}
	params := strategy.DefaultParams()
	ev := strategy.NewEvaluator(h, params)

	res, err := ev.Analyze(context.Background(), "BTC")
	require.NoError(t, err)

	assert.Equal(t, domain.ActionBuy, res.Action)
	assert.Contains(t, res.Reason, "crossover up")
	assert.GreaterOrEqual(t, res.Confidence, 0.7, "base + RSI + volumen")
	assert.LessOrEqual(t, res.Confidence, 1.0)
	assert.InDelta(t, params.MaxPositionSize*res.Confidence, res.SuggestedPosition, 1e-12)
	assert.InDelta(t, 98.98, res.StopLoss, 1e-9)
	assert.InDelta(t, 107.06, res.TakeProfit, 1e-9)
	assert.Equal(t, 101.0, res.Price)
	assert.Equal(t, domain.ActionBuy, ev.LastAction("BTC"))
	assert.Equal(t, params.Timeframe, h.tf)
}

func TestAnalyze_RepeatedSignalSuppressed(t *testing.T) {
	h := &mockHistory{points: series(zigzag(30, 99, 100, 101), 500)}
	ev := strategy.NewEvaluator(h, strategy.DefaultParams())

	first, err := ev.Analyze(context.Background(), "BTC")
	require.NoError(t, err)
	require.Equal(t, domain.ActionBuy, first.Action)

	second, err := ev.Analyze(context.Background(), "BTC")
	require.NoError(t, err)
	assert.Equal(t, domain.ActionHold, second.Action)
	assert.Equal(t, 0.0, second.Confidence)
}

func TestAnalyze_SharedSignalStateAcrossSymbols(t *testing.T) {
	h := &mockHistory{points: series(zigzag(30, 99, 100, 101), 500)}
	ev := strategy.NewEvaluator(h, strategy.DefaultParams())

	btc, err := ev.Analyze(context.Background(), "BTCUSDT")
	require.NoError(t, err)
	require.Equal(t, domain.ActionBuy, btc.Action)

	eth, err := ev.Analyze(context.Background(), "ETHUSDT")
	require.NoError(t, err)
	assert.Equal(t, domain.ActionHold, eth.Action, "la compra en BTC suprime la de ETH")
	assert.Equal(t, domain.ActionBuy, ev.LastAction("ETHUSDT"))
}

func TestAnalyze_PerSymbolSignalState(t *testing.T) {
	h := &mockHistory{points: series(zigzag(30, 99, 100, 101), 500)}
	params := strategy.DefaultParams()
	params.PerSymbol = true
	ev := strategy.NewEvaluator(h, params)

	btc, err := ev.Analyze(context.Background(), "BTCUSDT")
	require.NoError(t, err)
	require.Equal(t, domain.ActionBuy, btc.Action)

	eth, err := ev.Analyze(context.Background(), "ETHUSDT")
	require.NoError(t, err)
	assert.Equal(t, domain.ActionBuy, eth.Action)

	again, err := ev.Analyze(context.Background(), "BTCUSDT")
	require.NoError(t, err)
	assert.Equal(t, domain.ActionHold, again.Action)
	assert.Equal(t, domain.ActionHold, ev.LastAction("SOLUSDT"))
}

func TestAnalyze_SellOnCrossoverDown(t *testing.T) {
	// espejo: zigzag 100/99 con caída final a 97. RSI = 43.75
	h := &mockHistory{points: series(zigzag(30, 100, 99, 97), 100)}
	ev := strategy.NewEvaluator(h, strategy.DefaultParams())

	res, err := ev.Analyze(context.Background(), "BTC")
	require.NoError(t, err)

	assert.Equal(t, domain.ActionSell, res.Action)
	assert.Contains(t, res.Reason, "crossover down")
	assert.InDelta(t, 97*1.02, res.StopLoss, 1e-9, "stop por encima en ventas")
	assert.InDelta(t, 97*0.94, res.TakeProfit, 1e-9)
}

func TestAnalyze_NoCrossoverIsHold(t *testing.T) {
	flat := make([]float64, 30)
	for i := range flat {
		flat[i] = 100
	}
	h := &mockHistory{points: series(flat, 100)}
	ev := strategy.NewEvaluator(h, strategy.DefaultParams())

	res, err := ev.Analyze(context.Background(), "BTC")
	require.NoError(t, err)
	assert.Equal(t, domain.ActionHold, res.Action)
	assert.Equal(t, 0.0, res.Confidence)
	assert.Contains(t, res.Reason, "No clear signal")
}

func TestCrossover_FiresOnceAtTransition(t *testing.T) {
	params := strategy.Params{ShortPeriod: 3, LongPeriod: 5, RSIPeriod: 3, VolumePeriod: 3}

	// 10 puntos planos y luego subida monótona: la SMA corta supera a la larga en el índice 10.
	prices := make([]float64, 0, 20)
	for i := 0; i < 10; i++ {
		prices = append(prices, 100)
	}
	for i := 1; i <= 10; i++ {
		prices = append(prices, 100+float64(i))
	}
	points := series(prices, 100)

	var ups []int
	for i := params.LongPeriod + 1; i <= len(points); i++ {
		prev := params.Compute(points[:i-1])
		curr := params.Compute(points[:i])
		up, down := strategy.Crossover(prev, curr)
		assert.False(t, down)
		if up {
			ups = append(ups, i-1)
		}
	}
	assert.Equal(t, []int{10}, ups)
}

func TestCrossover_NotReady(t *testing.T) {
	up, down := strategy.Crossover(strategy.Snapshot{}, strategy.Snapshot{SMAReady: true, ShortSMA: 2, LongSMA: 1})
	assert.False(t, up)
	assert.False(t, down)
}

func TestConfidence_AlwaysClamped(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	for i := 0; i < 2000; i++ {
		s := strategy.Snapshot{
			ShortSMA:      (rng.Float64() - 0.5) * math.Pow(10, float64(rng.Intn(12))),
			LongSMA:       (rng.Float64() - 0.5) * math.Pow(10, float64(rng.Intn(12))),
			RSI:           rng.Float64() * 100,
			MACD:          indicator.MACDValue{Histogram: rng.NormFloat64() * 1e6},
			Volume:        rng.Float64() * 1e9,
			VolumeAverage: rng.Float64() * 1e9,
			VolumeReady:   rng.Intn(2) == 0,
		}
		c := strategy.Confidence(s, rng.Intn(2) == 0, rng.Intn(2) == 0)
		require.GreaterOrEqual(t, c, 0.0)
		require.LessOrEqual(t, c, 1.0)
	}
}

func TestConfidence_AllConfirmations(t *testing.T) {
	s := strategy.Snapshot{
		ShortSMA:      110,
		LongSMA:       100,
		RSI:           55,
		MACD:          indicator.MACDValue{Histogram: 0.5},
		Volume:        200,
		VolumeAverage: 100,
		VolumeReady:   true,
	}
	// 0.5 + 0.1×0.1 + 0.1 (RSI) + 0.1 (MACD) + 0.1 (volumen)
	assert.InDelta(t, 0.81, strategy.Confidence(s, true, false), 1e-12)
}

func TestConfidence_ExtremeRSIPenalty(t *testing.T) {
	s := strategy.Snapshot{ShortSMA: 100, LongSMA: 100, RSI: 85}
	assert.InDelta(t, 0.4, strategy.Confidence(s, true, false), 1e-12)
}
