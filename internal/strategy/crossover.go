package strategy

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"sync"
	"time"

	"github.com/alejandrodnm/paperbot/internal/domain"
	"github.com/alejandrodnm/paperbot/internal/indicator"
	"github.com/alejandrodnm/paperbot/internal/ports"
)

const (
	rsiOverbought      = 70.0
	rsiOversold        = 30.0
	rsiExtremeHigh     = 80.0
	rsiExtremeLow      = 20.0
	baseConfidence     = 0.5
	confirmationWeight = 0.1
)

// Params son los periodos y niveles de salida del cruce de medias.
type Params struct {
	ShortPeriod     int
	LongPeriod      int
	RSIPeriod       int
	VolumePeriod    int
	MaxPositionSize float64 // fracción máxima del portfolio, escalada por la confianza
	StopLossPct     float64
	TakeProfitPct   float64
	Timeframe       domain.Timeframe
	HistoryTimeout  time.Duration

	// PerSymbol guarda la última señal por símbolo. Por defecto es una sola para
	// todo el evaluador: una compra en BTC suprime la siguiente compra en ETH.
	PerSymbol bool
}

// DefaultParams: SMA 9/21, RSI 14, volumen 20, 10% máx, stop 2%, target 6%.
func DefaultParams() Params {
	return Params{
		ShortPeriod:     9,
		LongPeriod:      21,
		RSIPeriod:       14,
		VolumePeriod:    20,
		MaxPositionSize: 0.1,
		StopLossPct:     0.02,
		TakeProfitPct:   0.06,
		Timeframe:       domain.Timeframe1W,
		HistoryTimeout:  10 * time.Second,
	}
}

// Snapshot son los indicadores calculados sobre una serie.
type Snapshot struct {
	ShortSMA      float64
	LongSMA       float64
	SMAReady      bool
	RSI           float64
	MACD          indicator.MACDValue
	Volume        float64
	VolumeAverage float64
	VolumeReady   bool
}

// Compute calcula los indicadores sobre la serie completa.
func (p Params) Compute(points []domain.PricePoint) Snapshot {
	closes := domain.Closes(points)
	short, okShort := indicator.SMA(closes, p.ShortPeriod)
	long, okLong := indicator.SMA(closes, p.LongPeriod)
	volAvg, okVol := indicator.VolumeAverage(points, p.VolumePeriod)

	s := Snapshot{
		ShortSMA:      short,
		LongSMA:       long,
		SMAReady:      okShort && okLong,
		RSI:           indicator.RSI(closes, p.RSIPeriod),
		MACD:          indicator.MACD(closes),
		VolumeAverage: volAvg,
		VolumeReady:   okVol,
	}
	if len(points) > 0 {
		s.Volume = points[len(points)-1].Volume
	}
	return s
}

// Crossover detecta el cruce de la SMA corta sobre la larga entre prev y curr.
func Crossover(prev, curr Snapshot) (up, down bool) {
	if !prev.SMAReady || !curr.SMAReady {
		return false, false
	}
	up = prev.ShortSMA <= prev.LongSMA && curr.ShortSMA > curr.LongSMA
	down = prev.ShortSMA >= prev.LongSMA && curr.ShortSMA < curr.LongSMA
	return up, down
}

// Confidence puntúa una señal de cruce en [0,1].
func Confidence(s Snapshot, up, down bool) float64 {
	c := baseConfidence

	if s.LongSMA != 0 {
		trend := math.Abs(s.ShortSMA-s.LongSMA) / s.LongSMA
		c += confirmationWeight * math.Min(trend, 1)
	}

	if (up && s.RSI < rsiOverbought) || (down && s.RSI > rsiOversold) {
		c += confirmationWeight
	}
	if s.RSI > rsiExtremeHigh || s.RSI < rsiExtremeLow {
		c -= confirmationWeight
	}

	if (up && s.MACD.Histogram > 0) || (down && s.MACD.Histogram < 0) {
		c += confirmationWeight
	}

	if s.VolumeReady && s.Volume > s.VolumeAverage {
		c += confirmationWeight
	}

	return math.Min(math.Max(c, 0), 1)
}

// Evaluator aplica la estrategia de cruce de medias a un símbolo.
// Recuerda la última acción emitida para no repetir la misma señal dos veces seguidas.
type Evaluator struct {
	history ports.HistoryProvider
	params  Params

	mu         sync.Mutex
	lastAction map[string]domain.Action // clave "" salvo con Params.PerSymbol
}

// NewEvaluator crea un evaluador con los parámetros dados. Los periodos <= 0 toman el valor por defecto.
func NewEvaluator(history ports.HistoryProvider, params Params) *Evaluator {
	def := DefaultParams()
	if params.ShortPeriod <= 0 {
		params.ShortPeriod = def.ShortPeriod
	}
	if params.LongPeriod <= 0 {
		params.LongPeriod = def.LongPeriod
	}
	if params.RSIPeriod <= 0 {
		params.RSIPeriod = def.RSIPeriod
	}
	if params.VolumePeriod <= 0 {
		params.VolumePeriod = def.VolumePeriod
	}
	if params.MaxPositionSize <= 0 {
		params.MaxPositionSize = def.MaxPositionSize
	}
	if params.Timeframe == "" {
		params.Timeframe = def.Timeframe
	}
	if params.HistoryTimeout <= 0 {
		params.HistoryTimeout = def.HistoryTimeout
	}
	return &Evaluator{history: history, params: params, lastAction: make(map[string]domain.Action)}
}

// LastAction devuelve la última señal buy/sell que afecta a symbol (hold si ninguna).
func (e *Evaluator) LastAction(symbol string) domain.Action {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.last(symbol)
}

func (e *Evaluator) stateKey(symbol string) string {
	if e.params.PerSymbol {
		return symbol
	}
	return ""
}

// last con e.mu tomado.
func (e *Evaluator) last(symbol string) domain.Action {
	if a, ok := e.lastAction[e.stateKey(symbol)]; ok {
		return a
	}
	return domain.ActionHold
}

// Analyze pide el histórico del símbolo y devuelve la señal.
// Los datos insuficientes degradan a hold; solo los fallos del proveedor devuelven error.
func (e *Evaluator) Analyze(ctx context.Context, symbol string) (domain.StrategyResult, error) {
	hctx, cancel := context.WithTimeout(ctx, e.params.HistoryTimeout)
	defer cancel()

	points, err := e.history.GetHistory(hctx, symbol, e.params.Timeframe)
	if err != nil {
		return domain.StrategyResult{}, fmt.Errorf("strategy.Analyze %s: history: %w", symbol, err)
	}

	minLen := max(e.params.LongPeriod, e.params.RSIPeriod)
	if len(points) < minLen {
		slog.Debug("strategy: hold", "symbol", symbol, "points", len(points), "need", minLen,
			"err", domain.ErrInsufficientHistory)
		return domain.Hold(domain.ErrInsufficientHistory.Error()), nil
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	res := e.evaluate(symbol, points)
	slog.Debug("strategy result",
		"symbol", symbol,
		"action", res.Action,
		"confidence", fmt.Sprintf("%.2f", res.Confidence),
		"reason", res.Reason,
	)
	return res, nil
}

// evaluate decide con e.mu tomado.
func (e *Evaluator) evaluate(symbol string, points []domain.PricePoint) domain.StrategyResult {
	price := points[len(points)-1].Price
	curr := e.params.Compute(points)
	prev := e.params.Compute(points[:len(points)-1])
	up, down := Crossover(prev, curr)

	confidence := Confidence(curr, up, down)
	size := e.params.MaxPositionSize * confidence
	detail := fmt.Sprintf("RSI: %.2f, MACD hist: %.4f", curr.RSI, curr.MACD.Histogram)
	last := e.last(symbol)

	switch {
	case up && last != domain.ActionBuy && curr.RSI < rsiOverbought:
		e.lastAction[e.stateKey(symbol)] = domain.ActionBuy
		return domain.StrategyResult{
			Action:            domain.ActionBuy,
			Reason:            "Buy signal: SMA crossover up, " + detail,
			Confidence:        confidence,
			SuggestedPosition: size,
			StopLoss:          price * (1 - e.params.StopLossPct),
			TakeProfit:        price * (1 + e.params.TakeProfitPct),
			Price:             price,
		}
	case down && last != domain.ActionSell && curr.RSI > rsiOversold:
		e.lastAction[e.stateKey(symbol)] = domain.ActionSell
		return domain.StrategyResult{
			Action:            domain.ActionSell,
			Reason:            "Sell signal: SMA crossover down, " + detail,
			Confidence:        confidence,
			SuggestedPosition: size,
			StopLoss:          price * (1 + e.params.StopLossPct),
			TakeProfit:        price * (1 - e.params.TakeProfitPct),
			Price:             price,
		}
	}

	res := domain.Hold("No clear signal. " + detail)
	res.Price = price
	return res
}
