package bot

// bot.go — scheduler del paper trading bot.
//
// Cada pasada recorre los símbolos en orden y de uno en uno: analiza (con
// reintentos), dimensiona bajo los límites de riesgo y ejecuta contra el ledger.
// El fallo de un símbolo nunca aborta la pasada.

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/alejandrodnm/paperbot/internal/domain"
	"github.com/alejandrodnm/paperbot/internal/ports"
	"github.com/alejandrodnm/paperbot/internal/retry"
)

const (
	DefaultInterval     = 5 * time.Minute
	DefaultPriceTimeout = 10 * time.Second
)

// ErrAllSymbolsFailed: ningún símbolo de la pasada pudo analizarse.
var ErrAllSymbolsFailed = errors.New("all symbols failed")

// Analyzer produce la señal para un símbolo.
type Analyzer interface {
	Analyze(ctx context.Context, symbol string) (domain.StrategyResult, error)
}

// Trader es la parte del ledger que usa el bot.
type Trader interface {
	TryBuy(ctx context.Context, symbol string, quantity float64, params domain.OrderParameters) error
	TrySell(ctx context.Context, symbol string, quantity float64, reason domain.TradeReason) error
	Position(symbol string) (domain.Position, bool)
	Snapshot() domain.AccountSnapshot
}

// Config contiene la configuración del bot.
type Config struct {
	Symbols           []string
	Interval          time.Duration
	Risk              domain.RiskParameters
	Retry             retry.Policy
	QuantityPrecision int32
	PriceTimeout      time.Duration
}

// DefaultConfig devuelve la configuración por defecto para symbols.
func DefaultConfig(symbols ...string) Config {
	return Config{
		Symbols:           symbols,
		Interval:          DefaultInterval,
		Risk:              domain.RiskParameters{MaxPositionSize: 0.1, MaxDrawdown: 0.2, MinConfidence: 0.6},
		Retry:             retry.DefaultPolicy(),
		QuantityPrecision: DefaultQuantityPrecision,
		PriceTimeout:      DefaultPriceTimeout,
	}
}

// PassResult resume una pasada completa.
type PassResult struct {
	ID             string
	StartedAt      time.Time
	Duration       time.Duration
	PortfolioValue float64
	Updates        []domain.BotUpdate
	Trades         int
	Holds          int
	Skipped        int
	Failed         int // análisis agotó reintentos
	ExecFailed     int // la ejecución falló o el ledger la rechazó; solo se loguea
}

// Bot es el orquestador del loop de trading.
type Bot struct {
	cfg      Config
	analyzer Analyzer
	trader   Trader
	oracle   ports.PriceOracle    // opcional: valora posiciones al inicio de cada pasada
	notifier ports.UpdateNotifier // opcional
	now      func() time.Time

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// New crea un Bot con todas las dependencias inyectadas. oracle y notifier pueden ser nil.
func New(
	cfg Config,
	analyzer Analyzer,
	trader Trader,
	oracle ports.PriceOracle,
	notifier ports.UpdateNotifier,
) (*Bot, error) {
	if len(cfg.Symbols) == 0 {
		return nil, errors.New("bot.New: no symbols configured")
	}
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultInterval
	}
	if cfg.Retry.MaxAttempts <= 0 {
		cfg.Retry = retry.DefaultPolicy()
	}
	if cfg.QuantityPrecision <= 0 {
		cfg.QuantityPrecision = DefaultQuantityPrecision
	}
	if cfg.PriceTimeout <= 0 {
		cfg.PriceTimeout = DefaultPriceTimeout
	}
	return &Bot{
		cfg:      cfg,
		analyzer: analyzer,
		trader:   trader,
		oracle:   oracle,
		notifier: notifier,
		now:      time.Now,
	}, nil
}

// Start ejecuta una pasada inmediata y programa las siguientes cada cfg.Interval.
// Si el bot ya está corriendo no hace nada. Un error en la pasada inicial deja el
// bot parado y se devuelve al llamante.
func (b *Bot) Start(ctx context.Context) error {
	b.mu.Lock()
	if b.cancel != nil {
		b.mu.Unlock()
		return nil
	}
	runCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	b.cancel, b.done = cancel, done
	b.mu.Unlock()

	slog.Info("bot starting",
		"symbols", b.cfg.Symbols,
		"interval", b.cfg.Interval,
		"min_confidence", b.cfg.Risk.MinConfidence,
		"max_position", b.cfg.Risk.MaxPositionSize,
	)

	if _, err := b.RunPass(runCtx); err != nil {
		cancel()
		b.mu.Lock()
		if b.done == done {
			b.cancel, b.done = nil, nil
		}
		b.mu.Unlock()
		close(done)
		return fmt.Errorf("bot.Start: initial pass: %w", err)
	}

	go b.loop(runCtx, done)
	return nil
}

// Stop cancela el loop y espera a que termine la pasada en curso. Idempotente.
func (b *Bot) Stop() {
	b.mu.Lock()
	cancel, done := b.cancel, b.done
	b.cancel, b.done = nil, nil
	b.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
	slog.Info("bot stopped")
}

// Running indica si el loop está activo.
func (b *Bot) Running() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.cancel != nil
}

func (b *Bot) loop(ctx context.Context, done chan struct{}) {
	defer close(done)

	ticker := time.NewTicker(b.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			// la pasada en curso termina aunque se pida Stop
			if _, err := b.RunPass(context.WithoutCancel(ctx)); err != nil {
				slog.Error("bot pass failed", "err", err)
			}
		}
	}
}

// Drawdown devuelve la pérdida no realizada de la cuenta como fracción del coste.
func (b *Bot) Drawdown() float64 {
	return domain.Drawdown(b.trader.Snapshot().Positions)
}

// DrawdownExceeded compara Drawdown con Risk.MaxDrawdown.
func (b *Bot) DrawdownExceeded() bool {
	return domain.DrawdownExceeded(b.trader.Snapshot().Positions, b.cfg.Risk.MaxDrawdown)
}

// RunPass ejecuta exactamente una pasada sobre todos los símbolos.
// Solo devuelve error si ctx se cancela o si ningún símbolo pudo analizarse;
// las ejecuciones rechazadas o fallidas se cuentan en ExecFailed y no son error.
func (b *Bot) RunPass(ctx context.Context) (*PassResult, error) {
	res := &PassResult{ID: uuid.New().String(), StartedAt: b.now()}
	res.PortfolioValue = b.portfolioValue(ctx, b.trader.Snapshot())

	for _, symbol := range b.cfg.Symbols {
		if err := ctx.Err(); err != nil {
			return res, fmt.Errorf("bot.RunPass: %w", err)
		}
		switch b.processSymbol(ctx, res, symbol) {
		case outcomeTraded:
			res.Trades++
		case outcomeHold:
			res.Holds++
		case outcomeSkipped:
			res.Skipped++
		case outcomeFailed:
			res.Failed++
		case outcomeExecFailed:
			res.ExecFailed++
		}
	}
	res.Duration = time.Since(res.StartedAt)

	slog.Info("bot pass complete",
		"pass", res.ID,
		"portfolio_value", fmt.Sprintf("%.2f", res.PortfolioValue),
		"trades", res.Trades,
		"holds", res.Holds,
		"skipped", res.Skipped,
		"failed", res.Failed,
		"exec_failed", res.ExecFailed,
		"duration", res.Duration.Round(time.Millisecond),
	)

	if res.Failed == len(b.cfg.Symbols) {
		return res, fmt.Errorf("bot.RunPass: %w (%d)", ErrAllSymbolsFailed, res.Failed)
	}
	return res, nil
}

type outcome int

const (
	outcomeHold outcome = iota
	outcomeSkipped
	outcomeTraded
	outcomeFailed
	outcomeExecFailed
)

func (b *Bot) processSymbol(ctx context.Context, pass *PassResult, symbol string) outcome {
	result, err := retry.DoValue(ctx, b.cfg.Retry, "analyze "+symbol,
		func(ctx context.Context) (domain.StrategyResult, error) {
			return b.analyzer.Analyze(ctx, symbol)
		})
	if err != nil {
		slog.Error("bot: analysis failed", "symbol", symbol, "err", err)
		b.emit(pass, domain.BotUpdate{
			Symbol: symbol,
			Action: domain.ActionError,
			Reason: err.Error(),
		})
		return outcomeFailed
	}

	if result.Action == domain.ActionHold {
		slog.Debug("bot: hold", "symbol", symbol, "reason", result.Reason)
		return outcomeHold
	}
	if result.Confidence < b.cfg.Risk.MinConfidence {
		slog.Info("bot: confidence below threshold",
			"symbol", symbol,
			"action", result.Action,
			"confidence", fmt.Sprintf("%.2f", result.Confidence),
			"min", b.cfg.Risk.MinConfidence,
		)
		return outcomeSkipped
	}

	order, ok := b.size(pass, symbol, result)
	if !ok {
		return outcomeSkipped
	}

	err = retry.Do(ctx, b.cfg.Retry, string(result.Action)+" "+symbol, func(ctx context.Context) error {
		err := b.execute(ctx, symbol, result, order.quantity)
		if domain.IsRejection(err) {
			return retry.Permanent(err)
		}
		return err
	})
	if err != nil {
		slog.Error("bot: execution failed", "symbol", symbol, "action", result.Action, "err", err)
		return outcomeExecFailed
	}

	b.emit(pass, domain.BotUpdate{
		Symbol:       symbol,
		Action:       result.Action,
		Reason:       result.Reason,
		Confidence:   result.Confidence,
		StopLoss:     result.StopLoss,
		TakeProfit:   result.TakeProfit,
		PositionSize: order.fraction,
		Quantity:     order.quantity,
		Price:        result.Price,
	})
	return outcomeTraded
}

type sizedOrder struct {
	quantity float64
	fraction float64
}

// size calcula la cantidad a operar. ok=false si la operación debe saltarse.
func (b *Bot) size(pass *PassResult, symbol string, result domain.StrategyResult) (sizedOrder, bool) {
	switch result.Action {
	case domain.ActionBuy:
		if b.cfg.Risk.EnforceDrawdown && b.DrawdownExceeded() {
			slog.Warn("bot: drawdown limit reached, buy skipped",
				"symbol", symbol,
				"drawdown", fmt.Sprintf("%.4f", b.Drawdown()),
				"max", b.cfg.Risk.MaxDrawdown,
			)
			return sizedOrder{}, false
		}
		fraction := min(result.SuggestedPosition, b.cfg.Risk.MaxPositionSize)
		qty := SizeBuy(pass.PortfolioValue, fraction, result.Price, b.cfg.QuantityPrecision)
		if qty <= 0 {
			slog.Warn("bot: buy skipped",
				"symbol", symbol,
				"err", domain.ErrInvalidQuantity,
				"portfolio_value", pass.PortfolioValue,
				"fraction", fraction,
				"price", result.Price,
			)
			return sizedOrder{}, false
		}
		return sizedOrder{quantity: qty, fraction: fraction}, true

	case domain.ActionSell:
		pos, ok := b.trader.Position(symbol)
		if !ok || pos.Quantity <= 0 {
			slog.Info("bot: sell skipped, no open position", "symbol", symbol)
			return sizedOrder{}, false
		}
		return sizedOrder{quantity: pos.Quantity, fraction: result.SuggestedPosition}, true
	}

	slog.Warn("bot: unknown action", "symbol", symbol, "action", result.Action)
	return sizedOrder{}, false
}

func (b *Bot) execute(ctx context.Context, symbol string, result domain.StrategyResult, qty float64) error {
	if result.Action == domain.ActionBuy {
		return b.trader.TryBuy(ctx, symbol, qty, domain.OrderParameters{
			StopLoss:   domain.At(result.StopLoss),
			TakeProfit: domain.At(result.TakeProfit),
		})
	}
	return b.trader.TrySell(ctx, symbol, qty, domain.ReasonMarket)
}

// portfolioValue = balance + Σ cantidad × precio. Si el oráculo falla para un símbolo
// se usa el último precio conocido de la posición.
func (b *Bot) portfolioValue(ctx context.Context, snap domain.AccountSnapshot) float64 {
	value := snap.Balance
	for _, p := range snap.Positions {
		price := p.CurrentPrice
		if b.oracle != nil {
			pctx, cancel := context.WithTimeout(ctx, b.cfg.PriceTimeout)
			px, err := b.oracle.GetPrice(pctx, p.Symbol)
			cancel()
			if err != nil {
				slog.Warn("bot: pricing failed, using last known price",
					"symbol", p.Symbol, "price", price, "err", err)
			} else {
				price = px
			}
		}
		value += price * p.Quantity
	}
	return value
}

func (b *Bot) emit(pass *PassResult, u domain.BotUpdate) {
	u.PassID = pass.ID
	u.Timestamp = b.now()
	pass.Updates = append(pass.Updates, u)
	if b.notifier != nil {
		b.notifier.Notify(u)
	}
}
