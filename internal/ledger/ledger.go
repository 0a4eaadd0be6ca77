package ledger

// ledger.go — cuenta de paper trading.
//
// Concurrencia: tradeMu serializa las operaciones completas (buy/sell, incluida
// la lectura del precio) entre el bot y el monitor de stops. mu protege el estado
// para las lecturas; nunca se mantiene durante una llamada al oráculo.

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/alejandrodnm/paperbot/internal/domain"
	"github.com/alejandrodnm/paperbot/internal/ports"
)

const (
	DefaultInitialBalance  = 10000.0
	DefaultMonitorInterval = 60 * time.Second
	DefaultRefreshInterval = time.Second
	DefaultOracleTimeout   = 10 * time.Second

	// dustQuantity: restos por debajo de esto tras una venta cierran la posición.
	dustQuantity = 1e-12
)

// Options configura el ledger.
type Options struct {
	InitialBalance  float64
	MonitorInterval time.Duration // periodo del monitor de stop-loss / take-profit
	RefreshInterval time.Duration // mínimo entre dos UpdatePrices efectivos
	OracleTimeout   time.Duration
	// AverageOnRebuy promedia el precio de entrada al recomprar un símbolo abierto.
	// Por defecto la compra sobreescribe la posición anterior.
	AverageOnRebuy bool
}

// Ledger es la cuenta virtual: balance, posiciones y log de transacciones.
type Ledger struct {
	oracle  ports.PriceOracle
	journal ports.Journal // opcional
	opts    Options
	now     func() time.Time
	refresh *rate.Limiter

	tradeMu sync.Mutex

	mu           sync.RWMutex
	balance      float64
	funded       float64
	positions    map[string]domain.Position
	transactions []domain.Transaction
}

// New crea un ledger con el balance inicial de opts. journal puede ser nil.
func New(oracle ports.PriceOracle, journal ports.Journal, opts Options) *Ledger {
	if opts.InitialBalance <= 0 {
		opts.InitialBalance = DefaultInitialBalance
	}
	if opts.MonitorInterval <= 0 {
		opts.MonitorInterval = DefaultMonitorInterval
	}
	if opts.RefreshInterval <= 0 {
		opts.RefreshInterval = DefaultRefreshInterval
	}
	if opts.OracleTimeout <= 0 {
		opts.OracleTimeout = DefaultOracleTimeout
	}
	return &Ledger{
		oracle:    oracle,
		journal:   journal,
		opts:      opts,
		now:       time.Now,
		refresh:   rate.NewLimiter(rate.Every(opts.RefreshInterval), 1),
		balance:   opts.InitialBalance,
		funded:    opts.InitialBalance,
		positions: make(map[string]domain.Position),
	}
}

// Buy compra quantity de symbol al precio del oráculo. Devuelve false sin tocar el
// estado si el oráculo falla o no hay fondos.
func (l *Ledger) Buy(ctx context.Context, symbol string, quantity float64, params domain.OrderParameters) bool {
	if err := l.TryBuy(ctx, symbol, quantity, params); err != nil {
		slog.Debug("ledger: buy rejected", "symbol", symbol, "quantity", quantity, "err", err)
		return false
	}
	return true
}

// Sell vende quantity de symbol. Devuelve false si no hay posición o la cantidad excede lo que se tiene.
func (l *Ledger) Sell(ctx context.Context, symbol string, quantity float64, reason domain.TradeReason) bool {
	if err := l.TrySell(ctx, symbol, quantity, reason); err != nil {
		slog.Debug("ledger: sell rejected", "symbol", symbol, "quantity", quantity, "err", err)
		return false
	}
	return true
}

// TryBuy es Buy con el motivo del rechazo: domain.ErrInvalidQuantity,
// domain.ErrPriceUnavailable o domain.ErrInsufficientFunds.
func (l *Ledger) TryBuy(ctx context.Context, symbol string, quantity float64, params domain.OrderParameters) error {
	if !validQuantity(quantity) {
		return fmt.Errorf("ledger.Buy %s: %w: %v", symbol, domain.ErrInvalidQuantity, quantity)
	}

	l.tradeMu.Lock()
	defer l.tradeMu.Unlock()

	price, err := l.price(ctx, symbol)
	if err != nil {
		return fmt.Errorf("ledger.Buy %s: %w", symbol, err)
	}

	cost := price * quantity
	now := l.now()

	l.mu.Lock()
	if cost > l.balance {
		balance := l.balance
		l.mu.Unlock()
		return fmt.Errorf("ledger.Buy %s: %w: cost %.2f > balance %.2f",
			symbol, domain.ErrInsufficientFunds, cost, balance)
	}

	l.balance -= cost
	pos := domain.Position{
		Symbol:       symbol,
		Quantity:     quantity,
		EntryPrice:   price,
		CurrentPrice: price,
		StopLoss:     params.StopLoss,
		TakeProfit:   params.TakeProfit,
		OpenedAt:     now,
	}
	if prev, ok := l.positions[symbol]; ok {
		pos = l.rebuy(prev, pos)
	}
	l.positions[symbol] = pos

	tx := domain.Transaction{
		ID:        uuid.New().String(),
		Symbol:    symbol,
		Type:      domain.TradeBuy,
		Quantity:  quantity,
		Price:     price,
		Timestamp: now,
		Reason:    domain.ReasonMarket,
	}
	l.transactions = append(l.transactions, tx)
	balance := l.balance
	l.mu.Unlock()

	slog.Info("ledger: buy",
		"symbol", symbol,
		"quantity", quantity,
		"price", price,
		"cost", fmt.Sprintf("%.2f", cost),
		"balance", fmt.Sprintf("%.2f", balance),
	)
	l.record(ctx, tx)
	return nil
}

// rebuy resuelve una compra sobre una posición abierta. Con mu tomado.
func (l *Ledger) rebuy(prev, next domain.Position) domain.Position {
	if !l.opts.AverageOnRebuy {
		slog.Warn("ledger: buy overwrites open position",
			"symbol", next.Symbol,
			"prev_quantity", prev.Quantity,
			"prev_entry", prev.EntryPrice,
		)
		return next
	}

	qty := prev.Quantity + next.Quantity
	merged := next
	merged.Quantity = qty
	merged.EntryPrice = (prev.Cost() + next.Cost()) / qty
	merged.OpenedAt = prev.OpenedAt
	if !merged.StopLoss.Set {
		merged.StopLoss = prev.StopLoss
	}
	if !merged.TakeProfit.Set {
		merged.TakeProfit = prev.TakeProfit
	}
	merged.Reprice(next.CurrentPrice)
	return merged
}

// TrySell es Sell con el motivo del rechazo: domain.ErrInvalidQuantity,
// domain.ErrPositionNotFound, domain.ErrInsufficientQuantity o domain.ErrPriceUnavailable.
func (l *Ledger) TrySell(ctx context.Context, symbol string, quantity float64, reason domain.TradeReason) error {
	if !validQuantity(quantity) {
		return fmt.Errorf("ledger.Sell %s: %w: %v", symbol, domain.ErrInvalidQuantity, quantity)
	}
	if reason == "" {
		reason = domain.ReasonMarket
	}

	l.tradeMu.Lock()
	defer l.tradeMu.Unlock()

	_, err := l.sellLocked(ctx, symbol, quantity, reason)
	return err
}

// sellLocked ejecuta la venta. El llamante tiene tradeMu.
func (l *Ledger) sellLocked(ctx context.Context, symbol string, quantity float64, reason domain.TradeReason) (domain.Transaction, error) {
	if err := l.checkHolding(symbol, quantity); err != nil {
		return domain.Transaction{}, fmt.Errorf("ledger.Sell %s: %w", symbol, err)
	}

	price, err := l.price(ctx, symbol)
	if err != nil {
		return domain.Transaction{}, fmt.Errorf("ledger.Sell %s: %w", symbol, err)
	}

	now := l.now()
	revenue := price * quantity

	l.mu.Lock()
	// tradeMu impide que la posición cambie de tamaño desde checkHolding.
	pos := l.positions[symbol]
	l.balance += revenue
	pos.Quantity -= quantity
	pos.Reprice(price)
	closed := pos.Quantity <= dustQuantity
	if closed {
		delete(l.positions, symbol)
	} else {
		l.positions[symbol] = pos
	}

	tx := domain.Transaction{
		ID:        uuid.New().String(),
		Symbol:    symbol,
		Type:      domain.TradeSell,
		Quantity:  quantity,
		Price:     price,
		Timestamp: now,
		Reason:    reason,
	}
	l.transactions = append(l.transactions, tx)
	balance := l.balance
	l.mu.Unlock()

	slog.Info("ledger: sell",
		"symbol", symbol,
		"quantity", quantity,
		"price", price,
		"reason", reason,
		"closed", closed,
		"balance", fmt.Sprintf("%.2f", balance),
	)
	l.record(ctx, tx)
	return tx, nil
}

func (l *Ledger) checkHolding(symbol string, quantity float64) error {
	l.mu.RLock()
	defer l.mu.RUnlock()
	pos, ok := l.positions[symbol]
	if !ok {
		return domain.ErrPositionNotFound
	}
	if quantity > pos.Quantity {
		return fmt.Errorf("%w: have %v, want %v", domain.ErrInsufficientQuantity, pos.Quantity, quantity)
	}
	return nil
}

// UpdatePrices refresca precio y PnL de todas las posiciones abiertas.
// Como máximo una vez por RefreshInterval; las llamadas dentro del intervalo no hacen nada.
// Un fallo del oráculo en un símbolo no impide refrescar los demás.
func (l *Ledger) UpdatePrices(ctx context.Context) {
	if !l.refresh.Allow() {
		return
	}
	for _, symbol := range l.symbols() {
		if _, err := l.refreshSymbol(ctx, symbol); err != nil {
			slog.Warn("ledger: price refresh failed", "symbol", symbol, "err", err)
		}
	}
}

// refreshSymbol actualiza la posición con el precio del oráculo y devuelve la copia refrescada.
// domain.ErrPositionNotFound si la posición se cerró mientras se consultaba el precio.
func (l *Ledger) refreshSymbol(ctx context.Context, symbol string) (domain.Position, error) {
	price, err := l.price(ctx, symbol)
	if err != nil {
		return domain.Position{}, err
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	pos, ok := l.positions[symbol]
	if !ok {
		return domain.Position{}, domain.ErrPositionNotFound
	}
	pos.Reprice(price)
	l.positions[symbol] = pos
	return pos, nil
}

// price consulta el oráculo con timeout acotado.
func (l *Ledger) price(ctx context.Context, symbol string) (float64, error) {
	octx, cancel := context.WithTimeout(ctx, l.opts.OracleTimeout)
	defer cancel()

	price, err := l.oracle.GetPrice(octx, symbol)
	if err != nil {
		return 0, fmt.Errorf("%w: %w", domain.ErrPriceUnavailable, err)
	}
	if !(price > 0) || math.IsInf(price, 0) {
		return 0, fmt.Errorf("%w: oracle returned %v", domain.ErrPriceUnavailable, price)
	}
	return price, nil
}

func (l *Ledger) record(ctx context.Context, tx domain.Transaction) {
	if l.journal == nil {
		return
	}
	if err := l.journal.RecordTransaction(ctx, tx); err != nil {
		slog.Warn("ledger: journal write failed", "tx", tx.ID, "err", err)
	}
}

// --- lecturas (copias, nunca referencias al estado interno) ---

// Balance devuelve el efectivo disponible.
func (l *Ledger) Balance() float64 {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.balance
}

// Position devuelve una copia de la posición en symbol.
func (l *Ledger) Position(symbol string) (domain.Position, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	p, ok := l.positions[symbol]
	return p, ok
}

// Positions devuelve una copia de las posiciones abiertas ordenadas por símbolo.
func (l *Ledger) Positions() []domain.Position {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.positionsLocked()
}

func (l *Ledger) positionsLocked() []domain.Position {
	out := make([]domain.Position, 0, len(l.positions))
	for _, p := range l.positions {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Symbol < out[j].Symbol })
	return out
}

// Transactions devuelve una copia del log en orden cronológico.
func (l *Ledger) Transactions() []domain.Transaction {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return append([]domain.Transaction(nil), l.transactions...)
}

// Snapshot devuelve balance, posiciones y transacciones en una sola lectura consistente.
func (l *Ledger) Snapshot() domain.AccountSnapshot {
	l.mu.RLock()
	defer l.mu.RUnlock()

	positions := l.positionsLocked()
	value := l.balance
	for _, p := range positions {
		value += p.Value()
	}
	return domain.AccountSnapshot{
		Balance:        l.balance,
		Funded:         l.funded,
		Positions:      positions,
		Transactions:   append([]domain.Transaction(nil), l.transactions...),
		PortfolioValue: value,
		TakenAt:        l.now(),
	}
}

// Drawdown es la métrica de riesgo de solo lectura sobre las posiciones abiertas.
func (l *Ledger) Drawdown() float64 {
	return domain.Drawdown(l.Positions())
}

func (l *Ledger) symbols() []string {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]string, 0, len(l.positions))
	for s := range l.positions {
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}

func validQuantity(q float64) bool {
	return q > 0 && !math.IsInf(q, 0) && !math.IsNaN(q)
}
