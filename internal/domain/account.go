package domain

import "time"

// TradeType es el lado de una transacción ejecutada.
type TradeType string

const (
	TradeBuy  TradeType = "buy"
	TradeSell TradeType = "sell"
)

// TradeReason indica qué disparó la transacción.
type TradeReason string

const (
	ReasonMarket     TradeReason = "market"
	ReasonStopLoss   TradeReason = "stop_loss"
	ReasonTakeProfit TradeReason = "take_profit"
)

// Threshold es un nivel de precio opcional (stop-loss o take-profit).
// El valor cero significa "ausente".
type Threshold struct {
	Price float64
	Set   bool
}

// At devuelve un Threshold presente en price. Precios <= 0 se tratan como ausentes.
func At(price float64) Threshold {
	if price <= 0 {
		return Threshold{}
	}
	return Threshold{Price: price, Set: true}
}

// OrderParameters son los niveles de salida que se adjuntan a una compra.
type OrderParameters struct {
	StopLoss   Threshold
	TakeProfit Threshold
}

// Position es la posición abierta en un símbolo. Quantity > 0 mientras exista.
type Position struct {
	Symbol       string
	Quantity     float64
	EntryPrice   float64
	CurrentPrice float64
	PnL          float64 // (CurrentPrice - EntryPrice) × Quantity
	StopLoss     Threshold
	TakeProfit   Threshold
	OpenedAt     time.Time
}

// Cost es el capital invertido a precio de entrada.
func (p Position) Cost() float64 {
	return p.EntryPrice * p.Quantity
}

// Value es el valor de mercado con el último precio conocido.
func (p Position) Value() float64 {
	return p.CurrentPrice * p.Quantity
}

// Reprice actualiza el precio actual y recalcula el PnL no realizado.
func (p *Position) Reprice(price float64) {
	p.CurrentPrice = price
	p.PnL = (price - p.EntryPrice) * p.Quantity
}

// Transaction es un registro inmutable de una operación ejecutada.
type Transaction struct {
	ID        string
	Symbol    string
	Type      TradeType
	Quantity  float64
	Price     float64
	Timestamp time.Time
	Reason    TradeReason
}

// Notional es el importe en moneda de la transacción.
func (t Transaction) Notional() float64 {
	return t.Quantity * t.Price
}

// AccountSnapshot es una lectura consistente de la cuenta en un instante.
type AccountSnapshot struct {
	Balance        float64
	Funded         float64
	Positions      []Position
	Transactions   []Transaction
	PortfolioValue float64 // Balance + Σ Position.Value()
	TakenAt        time.Time
}
