package domain

import "time"

// Action es la decisión del evaluador de estrategia.
type Action string

const (
	ActionHold Action = "hold"
	ActionBuy  Action = "buy"
	ActionSell Action = "sell"
	// ActionError solo aparece en BotUpdate cuando un símbolo agotó sus reintentos.
	ActionError Action = "error"
)

// StrategyResult es la salida de un análisis.
type StrategyResult struct {
	Action            Action
	Reason            string
	Confidence        float64 // [0,1]
	SuggestedPosition float64 // fracción del portfolio, >= 0
	StopLoss          float64 // precio absoluto, 0 en hold
	TakeProfit        float64 // precio absoluto, 0 en hold
	Price             float64 // último precio de la serie analizada
}

// Hold construye un resultado neutral con el motivo dado.
func Hold(reason string) StrategyResult {
	return StrategyResult{Action: ActionHold, Reason: reason}
}

// RiskParameters limita el tamaño de las operaciones del bot. Inmutable tras construir el bot.
type RiskParameters struct {
	MaxPositionSize float64 // fracción del portfolio por operación
	MaxDrawdown     float64 // fracción de pérdida no realizada tolerada
	MinConfidence   float64 // umbral [0,1]
	EnforceDrawdown bool    // si true, el drawdown bloquea nuevas compras
}

// BotUpdate es el evento estructurado que el bot emite hacia la UI.
type BotUpdate struct {
	PassID       string    `json:"pass_id"`
	Symbol       string    `json:"symbol"`
	Action       Action    `json:"action"`
	Reason       string    `json:"reason"`
	Confidence   float64   `json:"confidence"`
	StopLoss     float64   `json:"stop_loss"`
	TakeProfit   float64   `json:"take_profit"`
	PositionSize float64   `json:"position_size"`
	Quantity     float64   `json:"quantity"`
	Price        float64   `json:"price"`
	Timestamp    time.Time `json:"timestamp"`
}
