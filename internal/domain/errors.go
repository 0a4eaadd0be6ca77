package domain

import "errors"

var (
	// Ledger
	ErrInsufficientFunds    = errors.New("insufficient funds")
	ErrPositionNotFound     = errors.New("position not found")
	ErrInsufficientQuantity = errors.New("insufficient quantity")
	ErrInvalidQuantity      = errors.New("invalid quantity")

	// Oracle / history
	ErrPriceUnavailable    = errors.New("price unavailable")
	ErrSymbolNotFound      = errors.New("symbol not found")
	ErrNetwork             = errors.New("network error")
	ErrTimeout             = errors.New("timeout")
	ErrInsufficientHistory = errors.New("insufficient data")

	// Scheduler
	ErrRetryExhausted = errors.New("retry exhausted")
)

// IsRejection indica si err es un rechazo de negocio del ledger.
// Reintentar una operación rechazada no cambia el resultado.
func IsRejection(err error) bool {
	return errors.Is(err, ErrInsufficientFunds) ||
		errors.Is(err, ErrInsufficientQuantity) ||
		errors.Is(err, ErrPositionNotFound) ||
		errors.Is(err, ErrInvalidQuantity)
}
