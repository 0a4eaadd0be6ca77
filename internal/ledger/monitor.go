package ledger

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/alejandrodnm/paperbot/internal/domain"
)

// RunMonitor ejecuta CheckStops cada MonitorInterval hasta que ctx se cancele.
// Su periodo es independiente del throttle de UpdatePrices.
func (l *Ledger) RunMonitor(ctx context.Context) {
	ticker := time.NewTicker(l.opts.MonitorInterval)
	defer ticker.Stop()

	slog.Info("ledger: stop monitor started", "interval", l.opts.MonitorInterval)
	for {
		select {
		case <-ctx.Done():
			slog.Info("ledger: stop monitor stopped")
			return
		case <-ticker.C:
			l.CheckStops(ctx)
		}
	}
}

// CheckStops refresca el precio de cada posición y cierra las que cruzaron su
// stop-loss o take-profit. El stop-loss se evalúa primero; como mucho un disparo
// por posición y tick. Devuelve las transacciones ejecutadas.
func (l *Ledger) CheckStops(ctx context.Context) []domain.Transaction {
	var fired []domain.Transaction
	for _, symbol := range l.symbols() {
		tx, ok, err := l.checkStop(ctx, symbol)
		if err != nil {
			slog.Warn("ledger: stop check failed", "symbol", symbol, "err", err)
			continue
		}
		if ok {
			fired = append(fired, tx)
		}
	}
	return fired
}

// checkStop refresca, decide y vende con tradeMu tomado: el motivo de salida
// corresponde siempre a la posición que se vende.
func (l *Ledger) checkStop(ctx context.Context, symbol string) (domain.Transaction, bool, error) {
	l.tradeMu.Lock()
	defer l.tradeMu.Unlock()

	pos, err := l.refreshSymbol(ctx, symbol)
	if errors.Is(err, domain.ErrPositionNotFound) {
		// cerrada desde que se listaron los símbolos
		return domain.Transaction{}, false, nil
	}
	if err != nil {
		return domain.Transaction{}, false, fmt.Errorf("refresh: %w", err)
	}

	reason, ok := triggered(pos)
	if !ok {
		return domain.Transaction{}, false, nil
	}

	slog.Info("ledger: exit triggered",
		"symbol", symbol,
		"reason", reason,
		"price", pos.CurrentPrice,
		"stop_loss", pos.StopLoss.Price,
		"take_profit", pos.TakeProfit.Price,
	)
	tx, err := l.sellLocked(ctx, symbol, pos.Quantity, reason)
	if err != nil {
		return domain.Transaction{}, false, fmt.Errorf("exit %s: %w", reason, err)
	}
	return tx, true, nil
}

// triggered decide si el precio actual de pos cruza alguno de sus niveles.
func triggered(pos domain.Position) (domain.TradeReason, bool) {
	switch {
	case pos.StopLoss.Set && pos.CurrentPrice <= pos.StopLoss.Price:
		return domain.ReasonStopLoss, true
	case pos.TakeProfit.Set && pos.CurrentPrice >= pos.TakeProfit.Price:
		return domain.ReasonTakeProfit, true
	}
	return "", false
}
