package retry

// retry.go — backoff exponencial compartido por el bot (análisis y ejecución).
//
// Los errores marcados con Permanent cortan los reintentos: no tiene sentido
// reintentar una compra sin fondos.

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/alejandrodnm/paperbot/internal/domain"
)

const (
	DefaultMaxAttempts = 3
	DefaultBaseDelay   = time.Second
)

// Policy define cuántas veces se intenta una operación y cuánto se espera entre intentos.
// La espera empieza en BaseDelay y se duplica tras cada fallo, acotada por MaxDelay si > 0.
type Policy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
}

// DefaultPolicy devuelve 3 intentos con esperas de 1s y 2s.
func DefaultPolicy() Policy {
	return Policy{MaxAttempts: DefaultMaxAttempts, BaseDelay: DefaultBaseDelay}
}

// Delay devuelve la espera tras el intento número attempt (base 0).
func (p Policy) Delay(attempt int) time.Duration {
	d := p.BaseDelay
	for i := 0; i < attempt; i++ {
		d *= 2
		if p.MaxDelay > 0 && d >= p.MaxDelay {
			return p.MaxDelay
		}
	}
	return d
}

type permanentError struct{ err error }

func (e *permanentError) Error() string { return e.err.Error() }
func (e *permanentError) Unwrap() error { return e.err }

// Permanent marca err como no reintentable.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

// Do ejecuta fn hasta que devuelva nil, devuelva un error Permanent o se agoten los intentos.
// Al agotarse, el error envuelve domain.ErrRetryExhausted y la última causa.
func Do(ctx context.Context, p Policy, op string, fn func(ctx context.Context) error) error {
	_, err := DoValue(ctx, p, op, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, fn(ctx)
	})
	return err
}

// DoValue es Do para operaciones que devuelven un valor.
func DoValue[T any](ctx context.Context, p Policy, op string, fn func(ctx context.Context) (T, error)) (T, error) {
	var zero T
	attempts := p.MaxAttempts
	if attempts <= 0 {
		attempts = 1
	}

	var lastErr error
	for attempt := 0; attempt < attempts; attempt++ {
		v, err := fn(ctx)
		if err == nil {
			return v, nil
		}

		var perm *permanentError
		if errors.As(err, &perm) {
			return zero, perm.err
		}
		lastErr = err

		slog.Warn("attempt failed", "op", op, "attempt", attempt+1, "max", attempts, "err", err)
		if attempt == attempts-1 {
			break
		}
		if err := sleep(ctx, p.Delay(attempt)); err != nil {
			return zero, fmt.Errorf("%s: %w", op, err)
		}
	}
	return zero, fmt.Errorf("%s: %w after %d attempts: %w", op, domain.ErrRetryExhausted, attempts, lastErr)
}

// sleep espera d respetando el contexto.
func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
