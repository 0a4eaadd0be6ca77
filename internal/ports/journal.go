package ports

import (
	"context"

	"github.com/alejandrodnm/paperbot/internal/domain"
)

// Journal guarda un registro de auditoría de lo que hizo el bot.
// Es de solo escritura: el ledger nunca se reconstruye a partir de él.
type Journal interface {
	RecordTransaction(ctx context.Context, tx domain.Transaction) error
	RecordUpdate(ctx context.Context, u domain.BotUpdate) error
	Close() error
}
