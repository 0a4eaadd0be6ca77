package ports

import "github.com/alejandrodnm/paperbot/internal/domain"

// UpdateNotifier recibe los eventos del bot (consola, websocket, journal).
type UpdateNotifier interface {
	Notify(u domain.BotUpdate)
}

// UpdateFunc adapta una función a UpdateNotifier.
type UpdateFunc func(u domain.BotUpdate)

// Notify llama a f(u).
func (f UpdateFunc) Notify(u domain.BotUpdate) { f(u) }
