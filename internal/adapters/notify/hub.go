package notify

// hub.go — difusión de BotUpdates por WebSocket en /ws.
// Los clientes solo reciben; lo que envíen se descarta.

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/alejandrodnm/paperbot/internal/domain"
)

const (
	hubBuffer    = 64
	writeTimeout = 5 * time.Second
)

// Hub implementa ports.UpdateNotifier y http.Handler.
type Hub struct {
	upgrader  websocket.Upgrader
	broadcast chan []byte

	mu      sync.Mutex
	clients map[*websocket.Conn]struct{}
}

// NewHub crea un hub sin clientes. Hay que llamar a Run para que difunda.
func NewHub() *Hub {
	return &Hub{
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
		broadcast: make(chan []byte, hubBuffer),
		clients:   make(map[*websocket.Conn]struct{}),
	}
}

// Notify serializa el evento y lo encola. Si la cola está llena el evento se descarta.
func (h *Hub) Notify(u domain.BotUpdate) {
	msg, err := json.Marshal(u)
	if err != nil {
		slog.Warn("hub: marshal update", "err", err)
		return
	}
	select {
	case h.broadcast <- msg:
	default:
		slog.Warn("hub: queue full, update dropped", "symbol", u.Symbol, "action", u.Action)
	}
}

// Run envía cada mensaje encolado a todos los clientes hasta que ctx se cancele.
// Los clientes que fallan al escribir se desconectan.
func (h *Hub) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			h.closeAll()
			return
		case msg := <-h.broadcast:
			h.send(msg)
		}
	}
}

func (h *Hub) send(msg []byte) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for conn := range h.clients {
		conn.SetWriteDeadline(time.Now().Add(writeTimeout))
		if err := conn.WriteMessage(websocket.TextMessage, msg); err != nil {
			slog.Debug("hub: client dropped", "remote", conn.RemoteAddr().String(), "err", err)
			conn.Close()
			delete(h.clients, conn)
		}
	}
}

// ServeHTTP acepta una conexión WebSocket y la registra.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Warn("hub: upgrade failed", "remote", r.RemoteAddr, "err", err)
		return
	}

	h.mu.Lock()
	h.clients[conn] = struct{}{}
	n := len(h.clients)
	h.mu.Unlock()
	slog.Info("hub: client connected", "remote", conn.RemoteAddr().String(), "clients", n)

	// el read loop detecta el cierre del cliente
	go func() {
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				h.remove(conn)
				return
			}
		}
	}()
}

// Clients devuelve el número de clientes conectados.
func (h *Hub) Clients() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// ListenAndServe sirve /ws en addr hasta que ctx se cancele.
func (h *Hub) ListenAndServe(ctx context.Context, addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/ws", h)
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 10 * time.Second}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx)
	}()

	slog.Info("hub: listening", "addr", addr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (h *Hub) remove(conn *websocket.Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[conn]; ok {
		conn.Close()
		delete(h.clients, conn)
	}
}

func (h *Hub) closeAll() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for conn := range h.clients {
		conn.Close()
		delete(h.clients, conn)
	}
}
