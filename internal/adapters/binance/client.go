package binance

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/alejandrodnm/paperbot/internal/domain"
	"github.com/alejandrodnm/paperbot/internal/retry"
)

const (
	defaultBase = "https://api.binance.com"

	// Binance: 6000 de peso por minuto por IP; ticker/price y klines pesan 2.
	// Al 60% → 1800 req/min → 30/s.
	requestsPerSec = 30

	defaultTimeout = 10 * time.Second

	// Un reintento para 429/5xx; el bot ya reintenta el análisis y la ejecución completos.
	defaultAttempts  = 2
	defaultRetryWait = 250 * time.Millisecond

	// código de error de Binance para símbolos desconocidos
	codeInvalidSymbol = -1121
)

// Client es el HTTP client de la API pública de Binance con rate limiting y retries.
// Implementa ports.PriceOracle y ports.HistoryProvider.
type Client struct {
	http    *http.Client
	base    string
	limiter *rate.Limiter
	retry   retry.Policy
	now     func() time.Time
}

// NewClient crea un Client contra base. Si base está vacío usa la API de producción.
func NewClient(base string, timeout time.Duration) *Client {
	if base == "" {
		base = defaultBase
	}
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &Client{
		http:    &http.Client{Timeout: timeout},
		base:    strings.TrimRight(base, "/"),
		limiter: rate.NewLimiter(requestsPerSec, 5),
		retry:   retry.Policy{MaxAttempts: defaultAttempts, BaseDelay: defaultRetryWait},
		now:     time.Now,
	}
}

// WithRetry cambia la política de reintentos por petición.
func (c *Client) WithRetry(p retry.Policy) *Client {
	c.retry = p
	return c
}

// apiError es el cuerpo de error de Binance: {"code":-1121,"msg":"Invalid symbol."}
type apiError struct {
	Code int    `json:"code"`
	Msg  string `json:"msg"`
}

// get hace un GET con rate limiting y retries. Los errores envuelven
// domain.ErrSymbolNotFound, domain.ErrTimeout o domain.ErrNetwork.
func (c *Client) get(ctx context.Context, path string, query url.Values, out any) error {
	u := c.base + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}
	return retry.Do(ctx, c.retry, "binance GET "+path, func(ctx context.Context) error {
		return c.do(ctx, u, out)
	})
}

// do hace un único intento. Solo los fallos de transporte, 429 y 5xx son reintentables.
func (c *Client) do(ctx context.Context, u string, out any) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return retry.Permanent(classify(fmt.Errorf("rate limiter: %w", err)))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return retry.Permanent(fmt.Errorf("build request: %w", err))
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return retry.Permanent(classify(err))
		}
		return classify(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
		return fmt.Errorf("%w: status %d", domain.ErrNetwork, resp.StatusCode)
	}
	if resp.StatusCode >= 400 {
		body, _ := io.ReadAll(resp.Body)
		return retry.Permanent(statusError(resp.StatusCode, body))
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return retry.Permanent(fmt.Errorf("%w: decode response: %w", domain.ErrNetwork, err))
	}
	return nil
}

func statusError(status int, body []byte) error {
	var apiErr apiError
	_ = json.Unmarshal(body, &apiErr)
	if status == http.StatusBadRequest &&
		(apiErr.Code == codeInvalidSymbol || strings.Contains(apiErr.Msg, "Invalid symbol")) {
		return fmt.Errorf("%w: %s", domain.ErrSymbolNotFound, apiErr.Msg)
	}
	return fmt.Errorf("%w: client error %d: %s", domain.ErrNetwork, status, strings.TrimSpace(string(body)))
}

// classify traduce un error de transporte a los tipos del oráculo.
func classify(err error) error {
	var netErr net.Error
	if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &netErr) && netErr.Timeout()) {
		return fmt.Errorf("%w: %w", domain.ErrTimeout, err)
	}
	return fmt.Errorf("%w: %w", domain.ErrNetwork, err)
}
