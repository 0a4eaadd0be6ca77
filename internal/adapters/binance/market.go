package binance

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"
	"time"

	"github.com/alejandrodnm/paperbot/internal/domain"
)

// intervals mapea cada timeframe al tamaño de vela que se pide a /klines.
var intervals = map[domain.Timeframe]string{
	domain.Timeframe1H: "5m",
	domain.Timeframe1D: "15m",
	domain.Timeframe1W: "2h",
	domain.Timeframe1M: "6h",
	domain.Timeframe1Y: "1d",
}

// klines por request; Binance acepta hasta 1000
const klinesLimit = 1000

type tickerPrice struct {
	Symbol string `json:"symbol"`
	Price  string `json:"price"`
}

// GetPrice devuelve el último precio de symbol (GET /api/v3/ticker/price).
func (c *Client) GetPrice(ctx context.Context, symbol string) (float64, error) {
	var t tickerPrice
	if err := c.get(ctx, "/api/v3/ticker/price", url.Values{"symbol": {symbol}}, &t); err != nil {
		return 0, fmt.Errorf("binance.GetPrice %s: %w", symbol, err)
	}
	price, err := strconv.ParseFloat(t.Price, 64)
	if err != nil {
		return 0, fmt.Errorf("binance.GetPrice %s: parse %q: %w", symbol, t.Price, err)
	}
	return price, nil
}

// GetHistory devuelve las velas de cierre de symbol para el timeframe, en orden ascendente
// (GET /api/v3/klines). Usa el precio de cierre, la hora de apertura y el volumen de cada vela.
func (c *Client) GetHistory(ctx context.Context, symbol string, tf domain.Timeframe) ([]domain.PricePoint, error) {
	interval, ok := intervals[tf]
	if !ok {
		return nil, fmt.Errorf("binance.GetHistory %s: unsupported timeframe %q", symbol, tf)
	}
	end := c.now()
	start := end.Add(-tf.Span())

	q := url.Values{
		"symbol":    {symbol},
		"interval":  {interval},
		"startTime": {strconv.FormatInt(start.UnixMilli(), 10)},
		"endTime":   {strconv.FormatInt(end.UnixMilli(), 10)},
		"limit":     {strconv.Itoa(klinesLimit)},
	}

	var raw [][]json.RawMessage
	if err := c.get(ctx, "/api/v3/klines", q, &raw); err != nil {
		return nil, fmt.Errorf("binance.GetHistory %s: %w", symbol, err)
	}

	points := make([]domain.PricePoint, 0, len(raw))
	for i, k := range raw {
		p, err := parseKline(k)
		if err != nil {
			return nil, fmt.Errorf("binance.GetHistory %s: kline %d: %w", symbol, i, err)
		}
		points = append(points, p)
	}
	return points, nil
}

// parseKline lee [openTime, open, high, low, close, volume, closeTime, ...].
func parseKline(k []json.RawMessage) (domain.PricePoint, error) {
	if len(k) < 6 {
		return domain.PricePoint{}, fmt.Errorf("short kline: %d fields", len(k))
	}
	var openTime int64
	if err := json.Unmarshal(k[0], &openTime); err != nil {
		return domain.PricePoint{}, fmt.Errorf("open time: %w", err)
	}
	closePrice, err := decimalString(k[4])
	if err != nil {
		return domain.PricePoint{}, fmt.Errorf("close: %w", err)
	}
	volume, err := decimalString(k[5])
	if err != nil {
		return domain.PricePoint{}, fmt.Errorf("volume: %w", err)
	}
	return domain.PricePoint{
		Time:   time.UnixMilli(openTime).UTC(),
		Price:  closePrice,
		Volume: volume,
	}, nil
}

// decimalString: Binance envía precios y volúmenes como strings JSON.
func decimalString(raw json.RawMessage) (float64, error) {
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return 0, err
	}
	return strconv.ParseFloat(s, 64)
}
