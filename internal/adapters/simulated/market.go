package simulated

// market.go — mercado sintético para -dry-run: random walk determinista por símbolo.
// Implementa ports.PriceOracle y ports.HistoryProvider sin red.

import (
	"context"
	"hash/fnv"
	"math/rand"
	"strings"
	"sync"
	"time"

	"github.com/alejandrodnm/paperbot/internal/domain"
)

const (
	defaultBasePrice  = 100.0
	historyVolatility = 0.05  // amplitud de cada paso del histórico, fracción del precio base
	tickVolatility    = 0.005 // ±0.5% por consulta de precio
	baseVolume        = 1000.0
)

// basePrices por activo; los pares se resuelven quitando el sufijo USDT.
var basePrices = map[string]float64{
	"BTC":   68000,
	"ETH":   3500,
	"SOL":   140,
	"ADA":   0.58,
	"DOT":   7.8,
	"XRP":   0.62,
	"DOGE":  0.13,
	"AVAX":  34,
	"LINK":  16,
	"MATIC": 0.8,
}

// points por timeframe
var historyPoints = map[domain.Timeframe]int{
	domain.Timeframe1H: 60,
	domain.Timeframe1D: 96,
	domain.Timeframe1W: 84,
	domain.Timeframe1M: 120,
	domain.Timeframe1Y: 365,
}

// Market genera precios sintéticos. Con la misma semilla produce las mismas series.
// Cada GetHistory posterior a la primera avanza la serie un paso desde el precio
// actual, así que los ticks de GetPrice acaban en el histórico.
type Market struct {
	seed int64
	now  func() time.Time

	mu     sync.Mutex
	prices map[string]float64
	ticks  map[string]*rand.Rand
	series map[seriesKey]*walk
}

type seriesKey struct {
	symbol string
	tf     domain.Timeframe
}

// walk es la serie viva de un símbolo y timeframe.
type walk struct {
	rng    *rand.Rand
	base   float64
	trend  float64
	step   time.Duration
	points []domain.PricePoint
}

// NewMarket crea un mercado con la semilla dada.
func NewMarket(seed int64) *Market {
	return &Market{
		seed:   seed,
		now:    time.Now,
		prices: make(map[string]float64),
		ticks:  make(map[string]*rand.Rand),
		series: make(map[seriesKey]*walk),
	}
}

// GetPrice devuelve el precio actual de symbol y lo mueve un paso aleatorio para la siguiente consulta.
func (m *Market) GetPrice(ctx context.Context, symbol string) (float64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	price, ok := m.prices[symbol]
	if !ok {
		price = basePrice(symbol)
	}
	rng := m.tickRand(symbol)
	next := price * (1 + (rng.Float64()*2-1)*tickVolatility)
	m.prices[symbol] = next
	return price, nil
}

// GetHistory devuelve un random walk con ligera tendencia que arranca en el precio base.
// La primera llamada genera la serie completa y fija el precio actual en su último punto;
// las siguientes descartan el punto más antiguo y añaden uno nuevo a partir del precio actual.
func (m *Market) GetHistory(ctx context.Context, symbol string, tf domain.Timeframe) ([]domain.PricePoint, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	key := seriesKey{symbol: symbol, tf: tf}
	w, ok := m.series[key]
	if !ok {
		w = m.newWalk(symbol, tf)
		m.series[key] = w
		if _, seen := m.prices[symbol]; !seen {
			m.prices[symbol] = w.points[len(w.points)-1].Price
		}
	} else {
		from, seen := m.prices[symbol]
		if !seen {
			from = w.points[len(w.points)-1].Price
		}
		p := w.next(from, w.points[len(w.points)-1].Time.Add(w.step))
		w.points = append(w.points[1:], p)
		m.prices[symbol] = p.Price
	}
	return append([]domain.PricePoint(nil), w.points...), nil
}

func (m *Market) newWalk(symbol string, tf domain.Timeframe) *walk {
	n, ok := historyPoints[tf]
	if !ok {
		n = 50
	}
	rng := rand.New(rand.NewSource(m.symbolSeed(symbol, string(tf))))
	w := &walk{
		rng:    rng,
		base:   basePrice(symbol),
		trend:  (rng.Float64() - 0.5) * 0.001,
		step:   tf.Span() / time.Duration(n),
		points: make([]domain.PricePoint, 0, n),
	}
	start := m.now().Add(-tf.Span())
	price := w.base
	for i := 0; i < n; i++ {
		p := w.next(price, start.Add(time.Duration(i)*w.step))
		w.points = append(w.points, p)
		price = p.Price
	}
	return w
}

// next da un paso del walk desde price.
func (w *walk) next(price float64, at time.Time) domain.PricePoint {
	price += (w.rng.Float64()-0.5)*w.base*historyVolatility + w.trend*w.base
	if price <= 0 {
		price = w.base * 0.01
	}
	return domain.PricePoint{
		Time:   at,
		Price:  price,
		Volume: baseVolume * (0.5 + w.rng.Float64()),
	}
}

func (m *Market) tickRand(symbol string) *rand.Rand {
	rng, ok := m.ticks[symbol]
	if !ok {
		rng = rand.New(rand.NewSource(m.symbolSeed(symbol, "tick")))
		m.ticks[symbol] = rng
	}
	return rng
}

func (m *Market) symbolSeed(parts ...string) int64 {
	h := fnv.New64a()
	for _, p := range parts {
		h.Write([]byte(p))
		h.Write([]byte{0})
	}
	return m.seed ^ int64(h.Sum64())
}

func basePrice(symbol string) float64 {
	asset := strings.TrimSuffix(strings.ToUpper(symbol), "USDT")
	if p, ok := basePrices[asset]; ok {
		return p
	}
	return defaultBasePrice
}
