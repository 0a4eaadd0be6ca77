package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/alejandrodnm/paperbot/internal/domain"
)

// Config es la configuración completa del paper trading bot.
type Config struct {
	Bot      BotConfig      `yaml:"bot"`
	Risk     RiskConfig     `yaml:"risk"`
	Strategy StrategyConfig `yaml:"strategy"`
	Ledger   LedgerConfig   `yaml:"ledger"`
	Retry    RetryConfig    `yaml:"retry"`
	API      APIConfig      `yaml:"api"`
	Storage  StorageConfig  `yaml:"storage"`
	Notify   NotifyConfig   `yaml:"notify"`
	Log      LogConfig      `yaml:"log"`
}

// BotConfig controla qué se analiza y cada cuánto.
type BotConfig struct {
	Symbols         []string `yaml:"symbols"`
	IntervalSeconds int      `yaml:"interval_seconds"`
	Timeframe       string   `yaml:"timeframe"` // 1h | 1d | 1w | 1m | 1y
}

// RiskConfig limita el tamaño de las operaciones.
type RiskConfig struct {
	MaxPositionSize float64 `yaml:"max_position_size"` // fracción del portfolio por operación
	MaxDrawdown     float64 `yaml:"max_drawdown"`      // 0 = sin límite
	MinConfidence   float64 `yaml:"min_confidence"`    // 0 = opera con cualquier confianza
	EnforceDrawdown bool    `yaml:"enforce_drawdown"`  // false: el drawdown solo se informa
}

// StrategyConfig son los periodos de los indicadores y los niveles de salida.
type StrategyConfig struct {
	ShortPeriod   int     `yaml:"short_period"`
	LongPeriod    int     `yaml:"long_period"`
	RSIPeriod     int     `yaml:"rsi_period"`
	VolumePeriod  int     `yaml:"volume_period"`
	StopLossPct   float64 `yaml:"stop_loss_pct"`
	TakeProfitPct float64 `yaml:"take_profit_pct"`
	PerSymbol     bool    `yaml:"per_symbol_signals"` // false: una sola última señal para todos los símbolos
}

// LedgerConfig controla la cuenta virtual.
type LedgerConfig struct {
	InitialBalance         float64 `yaml:"initial_balance"`
	MonitorIntervalSeconds int     `yaml:"monitor_interval_seconds"`
	PriceRefreshSeconds    int     `yaml:"price_refresh_seconds"`
	AverageOnRebuy         bool    `yaml:"average_on_rebuy"`
}

// RetryConfig es la política de reintentos del bot.
type RetryConfig struct {
	MaxAttempts int `yaml:"max_attempts"`
	BaseDelayMs int `yaml:"base_delay_ms"`
}

// APIConfig contiene el base URL de Binance.
type APIConfig struct {
	BinanceBase    string `yaml:"binance_base"`
	TimeoutSeconds int    `yaml:"timeout_seconds"`
}

// StorageConfig controla dónde se guarda el journal.
type StorageConfig struct {
	DSN string `yaml:"dsn"` // ruta al archivo SQLite, o ":memory:"
}

// NotifyConfig controla la salida de eventos.
type NotifyConfig struct {
	WSAddr string `yaml:"ws_addr"` // vacío = sin servidor WebSocket
}

// LogConfig controla el formato y nivel de logging.
type LogConfig struct {
	Level  string `yaml:"level"`  // debug | info | warn | error
	Format string `yaml:"format"` // text | json
}

// Load carga la configuración desde el archivo YAML y el archivo .env si existe.
// Los valores del entorno sobreescriben los del YAML para las keys que correspondan.
func Load(path string) (*Config, error) {
	// Cargar .env si existe (silencia error si no hay archivo)
	_ = godotenv.Load()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config.Load: read %q: %w", path, err)
	}

	cfg := Config{Risk: defaultRisk()}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("config.Load: parse YAML: %w", err)
	}

	applyEnvOverrides(&cfg)
	setDefaults(&cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config.Load: %w", err)
	}
	return &cfg, nil
}

// Default devuelve la configuración por defecto, con los overrides del entorno aplicados.
func Default() *Config {
	cfg := Config{Risk: defaultRisk()}
	applyEnvOverrides(&cfg)
	setDefaults(&cfg)
	return &cfg
}

// Validate comprueba que los valores tengan sentido.
func (c *Config) Validate() error {
	var errs []error
	if len(c.Bot.Symbols) == 0 {
		errs = append(errs, errors.New("bot.symbols is empty"))
	}
	if !domain.Timeframe(c.Bot.Timeframe).Valid() {
		errs = append(errs, fmt.Errorf("bot.timeframe %q is not one of 1h, 1d, 1w, 1m, 1y", c.Bot.Timeframe))
	}
	if !fraction(c.Risk.MaxPositionSize) {
		errs = append(errs, fmt.Errorf("risk.max_position_size %v must be in (0,1]", c.Risk.MaxPositionSize))
	}
	if c.Risk.MaxDrawdown < 0 || c.Risk.MaxDrawdown > 1 {
		errs = append(errs, fmt.Errorf("risk.max_drawdown %v must be in [0,1]", c.Risk.MaxDrawdown))
	}
	if c.Risk.MinConfidence < 0 || c.Risk.MinConfidence > 1 {
		errs = append(errs, fmt.Errorf("risk.min_confidence %v must be in [0,1]", c.Risk.MinConfidence))
	}
	if c.Strategy.ShortPeriod >= c.Strategy.LongPeriod {
		errs = append(errs, fmt.Errorf("strategy.short_period %d must be < long_period %d",
			c.Strategy.ShortPeriod, c.Strategy.LongPeriod))
	}
	if !fraction(c.Strategy.StopLossPct) || !fraction(c.Strategy.TakeProfitPct) {
		errs = append(errs, errors.New("strategy.stop_loss_pct and take_profit_pct must be in (0,1]"))
	}
	return errors.Join(errs...)
}

// Interval devuelve el periodo entre pasadas del bot.
func (c *Config) Interval() time.Duration {
	return time.Duration(c.Bot.IntervalSeconds) * time.Second
}

// MonitorInterval devuelve el periodo del monitor de stop-loss / take-profit.
func (c *Config) MonitorInterval() time.Duration {
	return time.Duration(c.Ledger.MonitorIntervalSeconds) * time.Second
}

// PriceRefresh devuelve el intervalo mínimo entre refrescos de precio del ledger.
func (c *Config) PriceRefresh() time.Duration {
	return time.Duration(c.Ledger.PriceRefreshSeconds) * time.Second
}

// RetryBaseDelay devuelve la primera espera entre reintentos.
func (c *Config) RetryBaseDelay() time.Duration {
	return time.Duration(c.Retry.BaseDelayMs) * time.Millisecond
}

// APITimeout devuelve el timeout de cada llamada HTTP.
func (c *Config) APITimeout() time.Duration {
	return time.Duration(c.API.TimeoutSeconds) * time.Second
}

// applyEnvOverrides sobreescribe valores con variables de entorno si están presentes.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.Log.Level = v
	}
	if v := os.Getenv("LOG_FORMAT"); v != "" {
		cfg.Log.Format = v
	}
	if v := os.Getenv("PAPERBOT_SYMBOLS"); v != "" {
		cfg.Bot.Symbols = splitSymbols(v)
	}
	if v := os.Getenv("BINANCE_BASE_URL"); v != "" {
		cfg.API.BinanceBase = v
	}
}

// defaultRisk se aplica antes de parsear el YAML: las keys ausentes conservan
// el default y un 0 explícito en max_drawdown o min_confidence se respeta.
func defaultRisk() RiskConfig {
	return RiskConfig{MaxPositionSize: 0.1, MaxDrawdown: 0.2, MinConfidence: 0.6}
}

// setDefaults asegura que los valores requeridos tengan valores sensatos.
func setDefaults(cfg *Config) {
	if len(cfg.Bot.Symbols) == 0 {
		cfg.Bot.Symbols = []string{"BTCUSDT", "ETHUSDT"}
	}
	if cfg.Bot.IntervalSeconds <= 0 {
		cfg.Bot.IntervalSeconds = 300
	}
	if cfg.Bot.Timeframe == "" {
		cfg.Bot.Timeframe = string(domain.Timeframe1W)
	}
	if cfg.Risk.MaxPositionSize == 0 {
		cfg.Risk.MaxPositionSize = 0.1
	}
	if cfg.Strategy.ShortPeriod <= 0 {
		cfg.Strategy.ShortPeriod = 9
	}
	if cfg.Strategy.LongPeriod <= 0 {
		cfg.Strategy.LongPeriod = 21
	}
	if cfg.Strategy.RSIPeriod <= 0 {
		cfg.Strategy.RSIPeriod = 14
	}
	if cfg.Strategy.VolumePeriod <= 0 {
		cfg.Strategy.VolumePeriod = 20
	}
	if cfg.Strategy.StopLossPct == 0 {
		cfg.Strategy.StopLossPct = 0.02
	}
	if cfg.Strategy.TakeProfitPct == 0 {
		cfg.Strategy.TakeProfitPct = 0.06
	}
	if cfg.Ledger.InitialBalance <= 0 {
		cfg.Ledger.InitialBalance = 10000
	}
	if cfg.Ledger.MonitorIntervalSeconds <= 0 {
		cfg.Ledger.MonitorIntervalSeconds = 60
	}
	if cfg.Ledger.PriceRefreshSeconds <= 0 {
		cfg.Ledger.PriceRefreshSeconds = 1
	}
	if cfg.Retry.MaxAttempts <= 0 {
		cfg.Retry.MaxAttempts = 3
	}
	if cfg.Retry.BaseDelayMs <= 0 {
		cfg.Retry.BaseDelayMs = 1000
	}
	if cfg.API.BinanceBase == "" {
		cfg.API.BinanceBase = "https://api.binance.com"
	}
	if cfg.API.TimeoutSeconds <= 0 {
		cfg.API.TimeoutSeconds = 10
	}
	if cfg.Storage.DSN == "" {
		cfg.Storage.DSN = "paperbot.db"
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "text"
	}
}

func splitSymbols(v string) []string {
	var out []string
	for _, s := range strings.Split(v, ",") {
		if s = strings.ToUpper(strings.TrimSpace(s)); s != "" {
			out = append(out, s)
		}
	}
	return out
}

func fraction(v float64) bool {
	return v > 0 && v <= 1
}
