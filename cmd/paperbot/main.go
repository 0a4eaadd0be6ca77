package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/alejandrodnm/paperbot/config"
	"github.com/alejandrodnm/paperbot/internal/adapters/binance"
	"github.com/alejandrodnm/paperbot/internal/adapters/notify"
	"github.com/alejandrodnm/paperbot/internal/adapters/simulated"
	"github.com/alejandrodnm/paperbot/internal/adapters/storage"
	"github.com/alejandrodnm/paperbot/internal/bot"
	"github.com/alejandrodnm/paperbot/internal/domain"
	"github.com/alejandrodnm/paperbot/internal/ledger"
	"github.com/alejandrodnm/paperbot/internal/ports"
	"github.com/alejandrodnm/paperbot/internal/retry"
	"github.com/alejandrodnm/paperbot/internal/strategy"
)

// market es lo que el bot necesita de una fuente de precios.
type market interface {
	ports.PriceOracle
	ports.HistoryProvider
}

func main() {
	configPath := flag.String("config", "config/config.yaml", "path to config file")
	once := flag.Bool("once", false, "run one pass, check stops, print the account and exit")
	dryRun := flag.Bool("dry-run", false, "use a simulated market and an in-memory journal")
	seed := flag.Int64("seed", 1, "random seed for the simulated market (-dry-run)")
	verbose := flag.Bool("verbose", false, "set log level to debug")
	logFormat := flag.String("format", "", "log format: text|json (overrides config)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("failed to load config", "err", err, "path", *configPath)
		os.Exit(1)
	}

	if *verbose {
		cfg.Log.Level = "debug"
	}
	if *logFormat != "" {
		cfg.Log.Format = *logFormat
	}
	setupLogger(cfg.Log)

	slog.Info("paperbot starting",
		"config", *configPath,
		"symbols", cfg.Bot.Symbols,
		"interval", cfg.Interval(),
		"timeframe", cfg.Bot.Timeframe,
		"dry_run", *dryRun,
		"once", *once,
	)

	var mkt market
	if *dryRun {
		mkt = simulated.NewMarket(*seed)
	} else {
		mkt = binance.NewClient(cfg.API.BinanceBase, cfg.APITimeout())
	}

	dsn := cfg.Storage.DSN
	if *dryRun {
		dsn = ":memory:"
	}
	journal, err := storage.NewSQLiteJournal(dsn)
	if err != nil {
		slog.Error("failed to open journal", "err", err, "dsn", dsn)
		os.Exit(1)
	}
	defer journal.Close()

	account := ledger.New(mkt, journal, ledger.Options{
		InitialBalance:  cfg.Ledger.InitialBalance,
		MonitorInterval: cfg.MonitorInterval(),
		RefreshInterval: cfg.PriceRefresh(),
		OracleTimeout:   cfg.APITimeout(),
		AverageOnRebuy:  cfg.Ledger.AverageOnRebuy,
	})

	evaluator := strategy.NewEvaluator(mkt, strategy.Params{
		ShortPeriod:     cfg.Strategy.ShortPeriod,
		LongPeriod:      cfg.Strategy.LongPeriod,
		RSIPeriod:       cfg.Strategy.RSIPeriod,
		VolumePeriod:    cfg.Strategy.VolumePeriod,
		MaxPositionSize: cfg.Risk.MaxPositionSize,
		StopLossPct:     cfg.Strategy.StopLossPct,
		TakeProfitPct:   cfg.Strategy.TakeProfitPct,
		Timeframe:       domain.Timeframe(cfg.Bot.Timeframe),
		HistoryTimeout:  cfg.APITimeout(),
		PerSymbol:       cfg.Strategy.PerSymbol,
	})

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	console := notify.NewConsole()
	var hub *notify.Hub
	if cfg.Notify.WSAddr != "" {
		hub = notify.NewHub()
		go hub.Run(ctx)
		go func() {
			if err := hub.ListenAndServe(ctx, cfg.Notify.WSAddr); err != nil {
				slog.Error("websocket server failed", "err", err, "addr", cfg.Notify.WSAddr)
			}
		}()
	}
	updates := fanOut(console, hub, journal)

	b, err := bot.New(bot.Config{
		Symbols:  cfg.Bot.Symbols,
		Interval: cfg.Interval(),
		Risk: domain.RiskParameters{
			MaxPositionSize: cfg.Risk.MaxPositionSize,
			MaxDrawdown:     cfg.Risk.MaxDrawdown,
			MinConfidence:   cfg.Risk.MinConfidence,
			EnforceDrawdown: cfg.Risk.EnforceDrawdown,
		},
		Retry:             retry.Policy{MaxAttempts: cfg.Retry.MaxAttempts, BaseDelay: cfg.RetryBaseDelay()},
		QuantityPrecision: bot.DefaultQuantityPrecision,
		PriceTimeout:      cfg.APITimeout(),
	}, evaluator, account, mkt, updates)
	if err != nil {
		slog.Error("failed to create bot", "err", err)
		os.Exit(1)
	}

	startedAt := time.Now()

	if *once {
		if _, err := b.RunPass(ctx); err != nil {
			slog.Error("pass failed", "err", err)
		}
		account.CheckStops(ctx)
		printReport(console, account, b, journal, cfg, startedAt)
		return
	}

	go account.RunMonitor(ctx)

	if err := b.Start(ctx); err != nil {
		slog.Error("bot failed to start", "err", err)
		printReport(console, account, b, journal, cfg, startedAt)
		os.Exit(1)
	}

	<-ctx.Done()
	slog.Info("shutdown requested, waiting for in-flight pass")
	b.Stop()

	printReport(console, account, b, journal, cfg, startedAt)
	slog.Info("paperbot stopped cleanly")
}

// fanOut reparte cada evento del bot entre consola, websocket (si hay) y journal.
func fanOut(console *notify.Console, hub *notify.Hub, journal ports.Journal) ports.UpdateNotifier {
	return ports.UpdateFunc(func(u domain.BotUpdate) {
		console.Notify(u)
		if hub != nil {
			hub.Notify(u)
		}
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := journal.RecordUpdate(ctx, u); err != nil {
			slog.Warn("journal update failed", "symbol", u.Symbol, "err", err)
		}
	})
}

// printReport refresca precios y muestra el estado final de la cuenta.
func printReport(console *notify.Console, account *ledger.Ledger, b *bot.Bot, journal *storage.SQLiteJournal, cfg *config.Config, since time.Time) {
	// ctx propio: el de la señal ya puede estar cancelado
	ctx, cancel := context.WithTimeout(context.Background(), cfg.APITimeout())
	defer cancel()

	account.UpdatePrices(ctx)

	in := notify.ReportInput{
		Snapshot:    account.Snapshot(),
		Drawdown:    b.Drawdown(),
		MaxDrawdown: cfg.Risk.MaxDrawdown,
	}
	if s, err := journal.Summary(ctx, since); err != nil {
		slog.Warn("journal summary failed", "err", err)
	} else {
		in.Journal = &notify.JournalTotals{
			Transactions: s.Transactions,
			StopLosses:   s.StopLosses,
			TakeProfits:  s.TakeProfits,
			Errors:       s.Errors,
		}
	}
	console.PrintReport(in)
}

func setupLogger(cfg config.LogConfig) {
	var level slog.Level
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	if cfg.Format == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}
	slog.SetDefault(slog.New(handler))
}
