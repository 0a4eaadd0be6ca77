package notify

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/olekukonko/tablewriter"

	"github.com/alejandrodnm/paperbot/internal/domain"
)

// Console implementa ports.UpdateNotifier escribiendo una línea por evento.
type Console struct {
	mu  sync.Mutex
	out io.Writer
	now func() time.Time
}

// NewConsole crea un notificador que escribe a stdout.
func NewConsole() *Console {
	return NewConsoleWriter(os.Stdout)
}

// NewConsoleWriter crea un notificador para tests.
func NewConsoleWriter(w io.Writer) *Console {
	return &Console{out: w, now: time.Now}
}

// Notify imprime el evento en una línea compacta.
func (c *Console) Notify(u domain.BotUpdate) {
	ts := u.Timestamp
	if ts.IsZero() {
		ts = c.now()
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "[%s] %-5s %-10s", ts.Format("15:04:05"), actionLabel(u.Action), u.Symbol)
	switch u.Action {
	case domain.ActionBuy, domain.ActionSell:
		fmt.Fprintf(&sb, " qty %.6f @ %.2f conf %.2f", u.Quantity, u.Price, u.Confidence)
		if u.StopLoss > 0 {
			fmt.Fprintf(&sb, " SL %.2f", u.StopLoss)
		}
		if u.TakeProfit > 0 {
			fmt.Fprintf(&sb, " TP %.2f", u.TakeProfit)
		}
	}
	if u.Reason != "" {
		fmt.Fprintf(&sb, " | %s", u.Reason)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	fmt.Fprintln(c.out, sb.String())
}

// JournalTotals son los agregados del journal que se muestran en el informe.
type JournalTotals struct {
	Transactions int
	StopLosses   int
	TakeProfits  int
	Errors       int
}

// ReportInput agrupa lo que se imprime al salir.
type ReportInput struct {
	Snapshot    domain.AccountSnapshot
	Drawdown    float64
	MaxDrawdown float64
	LastTrades  int            // cuántas transacciones mostrar; 0 = 10
	Journal     *JournalTotals // nil si no hay journal
}

// PrintReport imprime el estado de la cuenta: posiciones, últimas transacciones y totales.
func (c *Console) PrintReport(in ReportInput) {
	c.mu.Lock()
	defer c.mu.Unlock()

	snap := in.Snapshot
	pnl := snap.PortfolioValue - snap.Funded

	fmt.Fprintf(c.out, "\n")
	fmt.Fprintf(c.out, "========================================================\n")
	fmt.Fprintf(c.out, "  PAPER TRADING ACCOUNT  %s\n", snap.TakenAt.Format("2006-01-02 15:04:05"))
	fmt.Fprintf(c.out, "========================================================\n")
	fmt.Fprintf(c.out, "  Balance:          $%.2f\n", snap.Balance)
	fmt.Fprintf(c.out, "  Portfolio value:  $%.2f (%+.2f, %+.2f%%)\n", snap.PortfolioValue, pnl, pct(pnl, snap.Funded))
	fmt.Fprintf(c.out, "  Drawdown:         %.2f%%", in.Drawdown*100)
	if in.MaxDrawdown > 0 {
		fmt.Fprintf(c.out, " (max %.2f%%)", in.MaxDrawdown*100)
		if in.Drawdown >= in.MaxDrawdown {
			fmt.Fprintf(c.out, "  >> LIMIT REACHED")
		}
	}
	fmt.Fprintf(c.out, "\n")

	if len(snap.Positions) > 0 {
		fmt.Fprintf(c.out, "\n  --- OPEN POSITIONS ---\n")
		tbl := tablewriter.NewWriter(c.out)
		tbl.Header("Symbol", "Qty", "Entry", "Current", "PnL", "PnL%", "SL", "TP")
		for _, p := range snap.Positions {
			tbl.Append(
				p.Symbol,
				fmt.Sprintf("%.6f", p.Quantity),
				fmt.Sprintf("%.2f", p.EntryPrice),
				fmt.Sprintf("%.2f", p.CurrentPrice),
				fmt.Sprintf("%+.2f", p.PnL),
				fmt.Sprintf("%+.2f%%", pct(p.PnL, p.Cost())),
				thresholdLabel(p.StopLoss),
				thresholdLabel(p.TakeProfit),
			)
		}
		tbl.Render()
	}

	if len(snap.Transactions) > 0 {
		limit := in.LastTrades
		if limit <= 0 {
			limit = 10
		}
		txs := snap.Transactions
		if len(txs) > limit {
			txs = txs[len(txs)-limit:]
		}

		fmt.Fprintf(c.out, "\n  --- LAST %d TRANSACTIONS (of %d) ---\n", len(txs), len(snap.Transactions))
		tbl := tablewriter.NewWriter(c.out)
		tbl.Header("Time", "Symbol", "Side", "Qty", "Price", "Notional", "Reason")
		for _, tx := range txs {
			tbl.Append(
				tx.Timestamp.Format("01-02 15:04:05"),
				tx.Symbol,
				string(tx.Type),
				fmt.Sprintf("%.6f", tx.Quantity),
				fmt.Sprintf("%.2f", tx.Price),
				fmt.Sprintf("$%.2f", tx.Notional()),
				string(tx.Reason),
			)
		}
		tbl.Render()
	}

	if in.Journal != nil {
		fmt.Fprintf(c.out, "\n  --- JOURNAL ---\n")
		fmt.Fprintf(c.out, "  Transactions:      %d\n", in.Journal.Transactions)
		fmt.Fprintf(c.out, "  Stop-loss exits:   %d\n", in.Journal.StopLosses)
		fmt.Fprintf(c.out, "  Take-profit exits: %d\n", in.Journal.TakeProfits)
		fmt.Fprintf(c.out, "  Symbol errors:     %d\n", in.Journal.Errors)
	}
	fmt.Fprintf(c.out, "\n")
}

func actionLabel(a domain.Action) string {
	switch a {
	case domain.ActionBuy:
		return "BUY"
	case domain.ActionSell:
		return "SELL"
	case domain.ActionError:
		return "ERR"
	}
	return strings.ToUpper(string(a))
}

func thresholdLabel(t domain.Threshold) string {
	if !t.Set {
		return "-"
	}
	return fmt.Sprintf("%.2f", t.Price)
}

func pct(part, whole float64) float64 {
	if whole == 0 {
		return 0
	}
	return part / whole * 100
}
