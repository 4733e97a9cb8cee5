package dispatcher

import (
	"fmt"
	"strings"

	log "github.com/sirupsen/logrus"

	"github.com/otrader/engine/internal/backtestfill"
	"github.com/otrader/engine/internal/object"
	"github.com/otrader/engine/internal/portfolio"
)

// BacktestScheduler drives the single-threaded, synchronous bar-advance
// loop: each Tick emits Snapshot(t), commits orders buffered from the
// previous Timer, then emits Timer(t). Orders a strategy sends during
// Timer(t) are queued and only reach the market at the start of Tick's
// t+1 call, so a strategy can never see its own fill before the next
// bar, per spec §4.1/§4.4.
type BacktestScheduler struct {
	Dispatcher    *Dispatcher
	PortfolioName string
	Filler        *backtestfill.Filler
	FeeSink       func(fee float64)

	pending      []backtestfill.PendingOrder
	orderCounter int
}

// NewBacktestScheduler constructs a scheduler for one portfolio. Wire
// its AcceptOrder method as the execution engine's SendFunc before
// assigning the dispatcher's Execution field.
func NewBacktestScheduler(portfolioName string, filler *backtestfill.Filler) *BacktestScheduler {
	return &BacktestScheduler{PortfolioName: portfolioName, Filler: filler}
}

// AcceptOrder is the backtest's SendFunc: it never fills synchronously,
// only assigns an orderid and queues the request for the next Tick.
func (s *BacktestScheduler) AcceptOrder(req object.OrderRequest) string {
	s.orderCounter++
	orderID := fmt.Sprintf("backtest_order_%d", s.orderCounter)
	s.pending = append(s.pending, backtestfill.PendingOrder{OrderID: orderID, Request: req})
	return orderID
}

// Tick advances the backtest by one bar.
func (s *BacktestScheduler) Tick(snapshot object.PortfolioSnapshot) []object.LogData {
	if s.Dispatcher == nil {
		log.Fatal("backtest scheduler: dispatcher is unset")
	}
	var logs []object.LogData
	logs = append(logs, s.Dispatcher.DispatchSnapshot(s.PortfolioName, snapshot)...)
	logs = append(logs, s.commitPendingOrders()...)
	logs = append(logs, s.Dispatcher.DispatchTimer()...)
	return logs
}

// PendingCount reports how many orders are queued for the next Tick.
func (s *BacktestScheduler) PendingCount() int { return len(s.pending) }

func (s *BacktestScheduler) commitPendingOrders() []object.LogData {
	if len(s.pending) == 0 || s.Filler == nil {
		return nil
	}
	pf := s.Dispatcher.resolvePortfolio(s.PortfolioName)
	quote := quoteFromPortfolio(pf)

	batch := s.pending
	s.pending = nil

	results, fees, logs := s.Filler.ExecutePendingOrders(batch, quote)
	if s.FeeSink != nil && fees != 0 {
		s.FeeSink(fees)
	}

	for _, r := range results {
		strategyName := s.Dispatcher.Execution.GetStrategyNameForOrder(r.Order.OrderID)
		s.Dispatcher.DispatchOrder(strategyName, r.Order)
		for _, trade := range r.Trades {
			s.Dispatcher.DispatchTrade(strategyName, trade)
		}
	}
	return logs
}

// quoteFromPortfolio resolves a backtestfill.QuoteFunc from live
// portfolio state: ".STK"-suffixed symbols (and the underlying's own
// symbol) quote off the underlying, everything else off its OptionData.
func quoteFromPortfolio(pf *portfolio.PortfolioData) backtestfill.QuoteFunc {
	return func(symbol string) (bid, ask float64) {
		if pf == nil {
			return 0, 0
		}
		if strings.HasSuffix(symbol, ".STK") || (pf.Underlying != nil && symbol == pf.Underlying.Symbol) {
			if pf.Underlying != nil {
				return pf.Underlying.BidPrice, pf.Underlying.AskPrice
			}
			return 0, 0
		}
		if opt, ok := pf.Options[symbol]; ok {
			return opt.BidPrice, opt.AskPrice
		}
		return 0, 0
	}
}
