// Package dispatcher wires the portfolio, execution, position, hedge,
// and strategy engines into the fixed per-event handler chain, and
// drives that chain under either of two scheduling models: a
// single-threaded synchronous backtest loop, and a live loop with an
// MPSC event queue and a periodic timer goroutine. Grounded on the
// original system's engine_event/engine_main dispatch contract and
// runtime/backtest/engine_backtest.cpp's bar-advance loop.
package dispatcher

import (
	"github.com/otrader/engine/internal/execution"
	"github.com/otrader/engine/internal/hedge"
	"github.com/otrader/engine/internal/object"
	"github.com/otrader/engine/internal/portfolio"
	"github.com/otrader/engine/internal/position"
	"github.com/otrader/engine/internal/strategy"
)

// GetPortfolioFunc resolves a named portfolio, shared with the position
// engine's timer rollup.
type GetPortfolioFunc = position.GetPortfolioFunc

// GetContractFunc resolves a tradable contract by symbol, used by the
// hedge controller to build its order requests.
type GetContractFunc func(symbol string) *object.ContractData

// GatewayTickFunc polls the live market-data gateway once per Timer
// tick; nil in backtest. Any log intents it wants emitted are returned.
type GatewayTickFunc func() []object.LogData

// ContractHandlerFunc registers a newly-seen contract with the
// market-data engine (building/attaching its chain); live only.
type ContractHandlerFunc func(contract object.ContractData)

// Dispatcher owns the fixed handler order for every event kind and
// re-emits engine-produced intents (orders, cancels) through Execution.
// Strategy hooks are not part of this re-emission path: strategies hold
// Execution directly via closure, per spec §4.1's transport/policy split.
type Dispatcher struct {
	GetPortfolio GetPortfolioFunc
	GetContract  GetContractFunc

	Execution  *execution.Engine
	Position   *position.Engine
	Hedge      *hedge.Engine
	Strategies *strategy.Registry

	// CancelFunc is the injected cancel transport (backtest: drop the
	// queued order; live: a real gateway cancel call). Optional; when
	// nil, a cancel intent still drops the order from OMS tracking.
	CancelFunc func(object.CancelRequest)

	// Live-only hooks; leave nil for a backtest dispatcher.
	GatewayTick GatewayTickFunc
	OnContract  ContractHandlerFunc
	IsLive      bool
}

// New constructs a Dispatcher wiring the given engines.
func New(getPortfolio GetPortfolioFunc, exec *execution.Engine, pos *position.Engine, hedgeEngine *hedge.Engine, strategies *strategy.Registry) *Dispatcher {
	return &Dispatcher{
		GetPortfolio: getPortfolio,
		Execution:    exec,
		Position:     pos,
		Hedge:        hedgeEngine,
		Strategies:   strategies,
	}
}

// DispatchSnapshot runs the Snapshot handler chain: Portfolio apply_frame.
// Data-error log intents apply_frame produces (length mismatch, missing
// BBO) are returned for the caller to sink, the same contract DispatchTimer
// uses for its own log intents.
func (d *Dispatcher) DispatchSnapshot(portfolioName string, snapshot object.PortfolioSnapshot) []object.LogData {
	pf := d.resolvePortfolio(portfolioName)
	if pf == nil {
		return nil
	}
	logs := pf.ApplyFrame(snapshot)
	Bus.Publish(TopicSnapshotApplied, portfolioName)
	return logs
}

// DispatchTimer runs the Timer handler chain: Gateway tick (live only) ->
// Position metrics rollup -> Hedge controller (every registered
// strategy) -> Strategy on_timer. Hedge- and position-produced log
// intents are returned for the caller to sink; hedge order/cancel
// intents are re-emitted through Execution before this returns.
func (d *Dispatcher) DispatchTimer() []object.LogData {
	var logs []object.LogData

	if d.IsLive && d.GatewayTick != nil {
		logs = append(logs, d.GatewayTick()...)
	}

	if d.Position != nil && d.GetPortfolio != nil {
		logs = append(logs, d.Position.ProcessTimerEvent(d.GetPortfolio)...)
	}

	if d.Hedge != nil {
		for strategyName := range d.Hedge.RegisteredStrategies() {
			orders, cancels, hlogs := d.runHedgeForStrategy(strategyName)
			logs = append(logs, hlogs...)
			d.emitOrders(strategyName, orders)
			d.emitCancels(cancels)
		}
	}

	if d.Strategies != nil {
		for _, s := range d.Strategies.All() {
			s.Timer()
		}
	}

	Bus.Publish(TopicTimerProcessed, logs)
	return logs
}

func (d *Dispatcher) runHedgeForStrategy(strategyName string) ([]object.OrderRequest, []object.CancelRequest, []object.LogData) {
	pf := d.resolvePortfolio(position.PortfolioNameForStrategy(strategyName))
	var holdingPtr *object.StrategyHolding
	if d.Position != nil {
		if h, ok := d.Position.GetHolding(strategyName); ok {
			holdingPtr = &h
		}
	}
	params := hedge.Params{
		Portfolio:    pf,
		Holding:      holdingPtr,
		GetContract:  d.GetContract,
		ActiveOrders: d.strategyActiveOrders,
		GetOrder:     d.lookupOrder,
	}
	return d.Hedge.ProcessHedging(strategyName, params)
}

func (d *Dispatcher) strategyActiveOrders(strategyName string) []string {
	if d.Execution == nil {
		return nil
	}
	return d.Execution.GetStrategyActiveOrders(strategyName)
}

func (d *Dispatcher) lookupOrder(orderID string) *object.OrderData {
	if d.Execution == nil {
		return nil
	}
	o, ok := d.Execution.GetOrder(orderID)
	if !ok {
		return nil
	}
	return &o
}

// DispatchOrder runs the Order handler chain: OMS store -> Position
// order-meta -> Strategy on_order.
func (d *Dispatcher) DispatchOrder(strategyName string, order object.OrderData) {
	if d.Execution != nil {
		d.Execution.StoreOrder(strategyName, order)
	}
	if d.Position != nil {
		d.Position.ProcessOrder(order)
	}
	if d.Strategies != nil {
		if s, ok := d.Strategies.Get(strategyName); ok {
			s.Order(order)
		}
	}
	Bus.Publish(TopicOrderProcessed, order)
}

// DispatchTrade runs the Trade handler chain: OMS store -> Position
// trade-apply -> Strategy on_trade.
func (d *Dispatcher) DispatchTrade(strategyName string, trade object.TradeData) {
	if d.Execution != nil {
		d.Execution.StoreTrade(trade)
	}
	if d.Position != nil {
		d.Position.ProcessTrade(strategyName, trade)
	}
	if d.Strategies != nil {
		if s, ok := d.Strategies.Get(strategyName); ok {
			s.Trade(trade)
		}
	}
	Bus.Publish(TopicTradeProcessed, trade)
}

// DispatchContract runs the Contract handler chain (live only):
// market-data engine registers the contract and builds its chains.
func (d *Dispatcher) DispatchContract(contract object.ContractData) {
	if !d.IsLive || d.OnContract == nil {
		return
	}
	d.OnContract(contract)
}

func (d *Dispatcher) resolvePortfolio(name string) *portfolio.PortfolioData {
	if d.GetPortfolio == nil {
		return nil
	}
	return d.GetPortfolio(name)
}

func (d *Dispatcher) emitOrders(strategyName string, reqs []object.OrderRequest) {
	if d.Execution == nil {
		return
	}
	for _, req := range reqs {
		d.Execution.SendOrder(strategyName, req)
	}
}

func (d *Dispatcher) emitCancels(cancels []object.CancelRequest) {
	for _, c := range cancels {
		if d.CancelFunc != nil {
			d.CancelFunc(c)
		}
		if d.Execution != nil {
			d.Execution.RemoveOrderTracking(c.OrderID)
		}
	}
}
