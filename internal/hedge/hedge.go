// Package hedge implements centralized per-strategy delta hedging: plan
// computation against a configured delta target/range, at-most-one
// outstanding hedge sequence per strategy, and the close-then-open market
// order split. Grounded on the original system's
// core/engine_hedge.{hpp,cpp}.
package hedge

import (
	"math"
	"strings"

	"github.com/otrader/engine/internal/constant"
	"github.com/otrader/engine/internal/object"
	"github.com/otrader/engine/internal/portfolio"
)

const appName = "Hedge"

// Config is a strategy's hedge policy.
type Config struct {
	StrategyName string
	TimerTrigger int
	DeltaTarget  int
	DeltaRange   int
}

// Params is the read-only context the engine needs for one hedging pass;
// it carries no execution callbacks, only lookups, matching the
// original's intent-returning design.
type Params struct {
	Portfolio    *portfolio.PortfolioData
	Holding      *object.StrategyHolding
	GetContract  func(symbol string) *object.ContractData
	ActiveOrders func(strategyName string) []string
	GetOrder     func(orderID string) *object.OrderData
}

// Engine runs delta hedging for every registered strategy.
type Engine struct {
	registered map[string]*Config
}

// New constructs an empty Engine.
func New() *Engine {
	return &Engine{registered: make(map[string]*Config)}
}

// RegisterStrategy installs (or replaces) strategyName's hedge config.
// Every field is stored as given; no defaults are applied.
func (e *Engine) RegisterStrategy(strategyName string, timerTrigger, deltaTarget, deltaRange int) {
	e.registered[strategyName] = &Config{
		StrategyName: strategyName,
		TimerTrigger: timerTrigger,
		DeltaTarget:  deltaTarget,
		DeltaRange:   deltaRange,
	}
}

// UnregisterStrategy drops strategyName's hedge config.
func (e *Engine) UnregisterStrategy(strategyName string) {
	delete(e.registered, strategyName)
}

// RegisteredStrategies returns the live config map (not a copy).
func (e *Engine) RegisteredStrategies() map[string]*Config { return e.registered }

// ProcessHedging runs one hedging pass for strategyName, returning the
// orders/cancels/logs it wants issued. A strategy with no registered
// config produces nothing.
func (e *Engine) ProcessHedging(strategyName string, params Params) (orders []object.OrderRequest, cancels []object.CancelRequest, logs []object.LogData) {
	config, ok := e.registered[strategyName]
	if !ok {
		return nil, nil, nil
	}
	return e.runStrategyHedging(strategyName, config, params)
}

func (e *Engine) runStrategyHedging(strategyName string, config *Config, params Params) (orders []object.OrderRequest, cancels []object.CancelRequest, logs []object.LogData) {
	if !checkStrategyOrdersFinished(strategyName, params) {
		cancels = cancelStrategyOrders(strategyName, params)
		return nil, cancels, nil
	}
	plan, ok := computeHedgePlan(config, params)
	if !ok {
		return nil, nil, nil
	}
	return executeHedgeOrders(strategyName, plan, params)
}

type hedgePlan struct {
	symbol      string
	direction   constant.Direction
	available   float64
	orderVolume float64
}

// computeHedgePlan decides whether strategyName needs a hedge order and,
// if so, the symbol/direction/volume, and how much of the existing
// underlying position is available to close into the hedge before
// opening fresh.
func computeHedgePlan(config *Config, params Params) (hedgePlan, bool) {
	if params.Holding == nil || params.Portfolio == nil || params.Portfolio.Underlying == nil {
		return hedgePlan{}, false
	}

	totalDelta := params.Holding.Summary.Delta
	deltaMax := float64(config.DeltaTarget + config.DeltaRange)
	deltaMin := float64(config.DeltaTarget - config.DeltaRange)
	if totalDelta >= deltaMin && totalDelta <= deltaMax {
		return hedgePlan{}, false
	}

	deltaToHedge := float64(config.DeltaTarget) - totalDelta
	underlying := params.Portfolio.Underlying
	theoDelta := underlying.TheoDelta
	if theoDelta == 0 {
		theoDelta = 1.0
	}
	hedgeVolume := deltaToHedge / theoDelta
	symbol := underlying.Symbol

	if params.GetContract == nil {
		return hedgePlan{}, false
	}
	contract := params.GetContract(symbol)
	if contract == nil || math.Abs(hedgeVolume) < 1 {
		return hedgePlan{}, false
	}

	qty := params.Holding.UnderlyingPosition.Quantity
	var direction constant.Direction
	var available float64
	if hedgeVolume > 0 {
		direction = constant.Long
		if qty < 0 {
			available = math.Abs(float64(qty))
		}
	} else {
		direction = constant.Short
		if qty > 0 {
			available = float64(qty)
		}
	}
	return hedgePlan{symbol: symbol, direction: direction, available: available, orderVolume: math.Abs(hedgeVolume)}, true
}

// executeHedgeOrders splits the plan into a close order (against the
// opposing position, up to available) and an open order for whatever
// volume remains.
func executeHedgeOrders(strategyName string, plan hedgePlan, params Params) (orders []object.OrderRequest, cancels []object.CancelRequest, logs []object.LogData) {
	remaining := plan.orderVolume
	if plan.available > 0 {
		closeVol := math.Min(plan.available, plan.orderVolume)
		o, l := submitHedgeOrder(strategyName, plan.symbol, plan.direction, closeVol, params)
		orders, logs = appendIfNonNil(orders, o), appendLogIfNonNil(logs, l)
		remaining -= closeVol
	}
	if remaining > 0 {
		o, l := submitHedgeOrder(strategyName, plan.symbol, plan.direction, remaining, params)
		orders, logs = appendIfNonNil(orders, o), appendLogIfNonNil(logs, l)
	}
	return orders, cancels, logs
}

func appendIfNonNil(orders []object.OrderRequest, o *object.OrderRequest) []object.OrderRequest {
	if o == nil {
		return orders
	}
	return append(orders, *o)
}

func appendLogIfNonNil(logs []object.LogData, l *object.LogData) []object.LogData {
	if l == nil {
		return logs
	}
	return append(logs, *l)
}

func submitHedgeOrder(strategyName, symbol string, direction constant.Direction, volume float64, params Params) (*object.OrderRequest, *object.LogData) {
	if params.GetContract == nil {
		return nil, nil
	}
	contract := params.GetContract(symbol)
	if contract == nil {
		return nil, nil
	}
	req := object.OrderRequest{
		Symbol:       contract.Symbol,
		Exchange:     contract.Exchange,
		Direction:    direction,
		Type:         constant.Market,
		Volume:       volume,
		Price:        0,
		Reference:    appName + "_" + strategyName,
		TradingClass: contract.TradingClass,
	}
	log := object.LogData{
		BaseData: object.BaseData{GatewayName: appName},
		Msg:      "hedge sending order",
		Level:    object.LogInfo,
	}
	return &req, &log
}

// checkStrategyOrdersFinished reports whether strategyName has no
// still-active order whose reference names the hedge engine. Missing
// lookup hooks default to "finished" (true), matching the original.
func checkStrategyOrdersFinished(strategyName string, params Params) bool {
	if params.ActiveOrders == nil || params.GetOrder == nil {
		return true
	}
	for _, orderID := range params.ActiveOrders(strategyName) {
		order := params.GetOrder(orderID)
		if order != nil && strings.Contains(order.Reference, appName) {
			return false
		}
	}
	return true
}

// cancelStrategyOrders builds cancel requests for every active order
// belonging to strategyName whose reference names the hedge engine, so
// at most one hedge sequence is ever outstanding per strategy.
func cancelStrategyOrders(strategyName string, params Params) []object.CancelRequest {
	if params.ActiveOrders == nil || params.GetOrder == nil {
		return nil
	}
	var out []object.CancelRequest
	for _, orderID := range params.ActiveOrders(strategyName) {
		order := params.GetOrder(orderID)
		if order != nil && strings.Contains(order.Reference, appName) {
			out = append(out, order.CreateCancelRequest())
		}
	}
	return out
}
