// Package execution implements the order management system: order/trade
// books, strategy-to-active-order tracking, and the injectable send path.
// Grounded on the original system's core/engine_execution.{hpp,cpp}.
package execution

import (
	"sync"

	"github.com/otrader/engine/internal/constant"
	"github.com/otrader/engine/internal/object"
)

// SendFunc is the injected transport: backtests fill it with an immediate
// synchronous acceptor, live services with a real gateway call. Returns
// the empty string on rejection at the transport layer.
type SendFunc func(req object.OrderRequest) string

// RiskCheckFunc is the injectable pre-trade risk gate from spec §9; the
// default always passes, matching the original's placeholder.
type RiskCheckFunc func(strategyName string, req object.OrderRequest) bool

func defaultRiskCheck(string, object.OrderRequest) bool { return true }

// Engine is the OMS: it tracks every order/trade and which strategy owns
// which still-active order ids.
type Engine struct {
	mu sync.Mutex

	sendImpl  SendFunc
	riskCheck RiskCheckFunc

	orders map[string]object.OrderData
	trades map[string]object.TradeData

	strategyActiveOrders map[string]map[string]struct{}
	orderIDStrategyName  map[string]string
	allActiveOrderIDs    map[string]struct{}

	accountPosition map[string]float64
}

// New constructs an Engine with the given send implementation. Pass nil
// for riskCheck to use the always-pass default.
func New(sendImpl SendFunc, riskCheck RiskCheckFunc) *Engine {
	if riskCheck == nil {
		riskCheck = defaultRiskCheck
	}
	return &Engine{
		sendImpl:             sendImpl,
		riskCheck:            riskCheck,
		orders:               make(map[string]object.OrderData),
		trades:               make(map[string]object.TradeData),
		strategyActiveOrders: make(map[string]map[string]struct{}),
		orderIDStrategyName:  make(map[string]string),
		allActiveOrderIDs:    make(map[string]struct{}),
		accountPosition:      make(map[string]float64),
	}
}

// SendOrder runs the risk check, then the injected send function, then
// registers the resulting orderid as active for strategyName. Returns
// the empty string if the risk check fails or the send function rejects.
func (e *Engine) SendOrder(strategyName string, req object.OrderRequest) string {
	if !e.riskCheck(strategyName, req) {
		return ""
	}
	var orderID string
	if e.sendImpl != nil {
		orderID = e.sendImpl(req)
	}
	if orderID != "" {
		e.registerActiveOrder(strategyName, orderID)
	}
	return orderID
}

func (e *Engine) registerActiveOrder(strategyName, orderID string) {
	if orderID == "" {
		return
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.ensureStrategyKeyLocked(strategyName)
	e.strategyActiveOrders[strategyName][orderID] = struct{}{}
	e.orderIDStrategyName[orderID] = strategyName
	e.allActiveOrderIDs[orderID] = struct{}{}
}

// SetAccountPosition records the account-level position for symbol,
// injected by the runtime or synced from a gateway.
func (e *Engine) SetAccountPosition(symbol string, position float64) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.accountPosition[symbol] = position
}

// GetAccountPosition returns 0 if symbol is unknown.
func (e *Engine) GetAccountPosition(symbol string) float64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.accountPosition[symbol]
}

// StoreOrder records order and, if its status is now terminal, drops it
// from every active-order tracking structure for strategyName.
func (e *Engine) StoreOrder(strategyName string, order object.OrderData) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.orders[order.OrderID] = order
	if constant.IsTerminalStatus(order.Status) {
		if set, ok := e.strategyActiveOrders[strategyName]; ok {
			delete(set, order.OrderID)
		}
		delete(e.orderIDStrategyName, order.OrderID)
		delete(e.allActiveOrderIDs, order.OrderID)
	}
}

// AddOrder inserts/replaces order without touching active-order tracking.
func (e *Engine) AddOrder(order object.OrderData) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.orders[order.OrderID] = order
}

// StoreTrade records trade.
func (e *Engine) StoreTrade(trade object.TradeData) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.trades[trade.TradeID] = trade
}

// GetOrder returns the order and whether it was found.
func (e *Engine) GetOrder(orderID string) (object.OrderData, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	o, ok := e.orders[orderID]
	return o, ok
}

// GetTrade returns the trade and whether it was found.
func (e *Engine) GetTrade(tradeID string) (object.TradeData, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	t, ok := e.trades[tradeID]
	return t, ok
}

// GetStrategyNameForOrder returns the empty string if orderID is unknown.
func (e *Engine) GetStrategyNameForOrder(orderID string) string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.orderIDStrategyName[orderID]
}

// GetAllOrders returns every stored order, in no particular order.
func (e *Engine) GetAllOrders() []object.OrderData {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]object.OrderData, 0, len(e.orders))
	for _, o := range e.orders {
		out = append(out, o)
	}
	return out
}

// GetAllTrades returns every stored trade, in no particular order.
func (e *Engine) GetAllTrades() []object.TradeData {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]object.TradeData, 0, len(e.trades))
	for _, t := range e.trades {
		out = append(out, t)
	}
	return out
}

// GetAllActiveOrders returns the still-active orders tracked across every
// strategy, re-checking IsActive against the stored order record.
func (e *Engine) GetAllActiveOrders() []object.OrderData {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]object.OrderData, 0, len(e.allActiveOrderIDs))
	for oid := range e.allActiveOrderIDs {
		if o, ok := e.orders[oid]; ok && o.IsActive() {
			out = append(out, o)
		}
	}
	return out
}

// GetStrategyActiveOrders returns the set of orderids still active for
// strategyName.
func (e *Engine) GetStrategyActiveOrders(strategyName string) []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	set := e.strategyActiveOrders[strategyName]
	out := make([]string, 0, len(set))
	for oid := range set {
		out = append(out, oid)
	}
	return out
}

// RemoveOrderTracking drops orderID from every active-order tracking
// structure, idempotently.
func (e *Engine) RemoveOrderTracking(orderID string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if name, ok := e.orderIDStrategyName[orderID]; ok {
		if set, ok := e.strategyActiveOrders[name]; ok {
			delete(set, orderID)
		}
		delete(e.orderIDStrategyName, orderID)
	}
	delete(e.allActiveOrderIDs, orderID)
}

// RemoveStrategyTracking drops every active order belonging to
// strategyName from tracking, idempotently.
func (e *Engine) RemoveStrategyTracking(strategyName string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	set, ok := e.strategyActiveOrders[strategyName]
	if !ok {
		return
	}
	for oid := range set {
		delete(e.orderIDStrategyName, oid)
		delete(e.allActiveOrderIDs, oid)
	}
	delete(e.strategyActiveOrders, strategyName)
}

// EnsureStrategyKey makes strategyName appear in strategy-keyed tracking
// even before it has submitted any order.
func (e *Engine) EnsureStrategyKey(strategyName string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.ensureStrategyKeyLocked(strategyName)
}

func (e *Engine) ensureStrategyKeyLocked(strategyName string) {
	if _, ok := e.strategyActiveOrders[strategyName]; !ok {
		e.strategyActiveOrders[strategyName] = make(map[string]struct{})
	}
}

// Clear resets every tracking structure and the order/trade book.
func (e *Engine) Clear() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.strategyActiveOrders = make(map[string]map[string]struct{})
	e.orderIDStrategyName = make(map[string]string)
	e.allActiveOrderIDs = make(map[string]struct{})
	e.accountPosition = make(map[string]float64)
	e.orders = make(map[string]object.OrderData)
	e.trades = make(map[string]object.TradeData)
}
