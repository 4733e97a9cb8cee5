// Package backtestfill implements the next-bar fill model: queued order
// requests are executed against the following bar's BBO, with a strict
// crossing model for LIMIT orders and slippage-adjusted fills for MARKET
// orders. Grounded on the original system's
// runtime/backtest/engine_backtest.{hpp,cpp}.
package backtestfill

import (
	"fmt"
	"math"

	"github.com/otrader/engine/internal/constant"
	"github.com/otrader/engine/internal/object"
)

// QuoteFunc returns the current bid/ask for symbol, or (0, 0) if unknown.
type QuoteFunc func(symbol string) (bid, ask float64)

// PendingOrder is one order queued during bar t, to be executed at the
// start of bar t+1.
type PendingOrder struct {
	OrderID      string
	StrategyName string
	Request      object.OrderRequest
}

// FillResult is the outcome of executing one PendingOrder: the updated
// order record plus any trades it produced (the aggregate trade first,
// then one per leg for a combo).
type FillResult struct {
	StrategyName string
	Order        object.OrderData
	Trades       []object.TradeData
	Fee          float64
	Logs         []object.LogData
}

// Filler holds the backtest's execution-cost configuration: a flat
// per-contract fee and MARKET-order slippage in basis points.
type Filler struct {
	FeeRate     float64
	SlippageBps float64
}

// NewFiller constructs a Filler; a negative slippageBps clamps to zero.
func NewFiller(feeRate, slippageBps float64) *Filler {
	if slippageBps < 0 {
		slippageBps = 0
	}
	return &Filler{FeeRate: feeRate, SlippageBps: slippageBps}
}

// ExecutePendingOrders drains pending in insertion order against quote,
// returning one FillResult per order. Cumulative fees are returned
// summed so the caller can add them to a running counter.
func (f *Filler) ExecutePendingOrders(pending []PendingOrder, quote QuoteFunc) (results []FillResult, totalFees float64, logs []object.LogData) {
	results = make([]FillResult, 0, len(pending))
	for _, p := range pending {
		r := f.executeOne(p, quote)
		results = append(results, r)
		totalFees += r.Fee
		logs = append(logs, r.Logs...)
	}
	return results, totalFees, logs
}

func (f *Filler) executeOne(p PendingOrder, quote QuoteFunc) FillResult {
	req := p.Request
	isLimit := req.Type == constant.Limit && req.Price > 0

	var fillPrice float64
	var filled bool
	var logs []object.LogData

	if isLimit {
		fillPrice, filled, logs = f.tryLimitFill(req, quote)
	} else {
		fillPrice, filled, logs = f.tryMarketFill(req, quote)
		if filled && f.SlippageBps > 0 && fillPrice > 0 {
			mult := 1.0 + f.SlippageBps/1e4
			if req.Direction == constant.Long {
				fillPrice *= mult
			} else {
				fillPrice *= 2.0 - mult
			}
		}
	}

	order := req.CreateOrderData(p.OrderID, "Backtest")
	if filled {
		order.Status = constant.AllTraded
		order.Traded = order.Volume
	} else {
		order.Status = constant.NotTraded
		order.Traded = 0
	}

	result := FillResult{StrategyName: p.StrategyName, Order: order, Logs: logs}
	if !filled {
		return result
	}

	root := object.NewTradeID()
	result.Trades = append(result.Trades, object.TradeData{
		BaseData:  object.BaseData{GatewayName: "Backtest"},
		Symbol:    req.Symbol,
		Exchange:  req.Exchange,
		OrderID:   p.OrderID,
		TradeID:   root,
		Direction: req.Direction,
		Price:     fillPrice,
		Volume:    req.Volume,
	})

	if req.IsCombo {
		for i, leg := range req.Legs {
			bid, ask := quote(leg.Symbol)
			legPrice := ask
			if leg.Direction != constant.Long {
				legPrice = bid
			}
			if legPrice <= 0 {
				legPrice = fillPrice // fallback for combo aggregate
			}
			result.Trades = append(result.Trades, object.TradeData{
				BaseData:  object.BaseData{GatewayName: "Backtest"},
				Symbol:    leg.Symbol,
				Exchange:  leg.Exchange,
				OrderID:   p.OrderID,
				TradeID:   object.LegTradeID(root, i),
				Direction: leg.Direction,
				Price:     legPrice,
				Volume:    req.Volume * math.Abs(float64(leg.Ratio)),
			})
		}
	}

	result.Fee = f.calculateFee(req)
	return result
}

// tryLimitFill implements the strict crossing model: a long fills only
// when its limit is at or above the ask, a short only at or below the
// bid. Combo orders sum leg bid/ask weighted by |ratio|.
func (f *Filler) tryLimitFill(req object.OrderRequest, quote QuoteFunc) (fillPrice float64, filled bool, logs []object.LogData) {
	limit := req.Price
	if req.IsCombo && len(req.Legs) > 0 {
		totalBid, totalAsk, ok, legLogs := sumLegBidAsk(req.Legs, quote)
		if !ok {
			return 0, false, legLogs
		}
		if req.Direction == constant.Long {
			if limit >= totalAsk && totalAsk > 0 {
				return totalAsk, true, legLogs
			}
			return 0, false, legLogs
		}
		if limit <= totalBid && totalBid > 0 {
			return totalBid, true, legLogs
		}
		return 0, false, legLogs
	}

	bid, ask := quote(req.Symbol)
	if req.Direction == constant.Long {
		if limit >= ask && ask > 0 {
			return ask, true, nil
		}
		return 0, false, nil
	}
	if limit <= bid && bid > 0 {
		return bid, true, nil
	}
	return 0, false, nil
}

// tryMarketFill fills a long at the ask and a short at the bid, combo
// orders against the leg-weighted sums; slippage is applied by the
// caller afterward.
func (f *Filler) tryMarketFill(req object.OrderRequest, quote QuoteFunc) (fillPrice float64, filled bool, logs []object.LogData) {
	if req.IsCombo && len(req.Legs) > 0 {
		totalBid, totalAsk, ok, legLogs := sumLegBidAsk(req.Legs, quote)
		if !ok {
			return 0, false, legLogs
		}
		if req.Direction == constant.Long {
			return totalAsk, totalAsk > 0, legLogs
		}
		return totalBid, totalBid > 0, legLogs
	}

	bid, ask := quote(req.Symbol)
	if req.Direction == constant.Long {
		return ask, ask > 0, nil
	}
	return bid, bid > 0, nil
}

// sumLegBidAsk sums a combo's leg bid/ask weighted by |ratio|. A leg
// with no BBO at all is a spec §7 Data error: logged at WARNING and
// the whole combo quote treated as unfillable (ok=false).
func sumLegBidAsk(legs []object.Leg, quote QuoteFunc) (totalBid, totalAsk float64, ok bool, logs []object.LogData) {
	for _, leg := range legs {
		bid, ask := quote(leg.Symbol)
		if bid <= 0 && ask <= 0 {
			logs = append(logs, object.LogData{
				BaseData: object.BaseData{GatewayName: "Backtestfill"},
				Msg:      fmt.Sprintf("missing BBO for combo leg %s, skipped", leg.Symbol),
				Level:    object.LogWarn,
			})
			return 0, 0, false, logs
		}
		q := math.Abs(float64(leg.Ratio))
		totalBid += bid * q
		totalAsk += ask * q
	}
	return totalBid, totalAsk, true, logs
}

// calculateFee is the flat per-contract fee times total contracts traded
// (leg volume weighted by |ratio| for a combo, |volume| otherwise).
func (f *Filler) calculateFee(req object.OrderRequest) float64 {
	if f.FeeRate <= 0 {
		return 0
	}
	totalContracts := math.Abs(req.Volume)
	if req.IsCombo && len(req.Legs) > 0 {
		totalContracts = 0
		for _, leg := range req.Legs {
			totalContracts += math.Abs(req.Volume * math.Abs(float64(leg.Ratio)))
		}
	}
	return totalContracts * f.FeeRate
}
