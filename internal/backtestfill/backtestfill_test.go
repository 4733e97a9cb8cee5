package backtestfill

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/otrader/engine/internal/constant"
	"github.com/otrader/engine/internal/object"
)

func quoteFor(quotes map[string][2]float64) QuoteFunc {
	return func(symbol string) (float64, float64) {
		q, ok := quotes[symbol]
		if !ok {
			return 0, 0
		}
		return q[0], q[1]
	}
}

func TestExecutePendingOrders_LimitLongFillsAtAsk(t *testing.T) {
	f := NewFiller(0, 0)
	quote := quoteFor(map[string][2]float64{"AAPL": {99, 100}})
	pending := []PendingOrder{{
		OrderID:      "o1",
		StrategyName: "s1",
		Request:      object.OrderRequest{Symbol: "AAPL", Direction: constant.Long, Type: constant.Limit, Price: 101, Volume: 5},
	}}

	results, fees, logs := f.ExecutePendingOrders(pending, quote)
	require.Len(t, results, 1)
	require.Equal(t, 0.0, fees)
	require.Empty(t, logs)
	require.Equal(t, constant.AllTraded, results[0].Order.Status)
	require.Equal(t, 5.0, results[0].Order.Traded)
	require.Len(t, results[0].Trades, 1)
	require.Equal(t, 100.0, results[0].Trades[0].Price)
}

func TestExecutePendingOrders_LimitShortAboveBidDoesNotFill(t *testing.T) {
	f := NewFiller(0, 0)
	quote := quoteFor(map[string][2]float64{"AAPL": {99, 100}})
	pending := []PendingOrder{{
		OrderID:      "o1",
		StrategyName: "s1",
		Request:      object.OrderRequest{Symbol: "AAPL", Direction: constant.Short, Type: constant.Limit, Price: 100, Volume: 5},
	}}

	results, _, _ := f.ExecutePendingOrders(pending, quote)
	require.Equal(t, constant.NotTraded, results[0].Order.Status)
	require.Equal(t, 0.0, results[0].Order.Traded)
	require.Empty(t, results[0].Trades)
}

func TestExecutePendingOrders_MarketAppliesSlippage(t *testing.T) {
	f := NewFiller(0, 100) // 1%
	quote := quoteFor(map[string][2]float64{"AAPL": {99, 100}})
	pending := []PendingOrder{{
		OrderID:      "o1",
		StrategyName: "s1",
		Request:      object.OrderRequest{Symbol: "AAPL", Direction: constant.Long, Type: constant.Market, Volume: 1},
	}}

	results, _, _ := f.ExecutePendingOrders(pending, quote)
	require.InDelta(t, 101.0, results[0].Trades[0].Price, 1e-9)
}

func TestExecutePendingOrders_ComboLimitFillsAndEmitsLegTrades(t *testing.T) {
	f := NewFiller(0.35, 0)
	quote := quoteFor(map[string][2]float64{
		"AAPL-C-150": {4.0, 4.2},
		"AAPL-C-160": {1.0, 1.2},
	})
	req := object.OrderRequest{
		Symbol:    "AAPL_SPREAD",
		Direction: constant.Long,
		Type:      constant.Limit,
		Price:     6.0,
		Volume:    2,
		IsCombo:   true,
		Legs: []object.Leg{
			{Symbol: "AAPL-C-150", Direction: constant.Long, Ratio: 1},
			{Symbol: "AAPL-C-160", Direction: constant.Short, Ratio: 1},
		},
	}
	pending := []PendingOrder{{OrderID: "o1", StrategyName: "s1", Request: req}}

	results, fees, logs := f.ExecutePendingOrders(pending, quote)
	require.Equal(t, constant.AllTraded, results[0].Order.Status)
	require.Len(t, results[0].Trades, 3) // aggregate + 2 legs
	require.InDelta(t, 5.4, results[0].Trades[0].Price, 1e-9)
	require.Equal(t, "AAPL-C-150", results[0].Trades[1].Symbol)
	require.InDelta(t, 4.2, results[0].Trades[1].Price, 1e-9)
	require.Equal(t, "AAPL-C-160", results[0].Trades[2].Symbol)
	require.InDelta(t, 1.0, results[0].Trades[2].Price, 1e-9)
	require.InDelta(t, 4*0.35, fees, 1e-9) // 2 legs * volume 2 * |ratio 1| = 4 contracts
	require.Empty(t, logs)
}

func TestExecutePendingOrders_ComboLogsMissingLegBBO(t *testing.T) {
	f := NewFiller(0, 0)
	quote := quoteFor(map[string][2]float64{
		"AAPL-C-150": {4.0, 4.2},
	})
	req := object.OrderRequest{
		Symbol:    "AAPL_SPREAD",
		Direction: constant.Long,
		Type:      constant.Limit,
		Price:     6.0,
		Volume:    2,
		IsCombo:   true,
		Legs: []object.Leg{
			{Symbol: "AAPL-C-150", Direction: constant.Long, Ratio: 1},
			{Symbol: "AAPL-C-160", Direction: constant.Short, Ratio: 1},
		},
	}
	pending := []PendingOrder{{OrderID: "o1", StrategyName: "s1", Request: req}}

	results, _, logs := f.ExecutePendingOrders(pending, quote)
	require.Equal(t, constant.NotTraded, results[0].Order.Status)
	require.Len(t, logs, 1)
	require.Equal(t, object.LogWarn, logs[0].Level)
}
