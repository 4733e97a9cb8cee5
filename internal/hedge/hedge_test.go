package hedge

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/otrader/engine/internal/constant"
	"github.com/otrader/engine/internal/object"
	"github.com/otrader/engine/internal/portfolio"
)

func testPortfolio(t *testing.T) *portfolio.PortfolioData {
	pf := portfolio.NewPortfolioData("default")
	pf.SetUnderlying(object.ContractData{Symbol: "AAPL"})
	return pf
}

func TestProcessHedging_NoConfigProducesNothing(t *testing.T) {
	e := New()
	orders, cancels, logs := e.ProcessHedging("strat-a", Params{})
	require.Empty(t, orders)
	require.Empty(t, cancels)
	require.Empty(t, logs)
}

func TestProcessHedging_WithinRangeProducesNothing(t *testing.T) {
	e := New()
	e.RegisterStrategy("strat-a", 5, 0, 10)

	holding := object.NewStrategyHolding()
	holding.Summary.Delta = 5
	pf := testPortfolio(t)

	orders, cancels, logs := e.ProcessHedging("strat-a", Params{Portfolio: pf, Holding: &holding})
	require.Empty(t, orders)
	require.Empty(t, cancels)
	require.Empty(t, logs)
}

func TestProcessHedging_OutsideRangeSendsMarketOrder(t *testing.T) {
	e := New()
	e.RegisterStrategy("strat-a", 5, 0, 10)

	holding := object.NewStrategyHolding()
	holding.Summary.Delta = 50
	pf := testPortfolio(t)

	contract := object.ContractData{Symbol: "AAPL", TradingClass: "AAPL"}
	params := Params{
		Portfolio:   pf,
		Holding:     &holding,
		GetContract: func(symbol string) *object.ContractData { return &contract },
	}

	orders, cancels, logs := e.ProcessHedging("strat-a", params)
	require.Empty(t, cancels)
	require.Len(t, orders, 1)
	require.Equal(t, constant.Short, orders[0].Direction)
	require.Equal(t, constant.Market, orders[0].Type)
	require.InDelta(t, 50.0, orders[0].Volume, 1e-9)
	require.Equal(t, "Hedge_strat-a", orders[0].Reference)
	require.Len(t, logs, 1)
}

func TestProcessHedging_ClosesOpposingPositionFirst(t *testing.T) {
	e := New()
	e.RegisterStrategy("strat-a", 5, 0, 10)

	holding := object.NewStrategyHolding()
	holding.Summary.Delta = 50
	holding.UnderlyingPosition.Quantity = 30 // opposes the SHORT hedge direction
	pf := testPortfolio(t)

	contract := object.ContractData{Symbol: "AAPL"}
	params := Params{
		Portfolio:   pf,
		Holding:     &holding,
		GetContract: func(symbol string) *object.ContractData { return &contract },
	}

	orders, _, _ := e.ProcessHedging("strat-a", params)
	require.Len(t, orders, 2)
	require.InDelta(t, 30.0, orders[0].Volume, 1e-9) // close existing long 30
	require.InDelta(t, 20.0, orders[1].Volume, 1e-9) // open remaining 20
}

func TestProcessHedging_ActiveHedgeOrderSuppressesPlanning(t *testing.T) {
	e := New()
	e.RegisterStrategy("strat-a", 5, 0, 10)

	holding := object.NewStrategyHolding()
	holding.Summary.Delta = 50
	pf := testPortfolio(t)

	activeOrder := object.OrderData{OrderID: "o1", Reference: "Hedge_strat-a"}
	params := Params{
		Portfolio:    pf,
		Holding:      &holding,
		ActiveOrders: func(strategyName string) []string { return []string{"o1"} },
		GetOrder: func(orderID string) *object.OrderData {
			if orderID == "o1" {
				return &activeOrder
			}
			return nil
		},
	}

	orders, cancels, _ := e.ProcessHedging("strat-a", params)
	require.Empty(t, orders)
	require.Len(t, cancels, 1)
	require.Equal(t, "o1", cancels[0].OrderID)
}

func TestUnregisterStrategy(t *testing.T) {
	e := New()
	e.RegisterStrategy("strat-a", 5, 0, 10)
	e.UnregisterStrategy("strat-a")

	orders, cancels, logs := e.ProcessHedging("strat-a", Params{})
	require.Empty(t, orders)
	require.Empty(t, cancels)
	require.Empty(t, logs)
}
