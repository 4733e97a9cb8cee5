package position

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/otrader/engine/internal/constant"
	"github.com/otrader/engine/internal/object"
	"github.com/otrader/engine/internal/portfolio"
)

func TestProcessTrade_SingleLegOption_OpenThenClose(t *testing.T) {
	eng := New()

	eng.ProcessTrade("strat-a", object.TradeData{
		TradeID: "t1", OrderID: "o1", Symbol: "AAPL-20250117-C-150-100",
		Direction: constant.Long, Price: 2.5, Volume: 1,
	})

	holding, ok := eng.GetHolding("strat-a")
	require.True(t, ok)
	pos := holding.OptionPositions["AAPL-20250117-C-150-100"]
	require.NotNil(t, pos)
	require.Equal(t, 1, pos.Quantity)
	require.Equal(t, 2.5, pos.AvgCost)

	eng.ProcessTrade("strat-a", object.TradeData{
		TradeID: "t2", OrderID: "o1", Symbol: "AAPL-20250117-C-150-100",
		Direction: constant.Short, Price: 4.0, Volume: 1,
	})

	holding, _ = eng.GetHolding("strat-a")
	pos = holding.OptionPositions["AAPL-20250117-C-150-100"]
	require.Equal(t, 0, pos.Quantity)
	require.InDelta(t, 150.0, pos.RealizedPnl, 1e-9) // (4.0-2.5)*1*100
}

func TestProcessTrade_Idempotent(t *testing.T) {
	eng := New()
	trade := object.TradeData{TradeID: "t1", OrderID: "o1", Symbol: "AAPL-20250117-C-150-100", Direction: constant.Long, Price: 2.5, Volume: 1}

	eng.ProcessTrade("strat-a", trade)
	eng.ProcessTrade("strat-a", trade)

	holding, _ := eng.GetHolding("strat-a")
	pos := holding.OptionPositions["AAPL-20250117-C-150-100"]
	require.Equal(t, 1, pos.Quantity)
}

func TestProcessTrade_UnderlyingSTKSuffix(t *testing.T) {
	eng := New()
	eng.ProcessTrade("strat-a", object.TradeData{
		TradeID: "t1", OrderID: "o1", Symbol: "AAPL.STK",
		Direction: constant.Long, Price: 150.0, Volume: 100,
	})

	holding, _ := eng.GetHolding("strat-a")
	require.Equal(t, 100, holding.UnderlyingPosition.Quantity)
	require.Equal(t, "AAPL.STK", holding.UnderlyingPosition.Symbol)
}

func TestProcessTrade_ComboAggregateAndLeg(t *testing.T) {
	eng := New()
	comboType := constant.ComboSpread
	eng.ProcessOrder(object.OrderData{
		OrderID: "o1", Symbol: "combo_abc", IsCombo: true, ComboType: &comboType,
		Legs: []object.Leg{{Symbol: "AAPL-20250117-C-150-100"}, {Symbol: "AAPL-20250117-C-160-100"}},
	})

	eng.ProcessTrade("strat-a", object.TradeData{
		TradeID: "t1", OrderID: "o1", Symbol: "combo_abc",
		Direction: constant.Long, Price: 1.0, Volume: 1,
	})
	eng.ProcessTrade("strat-a", object.TradeData{
		TradeID: "t2", OrderID: "o1", Symbol: "AAPL-20250117-C-150-100",
		Direction: constant.Long, Price: 3.0, Volume: 1,
	})

	holding, ok := eng.GetHolding("strat-a")
	require.True(t, ok)
	combo, ok := holding.ComboPositions["combo_abc"]
	require.True(t, ok)
	require.Equal(t, 1, combo.Quantity)
	require.Equal(t, constant.ComboSpread, combo.ComboType)
	require.Len(t, combo.Legs, 2)

	var leg1 *object.OptionPositionData
	for i := range combo.Legs {
		if combo.Legs[i].Symbol == "AAPL-20250117-C-150-100" {
			leg1 = &combo.Legs[i]
		}
	}
	require.NotNil(t, leg1)
	require.Equal(t, 1, leg1.Quantity)
}

func TestNormalizeComboSymbol(t *testing.T) {
	require.Equal(t, "combo_abc", normalizeComboSymbol("combo_123_abc"))
	require.Equal(t, "noUnderscore", normalizeComboSymbol("noUnderscore"))
	require.Equal(t, "only_one", normalizeComboSymbol("only_one"))
}

func TestUpdateMetrics_RollsUpAndPreservesOpenFields(t *testing.T) {
	eng := New()
	eng.ProcessTrade("strat-a", object.TradeData{
		TradeID: "t1", OrderID: "o1", Symbol: "AAPL-20250117-C-150-100",
		Direction: constant.Long, Price: 2.5, Volume: 1,
	})

	pf := portfolio.NewPortfolioData("default")
	strike := 150.0
	contract := object.ContractData{Symbol: "AAPL-20250117-C-150-100", OptionStrike: &strike, OptionIndex: "150"}
	pf.AddOption(contract)
	pf.FinalizeChains()
	opt := pf.Options["AAPL-20250117-C-150-100"]
	opt.Delta = 0.5
	opt.MidPrice = 3.0

	eng.UpdateMetrics("strat-a", pf)

	holding, _ := eng.GetHolding("strat-a")
	require.InDelta(t, 300.0, holding.Summary.CurrentValue, 1e-9) // 1 * 3.0 * 100
	require.InDelta(t, 250.0, holding.Summary.TotalCost, 1e-9)    // 1 * 2.5 * 100
	require.InDelta(t, 50.0, holding.Summary.UnrealizedPnl, 1e-9)

	// quantity is still 1 (open): clear_fields must not run, per spec §4.5
	// step 5's "every zero-quantity position" scope.
	pos := holding.OptionPositions["AAPL-20250117-C-150-100"]
	require.Equal(t, 3.0, pos.MidPrice)
	require.Equal(t, 250.0, pos.CostValue)
	require.Equal(t, 1, pos.Quantity)
}

func TestUpdateMetrics_OpenPositionSurvivesSecondTick(t *testing.T) {
	eng := New()
	eng.ProcessTrade("strat-a", object.TradeData{
		TradeID: "t1", OrderID: "o1", Symbol: "AAPL-20250117-C-150-100",
		Direction: constant.Long, Price: 2.5, Volume: 1,
	})

	pf := portfolio.NewPortfolioData("default")
	strike := 150.0
	contract := object.ContractData{Symbol: "AAPL-20250117-C-150-100", OptionStrike: &strike, OptionIndex: "150"}
	pf.AddOption(contract)
	pf.FinalizeChains()
	opt := pf.Options["AAPL-20250117-C-150-100"]
	opt.Delta = 0.5
	opt.MidPrice = 3.0

	eng.UpdateMetrics("strat-a", pf) // first tick
	opt.MidPrice = 3.5
	eng.UpdateMetrics("strat-a", pf) // second tick on the same open position

	holding, _ := eng.GetHolding("strat-a")
	pos := holding.OptionPositions["AAPL-20250117-C-150-100"]
	require.Equal(t, 1, pos.Quantity)
	require.Equal(t, 250.0, pos.CostValue) // must survive, not collapse to 0
	require.Equal(t, 2.5, pos.AvgCost)
	require.InDelta(t, 350.0, holding.Summary.CurrentValue, 1e-9) // 1 * 3.5 * 100
	require.InDelta(t, 250.0, holding.Summary.TotalCost, 1e-9)
	require.InDelta(t, 100.0, holding.Summary.UnrealizedPnl, 1e-9)
}

func TestUpdateMetrics_ClearsOnlyZeroQuantityPositions(t *testing.T) {
	eng := New()
	eng.ProcessTrade("strat-a", object.TradeData{
		TradeID: "t1", OrderID: "o1", Symbol: "AAPL-20250117-C-150-100",
		Direction: constant.Long, Price: 2.5, Volume: 1,
	})
	eng.ProcessTrade("strat-a", object.TradeData{
		TradeID: "t2", OrderID: "o1", Symbol: "AAPL-20250117-C-150-100",
		Direction: constant.Short, Price: 4.0, Volume: 1,
	})

	pf := portfolio.NewPortfolioData("default")
	strike := 150.0
	contract := object.ContractData{Symbol: "AAPL-20250117-C-150-100", OptionStrike: &strike, OptionIndex: "150"}
	pf.AddOption(contract)
	pf.FinalizeChains()
	opt := pf.Options["AAPL-20250117-C-150-100"]
	opt.MidPrice = 3.0

	eng.UpdateMetrics("strat-a", pf)

	holding, _ := eng.GetHolding("strat-a")
	pos := holding.OptionPositions["AAPL-20250117-C-150-100"]
	require.Equal(t, 0, pos.Quantity)
	require.Equal(t, 0.0, pos.MidPrice)               // cleared: quantity is zero
	require.Equal(t, 0.0, pos.CostValue)              // cleared: quantity is zero
	require.InDelta(t, 150.0, pos.RealizedPnl, 1e-9) // preserved across clear_fields
}

func TestSerializeAndLoadHolding_RoundTrips(t *testing.T) {
	eng := New()
	eng.ProcessTrade("strat-a", object.TradeData{
		TradeID: "t1", OrderID: "o1", Symbol: "AAPL-20250117-C-150-100",
		Direction: constant.Long, Price: 2.5, Volume: 1,
	})

	data, err := eng.SerializeHolding("strat-a")
	require.NoError(t, err)
	require.NotEmpty(t, data)

	eng2 := New()
	err = eng2.LoadSerializedHolding("strat-b", data)
	require.NoError(t, err)

	holding, ok := eng2.GetHolding("strat-b")
	require.True(t, ok)
	pos := holding.OptionPositions["AAPL-20250117-C-150-100"]
	require.NotNil(t, pos)
	require.Equal(t, 1, pos.Quantity)
}
