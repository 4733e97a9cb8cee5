package execution

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/otrader/engine/internal/constant"
	"github.com/otrader/engine/internal/object"
)

func TestSendOrder_RegistersActive(t *testing.T) {
	eng := New(func(req object.OrderRequest) string {
		return "ord-1"
	}, nil)

	orderID := eng.SendOrder("strat-a", object.OrderRequest{Symbol: "AAPL"})
	require.Equal(t, "ord-1", orderID)

	active := eng.GetStrategyActiveOrders("strat-a")
	require.Equal(t, []string{"ord-1"}, active)
	require.Equal(t, "strat-a", eng.GetStrategyNameForOrder("ord-1"))
}

func TestSendOrder_RiskCheckBlocks(t *testing.T) {
	eng := New(func(req object.OrderRequest) string {
		return "ord-1"
	}, func(strategyName string, req object.OrderRequest) bool { return false })

	orderID := eng.SendOrder("strat-a", object.OrderRequest{Symbol: "AAPL"})
	require.Equal(t, "", orderID)
	require.Empty(t, eng.GetStrategyActiveOrders("strat-a"))
}

func TestSendOrder_EmptyOrderIDNotRegistered(t *testing.T) {
	eng := New(func(req object.OrderRequest) string { return "" }, nil)

	orderID := eng.SendOrder("strat-a", object.OrderRequest{Symbol: "AAPL"})
	require.Equal(t, "", orderID)
	require.Empty(t, eng.GetStrategyActiveOrders("strat-a"))
}

func TestStoreOrder_TerminalRemovesTracking(t *testing.T) {
	eng := New(func(req object.OrderRequest) string { return "ord-1" }, nil)
	eng.SendOrder("strat-a", object.OrderRequest{Symbol: "AAPL"})

	eng.StoreOrder("strat-a", object.OrderData{OrderID: "ord-1", Status: constant.AllTraded})

	require.Empty(t, eng.GetStrategyActiveOrders("strat-a"))
	require.Equal(t, "", eng.GetStrategyNameForOrder("ord-1"))
	o, ok := eng.GetOrder("ord-1")
	require.True(t, ok)
	require.Equal(t, constant.AllTraded, o.Status)
}

func TestStoreOrder_ActiveStatusKeepsTracking(t *testing.T) {
	eng := New(func(req object.OrderRequest) string { return "ord-1" }, nil)
	eng.SendOrder("strat-a", object.OrderRequest{Symbol: "AAPL"})

	eng.StoreOrder("strat-a", object.OrderData{OrderID: "ord-1", Status: constant.PartTraded})

	require.Equal(t, []string{"ord-1"}, eng.GetStrategyActiveOrders("strat-a"))
}

func TestRemoveStrategyTracking(t *testing.T) {
	eng := New(func(req object.OrderRequest) string { return "ord-1" }, nil)
	eng.SendOrder("strat-a", object.OrderRequest{Symbol: "AAPL"})

	eng.RemoveStrategyTracking("strat-a")

	require.Empty(t, eng.GetStrategyActiveOrders("strat-a"))
	require.Equal(t, "", eng.GetStrategyNameForOrder("ord-1"))
}

func TestAccountPosition(t *testing.T) {
	eng := New(nil, nil)
	require.Equal(t, 0.0, eng.GetAccountPosition("AAPL"))

	eng.SetAccountPosition("AAPL", 150.0)
	require.Equal(t, 150.0, eng.GetAccountPosition("AAPL"))
}

func TestClear(t *testing.T) {
	eng := New(func(req object.OrderRequest) string { return "ord-1" }, nil)
	eng.SendOrder("strat-a", object.OrderRequest{Symbol: "AAPL"})
	eng.StoreTrade(object.TradeData{TradeID: "t1"})

	eng.Clear()

	require.Empty(t, eng.GetAllOrders())
	require.Empty(t, eng.GetAllTrades())
	require.Empty(t, eng.GetStrategyActiveOrders("strat-a"))
}
