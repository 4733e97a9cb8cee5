package algos

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/otrader/engine/internal/combo"
	"github.com/otrader/engine/internal/constant"
	"github.com/otrader/engine/internal/execution"
	"github.com/otrader/engine/internal/object"
	"github.com/otrader/engine/internal/portfolio"
	"github.com/otrader/engine/internal/strategy"
)

func buildStraddlePortfolio() (*portfolio.PortfolioData, map[string]object.ContractData) {
	pf := portfolio.NewPortfolioData("default")
	pf.SetUnderlying(object.ContractData{Symbol: "AAPL"})
	pf.Underlying.MidPrice = 150

	strike := 150.0
	call := constant.Call
	put := constant.Put
	contracts := map[string]object.ContractData{
		"AAPL-20250117-C-150-100": {Symbol: "AAPL-20250117-C-150-100", OptionStrike: &strike, OptionType: &call, OptionIndex: "150"},
		"AAPL-20250117-P-150-100": {Symbol: "AAPL-20250117-P-150-100", OptionStrike: &strike, OptionType: &put, OptionIndex: "150"},
	}
	for _, c := range contracts {
		pf.AddOption(c)
	}
	pf.FinalizeChains()
	pf.CalculateATMPrice()
	return pf, contracts
}

func contractLookup(contracts map[string]object.ContractData) combo.GetContractFunc {
	return func(symbol string) *object.ContractData {
		if c, ok := contracts[symbol]; ok {
			return &c
		}
		return nil
	}
}

func TestBuyAndHoldUnderlying_SubmitsOneMarketBuyOnStart(t *testing.T) {
	pf, _ := buildStraddlePortfolio()
	var gotReq object.OrderRequest
	calls := 0
	exec := execution.New(func(req object.OrderRequest) string {
		calls++
		gotReq = req
		return "o1"
	}, nil)

	factory := BuyAndHoldUnderlying(pf, exec)
	s := factory("strat-a", strategy.Settings{"volume": 3})
	s.Init()
	s.Start()
	s.Start() // idempotent: already started, must not resubmit

	require.Equal(t, 1, calls)
	require.Equal(t, "AAPL", gotReq.Symbol)
	require.Equal(t, constant.Long, gotReq.Direction)
	require.Equal(t, 3.0, gotReq.Volume)
}

func TestShortStraddleSeller_SellsATMStraddleOnce(t *testing.T) {
	pf, contracts := buildStraddlePortfolio()
	var gotReq object.OrderRequest
	calls := 0
	exec := execution.New(func(req object.OrderRequest) string {
		calls++
		gotReq = req
		return "o1"
	}, nil)

	comboEngine := combo.New()
	factory := ShortStraddleSeller(pf, exec, comboEngine, contractLookup(contracts))
	s := factory("strat-b", strategy.Settings{"volume": 2})
	s.Init()
	s.Start()

	s.Timer()
	s.Timer() // second tick must not sell again

	require.Equal(t, 1, calls)
	require.True(t, gotReq.IsCombo)
	require.Equal(t, constant.Short, gotReq.Direction)
	require.Len(t, gotReq.Legs, 2)
	require.Equal(t, "combo_20250117C150-20250117P150", gotReq.Symbol)
}
