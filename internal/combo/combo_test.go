package combo

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/otrader/engine/internal/constant"
	"github.com/otrader/engine/internal/object"
	"github.com/otrader/engine/internal/portfolio"
)

func contractLookup(contracts map[string]object.ContractData) GetContractFunc {
	return func(symbol string) *object.ContractData {
		if c, ok := contracts[symbol]; ok {
			return &c
		}
		return nil
	}
}

func TestGenerateComboSignature(t *testing.T) {
	legs := []object.Leg{
		{Symbol: "AAPL-20250117-C-150-100"},
		{Symbol: "AAPL-20250117-P-140-100"},
	}
	sig := GenerateComboSignature(legs)
	require.Equal(t, "20250117C150-20250117P140", sig)
}

func TestBuild_Straddle(t *testing.T) {
	e := New()
	call := &portfolio.OptionData{Symbol: "AAPL-20250117-C-150-100"}
	put := &portfolio.OptionData{Symbol: "AAPL-20250117-P-150-100"}
	contracts := map[string]object.ContractData{
		call.Symbol: {Symbol: call.Symbol},
		put.Symbol:  {Symbol: put.Symbol},
	}

	legs, sig, err := e.Build(map[string]*portfolio.OptionData{"call": call, "put": put}, constant.ComboStraddle, constant.Long, 1, contractLookup(contracts), nil)
	require.NoError(t, err)
	require.Len(t, legs, 2)
	require.Equal(t, constant.Long, legs[0].Direction)
	require.Equal(t, constant.Long, legs[1].Direction)
	require.NotEmpty(t, sig)
}

func TestBuild_Spread_SignFlipsOnShort(t *testing.T) {
	e := New()
	ll := &portfolio.OptionData{Symbol: "AAPL-20250117-C-150-100"}
	sl := &portfolio.OptionData{Symbol: "AAPL-20250117-C-160-100"}
	contracts := map[string]object.ContractData{
		ll.Symbol: {Symbol: ll.Symbol},
		sl.Symbol: {Symbol: sl.Symbol},
	}
	roles := map[string]*portfolio.OptionData{"long_leg": ll, "short_leg": sl}

	legsLong, _, err := e.Build(roles, constant.ComboSpread, constant.Long, 1, contractLookup(contracts), nil)
	require.NoError(t, err)
	require.Equal(t, constant.Long, legsLong[0].Direction)
	require.Equal(t, constant.Short, legsLong[1].Direction)

	legsShort, _, err := e.Build(roles, constant.ComboSpread, constant.Short, 1, contractLookup(contracts), nil)
	require.NoError(t, err)
	require.Equal(t, constant.Short, legsShort[0].Direction)
	require.Equal(t, constant.Long, legsShort[1].Direction)
}

func TestBuild_RatioSpread_DoublesShortLegVolume(t *testing.T) {
	e := New()
	ll := &portfolio.OptionData{Symbol: "AAPL-20250117-C-150-100"}
	sl := &portfolio.OptionData{Symbol: "AAPL-20250117-C-160-100"}
	contracts := map[string]object.ContractData{
		ll.Symbol: {Symbol: ll.Symbol},
		sl.Symbol: {Symbol: sl.Symbol},
	}
	roles := map[string]*portfolio.OptionData{"long_leg": ll, "short_leg": sl}

	legs, _, err := e.Build(roles, constant.ComboRatioSpread, constant.Long, 3, contractLookup(contracts), nil)
	require.NoError(t, err)
	require.Equal(t, 3, legs[0].Ratio)
	require.Equal(t, 6, legs[1].Ratio)
}

func TestBuild_IronCondor_FourLegs(t *testing.T) {
	e := New()
	roles := map[string]*portfolio.OptionData{
		"put_lower":  {Symbol: "AAPL-20250117-P-140-100"},
		"put_upper":  {Symbol: "AAPL-20250117-P-145-100"},
		"call_lower": {Symbol: "AAPL-20250117-C-155-100"},
		"call_upper": {Symbol: "AAPL-20250117-C-160-100"},
	}
	contracts := map[string]object.ContractData{}
	for _, o := range roles {
		contracts[o.Symbol] = object.ContractData{Symbol: o.Symbol}
	}

	legs, _, err := e.Build(roles, constant.ComboIronCondor, constant.Short, 1, contractLookup(contracts), nil)
	require.NoError(t, err)
	require.Len(t, legs, 4)
}

func TestBuild_MissingRole_ReturnsError(t *testing.T) {
	e := New()
	roles := map[string]*portfolio.OptionData{"call": {Symbol: "AAPL-20250117-C-150-100"}}

	_, _, err := e.Build(roles, constant.ComboStraddle, constant.Long, 1, contractLookup(nil), nil)
	require.Error(t, err)
}

func TestBuild_Custom_LogsEachLeg(t *testing.T) {
	e := New()
	roles := map[string]*portfolio.OptionData{"leg1": {Symbol: "AAPL-20250117-C-150-100"}}
	contracts := map[string]object.ContractData{"AAPL-20250117-C-150-100": {Symbol: "AAPL-20250117-C-150-100"}}

	var logged []object.LogData
	legs, _, err := e.Build(roles, constant.ComboCustom, constant.Long, 1, contractLookup(contracts), func(l object.LogData) {
		logged = append(logged, l)
	})
	require.NoError(t, err)
	require.Len(t, legs, 1)
	require.Len(t, logged, 1)
}
