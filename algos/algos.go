// Package algos provides the reference strategy classes every runtime
// binary registers by default: minimal implementations of the strategy
// lifecycle contract (spec §4.7), not trading alpha. Concrete strategy
// logic beyond the lifecycle shell is out of scope for the core
// runtime; these exist so cmd/backtester and cmd/liveserver have at
// least one buildable class_name to exercise end to end.
package algos

import (
	"fmt"
	"sort"

	"github.com/otrader/engine/internal/combo"
	"github.com/otrader/engine/internal/constant"
	"github.com/otrader/engine/internal/execution"
	"github.com/otrader/engine/internal/market"
	"github.com/otrader/engine/internal/object"
	"github.com/otrader/engine/internal/portfolio"
	"github.com/otrader/engine/internal/strategy"
)

// RegisterBuiltins installs every reference class this package ships
// with into classes, bound to the given run's portfolio/execution/
// combo-builder/contract-lookup.
func RegisterBuiltins(classes *strategy.ClassRegistry, pf *portfolio.PortfolioData, exec *execution.Engine, combos *combo.Engine, getContract combo.GetContractFunc) {
	classes.RegisterClass("buy_and_hold_underlying", BuyAndHoldUnderlying(pf, exec))
	classes.RegisterClass("short_straddle_seller", ShortStraddleSeller(pf, exec, combos, getContract))
}

// BuyAndHoldUnderlying buys the portfolio's underlying once, at start,
// and otherwise does nothing.
func BuyAndHoldUnderlying(pf *portfolio.PortfolioData, exec *execution.Engine) strategy.Factory {
	return func(strategyName string, settings strategy.Settings) *strategy.Strategy {
		volume := settings.Get("volume", 1)
		submitted := false

		s := &strategy.Strategy{Name: strategyName}
		s.OnStart = func() error {
			if submitted || pf.Underlying == nil {
				return nil
			}
			submitted = true
			exec.SendOrder(strategyName, object.OrderRequest{
				Symbol:    pf.Underlying.Symbol,
				Direction: constant.Long,
				Type:      constant.Market,
				Volume:    volume,
			})
			return nil
		}
		return s
	}
}

// ShortStraddleSeller sells one ATM straddle in the portfolio's
// nearest-expiry chain the first time its timer fires after that
// chain's ATM strike is known, then holds: ongoing delta management is
// left entirely to the hedge controller already wired ahead of every
// strategy's on_timer in the dispatch chain.
func ShortStraddleSeller(pf *portfolio.PortfolioData, exec *execution.Engine, combos *combo.Engine, getContract combo.GetContractFunc) strategy.Factory {
	return func(strategyName string, settings strategy.Settings) *strategy.Strategy {
		volume := int(settings.Get("volume", 1))
		sold := false

		s := &strategy.Strategy{Name: strategyName}
		s.OnTimer = func() error {
			if sold {
				return nil
			}
			chain := nearestChain(pf)
			if chain == nil || chain.ATMIndex == "" {
				return nil
			}
			call, ok := chain.Calls[chain.ATMIndex]
			if !ok {
				return nil
			}
			put, ok := chain.Puts[chain.ATMIndex]
			if !ok {
				return nil
			}

			roles := map[string]*portfolio.OptionData{"call": call, "put": put}
			legs, signature, err := combos.Build(roles, constant.ComboStraddle, constant.Short, volume, getContract, nil)
			if err != nil {
				return fmt.Errorf("short_straddle_seller: %w", err)
			}

			sold = true
			comboType := constant.ComboStraddle
			exec.SendOrder(strategyName, object.OrderRequest{
				Symbol:    market.ComboSymbol(signature),
				Direction: constant.Short,
				Type:      constant.Market,
				Volume:    float64(volume),
				IsCombo:   true,
				Legs:      legs,
				ComboType: &comboType,
			})
			return nil
		}
		return s
	}
}

// nearestChain picks the chain with the lexicographically smallest
// "UNDERLYING_YYYYMMDD" key, which for a single-underlying portfolio is
// its nearest expiry.
func nearestChain(pf *portfolio.PortfolioData) *portfolio.ChainData {
	symbols := make([]string, 0, len(pf.Chains))
	for sym := range pf.Chains {
		symbols = append(symbols, sym)
	}
	if len(symbols) == 0 {
		return nil
	}
	sort.Strings(symbols)
	return pf.Chains[symbols[0]]
}
