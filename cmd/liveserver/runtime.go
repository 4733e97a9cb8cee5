package main

import (
	"errors"
	"time"

	"github.com/otrader/engine/algos"
	"github.com/otrader/engine/internal/combo"
	"github.com/otrader/engine/internal/constant"
	"github.com/otrader/engine/internal/dispatcher"
	"github.com/otrader/engine/internal/execution"
	"github.com/otrader/engine/internal/hedge"
	"github.com/otrader/engine/internal/market"
	"github.com/otrader/engine/internal/object"
	"github.com/otrader/engine/internal/portfolio"
	"github.com/otrader/engine/internal/position"
	"github.com/otrader/engine/internal/strategy"
)

// errEngineBusy is returned by Runtime.sync when the live worker does
// not drain the closure within syncTimeout, so a handler can answer 503
// instead of blocking its goroutine forever on a full or wedged queue.
var errEngineBusy = errors.New("liveserver: engine did not respond in time")

const syncTimeout = 5 * time.Second

// Runtime owns every engine package plus the portfolio/contract/class
// registries an HTTP control plane needs to reach them. Every map here
// is read or written exclusively from closures run through sync, so
// they are touched only on the live worker goroutine and need no lock
// of their own: Dispatcher's own callbacks (GetPortfolio, GetContract)
// run on that same goroutine, since they are only ever invoked from
// inside LiveRuntime's event handling.
type Runtime struct {
	Live       *dispatcher.LiveRuntime
	Dispatcher *dispatcher.Dispatcher
	Execution  *execution.Engine
	Position   *position.Engine
	Hedge      *hedge.Engine
	Combo      *combo.Engine
	Strategies *strategy.Registry

	portfolios         map[string]*portfolio.PortfolioData
	contracts          map[string]map[string]*object.ContractData
	classesByPortfolio map[string]*strategy.ClassRegistry
}

// NewRuntime wires every engine package into one live dispatcher, the
// way cmd/backtester wires them into one backtest scheduler.
func NewRuntime(timerInterval time.Duration, queueSize int) *Runtime {
	rt := &Runtime{
		Execution:          execution.New(nil, nil),
		Position:           position.New(),
		Hedge:              hedge.New(),
		Combo:              combo.New(),
		Strategies:         strategy.NewRegistry(),
		portfolios:         make(map[string]*portfolio.PortfolioData),
		contracts:          make(map[string]map[string]*object.ContractData),
		classesByPortfolio: make(map[string]*strategy.ClassRegistry),
	}

	d := dispatcher.New(rt.getPortfolio, rt.Execution, rt.Position, rt.Hedge, rt.Strategies)
	d.GetContract = rt.getContract
	d.IsLive = true
	rt.Dispatcher = d

	rt.Live = dispatcher.NewLiveRuntime(d, timerInterval, queueSize)
	return rt
}

// sync enqueues fn as an EventFunc and blocks until the worker goroutine
// has run it, so handlers can safely read or mutate engine state without
// racing the dispatch loop.
func (rt *Runtime) sync(fn func()) error {
	done := make(chan struct{})
	rt.Live.Enqueue(dispatcher.Event{Kind: dispatcher.EventFunc, Fn: func() {
		fn()
		close(done)
	}})
	select {
	case <-done:
		return nil
	case <-time.After(syncTimeout):
		return errEngineBusy
	}
}

func (rt *Runtime) getPortfolio(name string) *portfolio.PortfolioData {
	return rt.portfolios[name]
}

// getContract resolves a symbol against every portfolio's registered
// contracts, then falls back to treating it as an underlying if any
// portfolio's root matches, matching cmd/backtester's getContract shape.
func (rt *Runtime) getContract(symbol string) *object.ContractData {
	for _, m := range rt.contracts {
		if c, ok := m[symbol]; ok {
			return c
		}
	}
	for _, pf := range rt.portfolios {
		if pf.Underlying != nil && market.IsUnderlyingSymbol(symbol, pf.Underlying.Symbol) {
			return &object.ContractData{Symbol: symbol, Product: constant.Equity, Size: 1}
		}
	}
	return nil
}

// createPortfolio installs a new named portfolio plus its own builtin
// class registry, bound the way cmd/backtester binds algos.RegisterBuiltins
// to a single portfolio/execution pair, so every portfolio trades its own
// independent instances of the reference classes.
func (rt *Runtime) createPortfolio(name, underlying string, riskFreeRate float64, ivPriceMode string) {
	pf := portfolio.NewPortfolioData(name)
	pf.SetRiskFreeRate(riskFreeRate)
	pf.SetIVPriceMode(ivPriceMode)
	pf.SetDTERef(time.Now())
	pf.SetUnderlying(object.ContractData{Symbol: underlying, Product: constant.Equity, Size: 1})

	rt.portfolios[name] = pf
	rt.contracts[name] = make(map[string]*object.ContractData)

	classes := strategy.NewClassRegistry()
	algos.RegisterBuiltins(classes, pf, rt.Execution, rt.Combo, rt.getContract)
	rt.classesByPortfolio[name] = classes
}
