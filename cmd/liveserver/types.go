package main

import "time"

// createPortfolioRequest is the body of POST /portfolios.
type createPortfolioRequest struct {
	Name         string  `json:"name"`
	Underlying   string  `json:"underlying"`
	RiskFreeRate float64 `json:"risk_free_rate"`
	IVPriceMode  string  `json:"iv_price_mode"`
}

// portfolioView is the JSON shape returned for a portfolio.
type portfolioView struct {
	Name            string  `json:"name"`
	Underlying      string  `json:"underlying"`
	UnderlyingBid   float64 `json:"underlying_bid"`
	UnderlyingAsk   float64 `json:"underlying_ask"`
	UnderlyingMid   float64 `json:"underlying_mid"`
	OptionCount     int     `json:"option_count"`
	ChainCount      int     `json:"chain_count"`
	ApplyOrderCount int     `json:"apply_order_count"`
}

// registerContractRequest is the body of POST /portfolios/{name}/contracts.
type registerContractRequest struct {
	Strike     float64   `json:"strike"`
	Expiry     time.Time `json:"expiry"`
	OptionType string    `json:"option_type"` // "C" or "P"
	Multiplier float64   `json:"multiplier"`
}

// registerContractResponse carries back the platform symbol the server
// assigned so the caller can reference it in later snapshot quotes.
type registerContractResponse struct {
	Symbol string `json:"symbol"`
}

// quoteUpdate is one symbol's live quote inside a snapshot post.
type quoteUpdate struct {
	Symbol string  `json:"symbol"`
	Bid    float64 `json:"bid"`
	Ask    float64 `json:"ask"`
	Last   float64 `json:"last"`
}

// postSnapshotRequest is the body of POST /portfolios/{name}/snapshot.
type postSnapshotRequest struct {
	Time           time.Time     `json:"time"`
	UnderlyingBid  float64       `json:"underlying_bid"`
	UnderlyingAsk  float64       `json:"underlying_ask"`
	UnderlyingLast float64       `json:"underlying_last"`
	Quotes         []quoteUpdate `json:"quotes"`
}

// hedgeConfigRequest is the optional hedge policy on a strategy create.
type hedgeConfigRequest struct {
	TimerTrigger int `json:"timer_trigger"`
	DeltaTarget  int `json:"delta_target"`
	DeltaRange   int `json:"delta_range"`
}

// createStrategyRequest is the body of POST /strategies.
type createStrategyRequest struct {
	ClassName     string             `json:"class_name"`
	StrategyName  string             `json:"strategy_name"`
	PortfolioName string             `json:"portfolio_name"`
	Settings      map[string]float64 `json:"settings"`
	Hedge         *hedgeConfigRequest `json:"hedge"`
}

// createStrategyResponse carries back the registry key the server
// derived for this strategy instance.
type createStrategyResponse struct {
	StrategyName string `json:"strategy_name"`
}

// strategyView is the JSON shape returned for one registered strategy.
type strategyView struct {
	Name       string      `json:"name"`
	Inited     bool        `json:"inited"`
	Started    bool        `json:"started"`
	Errored    bool        `json:"errored"`
	ErrorMsg   string      `json:"error_msg,omitempty"`
	HasHolding bool        `json:"has_holding"`
	Summary    summaryView `json:"summary,omitempty"`
}

type summaryView struct {
	TotalCost     float64 `json:"total_cost"`
	CurrentValue  float64 `json:"current_value"`
	UnrealizedPnl float64 `json:"unrealized_pnl"`
	RealizedPnl   float64 `json:"realized_pnl"`
	Pnl           float64 `json:"pnl"`
	Delta         float64 `json:"delta"`
	Gamma         float64 `json:"gamma"`
	Theta         float64 `json:"theta"`
	Vega          float64 `json:"vega"`
}

// errorResponse is the JSON body of every non-2xx response.
type errorResponse struct {
	Error string `json:"error"`
}
